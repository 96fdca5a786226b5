package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/craftberry/chat"
	"github.com/blockberries/craftberry/consensus"
	"github.com/blockberries/craftberry/crypto"
	"github.com/blockberries/craftberry/node"
	"github.com/blockberries/craftberry/object"
	"github.com/blockberries/craftberry/storage"
	"github.com/blockberries/craftberry/types"
)

// testNode is one replica: a node with a validator consensus engine
// registered, its key held in a key file like a real deployment.
type testNode struct {
	name   string
	node   *node.Node
	engine *consensus.Engine
	signer *crypto.FileSigner
}

func setupTestNode(t *testing.T, name, dir string) *testNode {
	t.Helper()
	signer, err := crypto.LoadOrGenFileSigner(filepath.Join(dir, name+"_key.json"))
	require.NoError(t, err)

	n, err := node.New(node.Config{Store: storage.NewMemoryStore()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	eng := consensus.NewValidatorEngine(nil, signer)
	require.NoError(t, n.Registry().Register(eng))

	return &testNode{name: name, node: n, engine: eng, signer: signer}
}

// broadcast submits msg to every node, the way a gossip layer would.
func broadcast(t *testing.T, nodes []*testNode, msg *types.Message) {
	t.Helper()
	for _, tn := range nodes {
		_, err := tn.node.Submit(context.Background(), msg)
		require.NoError(t, err, "submit to %s", tn.name)
	}
}

func TestThreeValidatorCommit(t *testing.T) {
	dir := t.TempDir()
	a := setupTestNode(t, "alice", dir)
	b := setupTestNode(t, "bob", dir)
	c := setupTestNode(t, "carol", dir)
	nodes := []*testNode{a, b, c}

	// Install the same 100-power-each validator set everywhere.
	vals := make([]consensus.ValidatorInfo, len(nodes))
	for i, tn := range nodes {
		vals[i] = consensus.ValidatorInfo{
			Address:   tn.engine.Address(),
			PublicKey: tn.signer.PublicKey(),
			Power:     100,
			Active:    true,
		}
	}
	valMsg, err := consensus.NewValidatorSetMessage(vals)
	require.NoError(t, err)
	broadcast(t, nodes, valMsg)
	for _, tn := range nodes {
		require.EqualValues(t, 300, tn.engine.TotalPower(), tn.name)
	}

	// Alice proposes a block for height 1.
	blockHash := crypto.HashHex([]byte("block 1 payload"))
	proposal, err := a.engine.CreateProposal(blockHash)
	require.NoError(t, err)
	broadcast(t, nodes, proposal)
	for _, tn := range nodes {
		p, ok := tn.engine.ProposalAt(1, 0)
		require.True(t, ok, "%s missing proposal", tn.name)
		assert.Equal(t, blockHash, p.BlockHash)
	}

	// Everyone prevotes for it.
	for _, tn := range nodes {
		prevote, err := tn.engine.CreatePrevote(&blockHash)
		require.NoError(t, err)
		broadcast(t, nodes, prevote)
	}
	winner, ok := consensus.Winner(a.engine.PrevoteTally(1, 0), a.engine.TotalPower())
	require.True(t, ok)
	require.Equal(t, blockHash, winner)

	// Two precommits are 200 of 300: not yet committable.
	for _, tn := range []*testNode{a, b} {
		precommit, err := tn.engine.CreatePrecommit(&blockHash)
		require.NoError(t, err)
		broadcast(t, nodes, precommit)
	}
	_, ok = a.engine.CanCommit()
	require.False(t, ok, "200 of 300 power reported committable")
	_, err = a.engine.Commit(blockHash)
	require.ErrorIs(t, err, consensus.ErrInsufficientVotes)
	require.EqualValues(t, 1, a.engine.Height(), "failed commit advanced height")

	// The third precommit crosses the threshold.
	precommit, err := c.engine.CreatePrecommit(&blockHash)
	require.NoError(t, err)
	broadcast(t, nodes, precommit)

	hash, ok := a.engine.CanCommit()
	require.True(t, ok)
	require.Equal(t, blockHash, hash)

	block, err := a.engine.Commit(blockHash)
	require.NoError(t, err)
	assert.EqualValues(t, 1, block.Height)
	assert.Equal(t, consensus.GenesisHash, block.PrevHash)
	assert.Len(t, block.Signatures, 3, "commit should carry all three precommit signatures")

	// Alice announces the commit; the others adopt it.
	commitMsg, err := consensus.NewBlockCommitMessage(block)
	require.NoError(t, err)
	broadcast(t, nodes, commitMsg)

	for _, tn := range nodes {
		assert.EqualValues(t, 2, tn.engine.Height(), tn.name)
		assert.Equal(t, blockHash, tn.engine.LatestBlock().Hash, tn.name)
		d, err := tn.engine.Digest()
		require.NoError(t, err)
		assert.Equal(t, "2:0", d, tn.name)
	}
}

func TestMixedObjectsShareOneNode(t *testing.T) {
	n, err := node.New(node.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	counter := object.NewSharedCounter()
	chatObj := chat.NewObject()
	engine := consensus.NewEngine(nil)
	require.NoError(t, n.Registry().Register(counter))
	require.NoError(t, n.Registry().Register(chatObj))
	require.NoError(t, n.Registry().Register(engine))

	// A counter message reaches only the counter.
	num, err := types.NewMessage(types.KindNotification, int64(9))
	require.NoError(t, err)
	accepted, err := n.Submit(context.Background(), num)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{counter.ID()}, accepted)

	// A chat message reaches only the chat object.
	signer, err := crypto.NewLocalSigner()
	require.NoError(t, err)
	create, err := chat.NewCreateMessage(signer, "ops")
	require.NoError(t, err)
	accepted, err = n.Submit(context.Background(), create)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{chatObj.ID()}, accepted)

	// A consensus message reaches only the engine.
	valMsg, err := consensus.NewValidatorSetMessage(nil)
	require.NoError(t, err)
	accepted, err = n.Submit(context.Background(), valMsg)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{engine.ID()}, accepted)

	// Every accepted message is retrievable by content hash.
	for _, msg := range []*types.Message{num, create, valMsg} {
		stored, ok, err := n.StoredMessage(msg.ContentHash)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, msg.ID, stored.ID)
	}
}

func TestReplicaConvergenceUnderRedelivery(t *testing.T) {
	// Two replicas of the same counter object receive the same messages
	// in different orders with duplicates; their digests converge.
	r1 := object.NewRegistry(nil)
	r2 := object.NewRegistry(nil)
	c1 := object.NewSharedCounter()
	c2 := c1.Clone().(*object.SharedCounter)
	require.NoError(t, r1.Register(c1))
	require.NoError(t, r2.Register(c2))

	var msgs []*types.Message
	for _, v := range []int64{3, 14, 15, 92} {
		m, err := types.NewMessage(types.KindNotification, v)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		_, err := r1.Dispatch(m)
		require.NoError(t, err)
	}
	// Reverse order with each message delivered twice.
	for i := len(msgs) - 1; i >= 0; i-- {
		for j := 0; j < 2; j++ {
			_, err := r2.Dispatch(msgs[i])
			require.NoError(t, err)
		}
	}

	d1, err := c1.Digest()
	require.NoError(t, err)
	d2, err := c2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, "124", d1)
}
