package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blockberries/craftberry/object"
	"github.com/blockberries/craftberry/storage"
	"github.com/blockberries/craftberry/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNodeSubmitPipeline(t *testing.T) {
	n := newTestNode(t)
	counter := object.NewSharedCounter()
	require.NoError(t, n.Registry().Register(counter))

	msg, err := types.NewMessage(types.KindNotification, int64(41))
	require.NoError(t, err)

	accepted, err := n.Submit(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{counter.ID()}, accepted)
	assert.EqualValues(t, 41, counter.Total())

	stored, ok, err := n.StoredMessage(msg.ContentHash)
	require.NoError(t, err)
	require.True(t, ok, "accepted message not persisted")
	assert.Equal(t, msg.ID, stored.ID)
	require.NoError(t, stored.VerifyHash())
}

func TestNodeRejectsTamperedMessage(t *testing.T) {
	n := newTestNode(t)
	counter := object.NewSharedCounter()
	require.NoError(t, n.Registry().Register(counter))

	msg, err := types.NewMessage(types.KindNotification, int64(5))
	require.NoError(t, err)
	msg.Payload = []byte(`500`)

	_, err = n.Submit(context.Background(), msg)
	require.ErrorIs(t, err, types.ErrHashMismatch)

	// Neither applied nor persisted.
	assert.Zero(t, counter.Total())
	_, ok, err := n.StoredMessage(msg.ContentHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeSubmitUnclaimedMessage(t *testing.T) {
	n := newTestNode(t)

	msg, err := types.NewMessage(types.KindHeartbeat, nil)
	require.NoError(t, err)

	accepted, err := n.Submit(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, accepted)

	// Valid but unclaimed messages are still persisted.
	_, ok, err := n.StoredMessage(msg.ContentHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNodeDigests(t *testing.T) {
	n := newTestNode(t)
	counter := object.NewSharedCounter()
	require.NoError(t, n.Registry().Register(counter))

	msg, err := types.NewMessage(types.KindNotification, int64(7))
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), msg)
	require.NoError(t, err)

	digests, err := n.Digests()
	require.NoError(t, err)
	assert.Equal(t, map[types.ID]string{counter.ID(): "7"}, digests)
}

func TestNodeWithExplicitStore(t *testing.T) {
	store := storage.NewMemoryStore()
	n, err := New(Config{Store: store})
	require.NoError(t, err)

	msg, err := types.NewMessage(types.KindNotification, int64(1))
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, n.Close())

	// Submit after close fails at dispatch; nothing panics.
	msg2, err := types.NewMessage(types.KindNotification, int64(2))
	require.NoError(t, err)
	_, err = n.Submit(context.Background(), msg2)
	require.Error(t, err)
}
