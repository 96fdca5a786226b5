package consensus

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockberries/craftberry/crypto"
	"github.com/blockberries/craftberry/object"
	"github.com/blockberries/craftberry/types"
)

// TypeName is the engine's object type label.
const TypeName = "TendermintBFT"

var _ object.Object = (*Engine)(nil)

type roundKey struct {
	height uint64
	round  uint32
}

// Engine is the BFT consensus state machine, packaged as a replicated
// state object. It records proposals and votes per (height, round)
// slot, maintains the committed chain, and answers quorum queries. It
// never advances rounds on its own; the embedding application calls
// AdvanceRound and Commit.
type Engine struct {
	mu          sync.RWMutex
	id          types.ID
	validators  map[string]ValidatorInfo
	blocks      []Block
	height      uint64
	round       uint32
	proposals   map[roundKey]ProposalMsg
	prevotes    map[roundKey]map[string]VoteMsg
	precommits  map[roundKey]map[string]VoteMsg
	lockedBlock string
	lockedRound uint32
	seen        map[string]bool
	signer      crypto.Signer
	address     string
	log         *zap.Logger
}

// NewEngine returns an observer engine: it tracks consensus state but
// cannot author proposals or votes. A nil logger is replaced with a
// no-op logger.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		id:         types.NewID(),
		validators: make(map[string]ValidatorInfo),
		blocks:     []Block{genesisBlock()},
		height:     1,
		round:      0,
		proposals:  make(map[roundKey]ProposalMsg),
		prevotes:   make(map[roundKey]map[string]VoteMsg),
		precommits: make(map[roundKey]map[string]VoteMsg),
		seen:       make(map[string]bool),
		log:        log,
	}
}

// NewValidatorEngine returns an engine that signs proposals and votes
// as the validator addressed by the signer's public key.
func NewValidatorEngine(log *zap.Logger, signer crypto.Signer) *Engine {
	e := NewEngine(log)
	e.signer = signer
	e.address = crypto.Address(signer.PublicKey())
	return e
}

func genesisBlock() Block {
	return Block{Height: 0, Hash: GenesisHash}
}

func (e *Engine) ID() types.ID     { return e.id }
func (e *Engine) TypeName() string { return TypeName }

// Address returns the local validator address, empty for observers.
func (e *Engine) Address() string { return e.address }

// IsValid accepts messages of the consensus kind whose payload parses
// strictly as exactly one consensus variant and whose slot matches the
// engine's current position. A proposal or vote for another (height,
// round) is not a fault, just not processable now, so it reports
// false. Validator-set updates are accepted at any time.
func (e *Engine) IsValid(msg *types.Message) (bool, error) {
	if msg.Kind != Kind() {
		return false, nil
	}
	p, err := ParsePayload(msg.Payload)
	if err != nil {
		return false, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case p.Proposal != nil:
		return e.currentSlot(p.Proposal.Height, p.Proposal.Round), nil
	case p.Prevote != nil:
		return e.currentSlot(p.Prevote.Height, p.Prevote.Round), nil
	case p.Precommit != nil:
		return e.currentSlot(p.Precommit.Height, p.Precommit.Round), nil
	case p.BlockCommit != nil:
		return p.BlockCommit.Block.Height == e.height, nil
	default:
		return true, nil
	}
}

func (e *Engine) currentSlot(height uint64, round uint32) bool {
	return height == e.height && round == e.round
}

// Apply folds one consensus message into the engine's state. Replays
// of the same content are no-ops.
func (e *Engine) Apply(msg *types.Message) error {
	p, err := ParsePayload(msg.Payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen[msg.ContentHash] {
		return nil
	}

	var applied bool
	switch {
	case p.Proposal != nil:
		applied = e.applyProposal(*p.Proposal)
	case p.Prevote != nil:
		applied = e.applyVote(e.prevotes, *p.Prevote)
	case p.Precommit != nil:
		applied = e.applyVote(e.precommits, *p.Precommit)
	case p.ValidatorSet != nil:
		e.applyValidatorSet(*p.ValidatorSet)
		applied = true
	case p.BlockCommit != nil:
		applied = e.applyBlockCommit(p.BlockCommit.Block)
	}
	// Slot-rejected messages are not recorded as seen: a premature
	// block commit may become applicable later and must still land.
	if applied {
		e.seen[msg.ContentHash] = true
	}
	return nil
}

// applyProposal stores a proposal for the current slot. The slot is
// re-checked under the write lock because the engine may have moved on
// between validation and apply.
func (e *Engine) applyProposal(p ProposalMsg) bool {
	if !e.currentSlot(p.Height, p.Round) {
		return false
	}
	e.proposals[roundKey{p.Height, p.Round}] = p
	e.touchValidator(p.Proposer)
	e.log.Debug("proposal recorded",
		zap.Uint64("height", p.Height),
		zap.Uint32("round", p.Round),
		zap.String("block", p.BlockHash),
		zap.String("proposer", p.Proposer))
	return true
}

// applyVote records a current-slot vote in the validator's slot. A
// later vote from the same validator in the same slot overwrites the
// earlier one; the engine keeps no record of the conflict.
func (e *Engine) applyVote(votes map[roundKey]map[string]VoteMsg, v VoteMsg) bool {
	if !e.currentSlot(v.Height, v.Round) {
		return false
	}
	key := roundKey{v.Height, v.Round}
	if votes[key] == nil {
		votes[key] = make(map[string]VoteMsg)
	}
	votes[key][v.Validator] = v
	e.touchValidator(v.Validator)
	return true
}

// applyValidatorSet merges the update into the live validator map.
func (e *Engine) applyValidatorSet(vs ValidatorSetMsg) {
	for _, v := range vs.Validators {
		e.validators[v.Address] = v
	}
	e.log.Debug("validator set updated",
		zap.Int("merged", len(vs.Validators)),
		zap.Int("size", len(e.validators)))
}

// applyBlockCommit adopts a block another replica committed. Only a
// block for the current height advances the chain; the local replica
// does not re-check the quorum, it trusts the committing replica's
// signatures. Blocks for other heights are stale or premature and are
// dropped.
func (e *Engine) applyBlockCommit(b Block) bool {
	if b.Height != e.height {
		e.log.Debug("block commit ignored",
			zap.Uint64("height", b.Height),
			zap.Uint64("current", e.height))
		return false
	}
	e.blocks = append(e.blocks, b)
	e.height++
	e.round = 0
	e.lockedBlock = ""
	e.lockedRound = 0
	e.prune()
	e.log.Info("block adopted",
		zap.Uint64("height", b.Height),
		zap.String("hash", b.Hash))
	return true
}

func (e *Engine) touchValidator(address string) {
	if v, ok := e.validators[address]; ok {
		v.LastParticipation = time.Now().UTC()
		e.validators[address] = v
	}
}

// prune drops per-round bookkeeping below the current height.
func (e *Engine) prune() {
	for key := range e.proposals {
		if key.height < e.height {
			delete(e.proposals, key)
		}
	}
	for key := range e.prevotes {
		if key.height < e.height {
			delete(e.prevotes, key)
		}
	}
	for key := range e.precommits {
		if key.height < e.height {
			delete(e.precommits, key)
		}
	}
}

// Height returns the height consensus is currently deciding.
func (e *Engine) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.height
}

// Round returns the current round within the current height.
func (e *Engine) Round() uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// AdvanceRound moves to the next round at the same height and returns
// it. Vote slots for earlier rounds are kept until the height commits.
func (e *Engine) AdvanceRound() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round++
	return e.round
}

// Lock records that the local validator is bound to blockHash for the
// rest of the height: it saw a prevote quorum and must precommit only
// this block until the height commits.
func (e *Engine) Lock(blockHash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockedBlock = blockHash
	e.lockedRound = e.round
}

// LockedBlock returns the locked block hash and the round it was
// locked in, if any.
func (e *Engine) LockedBlock() (string, uint32, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lockedBlock == "" {
		return "", 0, false
	}
	return e.lockedBlock, e.lockedRound, true
}

// LatestBlock returns the most recently committed block.
func (e *Engine) LatestBlock() Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyBlock(e.blocks[len(e.blocks)-1])
}

// Blocks returns a copy of the committed chain, genesis first.
func (e *Engine) Blocks() []Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Block, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = copyBlock(b)
	}
	return out
}

// Validators returns the current validator set sorted by address.
func (e *Engine) Validators() []ValidatorInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validatorList()
}

func (e *Engine) validatorList() []ValidatorInfo {
	out := make([]ValidatorInfo, 0, len(e.validators))
	for _, v := range e.validators {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// TotalPower returns the summed voting power of the validator set.
func (e *Engine) TotalPower() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalPower()
}

// totalPower sums the power of active validators only; inactive
// members keep their entry but count for nothing.
func (e *Engine) totalPower() uint64 {
	var total uint64
	for _, v := range e.validators {
		if v.Active {
			total += v.Power
		}
	}
	return total
}

// ProposalAt returns the proposal recorded for the slot, if any.
func (e *Engine) ProposalAt(height uint64, round uint32) (ProposalMsg, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.proposals[roundKey{height, round}]
	return p, ok
}

// PrevoteTally returns the power-weighted prevote tally for the slot.
// Votes from addresses outside the validator set carry no power.
func (e *Engine) PrevoteTally(height uint64, round uint32) Tally {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tally(e.prevotes, height, round)
}

// PrecommitTally returns the power-weighted precommit tally for the
// slot.
func (e *Engine) PrecommitTally(height uint64, round uint32) Tally {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tally(e.precommits, height, round)
}

func (e *Engine) tally(votes map[roundKey]map[string]VoteMsg, height uint64, round uint32) Tally {
	t := make(Tally)
	for addr, v := range votes[roundKey{height, round}] {
		val, ok := e.validators[addr]
		if !ok || !val.Active {
			continue
		}
		t.Add(v.Candidate(), val.Power)
	}
	return t
}

// CanCommit reports whether some block hash holds a precommit quorum
// at the current (height, round), and which.
func (e *Engine) CanCommit() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Winner(e.tally(e.precommits, e.height, e.round), e.totalPower())
}

// Commit finalizes blockHash at the current height. It fails with
// ErrInsufficientVotes, leaving all state unchanged, unless blockHash
// holds the precommit quorum at the current (height, round). On
// success the block is appended with the precommit signatures that
// justified it, the height advances, the round resets to zero, and
// bookkeeping below the new height is pruned.
func (e *Engine) Commit(blockHash string) (Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	winner, ok := Winner(e.tally(e.precommits, e.height, e.round), e.totalPower())
	if !ok || winner != blockHash {
		return Block{}, fmt.Errorf("%w: block %s at height %d round %d",
			ErrInsufficientVotes, blockHash, e.height, e.round)
	}

	sigs := make(map[string]crypto.HexBytes)
	for addr, v := range e.precommits[roundKey{e.height, e.round}] {
		if v.Candidate() == blockHash && len(v.Signature) > 0 {
			sigs[addr] = v.Signature
		}
	}

	b := Block{
		Height:     e.height,
		Hash:       blockHash,
		PrevHash:   e.blocks[len(e.blocks)-1].Hash,
		Time:       time.Now().UTC(),
		Proposer:   e.proposals[roundKey{e.height, e.round}].Proposer,
		Signatures: sigs,
	}
	e.blocks = append(e.blocks, b)
	e.height++
	e.round = 0
	e.lockedBlock = ""
	e.lockedRound = 0
	e.prune()
	e.log.Info("block committed",
		zap.Uint64("height", b.Height),
		zap.String("hash", b.Hash),
		zap.Int("signatures", len(sigs)))
	return copyBlock(b), nil
}

// CreateProposal builds a signed proposal message for blockHash at the
// current (height, round).
func (e *Engine) CreateProposal(blockHash string) (*types.Message, error) {
	e.mu.RLock()
	height, round := e.height, e.round
	e.mu.RUnlock()

	if e.signer == nil {
		return nil, ErrNoSigner
	}
	sig, err := e.signer.Sign(proposalSignBytes(height, round, blockHash))
	if err != nil {
		return nil, fmt.Errorf("sign proposal: %w", err)
	}
	return NewProposalMessage(ProposalMsg{
		Height:    height,
		Round:     round,
		BlockHash: blockHash,
		Proposer:  e.address,
		Signature: sig,
	})
}

// CreatePrevote builds a signed prevote for the current slot. A nil
// blockHash prevotes nil.
func (e *Engine) CreatePrevote(blockHash *string) (*types.Message, error) {
	v, err := e.createVote("prevote", blockHash)
	if err != nil {
		return nil, err
	}
	return NewPrevoteMessage(v)
}

// CreatePrecommit builds a signed precommit for the current slot. A
// nil blockHash precommits nil.
func (e *Engine) CreatePrecommit(blockHash *string) (*types.Message, error) {
	v, err := e.createVote("precommit", blockHash)
	if err != nil {
		return nil, err
	}
	return NewPrecommitMessage(v)
}

func (e *Engine) createVote(step string, blockHash *string) (VoteMsg, error) {
	e.mu.RLock()
	height, round := e.height, e.round
	e.mu.RUnlock()

	if e.signer == nil {
		return VoteMsg{}, ErrNoSigner
	}
	sig, err := e.signer.Sign(voteSignBytes(step, height, round, blockHash))
	if err != nil {
		return VoteMsg{}, fmt.Errorf("sign %s: %w", step, err)
	}
	return VoteMsg{
		Height:    height,
		Round:     round,
		BlockHash: blockHash,
		Validator: e.address,
		Timestamp: time.Now().UTC(),
		Signature: sig,
	}, nil
}

// Digest is "<height>:<round>", enough for replicas to spot divergent
// progress cheaply.
func (e *Engine) Digest() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("%d:%d", e.height, e.round), nil
}

type engineState struct {
	Height     uint64          `json:"height"`
	Round      uint32          `json:"round"`
	Validators []ValidatorInfo `json:"validators"`
	Blocks     []Block         `json:"blocks"`
}

// State snapshots the chain, the validator set, and the current
// position.
func (e *Engine) State() (json.RawMessage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, err := json.Marshal(engineState{
		Height:     e.height,
		Round:      e.round,
		Validators: e.validatorList(),
		Blocks:     e.blocks,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal engine state: %w", err)
	}
	return b, nil
}

// Reset returns the engine to genesis: height 1, round 0, only the
// genesis block, no validators, no recorded votes.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validators = make(map[string]ValidatorInfo)
	e.blocks = []Block{genesisBlock()}
	e.height = 1
	e.round = 0
	e.proposals = make(map[roundKey]ProposalMsg)
	e.prevotes = make(map[roundKey]map[string]VoteMsg)
	e.precommits = make(map[roundKey]map[string]VoteMsg)
	e.lockedBlock = ""
	e.lockedRound = 0
	e.seen = make(map[string]bool)
	return nil
}

// Clone returns a deep copy sharing the original's id and signer.
func (e *Engine) Clone() object.Object {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp := &Engine{
		id:          e.id,
		validators:  make(map[string]ValidatorInfo, len(e.validators)),
		blocks:      make([]Block, len(e.blocks)),
		height:      e.height,
		round:       e.round,
		proposals:   make(map[roundKey]ProposalMsg, len(e.proposals)),
		prevotes:    copyVotes(e.prevotes),
		precommits:  copyVotes(e.precommits),
		lockedBlock: e.lockedBlock,
		lockedRound: e.lockedRound,
		seen:        make(map[string]bool, len(e.seen)),
		signer:      e.signer,
		address:     e.address,
		log:         e.log,
	}
	for addr, v := range e.validators {
		cp.validators[addr] = v
	}
	for i, b := range e.blocks {
		cp.blocks[i] = copyBlock(b)
	}
	for key, p := range e.proposals {
		cp.proposals[key] = p
	}
	for hash := range e.seen {
		cp.seen[hash] = true
	}
	return cp
}

func copyVotes(votes map[roundKey]map[string]VoteMsg) map[roundKey]map[string]VoteMsg {
	out := make(map[roundKey]map[string]VoteMsg, len(votes))
	for key, slot := range votes {
		cp := make(map[string]VoteMsg, len(slot))
		for addr, v := range slot {
			cp[addr] = v
		}
		out[key] = cp
	}
	return out
}

func copyBlock(b Block) Block {
	if b.Txs != nil {
		txs := make([]json.RawMessage, len(b.Txs))
		for i, tx := range b.Txs {
			txs[i] = append(json.RawMessage(nil), tx...)
		}
		b.Txs = txs
	}
	if b.Signatures != nil {
		sigs := make(map[string]crypto.HexBytes, len(b.Signatures))
		for addr, sig := range b.Signatures {
			sigs[addr] = append(crypto.HexBytes(nil), sig...)
		}
		b.Signatures = sigs
	}
	return b
}
