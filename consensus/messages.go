package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blockberries/craftberry/crypto"
	"github.com/blockberries/craftberry/types"
)

// KindName is the custom message kind consensus traffic travels under.
const KindName = "TENDERMINT"

// Kind returns the message kind for consensus traffic.
func Kind() types.Kind {
	return types.CustomKind(KindName)
}

// ValidatorInfo describes one member of the validator set. Inactive
// validators stay listed but carry no weight in any tally or total.
type ValidatorInfo struct {
	Address           string           `json:"address"`
	PublicKey         crypto.PublicKey `json:"public_key"`
	Power             uint64           `json:"power"`
	Active            bool             `json:"active"`
	LastParticipation time.Time        `json:"last_participation"`
}

// Block is a committed entry in the chain. Signatures maps validator
// addresses to the precommit signatures that justified the commit; the
// genesis block carries none.
type Block struct {
	Height     uint64                     `json:"height"`
	Hash       string                     `json:"hash"`
	PrevHash   string                     `json:"prev_hash,omitempty"`
	Time       time.Time                  `json:"time"`
	Proposer   string                     `json:"proposer,omitempty"`
	Txs        []json.RawMessage          `json:"txs,omitempty"`
	Signatures map[string]crypto.HexBytes `json:"signatures,omitempty"`
}

// GenesisHash is the fixed hash of the height-0 genesis block every
// replica starts from.
const GenesisHash = "genesis_hash"

// ProposalMsg proposes a block hash for one (height, round) slot.
type ProposalMsg struct {
	Height    uint64          `json:"height"`
	Round     uint32          `json:"round"`
	BlockHash string          `json:"block_hash"`
	Proposer  string          `json:"proposer"`
	Signature crypto.HexBytes `json:"signature,omitempty"`
}

// VoteMsg is a prevote or precommit. A nil BlockHash is a nil vote:
// the validator saw nothing it could endorse this round.
type VoteMsg struct {
	Height    uint64          `json:"height"`
	Round     uint32          `json:"round"`
	BlockHash *string         `json:"block_hash"`
	Validator string          `json:"validator"`
	Timestamp time.Time       `json:"timestamp"`
	Signature crypto.HexBytes `json:"signature,omitempty"`
}

// Candidate returns the tally key the vote counts toward.
func (v VoteMsg) Candidate() string {
	if v.BlockHash == nil {
		return NilCandidate
	}
	return *v.BlockHash
}

// ValidatorSetMsg merges validators into the engine's live validator
// map, keyed by address. Updates are not height-scoped.
type ValidatorSetMsg struct {
	Validators []ValidatorInfo `json:"validators"`
}

// BlockCommitMsg announces a block another replica committed.
type BlockCommitMsg struct {
	Block Block `json:"block"`
}

// Payload is the externally-tagged union carried by consensus
// messages. Exactly one field is set.
type Payload struct {
	Proposal     *ProposalMsg     `json:"Proposal,omitempty"`
	Prevote      *VoteMsg         `json:"Prevote,omitempty"`
	Precommit    *VoteMsg         `json:"Precommit,omitempty"`
	ValidatorSet *ValidatorSetMsg `json:"ValidatorSet,omitempty"`
	BlockCommit  *BlockCommitMsg  `json:"BlockCommit,omitempty"`
}

func (p *Payload) variants() int {
	n := 0
	if p.Proposal != nil {
		n++
	}
	if p.Prevote != nil {
		n++
	}
	if p.Precommit != nil {
		n++
	}
	if p.ValidatorSet != nil {
		n++
	}
	if p.BlockCommit != nil {
		n++
	}
	return n
}

// ParsePayload strictly decodes a consensus payload: unknown tags are
// rejected, and exactly one variant must be present.
func ParsePayload(raw json.RawMessage) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse consensus payload: %w", err)
	}
	if p.variants() != 1 {
		return nil, ErrAmbiguousPayload
	}
	return &p, nil
}

// NewProposalMessage wraps a proposal in a dispatchable message.
func NewProposalMessage(p ProposalMsg) (*types.Message, error) {
	return types.NewMessage(Kind(), Payload{Proposal: &p})
}

// NewPrevoteMessage wraps a prevote in a dispatchable message.
func NewPrevoteMessage(v VoteMsg) (*types.Message, error) {
	return types.NewMessage(Kind(), Payload{Prevote: &v})
}

// NewPrecommitMessage wraps a precommit in a dispatchable message.
func NewPrecommitMessage(v VoteMsg) (*types.Message, error) {
	return types.NewMessage(Kind(), Payload{Precommit: &v})
}

// NewValidatorSetMessage wraps a validator set update in a
// dispatchable message.
func NewValidatorSetMessage(vals []ValidatorInfo) (*types.Message, error) {
	return types.NewMessage(Kind(), Payload{ValidatorSet: &ValidatorSetMsg{Validators: vals}})
}

// NewBlockCommitMessage wraps a committed block announcement in a
// dispatchable message.
func NewBlockCommitMessage(b Block) (*types.Message, error) {
	return types.NewMessage(Kind(), Payload{BlockCommit: &BlockCommitMsg{Block: b}})
}

// proposalSignBytes is the canonical content a proposal signature
// covers.
func proposalSignBytes(height uint64, round uint32, blockHash string) []byte {
	return []byte(fmt.Sprintf("proposal:%d:%d:%s", height, round, blockHash))
}

// voteSignBytes is the canonical content a vote signature covers. Nil
// votes sign the literal token "nil".
func voteSignBytes(step string, height uint64, round uint32, blockHash *string) []byte {
	h := "nil"
	if blockHash != nil {
		h = *blockHash
	}
	return []byte(fmt.Sprintf("%s:%d:%d:%s", step, height, round, h))
}
