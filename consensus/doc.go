// Package consensus implements a Tendermint-style BFT consensus state
// machine as a replicated state object, plus the quorum arithmetic it
// is built on.
//
// The Engine tracks a voting-power-weighted validator set and a chain
// of committed blocks starting from a fixed genesis block at height 0.
// Consensus messages (proposal, prevote, precommit, validator set,
// block commit) arrive through the ordinary object dispatch path as an
// externally-tagged payload union; the engine records them per
// (height, round) slot and exposes the resulting tallies.
//
// Commit requires a strict greater-than-two-thirds precommit quorum
// for a specific block hash; nil votes count toward no candidate. The
// engine does no timeout or round scheduling of its own: round
// advancement and proposal creation are driven by the embedding
// application.
package consensus
