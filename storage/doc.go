// Package storage is the key-value persistence collaborator. The node
// stores accepted messages through the Store interface keyed by
// content hash; state objects may keep snapshots through it as well.
//
// Two backends are provided: MemoryStore for tests and ephemeral
// nodes, and LevelStore over LevelDB for durable nodes. Both satisfy
// the same contract, and the contract tests run against both.
package storage
