// Package object defines the capability contract replicated state
// objects implement and the registry that fans messages out to them.
//
// An Object owns one deterministic piece of replicated state. It
// receives every message the registry dispatches, decides relevance
// with IsValid, and folds relevant messages into its state with Apply.
// Apply must be idempotent: objects dedup by content hash so redelivery
// over a gossipy transport cannot double-apply. Digest summarizes the
// state for anti-entropy comparison and State snapshots it for
// synchronization.
//
// The Registry is the dispatch plane. Objects see messages in their
// registration order, every registered object sees every message, and
// one object's apply failure never hides the message from its
// siblings.
//
// SharedCounter is the minimal reference implementation of the
// contract, useful both as an example and as a test fixture.
package object
