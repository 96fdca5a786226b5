// Package types defines the identity and message model shared by every
// Craftberry node.
//
// # Core Types
//
// ID is a 128-bit globally-unique identifier with no ordering
// semantics. It is used for message ids and object ids; generated
// locally, never reused.
//
// Kind is a message kind, either one of the well-known kinds
// (PEER_DISCOVERY, GET, SET, ...) or an open custom kind carrying an
// application-chosen name. Well-known kinds serialize as upper-case
// token strings; custom kinds serialize as {"Custom": "<name>"}. Both
// forms are accepted on deserialization.
//
// Message is the signed, content-hashed envelope exchanged between
// nodes. The content hash covers (id, kind, payload, timestamp) and is
// filled at construction; the signature, when present, covers the
// canonical encoding of every field except the signature itself.
//
// # Immutability
//
// A Message is immutable after construction except for signature
// attachment via Sign. Mutating any hashed field without recomputing
// the hash makes VerifyHash fail, and such messages are rejected
// before dispatch.
//
// # Serialization
//
// Messages travel as self-describing JSON with significant field names
// (id, kind, target, payload, timestamp, signature, content_hash).
// Encode and Decode are the wire entry points.
package types
