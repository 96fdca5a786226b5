// Package crypto is the signing collaborator: key generation, message
// signing and verification, content hashing, and validator address
// derivation.
//
// Keys carry an explicit algorithm tag so mixed-scheme deployments fail
// closed: verifying with a key of the wrong algorithm reports an
// invalid signature rather than an error. Ed25519 is the only scheme
// currently wired.
//
// The Signer interface decouples message signing from key custody so a
// remote or hardware-backed signer can replace the in-process
// LocalSigner without touching callers.
package crypto
