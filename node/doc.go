// Package node is the library-level entry point tying the framework
// together: it owns an object registry and a message store, gates
// every inbound message on its content hash, persists what it accepts,
// and dispatches to the registered state objects.
//
// The node is transport-agnostic. Whatever moves bytes between peers
// hands decoded messages to Submit; everything from integrity checking
// onward happens here.
package node
