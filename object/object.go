package object

import (
	"encoding/json"

	"github.com/blockberries/craftberry/types"
)

// Object is the capability contract a replicated state object
// implements to participate in dispatch.
//
// Implementations are responsible for their own locking: the registry
// may be driven from multiple goroutines and serializes dispatch, but
// accessors like Digest and State can race with Apply unless the
// object guards its state.
type Object interface {
	// ID returns the object's stable identity. It never changes over the
	// object's lifetime.
	ID() types.ID

	// TypeName returns the object's type label, shared by all instances
	// of the same kind of object.
	TypeName() string

	// IsValid reports whether the message is relevant and well-formed
	// for this object. A message the object does not recognize is
	// (false, nil), not an error; errors are reserved for failures
	// evaluating the message at all.
	IsValid(msg *types.Message) (bool, error)

	// Apply folds a message the object accepted into its state. Apply
	// must be idempotent with respect to message content: applying the
	// same content twice leaves the state as if applied once.
	Apply(msg *types.Message) error

	// Digest returns a compact summary of the current state for
	// replica comparison.
	Digest() (string, error)

	// State returns a serialized snapshot of the full state.
	State() (json.RawMessage, error)

	// Reset returns the object to its initial state.
	Reset() error

	// Clone returns an independent deep copy. Mutating the clone never
	// affects the original.
	Clone() Object
}
