package types

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit globally-unique identifier. IDs carry no ordering or
// locality information; equality is the only meaningful comparison.
type ID struct {
	uuid.UUID
}

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID{uuid.New()}
}

// ParseID parses the canonical string form produced by ID.String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID{u}, nil
}

// IsZero reports whether the id is the all-zero identifier.
func (id ID) IsZero() bool {
	return id.UUID == uuid.Nil
}
