package object

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/blockberries/craftberry/crypto"
	"github.com/blockberries/craftberry/types"
)

// SharedCounterType is the type name shared by all SharedCounter
// instances.
const SharedCounterType = "SharedCounter"

var _ Object = (*SharedCounter)(nil)

// SharedCounter is the reference state object: it sums every integer
// payload it sees, exactly once per distinct payload content. It
// demonstrates the content-hash dedup contract in its simplest form.
type SharedCounter struct {
	mu    sync.RWMutex
	id    types.ID
	total int64
	seen  map[string]bool
}

// NewSharedCounter returns a counter at zero with a fresh id.
func NewSharedCounter() *SharedCounter {
	return &SharedCounter{
		id:   types.NewID(),
		seen: make(map[string]bool),
	}
}

func (c *SharedCounter) ID() types.ID     { return c.id }
func (c *SharedCounter) TypeName() string { return SharedCounterType }

// IsValid accepts messages whose payload is a bare integer.
func (c *SharedCounter) IsValid(msg *types.Message) (bool, error) {
	var n int64
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return false, nil
	}
	return true, nil
}

// Apply adds the payload integer to the total unless the same payload
// content was already applied.
func (c *SharedCounter) Apply(msg *types.Message) error {
	var n int64
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return fmt.Errorf("counter payload: %w", err)
	}
	key := crypto.HashHex(msg.Payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[key] {
		return nil
	}
	c.seen[key] = true
	c.total += n
	return nil
}

// Digest is the current total in decimal.
func (c *SharedCounter) Digest() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strconv.FormatInt(c.total, 10), nil
}

type counterState struct {
	Total int64 `json:"total"`
	Seen  int   `json:"seen"`
}

func (c *SharedCounter) State() (json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, err := json.Marshal(counterState{Total: c.total, Seen: len(c.seen)})
	if err != nil {
		return nil, fmt.Errorf("marshal counter state: %w", err)
	}
	return b, nil
}

func (c *SharedCounter) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = 0
	c.seen = make(map[string]bool)
	return nil
}

// Total returns the current sum.
func (c *SharedCounter) Total() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}

// Clone returns a deep copy sharing the original's id.
func (c *SharedCounter) Clone() Object {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]bool, len(c.seen))
	for k := range c.seen {
		seen[k] = true
	}
	return &SharedCounter{id: c.id, total: c.total, seen: seen}
}
