package object

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/craftberry/types"
)

// scriptedObject lets tests control validity and apply outcomes.
type scriptedObject struct {
	id       types.ID
	typeName string
	valid    bool
	applyErr error
	applied  []*types.Message
}

func newScriptedObject(typeName string) *scriptedObject {
	return &scriptedObject{id: types.NewID(), typeName: typeName, valid: true}
}

func (o *scriptedObject) ID() types.ID                             { return o.id }
func (o *scriptedObject) TypeName() string                         { return o.typeName }
func (o *scriptedObject) IsValid(msg *types.Message) (bool, error) { return o.valid, nil }
func (o *scriptedObject) Digest() (string, error)                  { return "", nil }
func (o *scriptedObject) State() (json.RawMessage, error)          { return json.RawMessage(`{}`), nil }
func (o *scriptedObject) Reset() error                             { return nil }
func (o *scriptedObject) Clone() Object                            { cp := *o; return &cp }

func (o *scriptedObject) Apply(msg *types.Message) error {
	if o.applyErr != nil {
		return o.applyErr
	}
	o.applied = append(o.applied, msg)
	return nil
}

func makeMsg(t *testing.T, payload any) *types.Message {
	t.Helper()
	m, err := types.NewMessage(types.KindNotification, payload)
	require.NoError(t, err)
	return m
}

func TestRegistryRegisterGetRemove(t *testing.T) {
	r := NewRegistry(nil)
	obj := newScriptedObject("A")

	require.NoError(t, r.Register(obj))
	require.ErrorIs(t, r.Register(obj), ErrObjectExists)

	got, err := r.Get(obj.ID())
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	require.NoError(t, r.Remove(obj.ID()))
	_, err = r.Get(obj.ID())
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, r.Remove(obj.ID()), ErrObjectNotFound)
}

func TestRegistryTypeIndexConsistency(t *testing.T) {
	r := NewRegistry(nil)
	a1 := newScriptedObject("A")
	a2 := newScriptedObject("A")
	b := newScriptedObject("B")
	for _, o := range []*scriptedObject{a1, a2, b} {
		require.NoError(t, r.Register(o))
	}

	assert.Len(t, r.ByType("A"), 2)
	assert.Len(t, r.ByType("B"), 1)
	assert.Empty(t, r.ByType("C"))

	require.NoError(t, r.Remove(a1.ID()))
	as := r.ByType("A")
	require.Len(t, as, 1)
	assert.Equal(t, a2.ID(), as[0].ID())

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.ByType("A"))
	assert.Empty(t, r.IDs())
}

func TestRegistryDispatchOrder(t *testing.T) {
	r := NewRegistry(nil)
	first := newScriptedObject("A")
	second := newScriptedObject("B")
	third := newScriptedObject("A")
	for _, o := range []*scriptedObject{first, second, third} {
		require.NoError(t, r.Register(o))
	}
	second.valid = false

	msg := makeMsg(t, 7)
	accepted, err := r.Dispatch(msg)
	require.NoError(t, err)

	assert.Equal(t, []types.ID{first.ID(), third.ID()}, accepted)
	assert.Len(t, first.applied, 1)
	assert.Empty(t, second.applied)
	assert.Len(t, third.applied, 1)
}

func TestRegistryDispatchErrorIsolation(t *testing.T) {
	r := NewRegistry(nil)
	failing := newScriptedObject("A")
	failing.applyErr = errors.New("disk full")
	healthy := newScriptedObject("B")
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(healthy))

	accepted, err := r.Dispatch(makeMsg(t, 7))

	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, []types.ID{healthy.ID()}, accepted)
	assert.Len(t, healthy.applied, 1)
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(nil)
	obj := newScriptedObject("A")
	require.NoError(t, r.Register(obj))

	r.Close()

	_, err := r.Dispatch(makeMsg(t, 1))
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, r.Register(newScriptedObject("B")), ErrRegistryClosed)

	// Reads stay available after close.
	got, err := r.Get(obj.ID())
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}
