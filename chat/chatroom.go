package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blockberries/craftberry/crypto"
	"github.com/blockberries/craftberry/object"
	"github.com/blockberries/craftberry/types"
)

// TypeName is the chat object's type label.
const TypeName = "Chatroom"

// KindName is the custom message kind chat traffic travels under.
const KindName = "CHATROOM"

// Kind returns the message kind for chat traffic.
func Kind() types.Kind {
	return types.CustomKind(KindName)
}

// Actions a chat payload can carry.
const (
	ActionCreateChatroom = "CREATE_CHATROOM"
	ActionRequestJoin    = "REQUEST_JOIN"
	ActionAcceptMember   = "ACCEPT_MEMBER"
	ActionPostMessage    = "POST_MESSAGE"
)

// maxClockSkew bounds how far a payload timestamp may drift from local
// time before the action is considered stale or premature.
const maxClockSkew = 15 * time.Second

var (
	// ErrStaleAction is returned when a payload timestamp is outside the
	// freshness window.
	ErrStaleAction = errors.New("action timestamp outside freshness window")

	// ErrBadSignature is returned when a payload signature does not
	// verify against the sender's key.
	ErrBadSignature = errors.New("bad action signature")

	// ErrRoomExists is returned when creating a room whose name is
	// taken.
	ErrRoomExists = errors.New("chatroom already exists")

	// ErrNoSuchRoom is returned when acting on an unknown room.
	ErrNoSuchRoom = errors.New("chatroom does not exist")

	// ErrNotAdmin is returned when a non-admin tries to accept a member.
	ErrNotAdmin = errors.New("sender is not the chatroom admin")

	// ErrNotMember is returned when a non-member posts.
	ErrNotMember = errors.New("sender is not a chatroom member")

	// ErrNotPending is returned when accepting a key that never
	// requested to join.
	ErrNotPending = errors.New("no pending join request for key")
)

var _ object.Object = (*Object)(nil)

// actionPayload is the signed body of every chat message. The
// signature covers the payload's canonical encoding with the signature
// field removed.
type actionPayload struct {
	Action       string            `json:"action"`
	ChatroomName string            `json:"chatroom_name"`
	PublicKey    crypto.PublicKey  `json:"public_key"`
	RequesterKey *crypto.PublicKey `json:"requester_key,omitempty"`
	Message      string            `json:"message,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	Signature    crypto.HexBytes   `json:"signature,omitempty"`
}

func (p *actionPayload) signBytes() ([]byte, error) {
	clone := *p
	clone.Signature = nil
	b, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("encode action sign bytes: %w", err)
	}
	return b, nil
}

func (p *actionPayload) sign(signer crypto.Signer) error {
	sb, err := p.signBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(sb)
	if err != nil {
		return fmt.Errorf("sign action: %w", err)
	}
	p.Signature = sig
	return nil
}

func (p *actionPayload) verify() error {
	sb, err := p.signBytes()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(p.PublicKey, sb, p.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: action %s", ErrBadSignature, p.Action)
	}
	return nil
}

func knownAction(a string) bool {
	switch a {
	case ActionCreateChatroom, ActionRequestJoin, ActionAcceptMember, ActionPostMessage:
		return true
	}
	return false
}

// ChatMessage is one posted message.
type ChatMessage struct {
	Sender    crypto.PublicKey `json:"sender"`
	Text      string           `json:"text"`
	Timestamp int64            `json:"timestamp"`
}

// Chatroom is one room's full state.
type Chatroom struct {
	Name     string             `json:"name"`
	Admin    crypto.PublicKey   `json:"admin"`
	Members  []crypto.PublicKey `json:"members"`
	Pending  []crypto.PublicKey `json:"pending"`
	Messages []ChatMessage      `json:"messages"`
}

func (r *Chatroom) isMember(key crypto.PublicKey) bool {
	for _, m := range r.Members {
		if m.Equal(key) {
			return true
		}
	}
	return false
}

func (r *Chatroom) isPending(key crypto.PublicKey) bool {
	for _, p := range r.Pending {
		if p.Equal(key) {
			return true
		}
	}
	return false
}

func (r *Chatroom) removePending(key crypto.PublicKey) {
	for i, p := range r.Pending {
		if p.Equal(key) {
			r.Pending = append(r.Pending[:i], r.Pending[i+1:]...)
			return
		}
	}
}

func (r *Chatroom) clone() *Chatroom {
	cp := &Chatroom{
		Name:     r.Name,
		Admin:    r.Admin,
		Members:  append([]crypto.PublicKey(nil), r.Members...),
		Pending:  append([]crypto.PublicKey(nil), r.Pending...),
		Messages: append([]ChatMessage(nil), r.Messages...),
	}
	return cp
}

// Object is the chatroom state object.
type Object struct {
	mu    sync.RWMutex
	id    types.ID
	rooms map[string]*Chatroom
	seen  map[string]bool
	now   func() time.Time
}

// NewObject returns an empty chat object with a fresh id.
func NewObject() *Object {
	return &Object{
		id:    types.NewID(),
		rooms: make(map[string]*Chatroom),
		seen:  make(map[string]bool),
		now:   time.Now,
	}
}

func (o *Object) ID() types.ID     { return o.id }
func (o *Object) TypeName() string { return TypeName }

// IsValid accepts chat-kind messages whose payload parses and names a
// known action. Signature and permission failures are Apply errors,
// not validity failures: the message was for us, we just refuse it.
func (o *Object) IsValid(msg *types.Message) (bool, error) {
	if msg.Kind != Kind() {
		return false, nil
	}
	var p actionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return false, nil
	}
	return knownAction(p.Action), nil
}

// Apply verifies the action's signature and freshness, then runs it
// against the room state. Replays of the same content are no-ops.
func (o *Object) Apply(msg *types.Message) error {
	var p actionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("chat payload: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[msg.ContentHash] {
		return nil
	}

	if err := p.verify(); err != nil {
		return err
	}
	if skew := o.now().UTC().Sub(time.Unix(p.Timestamp, 0)); skew > maxClockSkew || skew < -maxClockSkew {
		return fmt.Errorf("%w: action %s in room %q", ErrStaleAction, p.Action, p.ChatroomName)
	}

	if err := o.apply(&p); err != nil {
		return err
	}
	o.seen[msg.ContentHash] = true
	return nil
}

func (o *Object) apply(p *actionPayload) error {
	switch p.Action {
	case ActionCreateChatroom:
		if _, ok := o.rooms[p.ChatroomName]; ok {
			return fmt.Errorf("%w: %q", ErrRoomExists, p.ChatroomName)
		}
		o.rooms[p.ChatroomName] = &Chatroom{
			Name:    p.ChatroomName,
			Admin:   p.PublicKey,
			Members: []crypto.PublicKey{p.PublicKey},
		}
		return nil

	case ActionRequestJoin:
		room, ok := o.rooms[p.ChatroomName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoSuchRoom, p.ChatroomName)
		}
		if room.isMember(p.PublicKey) || room.isPending(p.PublicKey) {
			return nil
		}
		room.Pending = append(room.Pending, p.PublicKey)
		return nil

	case ActionAcceptMember:
		room, ok := o.rooms[p.ChatroomName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoSuchRoom, p.ChatroomName)
		}
		if !room.Admin.Equal(p.PublicKey) {
			return fmt.Errorf("%w: room %q", ErrNotAdmin, p.ChatroomName)
		}
		if p.RequesterKey == nil || !room.isPending(*p.RequesterKey) {
			return fmt.Errorf("%w: room %q", ErrNotPending, p.ChatroomName)
		}
		room.removePending(*p.RequesterKey)
		room.Members = append(room.Members, *p.RequesterKey)
		return nil

	case ActionPostMessage:
		room, ok := o.rooms[p.ChatroomName]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoSuchRoom, p.ChatroomName)
		}
		if !room.isMember(p.PublicKey) {
			return fmt.Errorf("%w: room %q", ErrNotMember, p.ChatroomName)
		}
		room.Messages = append(room.Messages, ChatMessage{
			Sender:    p.PublicKey,
			Text:      p.Message,
			Timestamp: p.Timestamp,
		})
		return nil

	default:
		return fmt.Errorf("chat action %q not recognized", p.Action)
	}
}

// Room returns a copy of the named room's state.
func (o *Object) Room(name string) (*Chatroom, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	room, ok := o.rooms[name]
	if !ok {
		return nil, false
	}
	return room.clone(), true
}

// Digest is the hex hash of the canonical room state.
func (o *Object) Digest() (string, error) {
	state, err := o.State()
	if err != nil {
		return "", err
	}
	return crypto.HashHex(state), nil
}

// State snapshots every room, keyed by name.
func (o *Object) State() (json.RawMessage, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, err := json.Marshal(o.rooms)
	if err != nil {
		return nil, fmt.Errorf("marshal chat state: %w", err)
	}
	return b, nil
}

// Reset drops every room and the dedup record.
func (o *Object) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rooms = make(map[string]*Chatroom)
	o.seen = make(map[string]bool)
	return nil
}

// Clone returns a deep copy sharing the original's id.
func (o *Object) Clone() object.Object {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cp := &Object{
		id:    o.id,
		rooms: make(map[string]*Chatroom, len(o.rooms)),
		seen:  make(map[string]bool, len(o.seen)),
		now:   o.now,
	}
	for name, room := range o.rooms {
		cp.rooms[name] = room.clone()
	}
	for hash := range o.seen {
		cp.seen[hash] = true
	}
	return cp
}

// newActionMessage fills the common payload fields, lets build add
// action-specific ones, signs the result, and wraps it in a message.
func newActionMessage(signer crypto.Signer, action, room string, build func(*actionPayload)) (*types.Message, error) {
	p := actionPayload{
		Action:       action,
		ChatroomName: room,
		PublicKey:    signer.PublicKey(),
		Timestamp:    time.Now().UTC().Unix(),
	}
	if build != nil {
		build(&p)
	}
	if err := p.sign(signer); err != nil {
		return nil, err
	}
	return types.NewMessage(Kind(), &p)
}

// NewCreateMessage builds a signed CREATE_CHATROOM message.
func NewCreateMessage(signer crypto.Signer, room string) (*types.Message, error) {
	return newActionMessage(signer, ActionCreateChatroom, room, nil)
}

// NewJoinRequestMessage builds a signed REQUEST_JOIN message.
func NewJoinRequestMessage(signer crypto.Signer, room string) (*types.Message, error) {
	return newActionMessage(signer, ActionRequestJoin, room, nil)
}

// NewAcceptMessage builds a signed ACCEPT_MEMBER message approving
// requester.
func NewAcceptMessage(signer crypto.Signer, room string, requester crypto.PublicKey) (*types.Message, error) {
	return newActionMessage(signer, ActionAcceptMember, room, func(p *actionPayload) {
		p.RequesterKey = &requester
	})
}

// NewPostMessage builds a signed POST_MESSAGE message.
func NewPostMessage(signer crypto.Signer, room, text string) (*types.Message, error) {
	return newActionMessage(signer, ActionPostMessage, room, func(p *actionPayload) {
		p.Message = text
	})
}
