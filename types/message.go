package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blockberries/craftberry/crypto"
)

var (
	// ErrHashMismatch is returned when a message's content_hash does not
	// match its hashed fields.
	ErrHashMismatch = errors.New("content hash mismatch")

	// ErrNoSignature is returned when signature verification is requested
	// on an unsigned message.
	ErrNoSignature = errors.New("message is not signed")

	// ErrInvalidSignature is returned when a signature is present but
	// does not verify against the given public key.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Message is the envelope exchanged between nodes. All fields that
// participate in the content hash (id, kind, payload, timestamp) are
// fixed at construction; Target and Signature are excluded from the
// hash so routing and signing do not invalidate it.
type Message struct {
	ID          ID              `json:"id"`
	Kind        Kind            `json:"kind"`
	Target      *ID             `json:"target,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
	Signature   []byte          `json:"signature,omitempty"`
	ContentHash string          `json:"content_hash"`
}

// NewMessage builds an untargeted message around the given payload and
// stamps it with a fresh id, the current time, and its content hash.
// The payload is marshaled once; a payload that cannot be marshaled is
// a caller bug and returns an error.
func NewMessage(kind Kind, payload any) (*Message, error) {
	return newMessage(kind, nil, payload)
}

// NewMessageWithTarget is NewMessage addressed to a specific object.
func NewMessageWithTarget(kind Kind, target ID, payload any) (*Message, error) {
	return newMessage(kind, &target, payload)
}

func newMessage(kind Kind, target *ID, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	m := &Message{
		ID:        NewID(),
		Kind:      kind,
		Target:    target,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}
	m.ContentHash = m.ComputeHash()
	return m, nil
}

// ComputeHash returns the hex sha256 over the message's hashed fields:
// raw id bytes, kind token, compact payload encoding, and the
// timestamp in RFC3339 with nanoseconds.
func (m *Message) ComputeHash() string {
	h := sha256.New()
	h.Write(m.ID.UUID[:])
	h.Write([]byte(m.Kind.hashToken()))
	h.Write(compactJSON(m.Payload))
	h.Write([]byte(m.Timestamp.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash checks the stored content hash against the hashed fields.
func (m *Message) VerifyHash() error {
	if m.ContentHash != m.ComputeHash() {
		return fmt.Errorf("%w: message %s", ErrHashMismatch, m.ID)
	}
	return nil
}

// SignBytes returns the canonical encoding the signature covers: the
// full message with the signature field absent.
func (m *Message) SignBytes() ([]byte, error) {
	clone := *m
	clone.Signature = nil
	b, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("encode sign bytes: %w", err)
	}
	return b, nil
}

// Sign attaches a signature over SignBytes. Re-signing replaces the
// previous signature.
func (m *Message) Sign(signer crypto.Signer) error {
	sb, err := m.SignBytes()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(sb)
	if err != nil {
		return fmt.Errorf("sign message %s: %w", m.ID, err)
	}
	m.Signature = sig
	return nil
}

// VerifySignature checks the attached signature against pub. An
// unsigned message is an error, not a silent pass.
func (m *Message) VerifySignature(pub crypto.PublicKey) error {
	if len(m.Signature) == 0 {
		return fmt.Errorf("%w: message %s", ErrNoSignature, m.ID)
	}
	sb, err := m.SignBytes()
	if err != nil {
		return err
	}
	ok, err := crypto.Verify(pub, sb, m.Signature)
	if err != nil {
		return fmt.Errorf("verify message %s: %w", m.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: message %s", ErrInvalidSignature, m.ID)
	}
	return nil
}

// UnmarshalPayload decodes the payload into v.
func (m *Message) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("unmarshal payload of %s message %s: %w", m.Kind, m.ID, err)
	}
	return nil
}

// Encode serializes the message for the wire.
func (m *Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// Decode parses a wire-encoded message. It does not verify the content
// hash; callers gate on VerifyHash before acting on the message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// compactJSON strips insignificant whitespace so hashing is stable
// across re-encodings.
func compactJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
