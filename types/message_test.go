package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/blockberries/craftberry/crypto"
)

func makeTestMessage(t *testing.T) *Message {
	t.Helper()
	m, err := NewMessage(KindSet, map[string]any{"key": "color", "value": "green"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	return m
}

func TestMessageHashFilledAtConstruction(t *testing.T) {
	m := makeTestMessage(t)
	if m.ContentHash == "" {
		t.Fatal("content hash empty after construction")
	}
	if len(m.ContentHash) != 64 {
		t.Errorf("content hash is %d chars, want 64 hex chars", len(m.ContentHash))
	}
	if err := m.VerifyHash(); err != nil {
		t.Errorf("fresh message fails hash check: %v", err)
	}
}

func TestMessageHashDetectsTampering(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Message)
	}{
		{"payload", func(m *Message) { m.Payload = json.RawMessage(`{"key":"color","value":"red"}`) }},
		{"timestamp", func(m *Message) { m.Timestamp = m.Timestamp.Add(time.Second) }},
		{"kind", func(m *Message) { m.Kind = KindGet }},
		{"id", func(m *Message) { m.ID = NewID() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := makeTestMessage(t)
			tc.mutate(m)
			if err := m.VerifyHash(); !errors.Is(err, ErrHashMismatch) {
				t.Errorf("got %v, want ErrHashMismatch", err)
			}
		})
	}
}

func TestMessageHashIgnoresRouting(t *testing.T) {
	m := makeTestMessage(t)
	target := NewID()
	m.Target = &target
	if err := m.VerifyHash(); err != nil {
		t.Errorf("target change invalidated hash: %v", err)
	}
}

func TestMessageSignVerify(t *testing.T) {
	signer, err := crypto.NewLocalSigner()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	m := makeTestMessage(t)

	if err := m.VerifySignature(signer.PublicKey()); !errors.Is(err, ErrNoSignature) {
		t.Errorf("unsigned verify: got %v, want ErrNoSignature", err)
	}

	if err := m.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := m.VerifySignature(signer.PublicKey()); err != nil {
		t.Errorf("verify: %v", err)
	}

	other, err := crypto.NewLocalSigner()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if err := m.VerifySignature(other.PublicKey()); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key verify: got %v, want ErrInvalidSignature", err)
	}
}

func TestMessageSignatureCoversPayload(t *testing.T) {
	signer, err := crypto.NewLocalSigner()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	m := makeTestMessage(t)
	if err := m.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	m.Payload = json.RawMessage(`{"key":"color","value":"red"}`)
	if err := m.VerifySignature(signer.PublicKey()); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered payload verified: %v", err)
	}
}

func TestMessageWireRoundTrip(t *testing.T) {
	signer, err := crypto.NewLocalSigner()
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	target := NewID()
	m, err := NewMessageWithTarget(CustomKind("TENDERMINT"), target, map[string]any{"round": 3})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := m.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}

	wire, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.ID != m.ID {
		t.Errorf("id: got %v, want %v", got.ID, m.ID)
	}
	if got.Kind != m.Kind {
		t.Errorf("kind: got %v, want %v", got.Kind, m.Kind)
	}
	if got.Target == nil || *got.Target != target {
		t.Errorf("target: got %v, want %v", got.Target, target)
	}
	if got.ContentHash != m.ContentHash {
		t.Errorf("content hash: got %s, want %s", got.ContentHash, m.ContentHash)
	}
	if err := got.VerifyHash(); err != nil {
		t.Errorf("decoded message fails hash check: %v", err)
	}
	if err := got.VerifySignature(signer.PublicKey()); err != nil {
		t.Errorf("decoded message fails signature check: %v", err)
	}
}

func TestMessageHashStableAcrossReencoding(t *testing.T) {
	// The payload travels as raw JSON; whitespace introduced by a relay
	// re-encoding must not change the hash.
	m := makeTestMessage(t)
	m.Payload = json.RawMessage("{ \"key\": \"color\",\n  \"value\": \"green\" }")
	m.ContentHash = m.ComputeHash()

	compact := *m
	compact.Payload = json.RawMessage(`{"key":"color","value":"green"}`)
	if compact.ComputeHash() != m.ContentHash {
		t.Error("hash differs across payload whitespace")
	}
}
