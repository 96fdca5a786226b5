package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Algorithm names a signature scheme.
type Algorithm string

// AlgorithmEd25519 is the only signature scheme currently supported.
const AlgorithmEd25519 Algorithm = "ed25519"

var (
	// ErrUnknownAlgorithm is returned for keys tagged with a scheme this
	// build does not implement.
	ErrUnknownAlgorithm = errors.New("unknown signature algorithm")

	// ErrBadKeyLength is returned when key material does not match the
	// tagged algorithm's expected size.
	ErrBadKeyLength = errors.New("bad key length")
)

// PublicKey is algorithm-tagged public key material. Keys serialize as
// hex so they can ride inside JSON payloads.
type PublicKey struct {
	Algorithm Algorithm `json:"algorithm"`
	Data      HexBytes  `json:"data"`
}

// PrivateKey is algorithm-tagged private key material.
type PrivateKey struct {
	Algorithm Algorithm `json:"algorithm"`
	Data      HexBytes  `json:"data"`
}

// GenerateKeyPair creates a fresh ed25519 key pair from crypto/rand.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, fmt.Errorf("generate key pair: %w", err)
	}
	return PublicKey{Algorithm: AlgorithmEd25519, Data: HexBytes(pub)},
		PrivateKey{Algorithm: AlgorithmEd25519, Data: HexBytes(priv)},
		nil
}

// Sign signs msg with priv.
func Sign(priv PrivateKey, msg []byte) ([]byte, error) {
	switch priv.Algorithm {
	case AlgorithmEd25519:
		if len(priv.Data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%w: ed25519 private key is %d bytes", ErrBadKeyLength, len(priv.Data))
		}
		return ed25519.Sign(ed25519.PrivateKey(priv.Data), msg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, priv.Algorithm)
	}
}

// Verify reports whether sig is a valid signature of msg under pub.
// A malformed signature or a key/signature scheme mismatch verifies
// false; only an unusable key is an error.
func Verify(pub PublicKey, msg, sig []byte) (bool, error) {
	switch pub.Algorithm {
	case AlgorithmEd25519:
		if len(pub.Data) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: ed25519 public key is %d bytes", ErrBadKeyLength, len(pub.Data))
		}
		if len(sig) != ed25519.SignatureSize {
			return false, nil
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Data), msg, sig), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, pub.Algorithm)
	}
}

// Address derives the validator address for pub: the first 20 bytes of
// sha256 over the raw key material, hex-encoded.
func Address(pub PublicKey) string {
	sum := sha256.Sum256(pub.Data)
	return hex.EncodeToString(sum[:20])
}

// Equal reports whether two public keys carry the same scheme and
// material.
func (k PublicKey) Equal(other PublicKey) bool {
	if k.Algorithm != other.Algorithm || len(k.Data) != len(other.Data) {
		return false
	}
	for i := range k.Data {
		if k.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
