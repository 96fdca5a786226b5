package crypto

// Signer produces signatures without exposing private key material.
type Signer interface {
	// Sign signs the given canonical bytes.
	Sign(msg []byte) ([]byte, error)

	// PublicKey returns the verification key matching the signatures.
	PublicKey() PublicKey
}

// LocalSigner is an in-process Signer holding its private key in
// memory.
type LocalSigner struct {
	pub  PublicKey
	priv PrivateKey
}

// NewLocalSigner generates a fresh key pair and wraps it in a signer.
func NewLocalSigner() (*LocalSigner, error) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &LocalSigner{pub: pub, priv: priv}, nil
}

// NewLocalSignerFromKey wraps an existing key pair.
func NewLocalSignerFromKey(pub PublicKey, priv PrivateKey) *LocalSigner {
	return &LocalSigner{pub: pub, priv: priv}
}

func (s *LocalSigner) Sign(msg []byte) ([]byte, error) {
	return Sign(s.priv, msg)
}

func (s *LocalSigner) PublicKey() PublicKey {
	return s.pub
}
