package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const keyFilePerm = 0600

// fileKey is the on-disk key file structure.
type fileKey struct {
	Algorithm Algorithm `json:"algorithm"`
	PubKey    HexBytes  `json:"pub_key"`
	PrivKey   HexBytes  `json:"priv_key"`
}

// FileSigner is a Signer whose key pair lives in a JSON file, so a
// validator keeps its identity across restarts. The file is created
// with owner-only permissions.
type FileSigner struct {
	path  string
	inner *LocalSigner
}

var _ Signer = (*FileSigner)(nil)

// LoadOrGenFileSigner loads the key file at path, generating and
// writing a fresh key pair if the file does not exist.
func LoadOrGenFileSigner(path string) (*FileSigner, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fk fileKey
		if err := json.Unmarshal(data, &fk); err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}
		pub := PublicKey{Algorithm: fk.Algorithm, Data: fk.PubKey}
		priv := PrivateKey{Algorithm: fk.Algorithm, Data: fk.PrivKey}
		return &FileSigner{path: path, inner: NewLocalSignerFromKey(pub, priv)}, nil

	case errors.Is(err, os.ErrNotExist):
		inner, err := NewLocalSigner()
		if err != nil {
			return nil, err
		}
		fs := &FileSigner{path: path, inner: inner}
		if err := fs.save(); err != nil {
			return nil, err
		}
		return fs, nil

	default:
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
}

func (s *FileSigner) save() error {
	fk := fileKey{
		Algorithm: s.inner.pub.Algorithm,
		PubKey:    s.inner.pub.Data,
		PrivKey:   s.inner.priv.Data,
	}
	data, err := json.MarshalIndent(fk, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	if err := os.WriteFile(s.path, data, keyFilePerm); err != nil {
		return fmt.Errorf("write key file %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSigner) Sign(msg []byte) ([]byte, error) {
	return s.inner.Sign(msg)
}

func (s *FileSigner) PublicKey() PublicKey {
	return s.inner.PublicKey()
}
