package crypto

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileSignerPersistsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator_key.json")

	first, err := LoadOrGenFileSigner(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	sig, err := first.Sign([]byte("hello"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	second, err := LoadOrGenFileSigner(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !second.PublicKey().Equal(first.PublicKey()) {
		t.Error("reloaded signer has a different key")
	}
	ok, err := Verify(second.PublicKey(), []byte("hello"), sig)
	if err != nil || !ok {
		t.Errorf("verify with reloaded key = %v, %v", ok, err)
	}
}

func TestFileSignerKeyFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	path := filepath.Join(t.TempDir(), "validator_key.json")
	if _, err := LoadOrGenFileSigner(path); err != nil {
		t.Fatalf("generate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != keyFilePerm {
		t.Errorf("key file mode = %o, want %o", mode, keyFilePerm)
	}
}
