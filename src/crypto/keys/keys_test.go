package keys

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, _ = GenerateKey()

	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := simpleKeyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if nKey.D.Cmp(key.D) != 0 || nKey.X.Cmp(key.X) != 0 || nKey.Y.Cmp(key.Y) != 0 {
		t.Fatalf("Keys do not match")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	keyfile := filepath.Join(dir, "priv_key")
	simpleKeyfile := NewSimpleKeyfile(keyfile)

	key, _ := GenerateKey()
	if err := simpleKeyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := os.Chmod(keyfile, 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := simpleKeyfile.ReadKey(); err == nil {
		t.Fatalf("ReadKey should refuse a world-readable key file")
	}
}

func TestReadOrCreate(t *testing.T) {
	simpleKeyfile := NewSimpleKeyfile(filepath.Join(t.TempDir(), "sub", "priv_key"))

	first, created, err := simpleKeyfile.ReadOrCreate()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !created {
		t.Fatalf("first call should create a key")
	}

	second, created, err := simpleKeyfile.ReadOrCreate()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if created {
		t.Fatalf("second call should read the existing key")
	}
	if NodeID(&first.PublicKey) != NodeID(&second.PublicKey) {
		t.Fatalf("node id changed across reads")
	}
}

func TestNodeIDRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	id := NodeID(&key.PublicKey)
	if id == "" {
		t.Fatalf("empty node id")
	}

	pub, err := ParseNodeID(id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if pub.X.Cmp(key.PublicKey.X) != 0 || pub.Y.Cmp(key.PublicKey.Y) != 0 {
		t.Fatalf("ParseNodeID returned a different key")
	}

	if _, err := ParseNodeID(""); err == nil {
		t.Fatalf("empty id should not parse")
	}
	if _, err := ParseNodeID("0OIl"); err == nil {
		t.Fatalf("invalid base58 should not parse")
	}
}

func TestParsePrivateKeyRejectsBadInput(t *testing.T) {
	if _, err := ParsePrivateKey([]byte{1, 2, 3}); err == nil {
		t.Fatalf("short key should be rejected")
	}
	if _, err := ParsePrivateKey(make([]byte, privateKeyLen)); err == nil {
		t.Fatalf("zero key should be rejected")
	}
}

func TestPublicKeyHex(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	h := PublicKeyHex(&key.PublicKey)
	if !strings.HasPrefix(h, "0X") {
		t.Fatalf("public key hex should start with 0X: %s", h)
	}

	raw, err := hex.DecodeString(h[2:])
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(raw) != 33 {
		t.Fatalf("compressed public key should have 33 bytes, not %d", len(raw))
	}
}
