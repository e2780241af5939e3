package sftp

import (
	"errors"
	"strings"
	"testing"
)

// TestGenerateKeyPair verifies the generated keypair is well-formed and the
// public half validates through the same path user-supplied keys take.
func TestGenerateKeyPair(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	if !strings.Contains(pair.PrivateKeyPEM, "RSA PRIVATE KEY") {
		t.Fatal("private key is not PEM-encoded")
	}
	if !strings.HasPrefix(pair.AuthorizedKey, "ssh-rsa ") {
		t.Fatalf("authorized key %q is not in authorized_keys format", pair.AuthorizedKey)
	}
	if !strings.HasPrefix(pair.Fingerprint, "SHA256:") {
		t.Fatalf("fingerprint = %q", pair.Fingerprint)
	}

	normalized, fingerprint, err := ValidateAuthorizedKey(pair.AuthorizedKey)
	if err != nil {
		t.Fatalf("ValidateAuthorizedKey failed on own key: %v", err)
	}
	if fingerprint != pair.Fingerprint {
		t.Fatalf("fingerprint mismatch: %s vs %s", fingerprint, pair.Fingerprint)
	}
	if normalized == "" {
		t.Fatal("normalized key is empty")
	}
}

// TestValidateAuthorizedKeyRejectsGarbage verifies malformed keys fail.
func TestValidateAuthorizedKeyRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "not a key", "ssh-rsa notbase64"} {
		if _, _, err := ValidateAuthorizedKey(key); err == nil {
			t.Errorf("ValidateAuthorizedKey(%q) succeeded, want error", key)
		}
	}
}

// TestRegistryLifecycle verifies create/get/close and that closing twice is
// an error.
func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	conn := reg.Open("user-1", "alice", "203.0.113.7:52100")
	if conn.ID == "" || conn.OpenedAt.IsZero() {
		t.Fatalf("connection not initialized: %+v", conn)
	}

	got, err := reg.Get(conn.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("got %+v", got)
	}

	if err := reg.Close(conn.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := reg.Close(conn.ID); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("double Close = %v, want ErrConnectionNotFound", err)
	}
	if _, err := reg.Get(conn.ID); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("Get after Close = %v, want ErrConnectionNotFound", err)
	}
}

// TestRegistryList verifies only live connections are listed.
func TestRegistryList(t *testing.T) {
	reg := NewRegistry()

	a := reg.Open("u1", "alice", "203.0.113.7:52100")
	b := reg.Open("u2", "bob", "203.0.113.8:52101")

	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reg.Len())
	}

	if err := reg.Close(a.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	conns := reg.List()
	if len(conns) != 1 || conns[0].ID != b.ID {
		t.Fatalf("List = %+v, want just bob's connection", conns)
	}
}
