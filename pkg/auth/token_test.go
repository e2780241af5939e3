package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stratafs/stratafs/pkg/identity"
	"github.com/stratafs/stratafs/pkg/vfs"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:     "test-secret-key",
		Issuer:     "stratafs-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func testUser() *identity.User {
	return &identity.User{
		ID:       "user-1",
		Username: "alice",
		Role:     vfs.RoleUser,
		HomePath: "/users/alice",
	}
}

// TestIssueAndParse verifies the round trip for both token types.
func TestIssueAndParse(t *testing.T) {
	m := testManager(t)

	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.AccessToken == pair.RefreshToken {
		t.Fatalf("pair = %+v", pair)
	}
	if pair.ExpiresIn != 60 {
		t.Fatalf("ExpiresIn = %d, want 60", pair.ExpiresIn)
	}

	claims, err := m.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.Subject != "user-1" || claims.Username != "alice" ||
		claims.Role != vfs.RoleUser || claims.HomePath != "/users/alice" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := m.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
}

// TestTokenTypeMismatch verifies tokens are never interchangeable across
// types.
func TestTokenTypeMismatch(t *testing.T) {
	m := testManager(t)

	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if _, err := m.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh-as-access = %v, want ErrWrongTokenType", err)
	}
	if _, err := m.ParseRefresh(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("access-as-refresh = %v, want ErrWrongTokenType", err)
	}
}

// TestExpiredToken verifies expiry is enforced.
func TestExpiredToken(t *testing.T) {
	m := testManager(t)

	pair, err := m.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	// move the manager's clock past the access TTL
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if _, err := m.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired ParseAccess = %v, want ErrInvalidToken", err)
	}
}

// TestWrongKeyRejected verifies tokens from another key never validate.
func TestWrongKeyRejected(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(Config{Secret: "different-key"})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	pair, err := other.IssuePair(testUser())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if _, err := m.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token = %v, want ErrInvalidToken", err)
	}
}

// TestGarbageToken verifies non-JWT strings fail cleanly.
func TestGarbageToken(t *testing.T) {
	m := testManager(t)
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := m.ParseAccess(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseAccess(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}

// TestNewManagerRequiresSecret verifies the empty-secret guard.
func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("NewManager with empty secret succeeded")
	}
}
