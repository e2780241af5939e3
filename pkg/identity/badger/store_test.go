package badger

import (
	"context"
	"testing"

	"github.com/stratafs/stratafs/pkg/identity"
	identitytesting "github.com/stratafs/stratafs/pkg/identity/testing"
)

// TestBadgerIdentityStore runs the complete identity.Store conformance suite
// against the BadgerDB implementation in in-memory mode.
func TestBadgerIdentityStore(t *testing.T) {
	suite := &identitytesting.StoreTestSuite{
		NewStore: func(t *testing.T) identity.Store {
			store, err := New(context.Background(), Config{InMemory: true})
			if err != nil {
				t.Fatalf("open store: %v", err)
			}
			return store
		},
	}

	suite.Run(t)
}
