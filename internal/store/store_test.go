package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"shard/internal/sss"
)

func testOwner(t *testing.T) peer.ID {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		t.Fatalf("GenerateEd25519Key returned error: %v", err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatalf("IDFromPrivateKey returned error: %v", err)
	}
	return id
}

func runStoreTests(t *testing.T, newStore func() ShareStore) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		ctx := context.Background()
		owner := testOwner(t)

		entry := ShareEntry{
			Version:     CurrentSchemaVersion,
			Key:         "k1",
			Share:       sss.Share{X: 1, Y: []byte{1, 2, 3}},
			Owner:       owner,
			Threshold:   3,
			TotalShares: 5,
			UpdatedAt:   time.Now(),
		}

		if err := s.Insert(ctx, entry); err != nil {
			t.Fatalf("Insert returned error: %v", err)
		}

		got, err := s.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got.Key != entry.Key || got.Threshold != entry.Threshold {
			t.Fatalf("got %+v, want %+v", got, entry)
		}
	})

	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		if _, err := s.Get(context.Background(), "missing"); err != ErrNotFound {
			t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateMissingReturnsNotFound", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		err := s.Update(context.Background(), ShareEntry{Key: "missing"})
		if err != ErrNotFound {
			t.Fatalf("Update(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteAndGetAll", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		ctx := context.Background()
		owner := testOwner(t)

		for _, k := range []string{"a", "b", "c"} {
			entry := ShareEntry{
				Version: CurrentSchemaVersion,
				Key:     k,
				Share:   sss.Share{X: 1, Y: []byte{9}},
				Owner:   owner,
			}
			if err := s.Insert(ctx, entry); err != nil {
				t.Fatalf("Insert returned error: %v", err)
			}
		}

		all, err := s.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll returned error: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("len(all) = %d, want 3", len(all))
		}

		if err := s.Delete(ctx, "b"); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}
		if _, err := s.Get(ctx, "b"); err != ErrNotFound {
			t.Fatalf("Get(b) after delete = %v, want ErrNotFound", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func() ShareStore { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	n := 0
	runStoreTests(t, func() ShareStore {
		n++
		dir := t.TempDir()
		s, err := NewSQLiteStore(filepath.Join(dir, fmt.Sprintf("shard-%d.db", n)))
		if err != nil {
			t.Fatalf("NewSQLiteStore returned error: %v", err)
		}
		return s
	})
}
