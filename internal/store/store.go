// Package store persists ShareEntry records on behalf of a provider node.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"shard/internal/sss"
)

// CurrentSchemaVersion is stamped on every newly created ShareEntry so a
// future format change can be detected on load instead of silently
// misparsed.
const CurrentSchemaVersion = 1

// ErrNotFound is returned when a requested key has no stored entry.
var ErrNotFound = errors.New("share not found")

// ShareEntry is one key's persisted Shamir share, along with the bookkeeping
// the provider needs to answer requests and run the refresh scheduler
// without extra out-of-band parameters.
type ShareEntry struct {
	Version     int       `json:"version"`
	Key         string    `json:"key"`
	Share       sss.Share `json:"share"`
	Owner       peer.ID   `json:"owner"`
	Threshold   int       `json:"threshold"`
	TotalShares int       `json:"total_shares"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ShareStore is the narrow persistence interface the provider package
// consumes. Implementations must never hold an internal lock across a
// network send or other suspension point; callers hold it only for the
// duration of the map or SQL access itself.
type ShareStore interface {
	Insert(ctx context.Context, entry ShareEntry) error
	Get(ctx context.Context, key string) (ShareEntry, error)
	GetAll(ctx context.Context) ([]ShareEntry, error)
	Update(ctx context.Context, entry ShareEntry) error
	Delete(ctx context.Context, key string) error
	Close() error
}
