// Package sessioncache holds short-lived SessionView projections keyed by
// attempt id. Entries are an optimization only and are always safe to evict.
package sessioncache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ErrMiss is returned by Get when no live entry exists.
var ErrMiss = errors.New("session view not cached")

// Store caches session views. A ttl of zero or less stores without expiry.
type Store interface {
	Put(ctx context.Context, attemptID uuid.UUID, view *model.SessionView, ttl time.Duration) error
	Get(ctx context.Context, attemptID uuid.UUID) (*model.SessionView, error)
	Invalidate(ctx context.Context, attemptID uuid.UUID) error
}
