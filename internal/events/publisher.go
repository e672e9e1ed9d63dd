// Package events exposes attempt lifecycle changes to listeners outside the
// engine: result sync, notifications, proctor dashboards and the audit log.
package events

import (
	"context"
	"errors"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Publisher delivers an attempt event. Publishing happens after the
// authoritative write; a failed publish never undoes it.
type Publisher interface {
	Publish(ctx context.Context, evt model.AttemptEvent) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, model.AttemptEvent) error { return nil }

// Fanout publishes to every target and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt model.AttemptEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
