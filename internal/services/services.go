// Package services implements the ledger, recurrence, obligation,
// aggregation and projection operations on top of a storage.Store.
package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// deps is shared by every service.
type deps struct {
	store  storage.Store
	events events.Publisher
	logger *log.Logger
	now    func() time.Time
}

// Option customizes a service at construction.
type Option func(*deps)

// WithPublisher sends domain events after each committed write.
func WithPublisher(p events.Publisher) Option {
	return func(d *deps) {
		if p != nil {
			d.events = p
		}
	}
}

// WithClock replaces time.Now. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(d *deps) {
		if now != nil {
			d.now = now
		}
	}
}

func newDeps(store storage.Store, logger *log.Logger, component string, opts []Option) deps {
	if logger == nil {
		logger = log.Discard()
	}
	d := deps{
		store:  store,
		events: events.Nop{},
		logger: logger.WithComponent(component),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) clock() time.Time { return d.now().UTC() }

func (d deps) today() core.Date { return core.DateOf(d.clock()) }

// publish emits an event after commit. Failures are logged and swallowed:
// the write already succeeded.
func (d deps) publish(ctx context.Context, t events.Type, payload any) {
	e, err := events.New(t, payload)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to build event", log.FieldEventType, string(t), log.FieldError, err)
		return
	}
	if err := d.events.Publish(ctx, e); err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish event",
			log.FieldEventType, string(t),
			log.FieldEventID, e.ID,
			log.FieldError, err)
	}
}
