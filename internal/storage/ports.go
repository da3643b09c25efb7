// Package storage defines the persistence ports used by the services.
//
// Every operation that touches more than one row runs inside Store.WithinTx;
// the Repos handed to the callback share one unit of work and are discarded
// when the callback returns. Two implementations exist: sqldb (SQLite and
// Postgres) and memory (tests and local tooling).
package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// EntryRepository persists ledger entries together with their splits and tags.
type EntryRepository interface {
	// Insert writes the header, splits and tags.
	Insert(ctx context.Context, e core.LedgerEntry) error
	// Get returns the entry with its children or a *core.NotFoundError.
	Get(ctx context.Context, id string) (core.LedgerEntry, error)
	UpdateHeader(ctx context.Context, e core.LedgerEntry) error
	ReplaceSplits(ctx context.Context, entryID string, splits []core.Split) error
	ReplaceTags(ctx context.Context, entryID string, tags []string) error
	// Delete removes the entry and its children; it reports whether a row existed.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns matching entries ordered by date desc, created_at desc.
	List(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error)
	// Totals sums amounts per kind for an account. Missing kinds are zero.
	Totals(ctx context.Context, accountID string) (map[core.Kind]core.Money, error)
}

type RuleRepository interface {
	Insert(ctx context.Context, r core.RecurrenceRule) error
	Get(ctx context.Context, id string) (core.RecurrenceRule, error)
	Update(ctx context.Context, r core.RecurrenceRule) error
	Delete(ctx context.Context, id string) (bool, error)
	// ListByAccount returns the account's rules ordered by start date.
	ListByAccount(ctx context.Context, accountID string) ([]core.RecurrenceRule, error)
	// ListAll returns every rule across accounts.
	ListAll(ctx context.Context) ([]core.RecurrenceRule, error)
	// ListExpired returns rules whose end date lies before today.
	ListExpired(ctx context.Context, today core.Date) ([]core.RecurrenceRule, error)
}

// DebtorRepository exposes debtor and subscription master data.
type DebtorRepository interface {
	UpsertDebtor(ctx context.Context, d core.Debtor) error
	UpsertSubscription(ctx context.Context, s core.Subscription) error
	GetDebtor(ctx context.Context, id string) (core.Debtor, error)
	ListActiveDebtors(ctx context.Context) ([]core.Debtor, error)
	ListSubscriptions(ctx context.Context, debtorID string) ([]core.Subscription, error)
	// ActiveFeeTotal sums the fees of the debtor's active subscriptions.
	ActiveFeeTotal(ctx context.Context, debtorID string) (core.Money, error)
}

type ObligationRepository interface {
	// GetForUpdate loads the obligation and locks its row until the unit of
	// work ends. Returns *core.NotFoundError when absent.
	GetForUpdate(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error)
	Get(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error)
	// Insert fails with *core.ConflictError when (debtor, period) exists.
	Insert(ctx context.Context, o core.Obligation) error
	// InsertIfAbsent reports false when the (debtor, period) row already exists.
	InsertIfAbsent(ctx context.Context, o core.Obligation) (bool, error)
	UpdatePayment(ctx context.Context, o core.Obligation) error
	List(ctx context.Context, f core.ObligationFilter) ([]core.Obligation, error)
	// ListAggregatable returns paid, not yet aggregated obligations of a period.
	ListAggregatable(ctx context.Context, p core.Period) ([]core.Obligation, error)
	MarkAggregated(ctx context.Context, ids []string, at time.Time) error
	// PaidTotal sums paid amounts of the debtor across all periods.
	PaidTotal(ctx context.Context, debtorID string) (core.Money, error)
}

type ReceiptRepository interface {
	// Insert fails with *core.ConflictError when the period already has a receipt.
	Insert(ctx context.Context, r core.AggregationReceipt) error
	GetByPeriod(ctx context.Context, p core.Period) (core.AggregationReceipt, error)
	// List returns receipts ordered by year desc, month desc.
	List(ctx context.Context) ([]core.AggregationReceipt, error)
}

// Repos groups the repositories of one unit of work.
type Repos interface {
	Entries() EntryRepository
	Rules() RuleRepository
	Debtors() DebtorRepository
	Obligations() ObligationRepository
	Receipts() ReceiptRepository
}

// Store is the handle passed to every service. Its own Repos run each call
// in an implicit single-statement unit of work.
type Store interface {
	Repos
	// WithinTx runs fn in one transaction. Any error or panic rolls back.
	WithinTx(ctx context.Context, fn func(tx Repos) error) error
	Ping(ctx context.Context) error
	Close() error
}
