package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	"fintrack/internal/storage/sqldb"
)

const testAccount = "acc-1"

// fixture wires every service to one store, one recorder and one
// adjustable clock.
type fixture struct {
	store    storage.Store
	recorder *events.Recorder
	now      time.Time

	ledger      *LedgerService
	recurrence  *RecurrenceService
	obligations *ObligationService
	aggregation *AggregationService
	projector   *Projector
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), now)
}

// newSQLiteFixture runs the services on a migrated SQLite file, where
// transactions and row locks are the database's own.
func newSQLiteFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fintrack.db")
	store, err := sqldb.Open(context.Background(), sqldb.Options{Driver: sqldb.DriverSQLite, SQLitePath: path}, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureOn(t, store, now)
}

// fixturesByStore names every store the store-sensitive tests run against.
var fixturesByStore = map[string]func(*testing.T, time.Time) *fixture{
	"memory": newFixture,
	"sqlite": newSQLiteFixture,
}

func newFixtureOn(t *testing.T, store storage.Store, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		recorder: &events.Recorder{},
		now:      now,
	}
	opts := []Option{WithPublisher(f.recorder), WithClock(func() time.Time { return f.now })}
	f.ledger = NewLedgerService(f.store, nil, opts...)
	f.recurrence = NewRecurrenceService(f.store, nil, opts...)
	f.obligations = NewObligationService(f.store, nil, opts...)
	f.aggregation = NewAggregationService(f.store, nil,
		AggregationTarget{AccountID: testAccount, CategoryID: "fees"}, opts...)
	f.projector = NewProjector(f.store, nil, DefaultDueSoonWindow, opts...)
	return f
}

func (f *fixture) today() core.Date { return core.DateOf(f.now) }

// addDebtor stores an active debtor with one active subscription per fee.
func (f *fixture) addDebtor(t *testing.T, id string, fees ...int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Debtors().UpsertDebtor(ctx, core.Debtor{ID: id, Name: id, Active: true}))
	for i, fee := range fees {
		require.NoError(t, f.store.Debtors().UpsertSubscription(ctx, core.Subscription{
			ID:          id + "-sub-" + string(rune('a'+i)),
			DebtorID:    id,
			Description: "membership",
			Fee:         core.NewMoney(fee),
			Active:      true,
		}))
	}
}

func (f *fixture) pay(t *testing.T, debtorID string, p core.Period, cents int64) core.Obligation {
	t.Helper()
	o, err := f.obligations.RecordPayment(context.Background(), PaymentRequest{
		DebtorID: debtorID,
		Period:   p,
		Amount:   core.NewMoney(cents),
		Method:   "cash",
	})
	require.NoError(t, err)
	return o
}

func at(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 30, 0, 0, time.UTC)
}

func sampleEntry() core.LedgerEntry {
	return core.LedgerEntry{
		AccountID:   testAccount,
		Description: "Groceries",
		Amount:      core.NewMoney(4250),
		Kind:        core.Expense,
		CategoryID:  "food",
		Scope:       core.Family,
		Date:        core.NewDate(2024, 3, 10),
	}
}

func sampleRule() core.RecurrenceRule {
	return core.RecurrenceRule{
		AccountID:   testAccount,
		Description: "Rent",
		Amount:      core.NewMoney(90000),
		Kind:        core.Expense,
		CategoryID:  "housing",
		Scope:       core.Family,
		Frequency:   core.Monthly,
		StartDate:   core.NewDate(2024, 1, 31),
	}
}
