package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func entry(id string, day int) core.LedgerEntry {
	return core.LedgerEntry{
		ID:          id,
		AccountID:   "acc",
		Description: "entry " + id,
		Amount:      core.Money{Cents: 100},
		Kind:        core.Expense,
		CategoryID:  "misc",
		Scope:       core.Personal,
		Date:        core.NewDate(2025, 3, day),
		Tags:        []string{"x"},
		CreatedAt:   time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Entries().Insert(ctx, entry("a", 1)))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx storage.Repos) error {
		require.NoError(t, tx.Entries().Insert(ctx, entry("b", 2)))
		require.NoError(t, tx.Entries().ReplaceTags(ctx, "a", nil))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Entries().Get(ctx, "b")
	assert.True(t, core.IsNotFound(err))
	a, err := s.Entries().Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, a.Tags)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(tx storage.Repos) error {
			_ = tx.Entries().Insert(ctx, entry("b", 2))
			panic("boom")
		})
	})
	_, err := s.Entries().Get(ctx, "b")
	assert.True(t, core.IsNotFound(err))
}

func TestEntriesListOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Entries().Insert(ctx, entry("old", 1)))
	require.NoError(t, s.Entries().Insert(ctx, entry("new", 9)))
	require.NoError(t, s.Entries().Insert(ctx, entry("mid", 5)))

	list, err := s.Entries().List(ctx, "acc", core.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[2].ID)

	other, err := s.Entries().List(ctx, "someone-else", core.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestObligationUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := core.NewPeriod(3, 2025)
	o := core.NewObligation("o1", "d1", p, core.Money{Cents: 1000}, time.Now())

	require.NoError(t, s.Obligations().Insert(ctx, o))
	assert.True(t, core.IsConflict(s.Obligations().Insert(ctx, o)))

	created, err := s.Obligations().InsertIfAbsent(ctx, o)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestReceiptUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	rc := core.AggregationReceipt{ID: "r1", Period: core.NewPeriod(2, 2025)}
	require.NoError(t, s.Receipts().Insert(ctx, rc))
	rc.ID = "r2"
	assert.True(t, core.IsConflict(s.Receipts().Insert(ctx, rc)))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()
	assert.ErrorIs(t, s.Entries().Insert(ctx, entry("a", 1)), context.Canceled)
	assert.ErrorIs(t, s.WithinTx(ctx, func(storage.Repos) error { return nil }), context.Canceled)
}
