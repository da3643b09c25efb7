package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/events"
)

func TestAggregate_FoldsPaidObligations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 4, 1))
	f.addDebtor(t, "d1", 1000)
	f.addDebtor(t, "d2", 1500)
	f.addDebtor(t, "d3", 800)
	march := core.NewPeriod(3, 2024)

	f.pay(t, "d1", march, 1000)
	f.pay(t, "d2", march, 1500)
	f.pay(t, "d3", march, 300)

	res, err := f.aggregation.Aggregate(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAggregated, res.Outcome)
	require.NotNil(t, res.Receipt)
	require.NotNil(t, res.Entry)
	assert.Equal(t, int64(2500), res.Receipt.TotalAmount.Cents)
	assert.Equal(t, 2, res.Receipt.PaymentCount)
	assert.Equal(t, res.Entry.ID, res.Receipt.EntryID)

	entry, err := f.ledger.Get(ctx, res.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Income, entry.Kind)
	assert.Equal(t, core.Business, entry.Scope)
	assert.Equal(t, "fees", entry.CategoryID)
	assert.Equal(t, int64(2500), entry.Amount.Cents)
	assert.Equal(t, "Fee income 03/2024 (2 payments)", entry.Description)
	assert.Equal(t, "2024-04-01", entry.Date.String())

	for _, id := range []string{"d1", "d2"} {
		o, err := f.obligations.GetObligation(ctx, id, march)
		require.NoError(t, err)
		assert.True(t, o.Aggregated, id)
	}
	d3, err := f.obligations.GetObligation(ctx, "d3", march)
	require.NoError(t, err)
	assert.False(t, d3.Aggregated, "partial payments are not aggregated")

	published := f.recorder.OfType(events.AggregationCompleted)
	require.Len(t, published, 1)
	var payload events.AggregationPayload
	require.NoError(t, published[0].Decode(&payload))
	assert.Equal(t, int64(2500), payload.TotalCents)
	assert.Equal(t, 2, payload.PaymentCount)
	assert.Equal(t, 3, payload.Month)
}

func TestAggregate_TwiceWritesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 4, 1))
	f.addDebtor(t, "d1", 1000)
	march := core.NewPeriod(3, 2024)
	f.pay(t, "d1", march, 1000)

	_, err := f.aggregation.Aggregate(ctx, march)
	require.NoError(t, err)

	again, err := f.aggregation.Aggregate(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToAggregate, again.Outcome)

	receipts, err := f.aggregation.History(ctx)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)

	income, err := f.ledger.List(ctx, testAccount, core.EntryFilter{Kinds: []core.Kind{core.Income}})
	require.NoError(t, err)
	assert.Len(t, income, 1)
}

func TestAggregate_LatePaymentConflictsWithReceipt(t *testing.T) {
	for name, open := range fixturesByStore {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := open(t, at(2024, 4, 1))
			f.addDebtor(t, "d1", 1000)
			f.addDebtor(t, "d2", 1000)
			march := core.NewPeriod(3, 2024)
			f.pay(t, "d1", march, 1000)

			_, err := f.aggregation.Aggregate(ctx, march)
			require.NoError(t, err)

			f.pay(t, "d2", march, 1000)
			_, err = f.aggregation.Aggregate(ctx, march)
			require.Error(t, err)
			assert.True(t, core.IsConflict(err))

			income, err := f.ledger.List(ctx, testAccount, core.EntryFilter{Kinds: []core.Kind{core.Income}})
			require.NoError(t, err)
			assert.Len(t, income, 1, "the failed run rolled back its entry")

			d2, err := f.obligations.GetObligation(ctx, "d2", march)
			require.NoError(t, err)
			assert.False(t, d2.Aggregated)

			receipts, err := f.aggregation.History(ctx)
			require.NoError(t, err)
			assert.Len(t, receipts, 1)
		})
	}
}

func TestAggregate_NothingToAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 4, 1))

	res, err := f.aggregation.Aggregate(ctx, core.NewPeriod(3, 2024))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingToAggregate, res.Outcome)
	assert.Nil(t, res.Receipt)
	assert.Empty(t, f.recorder.Events())

	_, err = f.aggregation.Aggregate(ctx, core.NewPeriod(3, 1800))
	assert.True(t, core.IsValidation(err))
}

func TestAutoAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 1, 3))
	f.addDebtor(t, "d1", 1000)
	dec := core.NewPeriod(12, 2023)
	f.pay(t, "d1", dec, 1000)

	res, err := f.aggregation.AutoAggregate(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAggregated, res.Outcome)
	assert.Equal(t, dec, res.Period)

	res, err = f.aggregation.AutoAggregate(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyAggregated, res.Outcome)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, int64(1000), res.Receipt.TotalAmount.Cents)
}

func TestHistory_Ordering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 6, 1))
	f.addDebtor(t, "d1", 1000)

	for _, p := range []core.Period{core.NewPeriod(11, 2023), core.NewPeriod(2, 2024), core.NewPeriod(12, 2023)} {
		f.pay(t, "d1", p, 1000)
		_, err := f.aggregation.Aggregate(ctx, p)
		require.NoError(t, err)
	}

	receipts, err := f.aggregation.History(ctx)
	require.NoError(t, err)
	require.Len(t, receipts, 3)
	assert.Equal(t, core.NewPeriod(2, 2024), receipts[0].Period)
	assert.Equal(t, core.NewPeriod(12, 2023), receipts[1].Period)
	assert.Equal(t, core.NewPeriod(11, 2023), receipts[2].Period)
}
