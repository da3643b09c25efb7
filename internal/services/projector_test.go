package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestProjector_AccountBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 31))

	add := func(kind core.Kind, cents int64) {
		e := sampleEntry()
		e.Kind, e.Amount = kind, core.NewMoney(cents)
		_, err := f.ledger.Create(ctx, e, nil, nil)
		require.NoError(t, err)
	}
	add(core.Income, 300000)
	add(core.Expense, 120000)
	add(core.Expense, 250000)
	add(core.Investment, 50000)

	b, err := f.projector.AccountBalance(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, int64(300000), b.Income.Cents)
	assert.Equal(t, int64(370000), b.Expense.Cents)
	assert.Equal(t, int64(50000), b.Investment.Cents)
	assert.Equal(t, core.NewMoney(-70000), b.Balance, "investments do not move the balance")

	empty, err := f.projector.AccountBalance(ctx, "acc-2")
	require.NoError(t, err)
	assert.True(t, empty.Balance.IsZero())
}

func TestProjector_DebtorBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 10))
	f.addDebtor(t, "d1", 1000, 500)

	b, err := f.projector.DebtorBalance(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), b.Outstanding.Cents)

	f.pay(t, "d1", core.NewPeriod(3, 2024), 1500)
	f.pay(t, "d1", core.NewPeriod(4, 2024), 600)

	b, err = f.projector.DebtorBalance(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(2100), b.PaidTotal.Cents)
	assert.True(t, b.Outstanding.IsZero(), "floored at zero")

	_, err = f.projector.DebtorBalance(ctx, "ghost")
	assert.True(t, core.IsNotFound(err))
}

func TestProjector_DueSoon(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 10))
	today := core.NewDate(2024, 3, 10)

	mk := func(desc string, start core.Date, end core.Date) {
		r := sampleRule()
		r.Description, r.StartDate, r.EndDate = desc, start, end
		_, err := f.recurrence.CreateRule(ctx, r)
		require.NoError(t, err)
	}
	mk("overdue", core.NewDate(2024, 3, 1), core.Date{})
	mk("more overdue", core.NewDate(2024, 2, 20), core.Date{})
	mk("upcoming", core.NewDate(2024, 3, 15), core.Date{})
	mk("too far", core.NewDate(2024, 3, 25), core.Date{})
	mk("expired", core.NewDate(2024, 1, 1), core.NewDate(2024, 3, 5))

	due, err := f.projector.DueSoon(ctx, testAccount, today)
	require.NoError(t, err)

	var got []string
	for _, d := range due {
		got = append(got, d.Rule.Description)
	}
	assert.Equal(t, []string{"more overdue", "overdue", "upcoming"}, got)
	assert.Equal(t, 19, due[0].DaysPastDue)
	assert.Equal(t, 9, due[1].DaysPastDue)
	assert.Zero(t, due[2].DaysPastDue)
	assert.Equal(t, "2024-03-15", due[2].NextDue.String())

	wide := NewProjector(f.store, nil, 30)
	due, err = wide.DueSoon(ctx, testAccount, today)
	require.NoError(t, err)
	assert.Len(t, due, 4)
}

func TestProjector_MonthlySummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 20))
	f.addDebtor(t, "d1", 1000)
	f.addDebtor(t, "d2", 1000)
	f.addDebtor(t, "d3", 1000)
	march := core.NewPeriod(3, 2024)

	f.pay(t, "d1", march, 1000)
	f.pay(t, "d2", march, 400)
	_, err := f.obligations.GeneratePeriodObligations(ctx, march)
	require.NoError(t, err)

	s, err := f.projector.MonthlySummary(ctx, march, core.NewDate(2024, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Counts[core.StatusPaid])
	assert.Equal(t, 1, s.Counts[core.StatusPartial])
	assert.Equal(t, 1, s.Counts[core.StatusPending])
	assert.Zero(t, s.Counts[core.StatusOverdue])
	assert.Equal(t, int64(3000), s.Total.Cents)
	assert.Equal(t, int64(1400), s.Paid.Cents)
	assert.Equal(t, int64(1600), s.Outstanding.Cents)
	assert.Nil(t, s.Receipt)

	_, err = f.aggregation.Aggregate(ctx, march)
	require.NoError(t, err)

	s, err = f.projector.MonthlySummary(ctx, march, core.NewDate(2024, 4, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Counts[core.StatusOverdue])
	assert.Equal(t, 1, s.Counts[core.StatusPaid])
	require.NotNil(t, s.Receipt)
	assert.Equal(t, int64(1000), s.Receipt.TotalAmount.Cents)
}
