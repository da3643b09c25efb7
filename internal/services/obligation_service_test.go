package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/events"
)

func TestRecordPayment_PartialThenPaidThenOverpay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 5))
	f.addDebtor(t, "d1", 600, 400)
	march := core.NewPeriod(3, 2024)

	o := f.pay(t, "d1", march, 400)
	assert.Equal(t, int64(1000), o.TotalAmount.Cents, "total is the snapshot of active fees")
	assert.Equal(t, int64(400), o.PaidAmount.Cents)
	assert.Equal(t, core.StatusPartial, o.Status)

	o = f.pay(t, "d1", march, 600)
	assert.Equal(t, int64(1000), o.PaidAmount.Cents)
	assert.Equal(t, core.StatusPaid, o.Status)

	_, err := f.obligations.RecordPayment(ctx, PaymentRequest{DebtorID: "d1", Period: march, Amount: core.NewMoney(1)})
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	assert.ErrorIs(t, err, core.ErrOverpayment)

	view, err := f.obligations.GetObligation(ctx, "d1", march)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), view.PaidAmount.Cents)
	assert.True(t, view.Remaining.IsZero())

	assert.Len(t, f.recorder.OfType(events.PaymentRecorded), 2)
}

func TestRecordPayment_TotalIsSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 5))
	f.addDebtor(t, "d1", 1000)
	march := core.NewPeriod(3, 2024)

	f.pay(t, "d1", march, 200)
	require.NoError(t, f.store.Debtors().UpsertSubscription(ctx, core.Subscription{
		ID: "d1-sub-b", DebtorID: "d1", Description: "locker", Fee: core.NewMoney(500), Active: true,
	}))

	o := f.pay(t, "d1", march, 800)
	assert.Equal(t, int64(1000), o.TotalAmount.Cents)
	assert.Equal(t, core.StatusPaid, o.Status)
}

func TestRecordPayment_NotesAccumulate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 5))
	f.addDebtor(t, "d1", 1000)
	march := core.NewPeriod(3, 2024)

	_, err := f.obligations.RecordPayment(ctx, PaymentRequest{DebtorID: "d1", Period: march, Amount: core.NewMoney(300), Method: "cash", Note: "first"})
	require.NoError(t, err)
	o, err := f.obligations.RecordPayment(ctx, PaymentRequest{DebtorID: "d1", Period: march, Amount: core.NewMoney(300), Method: " transfer ", Note: "second"})
	require.NoError(t, err)

	assert.Equal(t, "first"+core.NoteSeparator+"second", o.Notes)
	assert.Equal(t, "transfer", o.PaymentMethod)
	require.NotNil(t, o.PaymentDate)
}

func TestRecordPayment_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 5))
	f.addDebtor(t, "nofees")
	march := core.NewPeriod(3, 2024)

	tests := []struct {
		name  string
		req   PaymentRequest
		check func(error) bool
	}{
		{"missing debtor id", PaymentRequest{Period: march, Amount: core.NewMoney(100)}, core.IsValidation},
		{"bad period", PaymentRequest{DebtorID: "nofees", Period: core.NewPeriod(13, 2024), Amount: core.NewMoney(100)}, core.IsValidation},
		{"zero amount", PaymentRequest{DebtorID: "nofees", Period: march}, core.IsValidation},
		{"no active subscription", PaymentRequest{DebtorID: "nofees", Period: march, Amount: core.NewMoney(100)}, core.IsNotFound},
		{"unknown debtor", PaymentRequest{DebtorID: "ghost", Period: march, Amount: core.NewMoney(100)}, core.IsNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.obligations.RecordPayment(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	list, err := f.obligations.ListObligations(ctx, core.ObligationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRecordPayment_ConcurrentNeverExceedsTotal(t *testing.T) {
	for name, open := range fixturesByStore {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			f := open(t, at(2024, 3, 5))
			f.addDebtor(t, "d1", 1000)
			march := core.NewPeriod(3, 2024)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted int
				rejected []error
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.obligations.RecordPayment(ctx, PaymentRequest{DebtorID: "d1", Period: march, Amount: core.NewMoney(300)})
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						accepted++
						return
					}
					rejected = append(rejected, err)
				}()
			}
			wg.Wait()

			assert.Equal(t, 3, accepted)
			for _, err := range rejected {
				assert.True(t, core.IsValidation(err), "rejected as overpayment, got %v", err)
			}
			view, err := f.obligations.GetObligation(ctx, "d1", march)
			require.NoError(t, err)
			assert.Equal(t, int64(900), view.PaidAmount.Cents)
			assert.LessOrEqual(t, view.PaidAmount.Cents, view.TotalAmount.Cents)
		})
	}
}

func TestRecordPayment_ConcurrentSmallPaymentsOnSQLite(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t, at(2024, 3, 5))
	f.addDebtor(t, "d1", 2000)
	march := core.NewPeriod(3, 2024)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.obligations.RecordPayment(ctx, PaymentRequest{DebtorID: "d1", Period: march, Amount: core.NewMoney(100)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	view, err := f.obligations.GetObligation(ctx, "d1", march)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), view.PaidAmount.Cents)
	assert.Equal(t, core.StatusPaid, view.Status)
}

func TestGeneratePeriodObligations_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 3, 1))
	f.addDebtor(t, "d1", 1000)
	f.addDebtor(t, "d2", 500, 250)
	f.addDebtor(t, "d3")
	require.NoError(t, f.store.Debtors().UpsertDebtor(ctx, core.Debtor{ID: "d4", Name: "gone", Active: false}))
	march := core.NewPeriod(3, 2024)

	f.pay(t, "d1", march, 400)

	first, err := f.obligations.GeneratePeriodObligations(ctx, march)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d2"}, first.Created)
	assert.ElementsMatch(t, []string{"d1"}, first.Skipped)
	assert.ElementsMatch(t, []string{"d3"}, first.Ignored)

	second, err := f.obligations.GeneratePeriodObligations(ctx, march)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.ElementsMatch(t, []string{"d1", "d2"}, second.Skipped)

	d1, err := f.obligations.GetObligation(ctx, "d1", march)
	require.NoError(t, err)
	assert.Equal(t, int64(400), d1.PaidAmount.Cents, "existing obligation untouched")

	d2, err := f.obligations.GetObligation(ctx, "d2", march)
	require.NoError(t, err)
	assert.Equal(t, int64(750), d2.TotalAmount.Cents)
	assert.Equal(t, core.StatusPending, d2.Status)

	_, err = f.obligations.GeneratePeriodObligations(ctx, core.NewPeriod(0, 2024))
	assert.True(t, core.IsValidation(err))
}

func TestListObligations_EffectiveStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(2024, 2, 10))
	f.addDebtor(t, "d1", 1000)
	f.addDebtor(t, "d2", 1000)
	feb := core.NewPeriod(2, 2024)

	f.pay(t, "d1", feb, 1000)
	f.pay(t, "d2", feb, 500)

	overdue, err := f.obligations.ListObligations(ctx, core.ObligationFilter{Status: core.StatusOverdue})
	require.NoError(t, err)
	assert.Empty(t, overdue, "period still open")

	f.now = at(2024, 3, 1)
	overdue, err = f.obligations.ListObligations(ctx, core.ObligationFilter{Status: core.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "d2", overdue[0].DebtorID)
	assert.Equal(t, core.StatusPartial, overdue[0].Status, "stored status is unchanged")
	assert.Equal(t, int64(500), overdue[0].Remaining.Cents)

	paid, err := f.obligations.ListObligations(ctx, core.ObligationFilter{Status: core.StatusPaid, Period: &feb})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, "d1", paid[0].DebtorID)

	_, err = f.obligations.GetObligation(ctx, "d1", core.NewPeriod(1, 2024))
	assert.True(t, core.IsNotFound(err))
}
