package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry() LedgerEntry {
	return LedgerEntry{
		AccountID:   "acc-1",
		Description: "Groceries",
		Amount:      Money{Cents: 1000},
		Kind:        Expense,
		CategoryID:  "food",
		Scope:       Family,
		Date:        NewDate(2025, 3, 10),
	}
}

func TestLedgerEntryValidate(t *testing.T) {
	require.NoError(t, validEntry().Validate())

	tests := []struct {
		name   string
		mutate func(e *LedgerEntry)
		field  string
	}{
		{"missing account", func(e *LedgerEntry) { e.AccountID = " " }, "account_id"},
		{"empty description", func(e *LedgerEntry) { e.Description = "" }, "description"},
		{"zero amount", func(e *LedgerEntry) { e.Amount = Money{} }, "amount"},
		{"negative amount", func(e *LedgerEntry) { e.Amount = Money{Cents: -5} }, "amount"},
		{"unknown kind", func(e *LedgerEntry) { e.Kind = "gift" }, "kind"},
		{"unknown scope", func(e *LedgerEntry) { e.Scope = "corporate" }, "scope"},
		{"missing category", func(e *LedgerEntry) { e.CategoryID = "" }, "category_id"},
		{"zero date", func(e *LedgerEntry) { e.Date = Date{} }, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEntry()
			tt.mutate(&e)
			err := e.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLedgerEntryValidateSplits(t *testing.T) {
	t.Run("sum matches", func(t *testing.T) {
		e := validEntry()
		e.IsSplit = true
		e.Splits = []Split{
			{Amount: Money{Cents: 600}, CategoryID: "food", Scope: Family},
			{Amount: Money{Cents: 400}, CategoryID: "home", Scope: Personal},
		}
		assert.NoError(t, e.Validate())
	})

	t.Run("sum mismatch", func(t *testing.T) {
		e := validEntry()
		e.IsSplit = true
		e.Splits = []Split{{Amount: Money{Cents: 999}, CategoryID: "food", Scope: Family}}
		err := e.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSplitMismatch)
	})

	t.Run("overflowing splits", func(t *testing.T) {
		e := validEntry()
		e.Amount = Money{Cents: 1}
		e.IsSplit = true
		e.Splits = []Split{
			{Amount: Money{Cents: math.MaxInt64}, CategoryID: "food", Scope: Family},
			{Amount: Money{Cents: math.MaxInt64}, CategoryID: "food", Scope: Family},
			{Amount: Money{Cents: 3}, CategoryID: "food", Scope: Family},
		}
		assert.ErrorIs(t, e.Validate(), ErrSplitMismatch)
	})

	t.Run("split flag without splits", func(t *testing.T) {
		e := validEntry()
		e.IsSplit = true
		assert.ErrorIs(t, e.Validate(), ErrSplitMismatch)
	})

	t.Run("splits without flag", func(t *testing.T) {
		e := validEntry()
		e.Splits = []Split{{Amount: Money{Cents: 1000}, CategoryID: "food", Scope: Family}}
		assert.True(t, IsValidation(e.Validate()))
	})

	t.Run("invalid split scope", func(t *testing.T) {
		e := validEntry()
		e.IsSplit = true
		e.Splits = []Split{{Amount: Money{Cents: 1000}, CategoryID: "food", Scope: "x"}}
		assert.ErrorIs(t, e.Validate(), ErrUnknownScope)
	})
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" rent ", "home", "", "rent", "home"})
	assert.Equal(t, []string{"rent", "home"}, got)
	assert.Empty(t, NormalizeTags(nil))
}

func TestRecurrenceRuleValidate(t *testing.T) {
	good := RecurrenceRule{
		AccountID:   "acc-1",
		Description: "Rent",
		Amount:      Money{Cents: 90000},
		Kind:        Expense,
		CategoryID:  "housing",
		Scope:       Family,
		Frequency:   Monthly,
		StartDate:   NewDate(2025, 1, 31),
	}
	require.NoError(t, good.Validate())

	bad := good
	bad.Frequency = "hourly"
	assert.ErrorIs(t, bad.Validate(), ErrUnknownFrequency)

	bad = good
	bad.EndDate = NewDate(2024, 12, 1)
	assert.True(t, IsValidation(bad.Validate()))

	bad = good
	bad.StartDate = Date{}
	assert.True(t, IsValidation(bad.Validate()))
}

func TestStatusFor(t *testing.T) {
	total := Money{Cents: 100000}
	assert.Equal(t, StatusPending, StatusFor(Money{}, total))
	assert.Equal(t, StatusPartial, StatusFor(Money{Cents: 40000}, total))
	assert.Equal(t, StatusPaid, StatusFor(total, total))
}

func TestObligationApplyPayment(t *testing.T) {
	now := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	o := NewObligation("ob-1", "debtor-1", NewPeriod(3, 2025), Money{Cents: 100000}, now)

	require.NoError(t, o.ApplyPayment(Money{Cents: 40000}, "cash", "first", now))
	assert.Equal(t, StatusPartial, o.Status)
	assert.Equal(t, int64(40000), o.PaidAmount.Cents)
	assert.Equal(t, "cash", o.PaymentMethod)
	require.NotNil(t, o.PaymentDate)

	require.NoError(t, o.ApplyPayment(Money{Cents: 60000}, "card", "second", now.Add(time.Hour)))
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, int64(100000), o.PaidAmount.Cents)
	assert.Equal(t, "first"+NoteSeparator+"second", o.Notes)
	assert.Equal(t, "card", o.PaymentMethod)

	err := o.ApplyPayment(Money{Cents: 1}, "cash", "", now)
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Equal(t, int64(100000), o.PaidAmount.Cents)

	assert.True(t, IsValidation(o.ApplyPayment(Money{}, "cash", "", now)))
}

func TestObligationStatusAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	o := NewObligation("ob-1", "d", NewPeriod(3, 2025), Money{Cents: 1000}, now)

	assert.Equal(t, StatusPending, o.StatusAt(NewDate(2025, 3, 31)))
	assert.Equal(t, StatusOverdue, o.StatusAt(NewDate(2025, 4, 1)))

	require.NoError(t, o.ApplyPayment(Money{Cents: 1000}, "cash", "", now))
	assert.Equal(t, StatusPaid, o.StatusAt(NewDate(2025, 6, 1)))
}

func TestEntryUpdateApply(t *testing.T) {
	e := validEntry()
	e.Tags = []string{"a"}
	desc := "Weekly groceries"
	empty := []string{}
	EntryUpdate{Description: &desc, Tags: &empty}.Apply(&e)

	assert.Equal(t, "Weekly groceries", e.Description)
	assert.Empty(t, e.Tags)
	assert.Equal(t, int64(1000), e.Amount.Cents)

	u := EntryUpdate{}
	assert.False(t, u.ReplacesSplits())
	assert.False(t, u.ReplacesTags())
}

func TestEntryFilterMatches(t *testing.T) {
	e := validEntry()
	assert.True(t, EntryFilter{}.Matches(e))
	assert.True(t, EntryFilter{From: NewDate(2025, 3, 1), To: NewDate(2025, 3, 31)}.Matches(e))
	assert.False(t, EntryFilter{From: NewDate(2025, 3, 11)}.Matches(e))
	assert.False(t, EntryFilter{Kinds: []Kind{Income}}.Matches(e))
	assert.True(t, EntryFilter{Kinds: []Kind{Income, Expense}, Scopes: []Scope{Family}}.Matches(e))
	assert.False(t, EntryFilter{CategoryIDs: []string{"rent"}}.Matches(e))
}
