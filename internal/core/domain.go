package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	Income     Kind = "income"
	Expense    Kind = "expense"
	Investment Kind = "investment"

	Personal Scope = "personal"
	Business Scope = "business"
	Family   Scope = "family"

	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"

	StatusPending ObligationStatus = "pending"
	StatusPartial ObligationStatus = "partial"
	StatusPaid    ObligationStatus = "paid"
	StatusOverdue ObligationStatus = "overdue"
)

const maxDescriptionLen = 200

type (
	Kind             string
	Scope            string
	Frequency        string
	ObligationStatus string

	// Reference is the optional document block attached to an entry.
	Reference struct {
		Type       string `json:"type,omitempty"`
		Number     string `json:"number,omitempty"`
		Notes      string `json:"notes,omitempty"`
		Attachment string `json:"attachment,omitempty"`
	}

	// LedgerEntry is one economic event. The amount is never negative; the
	// sign is carried by Kind.
	LedgerEntry struct {
		ID          string     `json:"id"`
		AccountID   string     `json:"account_id"`
		Description string     `json:"description"`
		Amount      Money      `json:"amount"`
		Kind        Kind       `json:"kind"`
		CategoryID  string     `json:"category_id"`
		Scope       Scope      `json:"scope"`
		Date        Date       `json:"date"`
		IsSplit     bool       `json:"is_split"`
		Reference   *Reference `json:"reference,omitempty"`
		Splits      []Split    `json:"splits"`
		Tags        []string   `json:"tags"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	Split struct {
		ID         string `json:"id"`
		EntryID    string `json:"entry_id"`
		Amount     Money  `json:"amount"`
		CategoryID string `json:"category_id"`
		Scope      Scope  `json:"scope"`
		Note       string `json:"note,omitempty"`
	}

	// RecurrenceRule is a schedule that materializes LedgerEntries.
	RecurrenceRule struct {
		ID            string    `json:"id"`
		AccountID     string    `json:"account_id"`
		Description   string    `json:"description"`
		Amount        Money     `json:"amount"`
		Kind          Kind      `json:"kind"`
		CategoryID    string    `json:"category_id"`
		Scope         Scope     `json:"scope"`
		Frequency     Frequency `json:"frequency"`
		StartDate     Date      `json:"start_date"`
		EndDate       Date      `json:"end_date"`
		LastProcessed Date      `json:"last_processed"`
		CreatedAt     time.Time `json:"created_at"`
	}

	Debtor struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}

	Subscription struct {
		ID          string `json:"id"`
		DebtorID    string `json:"debtor_id"`
		Description string `json:"description"`
		Fee         Money  `json:"fee"`
		Active      bool   `json:"active"`
	}

	// Obligation is what a debtor owes for one period.
	Obligation struct {
		ID            string           `json:"id"`
		DebtorID      string           `json:"debtor_id"`
		Period        Period           `json:"period"`
		TotalAmount   Money            `json:"total_amount"`
		PaidAmount    Money            `json:"paid_amount"`
		Status        ObligationStatus `json:"status"`
		PaymentDate   *time.Time       `json:"payment_date,omitempty"`
		PaymentMethod string           `json:"payment_method,omitempty"`
		Notes         string           `json:"notes,omitempty"`
		Aggregated    bool             `json:"aggregated"`
		CreatedAt     time.Time        `json:"created_at"`
		UpdatedAt     time.Time        `json:"updated_at"`
	}

	// AggregationReceipt records that a period has been folded into the ledger.
	AggregationReceipt struct {
		ID           string    `json:"id"`
		Period       Period    `json:"period"`
		TotalAmount  Money     `json:"total_amount"`
		PaymentCount int       `json:"payment_count"`
		EntryID      string    `json:"entry_id"`
		CreatedAt    time.Time `json:"created_at"`
	}
)

func (k Kind) Valid() bool {
	switch k {
	case Income, Expense, Investment:
		return true
	}
	return false
}

func (s Scope) Valid() bool {
	switch s {
	case Personal, Business, Family:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// NormalizeTags trims, drops empties and removes duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return NewValidationError("description", ErrEmptyDescription, "")
	}
	if len(desc) > maxDescriptionLen {
		return NewValidationError("description", nil, fmt.Sprintf("too long (max %d characters)", maxDescriptionLen))
	}
	return nil
}

func (s Split) Validate() error {
	if err := s.Amount.Validate(); err != nil {
		return NewValidationError("split.amount", err, "must be greater than zero")
	}
	if strings.TrimSpace(s.CategoryID) == "" {
		return NewValidationError("split.category_id", ErrEmptyCategory, "")
	}
	if !s.Scope.Valid() {
		return NewValidationError("split.scope", ErrUnknownScope, fmt.Sprintf("%q", s.Scope))
	}
	return nil
}

// Validate checks the header and, through ValidateSplits, the children.
func (e LedgerEntry) Validate() error {
	if strings.TrimSpace(e.AccountID) == "" {
		return NewValidationError("account_id", ErrEmptyAccount, "")
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return NewValidationError("amount", err, "must be greater than zero")
	}
	if !e.Kind.Valid() {
		return NewValidationError("kind", ErrUnknownKind, fmt.Sprintf("%q", e.Kind))
	}
	if !e.Scope.Valid() {
		return NewValidationError("scope", ErrUnknownScope, fmt.Sprintf("%q", e.Scope))
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return NewValidationError("category_id", ErrEmptyCategory, "")
	}
	if err := e.Date.Validate(); err != nil {
		return NewValidationError("date", err, "")
	}
	return e.ValidateSplits()
}

// ValidateSplits enforces the split-sum invariant: a split entry carries at
// least one split and the split amounts add up to the header amount exactly.
func (e LedgerEntry) ValidateSplits() error {
	if !e.IsSplit {
		if len(e.Splits) > 0 {
			return NewValidationError("splits", nil, "splits supplied for an entry that is not split")
		}
		return nil
	}
	if len(e.Splits) == 0 {
		return NewValidationError("splits", ErrSplitMismatch, "split entry has no splits")
	}
	var sum Money
	for _, s := range e.Splits {
		if err := s.Validate(); err != nil {
			return err
		}
		// Splits are positive, so the running sum never passes the header amount.
		if s.Amount.Cents > e.Amount.Cents-sum.Cents {
			return NewValidationError("splits", ErrSplitMismatch,
				fmt.Sprintf("splits exceed entry amount %s", e.Amount))
		}
		sum = sum.Add(s.Amount)
	}
	if sum != e.Amount {
		return NewValidationError("splits", ErrSplitMismatch,
			fmt.Sprintf("splits total %s, entry amount %s", sum, e.Amount))
	}
	return nil
}

func (r RecurrenceRule) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" {
		return NewValidationError("account_id", ErrEmptyAccount, "")
	}
	if err := r.StartDate.Validate(); err != nil {
		return NewValidationError("start_date", err, "")
	}
	if !r.EndDate.IsZero() && r.EndDate.Before(r.StartDate) {
		return NewValidationError("end_date", nil, "end date must not be before start date")
	}
	if !r.Frequency.Valid() {
		return NewValidationError("frequency", ErrUnknownFrequency, fmt.Sprintf("%q", r.Frequency))
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return NewValidationError("amount", err, "must be greater than zero")
	}
	if !r.Kind.Valid() {
		return NewValidationError("kind", ErrUnknownKind, fmt.Sprintf("%q", r.Kind))
	}
	if !r.Scope.Valid() {
		return NewValidationError("scope", ErrUnknownScope, fmt.Sprintf("%q", r.Scope))
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return NewValidationError("category_id", ErrEmptyCategory, "")
	}
	return nil
}

// StatusFor derives the stored status from the amounts.
func StatusFor(paid, total Money) ObligationStatus {
	switch {
	case paid.Cents <= 0:
		return StatusPending
	case paid.Cents >= total.Cents:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// NewObligation creates a zero-paid pending obligation with a total snapshot.
func NewObligation(id, debtorID string, period Period, total Money, now time.Time) Obligation {
	return Obligation{
		ID:          id,
		DebtorID:    debtorID,
		Period:      period,
		TotalAmount: total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (o Obligation) Remaining() Money {
	return o.TotalAmount.Sub(o.PaidAmount).FloorZero()
}

// ApplyPayment adds amount to the paid total. Overpayment is refused, not clamped.
func (o *Obligation) ApplyPayment(amount Money, method, note string, at time.Time) error {
	if err := amount.Validate(); err != nil {
		return NewValidationError("amount", err, "must be greater than zero")
	}
	if amount.Cents > o.Remaining().Cents {
		return NewValidationError("amount", ErrOverpayment,
			fmt.Sprintf("payment %s exceeds outstanding %s", amount, o.Remaining()))
	}
	o.PaidAmount = o.PaidAmount.Add(amount)
	o.Status = StatusFor(o.PaidAmount, o.TotalAmount)
	paidAt := at
	o.PaymentDate = &paidAt
	o.PaymentMethod = method
	if note = strings.TrimSpace(note); note != "" {
		if o.Notes == "" {
			o.Notes = note
		} else {
			o.Notes = o.Notes + NoteSeparator + note
		}
	}
	o.UpdatedAt = at
	return nil
}

// NoteSeparator joins payment notes accumulated on one obligation.
const NoteSeparator = " | "

// StatusAt adds the derived overdue state: the period has closed without the
// obligation being paid in full.
func (o Obligation) StatusAt(today Date) ObligationStatus {
	if o.Status != StatusPaid && o.Period.ClosedBy(today) {
		return StatusOverdue
	}
	return o.Status
}

// SortEntries orders entries by date desc, then creation time desc.
func SortEntries(entries []LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.After(entries[j].Date)
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
