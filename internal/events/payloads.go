package events

import "time"

type EntryPayload struct {
	EntryID     string `json:"entry_id"`
	AccountID   string `json:"account_id"`
	Kind        string `json:"kind,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Date        string `json:"date,omitempty"`
}

type PaymentPayload struct {
	ObligationID string `json:"obligation_id"`
	DebtorID     string `json:"debtor_id"`
	Period       string `json:"period"`
	AmountCents  int64  `json:"amount_cents"`
	PaidCents    int64  `json:"paid_cents"`
	TotalCents   int64  `json:"total_cents"`
	Status       string `json:"status"`
	Method       string `json:"method,omitempty"`
}

type GenerationPayload struct {
	Period  string `json:"period"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
}

// AggregationPayload describes a committed aggregation receipt.
type AggregationPayload struct {
	ReceiptID    string    `json:"receipt_id"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	TotalCents   int64     `json:"total_cents"`
	PaymentCount int       `json:"payment_count"`
	EntryID      string    `json:"entry_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type RecurrencePayload struct {
	RuleID    string `json:"rule_id"`
	AccountID string `json:"account_id"`
	EntryID   string `json:"entry_id,omitempty"`
	Date      string `json:"date,omitempty"`
}
