package core

// EntryUpdate lists every mutable field of a LedgerEntry. A nil pointer keeps
// the stored value. Splits and Tags follow replace-or-preserve semantics: a
// nil pointer leaves the children untouched, a non-nil pointer (even to an
// empty slice) replaces them wholesale.
type EntryUpdate struct {
	Description *string    `json:"description,omitempty"`
	Amount      *Money     `json:"amount,omitempty"`
	Kind        *Kind      `json:"kind,omitempty"`
	CategoryID  *string    `json:"category_id,omitempty"`
	Scope       *Scope     `json:"scope,omitempty"`
	Date        *Date      `json:"date,omitempty"`
	IsSplit     *bool      `json:"is_split,omitempty"`
	Reference   *Reference `json:"reference,omitempty"`
	Splits      *[]Split   `json:"splits,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
}

// ReplacesSplits reports whether the update carries a split set.
func (u EntryUpdate) ReplacesSplits() bool { return u.Splits != nil }

// ReplacesTags reports whether the update carries a tag set.
func (u EntryUpdate) ReplacesTags() bool { return u.Tags != nil }

// Apply merges the header fields of u into e. Children are handled by the caller.
func (u EntryUpdate) Apply(e *LedgerEntry) {
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Kind != nil {
		e.Kind = *u.Kind
	}
	if u.CategoryID != nil {
		e.CategoryID = *u.CategoryID
	}
	if u.Scope != nil {
		e.Scope = *u.Scope
	}
	if u.Date != nil {
		e.Date = *u.Date
	}
	if u.IsSplit != nil {
		e.IsSplit = *u.IsSplit
	}
	if u.Reference != nil {
		ref := *u.Reference
		e.Reference = &ref
	}
	if u.Splits != nil {
		e.Splits = append([]Split(nil), (*u.Splits)...)
	}
	if u.Tags != nil {
		e.Tags = NormalizeTags(*u.Tags)
	}
}

// RuleUpdate lists every mutable field of a RecurrenceRule.
// ClearEndDate removes the end date; EndDate sets it.
type RuleUpdate struct {
	Description  *string    `json:"description,omitempty"`
	Amount       *Money     `json:"amount,omitempty"`
	Kind         *Kind      `json:"kind,omitempty"`
	CategoryID   *string    `json:"category_id,omitempty"`
	Scope        *Scope     `json:"scope,omitempty"`
	Frequency    *Frequency `json:"frequency,omitempty"`
	StartDate    *Date      `json:"start_date,omitempty"`
	EndDate      *Date      `json:"end_date,omitempty"`
	ClearEndDate bool       `json:"clear_end_date,omitempty"`
}

func (u RuleUpdate) Apply(r *RecurrenceRule) {
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Amount != nil {
		r.Amount = *u.Amount
	}
	if u.Kind != nil {
		r.Kind = *u.Kind
	}
	if u.CategoryID != nil {
		r.CategoryID = *u.CategoryID
	}
	if u.Scope != nil {
		r.Scope = *u.Scope
	}
	if u.Frequency != nil {
		r.Frequency = *u.Frequency
	}
	if u.StartDate != nil {
		r.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		r.EndDate = *u.EndDate
	}
	if u.ClearEndDate {
		r.EndDate = Date{}
	}
}

// EntryFilter is a conjunction of optional predicates. Empty sets match everything.
type EntryFilter struct {
	From        Date
	To          Date
	Kinds       []Kind
	CategoryIDs []string
	Scopes      []Scope
}

// Matches evaluates the filter in memory.
func (f EntryFilter) Matches(e LedgerEntry) bool {
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, e.Kind) {
		return false
	}
	if len(f.CategoryIDs) > 0 && !contains(f.CategoryIDs, e.CategoryID) {
		return false
	}
	if len(f.Scopes) > 0 && !contains(f.Scopes, e.Scope) {
		return false
	}
	return true
}

func (f EntryFilter) Validate() error {
	for _, k := range f.Kinds {
		if !k.Valid() {
			return NewValidationError("kind", ErrUnknownKind, string(k))
		}
	}
	for _, s := range f.Scopes {
		if !s.Valid() {
			return NewValidationError("scope", ErrUnknownScope, string(s))
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return NewValidationError("to", nil, "range end is before range start")
	}
	return nil
}

// ObligationFilter selects obligations; zero values match everything.
type ObligationFilter struct {
	DebtorID string
	Period   *Period
	Status   ObligationStatus
}

func (f ObligationFilter) Matches(o Obligation) bool {
	if f.DebtorID != "" && o.DebtorID != f.DebtorID {
		return false
	}
	if f.Period != nil && o.Period != *f.Period {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
