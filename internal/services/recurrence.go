package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// DefaultDueSoonWindow is the look-ahead, in days, of IsDueSoon and DueSoon.
const DefaultDueSoonWindow = 7

// NextDue returns the occurrence after anchor for the given frequency.
// Month-based frequencies keep anchor's day, clamped to the target month:
// 2024-01-31 monthly is 2024-02-29, 2024-02-29 yearly is 2025-02-28.
func NextDue(freq core.Frequency, anchor core.Date) (core.Date, error) {
	advancer, err := GetDueAdvancer(freq)
	if err != nil {
		return core.Date{}, err
	}
	return advancer.Next(anchor, anchor.Day()), nil
}

// NextDueForRule returns the rule's next unprocessed occurrence. A rule never
// processed is first due on its start date. Afterwards the schedule steps
// from LastProcessed, aiming for the start date's day of month so that a
// rule started on the 31st returns to the 31st after a short month.
func NextDueForRule(rule core.RecurrenceRule) (core.Date, error) {
	advancer, err := GetDueAdvancer(rule.Frequency)
	if err != nil {
		return core.Date{}, err
	}
	if rule.LastProcessed.IsZero() {
		return rule.StartDate, nil
	}
	return advancer.Next(rule.LastProcessed, rule.StartDate.Day()), nil
}

// Arrears counts whole days from the next occurrence after anchor to today;
// zero when that occurrence is still in the future.
func Arrears(freq core.Frequency, anchor, today core.Date) (int, error) {
	next, err := NextDue(freq, anchor)
	if err != nil {
		return 0, err
	}
	return daysPast(next, today), nil
}

// ArrearsForRule is Arrears measured from NextDueForRule.
func ArrearsForRule(rule core.RecurrenceRule, today core.Date) (int, error) {
	next, err := NextDueForRule(rule)
	if err != nil {
		return 0, err
	}
	return daysPast(next, today), nil
}

func daysPast(due, today core.Date) int {
	if due.After(today) {
		return 0
	}
	return due.DaysUntil(today)
}

// IsDueSoon reports whether the next occurrence falls on or before today+window days.
func IsDueSoon(rule core.RecurrenceRule, today core.Date, window int) (bool, error) {
	next, err := NextDueForRule(rule)
	if err != nil {
		return false, err
	}
	return !next.After(today.AddDays(window)), nil
}

// IsExpired reports whether the rule ended before today.
func IsExpired(rule core.RecurrenceRule, today core.Date) bool {
	return !rule.EndDate.IsZero() && rule.EndDate.Before(today)
}

// RecurrenceService manages recurrence rules and materializes their occurrences.
type RecurrenceService struct {
	deps
}

func NewRecurrenceService(store storage.Store, logger *log.Logger, opts ...Option) *RecurrenceService {
	return &RecurrenceService{deps: newDeps(store, logger, log.ComponentRecurrence, opts)}
}

// CreateRule validates and stores a new rule. Processing state starts empty.
func (s *RecurrenceService) CreateRule(ctx context.Context, rule core.RecurrenceRule) (core.RecurrenceRule, error) {
	rule.ID = uuid.NewString()
	rule.LastProcessed = core.Date{}
	rule.CreatedAt = s.clock()
	if err := rule.Validate(); err != nil {
		return core.RecurrenceRule{}, err
	}
	if err := s.store.Rules().Insert(ctx, rule); err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("create recurrence rule: %w", err)
	}

	s.logger.InfoContext(ctx, "Recurrence rule created",
		log.FieldRuleID, rule.ID,
		log.FieldAccountID, rule.AccountID,
		"frequency", string(rule.Frequency))
	return rule, nil
}

func (s *RecurrenceService) GetRule(ctx context.Context, id string) (core.RecurrenceRule, error) {
	return s.store.Rules().Get(ctx, id)
}

func (s *RecurrenceService) ListRules(ctx context.Context, accountID string) ([]core.RecurrenceRule, error) {
	rules, err := s.store.Rules().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list recurrence rules: %w", err)
	}
	return rules, nil
}

// UpdateRule merges u into the stored rule and re-validates before writing.
func (s *RecurrenceService) UpdateRule(ctx context.Context, id string, u core.RuleUpdate) (core.RecurrenceRule, error) {
	var updated core.RecurrenceRule
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		rule, err := tx.Rules().Get(ctx, id)
		if err != nil {
			return err
		}
		u.Apply(&rule)
		if err := rule.Validate(); err != nil {
			return err
		}
		if err := tx.Rules().Update(ctx, rule); err != nil {
			return err
		}
		updated = rule
		return nil
	})
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("update recurrence rule: %w", err)
	}
	return updated, nil
}

// DeleteRule removes a rule. Deleting an absent rule is not an error.
func (s *RecurrenceService) DeleteRule(ctx context.Context, id string) error {
	existed, err := s.store.Rules().Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete recurrence rule: %w", err)
	}
	if existed {
		s.logger.InfoContext(ctx, "Recurrence rule deleted", log.FieldRuleID, id)
	}
	return nil
}
