package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// MaxCatchUp bounds how many occurrences of one rule a single run materializes.
const MaxCatchUp = 366

// ProcessResult summarizes one ProcessDue run.
type ProcessResult struct {
	RulesChecked int `json:"rules_checked"`
	EntriesMade  int `json:"entries_made"`
	Failed       int `json:"failed"`
	// Expired rules are left for SweepExpired and generate nothing.
	Expired int `json:"expired"`
}

// ProcessDue materializes every occurrence due on or before today into a
// ledger entry. Rules whose end date is already past are skipped. Each rule is handled in its own transaction, which also
// advances LastProcessed, so a crash never duplicates an occurrence. A
// failing rule is logged and skipped.
func (s *RecurrenceService) ProcessDue(ctx context.Context, today core.Date) (ProcessResult, error) {
	rules, err := s.store.Rules().ListAll(ctx)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("list recurrence rules: %w", err)
	}

	s.logger.InfoContext(ctx, "Processing recurrence rules",
		log.FieldCount, len(rules),
		"processing_date", today.String())

	var result ProcessResult
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if IsExpired(rule, today) {
			result.Expired++
			continue
		}
		result.RulesChecked++
		made, err := s.processRule(ctx, rule, today)
		if err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "Failed to materialize recurrence rule",
				log.FieldRuleID, rule.ID,
				log.FieldError, err)
			continue
		}
		result.EntriesMade += len(made)
		for _, e := range made {
			s.publish(ctx, events.RecurrenceMaterialized, events.RecurrencePayload{
				RuleID:    rule.ID,
				AccountID: rule.AccountID,
				EntryID:   e.ID,
				Date:      e.Date.String(),
			})
		}
	}

	s.logger.InfoContext(ctx, "Recurrence processing complete",
		"entries_made", result.EntriesMade,
		"failed", result.Failed)
	return result, nil
}

func (s *RecurrenceService) processRule(ctx context.Context, rule core.RecurrenceRule, today core.Date) ([]core.LedgerEntry, error) {
	var made []core.LedgerEntry
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		made = made[:0]
		// Re-read inside the transaction so concurrent runs see each other's progress.
		current, err := tx.Rules().Get(ctx, rule.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		for i := 0; i < MaxCatchUp; i++ {
			due, err := NextDueForRule(current)
			if err != nil {
				return err
			}
			if due.After(today) || (!current.EndDate.IsZero() && due.After(current.EndDate)) {
				break
			}
			entry := materialize(current, due, now)
			if err := tx.Entries().Insert(ctx, entry); err != nil {
				return err
			}
			current.LastProcessed = due
			made = append(made, entry)
		}
		if len(made) == 0 {
			return nil
		}
		return tx.Rules().Update(ctx, current)
	})
	if err != nil {
		return nil, err
	}
	if len(made) == MaxCatchUp {
		s.logger.WarnContext(ctx, "Recurrence catch-up limit reached, remaining occurrences wait for the next run",
			log.FieldRuleID, rule.ID)
	}
	return made, nil
}

func materialize(rule core.RecurrenceRule, due core.Date, now time.Time) core.LedgerEntry {
	return core.LedgerEntry{
		ID:          uuid.NewString(),
		AccountID:   rule.AccountID,
		Description: rule.Description,
		Amount:      rule.Amount,
		Kind:        rule.Kind,
		CategoryID:  rule.CategoryID,
		Scope:       rule.Scope,
		Date:        due,
		Reference:   &core.Reference{Type: "recurrence", Number: rule.ID},
		Splits:      []core.Split{},
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SweepExpired deletes every rule whose end date lies before today. Each rule
// is logged at warn level before the irreversible delete.
func (s *RecurrenceService) SweepExpired(ctx context.Context, today core.Date) (int, error) {
	expired, err := s.store.Rules().ListExpired(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list expired rules: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	for _, rule := range expired {
		s.logger.WarnContext(ctx, "Deleting expired recurrence rule",
			log.FieldRuleID, rule.ID,
			log.FieldAccountID, rule.AccountID,
			"description", rule.Description,
			"end_date", rule.EndDate.String(),
			log.FieldOperation, log.OpSweep)
	}

	deleted := 0
	err = s.store.WithinTx(ctx, func(tx storage.Repos) error {
		deleted = 0
		for _, rule := range expired {
			existed, err := tx.Rules().Delete(ctx, rule.ID)
			if err != nil {
				return err
			}
			if existed {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired rules: %w", err)
	}

	for _, rule := range expired {
		s.publish(ctx, events.RecurrenceSwept, events.RecurrencePayload{RuleID: rule.ID, AccountID: rule.AccountID})
	}
	s.logger.InfoContext(ctx, "Expired recurrence rules swept", log.FieldCount, deleted)
	return deleted, nil
}
