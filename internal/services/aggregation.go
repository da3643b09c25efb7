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

type AggregationOutcome string

const (
	OutcomeAggregated         AggregationOutcome = "aggregated"
	OutcomeNothingToAggregate AggregationOutcome = "nothing_to_aggregate"
	OutcomeAlreadyAggregated  AggregationOutcome = "already_aggregated"
)

// AggregationResult reports what an aggregation run did. Receipt and Entry
// are set when something was folded into the ledger; Receipt alone is set
// when the period had already been aggregated.
type AggregationResult struct {
	Outcome AggregationOutcome       `json:"outcome"`
	Period  core.Period              `json:"period"`
	Receipt *core.AggregationReceipt `json:"receipt,omitempty"`
	Entry   *core.LedgerEntry        `json:"entry,omitempty"`
}

// AggregationTarget is where fee income lands in the ledger.
type AggregationTarget struct {
	AccountID  string
	CategoryID string
}

// AggregationService folds settled obligations of a period into exactly one
// income entry, guarded by a unique receipt per period.
type AggregationService struct {
	deps
	target AggregationTarget
}

func NewAggregationService(store storage.Store, logger *log.Logger, target AggregationTarget, opts ...Option) *AggregationService {
	return &AggregationService{
		deps:   newDeps(store, logger, log.ComponentAggregation, opts),
		target: target,
	}
}

func feeIncomeDescription(p core.Period, n int) string {
	return fmt.Sprintf("Fee income %s (%d payments)", p.String(), n)
}

// Aggregate folds every paid, not yet aggregated obligation of the period into
// one income entry and writes the period's receipt, all in one transaction.
// A period with nothing eligible performs no writes. A second receipt for the
// same period fails with a ConflictError and rolls the whole unit back.
func (s *AggregationService) Aggregate(ctx context.Context, period core.Period) (AggregationResult, error) {
	if err := period.Validate(); err != nil {
		return AggregationResult{}, err
	}

	result := AggregationResult{Outcome: OutcomeNothingToAggregate, Period: period}
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		settled, err := tx.Obligations().ListAggregatable(ctx, period)
		if err != nil {
			return err
		}
		if len(settled) == 0 {
			return nil
		}

		var (
			total core.Money
			ids   = make([]string, 0, len(settled))
		)
		for _, o := range settled {
			total = total.Add(o.PaidAmount)
			ids = append(ids, o.ID)
		}

		now := s.clock()
		entry := core.LedgerEntry{
			ID:          uuid.NewString(),
			AccountID:   s.target.AccountID,
			Description: feeIncomeDescription(period, len(settled)),
			Amount:      total,
			Kind:        core.Income,
			CategoryID:  s.target.CategoryID,
			Scope:       core.Business,
			Date:        core.DateOf(now),
			Reference:   &core.Reference{Type: "aggregation", Number: period.Key()},
			Splits:      []core.Split{},
			Tags:        []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		if err := tx.Entries().Insert(ctx, entry); err != nil {
			return err
		}
		if err := tx.Obligations().MarkAggregated(ctx, ids, now); err != nil {
			return err
		}

		receipt := core.AggregationReceipt{
			ID:           uuid.NewString(),
			Period:       period,
			TotalAmount:  total,
			PaymentCount: len(settled),
			EntryID:      entry.ID,
			CreatedAt:    now,
		}
		if err := tx.Receipts().Insert(ctx, receipt); err != nil {
			return err
		}

		result.Outcome = OutcomeAggregated
		result.Entry = &entry
		result.Receipt = &receipt
		return nil
	})
	if err != nil {
		return AggregationResult{}, fmt.Errorf("aggregate %s: %w", period, err)
	}

	if result.Outcome == OutcomeNothingToAggregate {
		s.logger.InfoContext(ctx, "Nothing to aggregate", log.FieldPeriod, period.String())
		return result, nil
	}

	rc := result.Receipt
	s.logger.InfoContext(ctx, "Period aggregated",
		log.FieldPeriod, period.String(),
		log.FieldAmountCents, rc.TotalAmount.Cents,
		log.FieldCount, rc.PaymentCount,
		log.FieldEntryID, rc.EntryID)
	s.publish(ctx, events.AggregationCompleted, events.AggregationPayload{
		ReceiptID:    rc.ID,
		Month:        rc.Period.Month,
		Year:         rc.Period.Year,
		TotalCents:   rc.TotalAmount.Cents,
		PaymentCount: rc.PaymentCount,
		EntryID:      rc.EntryID,
		CreatedAt:    rc.CreatedAt,
	})
	return result, nil
}

// AutoAggregate aggregates the calendar month before now. The receipt lookup
// up front only avoids pointless work; the unique receipt constraint inside
// Aggregate is what actually prevents double aggregation.
func (s *AggregationService) AutoAggregate(ctx context.Context, now time.Time) (AggregationResult, error) {
	period := core.PeriodOf(now).Previous()

	existing, err := s.store.Receipts().GetByPeriod(ctx, period)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "Period already aggregated", log.FieldPeriod, period.String())
		return AggregationResult{Outcome: OutcomeAlreadyAggregated, Period: period, Receipt: &existing}, nil
	case !core.IsNotFound(err):
		return AggregationResult{}, fmt.Errorf("check receipt for %s: %w", period, err)
	}
	return s.Aggregate(ctx, period)
}

// History lists receipts, most recent period first.
func (s *AggregationService) History(ctx context.Context) ([]core.AggregationReceipt, error) {
	receipts, err := s.store.Receipts().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list aggregation receipts: %w", err)
	}
	return receipts, nil
}
