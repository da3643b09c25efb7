package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// PaymentRequest records money received from a debtor for one period.
type PaymentRequest struct {
	DebtorID string      `json:"debtor_id"`
	Period   core.Period `json:"period"`
	Amount   core.Money  `json:"amount"`
	Method   string      `json:"method"`
	Note     string      `json:"note"`
}

func (r PaymentRequest) Validate() error {
	if strings.TrimSpace(r.DebtorID) == "" {
		return core.NewValidationError("debtor_id", nil, "required")
	}
	if err := r.Period.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return core.NewValidationError("amount", err, "must be greater than zero")
	}
	return nil
}

// GenerationResult lists debtor ids per outcome.
type GenerationResult struct {
	Period  core.Period `json:"period"`
	Created []string    `json:"created"`
	Skipped []string    `json:"skipped"`
	Ignored []string    `json:"ignored"`
}

// ObligationView adds the date-dependent fields to a stored obligation.
type ObligationView struct {
	core.Obligation
	EffectiveStatus core.ObligationStatus `json:"effective_status"`
	Remaining       core.Money            `json:"remaining"`
}

// ObligationService tracks what debtors owe per period and records payments.
type ObligationService struct {
	deps
}

func NewObligationService(store storage.Store, logger *log.Logger, opts ...Option) *ObligationService {
	return &ObligationService{deps: newDeps(store, logger, log.ComponentObligations, opts)}
}

// RecordPayment applies a payment inside one transaction holding the
// obligation row. The first payment of a period creates the obligation with a
// snapshot of the debtor's active fees. Overpayment is refused. When two
// first payments race, the loser sees a ConflictError and is retried once,
// taking the existing-obligation path.
func (s *ObligationService) RecordPayment(ctx context.Context, req PaymentRequest) (core.Obligation, error) {
	req.Method = strings.TrimSpace(req.Method)
	if err := req.Validate(); err != nil {
		return core.Obligation{}, err
	}

	var (
		o   core.Obligation
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		o, err = s.recordOnce(ctx, req)
		if err == nil || !core.IsConflict(err) || attempt > 0 {
			break
		}
		s.logger.WarnContext(ctx, "Obligation created concurrently, retrying payment",
			log.FieldDebtorID, req.DebtorID,
			log.FieldPeriod, req.Period.String())
	}
	if err != nil {
		return core.Obligation{}, fmt.Errorf("record payment: %w", err)
	}

	s.logger.InfoContext(ctx, "Payment recorded",
		log.FieldDebtorID, o.DebtorID,
		log.FieldPeriod, o.Period.String(),
		log.FieldAmountCents, req.Amount.Cents,
		"paid_cents", o.PaidAmount.Cents,
		"status", string(o.Status))
	s.publish(ctx, events.PaymentRecorded, events.PaymentPayload{
		ObligationID: o.ID,
		DebtorID:     o.DebtorID,
		Period:       o.Period.String(),
		AmountCents:  req.Amount.Cents,
		PaidCents:    o.PaidAmount.Cents,
		TotalCents:   o.TotalAmount.Cents,
		Status:       string(o.Status),
		Method:       o.PaymentMethod,
	})
	return o, nil
}

func (s *ObligationService) recordOnce(ctx context.Context, req PaymentRequest) (core.Obligation, error) {
	var result core.Obligation
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		now := s.clock()
		o, err := tx.Obligations().GetForUpdate(ctx, req.DebtorID, req.Period)
		switch {
		case err == nil:
			if err := o.ApplyPayment(req.Amount, req.Method, req.Note, now); err != nil {
				return err
			}
			if err := tx.Obligations().UpdatePayment(ctx, o); err != nil {
				return err
			}
		case core.IsNotFound(err):
			total, err := tx.Debtors().ActiveFeeTotal(ctx, req.DebtorID)
			if err != nil {
				return err
			}
			if !total.IsPositive() {
				return &core.NotFoundError{Entity: "active subscription for debtor", ID: req.DebtorID}
			}
			o = core.NewObligation(uuid.NewString(), req.DebtorID, req.Period, total, now)
			if err := o.ApplyPayment(req.Amount, req.Method, req.Note, now); err != nil {
				return err
			}
			if err := tx.Obligations().Insert(ctx, o); err != nil {
				return err
			}
		default:
			return err
		}
		result = o
		return nil
	})
	return result, err
}

// GeneratePeriodObligations creates a pending obligation for every active
// debtor that owes something in the period. Existing obligations are left
// untouched, so running it twice is harmless.
func (s *ObligationService) GeneratePeriodObligations(ctx context.Context, period core.Period) (GenerationResult, error) {
	if err := period.Validate(); err != nil {
		return GenerationResult{}, err
	}
	debtors, err := s.store.Debtors().ListActiveDebtors(ctx)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("list active debtors: %w", err)
	}

	var result GenerationResult
	err = s.store.WithinTx(ctx, func(tx storage.Repos) error {
		result = GenerationResult{Period: period, Created: []string{}, Skipped: []string{}, Ignored: []string{}}
		now := s.clock()
		for _, d := range debtors {
			total, err := tx.Debtors().ActiveFeeTotal(ctx, d.ID)
			if err != nil {
				return err
			}
			if !total.IsPositive() {
				result.Ignored = append(result.Ignored, d.ID)
				continue
			}
			created, err := tx.Obligations().InsertIfAbsent(ctx, core.NewObligation(uuid.NewString(), d.ID, period, total, now))
			if err != nil {
				return err
			}
			if created {
				result.Created = append(result.Created, d.ID)
			} else {
				result.Skipped = append(result.Skipped, d.ID)
			}
		}
		return nil
	})
	if err != nil {
		return GenerationResult{}, fmt.Errorf("generate obligations: %w", err)
	}

	s.logger.InfoContext(ctx, "Period obligations generated",
		log.FieldPeriod, period.String(),
		"created", len(result.Created),
		"skipped", len(result.Skipped),
		"ignored", len(result.Ignored))
	s.publish(ctx, events.ObligationsGenerated, events.GenerationPayload{
		Period:  period.String(),
		Created: len(result.Created),
		Skipped: len(result.Skipped),
	})
	return result, nil
}

func (s *ObligationService) view(o core.Obligation) ObligationView {
	return ObligationView{
		Obligation:      o,
		EffectiveStatus: o.StatusAt(s.today()),
		Remaining:       o.Remaining(),
	}
}

func (s *ObligationService) GetObligation(ctx context.Context, debtorID string, period core.Period) (ObligationView, error) {
	o, err := s.store.Obligations().Get(ctx, debtorID, period)
	if err != nil {
		return ObligationView{}, err
	}
	return s.view(o), nil
}

// ListObligations filters on stored fields. Filtering on StatusOverdue
// selects by effective status instead.
func (s *ObligationService) ListObligations(ctx context.Context, f core.ObligationFilter) ([]ObligationView, error) {
	wantOverdue := f.Status == core.StatusOverdue
	if wantOverdue {
		f.Status = ""
	}
	list, err := s.store.Obligations().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	out := make([]ObligationView, 0, len(list))
	for _, o := range list {
		v := s.view(o)
		if wantOverdue && v.EffectiveStatus != core.StatusOverdue {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
