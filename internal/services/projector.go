package services

import (
	"context"
	"fmt"
	"sort"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type AccountBalance struct {
	AccountID  string     `json:"account_id"`
	Income     core.Money `json:"income"`
	Expense    core.Money `json:"expense"`
	Investment core.Money `json:"investment"`
	// Balance is income minus expense and may be negative ("-42.50").
	Balance core.Money `json:"balance"`
}

type DebtorBalance struct {
	DebtorID    string     `json:"debtor_id"`
	ActiveFees  core.Money `json:"active_fees"`
	PaidTotal   core.Money `json:"paid_total"`
	Outstanding core.Money `json:"outstanding"`
}

// DueRule is a rule whose next occurrence falls within the look-ahead window.
type DueRule struct {
	Rule        core.RecurrenceRule `json:"rule"`
	NextDue     core.Date           `json:"next_due"`
	DaysPastDue int                 `json:"days_past_due"`
}

type MonthlySummary struct {
	Period      core.Period                   `json:"period"`
	Counts      map[core.ObligationStatus]int `json:"counts"`
	Total       core.Money                    `json:"total"`
	Paid        core.Money                    `json:"paid"`
	Outstanding core.Money                    `json:"outstanding"`
	Receipt     *core.AggregationReceipt      `json:"receipt,omitempty"`
}

// Projector answers read-only balance questions. Every call recomputes from
// the store.
type Projector struct {
	deps
	window int
}

func NewProjector(store storage.Store, logger *log.Logger, dueSoonDays int, opts ...Option) *Projector {
	if dueSoonDays <= 0 {
		dueSoonDays = DefaultDueSoonWindow
	}
	return &Projector{deps: newDeps(store, logger, log.ComponentProjector, opts), window: dueSoonDays}
}

func (p *Projector) AccountBalance(ctx context.Context, accountID string) (AccountBalance, error) {
	totals, err := p.store.Entries().Totals(ctx, accountID)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("account balance: %w", err)
	}
	b := AccountBalance{
		AccountID:  accountID,
		Income:     totals[core.Income],
		Expense:    totals[core.Expense],
		Investment: totals[core.Investment],
	}
	b.Balance = b.Income.Sub(b.Expense)
	return b, nil
}

// DebtorBalance is the sum of active fees minus everything paid across all
// periods, floored at zero.
func (p *Projector) DebtorBalance(ctx context.Context, debtorID string) (DebtorBalance, error) {
	if _, err := p.store.Debtors().GetDebtor(ctx, debtorID); err != nil {
		return DebtorBalance{}, err
	}
	fees, err := p.store.Debtors().ActiveFeeTotal(ctx, debtorID)
	if err != nil {
		return DebtorBalance{}, fmt.Errorf("debtor balance: %w", err)
	}
	paid, err := p.store.Obligations().PaidTotal(ctx, debtorID)
	if err != nil {
		return DebtorBalance{}, fmt.Errorf("debtor balance: %w", err)
	}
	return DebtorBalance{
		DebtorID:    debtorID,
		ActiveFees:  fees,
		PaidTotal:   paid,
		Outstanding: fees.Sub(paid).FloorZero(),
	}, nil
}

// DueSoon lists the account's live rules due within the window, most
// overdue first, then by next due date.
func (p *Projector) DueSoon(ctx context.Context, accountID string, today core.Date) ([]DueRule, error) {
	rules, err := p.store.Rules().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("due soon: %w", err)
	}

	out := []DueRule{}
	for _, rule := range rules {
		if IsExpired(rule, today) {
			continue
		}
		next, err := NextDueForRule(rule)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping rule with unusable schedule", log.FieldRuleID, rule.ID, log.FieldError, err)
			continue
		}
		if !rule.EndDate.IsZero() && next.After(rule.EndDate) {
			continue
		}
		if next.After(today.AddDays(p.window)) {
			continue
		}
		out = append(out, DueRule{Rule: rule, NextDue: next, DaysPastDue: daysPast(next, today)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysPastDue != out[j].DaysPastDue {
			return out[i].DaysPastDue > out[j].DaysPastDue
		}
		return out[i].NextDue.Before(out[j].NextDue)
	})
	return out, nil
}

// MonthlySummary counts the period's obligations by effective status and
// attaches the receipt when the period has been aggregated.
func (p *Projector) MonthlySummary(ctx context.Context, period core.Period, today core.Date) (MonthlySummary, error) {
	if err := period.Validate(); err != nil {
		return MonthlySummary{}, err
	}
	list, err := p.store.Obligations().List(ctx, core.ObligationFilter{Period: &period})
	if err != nil {
		return MonthlySummary{}, fmt.Errorf("monthly summary: %w", err)
	}

	sum := MonthlySummary{
		Period: period,
		Counts: map[core.ObligationStatus]int{
			core.StatusPending: 0,
			core.StatusPartial: 0,
			core.StatusPaid:    0,
			core.StatusOverdue: 0,
		},
	}
	for _, o := range list {
		sum.Counts[o.StatusAt(today)]++
		sum.Total = sum.Total.Add(o.TotalAmount)
		sum.Paid = sum.Paid.Add(o.PaidAmount)
	}
	sum.Outstanding = sum.Total.Sub(sum.Paid).FloorZero()

	rc, err := p.store.Receipts().GetByPeriod(ctx, period)
	switch {
	case err == nil:
		sum.Receipt = &rc
	case !core.IsNotFound(err):
		return MonthlySummary{}, fmt.Errorf("monthly summary: %w", err)
	}
	return sum, nil
}
