package worker

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// ReceiptMirror copies aggregation receipts into a spreadsheet. It reacts to
// aggregation.completed events and, at startup, backfills any receipt the
// sheet is missing.
type ReceiptMirror struct {
	receipts storage.ReceiptRepository
	sheet    sheets.ReceiptMirror
	logger   *log.Logger
}

func NewReceiptMirror(receipts storage.ReceiptRepository, sheet sheets.ReceiptMirror, logger *log.Logger) *ReceiptMirror {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReceiptMirror{
		receipts: receipts,
		sheet:    sheet,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run backfills, then consumes events until ctx is cancelled.
func (w *ReceiptMirror) Run(ctx context.Context, sub events.Subscriber) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup receipt sync failed", log.FieldError, err)
	}
	w.logger.InfoContext(ctx, "Receipt mirror consuming events")
	return sub.Consume(ctx, w.HandleEvent)
}

// HandleEvent mirrors one receipt. Other event types are acknowledged
// without action. A returned error makes the broker redeliver.
func (w *ReceiptMirror) HandleEvent(ctx context.Context, e events.Event) error {
	if e.Type != events.AggregationCompleted {
		w.logger.DebugContext(ctx, "Ignoring event", log.FieldEventType, string(e.Type), log.FieldEventID, e.ID)
		return nil
	}

	var p events.AggregationPayload
	if err := e.Decode(&p); err != nil {
		// Redelivering a malformed payload cannot help.
		w.logger.ErrorContext(ctx, "Dropping malformed aggregation event", log.FieldEventID, e.ID, log.FieldError, err)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing aggregation event",
		log.FieldEventID, e.ID,
		log.FieldReceiptID, p.ReceiptID)

	mirrored, err := w.sheet.MirroredReceiptIDs(ctx)
	if err != nil {
		return fmt.Errorf("read mirrored receipts: %w", err)
	}
	if mirrored[p.ReceiptID] {
		w.logger.InfoContext(ctx, "Receipt already mirrored", log.FieldReceiptID, p.ReceiptID)
		return nil
	}
	return w.mirror(ctx, receiptFromPayload(p))
}

// StartupSyncCheck appends every stored receipt that has no row yet. It
// recovers from missed events and worker downtime.
func (w *ReceiptMirror) StartupSyncCheck(ctx context.Context) error {
	all, err := w.receipts.List(ctx)
	if err != nil {
		return fmt.Errorf("list receipts for startup check: %w", err)
	}
	mirrored, err := w.sheet.MirroredReceiptIDs(ctx)
	if err != nil {
		return fmt.Errorf("read mirrored receipts: %w", err)
	}

	var missing []core.AggregationReceipt
	for _, r := range all {
		if !mirrored[r.ID] {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		w.logger.InfoContext(ctx, "No unmirrored receipts found on startup")
		return nil
	}

	// Oldest first so the sheet reads chronologically.
	successCount, errorCount := 0, 0
	for i := len(missing) - 1; i >= 0; i-- {
		if err := w.mirror(ctx, missing[i]); err != nil {
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup receipt sync completed",
		"total", len(missing),
		"synced", successCount,
		"errors", errorCount)
	return nil
}

func (w *ReceiptMirror) mirror(ctx context.Context, r core.AggregationReceipt) error {
	ref, err := w.sheet.AppendReceipt(ctx, r)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror receipt", log.FieldReceiptID, r.ID, log.FieldError, err)
		return fmt.Errorf("append receipt to sheet: %w", err)
	}
	w.logger.InfoContext(ctx, "Successfully mirrored receipt",
		log.FieldReceiptID, r.ID,
		log.FieldPeriod, r.Period.String(),
		log.FieldAmountCents, r.TotalAmount.Cents,
		"sheets_ref", ref)
	return nil
}

func receiptFromPayload(p events.AggregationPayload) core.AggregationReceipt {
	return core.AggregationReceipt{
		ID:           p.ReceiptID,
		Period:       core.NewPeriod(p.Month, p.Year),
		TotalAmount:  core.NewMoney(p.TotalCents),
		PaymentCount: p.PaymentCount,
		EntryID:      p.EntryID,
		CreatedAt:    p.CreatedAt,
	}
}
