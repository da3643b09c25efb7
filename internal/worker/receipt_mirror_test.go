package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/events"
	sheetmem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage/memory"
)

// replaySubscriber hands a fixed list of events to the handler and records
// which ones the handler rejected.
type replaySubscriber struct {
	events   []events.Event
	rejected []string
}

func (s *replaySubscriber) Consume(ctx context.Context, h events.Handler) error {
	for _, e := range s.events {
		if err := h(ctx, e); err != nil {
			s.rejected = append(s.rejected, e.ID)
		}
	}
	return nil
}

func (s *replaySubscriber) Close() error { return nil }

func receipt(id string, month, year int) core.AggregationReceipt {
	return core.AggregationReceipt{
		ID:           id,
		Period:       core.NewPeriod(month, year),
		TotalAmount:  core.NewMoney(2500),
		PaymentCount: 2,
		EntryID:      "entry-" + id,
		CreatedAt:    time.Date(year, time.Month(month), 28, 9, 0, 0, 0, time.UTC),
	}
}

func aggregationEvent(t *testing.T, r core.AggregationReceipt) events.Event {
	t.Helper()
	e, err := events.New(events.AggregationCompleted, events.AggregationPayload{
		ReceiptID:    r.ID,
		Month:        r.Period.Month,
		Year:         r.Period.Year,
		TotalCents:   r.TotalAmount.Cents,
		PaymentCount: r.PaymentCount,
		EntryID:      r.EntryID,
		CreatedAt:    r.CreatedAt,
	})
	require.NoError(t, err)
	return e
}

func TestReceiptMirror_HandleEvent(t *testing.T) {
	ctx := context.Background()
	sheet := sheetmem.New()
	w := NewReceiptMirror(memory.New().Receipts(), sheet, nil)

	r := receipt("rc-1", 3, 2025)
	require.NoError(t, w.HandleEvent(ctx, aggregationEvent(t, r)))
	require.NoError(t, w.HandleEvent(ctx, aggregationEvent(t, r)), "redelivery is harmless")

	rows := sheet.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, r, rows[0])
}

func TestReceiptMirror_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	sheet := sheetmem.New()
	w := NewReceiptMirror(memory.New().Receipts(), sheet, nil)

	e, err := events.New(events.EntryCreated, events.EntryPayload{EntryID: "e-1"})
	require.NoError(t, err)
	require.NoError(t, w.HandleEvent(ctx, e))

	malformed := events.Event{ID: "bad", Type: events.AggregationCompleted, Payload: json.RawMessage(`"nope"`)}
	require.NoError(t, w.HandleEvent(ctx, malformed))

	assert.Empty(t, sheet.Rows())
}

func TestReceiptMirror_SheetFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	sheet := sheetmem.New()
	sheet.FailWith = errors.New("quota exceeded")
	w := NewReceiptMirror(memory.New().Receipts(), sheet, nil)

	err := w.HandleEvent(ctx, aggregationEvent(t, receipt("rc-1", 3, 2025)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestReceiptMirror_StartupSyncCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, r := range []core.AggregationReceipt{receipt("rc-jan", 1, 2025), receipt("rc-feb", 2, 2025), receipt("rc-mar", 3, 2025)} {
		require.NoError(t, store.Receipts().Insert(ctx, r))
	}
	sheet := sheetmem.New()
	_, err := sheet.AppendReceipt(ctx, receipt("rc-feb", 2, 2025))
	require.NoError(t, err)

	w := NewReceiptMirror(store.Receipts(), sheet, nil)
	require.NoError(t, w.StartupSyncCheck(ctx))

	var ids []string
	for _, r := range sheet.Rows() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"rc-feb", "rc-jan", "rc-mar"}, ids)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Len(t, sheet.Rows(), 3)
}

func TestReceiptMirror_Run(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Receipts().Insert(ctx, receipt("rc-old", 1, 2025)))
	sheet := sheetmem.New()
	w := NewReceiptMirror(store.Receipts(), sheet, nil)

	other, err := events.New(events.PaymentRecorded, events.PaymentPayload{DebtorID: "d1"})
	require.NoError(t, err)
	sub := &replaySubscriber{events: []events.Event{other, aggregationEvent(t, receipt("rc-new", 2, 2025))}}

	require.NoError(t, w.Run(ctx, sub))
	assert.Empty(t, sub.rejected)
	require.Len(t, sheet.Rows(), 2)
	assert.Equal(t, "rc-old", sheet.Rows()[0].ID)
	assert.Equal(t, "rc-new", sheet.Rows()[1].ID)
}
