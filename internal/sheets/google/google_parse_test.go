package google

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fintrack/internal/core"
)

func TestReceiptRow(t *testing.T) {
	r := core.AggregationReceipt{
		ID:           "rc-1",
		Period:       core.NewPeriod(3, 2025),
		TotalAmount:  core.NewMoney(250000),
		PaymentCount: 4,
		EntryID:      "e-1",
		CreatedAt:    time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}

	row := receiptRow(r)
	assert.Equal(t, []any{"rc-1", "03/2025", "2500.00", 4, "e-1", "2025-04-01T08:00:00Z"}, row)
	assert.Len(t, row, len(receiptHeader))
}

func TestParseReceiptIDs(t *testing.T) {
	values := [][]interface{}{
		{"Receipt ID", "Period"},
		{"rc-1", "01/2025"},
		{},
		{"  "},
		{"# manual note"},
		{"rc-2"},
		{"rc-1"},
	}

	got := parseReceiptIDs(values)
	assert.Equal(t, map[string]bool{"rc-1": true, "rc-2": true}, got)
	assert.Empty(t, parseReceiptIDs(nil))
}
