package google

import (
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
)

// receiptHeader is written once to an empty sheet. Column A carries the
// receipt id and is what the mirror reads back.
var receiptHeader = []any{"Receipt ID", "Period", "Total", "Payments", "Entry ID", "Created At"}

func receiptRow(r core.AggregationReceipt) []any {
	return []any{
		r.ID,
		r.Period.String(),
		r.TotalAmount.String(),
		r.PaymentCount,
		r.EntryID,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// parseReceiptIDs extracts the ids in column A, skipping the header row,
// blanks and comment rows.
func parseReceiptIDs(values [][]interface{}) map[string]bool {
	out := make(map[string]bool, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" || strings.HasPrefix(v, "#") {
			continue
		}
		if i == 0 && strings.EqualFold(v, fmt.Sprint(receiptHeader[0])) {
			continue
		}
		out[v] = true
	}
	return out
}
