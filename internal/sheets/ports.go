package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ReceiptWriter mirrors aggregation receipts into a spreadsheet, one row
	// per receipt.
	ReceiptWriter interface {
		AppendReceipt(ctx context.Context, r core.AggregationReceipt) (rowRef string, err error)
	}

	// ReceiptLister reports which receipts already have a row, so a mirror
	// can skip duplicates and backfill missed ones.
	ReceiptLister interface {
		MirroredReceiptIDs(ctx context.Context) (map[string]bool, error)
	}

	ReceiptMirror interface {
		ReceiptWriter
		ReceiptLister
	}
)
