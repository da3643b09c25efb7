package sqldb

import (
	"context"

	"fintrack/internal/core"
)

type receiptRepo struct{ c conn }

const receiptColumns = `id, month, year, total_cents, payment_count, entry_id, created_at`

func (r receiptRepo) Insert(ctx context.Context, rc core.AggregationReceipt) error {
	_, err := r.c.exec(ctx, `INSERT INTO aggregation_receipts (`+receiptColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.Period.Month, rc.Period.Year, rc.TotalAmount.Cents, rc.PaymentCount, rc.EntryID,
		timeArg(rc.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return &core.ConflictError{Entity: "aggregation receipt", Key: rc.Period.String(), Err: err}
		}
		return wrapErr("insert aggregation receipt", err)
	}
	return nil
}

func scanReceipt(row rowScanner) (core.AggregationReceipt, error) {
	var (
		rc      core.AggregationReceipt
		created string
	)
	err := row.Scan(&rc.ID, &rc.Period.Month, &rc.Period.Year, &rc.TotalAmount.Cents, &rc.PaymentCount,
		&rc.EntryID, &created)
	if err != nil {
		return rc, err
	}
	rc.CreatedAt, err = scanTime(created)
	return rc, err
}

func (r receiptRepo) GetByPeriod(ctx context.Context, p core.Period) (core.AggregationReceipt, error) {
	rc, err := scanReceipt(r.c.queryRow(ctx, `SELECT `+receiptColumns+` FROM aggregation_receipts
		WHERE month = ? AND year = ?`, p.Month, p.Year))
	if err != nil {
		return core.AggregationReceipt{}, notFoundOr("get aggregation receipt", err, "aggregation receipt", p.String())
	}
	return rc, nil
}

func (r receiptRepo) List(ctx context.Context) ([]core.AggregationReceipt, error) {
	rows, err := r.c.query(ctx, `SELECT `+receiptColumns+` FROM aggregation_receipts
		ORDER BY year DESC, month DESC`)
	if err != nil {
		return nil, wrapErr("list aggregation receipts", err)
	}
	defer rows.Close()

	var out []core.AggregationReceipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, wrapErr("scan aggregation receipt", err)
		}
		out = append(out, rc)
	}
	return out, wrapErr("list aggregation receipts", rows.Err())
}
