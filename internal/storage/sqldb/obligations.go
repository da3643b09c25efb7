package sqldb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fintrack/internal/core"
)

type obligationRepo struct{ c conn }

const obligationColumns = `id, debtor_id, month, year, total_cents, paid_cents, status,
	payment_date, payment_method, notes, aggregated, created_at, updated_at`

func obligationKey(debtorID string, p core.Period) string {
	return debtorID + "@" + p.String()
}

func scanObligation(row rowScanner) (core.Obligation, error) {
	var (
		o                core.Obligation
		status           string
		paymentDate      sql.NullString
		created, updated string
	)
	err := row.Scan(&o.ID, &o.DebtorID, &o.Period.Month, &o.Period.Year, &o.TotalAmount.Cents,
		&o.PaidAmount.Cents, &status, &paymentDate, &o.PaymentMethod, &o.Notes, &o.Aggregated,
		&created, &updated)
	if err != nil {
		return o, err
	}
	o.Status = core.ObligationStatus(status)
	if paymentDate.Valid {
		t, err := scanTime(paymentDate.String)
		if err != nil {
			return o, err
		}
		o.PaymentDate = &t
	}
	if o.CreatedAt, err = scanTime(created); err != nil {
		return o, err
	}
	o.UpdatedAt, err = scanTime(updated)
	return o, err
}

func (r obligationRepo) get(ctx context.Context, debtorID string, p core.Period, lock string) (core.Obligation, error) {
	o, err := scanObligation(r.c.queryRow(ctx, `SELECT `+obligationColumns+` FROM obligations
		WHERE debtor_id = ? AND month = ? AND year = ?`+lock, debtorID, p.Month, p.Year))
	if err != nil {
		return core.Obligation{}, notFoundOr("get obligation", err, "obligation", obligationKey(debtorID, p))
	}
	return o, nil
}

func (r obligationRepo) Get(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error) {
	return r.get(ctx, debtorID, p, "")
}

func (r obligationRepo) GetForUpdate(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error) {
	return r.get(ctx, debtorID, p, r.c.d.forUpdate())
}

func paymentDateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeArg(*t)
}

func (r obligationRepo) insertArgs(o core.Obligation) []any {
	return []any{o.ID, o.DebtorID, o.Period.Month, o.Period.Year, o.TotalAmount.Cents, o.PaidAmount.Cents,
		string(o.Status), paymentDateArg(o.PaymentDate), o.PaymentMethod, o.Notes, o.Aggregated,
		timeArg(o.CreatedAt), timeArg(o.UpdatedAt)}
}

const insertObligation = `INSERT INTO obligations (` + obligationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r obligationRepo) Insert(ctx context.Context, o core.Obligation) error {
	if _, err := r.c.exec(ctx, insertObligation, r.insertArgs(o)...); err != nil {
		if isUniqueViolation(err) {
			return &core.ConflictError{Entity: "obligation", Key: obligationKey(o.DebtorID, o.Period), Err: err}
		}
		return wrapErr("insert obligation", err)
	}
	return nil
}

func (r obligationRepo) InsertIfAbsent(ctx context.Context, o core.Obligation) (bool, error) {
	res, err := r.c.exec(ctx, insertObligation+` ON CONFLICT (debtor_id, month, year) DO NOTHING`, r.insertArgs(o)...)
	if err != nil {
		return false, wrapErr("insert obligation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("insert obligation", err)
	}
	return n > 0, nil
}

func (r obligationRepo) UpdatePayment(ctx context.Context, o core.Obligation) error {
	res, err := r.c.exec(ctx, `UPDATE obligations SET paid_cents = ?, status = ?, payment_date = ?,
		payment_method = ?, notes = ?, updated_at = ?
		WHERE debtor_id = ? AND month = ? AND year = ?`,
		o.PaidAmount.Cents, string(o.Status), paymentDateArg(o.PaymentDate), o.PaymentMethod, o.Notes,
		timeArg(o.UpdatedAt), o.DebtorID, o.Period.Month, o.Period.Year)
	if err != nil {
		return wrapErr("update obligation", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Entity: "obligation", ID: obligationKey(o.DebtorID, o.Period)}
	}
	return nil
}

func (r obligationRepo) list(ctx context.Context, where []string, args []any) ([]core.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY year DESC, month DESC, debtor_id`

	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list obligations", err)
	}
	defer rows.Close()

	var out []core.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, wrapErr("scan obligation", err)
		}
		out = append(out, o)
	}
	return out, wrapErr("list obligations", rows.Err())
}

func (r obligationRepo) List(ctx context.Context, f core.ObligationFilter) ([]core.Obligation, error) {
	var (
		where []string
		args  []any
	)
	if f.DebtorID != "" {
		where = append(where, "debtor_id = ?")
		args = append(args, f.DebtorID)
	}
	if f.Period != nil {
		where = append(where, "month = ?", "year = ?")
		args = append(args, f.Period.Month, f.Period.Year)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	return r.list(ctx, where, args)
}

func (r obligationRepo) ListAggregatable(ctx context.Context, p core.Period) ([]core.Obligation, error) {
	return r.list(ctx,
		[]string{"month = ?", "year = ?", "status = ?", "aggregated = ?"},
		[]any{p.Month, p.Year, string(core.StatusPaid), false})
}

func (r obligationRepo) MarkAggregated(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{true, timeArg(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.c.exec(ctx, `UPDATE obligations SET aggregated = ?, updated_at = ?
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	return wrapErr("mark obligations aggregated", err)
}

func (r obligationRepo) PaidTotal(ctx context.Context, debtorID string) (core.Money, error) {
	var cents int64
	err := r.c.queryRow(ctx, `SELECT COALESCE(SUM(paid_cents), 0) FROM obligations WHERE debtor_id = ?`,
		debtorID).Scan(&cents)
	if err != nil {
		return core.Money{}, wrapErr("sum paid obligations", err)
	}
	return core.Money{Cents: cents}, nil
}
