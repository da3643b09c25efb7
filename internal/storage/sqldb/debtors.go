package sqldb

import (
	"context"

	"fintrack/internal/core"
)

type debtorRepo struct{ c conn }

func (r debtorRepo) UpsertDebtor(ctx context.Context, d core.Debtor) error {
	_, err := r.c.exec(ctx, `INSERT INTO debtors (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		d.ID, d.Name, d.Active)
	return wrapErr("upsert debtor", err)
}

func (r debtorRepo) UpsertSubscription(ctx context.Context, s core.Subscription) error {
	if _, err := r.GetDebtor(ctx, s.DebtorID); err != nil {
		return err
	}
	_, err := r.c.exec(ctx, `INSERT INTO subscriptions (id, debtor_id, description, fee_cents, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET debtor_id = excluded.debtor_id, description = excluded.description,
			fee_cents = excluded.fee_cents, active = excluded.active`,
		s.ID, s.DebtorID, s.Description, s.Fee.Cents, s.Active)
	return wrapErr("upsert subscription", err)
}

func (r debtorRepo) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	var d core.Debtor
	err := r.c.queryRow(ctx, `SELECT id, name, active FROM debtors WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.Active)
	if err != nil {
		return core.Debtor{}, notFoundOr("get debtor", err, "debtor", id)
	}
	return d, nil
}

func (r debtorRepo) ListActiveDebtors(ctx context.Context) ([]core.Debtor, error) {
	rows, err := r.c.query(ctx, `SELECT id, name, active FROM debtors WHERE active = ? ORDER BY name, id`, true)
	if err != nil {
		return nil, wrapErr("list debtors", err)
	}
	defer rows.Close()

	var out []core.Debtor
	for rows.Next() {
		var d core.Debtor
		if err := rows.Scan(&d.ID, &d.Name, &d.Active); err != nil {
			return nil, wrapErr("scan debtor", err)
		}
		out = append(out, d)
	}
	return out, wrapErr("list debtors", rows.Err())
}

func (r debtorRepo) ListSubscriptions(ctx context.Context, debtorID string) ([]core.Subscription, error) {
	rows, err := r.c.query(ctx, `SELECT id, debtor_id, description, fee_cents, active
		FROM subscriptions WHERE debtor_id = ? ORDER BY id`, debtorID)
	if err != nil {
		return nil, wrapErr("list subscriptions", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		var s core.Subscription
		if err := rows.Scan(&s.ID, &s.DebtorID, &s.Description, &s.Fee.Cents, &s.Active); err != nil {
			return nil, wrapErr("scan subscription", err)
		}
		out = append(out, s)
	}
	return out, wrapErr("list subscriptions", rows.Err())
}

func (r debtorRepo) ActiveFeeTotal(ctx context.Context, debtorID string) (core.Money, error) {
	var cents int64
	err := r.c.queryRow(ctx, `SELECT COALESCE(SUM(fee_cents), 0) FROM subscriptions
		WHERE debtor_id = ? AND active = ?`, debtorID, true).Scan(&cents)
	if err != nil {
		return core.Money{}, wrapErr("sum subscription fees", err)
	}
	return core.Money{Cents: cents}, nil
}
