package sqldb

import (
	"context"
	"database/sql"

	"fintrack/internal/core"
)

type ruleRepo struct{ c conn }

const ruleColumns = `id, account_id, description, amount_cents, kind, category_id, scope,
	frequency, start_date, end_date, last_processed, created_at`

func (r ruleRepo) Insert(ctx context.Context, rule core.RecurrenceRule) error {
	_, err := r.c.exec(ctx, `INSERT INTO recurrence_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.AccountID, rule.Description, rule.Amount.Cents, string(rule.Kind), rule.CategoryID,
		string(rule.Scope), string(rule.Frequency), rule.StartDate.String(), dateArg(rule.EndDate),
		dateArg(rule.LastProcessed), timeArg(rule.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return &core.ConflictError{Entity: "recurrence rule", Key: rule.ID, Err: err}
		}
		return wrapErr("insert recurrence rule", err)
	}
	return nil
}

func scanRule(row rowScanner) (core.RecurrenceRule, error) {
	var (
		rule                     core.RecurrenceRule
		kind, scope, freq, start string
		end, lastProcessed       sql.NullString
		created                  string
	)
	err := row.Scan(&rule.ID, &rule.AccountID, &rule.Description, &rule.Amount.Cents, &kind, &rule.CategoryID,
		&scope, &freq, &start, &end, &lastProcessed, &created)
	if err != nil {
		return rule, err
	}
	rule.Kind, rule.Scope, rule.Frequency = core.Kind(kind), core.Scope(scope), core.Frequency(freq)
	if rule.StartDate, err = core.ParseDate(start); err != nil {
		return rule, err
	}
	if rule.EndDate, err = scanDate(end); err != nil {
		return rule, err
	}
	if rule.LastProcessed, err = scanDate(lastProcessed); err != nil {
		return rule, err
	}
	rule.CreatedAt, err = scanTime(created)
	return rule, err
}

func (r ruleRepo) Get(ctx context.Context, id string) (core.RecurrenceRule, error) {
	rule, err := scanRule(r.c.queryRow(ctx, `SELECT `+ruleColumns+` FROM recurrence_rules WHERE id = ?`, id))
	if err != nil {
		return core.RecurrenceRule{}, notFoundOr("get recurrence rule", err, "recurrence rule", id)
	}
	return rule, nil
}

func (r ruleRepo) Update(ctx context.Context, rule core.RecurrenceRule) error {
	res, err := r.c.exec(ctx, `UPDATE recurrence_rules SET description = ?, amount_cents = ?, kind = ?,
		category_id = ?, scope = ?, frequency = ?, start_date = ?, end_date = ?, last_processed = ?
		WHERE id = ?`,
		rule.Description, rule.Amount.Cents, string(rule.Kind), rule.CategoryID, string(rule.Scope),
		string(rule.Frequency), rule.StartDate.String(), dateArg(rule.EndDate), dateArg(rule.LastProcessed), rule.ID)
	if err != nil {
		return wrapErr("update recurrence rule", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Entity: "recurrence rule", ID: rule.ID}
	}
	return nil
}

func (r ruleRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.c.exec(ctx, `DELETE FROM recurrence_rules WHERE id = ?`, id)
	if err != nil {
		return false, wrapErr("delete recurrence rule", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("delete recurrence rule", err)
	}
	return n > 0, nil
}

func (r ruleRepo) list(ctx context.Context, where string, args ...any) ([]core.RecurrenceRule, error) {
	rows, err := r.c.query(ctx, `SELECT `+ruleColumns+` FROM recurrence_rules `+where+
		` ORDER BY start_date, id`, args...)
	if err != nil {
		return nil, wrapErr("list recurrence rules", err)
	}
	defer rows.Close()

	var out []core.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrapErr("scan recurrence rule", err)
		}
		out = append(out, rule)
	}
	return out, wrapErr("list recurrence rules", rows.Err())
}

func (r ruleRepo) ListByAccount(ctx context.Context, accountID string) ([]core.RecurrenceRule, error) {
	return r.list(ctx, `WHERE account_id = ?`, accountID)
}

func (r ruleRepo) ListAll(ctx context.Context) ([]core.RecurrenceRule, error) {
	return r.list(ctx, ``)
}

func (r ruleRepo) ListExpired(ctx context.Context, today core.Date) ([]core.RecurrenceRule, error) {
	return r.list(ctx, `WHERE end_date IS NOT NULL AND end_date < ?`, today.String())
}
