package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

type entryRepo struct{ c conn }

const entryColumns = `id, account_id, description, amount_cents, kind, category_id, scope,
	entry_date, is_split, ref_type, ref_number, ref_notes, ref_attachment, created_at, updated_at`

func refArgs(ref *core.Reference) []any {
	if ref == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{nullString(ref.Type), nullString(ref.Number), nullString(ref.Notes), nullString(ref.Attachment)}
}

func (r entryRepo) Insert(ctx context.Context, e core.LedgerEntry) error {
	args := []any{e.ID, e.AccountID, e.Description, e.Amount.Cents, string(e.Kind), e.CategoryID,
		string(e.Scope), e.Date.String(), e.IsSplit}
	args = append(args, refArgs(e.Reference)...)
	args = append(args, timeArg(e.CreatedAt), timeArg(e.UpdatedAt))

	_, err := r.c.exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return &core.ConflictError{Entity: "ledger entry", Key: e.ID, Err: err}
		}
		return wrapErr("insert ledger entry", err)
	}
	if err := r.insertSplits(ctx, e.ID, e.Splits); err != nil {
		return err
	}
	return r.insertTags(ctx, e.ID, e.Tags)
}

func (r entryRepo) insertSplits(ctx context.Context, entryID string, splits []core.Split) error {
	for i, s := range splits {
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := r.c.exec(ctx, `INSERT INTO entry_splits (id, entry_id, position, amount_cents, category_id, scope, note)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, entryID, i, s.Amount.Cents, s.CategoryID, string(s.Scope), s.Note)
		if err != nil {
			return wrapErr("insert entry split", err)
		}
	}
	return nil
}

func (r entryRepo) insertTags(ctx context.Context, entryID string, tags []string) error {
	for i, tag := range core.NormalizeTags(tags) {
		if _, err := r.c.exec(ctx, `INSERT INTO entry_tags (entry_id, tag, position) VALUES (?, ?, ?)`,
			entryID, tag, i); err != nil {
			return wrapErr("insert entry tag", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (core.LedgerEntry, error) {
	var (
		e                         core.LedgerEntry
		kind, scope, date         string
		refType, refNum, refNotes sql.NullString
		refAttachment             sql.NullString
		created, updated          string
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.Description, &e.Amount.Cents, &kind, &e.CategoryID, &scope,
		&date, &e.IsSplit, &refType, &refNum, &refNotes, &refAttachment, &created, &updated)
	if err != nil {
		return e, err
	}
	e.Kind, e.Scope = core.Kind(kind), core.Scope(scope)
	if e.Date, err = core.ParseDate(date); err != nil {
		return e, err
	}
	if refType.Valid || refNum.Valid || refNotes.Valid || refAttachment.Valid {
		e.Reference = &core.Reference{
			Type:       refType.String,
			Number:     refNum.String,
			Notes:      refNotes.String,
			Attachment: refAttachment.String,
		}
	}
	if e.CreatedAt, err = scanTime(created); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = scanTime(updated); err != nil {
		return e, err
	}
	return e, nil
}

func (r entryRepo) Get(ctx context.Context, id string) (core.LedgerEntry, error) {
	row := r.c.queryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return core.LedgerEntry{}, notFoundOr("get ledger entry", err, "ledger entry", id)
	}
	entries := []core.LedgerEntry{e}
	if err := r.loadChildren(ctx, entries); err != nil {
		return core.LedgerEntry{}, err
	}
	return entries[0], nil
}

// loadChildren fills Splits and Tags for a batch of entries with two queries.
func (r entryRepo) loadChildren(ctx context.Context, entries []core.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	index := make(map[string]int, len(entries))
	ids := make([]any, len(entries))
	for i := range entries {
		index[entries[i].ID] = i
		ids[i] = entries[i].ID
		entries[i].Splits = []core.Split{}
		entries[i].Tags = []string{}
	}
	in := placeholders(len(ids))

	rows, err := r.c.query(ctx, `SELECT id, entry_id, amount_cents, category_id, scope, note
		FROM entry_splits WHERE entry_id IN (`+in+`) ORDER BY entry_id, position`, ids...)
	if err != nil {
		return wrapErr("list entry splits", err)
	}
	for rows.Next() {
		var (
			s     core.Split
			scope string
		)
		if err := rows.Scan(&s.ID, &s.EntryID, &s.Amount.Cents, &s.CategoryID, &scope, &s.Note); err != nil {
			rows.Close()
			return wrapErr("scan entry split", err)
		}
		s.Scope = core.Scope(scope)
		i := index[s.EntryID]
		entries[i].Splits = append(entries[i].Splits, s)
	}
	if err := rows.Close(); err != nil {
		return wrapErr("list entry splits", err)
	}
	if err := rows.Err(); err != nil {
		return wrapErr("list entry splits", err)
	}

	rows, err = r.c.query(ctx, `SELECT entry_id, tag FROM entry_tags
		WHERE entry_id IN (`+in+`) ORDER BY entry_id, position`, ids...)
	if err != nil {
		return wrapErr("list entry tags", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entryID, tag string
		if err := rows.Scan(&entryID, &tag); err != nil {
			return wrapErr("scan entry tag", err)
		}
		i := index[entryID]
		entries[i].Tags = append(entries[i].Tags, tag)
	}
	return wrapErr("list entry tags", rows.Err())
}

func (r entryRepo) UpdateHeader(ctx context.Context, e core.LedgerEntry) error {
	args := []any{e.Description, e.Amount.Cents, string(e.Kind), e.CategoryID, string(e.Scope),
		e.Date.String(), e.IsSplit}
	args = append(args, refArgs(e.Reference)...)
	args = append(args, timeArg(e.UpdatedAt), e.ID)

	res, err := r.c.exec(ctx, `UPDATE ledger_entries SET description = ?, amount_cents = ?, kind = ?,
		category_id = ?, scope = ?, entry_date = ?, is_split = ?, ref_type = ?, ref_number = ?,
		ref_notes = ?, ref_attachment = ?, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return wrapErr("update ledger entry", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &core.NotFoundError{Entity: "ledger entry", ID: e.ID}
	}
	return nil
}

func (r entryRepo) ReplaceSplits(ctx context.Context, entryID string, splits []core.Split) error {
	if _, err := r.c.exec(ctx, `DELETE FROM entry_splits WHERE entry_id = ?`, entryID); err != nil {
		return wrapErr("delete entry splits", err)
	}
	return r.insertSplits(ctx, entryID, splits)
}

func (r entryRepo) ReplaceTags(ctx context.Context, entryID string, tags []string) error {
	if _, err := r.c.exec(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return wrapErr("delete entry tags", err)
	}
	return r.insertTags(ctx, entryID, tags)
}

func (r entryRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := r.c.exec(ctx, `DELETE FROM entry_splits WHERE entry_id = ?`, id); err != nil {
		return false, wrapErr("delete entry splits", err)
	}
	if _, err := r.c.exec(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, id); err != nil {
		return false, wrapErr("delete entry tags", err)
	}
	res, err := r.c.exec(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return false, wrapErr("delete ledger entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("delete ledger entry", err)
	}
	return n > 0, nil
}

func (r entryRepo) List(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error) {
	where := []string{"account_id = ?"}
	args := []any{accountID}
	if !f.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, f.To.String())
	}
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if len(f.CategoryIDs) > 0 {
		where = append(where, "category_id IN ("+placeholders(len(f.CategoryIDs))+")")
		for _, c := range f.CategoryIDs {
			args = append(args, c)
		}
	}
	if len(f.Scopes) > 0 {
		where = append(where, "scope IN ("+placeholders(len(f.Scopes))+")")
		for _, s := range f.Scopes {
			args = append(args, string(s))
		}
	}

	rows, err := r.c.query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY entry_date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, wrapErr("scan ledger entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Close(); err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list ledger entries", err)
	}
	if err := r.loadChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r entryRepo) Totals(ctx context.Context, accountID string) (map[core.Kind]core.Money, error) {
	rows, err := r.c.query(ctx, `SELECT kind, COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries WHERE account_id = ? GROUP BY kind`, accountID)
	if err != nil {
		return nil, wrapErr("sum ledger entries", err)
	}
	defer rows.Close()

	totals := map[core.Kind]core.Money{}
	for rows.Next() {
		var (
			kind  string
			cents int64
		)
		if err := rows.Scan(&kind, &cents); err != nil {
			return nil, wrapErr("scan ledger totals", err)
		}
		totals[core.Kind(kind)] = core.Money{Cents: cents}
	}
	return totals, wrapErr("sum ledger entries", rows.Err())
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
