// Package memory is an in-process storage.Store guarded by a single mutex.
// WithinTx snapshots the whole state and restores it when the callback fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

type obligationKey struct {
	debtorID string
	period   core.Period
}

type state struct {
	entries       map[string]core.LedgerEntry
	rules         map[string]core.RecurrenceRule
	debtors       map[string]core.Debtor
	subscriptions map[string]core.Subscription
	obligations   map[obligationKey]core.Obligation
	receipts      map[core.Period]core.AggregationReceipt
}

func newState() *state {
	return &state{
		entries:       make(map[string]core.LedgerEntry),
		rules:         make(map[string]core.RecurrenceRule),
		debtors:       make(map[string]core.Debtor),
		subscriptions: make(map[string]core.Subscription),
		obligations:   make(map[obligationKey]core.Obligation),
		receipts:      make(map[core.Period]core.AggregationReceipt),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.entries {
		c.entries[k] = cloneEntry(v)
	}
	for k, v := range s.rules {
		c.rules[k] = v
	}
	for k, v := range s.debtors {
		c.debtors[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range s.obligations {
		c.obligations[k] = cloneObligation(v)
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	return c
}

func cloneEntry(e core.LedgerEntry) core.LedgerEntry {
	e.Splits = append([]core.Split(nil), e.Splits...)
	e.Tags = append([]string(nil), e.Tags...)
	if e.Reference != nil {
		ref := *e.Reference
		e.Reference = &ref
	}
	return e
}

func cloneObligation(o core.Obligation) core.Obligation {
	if o.PaymentDate != nil {
		t := *o.PaymentDate
		o.PaymentDate = &t
	}
	return o
}

// Store implements storage.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// access runs fn against the live state. Outside a transaction it takes the lock.
type access func(ctx context.Context, fn func(st *state) error) error

func (s *Store) locked(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Entries() storage.EntryRepository          { return entries{s.locked} }
func (s *Store) Rules() storage.RuleRepository             { return rules{s.locked} }
func (s *Store) Debtors() storage.DebtorRepository         { return debtors{s.locked} }
func (s *Store) Obligations() storage.ObligationRepository { return obligations{s.locked} }
func (s *Store) Receipts() storage.ReceiptRepository       { return receipts{s.locked} }

type txRepos struct {
	with access
}

func (t txRepos) Entries() storage.EntryRepository          { return entries{t.with} }
func (t txRepos) Rules() storage.RuleRepository             { return rules{t.with} }
func (t txRepos) Debtors() storage.DebtorRepository         { return debtors{t.with} }
func (t txRepos) Obligations() storage.ObligationRepository { return obligations{t.with} }
func (t txRepos) Receipts() storage.ReceiptRepository       { return receipts{t.with} }

// WithinTx serializes the callback against every other caller.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Repos) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	live := func(ctx context.Context, f func(st *state) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return f(s.st)
	}
	return fn(txRepos{with: live})
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type entries struct{ with access }

func (r entries) Insert(ctx context.Context, e core.LedgerEntry) error {
	return r.with(ctx, func(st *state) error {
		if _, ok := st.entries[e.ID]; ok {
			return &core.ConflictError{Entity: "ledger entry", Key: e.ID}
		}
		st.entries[e.ID] = cloneEntry(e)
		return nil
	})
}

func (r entries) Get(ctx context.Context, id string) (core.LedgerEntry, error) {
	var out core.LedgerEntry
	err := r.with(ctx, func(st *state) error {
		e, ok := st.entries[id]
		if !ok {
			return &core.NotFoundError{Entity: "ledger entry", ID: id}
		}
		out = cloneEntry(e)
		return nil
	})
	return out, err
}

func (r entries) UpdateHeader(ctx context.Context, e core.LedgerEntry) error {
	return r.with(ctx, func(st *state) error {
		cur, ok := st.entries[e.ID]
		if !ok {
			return &core.NotFoundError{Entity: "ledger entry", ID: e.ID}
		}
		next := cloneEntry(e)
		next.Splits, next.Tags = cur.Splits, cur.Tags
		next.CreatedAt = cur.CreatedAt
		st.entries[e.ID] = next
		return nil
	})
}

func (r entries) ReplaceSplits(ctx context.Context, entryID string, splits []core.Split) error {
	return r.with(ctx, func(st *state) error {
		cur, ok := st.entries[entryID]
		if !ok {
			return &core.NotFoundError{Entity: "ledger entry", ID: entryID}
		}
		cur.Splits = append([]core.Split(nil), splits...)
		st.entries[entryID] = cur
		return nil
	})
}

func (r entries) ReplaceTags(ctx context.Context, entryID string, tags []string) error {
	return r.with(ctx, func(st *state) error {
		cur, ok := st.entries[entryID]
		if !ok {
			return &core.NotFoundError{Entity: "ledger entry", ID: entryID}
		}
		cur.Tags = core.NormalizeTags(tags)
		st.entries[entryID] = cur
		return nil
	})
}

func (r entries) Delete(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := r.with(ctx, func(st *state) error {
		_, existed = st.entries[id]
		delete(st.entries, id)
		return nil
	})
	return existed, err
}

func (r entries) List(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	err := r.with(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.AccountID == accountID && f.Matches(e) {
				out = append(out, cloneEntry(e))
			}
		}
		return nil
	})
	core.SortEntries(out)
	return out, err
}

func (r entries) Totals(ctx context.Context, accountID string) (map[core.Kind]core.Money, error) {
	totals := map[core.Kind]core.Money{}
	err := r.with(ctx, func(st *state) error {
		for _, e := range st.entries {
			if e.AccountID == accountID {
				totals[e.Kind] = totals[e.Kind].Add(e.Amount)
			}
		}
		return nil
	})
	return totals, err
}

type rules struct{ with access }

func (r rules) Insert(ctx context.Context, rule core.RecurrenceRule) error {
	return r.with(ctx, func(st *state) error {
		if _, ok := st.rules[rule.ID]; ok {
			return &core.ConflictError{Entity: "recurrence rule", Key: rule.ID}
		}
		st.rules[rule.ID] = rule
		return nil
	})
}

func (r rules) Get(ctx context.Context, id string) (core.RecurrenceRule, error) {
	var out core.RecurrenceRule
	err := r.with(ctx, func(st *state) error {
		rule, ok := st.rules[id]
		if !ok {
			return &core.NotFoundError{Entity: "recurrence rule", ID: id}
		}
		out = rule
		return nil
	})
	return out, err
}

func (r rules) Update(ctx context.Context, rule core.RecurrenceRule) error {
	return r.with(ctx, func(st *state) error {
		if _, ok := st.rules[rule.ID]; !ok {
			return &core.NotFoundError{Entity: "recurrence rule", ID: rule.ID}
		}
		st.rules[rule.ID] = rule
		return nil
	})
}

func (r rules) Delete(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := r.with(ctx, func(st *state) error {
		_, existed = st.rules[id]
		delete(st.rules, id)
		return nil
	})
	return existed, err
}

func (r rules) collect(ctx context.Context, keep func(core.RecurrenceRule) bool) ([]core.RecurrenceRule, error) {
	var out []core.RecurrenceRule
	err := r.with(ctx, func(st *state) error {
		for _, rule := range st.rules {
			if keep(rule) {
				out = append(out, rule)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r rules) ListByAccount(ctx context.Context, accountID string) ([]core.RecurrenceRule, error) {
	return r.collect(ctx, func(rule core.RecurrenceRule) bool { return rule.AccountID == accountID })
}

func (r rules) ListAll(ctx context.Context) ([]core.RecurrenceRule, error) {
	return r.collect(ctx, func(core.RecurrenceRule) bool { return true })
}

func (r rules) ListExpired(ctx context.Context, today core.Date) ([]core.RecurrenceRule, error) {
	return r.collect(ctx, func(rule core.RecurrenceRule) bool {
		return !rule.EndDate.IsZero() && rule.EndDate.Before(today)
	})
}

type debtors struct{ with access }

func (r debtors) UpsertDebtor(ctx context.Context, d core.Debtor) error {
	return r.with(ctx, func(st *state) error {
		st.debtors[d.ID] = d
		return nil
	})
}

func (r debtors) UpsertSubscription(ctx context.Context, s core.Subscription) error {
	return r.with(ctx, func(st *state) error {
		if _, ok := st.debtors[s.DebtorID]; !ok {
			return &core.NotFoundError{Entity: "debtor", ID: s.DebtorID}
		}
		st.subscriptions[s.ID] = s
		return nil
	})
}

func (r debtors) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	var out core.Debtor
	err := r.with(ctx, func(st *state) error {
		d, ok := st.debtors[id]
		if !ok {
			return &core.NotFoundError{Entity: "debtor", ID: id}
		}
		out = d
		return nil
	})
	return out, err
}

func (r debtors) ListActiveDebtors(ctx context.Context) ([]core.Debtor, error) {
	var out []core.Debtor
	err := r.with(ctx, func(st *state) error {
		for _, d := range st.debtors {
			if d.Active {
				out = append(out, d)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r debtors) ListSubscriptions(ctx context.Context, debtorID string) ([]core.Subscription, error) {
	var out []core.Subscription
	err := r.with(ctx, func(st *state) error {
		for _, s := range st.subscriptions {
			if s.DebtorID == debtorID {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r debtors) ActiveFeeTotal(ctx context.Context, debtorID string) (core.Money, error) {
	var total core.Money
	err := r.with(ctx, func(st *state) error {
		for _, s := range st.subscriptions {
			if s.DebtorID == debtorID && s.Active {
				total = total.Add(s.Fee)
			}
		}
		return nil
	})
	return total, err
}

type obligations struct{ with access }

func (r obligations) Get(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error) {
	var out core.Obligation
	err := r.with(ctx, func(st *state) error {
		o, ok := st.obligations[obligationKey{debtorID, p}]
		if !ok {
			return &core.NotFoundError{Entity: "obligation", ID: debtorID + "@" + p.String()}
		}
		out = cloneObligation(o)
		return nil
	})
	return out, err
}

// GetForUpdate needs no extra locking: transactions already hold the store mutex.
func (r obligations) GetForUpdate(ctx context.Context, debtorID string, p core.Period) (core.Obligation, error) {
	return r.Get(ctx, debtorID, p)
}

func (r obligations) Insert(ctx context.Context, o core.Obligation) error {
	return r.with(ctx, func(st *state) error {
		key := obligationKey{o.DebtorID, o.Period}
		if _, ok := st.obligations[key]; ok {
			return &core.ConflictError{Entity: "obligation", Key: o.DebtorID + "@" + o.Period.String()}
		}
		st.obligations[key] = cloneObligation(o)
		return nil
	})
}

func (r obligations) InsertIfAbsent(ctx context.Context, o core.Obligation) (bool, error) {
	var created bool
	err := r.with(ctx, func(st *state) error {
		key := obligationKey{o.DebtorID, o.Period}
		if _, ok := st.obligations[key]; ok {
			return nil
		}
		st.obligations[key] = cloneObligation(o)
		created = true
		return nil
	})
	return created, err
}

func (r obligations) UpdatePayment(ctx context.Context, o core.Obligation) error {
	return r.with(ctx, func(st *state) error {
		key := obligationKey{o.DebtorID, o.Period}
		cur, ok := st.obligations[key]
		if !ok {
			return &core.NotFoundError{Entity: "obligation", ID: o.DebtorID + "@" + o.Period.String()}
		}
		cur.PaidAmount = o.PaidAmount
		cur.Status = o.Status
		cur.PaymentDate = o.PaymentDate
		cur.PaymentMethod = o.PaymentMethod
		cur.Notes = o.Notes
		cur.UpdatedAt = o.UpdatedAt
		st.obligations[key] = cloneObligation(cur)
		return nil
	})
}

func (r obligations) collect(ctx context.Context, keep func(core.Obligation) bool) ([]core.Obligation, error) {
	var out []core.Obligation
	err := r.with(ctx, func(st *state) error {
		for _, o := range st.obligations {
			if keep(o) {
				out = append(out, cloneObligation(o))
			}
		}
		return nil
	})
	sortObligations(out)
	return out, err
}

func (r obligations) List(ctx context.Context, f core.ObligationFilter) ([]core.Obligation, error) {
	return r.collect(ctx, f.Matches)
}

func (r obligations) ListAggregatable(ctx context.Context, p core.Period) ([]core.Obligation, error) {
	return r.collect(ctx, func(o core.Obligation) bool {
		return o.Period == p && o.Status == core.StatusPaid && !o.Aggregated
	})
}

func (r obligations) MarkAggregated(ctx context.Context, ids []string, at time.Time) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.with(ctx, func(st *state) error {
		for k, o := range st.obligations {
			if _, ok := want[o.ID]; ok {
				o.Aggregated = true
				o.UpdatedAt = at
				st.obligations[k] = o
			}
		}
		return nil
	})
}

func (r obligations) PaidTotal(ctx context.Context, debtorID string) (core.Money, error) {
	var total core.Money
	err := r.with(ctx, func(st *state) error {
		for _, o := range st.obligations {
			if o.DebtorID == debtorID {
				total = total.Add(o.PaidAmount)
			}
		}
		return nil
	})
	return total, err
}

// sortObligations orders by period desc, then debtor id.
func sortObligations(out []core.Obligation) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Period.Year != b.Period.Year {
			return a.Period.Year > b.Period.Year
		}
		if a.Period.Month != b.Period.Month {
			return a.Period.Month > b.Period.Month
		}
		return a.DebtorID < b.DebtorID
	})
}

type receipts struct{ with access }

func (r receipts) Insert(ctx context.Context, rc core.AggregationReceipt) error {
	return r.with(ctx, func(st *state) error {
		if _, ok := st.receipts[rc.Period]; ok {
			return &core.ConflictError{Entity: "aggregation receipt", Key: rc.Period.String()}
		}
		st.receipts[rc.Period] = rc
		return nil
	})
}

func (r receipts) GetByPeriod(ctx context.Context, p core.Period) (core.AggregationReceipt, error) {
	var out core.AggregationReceipt
	err := r.with(ctx, func(st *state) error {
		rc, ok := st.receipts[p]
		if !ok {
			return &core.NotFoundError{Entity: "aggregation receipt", ID: p.String()}
		}
		out = rc
		return nil
	})
	return out, err
}

func (r receipts) List(ctx context.Context) ([]core.AggregationReceipt, error) {
	var out []core.AggregationReceipt
	err := r.with(ctx, func(st *state) error {
		for _, rc := range st.receipts {
			out = append(out, rc)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year > out[j].Period.Year
		}
		return out[i].Period.Month > out[j].Period.Month
	})
	return out, err
}
