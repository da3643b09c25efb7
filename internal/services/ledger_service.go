package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// LedgerService writes ledger entries with their splits and tags atomically.
type LedgerService struct {
	deps
}

func NewLedgerService(store storage.Store, logger *log.Logger, opts ...Option) *LedgerService {
	return &LedgerService{deps: newDeps(store, logger, log.ComponentLedger, opts)}
}

func prepareSplits(entryID string, splits []core.Split) []core.Split {
	out := make([]core.Split, len(splits))
	for i, sp := range splits {
		sp.ID = uuid.NewString()
		sp.EntryID = entryID
		out[i] = sp
	}
	return out
}

// Create validates the entry (split sum included) and writes header, splits
// and tags in one transaction.
func (s *LedgerService) Create(ctx context.Context, entry core.LedgerEntry, splits []core.Split, tags []string) (core.LedgerEntry, error) {
	now := s.clock()
	entry.ID = uuid.NewString()
	entry.Splits = prepareSplits(entry.ID, splits)
	entry.Tags = core.NormalizeTags(tags)
	entry.CreatedAt, entry.UpdatedAt = now, now

	if err := entry.Validate(); err != nil {
		return core.LedgerEntry{}, err
	}

	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		return tx.Entries().Insert(ctx, entry)
	})
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("create ledger entry: %w", err)
	}

	s.logger.InfoContext(ctx, "Ledger entry created",
		log.FieldEntryID, entry.ID,
		log.FieldAccountID, entry.AccountID,
		log.FieldAmountCents, entry.Amount.Cents,
		"kind", string(entry.Kind),
		"splits", len(entry.Splits))
	s.publish(ctx, events.EntryCreated, entryPayload(entry))
	return entry, nil
}

// Update applies a typed partial update. Splits and tags are replaced only
// when the request carries them; the merged entry is validated before commit.
func (s *LedgerService) Update(ctx context.Context, id string, u core.EntryUpdate) (core.LedgerEntry, error) {
	var updated core.LedgerEntry
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		entry, err := tx.Entries().Get(ctx, id)
		if err != nil {
			return err
		}
		u.Apply(&entry)
		if u.ReplacesSplits() {
			entry.Splits = prepareSplits(entry.ID, entry.Splits)
		}
		entry.UpdatedAt = s.clock()
		if err := entry.Validate(); err != nil {
			return err
		}

		if err := tx.Entries().UpdateHeader(ctx, entry); err != nil {
			return err
		}
		if u.ReplacesSplits() {
			if err := tx.Entries().ReplaceSplits(ctx, entry.ID, entry.Splits); err != nil {
				return err
			}
		}
		if u.ReplacesTags() {
			if err := tx.Entries().ReplaceTags(ctx, entry.ID, entry.Tags); err != nil {
				return err
			}
		}
		updated = entry
		return nil
	})
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("update ledger entry: %w", err)
	}

	s.logger.InfoContext(ctx, "Ledger entry updated", log.FieldEntryID, id)
	s.publish(ctx, events.EntryUpdated, entryPayload(updated))
	return updated, nil
}

// Delete removes an entry and its children. An absent id is a no-op.
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	var existed bool
	err := s.store.WithinTx(ctx, func(tx storage.Repos) error {
		var err error
		existed, err = tx.Entries().Delete(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}
	if !existed {
		return nil
	}

	s.logger.InfoContext(ctx, "Ledger entry deleted", log.FieldEntryID, id)
	s.publish(ctx, events.EntryDeleted, events.EntryPayload{EntryID: id})
	return nil
}

func (s *LedgerService) Get(ctx context.Context, id string) (core.LedgerEntry, error) {
	return s.store.Entries().Get(ctx, id)
}

// List returns the account's entries matching f, newest first.
func (s *LedgerService) List(ctx context.Context, accountID string, f core.EntryFilter) ([]core.LedgerEntry, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.store.Entries().List(ctx, accountID, f)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

func entryPayload(e core.LedgerEntry) events.EntryPayload {
	return events.EntryPayload{
		EntryID:     e.ID,
		AccountID:   e.AccountID,
		Kind:        string(e.Kind),
		AmountCents: e.Amount.Cents,
		Date:        e.Date.String(),
	}
}
