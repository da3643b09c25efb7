package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Store keeps mirrored receipts in process, for tests and for running the
// worker without Google credentials.
type Store struct {
	mu   sync.Mutex
	rows []core.AggregationReceipt
	// FailWith, when set, makes AppendReceipt fail.
	FailWith error
}

var _ ports.ReceiptMirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendReceipt stores the receipt and returns a synthetic row reference.
func (s *Store) AppendReceipt(_ context.Context, r core.AggregationReceipt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) MirroredReceiptIDs(_ context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.rows))
	for _, r := range s.rows {
		out[r.ID] = true
	}
	return out, nil
}

// Rows returns a copy of what has been written, in order.
func (s *Store) Rows() []core.AggregationReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.AggregationReceipt(nil), s.rows...)
}
