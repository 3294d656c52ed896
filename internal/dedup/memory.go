package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mitrecx/my-bill-2/internal/core"
)

// MemoryLookup is a Lookup over records held in memory. It backs dry runs,
// where nothing is written but records within one batch must still see
// each other.
type MemoryLookup struct {
	mu      sync.RWMutex
	records map[int64][]Existing
	nextID  int64
}

// NewMemoryLookup returns an empty MemoryLookup.
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{records: make(map[int64][]Existing)}
}

// Add stores rec under scope and returns its handle.
func (m *MemoryLookup) Add(scope int64, rec core.CanonicalRecord) Existing {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := ExistingFrom(m.nextID, rec)
	m.records[scope] = append(m.records[scope], e)
	return e
}

// Replace overwrites the record with id. It reports whether one was found.
func (m *MemoryLookup) Replace(scope, id int64, rec core.CanonicalRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.records[scope] {
		if e.ID == id {
			m.records[scope][i] = ExistingFrom(id, rec)
			return true
		}
	}
	return false
}

// Apply records the effect of d for rec, as a store would.
func (m *MemoryLookup) Apply(scope int64, d Decision, rec core.CanonicalRecord) {
	switch d.Verdict {
	case VerdictNew:
		m.Add(scope, rec)
	case VerdictUpdate:
		if d.Existing != nil {
			m.Replace(scope, d.Existing.ID, rec)
		}
	}
}

// Len returns the number of records in scope.
func (m *MemoryLookup) Len(scope int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[scope])
}

func (m *MemoryLookup) FindByOrderID(_ context.Context, scope int64, source core.Provider, orderID string) (*Existing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.records[scope] {
		if e.Source == source && e.OrderID == orderID {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryLookup) FindByContent(_ context.Context, scope int64, source core.Provider, from, to time.Time, amount decimal.Decimal) ([]Existing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Existing
	for _, e := range m.records[scope] {
		if e.Source != source || !e.Amount.Equal(amount) {
			continue
		}
		if e.TransactionTime.Before(from) || e.TransactionTime.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
