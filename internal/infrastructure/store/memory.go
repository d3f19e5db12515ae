package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/stock-ledger/internal/domain/stock"
)

// MemoryStore keeps records in memory, guarded by one mutex per product so
// mutations on the same product serialize while different products proceed
// in parallel. Used for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryEntry
}

type memoryEntry struct {
	mu      sync.Mutex
	rec     stock.Record
	removed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(_ context.Context, rec *stock.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ProductID]; exists {
		return stock.ErrRecordConflict
	}

	now := time.Now()
	cp := *rec
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.records[rec.ProductID] = &memoryEntry{rec: cp}
	*rec = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, productID string) (*stock.Record, error) {
	entry, err := s.entry(productID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	cp := entry.rec
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*stock.Record, error) {
	return s.list(func(*stock.Record) bool { return true }), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]*stock.Record, error) {
	return s.list(func(r *stock.Record) bool { return r.OwnerID == ownerID }), nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*stock.Record, error) {
	return s.list(func(r *stock.Record) bool { return r.IsActive }), nil
}

func (s *MemoryStore) UpdateDetails(_ context.Context, productID string, d Details) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if d.ProductName != nil {
			r.ProductName = *d.ProductName
		}
		if d.ReorderLevel != nil {
			r.ReorderLevel = *d.ReorderLevel
		}
		if d.MaxStockLevel != nil {
			r.MaxStockLevel = *d.MaxStockLevel
		}
		if d.UnitCost != nil {
			r.UnitCost = *d.UnitCost
		}
		if d.UnitPrice != nil {
			r.UnitPrice = *d.UnitPrice
		}
		if d.RequiresApproval != nil {
			r.RequiresApproval = *d.RequiresApproval
		}
		if d.Notes != nil {
			r.Notes = *d.Notes
		}
		return nil
	})
}

func (s *MemoryStore) SetActive(_ context.Context, productID string, active bool) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		r.IsActive = active
		return nil
	})
}

func (s *MemoryStore) Delete(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[productID]
	if !ok {
		return stock.ErrRecordNotFound
	}

	// Take the entry lock and tombstone the entry before removing it from
	// the map, so a mutation that already fetched this entry cannot land on
	// it after removal.
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.rec.ReservedQuantity > 0 {
		return stock.ErrRecordConflict
	}

	entry.removed = true
	delete(s.records, productID)
	return nil
}

func (s *MemoryStore) Reserve(_ context.Context, productID string, qty int) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if r.AvailableStock() < qty {
			return stock.ErrInsufficientStock
		}
		r.ReservedQuantity += qty
		return nil
	})
}

func (s *MemoryStore) Release(_ context.Context, productID string, qty int) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if r.ReservedQuantity < qty {
			return stock.ErrInsufficientStock
		}
		r.ReservedQuantity -= qty
		return nil
	})
}

func (s *MemoryStore) ConfirmSale(_ context.Context, productID string, qty int) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if r.ReservedQuantity < qty {
			return stock.ErrInsufficientStock
		}
		r.ReservedQuantity -= qty
		r.StockQuantity -= qty
		r.SoldQuantity += qty
		r.LastSoldAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) DirectSale(_ context.Context, productID string, qty int) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if r.AvailableStock() < qty {
			return stock.ErrInsufficientStock
		}
		r.StockQuantity -= qty
		r.SoldQuantity += qty
		r.LastSoldAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) Restock(_ context.Context, productID string, qty int) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		r.StockQuantity += qty
		r.LastRestockedAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) SetQuantity(_ context.Context, productID string, qty int, note string) (*stock.Record, error) {
	return s.mutate(productID, func(r *stock.Record) error {
		if r.ReservedQuantity > qty {
			return stock.ErrRecordConflict
		}
		r.StockQuantity = qty
		r.Notes = appendNote(r.Notes, note)
		return nil
	})
}

func (s *MemoryStore) entry(productID string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.records[productID]
	if !ok {
		return nil, stock.ErrRecordNotFound
	}
	return entry, nil
}

// mutate runs fn under the product's lock and bumps UpdatedAt on success.
func (s *MemoryStore) mutate(productID string, fn func(*stock.Record) error) (*stock.Record, error) {
	entry, err := s.entry(productID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return nil, stock.ErrRecordNotFound
	}
	if err := fn(&entry.rec); err != nil {
		return nil, err
	}
	entry.rec.UpdatedAt = time.Now()
	cp := entry.rec
	return &cp, nil
}

func (s *MemoryStore) list(keep func(*stock.Record) bool) []*stock.Record {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.records))
	for _, entry := range s.records {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	records := make([]*stock.Record, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		cp := entry.rec
		entry.mu.Unlock()
		if keep(&cp) {
			records = append(records, &cp)
		}
	}
	return records
}

// appendNote joins audit notes with newlines, shared by all store backends.
func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
