package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/identity"
	"github.com/example/stock-ledger/internal/infrastructure/cache"
	"github.com/example/stock-ledger/internal/infrastructure/store"
)

// ErrInvalidRecord is returned when a create request is missing required
// identifying fields.
var ErrInvalidRecord = errors.New("invalid stock record")

// seedStockQuantity is the initial stock for records created from catalog
// product events, so new products are sellable before the first restock.
const seedStockQuantity = 10

// EventPublisher publishes ledger events keyed by product ID.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// AvailabilityCache is the optional read cache for availability checks.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, productID string) (int, error)
	SetAvailable(ctx context.Context, productID string, available int) error
	Invalidate(ctx context.Context, productID string) error
}

// Service is the stock ledger. Every caller-facing mutation is permission
// gated; the reserve/release/confirm/sell operations are trusted collaborator
// calls and carry no principal. All state changes go through the store's
// conditional primitives, so a returned record always reflects a committed
// mutation.
type Service struct {
	store     store.RecordStore
	publisher EventPublisher
	cache     AvailabilityCache
}

func NewService(st store.RecordStore, publisher EventPublisher, availCache AvailabilityCache) *Service {
	return &Service{store: st, publisher: publisher, cache: availCache}
}

// CreateInput carries the fields a caller may set when creating a record.
type CreateInput struct {
	ProductID        string `json:"product_id"`
	ProductName      string `json:"product_name"`
	OwnerID          string `json:"owner_id"`
	StockQuantity    int    `json:"stock_quantity"`
	ReorderLevel     int    `json:"reorder_level"`
	MaxStockLevel    int    `json:"max_stock_level"`
	UnitCost         int64  `json:"unit_cost"`
	UnitPrice        int64  `json:"unit_price"`
	RequiresApproval bool   `json:"requires_approval"`
	Notes            string `json:"notes"`
}

// ============================================================================
// Gated operations
// ============================================================================

func (s *Service) Create(ctx context.Context, p identity.Principal, in CreateInput) (*stock.Record, error) {
	if !identity.Allowed(p, identity.ActionCreate, identity.Target{}) {
		return nil, stock.ErrPermissionDenied
	}
	if in.ProductID == "" || in.ProductName == "" {
		return nil, fmt.Errorf("%w: product id and name are required", ErrInvalidRecord)
	}
	if in.StockQuantity < 0 || in.ReorderLevel < 0 || in.MaxStockLevel < 0 {
		return nil, stock.ErrInvalidQuantity
	}
	if in.UnitCost < 0 || in.UnitPrice < 0 {
		return nil, stock.ErrInvalidQuantity
	}

	ownerID := in.OwnerID
	if !p.IsAdmin() {
		// Vendors always own what they create.
		ownerID = p.ID
	}

	rec := &stock.Record{
		ProductID:        in.ProductID,
		ProductName:      in.ProductName,
		OwnerID:          ownerID,
		StockQuantity:    in.StockQuantity,
		ReorderLevel:     in.ReorderLevel,
		MaxStockLevel:    in.MaxStockLevel,
		UnitCost:         in.UnitCost,
		UnitPrice:        in.UnitPrice,
		RequiresApproval: in.RequiresApproval,
		Notes:            in.Notes,
		IsActive:         true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.publish(ctx, newEvent(EventRecordCreated, rec, rec.StockQuantity))
	return rec, nil
}

func (s *Service) Get(ctx context.Context, p identity.Principal, productID string) (*stock.Record, error) {
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !identity.Allowed(p, identity.ActionView, target(rec)) {
		// Inactive records are invisible to outside callers, not forbidden.
		return nil, stock.ErrRecordNotFound
	}
	return rec, nil
}

// List returns every record the principal may see: admins see everything,
// owners additionally see their own inactive records, everyone sees active.
func (s *Service) List(ctx context.Context, p identity.Principal) ([]*stock.Record, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return filterVisible(p, recs), nil
}

func (s *Service) ListByOwner(ctx context.Context, p identity.Principal, ownerID string) ([]*stock.Record, error) {
	recs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return filterVisible(p, recs), nil
}

func (s *Service) Update(ctx context.Context, p identity.Principal, productID string, d store.Details) (*stock.Record, error) {
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !identity.Allowed(p, identity.ActionModify, target(rec)) {
		return nil, stock.ErrPermissionDenied
	}
	if d.ReorderLevel != nil && *d.ReorderLevel < 0 {
		return nil, stock.ErrInvalidQuantity
	}
	if d.MaxStockLevel != nil && *d.MaxStockLevel < 0 {
		return nil, stock.ErrInvalidQuantity
	}
	if (d.UnitCost != nil && *d.UnitCost < 0) || (d.UnitPrice != nil && *d.UnitPrice < 0) {
		return nil, stock.ErrInvalidQuantity
	}

	updated, err := s.store.UpdateDetails(ctx, productID, d)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventRecordUpdated, updated, 0))
	return updated, nil
}

func (s *Service) Restock(ctx context.Context, p identity.Principal, productID string, qty int) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !identity.Allowed(p, identity.ActionRestock, target(rec)) {
		return nil, stock.ErrPermissionDenied
	}

	updated, err := s.store.Restock(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventStockRestocked, updated, qty, statusBefore(updated, -qty, 0))
	return updated, nil
}

// SetQuantity overrides the physical stock count, recording who did it and
// why in the audit note trail. The new quantity may not undercut pending
// reservations.
func (s *Service) SetQuantity(ctx context.Context, p identity.Principal, productID string, qty int, reason string) (*stock.Record, error) {
	if qty < 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !identity.Allowed(p, identity.ActionAdjust, target(rec)) {
		return nil, stock.ErrPermissionDenied
	}

	note := fmt.Sprintf("[%s] manual adjustment to %d by %s: %s",
		time.Now().Format(time.RFC3339), qty, p.ID, reason)
	updated, err := s.store.SetQuantity(ctx, productID, qty, note)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventStockAdjusted, updated, qty, "")
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, p identity.Principal, productID string) (*stock.Record, error) {
	return s.setActive(ctx, p, productID, false, EventRecordDeactivated)
}

// Reactivate re-enables a discontinued record. The status after reactivation
// follows from the quantities on hand, not from what it was before.
func (s *Service) Reactivate(ctx context.Context, p identity.Principal, productID string) (*stock.Record, error) {
	return s.setActive(ctx, p, productID, true, EventRecordReactivated)
}

func (s *Service) setActive(ctx context.Context, p identity.Principal, productID string, active bool, eventType string) (*stock.Record, error) {
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !identity.Allowed(p, identity.ActionModify, target(rec)) {
		return nil, stock.ErrPermissionDenied
	}

	updated, err := s.store.SetActive(ctx, productID, active)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(eventType, updated, 0))
	return updated, nil
}

// Delete removes a record for good. Records with pending reservations cannot
// be deleted; release or confirm them first.
func (s *Service) Delete(ctx context.Context, p identity.Principal, productID string) error {
	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !identity.Allowed(p, identity.ActionDelete, target(rec)) {
		return stock.ErrPermissionDenied
	}

	if err := s.store.Delete(ctx, productID); err != nil {
		return err
	}
	s.invalidate(ctx, productID)
	s.publish(ctx, newEvent(EventRecordDeleted, rec, 0))
	return nil
}

// ============================================================================
// Collaborator operations (order flow, catalog sync)
// ============================================================================

// Reserve earmarks qty units for a pending order. Stock on hand is untouched
// until the sale is confirmed.
func (s *Service) Reserve(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.Reserve(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventStockReserved, rec, qty, statusBefore(rec, 0, -qty))
	return rec, nil
}

func (s *Service) Release(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.Release(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventStockReleased, rec, qty, statusBefore(rec, 0, qty))
	return rec, nil
}

func (s *Service) ConfirmSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.ConfirmSale(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventSaleConfirmed, rec, qty, statusBefore(rec, qty, qty))
	return rec, nil
}

func (s *Service) DirectSale(ctx context.Context, productID string, qty int) (*stock.Record, error) {
	if qty <= 0 {
		return nil, stock.ErrInvalidQuantity
	}
	rec, err := s.store.DirectSale(ctx, productID, qty)
	if err != nil {
		return nil, err
	}
	s.afterMutation(ctx, EventDirectSale, rec, qty, statusBefore(rec, qty, 0))
	return rec, nil
}

// CheckAvailability reports whether qty units could be reserved right now.
// The answer is advisory; only Reserve decides.
func (s *Service) CheckAvailability(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, stock.ErrInvalidQuantity
	}
	available, err := s.GetAvailable(ctx, productID)
	if err != nil {
		return false, err
	}
	return available >= qty, nil
}

// GetAvailable returns the unreserved quantity, served from the cache when
// fresh.
func (s *Service) GetAvailable(ctx context.Context, productID string) (int, error) {
	if s.cache != nil {
		if available, err := s.cache.GetAvailable(ctx, productID); err == nil {
			return available, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("[Ledger] Cache read failed for %s: %v", productID, err)
		}
	}

	rec, err := s.store.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	available := rec.AvailableStock()
	if s.cache != nil {
		if err := s.cache.SetAvailable(ctx, productID, available); err != nil {
			log.Printf("[Ledger] Cache write failed for %s: %v", productID, err)
		}
	}
	return available, nil
}

// Initialize creates a seeded record for a product announced by the catalog.
// A record that already exists is reported as ErrRecordConflict; the event
// path treats that as already done.
func (s *Service) Initialize(ctx context.Context, productID, ownerID, name string) (*stock.Record, error) {
	if productID == "" || name == "" {
		return nil, fmt.Errorf("%w: product id and name are required", ErrInvalidRecord)
	}
	rec := &stock.Record{
		ProductID:     productID,
		ProductName:   name,
		OwnerID:       ownerID,
		StockQuantity: seedStockQuantity,
		ReorderLevel:  5,
		IsActive:      true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventRecordCreated, rec, rec.StockQuantity))
	return rec, nil
}

// DeleteForCatalog applies a catalog product-deleted event. A missing record
// is fine; a record with pending reservations is kept and reported.
func (s *Service) DeleteForCatalog(ctx context.Context, productID string) error {
	rec, err := s.store.Get(ctx, productID)
	if errors.Is(err, stock.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, productID); err != nil {
		return err
	}
	s.invalidate(ctx, productID)
	s.publish(ctx, newEvent(EventRecordDeleted, rec, 0))
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func target(rec *stock.Record) identity.Target {
	return identity.Target{
		OwnerID:          rec.OwnerID,
		Active:           rec.IsActive,
		RequiresApproval: rec.RequiresApproval,
	}
}

func filterVisible(p identity.Principal, recs []*stock.Record) []*stock.Record {
	if p.IsAdmin() {
		return recs
	}
	visible := make([]*stock.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.IsActive || p.Owns(rec.OwnerID) {
			visible = append(visible, rec)
		}
	}
	return visible
}

// statusBefore derives the status the record had before a mutation by undoing
// the stock and reserved deltas on a copy.
func statusBefore(rec *stock.Record, stockDelta, reservedDelta int) stock.Status {
	prev := *rec
	prev.StockQuantity += stockDelta
	prev.ReservedQuantity += reservedDelta
	return prev.Status()
}

// afterMutation handles the bookkeeping every committed mutation shares:
// cache invalidation, the mutation event, and a low-stock alert when the
// record just dropped to or below its reorder level. An empty prevStatus
// means the prior state is unknown and any alertable result alerts.
func (s *Service) afterMutation(ctx context.Context, eventType string, rec *stock.Record, qty int, prevStatus stock.Status) {
	s.invalidate(ctx, rec.ProductID)
	s.publish(ctx, newEvent(eventType, rec, qty))

	now := rec.Status()
	if alertable(now) && now != prevStatus {
		s.publish(ctx, newEvent(EventLowStockAlert, rec, qty))
	}
}

// alertable covers every status with nothing, or nearly nothing, left to
// sell. RESERVED counts: available is zero even though units are on hand.
func alertable(status stock.Status) bool {
	switch status {
	case stock.StatusLowStock, stock.StatusOutOfStock, stock.StatusReserved:
		return true
	}
	return false
}

func (s *Service) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event.ProductID, event); err != nil {
		log.Printf("[Ledger] Failed to publish %s for %s: %v", event.EventType, event.ProductID, err)
	}
}

func (s *Service) invalidate(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		log.Printf("[Ledger] Cache invalidation failed for %s: %v", productID, err)
	}
}
