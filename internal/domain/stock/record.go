package stock

import (
	"errors"
	"time"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrRecordNotFound    = errors.New("stock record not found")
	ErrRecordConflict    = errors.New("stock record conflict")
	ErrPermissionDenied  = errors.New("permission denied")
)

// Status describes the sale readiness of a record. It is derived from the
// current quantities and never stored on its own.
type Status string

const (
	StatusInStock      Status = "IN_STOCK"
	StatusLowStock     Status = "LOW_STOCK"
	StatusOutOfStock   Status = "OUT_OF_STOCK"
	StatusReserved     Status = "RESERVED"
	StatusDiscontinued Status = "DISCONTINUED"
)

// Record is the per-product ledger entry. StockQuantity counts all units
// physically on hand, including the reserved subset; SoldQuantity only ever
// grows. The invariant 0 <= ReservedQuantity <= StockQuantity holds at all
// times, which the store layer enforces with conditional updates.
type Record struct {
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name"`
	OwnerID          string    `json:"owner_id"`
	StockQuantity    int       `json:"stock_quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	SoldQuantity     int       `json:"sold_quantity"`
	ReorderLevel     int       `json:"reorder_level"`
	MaxStockLevel    int       `json:"max_stock_level,omitempty"` // advisory, 0 = unset
	UnitCost         int64     `json:"unit_cost"`                 // cents, 0 = unknown
	UnitPrice        int64     `json:"unit_price"`                // cents, 0 = unknown
	IsActive         bool      `json:"is_active"`
	RequiresApproval bool      `json:"requires_approval"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastRestockedAt  time.Time `json:"last_restocked_at,omitzero"`
	LastSoldAt       time.Time `json:"last_sold_at,omitzero"`
}

// AvailableStock returns the units not earmarked by any pending reservation.
func (r *Record) AvailableStock() int {
	available := r.StockQuantity - r.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// Status derives the stock status from the current quantities.
// DISCONTINUED overrides everything while the record is inactive.
func (r *Record) Status() Status {
	if !r.IsActive {
		return StatusDiscontinued
	}

	available := r.AvailableStock()
	switch {
	case available == 0 && r.ReservedQuantity > 0:
		return StatusReserved
	case available == 0:
		return StatusOutOfStock
	case available <= r.ReorderLevel:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// InventoryValue returns the cost-based value of all units on hand, in cents.
// Records without a unit cost contribute zero.
func (r *Record) InventoryValue() int64 {
	return r.UnitCost * int64(r.StockQuantity)
}

// PotentialRevenue returns the revenue if all available units sold at the
// unit price, in cents. Records without a unit price contribute zero.
func (r *Record) PotentialRevenue() int64 {
	return r.UnitPrice * int64(r.AvailableStock())
}

// NeedsReorder reports whether an active record has dropped to or below its
// reorder level.
func (r *Record) NeedsReorder() bool {
	return r.IsActive && r.AvailableStock() <= r.ReorderLevel
}
