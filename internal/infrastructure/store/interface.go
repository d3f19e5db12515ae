package store

import (
	"context"

	"github.com/example/stock-ledger/internal/domain/stock"
)

// RecordStore persists stock records and applies the quantity mutations.
//
// Every mutation is conditional and all-or-nothing: the precondition is
// evaluated and the write applied as one atomic step per product, so
// concurrent callers against the same product behave as if serialized.
// A failed precondition returns stock.ErrInsufficientStock (or
// stock.ErrRecordConflict for SetQuantity and Delete) with no state change.
// Quantity arguments must already be validated positive by the caller.
type RecordStore interface {
	Create(ctx context.Context, rec *stock.Record) error
	Get(ctx context.Context, productID string) (*stock.Record, error)
	List(ctx context.Context) ([]*stock.Record, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*stock.Record, error)
	ListActive(ctx context.Context) ([]*stock.Record, error)
	UpdateDetails(ctx context.Context, productID string, d Details) (*stock.Record, error)
	SetActive(ctx context.Context, productID string, active bool) (*stock.Record, error)
	Delete(ctx context.Context, productID string) error

	Reserve(ctx context.Context, productID string, qty int) (*stock.Record, error)
	Release(ctx context.Context, productID string, qty int) (*stock.Record, error)
	ConfirmSale(ctx context.Context, productID string, qty int) (*stock.Record, error)
	DirectSale(ctx context.Context, productID string, qty int) (*stock.Record, error)
	Restock(ctx context.Context, productID string, qty int) (*stock.Record, error)
	SetQuantity(ctx context.Context, productID string, qty int, note string) (*stock.Record, error)
}

// Details carries the descriptive fields an update may change. Nil means
// leave the field untouched. Quantities are deliberately absent; they only
// move through the conditional mutation methods.
type Details struct {
	ProductName      *string
	ReorderLevel     *int
	MaxStockLevel    *int
	UnitCost         *int64
	UnitPrice        *int64
	RequiresApproval *bool
	Notes            *string
}
