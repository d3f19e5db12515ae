package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/stock-ledger/internal/domain/stock"
)

const (
	EventRecordCreated     = "stock.record_created"
	EventRecordUpdated     = "stock.record_updated"
	EventRecordDeleted     = "stock.record_deleted"
	EventRecordDeactivated = "stock.record_deactivated"
	EventRecordReactivated = "stock.record_reactivated"
	EventStockReserved     = "stock.reserved"
	EventStockReleased     = "stock.released"
	EventSaleConfirmed     = "stock.sale_confirmed"
	EventDirectSale        = "stock.direct_sale"
	EventStockRestocked    = "stock.restocked"
	EventStockAdjusted     = "stock.adjusted"
	EventLowStockAlert     = "stock.low_stock_alert"
)

// Event is the envelope published to the ledger topic after every committed
// mutation. Quantity is the amount the operation moved; Available and Status
// reflect the record after the mutation.
type Event struct {
	EventID    string       `json:"event_id"`
	EventType  string       `json:"event_type"`
	ProductID  string       `json:"product_id"`
	OwnerID    string       `json:"owner_id"`
	Quantity   int          `json:"quantity,omitempty"`
	Available  int          `json:"available"`
	Status     stock.Status `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}

func newEvent(eventType string, rec *stock.Record, qty int) Event {
	return Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		ProductID:  rec.ProductID,
		OwnerID:    rec.OwnerID,
		Quantity:   qty,
		Available:  rec.AvailableStock(),
		Status:     rec.Status(),
		OccurredAt: time.Now(),
	}
}
