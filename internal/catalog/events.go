package catalog

import (
	"encoding/json"
	"time"
)

const (
	EventProductCreated = "product.created"
	EventProductDeleted = "product.deleted"
)

// Event is the envelope the catalog service publishes. Data holds the typed
// payload for EventType.
type Event struct {
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type ProductCreated struct {
	ProductID string `json:"product_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
}

type ProductDeleted struct {
	ProductID string `json:"product_id"`
}
