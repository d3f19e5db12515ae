package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/ledger"
)

// Syncer applies catalog product events to the ledger. Handlers are
// idempotent: a replayed create or delete leaves the ledger unchanged.
type Syncer struct {
	ledger *ledger.Service
}

func NewSyncer(svc *ledger.Service) *Syncer {
	return &Syncer{ledger: svc}
}

// HandleEvent is wired as the Kafka consumer handler for the catalog topic.
func (s *Syncer) HandleEvent(ctx context.Context, key, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}

	log.Printf("[CatalogSync] Received event: %s (key: %s)", event.EventType, key)

	switch event.EventType {
	case EventProductCreated:
		return s.handleProductCreated(ctx, event)
	case EventProductDeleted:
		return s.handleProductDeleted(ctx, event)
	}

	// Other catalog events carry nothing the ledger tracks.
	return nil
}

func (s *Syncer) handleProductCreated(ctx context.Context, event Event) error {
	var e ProductCreated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}

	_, err := s.ledger.Initialize(ctx, e.ProductID, e.OwnerID, e.Name)
	if errors.Is(err, stock.ErrRecordConflict) {
		log.Printf("[CatalogSync] Record for %s already exists, skipping", e.ProductID)
		return nil
	}
	return err
}

func (s *Syncer) handleProductDeleted(ctx context.Context, event Event) error {
	var e ProductDeleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		return err
	}

	err := s.ledger.DeleteForCatalog(ctx, e.ProductID)
	if errors.Is(err, stock.ErrRecordConflict) {
		log.Printf("[CatalogSync] Record for %s has pending reservations, keeping it", e.ProductID)
		return nil
	}
	return err
}
