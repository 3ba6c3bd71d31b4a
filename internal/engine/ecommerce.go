package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brunovale/ariaOS/internal/core/domain"
)

// CommerceClient is the seam to the e-commerce platform integration.
type CommerceClient interface {
	// CreateListing creates a marketplace listing and returns its id.
	CreateListing(ctx context.Context, platform string, product json.RawMessage) (string, error)

	// UpdateQuantity sets the on-hand quantity for a product.
	UpdateQuantity(ctx context.Context, productID string, qty int) error
}

// EcommerceEngine handles create_listing and sync_inventory jobs.
type EcommerceEngine struct {
	logger *slog.Logger
	client CommerceClient
}

func NewEcommerceEngine(logger *slog.Logger, client CommerceClient) *EcommerceEngine {
	return &EcommerceEngine{logger: logger, client: client}
}

type createListingPayload struct {
	Platform string          `json:"platform"`
	Product  json.RawMessage `json:"product"`
}

type syncInventoryPayload struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

func (e *EcommerceEngine) Execute(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	switch job.Type {
	case domain.JobTypeCreateListing:
		return e.createListing(ctx, job.Payload)
	case domain.JobTypeSyncInventory:
		return e.syncInventory(ctx, job.Payload)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type)
	}
}

func (e *EcommerceEngine) createListing(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p createListingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid create_listing payload: %w", err)
	}
	if p.Platform == "" || len(p.Product) == 0 {
		return nil, fmt.Errorf("create_listing payload requires platform and product")
	}

	id, err := e.client.CreateListing(ctx, p.Platform, p.Product)
	if err != nil {
		return nil, fmt.Errorf("create listing on %s failed: %w", p.Platform, err)
	}

	e.logger.Info("listing created", "platform", p.Platform, "listing_id", id)
	return json.Marshal(map[string]any{"platform": p.Platform, "listing_id": id})
}

func (e *EcommerceEngine) syncInventory(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p syncInventoryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid sync_inventory payload: %w", err)
	}
	if p.ProductID == "" {
		return nil, fmt.Errorf("sync_inventory payload requires productId")
	}

	if err := e.client.UpdateQuantity(ctx, p.ProductID, p.Qty); err != nil {
		return nil, fmt.Errorf("update quantity for %s failed: %w", p.ProductID, err)
	}
	return json.Marshal(map[string]any{"product_id": p.ProductID, "qty": p.Qty})
}
