package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brunovale/ariaOS/internal/core/domain"
)

// PricingStrategy selects how a SKU's candidate price is derived from the
// competitor reference price.
type PricingStrategy string

const (
	StrategyUndercutCompetitor PricingStrategy = "undercut_competitor"
	StrategyMatchLowest        PricingStrategy = "match_lowest"
	StrategyFixedMargin        PricingStrategy = "fixed_margin"
)

// undercutAmount is the fixed amount subtracted from the competitor price
// under the undercut_competitor strategy.
const undercutAmount = 0.01

// PricingRule bounds repricing for one inventory item. Items without a rule
// are never repriced.
type PricingRule struct {
	MinPrice float64         `json:"minPrice"`
	MaxPrice float64         `json:"maxPrice"`
	Strategy PricingStrategy `json:"strategy"`
}

// InventoryItem is one SKU as seen by the marketplace integration.
type InventoryItem struct {
	SKU          string       `json:"sku"`
	CurrentPrice float64      `json:"currentPrice"`
	PricingRule  *PricingRule `json:"pricingRule,omitempty"`
}

// Order is a marketplace order pending reconciliation.
type Order struct {
	ID     string `json:"id"`
	SKU    string `json:"sku"`
	Status string `json:"status"`
}

// ListingDraft describes one item of an ebay_bulk_list job.
type ListingDraft struct {
	Title string  `json:"title"`
	SKU   string  `json:"sku"`
	Price float64 `json:"price"`
}

// MarketClient is the seam to the marketplace (eBay) integration.
type MarketClient interface {
	Inventory(ctx context.Context) ([]InventoryItem, error)

	// CompetitorPrice returns the reference competitor price for a SKU. An
	// error means no live feed is available for the item; the repricer then
	// falls back to the item's own current price as the reference.
	CompetitorPrice(ctx context.Context, sku string) (float64, error)

	SetPrice(ctx context.Context, sku string, price float64) error
	Orders(ctx context.Context) ([]Order, error)
	AckOrder(ctx context.Context, orderID string) error
	CreateDraft(ctx context.Context, draft ListingDraft) (string, error)
}

// MarketplaceEngine handles ebay_reprice, ebay_sync_orders and
// ebay_bulk_list jobs.
type MarketplaceEngine struct {
	logger *slog.Logger
	client MarketClient
}

func NewMarketplaceEngine(logger *slog.Logger, client MarketClient) *MarketplaceEngine {
	return &MarketplaceEngine{logger: logger, client: client}
}

type bulkListPayload struct {
	Items []ListingDraft `json:"items"`
}

func (e *MarketplaceEngine) Execute(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	switch job.Type {
	case domain.JobTypeEbayReprice:
		return e.reprice(ctx)
	case domain.JobTypeEbaySyncOrders:
		return e.syncOrders(ctx)
	case domain.JobTypeEbayBulkList:
		return e.bulkList(ctx, job.Payload)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type)
	}
}

// reprice runs the repricing pass over the full inventory and reports how
// many SKUs were updated.
func (e *MarketplaceEngine) reprice(ctx context.Context) (json.RawMessage, error) {
	items, err := e.client.Inventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch inventory failed: %w", err)
	}

	updated := 0
	for _, item := range items {
		if item.PricingRule == nil {
			continue
		}

		reference, err := e.client.CompetitorPrice(ctx, item.SKU)
		if err != nil {
			// No live feed for this SKU; approximate with its own price.
			reference = item.CurrentPrice
		}

		candidate, reprice := candidatePrice(item, reference)
		if !reprice {
			continue
		}

		candidate = clamp(candidate, item.PricingRule.MinPrice, item.PricingRule.MaxPrice)
		if candidate == item.CurrentPrice {
			continue
		}

		if err := e.client.SetPrice(ctx, item.SKU, candidate); err != nil {
			return nil, fmt.Errorf("set price for %s failed: %w", item.SKU, err)
		}
		e.logger.Info("sku repriced", "sku", item.SKU, "old", item.CurrentPrice, "new", candidate)
		updated++
	}

	return json.Marshal(map[string]any{"updated": updated})
}

// candidatePrice derives the raw (unclamped) candidate price for an item.
// The second return is false when the strategy does not trigger a reprice.
func candidatePrice(item InventoryItem, reference float64) (float64, bool) {
	switch item.PricingRule.Strategy {
	case StrategyUndercutCompetitor:
		return reference - undercutAmount, true
	case StrategyMatchLowest:
		return reference, true
	case StrategyFixedMargin:
		return item.CurrentPrice, false
	default:
		return item.CurrentPrice, false
	}
}

// clamp bounds v into [lo, hi]. Applies even when the raw candidate is
// negative.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *MarketplaceEngine) syncOrders(ctx context.Context) (json.RawMessage, error) {
	orders, err := e.client.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch orders failed: %w", err)
	}

	processed := 0
	for _, order := range orders {
		if err := e.client.AckOrder(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("ack order %s failed: %w", order.ID, err)
		}
		processed++
	}

	e.logger.Info("orders reconciled", "count", processed)
	return json.Marshal(map[string]any{"processed": processed})
}

func (e *MarketplaceEngine) bulkList(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p bulkListPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("invalid ebay_bulk_list payload: %w", err)
	}

	created := 0
	for _, draft := range p.Items {
		if _, err := e.client.CreateDraft(ctx, draft); err != nil {
			return nil, fmt.Errorf("create draft for %s failed: %w", draft.SKU, err)
		}
		created++
	}

	e.logger.Info("draft listings created", "count", created)
	return json.Marshal(map[string]any{"created": created})
}
