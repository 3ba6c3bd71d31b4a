// Package sim provides in-process stand-ins for the external service
// integrations (social publishing, e-commerce, deployment, marketplace).
// They keep their state in memory and are the default wiring when no real
// integration is configured, mirroring how the rest of the system treats
// those services: asynchronous, fallible seams behind small interfaces.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brunovale/ariaOS/internal/engine"
	"github.com/google/uuid"
)

// SocialClient simulates a social publishing API.
type SocialClient struct {
	mu    sync.Mutex
	posts map[string][]string // platform -> post refs
}

func NewSocialClient() *SocialClient {
	return &SocialClient{posts: make(map[string][]string)}
}

func (c *SocialClient) Publish(ctx context.Context, platform, content string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ref := fmt.Sprintf("https://%s.example/posts/%s", platform, uuid.NewString())
	c.posts[platform] = append(c.posts[platform], ref)
	return ref, nil
}

func (c *SocialClient) Metrics(ctx context.Context, platform string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		"platform":    platform,
		"posts":       len(c.posts[platform]),
		"followers":   1280,
		"impressions": 45210,
		"fetched_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CommerceClient simulates an e-commerce platform API.
type CommerceClient struct {
	mu         sync.Mutex
	listings   map[string]string // listing id -> platform
	quantities map[string]int    // product id -> qty
}

func NewCommerceClient() *CommerceClient {
	return &CommerceClient{
		listings:   make(map[string]string),
		quantities: make(map[string]int),
	}
}

func (c *CommerceClient) CreateListing(ctx context.Context, platform string, product json.RawMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.listings[id] = platform
	return id, nil
}

func (c *CommerceClient) UpdateQuantity(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("quantity cannot be negative: %d", qty)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quantities[productID] = qty
	return nil
}

// DeployClient simulates a deployment API.
type DeployClient struct {
	mu      sync.Mutex
	deploys []string
}

func NewDeployClient() *DeployClient {
	return &DeployClient{}
}

func (c *DeployClient) Deploy(ctx context.Context, projectName string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.deploys = append(c.deploys, id)
	return map[string]any{
		"project":       projectName,
		"deployment_id": id,
		"status":        "triggered",
	}, nil
}

// MarketClient simulates the marketplace (eBay) API, including a synthetic
// competitor price feed derived from the item's own price.
type MarketClient struct {
	mu        sync.Mutex
	inventory map[string]engine.InventoryItem
	orders    []engine.Order
	acked     map[string]bool
	drafts    map[string]engine.ListingDraft
}

func NewMarketClient() *MarketClient {
	return &MarketClient{
		inventory: make(map[string]engine.InventoryItem),
		acked:     make(map[string]bool),
		drafts:    make(map[string]engine.ListingDraft),
	}
}

// SeedInventory loads items into the simulated store, replacing any existing
// entry for the same SKU.
func (c *MarketClient) SeedInventory(items ...engine.InventoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		c.inventory[item.SKU] = item
	}
}

// SeedOrders loads unreconciled orders into the simulated store.
func (c *MarketClient) SeedOrders(orders ...engine.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append(c.orders, orders...)
}

func (c *MarketClient) Inventory(ctx context.Context) ([]engine.InventoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]engine.InventoryItem, 0, len(c.inventory))
	for _, item := range c.inventory {
		items = append(items, item)
	}
	return items, nil
}

// CompetitorPrice approximates the going rate as a few percent under the
// item's own price, which is what a real feed tends to report for a listing
// that is not yet the cheapest.
func (c *MarketClient) CompetitorPrice(ctx context.Context, sku string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.inventory[sku]
	if !ok {
		return 0, fmt.Errorf("unknown sku: %s", sku)
	}
	return item.CurrentPrice * 0.97, nil
}

func (c *MarketClient) SetPrice(ctx context.Context, sku string, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.inventory[sku]
	if !ok {
		return fmt.Errorf("unknown sku: %s", sku)
	}
	item.CurrentPrice = price
	c.inventory[sku] = item
	return nil
}

func (c *MarketClient) Orders(ctx context.Context) ([]engine.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pending []engine.Order
	for _, order := range c.orders {
		if !c.acked[order.ID] {
			pending = append(pending, order)
		}
	}
	return pending, nil
}

func (c *MarketClient) AckOrder(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked[orderID] = true
	return nil
}

func (c *MarketClient) CreateDraft(ctx context.Context, draft engine.ListingDraft) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.drafts[id] = draft
	return id, nil
}
