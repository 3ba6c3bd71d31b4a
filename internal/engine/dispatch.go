// Package engine holds the per-job-type handlers that perform the actual
// external side effects, plus the dispatcher that maps a job type to its
// engine. Engines are stateless beyond their injected service clients.
package engine

import (
	"fmt"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/ports"
)

// Dispatcher routes a job to the engine owning its type. The mapping is
// exhaustive over the closed job-type set; anything else is an unknown-type
// error captured as a job failure by the manager.
type Dispatcher struct {
	social      ports.Engine
	ecommerce   ports.Engine
	automation  ports.Engine
	marketplace ports.Engine
}

func NewDispatcher(social, ecommerce, automation, marketplace ports.Engine) *Dispatcher {
	return &Dispatcher{
		social:      social,
		ecommerce:   ecommerce,
		automation:  automation,
		marketplace: marketplace,
	}
}

// Resolve returns the engine responsible for the given job type.
func (d *Dispatcher) Resolve(t domain.JobType) (ports.Engine, error) {
	switch t {
	case domain.JobTypePostSocial, domain.JobTypeAnalyzeMetrics:
		return d.social, nil
	case domain.JobTypeCreateListing, domain.JobTypeSyncInventory:
		return d.ecommerce, nil
	case domain.JobTypeDeployCode:
		return d.automation, nil
	case domain.JobTypeEbayReprice, domain.JobTypeEbaySyncOrders, domain.JobTypeEbayBulkList:
		return d.marketplace, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, t)
	}
}
