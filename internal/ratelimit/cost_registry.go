package ratelimit

import (
	"sync"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// Default query unit costs of one page per dataset.
const (
	DefaultQueryCost = 1 // Cost for unknown datasets

	CostDefinitions = 1
	CostProgress    = 3 // joins progress with the catalog tasks
	CostActivity    = 2
)

// CostRegistry maps datasets to the query units one page costs.
// It is safe for concurrent use.
type CostRegistry struct {
	mu          sync.RWMutex
	costs       map[types.SourceKind]int
	defaultCost int
}

// CostRegistryConfig holds configuration for the registry.
type CostRegistryConfig struct {
	// DefaultCost is the cost for unknown datasets. Zero uses DefaultQueryCost.
	DefaultCost int

	// Overrides replace the built-in costs.
	Overrides map[types.SourceKind]int
}

// NewCostRegistry creates a registry with the default costs; cfg may be nil
func NewCostRegistry(cfg *CostRegistryConfig) *CostRegistry {
	costs := map[types.SourceKind]int{
		types.KindDefinitions: CostDefinitions,
		types.KindProgress:    CostProgress,
		types.KindActivity:    CostActivity,
	}
	defaultCost := DefaultQueryCost

	if cfg != nil {
		if cfg.DefaultCost > 0 {
			defaultCost = cfg.DefaultCost
		}
		for kind, cost := range cfg.Overrides {
			if cost > 0 {
				costs[kind] = cost
			}
		}
	}

	return &CostRegistry{costs: costs, defaultCost: defaultCost}
}

// GetCost returns the cost of one page of kind
func (r *CostRegistry) GetCost(kind types.SourceKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[kind]; ok {
		return cost
	}
	return r.defaultCost
}

// SetCost updates the cost of kind; non-positive costs are ignored
func (r *CostRegistry) SetCost(kind types.SourceKind, cost int) {
	if cost <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.costs[kind] = cost
}

// PriorityOf returns the pool a dataset draws from: achievement data is
// reserved, activity is best effort
func PriorityOf(kind types.SourceKind) Priority {
	if kind == types.KindActivity {
		return PriorityLow
	}
	return PriorityHigh
}
