package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
)

// DefaultMaxWait is the longest a request waits for budget
const DefaultMaxWait = 30 * time.Second

// ErrMaxWaitExceeded is returned when the maximum wait time for budget is exceeded.
var ErrMaxWaitExceeded = errors.New("maximum wait time exceeded waiting for query budget")

// BudgetedFetcher takes query units from the shared budget before every page
type BudgetedFetcher struct {
	underlying source.Fetcher
	tracker    *BudgetTracker
	costs      *CostRegistry
	maxWait    time.Duration
}

// BudgetedFetcherConfig holds configuration for the budgeted fetcher.
type BudgetedFetcherConfig struct {
	// Fetcher is the wrapped fetcher. Required.
	Fetcher source.Fetcher

	// Tracker is the shared budget. Required.
	Tracker *BudgetTracker

	// Costs prices each dataset; nil uses the default costs.
	Costs *CostRegistry

	// MaxWait bounds the wait for budget. Default: 30s.
	MaxWait time.Duration
}

// Validate checks if the configuration is valid.
func (c *BudgetedFetcherConfig) Validate() error {
	if c.Fetcher == nil {
		return errors.New("underlying fetcher is required")
	}
	if c.Tracker == nil {
		return errors.New("budget tracker is required")
	}
	return nil
}

// NewBudgetedFetcher wraps a fetcher with the shared budget
func NewBudgetedFetcher(cfg *BudgetedFetcherConfig) (*BudgetedFetcher, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	costs := cfg.Costs
	if costs == nil {
		costs = NewCostRegistry(nil)
	}
	maxWait := cfg.MaxWait
	if maxWait == 0 {
		maxWait = DefaultMaxWait
	}

	return &BudgetedFetcher{
		underlying: cfg.Fetcher,
		tracker:    cfg.Tracker,
		costs:      costs,
		maxWait:    maxWait,
	}, nil
}

// FetchPage implements source.Fetcher
func (f *BudgetedFetcher) FetchPage(ctx context.Context, req source.Request) (source.Payload, error) {
	if err := f.waitForBudget(ctx, req); err != nil {
		return source.Payload{}, err
	}
	return f.underlying.FetchPage(ctx, req)
}

// waitForBudget blocks until the page's units are granted, ctx ends or
// maxWait is exceeded
func (f *BudgetedFetcher) waitForBudget(ctx context.Context, req source.Request) error {
	units := f.costs.GetCost(req.Kind)
	priority := PriorityOf(req.Kind)
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"project":  req.Project,
		"kind":     string(req.Kind),
		"priority": priority.String(),
		"units":    units,
	})

	started := time.Now()
	deadline := started.Add(f.maxWait)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		allowed, wait := f.tracker.TryConsume(ctx, units, priority)
		if allowed {
			if err := f.tracker.RecordKindUsage(ctx, string(req.Kind), units); err != nil {
				logger.WithError(err).Debug("Failed to record query usage")
			}
			return nil
		}

		if time.Now().Add(wait).After(deadline) {
			logger.WithField("waited", time.Since(started).String()).Warn("Query budget wait exceeded")
			return ErrMaxWaitExceeded
		}

		logger.WithField("wait", wait.String()).Debug("Waiting for query budget")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
