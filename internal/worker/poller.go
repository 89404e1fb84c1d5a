// Package worker runs the poll loop that keeps the published view fresh.
package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/service"
)

// Pollable runs one poll pass
type Pollable interface {
	Poll(ctx context.Context) (*service.View, error)
}

// Poller runs a pass on start and then on every tick
type Poller struct {
	service      Pollable
	pollInterval time.Duration
	running      bool
	mu           sync.RWMutex
	stopCh       chan struct{}
	doneCh       chan struct{}
	lastPollTime time.Time
	lastErr      error
	passes       int
}

// PollerConfig holds configuration for a poller
type PollerConfig struct {
	Service      Pollable
	PollInterval time.Duration
}

// NewPoller creates a new poller
func NewPoller(cfg *PollerConfig) (*Poller, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	// Default poll interval: 60 seconds
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 60 * time.Second
	}
	if pollInterval < time.Second {
		return nil, fmt.Errorf("poll interval must be at least 1s, got %v", pollInterval)
	}

	return &Poller{
		service:      cfg.Service,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start runs the first pass in the background and keeps polling until Stop
// or ctx ends
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.mu.Unlock()

	logging.FromContext(ctx).WithField("interval", p.pollInterval.String()).Info("Starting poller")

	go p.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the poller
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	p.mu.Unlock()

	logger := logging.FromContext(ctx)
	logger.Info("Stopping poller")

	close(p.stopCh)

	select {
	case <-p.doneCh:
		logger.Info("Poller stopped gracefully")
	case <-ctx.Done():
		logger.Warn("Poller stop timed out")
		return ctx.Err()
	case <-time.After(30 * time.Second):
		logger.Warn("Poller stop timed out after 30s")
		return fmt.Errorf("stop timeout")
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneCh)

	// stopCh also cancels a pass in flight
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.PollOnce(loopCtx)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			p.PollOnce(loopCtx)
		}
	}
}

// PollOnce runs one pass and records its outcome; errors are logged and the
// loop keeps going
func (p *Poller) PollOnce(ctx context.Context) {
	p.mu.Lock()
	p.lastPollTime = time.Now()
	p.mu.Unlock()

	view, err := p.service.Poll(ctx)

	p.mu.Lock()
	p.passes++
	p.lastErr = err
	p.mu.Unlock()

	logger := logging.FromContext(ctx)
	switch {
	case err == nil:
		logger.WithFields(map[string]interface{}{
			"pass":   view.PassID,
			"status": string(view.Status),
		}).Debug("Poll completed")
	case stderrors.Is(err, context.Canceled):
		logger.Debug("Poll cancelled")
	default:
		logger.WithError(err).Error("Poll failed")
	}
}

// PollerStatus represents the current status of a poller
type PollerStatus struct {
	Running      bool      `json:"running"`
	PollInterval string    `json:"pollInterval"`
	LastPollTime time.Time `json:"lastPollTime"`
	Passes       int       `json:"passes"`
	LastError    string    `json:"lastError,omitempty"`
}

// GetStatus returns the current status of the poller
func (p *Poller) GetStatus() *PollerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := &PollerStatus{
		Running:      p.running,
		PollInterval: p.pollInterval.String(),
		LastPollTime: p.lastPollTime,
		Passes:       p.passes,
	}
	if p.lastErr != nil {
		status.LastError = p.lastErr.Error()
	}
	return status
}
