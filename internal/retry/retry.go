// Package retry runs indexer requests with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts, the first one included
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Upper bound of any delay
	Multiplier   float64       // Growth factor between delays
}

// DefaultConfig returns the indexer retry policy: 500ms, 1s, 2s, 4s, capped at 10s
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"-"`
}

// Func is one attempt of a retried operation
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff runs fn until it succeeds, returns an error that is
// not retryable, the attempts run out or ctx is done
func WithExponentialBackoff(ctx context.Context, config *Config, fn Func) *Result {
	if config == nil {
		config = DefaultConfig()
	}
	logger := logging.FromContext(ctx)
	startTime := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Request succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if !errors.IsRetryable(err) {
			logger.WithError(err).Debug("Error is not retryable, giving up")
			break
		}
		if attempt >= config.MaxAttempts {
			logger.WithFields(map[string]interface{}{
				"attempts": attempt,
				"error":    err.Error(),
			}).Warn("Request failed after max retry attempts")
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := Delay(config, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Debug("Request failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// Delay returns the wait before the attempt following attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay
func Delay(config *Config, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// Do is WithExponentialBackoff returning the last error
func Do(ctx context.Context, config *Config, fn Func) error {
	result := WithExponentialBackoff(ctx, config, fn)
	if !result.Success {
		return fmt.Errorf("failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}

// Stats aggregates outcomes of retried operations
type Stats struct {
	TotalOperations int     `json:"totalOperations"`
	SuccessfulOps   int     `json:"successfulOps"`
	FailedOps       int     `json:"failedOps"`
	TotalRetries    int     `json:"totalRetries"`
	AverageAttempts float64 `json:"averageAttempts"`
}

// StatsTracker records retry results; it is safe for concurrent use
type StatsTracker struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsTracker creates a tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Record adds one result
func (t *StatsTracker) Record(result *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalOperations++
	if result.Success {
		t.stats.SuccessfulOps++
	} else {
		t.stats.FailedOps++
	}
	if result.Attempts > 1 {
		t.stats.TotalRetries += result.Attempts - 1
	}
	t.stats.AverageAttempts = float64(t.stats.TotalRetries+t.stats.TotalOperations) / float64(t.stats.TotalOperations)
}

// Stats returns a copy of the counters
func (t *StatsTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset zeroes the counters
func (t *StatsTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{}
}
