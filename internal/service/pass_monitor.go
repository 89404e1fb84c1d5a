package service

import (
	"sort"
	"sync"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// slowPass marks passes worth a warning
const slowPass = 30 * time.Second

// PassMonitor keeps timing statistics of recent poll passes
type PassMonitor struct {
	mu         sync.RWMutex
	durations  []time.Duration
	maxSamples int
	succeeded  int64
	failed     int64
	cancelled  int64
	slow       int64
	last       PassRecord
}

// PassRecord describes one finished pass
type PassRecord struct {
	PassID   string        `json:"passId"`
	Status   types.Status  `json:"status"`
	Duration time.Duration `json:"duration"`
	Sources  int           `json:"sources"`
	Failed   int           `json:"failed"`
	Dropped  int           `json:"dropped"`
	EndedAt  time.Time     `json:"endedAt"`
}

// NewPassMonitor creates a monitor keeping the last 200 durations
func NewPassMonitor() *PassMonitor {
	return &PassMonitor{
		durations:  make([]time.Duration, 0, 200),
		maxSamples: 200,
	}
}

// Record adds a completed pass
func (pm *PassMonitor) Record(rec PassRecord) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	switch rec.Status {
	case types.StatusSuccess:
		pm.succeeded++
	default:
		pm.failed++
	}
	if rec.Duration > slowPass {
		pm.slow++
	}

	pm.durations = append(pm.durations, rec.Duration)
	if len(pm.durations) > pm.maxSamples {
		pm.durations = pm.durations[len(pm.durations)-pm.maxSamples:]
	}
	pm.last = rec
}

// RecordCancelled counts a pass superseded by a newer one
func (pm *PassMonitor) RecordCancelled() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.cancelled++
}

// GetStats returns current pass statistics
func (pm *PassMonitor) GetStats() *PassStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PassStats{
		Succeeded: pm.succeeded,
		Failed:    pm.failed,
		Cancelled: pm.cancelled,
		Slow:      pm.slow,
		Last:      pm.last,
	}
	if len(pm.durations) == 0 {
		return stats
	}

	var total time.Duration
	for _, d := range pm.durations {
		total += d
	}
	stats.AvgMs = float64(total.Milliseconds()) / float64(len(pm.durations))

	sorted := make([]time.Duration, len(pm.durations))
	copy(sorted, pm.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p95Index := int(float64(len(sorted)) * 0.95)
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}
	stats.P95Ms = float64(sorted[p95Index].Milliseconds())
	return stats
}

// Reset clears all statistics
func (pm *PassMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.durations = make([]time.Duration, 0, pm.maxSamples)
	pm.succeeded = 0
	pm.failed = 0
	pm.cancelled = 0
	pm.slow = 0
	pm.last = PassRecord{}
}

// PassStats contains pass statistics
type PassStats struct {
	Succeeded int64      `json:"succeeded"`
	Failed    int64      `json:"failed"`
	Cancelled int64      `json:"cancelled"`
	Slow      int64      `json:"slow"`
	AvgMs     float64    `json:"avgMs"`
	P95Ms     float64    `json:"p95Ms"`
	Last      PassRecord `json:"last"`
}
