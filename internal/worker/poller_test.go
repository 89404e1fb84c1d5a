package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/service"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

type countingService struct {
	calls atomic.Int32
	err   error
}

func (s *countingService) Poll(ctx context.Context) (*service.View, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &service.View{PassID: "p", Status: types.StatusSuccess}, nil
}

func TestNewPollerValidation(t *testing.T) {
	_, err := NewPoller(&PollerConfig{})
	require.Error(t, err)

	_, err = NewPoller(&PollerConfig{Service: &countingService{}, PollInterval: time.Millisecond})
	require.Error(t, err)

	p, err := NewPoller(&PollerConfig{Service: &countingService{}})
	require.NoError(t, err)
	assert.Equal(t, "1m0s", p.GetStatus().PollInterval)
}

func TestPollerRunsFirstPassImmediately(t *testing.T) {
	svc := &countingService{}
	p, err := NewPoller(&PollerConfig{Service: svc, PollInterval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	require.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return svc.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, p.GetStatus().Running)

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.GetStatus().Running)
	require.Error(t, p.Stop(context.Background()))
}

func TestPollOnceRecordsError(t *testing.T) {
	svc := &countingService{err: fmt.Errorf("boom")}
	p, err := NewPoller(&PollerConfig{Service: svc})
	require.NoError(t, err)

	p.PollOnce(context.Background())

	status := p.GetStatus()
	assert.Equal(t, 1, status.Passes)
	assert.Equal(t, "boom", status.LastError)
	assert.False(t, status.LastPollTime.IsZero())
}
