package source

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"github.com/alitto/pond/v2"

	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// defaultMaxPages stops a source that never returns a short page
const defaultMaxPages = 10_000

// Target is one (project, dataset) pair drained by a stream
type Target struct {
	Project   string
	Kind      types.SourceKind
	Since     int64
	Summaries bool
}

// Streamer fans requests out over a worker pool and hands pages back as a
// stream of partial results
type Streamer struct {
	fetcher  Fetcher
	pool     pond.Pool
	pageSize int
	maxPages int
}

// NewStreamer creates a streamer with at most maxWorkers concurrent sources
func NewStreamer(fetcher Fetcher, maxWorkers, pageSize int) *Streamer {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Streamer{
		fetcher:  fetcher,
		pool:     pond.NewPool(maxWorkers),
		pageSize: pageSize,
		maxPages: defaultMaxPages,
	}
}

// Stop waits for running sources and releases the pool
func (s *Streamer) Stop() {
	s.pool.StopAndWait()
}

// Stream drains every target concurrently. Results arrive in any order; each
// source ends with exactly one result whose Metadata.IsLast is set, either
// its last page or its error. The channel closes once every source ended or
// ctx is done.
func (s *Streamer) Stream(ctx context.Context, targets []Target) <-chan Result {
	out := make(chan Result, len(targets))
	if len(targets) == 0 {
		close(out)
		return out
	}

	var completed atomic.Int32
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, target := range targets {
		target := target
		group.Submit(func() {
			s.drain(groupCtx, target, len(targets), &completed, out)
		})
	}

	go func() {
		if err := group.Wait(); err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, pond.ErrGroupStopped) {
			logging.FromContext(ctx).WithError(err).Warn("Source stream ended with error")
		}
		close(out)
	}()
	return out
}

func (s *Streamer) drain(ctx context.Context, target Target, total int, completed *atomic.Int32, out chan<- Result) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"project": target.Project,
		"kind":    string(target.Kind),
	})

	offset := 0
	for page := 0; page < s.maxPages; page++ {
		if ctx.Err() != nil {
			return
		}

		payload, err := s.fetcher.FetchPage(ctx, Request{
			Project:   target.Project,
			Kind:      target.Kind,
			Limit:     s.pageSize,
			Offset:    offset,
			Since:     target.Since,
			Summaries: target.Summaries,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Warn("Source failed")
			emit(ctx, out, Result{
				Project:  target.Project,
				Kind:     target.Kind,
				Page:     page,
				Err:      err,
				Metadata: Metadata{Completed: int(completed.Add(1)), Total: total, IsLast: true},
			})
			return
		}

		last := payload.Len() < s.pageSize || page == s.maxPages-1
		meta := Metadata{Completed: int(completed.Load()), Total: total, IsLast: last}
		if last {
			meta.Completed = int(completed.Add(1))
		}

		emit(ctx, out, Result{
			Project:  target.Project,
			Kind:     target.Kind,
			Endpoint: payload.Endpoint,
			Page:     page,
			Payload:  payload,
			Metadata: meta,
		})
		if last {
			logger.WithField("pages", page+1).Debug("Source drained")
			return
		}
		offset += payload.Len()
	}
}

func emit(ctx context.Context, out chan<- Result, r Result) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
