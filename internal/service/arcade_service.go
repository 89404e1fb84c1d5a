package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cartridge-gg/arcade-sub001/internal/achievement"
	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/ranking"
	"github.com/cartridge-gg/arcade-sub001/internal/session"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/storage"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// progressBuffer is how many progress updates a slow subscriber may lag
const progressBuffer = 64

// passKinds are the datasets drained for every project
var passKinds = []types.SourceKind{types.KindDefinitions, types.KindProgress, types.KindActivity}

// PinStore reads the pins chosen by players
type PinStore interface {
	GetByPlayer(ctx context.Context, player types.AddressKey) ([]types.Pin, error)
}

// ActivityArchive stores call events read from the indexer
type ActivityArchive interface {
	BatchInsert(ctx context.Context, project string, events []types.CallEvent) error
}

// StatusStore records the outcome of each project's last fetch
type StatusStore interface {
	Upsert(ctx context.Context, status types.SourceStatus) error
}

// ViewCache keeps the last published view for other processes
type ViewCache interface {
	Set(ctx context.Context, key string, value interface{}) error
	ViewKey() string
}

// Options tunes a pass
type Options struct {
	Projects       []string
	BreakThreshold time.Duration
	Window         time.Duration // activity older than this is not fetched
	PageSize       int
	MaxWorkers     int
	Summaries      bool
	Denylist       *session.Denylist
}

// OptionsFromConfig maps the service configuration to pass options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Projects:       cfg.Sources.Projects,
		BreakThreshold: cfg.Session.BreakThreshold,
		Window:         cfg.Session.Window,
		PageSize:       cfg.Sources.PageSize,
		MaxWorkers:     cfg.Sources.MaxWorkers,
		Summaries:      cfg.Sources.ActivitySummaries,
	}
}

// Dependencies are the collaborators of the service. Only Fetcher is
// required; the others are skipped when nil.
type Dependencies struct {
	Fetcher  source.Fetcher
	Pins     PinStore
	Archive  ActivityArchive
	Statuses StatusStore
	Cache    ViewCache
	Players  *storage.PlayerCache
}

// ServiceStatus is the live state of the service, including a pass in flight
type ServiceStatus struct {
	Status   types.Status                  `json:"status"`
	Progress types.LoadingProgress         `json:"progress"`
	PassID   string                        `json:"passId"`
	Sources  []types.SourceStatus          `json:"sources"`
	Passes   *PassStats                    `json:"passes"`
	Players  *storage.ConcurrentCacheStats `json:"players,omitempty"`
}

// ArcadeService runs poll passes over every project and publishes the
// derived view
type ArcadeService struct {
	opts     Options
	deps     Dependencies
	streamer *source.Streamer
	monitor  *PassMonitor
	now      func() time.Time

	// passMu serializes passes; the aggregator and event store are owned by
	// the pass holding it
	passMu     sync.Mutex
	aggregator *achievement.Aggregator
	events     *session.EventStore

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	view atomic.Pointer[View]

	stateMu  sync.RWMutex
	status   types.Status
	progress types.LoadingProgress
	passID   string

	sources    *xsync.Map[string, types.SourceStatus]
	progressCh chan types.LoadingProgress
}

// NewArcadeService wires a service; it fails when no fetcher is given
func NewArcadeService(opts Options, deps Dependencies) (*ArcadeService, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("arcade service requires a source fetcher")
	}
	if opts.BreakThreshold <= 0 {
		opts.BreakThreshold = session.DefaultBreakThreshold
	}
	if opts.Denylist == nil {
		opts.Denylist = session.DefaultDenylist
	}

	s := &ArcadeService{
		opts:       opts,
		deps:       deps,
		streamer:   source.NewStreamer(deps.Fetcher, opts.MaxWorkers, opts.PageSize),
		monitor:    NewPassMonitor(),
		now:        time.Now,
		aggregator: achievement.NewAggregator(nil),
		events:     session.NewEventStore(),
		status:     types.StatusIdle,
		sources:    xsync.NewMap[string, types.SourceStatus](),
		progressCh: make(chan types.LoadingProgress, progressBuffer),
	}
	s.view.Store(emptyView())
	return s, nil
}

// passState is what the consumer of one pass accumulates
type passState struct {
	definitions map[string][]types.Achievement
	summaries   map[string][]types.ActivitySummary
	pending     map[string]int
	dropped     int
	failed      int
}

// Poll runs one pass: it cancels any pass still running, drains every
// project's sources and publishes a new view. A pass whose context ends
// before its sources are drained publishes nothing and returns the context
// error.
func (s *ArcadeService) Poll(ctx context.Context) (*View, error) {
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cancelMu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.cancelMu.Unlock()

	s.passMu.Lock()
	defer s.passMu.Unlock()

	if err := passCtx.Err(); err != nil {
		s.monitor.RecordCancelled()
		return nil, err
	}

	started := s.now()
	passID := uuid.New().String()
	logger := logging.FromContext(ctx).WithField("pass", passID)
	passCtx = logging.WithLogger(passCtx, logger)

	targets := s.targets(started)
	s.beginPass(passID, len(targets))
	logger.WithField("sources", len(targets)).Info("Poll pass started")

	state := &passState{
		definitions: make(map[string][]types.Achievement),
		summaries:   make(map[string][]types.ActivitySummary),
		pending:     make(map[string]int),
	}
	for _, t := range targets {
		state.pending[t.Project]++
	}

	for result := range s.streamer.Stream(passCtx, targets) {
		s.consume(passCtx, logger, state, result)
	}

	if err := passCtx.Err(); err != nil {
		s.monitor.RecordCancelled()
		s.endPass(s.view.Load().Status)
		logger.Info("Poll pass cancelled")
		return nil, err
	}

	view := s.build(passID, started, state)
	s.view.Store(view)
	s.endPass(view.Status)
	s.publishProgress(types.LoadingProgress{Completed: len(targets), Total: len(targets), Status: view.Status})

	duration := s.now().Sub(started)
	s.monitor.Record(PassRecord{
		PassID:   passID,
		Status:   view.Status,
		Duration: duration,
		Sources:  len(targets),
		Failed:   state.failed,
		Dropped:  state.dropped,
		EndedAt:  s.now().UTC(),
	})
	logger.WithFields(map[string]interface{}{
		"status":   string(view.Status),
		"duration": duration.String(),
		"failed":   state.failed,
		"dropped":  state.dropped,
	}).Info("Poll pass finished")

	s.persist(passCtx, view)
	return view, nil
}

func (s *ArcadeService) targets(now time.Time) []source.Target {
	since := int64(0)
	if s.opts.Window > 0 {
		since = now.Add(-s.opts.Window).UnixMilli()
	}
	targets := make([]source.Target, 0, len(s.opts.Projects)*len(passKinds))
	for _, project := range s.opts.Projects {
		for _, kind := range passKinds {
			targets = append(targets, source.Target{
				Project:   project,
				Kind:      kind,
				Since:     since,
				Summaries: s.opts.Summaries,
			})
		}
	}
	return targets
}

func (s *ArcadeService) beginPass(passID string, total int) {
	s.stateMu.Lock()
	s.status = types.StatusLoading
	s.progress = types.LoadingProgress{Total: total}
	s.passID = passID
	s.stateMu.Unlock()

	now := s.now().UnixMilli()
	for _, project := range s.opts.Projects {
		s.sources.Store(project, types.SourceStatus{
			Project:   project,
			Status:    types.StatusLoading,
			UpdatedAt: now,
		})
	}
	s.publishProgress(types.LoadingProgress{Total: total})
}

func (s *ArcadeService) endPass(status types.Status) {
	s.stateMu.Lock()
	s.status = status
	s.stateMu.Unlock()
}

// consume folds one partial result into the running aggregate
func (s *ArcadeService) consume(ctx context.Context, logger *logging.Logger, state *passState, r source.Result) {
	rows, dropped := 0, 0

	if r.Err == nil {
		switch r.Kind {
		case types.KindDefinitions:
			defs, d := source.DecodeDefinitions(r.Project, r.Payload)
			state.definitions[r.Project] = append(state.definitions[r.Project], defs...)
			rows, dropped = len(defs), d
			if r.Metadata.IsLast {
				s.aggregator.Catalog().Put(r.Project, state.definitions[r.Project])
			}

		case types.KindProgress:
			progress, d := source.DecodeProgress(r.Project, r.Payload)
			merged := s.aggregator.Merge(r.Project, progress)
			rows, dropped = len(progress), d
			if merged.Ignored > 0 {
				logger.WithFields(map[string]interface{}{
					"project": r.Project,
					"ignored": merged.Ignored,
				}).Debug("Progress rows ignored")
			}

		case types.KindActivity:
			events, summaries, d := source.DecodeActivity(r.Payload)
			s.events.Merge(r.Project, events)
			state.summaries[r.Project] = append(state.summaries[r.Project], summaries...)
			rows, dropped = len(events)+len(summaries), d
			if r.Payload.Kind != source.PayloadEvents {
				s.archive(ctx, logger, r.Project, events)
			}
		}

		if dropped > 0 {
			state.dropped += dropped
			logger.WithError(errors.NewPartialBatchError(r.Project, dropped, r.Payload.Len())).
				WithField("kind", string(r.Kind)).
				Warn("Rows dropped")
		}
	} else {
		state.failed++
	}

	s.recordSource(state, r, rows, dropped)

	if r.Metadata.IsLast {
		s.stateMu.Lock()
		s.progress = types.LoadingProgress{Completed: r.Metadata.Completed, Total: r.Metadata.Total}
		progress := s.progress
		s.stateMu.Unlock()
		s.publishProgress(progress)
	}
}

func (s *ArcadeService) recordSource(state *passState, r source.Result, rows, dropped int) {
	if r.Metadata.IsLast {
		state.pending[r.Project]--
	}
	finished := state.pending[r.Project] <= 0
	now := s.now().UnixMilli()

	s.sources.Compute(r.Project, func(old types.SourceStatus, loaded bool) (types.SourceStatus, xsync.ComputeOp) {
		if !loaded {
			old = types.SourceStatus{Project: r.Project, Status: types.StatusLoading}
		}
		old.Rows += rows
		old.Dropped += dropped
		old.UpdatedAt = now
		if r.Err != nil {
			old.Status = types.StatusError
			old.Error = r.Err.Error()
		}
		if finished && old.Status == types.StatusLoading {
			old.Status = types.StatusSuccess
		}
		return old, xsync.UpdateOp
	})
}

func (s *ArcadeService) archive(ctx context.Context, logger *logging.Logger, project string, events []types.CallEvent) {
	if s.deps.Archive == nil || len(events) == 0 {
		return
	}
	if err := s.deps.Archive.BatchInsert(ctx, project, events); err != nil {
		logger.WithError(err).WithField("project", project).Warn("Failed to archive call events")
	}
}

// build derives the view of a drained pass
func (s *ArcadeService) build(passID string, started time.Time, state *passState) *View {
	if s.opts.Window > 0 {
		s.events.Prune(started.Add(-s.opts.Window).UnixMilli())
	}

	result := s.aggregator.Compute()
	catalog := s.aggregator.Catalog().Clone()

	view := &View{
		PassID:       passID,
		Status:       types.StatusSuccess,
		Progress:     s.CurrentProgress(),
		Achievements: make(map[string][]types.Achievement),
		Players:      result.Players,
		Globals:      result.Globals,
		Discovers:    make(map[string][]types.Session),
		Sources:      make(map[string]types.SourceStatus),
		Dropped:      state.dropped,
		UpdatedAt:    s.now().UnixMilli(),
		result:       result,
		catalog:      catalog,
	}
	if view.Globals == nil {
		view.Globals = []types.PlayerStats{}
	}

	for _, project := range s.projects(catalog) {
		view.Achievements[project] = catalog.Achievements(project)

		builder := session.NewBuilder(project, s.opts.BreakThreshold, s.opts.Denylist)
		builder.AddPage(s.events.Events(project))
		builder.AddSummaries(state.summaries[project])
		sessions := session.Attach(builder.Sessions(), result.Completions, catalog)
		session.SortRecent(sessions)
		view.Discovers[project] = sessions
	}

	s.sources.Range(func(project string, status types.SourceStatus) bool {
		view.Sources[project] = status
		if status.Status == types.StatusError {
			view.Status = types.StatusError
		}
		return true
	})
	if state.failed > 0 {
		view.Status = types.StatusError
	}
	return view
}

// projects returns every configured project plus any with data, sorted
func (s *ArcadeService) projects(catalog *achievement.Catalog) []string {
	seen := make(map[string]struct{})
	for _, p := range s.opts.Projects {
		seen[p] = struct{}{}
	}
	for _, p := range catalog.Projects() {
		seen[p] = struct{}{}
	}
	for _, p := range s.aggregator.Projects() {
		seen[p] = struct{}{}
	}
	for _, p := range s.events.Projects() {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// persist writes the view to the optional stores; failures are logged only
func (s *ArcadeService) persist(ctx context.Context, view *View) {
	logger := logging.FromContext(ctx)

	if s.deps.Statuses != nil {
		for _, status := range view.SourceList() {
			if err := s.deps.Statuses.Upsert(ctx, status); err != nil {
				logger.WithError(err).WithField("project", status.Project).Warn("Failed to record source status")
			}
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, s.deps.Cache.ViewKey(), view); err != nil {
			logger.WithError(err).Warn("Failed to cache view")
		}
	}
	if s.deps.Players != nil {
		if err := s.deps.Players.Invalidate(ctx); err != nil {
			logger.WithError(err).Warn("Failed to invalidate player cache")
		}
	}
}

func (s *ArcadeService) publishProgress(p types.LoadingProgress) {
	select {
	case s.progressCh <- p:
	default:
	}
}

// View returns the last published view; it is never nil
func (s *ArcadeService) View() *View {
	return s.view.Load()
}

// Status returns the live state, including a pass still loading
func (s *ArcadeService) Status() ServiceStatus {
	s.stateMu.RLock()
	status := ServiceStatus{
		Status:   s.status,
		Progress: s.progress,
		PassID:   s.passID,
	}
	s.stateMu.RUnlock()

	s.sources.Range(func(_ string, st types.SourceStatus) bool {
		status.Sources = append(status.Sources, st)
		return true
	})
	sort.Slice(status.Sources, func(i, j int) bool { return status.Sources[i].Project < status.Sources[j].Project })

	status.Passes = s.monitor.GetStats()
	if s.deps.Players != nil {
		status.Players = s.deps.Players.GetStats()
	}
	return status
}

// CurrentProgress returns the progress of the current or last pass
func (s *ArcadeService) CurrentProgress() types.LoadingProgress {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.progress
}

// Progress returns the channel receiving a progress update whenever a
// source finishes. The last update of a published pass carries its
// status. Updates are dropped while the channel is full.
func (s *ArcadeService) Progress() <-chan types.LoadingProgress {
	return s.progressCh
}

// Player returns the standing of one address in every project
func (s *ArcadeService) Player(ctx context.Context, address string) (ranking.PlayerSummary, error) {
	player, err := normalize.Address(address)
	if err != nil {
		return ranking.PlayerSummary{}, err
	}

	view := s.View()
	load := func(_ context.Context, p types.AddressKey) (ranking.PlayerSummary, error) {
		return view.PlayerSummary(p), nil
	}
	if s.deps.Players == nil {
		return load(ctx, player)
	}
	return s.deps.Players.Get(ctx, player, load)
}

// Pins returns the showcase of one address in a project
func (s *ArcadeService) Pins(ctx context.Context, address, project string) ([]ranking.PinnedAchievement, error) {
	player, err := normalize.Address(address)
	if err != nil {
		return nil, err
	}
	if project == "" {
		return nil, errors.NewInvalidParameterError("project", "project is required")
	}

	var pins []types.Pin
	if s.deps.Pins != nil {
		pins, err = s.deps.Pins.GetByPlayer(ctx, player)
		if err != nil {
			return nil, err
		}
	}
	return s.View().Pinned(player, project, pins), nil
}

// Reset cancels any running pass and drops every accumulated row
func (s *ArcadeService) Reset(ctx context.Context) {
	s.cancelRunning()

	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.aggregator.Reset()
	s.aggregator.Catalog().Reset()
	s.events.Clear()
	s.sources.Clear()
	s.view.Store(emptyView())

	s.stateMu.Lock()
	s.status = types.StatusIdle
	s.progress = types.LoadingProgress{}
	s.passID = ""
	s.stateMu.Unlock()

	if s.deps.Players != nil {
		if err := s.deps.Players.Invalidate(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
			logging.FromContext(ctx).WithError(err).Warn("Failed to invalidate player cache")
		}
	}
	logging.FromContext(ctx).Info("Arcade service reset")
}

// Close cancels any running pass and releases the worker pool
func (s *ArcadeService) Close() {
	s.cancelRunning()
	s.passMu.Lock()
	defer s.passMu.Unlock()
	s.streamer.Stop()
}

func (s *ArcadeService) cancelRunning() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
