package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

const t0 = int64(1740832260) // 2025-03-01 12:31:00 UTC, epoch seconds

// stubFetcher answers every (project, kind) with one page of fixed rows
type stubFetcher struct {
	mu      sync.Mutex
	pages   map[string][]string
	failing map[string]bool
	block   bool
	calls   int
}

func pageKey(project string, kind types.SourceKind) string {
	return project + "/" + string(kind)
}

func (f *stubFetcher) FetchPage(ctx context.Context, req source.Request) (source.Payload, error) {
	f.mu.Lock()
	f.calls++
	rows := f.pages[pageKey(req.Project, req.Kind)]
	fail := f.failing[req.Project]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return source.Payload{}, ctx.Err()
	}
	if fail {
		return source.Payload{}, errors.NewSourceUnavailableError(req.Project, "stub", fmt.Errorf("down"))
	}
	if req.Offset > 0 {
		rows = nil
	}
	raw := make([]json.RawMessage, 0, len(rows))
	for _, r := range rows {
		raw = append(raw, json.RawMessage(r))
	}
	return source.Payload{Kind: source.PayloadFlat, Rows: raw}, nil
}

type recordingArchive struct {
	mu     sync.Mutex
	events map[string]int
}

func (a *recordingArchive) BatchInsert(_ context.Context, project string, events []types.CallEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.events == nil {
		a.events = make(map[string]int)
	}
	a.events[project] += len(events)
	return nil
}

type staticPins []types.Pin

func (p staticPins) GetByPlayer(_ context.Context, player types.AddressKey) ([]types.Pin, error) {
	var out []types.Pin
	for _, pin := range p {
		if pin.Player == player {
			out = append(out, pin)
		}
	}
	return out, nil
}

func lootSurvivorPages() map[string][]string {
	return map[string][]string{
		pageKey("ls", types.KindDefinitions): {
			`{"id":"a1","points":100,"index":0,"title":"First Blood","tasks":[{"id":"t1","total":5}]}`,
			`{"id":"a2","points":50,"index":1,"title":"Collector","tasks":[{"id":"t2","total":3}]}`,
		},
		pageKey("ls", types.KindProgress): {
			fmt.Sprintf(`{"playerId":"0x1","achievementId":"a1","points":100,"taskId":"t1","taskTotal":5,"total":5,"completionTime":%d}`, t0+50),
			`{"playerId":"0x2","achievementId":"a2","points":50,"taskId":"t2","taskTotal":3,"total":1,"completionTime":0}`,
			`{"playerId":"bogus","achievementId":"a2","taskId":"t2"}`,
		},
		pageKey("ls", types.KindActivity): {
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"move","executedAt":%d,"transactionHash":"0xa"}`, t0),
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"attack","executedAt":%d,"transactionHash":"0xb"}`, t0+100),
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"move","executedAt":%d,"transactionHash":"0xc"}`, t0+3701),
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"request_random","executedAt":%d,"transactionHash":"0xd"}`, t0+3702),
		},
	}
}

func newTestService(t *testing.T, fetcher source.Fetcher, deps Dependencies, projects ...string) *ArcadeService {
	t.Helper()
	deps.Fetcher = fetcher
	svc, err := NewArcadeService(Options{
		Projects:   projects,
		PageSize:   100,
		MaxWorkers: 4,
	}, deps)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func TestNewArcadeServiceRequiresFetcher(t *testing.T) {
	_, err := NewArcadeService(Options{}, Dependencies{})
	require.Error(t, err)
}

func TestPollBuildsView(t *testing.T) {
	archive := &recordingArchive{}
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{Archive: archive}, "ls")

	assert.Equal(t, types.StatusIdle, svc.View().Status)

	view, err := svc.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Same(t, view, svc.View())

	assert.Equal(t, types.StatusSuccess, view.Status)
	assert.Equal(t, types.LoadingProgress{Completed: 3, Total: 3}, view.Progress)
	assert.Equal(t, 1, view.Dropped)
	assert.NotEmpty(t, view.PassID)

	require.Len(t, view.Achievements["ls"], 2)
	assert.Equal(t, "a1", view.Achievements["ls"][0].ID)

	p1 := normalize.MustAddress("0x1")
	p2 := normalize.MustAddress("0x2")

	players := view.Leaderboard("ls")
	require.Len(t, players, 2)
	assert.Equal(t, p1, players[0].Player)
	assert.Equal(t, uint64(100), players[0].Earnings)
	assert.Equal(t, 1, players[0].CompletedCount)
	assert.Equal(t, 1, players[0].Rank)
	assert.Equal(t, p2, players[1].Player)
	assert.Equal(t, 2, players[1].Rank)
	assert.Equal(t, players[0].Player, view.Leaderboard("")[0].Player)

	sessions := view.Sessions("ls", p1)
	require.Len(t, sessions, 2)
	assert.Equal(t, []string{"move"}, sessions[0].Actions)
	assert.Equal(t, []string{"move", "attack"}, sessions[1].Actions)
	require.Len(t, sessions[1].Achievements, 1)
	assert.Equal(t, "First Blood", sessions[1].Achievements[0].Title)
	assert.Empty(t, sessions[0].Achievements)

	status := view.Sources["ls"]
	assert.Equal(t, types.StatusSuccess, status.Status)
	assert.Equal(t, 1, status.Dropped)
	assert.Equal(t, 2+2+4, status.Rows)

	assert.Equal(t, 4, archive.events["ls"])

	rarity := view.ProjectAchievements("ls")
	require.Len(t, rarity, 2)
	assert.Equal(t, "50", rarity[0].Rarity.Percentage)
	assert.Equal(t, "0", rarity[1].Rarity.Percentage)
}

func TestPollIsIdempotent(t *testing.T) {
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{}, "ls")

	first, err := svc.Poll(context.Background())
	require.NoError(t, err)
	second, err := svc.Poll(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.PassID, second.PassID)
	assert.Equal(t, first.Players, second.Players)
	assert.Equal(t, first.Globals, second.Globals)
	assert.Equal(t, first.Discovers, second.Discovers)
}

func TestPollFailedSourceMarksError(t *testing.T) {
	fetcher := &stubFetcher{pages: lootSurvivorPages(), failing: map[string]bool{"down": true}}
	svc := newTestService(t, fetcher, Dependencies{}, "ls", "down")

	view, err := svc.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusError, view.Status)
	assert.Equal(t, types.StatusError, view.Sources["down"].Status)
	assert.Contains(t, view.Sources["down"].Error, "down")
	assert.Equal(t, types.StatusSuccess, view.Sources["ls"].Status)
	assert.Len(t, view.Leaderboard("ls"), 2)
	assert.Equal(t, types.StatusError, svc.Status().Status)

	stats := svc.Status().Passes
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 3, stats.Last.Failed)
}

func TestPollWithoutProjects(t *testing.T) {
	svc := newTestService(t, &stubFetcher{}, Dependencies{})

	view, err := svc.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, view.Status)
	assert.Empty(t, view.Globals)
	assert.Empty(t, view.Players)
}

func TestPollCancelledPublishesNothing(t *testing.T) {
	svc := newTestService(t, &stubFetcher{block: true}, Dependencies{}, "ls")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	view, err := svc.Poll(ctx)
	assert.Nil(t, view)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.StatusIdle, svc.View().Status)
	assert.Equal(t, int64(1), svc.Status().Passes.Cancelled)
}

func TestNewPollCancelsRunningPass(t *testing.T) {
	fetcher := &stubFetcher{block: true}
	svc := newTestService(t, fetcher, Dependencies{}, "ls")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Poll(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return svc.Status().Status == types.StatusLoading
	}, 2*time.Second, 5*time.Millisecond)

	fetcher.mu.Lock()
	fetcher.block = false
	fetcher.pages = lootSurvivorPages()
	fetcher.mu.Unlock()

	view, err := svc.Poll(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, types.StatusSuccess, view.Status)
}

func TestProgressUpdates(t *testing.T) {
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{}, "ls")

	_, err := svc.Poll(context.Background())
	require.NoError(t, err)

	var last types.LoadingProgress
	count := 0
	for {
		select {
		case p := <-svc.Progress():
			last = p
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 5, count)
	assert.True(t, last.Done())
	assert.True(t, last.Final())
	assert.Equal(t, types.StatusSuccess, last.Status)
	assert.Equal(t, 3, last.Total)
}

func TestProgressFinalUpdateCarriesError(t *testing.T) {
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages(), failing: map[string]bool{"ls": true}}, Dependencies{}, "ls")

	_, err := svc.Poll(context.Background())
	require.NoError(t, err)

	var last types.LoadingProgress
	for drained := false; !drained; {
		select {
		case p := <-svc.Progress():
			last = p
		default:
			drained = true
		}
	}
	assert.True(t, last.Final())
	assert.Equal(t, types.StatusError, last.Status)
}

func TestPlayer(t *testing.T) {
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{}, "ls")
	_, err := svc.Poll(context.Background())
	require.NoError(t, err)

	summary, err := svc.Player(context.Background(), "0x0001")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), summary.Global.Earnings)
	assert.Equal(t, 1, summary.Projects["ls"].Rank)

	unknown, err := svc.Player(context.Background(), "0xdead")
	require.NoError(t, err)
	assert.Zero(t, unknown.Global.Rank)

	_, err = svc.Player(context.Background(), "not-hex")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidAddress))
}

func TestPins(t *testing.T) {
	p1 := normalize.MustAddress("0x1")
	pins := staticPins{{Project: "ls", Player: p1, AchievementIDs: []string{"a2", "a1"}}}
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{Pins: pins}, "ls")
	_, err := svc.Poll(context.Background())
	require.NoError(t, err)

	shown, err := svc.Pins(context.Background(), "0x1", "ls")
	require.NoError(t, err)
	require.Len(t, shown, 1)
	assert.Equal(t, "a1", shown[0].Achievement.ID)
	assert.Equal(t, (t0+50)*1000, shown[0].CompletedAt)

	_, err = svc.Pins(context.Background(), "0x1", "")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParameter))
}

func TestReset(t *testing.T) {
	svc := newTestService(t, &stubFetcher{pages: lootSurvivorPages()}, Dependencies{}, "ls")
	_, err := svc.Poll(context.Background())
	require.NoError(t, err)

	svc.Reset(context.Background())

	assert.Equal(t, types.StatusIdle, svc.View().Status)
	assert.Empty(t, svc.View().Globals)
	assert.Empty(t, svc.Status().Sources)
	assert.Zero(t, svc.events.Len("ls"))
}
