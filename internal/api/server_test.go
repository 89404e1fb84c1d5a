package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/service"
	"github.com/cartridge-gg/arcade-sub001/internal/source"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

const t0 = int64(1740832260)

// pageFetcher serves one page of fixed rows per (project, kind)
type pageFetcher map[string][]string

func (f pageFetcher) FetchPage(_ context.Context, req source.Request) (source.Payload, error) {
	var raw []json.RawMessage
	if req.Offset == 0 {
		for _, r := range f[req.Project+"/"+string(req.Kind)] {
			raw = append(raw, json.RawMessage(r))
		}
	}
	return source.Payload{Kind: source.PayloadFlat, Rows: raw}, nil
}

// memoryPins is both the pin writer of the API and the pin store of the service
type memoryPins struct {
	mu   sync.Mutex
	pins map[string]types.Pin
}

func (m *memoryPins) Upsert(_ context.Context, pin types.Pin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pins == nil {
		m.pins = make(map[string]types.Pin)
	}
	m.pins[pin.Project+"/"+string(pin.Player)] = pin
	return nil
}

func (m *memoryPins) GetByPlayer(_ context.Context, player types.AddressKey) ([]types.Pin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Pin
	for _, p := range m.pins {
		if p.Player == player {
			out = append(out, p)
		}
	}
	return out, nil
}

func fixture() pageFetcher {
	return pageFetcher{
		"ls/definitions": {
			`{"id":"a1","points":100,"index":0,"title":"First Blood","tasks":[{"id":"t1","total":5}]}`,
			`{"id":"a2","points":50,"index":1,"title":"Collector","tasks":[{"id":"t2","total":3}]}`,
		},
		"ls/progress": {
			fmt.Sprintf(`{"playerId":"0x1","achievementId":"a1","points":100,"taskId":"t1","taskTotal":5,"total":5,"completionTime":%d}`, t0+50),
			`{"playerId":"0x2","achievementId":"a2","points":50,"taskId":"t2","taskTotal":3,"total":1,"completionTime":0}`,
		},
		"ls/activity": {
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"move","executedAt":%d,"transactionHash":"0xa"}`, t0),
			fmt.Sprintf(`{"callerAddress":"0x1","entrypoint":"attack","executedAt":%d,"transactionHash":"0xb"}`, t0+3701),
		},
	}
}

func testConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "localhost",
		Port:              "0",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
		ShutdownTimeout:   time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}
}

// newTestServer returns a server over a service that already ran one pass
func newTestServer(t *testing.T, pins *memoryPins) *Server {
	t.Helper()
	deps := service.Dependencies{Fetcher: fixture()}
	var writer PinWriter
	if pins != nil {
		deps.Pins = pins
		writer = pins
	}
	svc, err := service.NewArcadeService(service.Options{Projects: []string{"ls"}, PageSize: 100, MaxWorkers: 2}, deps)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	_, err = svc.Poll(context.Background())
	require.NoError(t, err)

	return NewServer(testConfig(), svc, writer)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", decode(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRequestIDIsKept(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "3f1c1a5e-7d0b-4b7c-9a57-2c8e6e0f9d11")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "3f1c1a5e-7d0b-4b7c-9a57-2c8e6e0f9d11", rr.Header().Get(RequestIDHeader))
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s, http.MethodGet, "/api/status", "")

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "success", body["status"])
}

func TestAchievements(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("known project", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/api/projects/ls/achievements", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Achievements []service.AchievementView `json:"achievements"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Achievements, 2)
		assert.Equal(t, "a1", body.Achievements[0].ID)
		assert.Equal(t, "50", body.Achievements[0].Rarity.Percentage)
	})

	t.Run("unknown project", func(t *testing.T) {
		rr := do(t, s, http.MethodGet, "/api/projects/nope/achievements", "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestLeaderboardPagination(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		query   string
		players int
		hasMore bool
	}{
		{"default", "", 2, false},
		{"first page", "?limit=1", 1, true},
		{"second page", "?limit=1&offset=1", 1, false},
		{"past the end", "?offset=10", 0, false},
		{"invalid values", "?limit=abc&offset=-3", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/api/leaderboard"+tt.query, "")
			require.Equal(t, http.StatusOK, rr.Code)

			var body struct {
				Players    []types.PlayerStats `json:"players"`
				Pagination Page                `json:"pagination"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Len(t, body.Players, tt.players)
			assert.Equal(t, 2, body.Pagination.Total)
			assert.Equal(t, tt.hasMore, body.Pagination.HasMore)
		})
	}
}

func TestProjectPlayers(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s, http.MethodGet, "/api/projects/ls/players", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Players []types.PlayerStats `json:"players"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Players, 2)
	assert.Equal(t, normalize.MustAddress("0x1"), body.Players[0].Player)
	assert.Equal(t, 1, body.Players[0].Rank)
	assert.Equal(t, uint64(100), body.Players[0].Earnings)
}

func TestProjectPlayerStates(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s, http.MethodGet, "/api/projects/ls/players/0x0001", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Achievements []service.StateView `json:"achievements"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Achievements, 1)
	assert.True(t, body.Achievements[0].Completed)
	assert.Equal(t, "100", body.Achievements[0].Percentage)

	rr = do(t, s, http.MethodGet, "/api/projects/ls/players/0x2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Achievements, 1)
	assert.False(t, body.Achievements[0].Completed)
	assert.Equal(t, "33", body.Achievements[0].Percentage)

	rr = do(t, s, http.MethodGet, "/api/projects/ls/players/not-hex", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDiscovers(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		query    string
		sessions int
		code     int
	}{
		{"all players", "", 2, http.StatusOK},
		{"one player", "?player=0x1", 2, http.StatusOK},
		{"player without calls", "?player=0x2", 0, http.StatusOK},
		{"invalid player", "?player=xyz", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodGet, "/api/projects/ls/discovers"+tt.query, "")
			require.Equal(t, tt.code, rr.Code)
			if tt.code != http.StatusOK {
				return
			}
			var body struct {
				Discovers []types.Session `json:"discovers"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotNil(t, body.Discovers)
			assert.Len(t, body.Discovers, tt.sessions)
		})
	}
}

func TestPlayer(t *testing.T) {
	s := newTestServer(t, nil)

	rr := do(t, s, http.MethodGet, "/api/players/0x1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	global := body["global"].(map[string]interface{})
	assert.Equal(t, float64(1), global["rank"])

	rr = do(t, s, http.MethodGet, "/api/players/0xzz", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decode(t, rr)["error"].(map[string]interface{})
	assert.Equal(t, "INVALID_ADDRESS", errBody["code"])
}

func TestPins(t *testing.T) {
	pins := &memoryPins{}
	s := newTestServer(t, pins)

	// no pin record: completed achievements are shown
	rr := do(t, s, http.MethodGet, "/api/players/0x1/pins/ls", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Pinned []struct {
			Achievement types.Achievement `json:"achievement"`
			Percentage  string            `json:"percentage"`
		} `json:"pinned"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Pinned, 1)
	assert.Equal(t, "a1", body.Pinned[0].Achievement.ID)

	rr = do(t, s, http.MethodPut, "/api/players/0x1/pins/ls", `{"achievementIds":["a1"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, pins.pins, 1)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"too many", `{"achievementIds":["a","b","c","d"]}`, http.StatusBadRequest},
		{"duplicate", `{"achievementIds":["a1","a1"]}`, http.StatusBadRequest},
		{"unknown field", `{"ids":["a1"]}`, http.StatusBadRequest},
		{"not json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPut, "/api/players/0x1/pins/ls", tt.body)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestSetPinsWithoutStorage(t *testing.T) {
	s := newTestServer(t, nil)
	rr := do(t, s, http.MethodPut, "/api/players/0x1/pins/ls", `{"achievementIds":["a1"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRateLimit(t *testing.T) {
	svc, err := service.NewArcadeService(service.Options{}, service.Dependencies{Fetcher: fixture()})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	cfg := testConfig()
	cfg.RequestsPerSecond = 1
	cfg.Burst = 1
	s := NewServer(cfg, svc, nil)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
	rr := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestMapServiceErrorHidesSystemErrors(t *testing.T) {
	status, code, msg, _ := mapServiceError(fmt.Errorf("connection refused to 10.0.0.3"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrCodeInternalError, code)
	assert.NotContains(t, msg, "10.0.0.3")
}
