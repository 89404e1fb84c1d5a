package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/cartridge-gg/arcade-sub001/internal/circuitbreaker"
	"github.com/cartridge-gg/arcade-sub001/internal/config"
	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/retry"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics
const maxErrorBody = 512

// Request selects one page of one project's dataset
type Request struct {
	Project   string
	Kind      types.SourceKind
	Limit     int
	Offset    int
	Since     int64 // activity window start, epoch ms
	Summaries bool  // activity pre-aggregated into sessions by the indexer
}

// Fetcher returns one page of raw rows
type Fetcher interface {
	FetchPage(ctx context.Context, req Request) (Payload, error)
}

// IndexerClient queries the per-project SQL endpoint of the indexer
type IndexerClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breakers   *circuitbreaker.Manager
	retry      *retry.Config
	stats      *retry.StatsTracker
}

// NewIndexerClient creates a client from the sources configuration
func NewIndexerClient(cfg config.SourcesConfig) *IndexerClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &IndexerClient{
		baseURL:    cfg.IndexerURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		breakers:   circuitbreaker.NewManager(nil),
		retry:      retry.DefaultConfig(),
		stats:      retry.NewStatsTracker(),
	}
}

// SetRetryConfig replaces the retry policy
func (c *IndexerClient) SetRetryConfig(cfg *retry.Config) {
	c.retry = cfg
}

// Breakers exposes the per-project circuit breakers
func (c *IndexerClient) Breakers() *circuitbreaker.Manager {
	return c.breakers
}

// RetryStats returns the retry counters of every request so far
func (c *IndexerClient) RetryStats() retry.Stats {
	return c.stats.Stats()
}

// Endpoint returns the SQL endpoint of a project
func (c *IndexerClient) Endpoint(project string) string {
	return fmt.Sprintf("%s/%s/sql", c.baseURL, url.PathEscape(project))
}

// FetchPage renders the query of req and runs it
func (c *IndexerClient) FetchPage(ctx context.Context, req Request) (Payload, error) {
	query, err := BuildQuery(req)
	if err != nil {
		return Payload{}, errors.NewInvalidParameterError("kind", err.Error())
	}
	return c.Query(ctx, req.Project, query)
}

// Query runs one SQL statement against a project, retrying transient
// failures behind the project's circuit breaker
func (c *IndexerClient) Query(ctx context.Context, project, query string) (Payload, error) {
	endpoint := c.Endpoint(project)
	breaker := c.breakers.Get(project)
	logger := logging.FromContext(ctx).WithField("project", project)

	var payload Payload
	result := retry.WithExponentialBackoff(logging.WithLogger(ctx, logger), c.retry, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return breaker.Execute(ctx, func(ctx context.Context) error {
			p, err := c.do(ctx, project, endpoint, query)
			if err != nil {
				return err
			}
			payload = p
			return nil
		})
	})
	c.stats.Record(result)

	if result.Success {
		return payload, nil
	}
	if errors.HasCode(result.LastError, errors.CodeSourceRejected) {
		return Payload{}, result.LastError
	}
	return Payload{}, errors.NewSourceUnavailableError(project, endpoint, result.LastError)
}

func (c *IndexerClient) do(ctx context.Context, project, endpoint, query string) (Payload, error) {
	reqURL := endpoint + "?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Payload{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Payload{}, errors.NewSourceUnavailableError(project, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, errors.NewSourceUnavailableError(project, endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return Payload{}, errors.NewProviderRateLimitError(project)
	case resp.StatusCode >= 500:
		return Payload{}, errors.NewSourceUnavailableError(project, endpoint,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)))
	default:
		return Payload{}, errors.NewSourceRejectedError(project, resp.StatusCode, truncate(body))
	}

	payload, err := DecodePayload(body)
	if err != nil {
		return Payload{}, errors.NewSourceRejectedError(project, resp.StatusCode, err.Error())
	}
	return payload, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
