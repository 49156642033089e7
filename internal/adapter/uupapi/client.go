package uupapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/metrics"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// DefaultBaseURL is the public UUP dump JSON API
const DefaultBaseURL = "https://api.uupdump.net"

// Config contains client configuration
type Config struct {
	BaseURL string

	// Timeout applies to each request. Default: 60s
	Timeout time.Duration

	// MaxRetries is the total number of attempts per call. Default: 5;
	// negative values mean a single attempt
	MaxRetries int

	// BaseDelay is the initial backoff. Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps both computed backoff and Retry-After. Default: 30s
	MaxDelay time.Duration

	UserAgent string
}

// DefaultConfig returns default client configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    60 * time.Second,
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		UserAgent:  "uupfetch/dev",
	}
}

// Client is a read-only UUP dump API client with retry and backoff
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger

	// sleep waits between attempts; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Ensure Client implements port.MetadataClient
var _ port.MetadataClient = (*Client)(nil)

// NewClient creates a new API client
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	} else {
		c := *cfg
		cfg = &c
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger: logger,
		sleep:  sleepContext,
	}
}

// ListBuilds returns known builds. The API may send builds as an array or as
// an object keyed by UUID; both yield the same list.
func (c *Client) ListBuilds(ctx context.Context, search string, sortByDate bool) ([]domain.BuildSummary, error) {
	params := url.Values{}
	if search != "" {
		params.Set("search", search)
	}
	if sortByDate {
		params.Set("sortByDate", "1")
	}

	var resp listBuildsResponse
	if err := c.getJSON(ctx, endpointListBuilds, params, &resp); err != nil {
		return nil, err
	}

	builds, err := normalizeBuilds(resp.Response.Builds)
	if err != nil {
		return nil, fmt.Errorf("failed to decode builds: %w", err)
	}
	return builds, nil
}

// ListLanguages returns language code to display name
func (c *Client) ListLanguages(ctx context.Context, updateID string) (map[string]string, error) {
	var resp listLanguagesResponse
	if err := c.getJSON(ctx, endpointListLanguages, url.Values{"id": {updateID}}, &resp); err != nil {
		return nil, err
	}

	langs := map[string]string(resp.Response.Langs)
	if len(langs) == 0 {
		langs = resp.Response.LangFancyNames
	}
	if langs == nil {
		langs = map[string]string{}
	}
	return langs, nil
}

// ListEditions returns edition names for an update and language
func (c *Client) ListEditions(ctx context.Context, updateID, lang string) ([]string, error) {
	var resp listEditionsResponse
	if err := c.getJSON(ctx, endpointListEditions, url.Values{"id": {updateID}, "lang": {lang}}, &resp); err != nil {
		return nil, err
	}

	editions := resp.Response.Editions
	if editions == nil {
		editions = resp.Response.EditionList
	}
	if editions == nil {
		editions = []string{}
	}
	return editions, nil
}

// GetManifest returns the file manifest for an update
func (c *Client) GetManifest(ctx context.Context, updateID, lang, edition string) (*domain.Manifest, error) {
	params := url.Values{"id": {updateID}}
	if lang != "" {
		params.Set("lang", lang)
	}
	if edition != "" {
		params.Set("edition", edition)
	}

	var resp getFilesResponse
	if err := c.getJSON(ctx, endpointGetFiles, params, &resp); err != nil {
		return nil, err
	}

	m := &domain.Manifest{
		Meta: domain.ManifestMeta{
			UpdateName: resp.Response.UpdateName,
			Build:      string(resp.Response.Build),
			Arch:       string(resp.Response.Arch),
		},
		Files: make(map[string]domain.FileDescriptor, len(resp.Response.Files)),
	}
	for name, f := range resp.Response.Files {
		m.Files[name] = f.toDomain(name)
	}
	return m, nil
}

// buildURL builds the full URL for an endpoint
func (c *Client) buildURL(endpoint string, params url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// getJSON runs the bounded retry loop around doAPIRequest. Every attempt
// either succeeds, fails terminally, or returns a *domain.RetryableError.
// Exhausting the attempts returns the last underlying error unchanged.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	urlStr := c.buildURL(endpoint, params)
	label := strings.TrimSuffix(endpoint, ".php")

	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		err := c.doAPIRequest(ctx, urlStr, out)
		if err == nil {
			metrics.APIRequests.WithLabelValues(label, "ok").Inc()
			return nil
		}

		var re *domain.RetryableError
		if !errors.As(err, &re) {
			metrics.APIRequests.WithLabelValues(label, "error").Inc()
			return err
		}
		metrics.APIRequests.WithLabelValues(label, "retryable").Inc()
		lastErr = re.Err

		if attempt == c.config.MaxRetries-1 {
			break
		}

		delay := re.RetryAfter
		if delay <= 0 {
			delay = retryDelay(c.config.BaseDelay, attempt, c.config.MaxDelay)
		} else if delay > c.config.MaxDelay {
			delay = c.config.MaxDelay
		}

		metrics.APIRetries.WithLabelValues(label, retryReason(re.Err)).Inc()
		c.logger.Warn("metadata request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.config.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(re.Err))

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// doAPIRequest performs one attempt and decodes the body into out
func (c *Client) doAPIRequest(ctx context.Context, urlStr string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.NewRetryableError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		io.Copy(io.Discard, resp.Body)
		return domain.NewRetryableError(statusError(urlStr, resp), parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.NewRetryableError(err, 0)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(urlStr, resp)
		}
		return decodeError(err)
	}
	if apiErr := env.apiError(); apiErr != nil {
		return apiErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(urlStr, resp)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return decodeError(err)
	}
	return nil
}

// decodeError retries truncated or malformed bodies. A well-formed body of
// the wrong shape fails the same way on every attempt.
func decodeError(err error) error {
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return domain.NewRetryableError(err, 0)
	}
	return fmt.Errorf("failed to decode response: %w", err)
}

func statusError(urlStr string, resp *http.Response) *domain.TransportError {
	return &domain.TransportError{URL: urlStr, StatusCode: resp.StatusCode, Status: resp.Status}
}

// retryDelay returns min(base * 2^attempt, max)
func retryDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 32 {
		return max
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// parseRetryAfter reads a Retry-After value in seconds; 0 when absent or invalid
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	if secs > 86400 {
		secs = 86400
	}
	return time.Duration(secs * float64(time.Second))
}

func retryReason(err error) string {
	var te *domain.TransportError
	if errors.As(err, &te) {
		if te.StatusCode == http.StatusTooManyRequests {
			return "rate_limited"
		}
		return "unavailable"
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return "malformed_json"
	}
	return "network"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
