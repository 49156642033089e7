package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/uupfetch/internal/domain"
	"github.com/vertextoedge/uupfetch/internal/port"
)

// Config contains download transport configuration
type Config struct {
	// HeaderTimeout bounds waiting for response headers, not the transfer. Default: 120s
	HeaderTimeout time.Duration

	// BufferSizeKB sets transport read/write buffers. Default: 1024
	BufferSizeKB int

	// MaxConnsPerHost limits parallel connections to one CDN host. Default: 16
	MaxConnsPerHost int

	UserAgent string
}

// DefaultConfig returns default transport configuration
func DefaultConfig() *Config {
	return &Config{
		HeaderTimeout:   120 * time.Second,
		BufferSizeKB:    1024,
		MaxConnsPerHost: 16,
		UserAgent:       "uupfetch/dev",
	}
}

// Source streams remote files over HTTP with optional byte ranges
type Source struct {
	client    *http.Client
	userAgent string
}

// Ensure Source implements port.Source
var _ port.Source = (*Source)(nil)

// New creates a Source
func New(cfg *Config) *Source {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = defaults.HeaderTimeout
	}
	if cfg.BufferSizeKB <= 0 {
		cfg.BufferSizeKB = defaults.BufferSizeKB
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaults.MaxConnsPerHost
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	bufferSize := cfg.BufferSizeKB * 1024

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pooling
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     120 * time.Second,

		WriteBufferSize: bufferSize,
		ReadBufferSize:  bufferSize,

		ForceAttemptHTTP2: true,

		// Payloads are already compressed cabinets and ESDs
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: cfg.HeaderTimeout,
	}

	return &Source{
		client: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads
		},
		userAgent: cfg.UserAgent,
	}
}

// Open starts streaming url from offset. The returned Offset is where the body
// actually begins: a server that ignores the range answers 200 and the body
// starts at 0. A 416 for a non-zero offset, or a 206 whose Content-Range does
// not start at offset, is retried once as a full request.
func (s *Source) Open(ctx context.Context, url string, offset int64) (*port.SourceResponse, error) {
	if offset < 0 {
		offset = 0
	}

	resp, err := s.do(ctx, url, offset)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		drain(resp)
		offset = 0
		resp, err = s.do(ctx, url, 0)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode == http.StatusPartialContent && offset > 0 {
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
			drain(resp)
			offset = 0
			resp, err = s.do(ctx, url, 0)
			if err != nil {
				return nil, err
			}
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &port.SourceResponse{Body: resp.Body, Offset: 0, ContentLength: resp.ContentLength}, nil
	case http.StatusPartialContent:
		return &port.SourceResponse{Body: resp.Body, Offset: offset, ContentLength: resp.ContentLength}, nil
	default:
		drain(resp)
		return nil, &domain.TransportError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// do performs a GET with a Range header when rangeStart > 0
func (s *Source) do(ctx context.Context, url string, rangeStart int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	if rangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// contentRangeStart returns N from "bytes N-M/T"
func contentRangeStart(v string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}
