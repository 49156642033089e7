package uupapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

// newTestClient returns a client against server whose sleeps are recorded, not waited
func newTestClient(t *testing.T, serverURL string, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = serverURL
	cfg.MaxRetries = maxRetries
	cfg.UserAgent = "uupfetch/test"

	c := NewClient(cfg, zap.NewNop())
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

const buildObject = `{"uuid":"%s","title":"Windows 11 Insider Preview %d","build":"2600%d.1","arch":"amd64","created":170000000%d}`

func buildsAsArray() string {
	parts := make([]string, 5)
	for i := range parts {
		parts[i] = fmt.Sprintf(buildObject, fmt.Sprintf("uuid-%d", i), i, i, i)
	}
	return `{"response":{"apiVersion":"1.0","builds":[` + strings.Join(parts, ",") + `]}}`
}

func buildsAsObject() string {
	parts := make([]string, 5)
	for i := range parts {
		id := fmt.Sprintf("uuid-%d", i)
		parts[i] = fmt.Sprintf(`"%s":`+buildObject, id, id, i, i, i)
	}
	return `{"response":{"apiVersion":"1.0","builds":{` + strings.Join(parts, ",") + `}}}`
}

func TestListBuilds_Normalization(t *testing.T) {
	var results [][]domain.BuildSummary

	for _, body := range []string{buildsAsArray(), buildsAsObject()} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/listid.php" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("search") != "Windows 11" || r.URL.Query().Get("sortByDate") != "1" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.Write([]byte(body))
		}))

		c, _ := newTestClient(t, server.URL, 5)
		builds, err := c.ListBuilds(context.Background(), "Windows 11", true)
		server.Close()
		if err != nil {
			t.Fatalf("ListBuilds: %v", err)
		}
		results = append(results, builds)
	}

	if len(results[0]) != 5 {
		t.Fatalf("expected 5 builds, got %d", len(results[0]))
	}
	if !reflect.DeepEqual(results[0], results[1]) {
		t.Errorf("array and object responses differ:\n%+v\n%+v", results[0], results[1])
	}
	if results[0][2].UUID != "uuid-2" || results[0][2].Build != "26002.1" || *results[0][2].Created != 1700000002 {
		t.Errorf("unexpected build %+v", results[0][2])
	}
}

func TestListBuilds_NoSearchParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("expected no query, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"response":{"builds":null}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 1)
	builds, err := c.ListBuilds(context.Background(), "", false)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if builds == nil || len(builds) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", builds)
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
		{64, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := retryDelay(time.Second, tt.attempt, 30*time.Second); got != tt.want {
			t.Errorf("retryDelay(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRetryOnRateLimitWithRetryAfter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "uupfetch/test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if attempts.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"response":{"langs":{"en-us":"English (United States)"}}}`))
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 5)
	langs, err := c.ListLanguages(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("ListLanguages: %v", err)
	}
	if langs["en-us"] != "English (United States)" {
		t.Errorf("unexpected langs %v", langs)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if want := []time.Duration{2 * time.Second, 2 * time.Second}; !reflect.DeepEqual(*delays, want) {
		t.Errorf("delays = %v, want %v", *delays, want)
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "120")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"response":{"editions":["PROFESSIONAL","CORE"]}}`))
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 5)
	if _, err := c.ListEditions(context.Background(), "uuid-1", "en-us"); err != nil {
		t.Fatalf("ListEditions: %v", err)
	}
	if len(*delays) != 1 || (*delays)[0] != 30*time.Second {
		t.Errorf("delays = %v, want [30s]", *delays)
	}
}

func TestBackoffWithoutRetryAfterExhausts(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 5)
	_, err := c.GetManifest(context.Background(), "uuid-1", "", "")

	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected last TransportError 503, got %T %v", err, err)
	}
	if domain.IsRetryable(err) {
		t.Error("exhausted error should be the underlying error, not the retry wrapper")
	}
	if attempts.Load() != 5 {
		t.Errorf("expected 5 attempts, got %d", attempts.Load())
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !reflect.DeepEqual(*delays, want) {
		t.Errorf("delays = %v, want %v", *delays, want)
	}
}

func TestAPIErrorIsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(status)
				w.Write([]byte(`{"response":{"error":"UNSUPPORTED_LANG"}}`))
			}))
			defer server.Close()

			c, delays := newTestClient(t, server.URL, 5)
			_, err := c.ListEditions(context.Background(), "uuid-1", "xx-xx")

			var apiErr *domain.APIError
			if !errors.As(err, &apiErr) || apiErr.Message != "UNSUPPORTED_LANG" {
				t.Fatalf("expected APIError UNSUPPORTED_LANG, got %T %v", err, err)
			}
			if attempts.Load() != 1 || len(*delays) != 0 {
				t.Errorf("API errors must not be retried: attempts=%d delays=%v", attempts.Load(), *delays)
			}
		})
	}
}

func TestOtherStatusFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 5)
	_, err := c.ListLanguages(context.Background(), "uuid-1")

	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound {
		t.Fatalf("expected TransportError 404, got %T %v", err, err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestMalformedJSONRetriedThenReturned(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"response": {`))
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 3)
	_, err := c.ListBuilds(context.Background(), "", false)

	var se *json.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected *json.SyntaxError, got %T %v", err, err)
	}
	if attempts.Load() != 3 || len(*delays) != 2 {
		t.Errorf("attempts=%d delays=%v", attempts.Load(), *delays)
	}
}

func TestNetworkErrorRetriedThenReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	c, delays := newTestClient(t, serverURL, 2)
	_, err := c.ListLanguages(context.Background(), "uuid-1")

	var ue *url.Error
	if !errors.As(err, &ue) {
		t.Fatalf("expected *url.Error, got %T %v", err, err)
	}
	if len(*delays) != 1 || (*delays)[0] != time.Second {
		t.Errorf("delays = %v, want [1s]", *delays)
	}
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.BaseDelay = time.Hour
	c := NewClient(cfg, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.ListBuilds(ctx, "", false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff sleep did not observe context cancellation")
	}
}

func TestGetManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/get.php" || q.Get("id") != "uuid-1" || q.Get("lang") != "en-us" || q.Get("edition") != "PROFESSIONAL" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"response":{
			"updateName":"Windows 11, version 23H2 (22631.2506) amd64",
			"arch":"amd64",
			"build":"22631.2506",
			"files":{
				"core.esd":{"url":"http://cdn/core.esd","size":"3000000000","sha1":"DA39A3EE5E6B4B0D3255BFEF95601890AFD80709"},
				"small.cab":{"url":"http://cdn/small.cab","size":1234},
				"junk.cab":{"url":"http://cdn/junk.cab","size":"n/a","sha1":null},
				"nourl.cab":{"size":5}
			}}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 1)
	m, err := c.GetManifest(context.Background(), "uuid-1", "en-us", "PROFESSIONAL")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}

	if m.Meta.Build != "22631.2506" || m.Meta.Arch != "amd64" || !strings.HasPrefix(m.Meta.UpdateName, "Windows 11") {
		t.Errorf("unexpected meta %+v", m.Meta)
	}
	if len(m.Files) != 4 {
		t.Fatalf("expected 4 files, got %d", len(m.Files))
	}

	core := m.Files["core.esd"]
	if core.Size == nil || *core.Size != 3000000000 {
		t.Errorf("string size should parse, got %v", core.Size)
	}
	if core.SHA1 != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("sha1 should be normalized to lowercase, got %s", core.SHA1)
	}
	if small := m.Files["small.cab"]; small.Size == nil || *small.Size != 1234 || small.HasChecksum() {
		t.Errorf("unexpected small.cab %+v", small)
	}
	if junk := m.Files["junk.cab"]; junk.Size != nil || junk.SHA1 != "" {
		t.Errorf("junk size should be unknown, got %+v", junk)
	}
	if nourl := m.Files["nourl.cab"]; nourl.URL != "" || nourl.Filename != "nourl.cab" {
		t.Errorf("unexpected nourl.cab %+v", nourl)
	}
}

func TestListLanguagesAndEditionsFallbackFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/listlangs.php":
			w.Write([]byte(`{"response":{"langList":["de-de"],"langFancyNames":{"de-de":"German"}}}`))
		case "/listeditions.php":
			w.Write([]byte(`{"response":{"editionList":["CORE"],"editionFancyNames":{"CORE":"Home"}}}`))
		}
	}))
	defer server.Close()

	c, _ := newTestClient(t, server.URL, 1)
	langs, err := c.ListLanguages(context.Background(), "uuid-1")
	if err != nil || langs["de-de"] != "German" {
		t.Errorf("ListLanguages = %v, %v", langs, err)
	}
	editions, err := c.ListEditions(context.Background(), "uuid-1", "de-de")
	if err != nil || len(editions) != 1 || editions[0] != "CORE" {
		t.Errorf("ListEditions = %v, %v", editions, err)
	}
}

func TestEmptyPHPArraysDecodeAsEmptyMaps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get.php":
			w.Write([]byte(`{"response":{"updateName":"Empty","arch":"amd64","build":"1.0","files":[]}}`))
		case "/listlangs.php":
			w.Write([]byte(`{"response":{"langs":[],"langFancyNames":[]}}`))
		}
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 5)

	m, err := c.GetManifest(context.Background(), "uuid-1", "", "")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if m.Files == nil || len(m.Files) != 0 || m.Meta.UpdateName != "Empty" {
		t.Errorf("unexpected manifest %+v", m)
	}

	langs, err := c.ListLanguages(context.Background(), "uuid-1")
	if err != nil {
		t.Fatalf("ListLanguages: %v", err)
	}
	if langs == nil || len(langs) != 0 {
		t.Errorf("langs = %v, want empty map", langs)
	}
	if len(*delays) != 0 {
		t.Errorf("no retries expected, got delays %v", *delays)
	}
}

func TestWrongShapeIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Write([]byte(`{"response":{"files":["core.esd"]}}`))
	}))
	defer server.Close()

	c, delays := newTestClient(t, server.URL, 5)
	_, err := c.GetManifest(context.Background(), "uuid-1", "", "")

	var te *json.UnmarshalTypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected *json.UnmarshalTypeError, got %T %v", err, err)
	}
	if domain.IsRetryable(err) {
		t.Error("shape errors must not be wrapped as retryable")
	}
	if attempts.Load() != 1 || len(*delays) != 0 {
		t.Errorf("attempts=%d delays=%v", attempts.Load(), *delays)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	tests := []struct {
		name        string
		maxRetries  int
		wantRetries int
	}{
		{"zero uses default", 0, 5},
		{"negative means one attempt", -3, 1},
		{"explicit", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BaseURL: "http://api.invalid", MaxRetries: tt.maxRetries}
			c := NewClient(cfg, nil)

			if c.config.MaxRetries != tt.wantRetries {
				t.Errorf("MaxRetries = %d, want %d", c.config.MaxRetries, tt.wantRetries)
			}
			if c.config.MaxDelay != 30*time.Second || c.config.Timeout != 60*time.Second {
				t.Errorf("unexpected defaults %+v", c.config)
			}
			if cfg.MaxRetries != tt.maxRetries || cfg.Timeout != 0 || cfg.UserAgent != "" {
				t.Errorf("caller config was modified: %+v", cfg)
			}
		})
	}
}
