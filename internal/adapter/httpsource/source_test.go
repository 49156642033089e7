package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/vertextoedge/uupfetch/internal/domain"
)

const payload = "0123456789abcdefghij"

// rangeServer serves payload and honours "bytes=N-" ranges
func rangeServer(t *testing.T, honourRange bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "uupfetch/test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		rng := r.Header.Get("Range")
		if rng == "" || !honourRange {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			w.Write([]byte(payload))
			return
		}
		start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
		if err != nil || start >= len(payload) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(payload)-1, len(payload)))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-start))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload[start:]))
	}))
}

func newTestSource() *Source {
	cfg := DefaultConfig()
	cfg.UserAgent = "uupfetch/test"
	return New(cfg)
}

func readAll(t *testing.T, body io.ReadCloser) string {
	t.Helper()
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestSource_Open(t *testing.T) {
	tests := []struct {
		name        string
		honourRange bool
		offset      int64
		wantOffset  int64
		wantBody    string
	}{
		{"full request", true, 0, 0, payload},
		{"range honoured", true, 5, 5, payload[5:]},
		{"range ignored", false, 5, 0, payload},
		{"range not satisfiable", true, int64(len(payload) + 3), 0, payload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := rangeServer(t, tt.honourRange)
			defer server.Close()

			resp, err := newTestSource().Open(context.Background(), server.URL+"/f.cab", tt.offset)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if resp.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", resp.Offset, tt.wantOffset)
			}
			if resp.ContentLength != int64(len(tt.wantBody)) {
				t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(tt.wantBody))
			}
			if got := readAll(t, resp.Body); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestSource_OpenErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	_, err := newTestSource().Open(context.Background(), server.URL, 0)

	var te *domain.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusGone {
		t.Fatalf("expected TransportError 410, got %v", err)
	}
}

func TestSource_OpenCancelled(t *testing.T) {
	server := rangeServer(t, true)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestSource().Open(ctx, server.URL, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSource_OpenMismatchedContentRange(t *testing.T) {
	tests := []struct {
		name         string
		contentRange string
	}{
		{"starts at zero", fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload))},
		{"missing", ""},
		{"malformed", "bytes */20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ranges []string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				rng := r.Header.Get("Range")
				ranges = append(ranges, rng)
				if rng == "" {
					w.Write([]byte(payload))
					return
				}
				// Partial status but the whole file as the body
				if tt.contentRange != "" {
					w.Header().Set("Content-Range", tt.contentRange)
				}
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte(payload))
			}))
			defer server.Close()

			resp, err := newTestSource().Open(context.Background(), server.URL, 5)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if resp.Offset != 0 {
				t.Errorf("Offset = %d, want 0", resp.Offset)
			}
			if got := readAll(t, resp.Body); got != payload {
				t.Errorf("body = %q, want %q", got, payload)
			}
			if len(ranges) != 2 || ranges[0] != "bytes=5-" || ranges[1] != "" {
				t.Errorf("requests = %q, want a ranged request then a full one", ranges)
			}
		})
	}
}

func TestContentRangeStart(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"bytes 5-19/20", 5, true},
		{"bytes 0-19/*", 0, true},
		{"bytes */20", 0, false},
		{"items 5-19/20", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := contentRangeStart(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("contentRangeStart(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
