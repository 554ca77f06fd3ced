package mediawiki

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient creates a client backed by a mock API server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := &Config{
		APIURL:    server.URL,
		UserAgent: "TestClient/1.0",
		Timeout:   5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(config, logger)
}

// writeJSON encodes a mock API response.
func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(nil, nil)
	if client.config.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", client.config.APIURL, DefaultAPIURL)
	}
	if client.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.config.Timeout, DefaultTimeout)
	}
	if client.limiter == nil {
		t.Error("limiter should be initialized")
	}
}

func TestRequest_InjectsProtocolParams(t *testing.T) {
	var got url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		writeJSON(t, w, map[string]any{"query": map[string]any{}})
	})

	if _, err := client.request(context.Background(), url.Values{}); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got.Get("format") != "json" {
		t.Errorf("format = %q, want json", got.Get("format"))
	}
	if got.Get("action") != "query" {
		t.Errorf("action = %q, want query", got.Get("action"))
	}
}

func TestRequest_ActionOverride(t *testing.T) {
	var got url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		writeJSON(t, w, map[string]any{"parse": map[string]any{}})
	})

	params := url.Values{}
	params.Set("action", "parse")
	if _, err := client.request(context.Background(), params); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got.Get("action") != "parse" {
		t.Errorf("action = %q, want parse", got.Get("action"))
	}
}

func TestRequest_UserAgent(t *testing.T) {
	var gotUA string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		writeJSON(t, w, map[string]any{})
	})

	if _, err := client.request(context.Background(), url.Values{}); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotUA != "TestClient/1.0" {
		t.Errorf("User-Agent = %q, want TestClient/1.0", gotUA)
	}
}

func TestRequest_Timeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(t, w, map[string]any{})
	})
	client.httpClient.Timeout = 20 * time.Millisecond

	_, err := client.request(context.Background(), url.Values{})
	var timeoutErr *HTTPTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected HTTPTimeoutError, got %v", err)
	}
}

func TestRequest_ErrorPayloadPassedThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"error": map[string]any{"code": "badvalue", "info": "Unrecognized value"},
		})
	})

	// The transport layer reports API errors as JSON, not as errors;
	// classification happens in the callers via checkAPIError.
	resp, err := client.request(context.Background(), url.Values{})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if getMap(resp["error"]) == nil {
		t.Fatal("expected error payload to be passed through")
	}
}

func TestRequest_NonOKStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	if _, err := client.request(context.Background(), url.Values{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestRequest_RateLimitSpacing(t *testing.T) {
	var calls []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, time.Now())
		writeJSON(t, w, map[string]any{})
	}))
	t.Cleanup(server.Close)

	config := &Config{
		APIURL:    server.URL,
		UserAgent: "TestClient/1.0",
		Timeout:   5 * time.Second,
		RateLimit: 50 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := NewClient(config, logger)

	for i := 0; i < 2; i++ {
		if _, err := client.request(context.Background(), url.Values{}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < 50*time.Millisecond {
		t.Errorf("calls separated by %v, want at least 50ms", gap)
	}
}

func TestRequest_RateLimitAfterSlowResponse(t *testing.T) {
	// The quiet period is measured from the previous call's completion, so
	// a round trip slower than the rate limit must still leave a full gap
	// before the next request goes out.
	type call struct {
		arrived  time.Time
		finished time.Time
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{arrived: time.Now()}
		time.Sleep(120 * time.Millisecond) // slower than the rate limit
		c.finished = time.Now()
		calls = append(calls, c)
		writeJSON(t, w, map[string]any{})
	}))
	t.Cleanup(server.Close)

	config := &Config{
		APIURL:    server.URL,
		UserAgent: "TestClient/1.0",
		Timeout:   5 * time.Second,
		RateLimit: 80 * time.Millisecond,
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := NewClient(config, logger)

	for i := 0; i < 2; i++ {
		if _, err := client.request(context.Background(), url.Values{}); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if gap := calls[1].arrived.Sub(calls[0].finished); gap < 80*time.Millisecond {
		t.Errorf("second request sent %v after the first completed, want at least 80ms", gap)
	}
}

func TestSearch_Memoized(t *testing.T) {
	var requests atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeJSON(t, w, map[string]any{
			"query": map[string]any{
				"search": []any{map[string]any{"title": "Warp drive"}},
			},
		})
	})

	ctx := context.Background()
	first, err := client.Search(ctx, "warp", 10)
	if err != nil {
		t.Fatalf("first search failed: %v", err)
	}
	second, err := client.Search(ctx, "warp", 10)
	if err != nil {
		t.Fatalf("second search failed: %v", err)
	}

	if n := requests.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("memoized result mismatch: %v vs %v", first, second)
	}

	// A different argument tuple is a different cache key.
	if _, err := client.Search(ctx, "warp", 20); err != nil {
		t.Fatalf("third search failed: %v", err)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("network calls = %d, want 2", n)
	}
}

func TestGetHelpers(t *testing.T) {
	if getString("x") != "x" || getString(nil) != "" || getString(42.0) != "" {
		t.Error("getString misbehaved")
	}
	if getInt(float64(7)) != 7 || getInt("7") != 0 || getInt(nil) != 0 {
		t.Error("getInt misbehaved")
	}
	if getMap(map[string]any{"a": 1}) == nil || getMap("no") != nil {
		t.Error("getMap misbehaved")
	}
	if len(getSlice([]any{1, 2})) != 2 || getSlice(nil) != nil {
		t.Error("getSlice misbehaved")
	}
	props := toStringMap(map[string]any{"disambiguation": "", "n": 1.0})
	if props["disambiguation"] != "" || props["n"] != "1" {
		t.Errorf("toStringMap = %v", props)
	}
}
