package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/shammianand/smartcache"
)

func newTestServer(t *testing.T) (*httptest.Server, *smartcache.Registry, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	reg, err := smartcache.NewRegistry(smartcache.CacheSettings{MaxSize: 2, DefaultTTL: time.Minute}, smartcache.RegistryOptions{Clock: mock, MaxCaches: 3})
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}
	t.Cleanup(reg.Shutdown)

	srv := &Server{
		Registry:      reg,
		Metrics:       http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "metrics") }),
		MaxValueBytes: 16,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, reg, mock
}

func do(t *testing.T, method, url, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestPutAndGetKey(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/caches/users/keys/alice", "application/json", `{"id":1}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/caches/users/keys/alice", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != contentTypeJSON {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := readBody(t, resp); body != `{"id":1}` {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Errorf("expected a request ID header")
	}
}

func TestGetMissing(t *testing.T) {
	ts, _, _ := newTestServer(t)

	if resp := do(t, http.MethodGet, ts.URL+"/caches/nope/keys/a", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown cache status = %d", resp.StatusCode)
	}
	do(t, http.MethodPut, ts.URL+"/caches/c/keys/a", "text/plain", "x")
	if resp := do(t, http.MethodGet, ts.URL+"/caches/c/keys/b", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown key status = %d", resp.StatusCode)
	}
}

func TestPutWithTTL(t *testing.T) {
	ts, _, mock := newTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/caches/c/keys/a?ttl=5s", "text/plain", "short")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}
	mock.Add(5 * time.Second)
	if resp := do(t, http.MethodGet, ts.URL+"/caches/c/keys/a", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected entry to expire, status = %d", resp.StatusCode)
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		want        int
	}{
		{"bad ttl", "/caches/c/keys/a?ttl=soon", "text/plain", "x", http.StatusBadRequest},
		{"bad json", "/caches/c/keys/a", "application/json", "{", http.StatusBadRequest},
		{"too large", "/caches/c/keys/a", "text/plain", strings.Repeat("x", 17), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPut, ts.URL+tt.url, tt.contentType, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestDeleteKey(t *testing.T) {
	ts, _, _ := newTestServer(t)

	do(t, http.MethodPut, ts.URL+"/caches/c/keys/a", "text/plain", "x")
	if resp := do(t, http.MethodDelete, ts.URL+"/caches/c/keys/a", "", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("first delete status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, ts.URL+"/caches/c/keys/a", "", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
}

func TestStatsAndEntries(t *testing.T) {
	ts, _, _ := newTestServer(t)

	do(t, http.MethodPut, ts.URL+"/caches/c/keys/a", "text/plain", "1")
	do(t, http.MethodPut, ts.URL+"/caches/c/keys/b", "text/plain", "2")
	do(t, http.MethodGet, ts.URL+"/caches/c/keys/a", "", "")
	do(t, http.MethodGet, ts.URL+"/caches/c/keys/zzz", "", "")

	resp := do(t, http.MethodGet, ts.URL+"/caches/c/stats", "", "")
	var stats statsView
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Size != 2 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.HitRate != 0.5 || stats.Utilization != 1 {
		t.Errorf("unexpected derived stats %+v", stats)
	}

	resp = do(t, http.MethodGet, ts.URL+"/caches/c/entries", "", "")
	var entries []smartcache.EntryInfo
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[0].Hits != 1 {
		t.Errorf("unexpected entries %+v", entries)
	}

	resp = do(t, http.MethodGet, ts.URL+"/caches", "", "")
	var all map[string]statsView
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		t.Fatalf("decode caches: %v", err)
	}
	if _, ok := all["c"]; !ok || len(all) != 1 {
		t.Errorf("unexpected cache list %+v", all)
	}
}

func TestClearAndSweep(t *testing.T) {
	ts, reg, mock := newTestServer(t)

	do(t, http.MethodPut, ts.URL+"/caches/c/keys/a?ttl=1s", "text/plain", "1")
	do(t, http.MethodPut, ts.URL+"/caches/c/keys/b", "text/plain", "2")
	mock.Add(time.Second)

	resp := do(t, http.MethodPost, ts.URL+"/caches/c/sweep", "", "")
	if body := readBody(t, resp); strings.TrimSpace(body) != `{"removed":1}` {
		t.Errorf("sweep body = %q", body)
	}

	if resp := do(t, http.MethodDelete, ts.URL+"/caches/c", "", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d", resp.StatusCode)
	}
	c, _ := reg.Existing("c")
	if c.Len() != 0 {
		t.Errorf("expected cache to be empty after clear, got %d", c.Len())
	}

	do(t, http.MethodPut, ts.URL+"/caches/d/keys/a", "text/plain", "1")
	if resp := do(t, http.MethodPost, ts.URL+"/caches/clear", "", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear all status = %d", resp.StatusCode)
	}
	d, _ := reg.Existing("d")
	if d.Len() != 0 {
		t.Errorf("expected every cache to be cleared")
	}
}

func TestClosedRegistry(t *testing.T) {
	ts, reg, _ := newTestServer(t)
	reg.Shutdown()

	resp := do(t, http.MethodPut, ts.URL+"/caches/c/keys/a", "text/plain", "1")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _, _ := newTestServer(t)

	if resp := do(t, http.MethodGet, ts.URL+"/healthz", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	if body := readBody(t, resp); body != "metrics" {
		t.Errorf("metrics body = %q", body)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q", got)
	}
}

func TestPutRespectsCacheLimit(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for _, name := range []string{"a", "b", "c"} {
		if resp := do(t, http.MethodPut, ts.URL+"/caches/"+name+"/keys/k", "text/plain", "1"); resp.StatusCode != http.StatusNoContent {
			t.Fatalf("PUT into %s status = %d", name, resp.StatusCode)
		}
	}
	if resp := do(t, http.MethodPut, ts.URL+"/caches/d/keys/k", "text/plain", "1"); resp.StatusCode != http.StatusInsufficientStorage {
		t.Errorf("PUT beyond cache limit status = %d, want 507", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, ts.URL+"/caches/a/keys/k2", "text/plain", "2"); resp.StatusCode != http.StatusNoContent {
		t.Errorf("PUT into existing cache status = %d", resp.StatusCode)
	}
}
