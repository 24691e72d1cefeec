// Package httpapi serves a smartcache.Registry over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shammianand/smartcache"
)

const defaultMaxValueBytes = 1 << 20

// Server contains dependencies for the HTTP handlers.
type Server struct {
	Registry      *smartcache.Registry
	Logger        *log.Logger
	Metrics       http.Handler // optional, mounted at /metrics
	MaxValueBytes int64
}

type statsView struct {
	smartcache.Stats
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

func newStatsView(s smartcache.Stats) statsView {
	return statsView{Stats: s, HitRate: s.HitRate(), Utilization: s.Utilization()}
}

// RegisterRoutes registers all cache routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.Health)
	mux.HandleFunc("GET /caches", s.ListCaches)
	mux.HandleFunc("POST /caches/clear", s.ClearAll)
	mux.HandleFunc("GET /caches/{name}/stats", s.CacheStats)
	mux.HandleFunc("GET /caches/{name}/entries", s.CacheEntries)
	mux.HandleFunc("DELETE /caches/{name}", s.ClearCache)
	mux.HandleFunc("POST /caches/{name}/sweep", s.Sweep)
	mux.HandleFunc("GET /caches/{name}/keys/{key}", s.GetKey)
	mux.HandleFunc("PUT /caches/{name}/keys/{key}", s.PutKey)
	mux.HandleFunc("DELETE /caches/{name}/keys/{key}", s.DeleteKey)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics)
	}
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return RequestLogger(s.logger())(mux)
}

func (s *Server) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}

// Health handles GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListCaches handles GET /caches
func (s *Server) ListCaches(w http.ResponseWriter, r *http.Request) {
	stats := s.Registry.Stats()
	out := make(map[string]statsView, len(stats))
	for name, st := range stats {
		out[name] = newStatsView(st)
	}
	writeJSON(w, http.StatusOK, out)
}

// ClearAll handles POST /caches/clear
func (s *Server) ClearAll(w http.ResponseWriter, r *http.Request) {
	s.Registry.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /caches/{name}/stats
func (s *Server) CacheStats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(c.Stats()))
}

// CacheEntries handles GET /caches/{name}/entries
func (s *Server) CacheEntries(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Entries())
}

// ClearCache handles DELETE /caches/{name}
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	c.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// Sweep handles POST /caches/{name}/sweep
func (s *Server) Sweep(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": c.SweepExpired()})
}

// GetKey handles GET /caches/{name}/keys/{key}
func (s *Server) GetKey(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	value, ok := c.Get(r.PathValue("key"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}

	body, contentType, err := encodeValue(value)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// PutKey handles PUT /caches/{name}/keys/{key}?ttl=<duration>. The cache is
// created with registry defaults on first use, up to the registry's cache
// limit.
func (s *Server) PutKey(w http.ResponseWriter, r *http.Request) {
	var (
		ttl    time.Duration
		hasTTL bool
	)
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid ttl: "+err.Error())
			return
		}
		ttl, hasTTL = d, true
	}

	limit := s.MaxValueBytes
	if limit <= 0 {
		limit = defaultMaxValueBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "value too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	value, err := decodeValue(body, r.Header.Get("Content-Type"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.Registry.GetOrCreate(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	key := r.PathValue("key")
	if hasTTL {
		err = c.SetWithTTL(key, value, ttl)
	} else {
		err = c.Set(key, value)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteKey handles DELETE /caches/{name}/keys/{key}
func (s *Server) DeleteKey(w http.ResponseWriter, r *http.Request) {
	c, ok := s.existing(w, r)
	if !ok {
		return
	}
	if !c.Delete(r.PathValue("key")) {
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) existing(w http.ResponseWriter, r *http.Request) (*smartcache.Cache[any], bool) {
	c, ok := s.Registry.Existing(r.PathValue("name"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, smartcache.ErrCacheNotFound.Error())
	}
	return c, ok
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, smartcache.ErrClosed):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, smartcache.ErrTooManyCaches):
		writeJSONError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, smartcache.ErrInvalidConfig):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger().Error("request failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
