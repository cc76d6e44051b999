package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-ticketing/internal/config"
)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// bodyRecorder forwards the response to the client and keeps a copy of
// the first limit bytes (all of it when limit <= 0).
type bodyRecorder struct {
	http.ResponseWriter
	status  int
	buf     bytes.Buffer
	written int64
	limit   int64
}

func (r *bodyRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if r.limit <= 0 {
		r.buf.Write(b)
	} else if room := r.limit - int64(r.buf.Len()); room > 0 {
		r.buf.Write(b[:min(int64(len(b)), room)])
	}
	r.written += int64(len(b))
	return r.ResponseWriter.Write(b)
}

// complete reports whether the whole body was captured.
func (r *bodyRecorder) complete() bool { return r.limit <= 0 || r.written <= r.limit }

// cachedResponse is the value stored per cache key.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

func decodeCached(raw []byte) (cachedResponse, bool) {
	var r cachedResponse
	if err := json.Unmarshal(raw, &r); err != nil || r.Status == 0 {
		return cachedResponse{}, false
	}
	return r, true
}

// replay writes r to c.  Per-response headers are not replayed.
func (r cachedResponse) replay(c echo.Context) error {
	h := c.Response().Header()
	for k, vals := range r.Header {
		switch http.CanonicalHeaderKey(k) {
		case echo.HeaderContentLength, echo.HeaderXRequestID, "X-Cache":
			continue
		}
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(r.Status)
	_, err := c.Response().Write(r.Body)
	return err
}

// cacheKey hashes the request identity chosen by cfg.KeyStrategy.  The
// default keys on the concrete path and query, so every event gets its own
// availability entry.
func cacheKey(cfg config.CacheConfig, method, route, path, query string) string {
	var id string
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		id = "route:" + route
	case "path":
		id = "path:" + path
	case "method_path_query":
		id = method + ":" + path + "?" + query
	default:
		id = "path:" + path + "?" + query
	}
	sum := sha1.Sum([]byte(id))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache serves repeated GETs of the availability listing from
// Redis for cfg.TTL.  Only complete 200 responses are stored.  Responses
// carry X-Cache: HIT or MISS.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !cfg.Methods[req.Method] {
				return next(c)
			}
			key := cacheKey(cfg, req.Method, c.Path(), req.URL.Path, req.URL.RawQuery)

			if raw, err := rdb.Get(req.Context(), key).Bytes(); err == nil {
				if hit, ok := decodeCached(raw); ok {
					return hit.replay(c)
				}
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(cfg.MaxBodyBytes)}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || !rec.complete() {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{Status: rec.status, Header: c.Response().Header().Clone(), Body: rec.buf.Bytes()})
			if err != nil {
				return nil
			}
			if err := rdb.SetEx(context.Background(), key, payload, ttl).Err(); err != nil {
				c.Logger().Warnf("cache: store %s: %v", key, err)
			}
			return nil
		}
	}
}
