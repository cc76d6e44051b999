package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/utils"
)

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/v1", JWTAuth("secret"), RequireRole("PARTNER", "ADMIN"))
	g.GET("/whoami", func(c echo.Context) error {
		id, ok := UserID(c)
		if !ok {
			return c.NoContent(http.StatusTeapot)
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c), "identity": identity(c)})
	})

	partner, _ := utils.NewAccessToken("secret", 9, "PARTNER", 5)
	attendee, _ := utils.NewAccessToken("secret", 10, "ATTENDEE", 5)
	forged, _ := utils.NewAccessToken("other", 9, "ADMIN", 5)

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"forged", "Bearer " + forged.Token, http.StatusUnauthorized},
		{"wrong role", "Bearer " + attendee.Token, http.StatusForbidden},
		{"ok", "Bearer " + partner.Token, http.StatusOK},
	}
	for _, tc := range cases {
		rec := serve(e, http.MethodGet, "/v1/whoami", tc.auth)
		if rec.Code != tc.status {
			t.Errorf("%s: status %d, want %d", tc.name, rec.Code, tc.status)
		}
		if tc.status == http.StatusOK && rec.Body.String() != `{"id":9,"identity":"9","role":"PARTNER"}`+"\n" {
			t.Errorf("body = %s", rec.Body.String())
		}
	}
}

func TestCacheKey(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "avail"}
	a := cacheKey(cfg, "GET", "/v1/events/:id/ticket-types", "/v1/events/1/ticket-types", "")
	b := cacheKey(cfg, "GET", "/v1/events/:id/ticket-types", "/v1/events/2/ticket-types", "")
	c := cacheKey(cfg, "GET", "/v1/events/:id/ticket-types", "/v1/events/1/ticket-types", "x=1")
	if a == b || a == c {
		t.Fatal("path_query keys must differ per event and query")
	}
	if len(a) != len("avail:")+40 || a[:6] != "avail:" {
		t.Fatalf("key = %q", a)
	}

	cfg.KeyStrategy = "route"
	if cacheKey(cfg, "GET", "/r/:id", "/r/1", "") != cacheKey(cfg, "GET", "/r/:id", "/r/2", "q") {
		t.Fatal("route strategy must ignore the concrete path")
	}
}

func TestCachedResponseReplay(t *testing.T) {
	stored := cachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}, "X-Request-Id": {"abc"}, "X-Cache": {"MISS"}},
		Body:   []byte(`{"ok":true}`),
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, ok := decodeCached(raw)
	if !ok {
		t.Fatal("decodeCached rejected a stored response")
	}

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := got.replay(c); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != `{"ok":true}` || rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("replayed %d %q X-Cache=%q", rec.Code, rec.Body.String(), rec.Header().Get("X-Cache"))
	}
	if rec.Header().Get("X-Request-Id") != "" || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("replayed headers %v", rec.Header())
	}

	for _, bad := range []string{"", "not json", `{"b":"eA=="}`} {
		if _, ok := decodeCached([]byte(bad)); ok {
			t.Errorf("decodeCached(%q) accepted", bad)
		}
	}
}

func TestBodyRecorderLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	r := &bodyRecorder{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	r.Write([]byte("abc"))
	r.Write([]byte("defg"))
	if rec.Body.String() != "abcdefg" || r.buf.String() != "abcd" || r.complete() {
		t.Fatalf("client=%q captured=%q complete=%v", rec.Body.String(), r.buf.String(), r.complete())
	}
}

func TestParseBucketResult(t *testing.T) {
	res, ok := parseBucketResult([]any{int64(0), int64(0), int64(2500)})
	if !ok || res.allowed || res.remaining != 0 || res.retry != 2500*time.Millisecond {
		t.Fatalf("parseBucketResult = %+v, %v", res, ok)
	}
	if _, ok := parseBucketResult("OK"); ok {
		t.Fatal("non-array reply accepted")
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")

	cfg := config.RateLimitConfig{Prefix: "rl:bookings", KeyStrategy: "user_ip"}
	if got := buildRateKey(cfg, c); got != "rl:bookings:ip:10.0.0.7" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxUserID, uint64(12))
	if got := buildRateKey(cfg, c); got != "rl:bookings:user:12" {
		t.Fatalf("user key = %q", got)
	}
	cfg.KeyStrategy = "user_route"
	if got := buildRateKey(cfg, c); got != "rl:bookings:user:12:route:POST /v1/bookings" {
		t.Fatalf("user_route key = %q", got)
	}
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil),
	)
	rec := serve(e, http.MethodGet, "/x", "")
	if rec.Code != http.StatusOK || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("status %d X-Cache %q", rec.Code, rec.Header().Get("X-Cache"))
	}
	if asInt64("17") != 17 || asInt64(int64(3)) != 3 || asInt64(nil) != 0 {
		t.Fatal("asInt64")
	}
}
