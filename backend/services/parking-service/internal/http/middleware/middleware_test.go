package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/auth"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := OwnerIDFromContext(r.Context())
	w.Header().Set("X-Owner", ownerID)
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	h := Auth(tokens, zap.NewNop())(http.HandlerFunc(okHandler))

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad token":      "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/parking/dashboard", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decodeError(t, rec)
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestAuthPutsOwnerInContext(t *testing.T) {
	tokens := auth.NewTokenService("secret", time.Hour)
	token, err := tokens.GenerateToken("owner-7", "owner@example.com")
	require.NoError(t, err)

	h := Auth(tokens, zap.NewNop())(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-7", rec.Header().Get("X-Owner"))
}

func TestRateLimiterReturns429AfterBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 2}, zap.NewNop())
	defer rl.Stop()
	h := rl.Middleware()(http.HandlerFunc(okHandler))

	do := func(owner string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithOwnerID(req.Context(), owner))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("a").Code)
	assert.Equal(t, http.StatusOK, do("a").Code)

	limited := do("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.False(t, decodeError(t, limited).Success)

	// buckets are per owner
	assert.Equal(t, http.StatusOK, do("b").Code)
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiterRequiresOwner(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 1}, zap.NewNop())
	defer rl.Stop()
	rec := httptest.NewRecorder()
	rl.Middleware()(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{}, zap.NewNop())
	defer rl.Stop()
	h := rl.Middleware()(http.HandlerFunc(okHandler))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterEvictsIdleOwners(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 1, CleanupInterval: time.Minute}, zap.NewNop())
	defer rl.Stop()
	rl.limiterFor("a")
	rl.evictIdle(time.Now().Add(time.Minute))
	assert.Equal(t, 1, rl.Len())
	rl.evictIdle(time.Now().Add(3 * time.Minute))
	assert.Equal(t, 0, rl.Len())
}

func TestRecoveryReturnsGeneric500(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Error)
}

type recordedRequest struct {
	method string
	route  string
	status int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method: method, route: route, status: status})
}

func TestLoggingObservesRoutePattern(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Logging(zap.NewNop(), obs))
	r.Get("/api/parking/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/parking/sessions/abc", "/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, obs.seen, 2)
	assert.Equal(t, recordedRequest{method: "GET", route: "/api/parking/sessions/{id}", status: http.StatusNotFound}, obs.seen[0])
	assert.Equal(t, recordedRequest{method: "GET", route: "/health", status: http.StatusOK}, obs.seen[1])
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodOptions, "/api/settings", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
