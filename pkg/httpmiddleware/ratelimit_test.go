package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromIP(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func TestRateLimit_BurstThenRefuse(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Hour})(okHandler())

	for i, want := range []string{"2", "1", "0"} {
		w := hit(h)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, w.Header().Get("X-RateLimit-Remaining"))
		assert.Empty(t, w.Header().Get("Retry-After"))
	}

	w := hit(h)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 20*60, retry, 2, "one token every 20 minutes")

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "too many requests, try again later", body["message"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Hour})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, fromIP("198.51.100.1:1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, fromIP("198.51.100.1:2")).Code, "port is ignored")
	assert.Equal(t, http.StatusOK, hit(h, fromIP("198.51.100.2:1")).Code)
}

func TestRateLimit_Refills(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: 40 * time.Millisecond})(okHandler())

	require.Equal(t, http.StatusOK, hit(h).Code)
	require.Equal(t, http.StatusOK, hit(h).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h).Code)

	assert.Eventually(t, func() bool {
		return hit(h).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimit_SessionOrIP(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Hour,
		Key:    SessionOrIP("shop_session"),
	})(okHandler())

	require.Equal(t, http.StatusOK, hit(h, withCookie("shop_session", "a")).Code)
	assert.Equal(t, http.StatusOK, hit(h, withCookie("shop_session", "b")).Code, "same IP, other session")
	assert.Equal(t, http.StatusTooManyRequests, hit(h, withCookie("shop_session", "a")).Code)

	assert.Equal(t, http.StatusOK, hit(h).Code, "no cookie uses the IP bucket")
	assert.Equal(t, http.StatusTooManyRequests, hit(h).Code)
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "Remote", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "RemoteNoPort", remote: "192.0.2.1", want: "192.0.2.1"},
		{name: "ForwardedChain", headers: map[string]string{"X-Forwarded-For": " 10.1.1.1 , 172.16.0.1"}, remote: "192.0.2.1:1", want: "10.1.1.1"},
		{name: "RealIP", headers: map[string]string{"X-Real-IP": "10.2.2.2"}, remote: "192.0.2.1:1", want: "10.2.2.2"},
		{name: "EmptyForwarded", headers: map[string]string{"X-Forwarded-For": " ,10.3.3.3"}, remote: "192.0.2.1:1", want: "192.0.2.1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 5, Window: time.Minute})
	now := time.Now()

	l.take("old", now.Add(-2*time.Minute))
	l.take("fresh", now)
	require.Equal(t, 2, l.size())

	l.sweep(now)
	assert.Equal(t, 1, l.size())
}

func TestRateLimitWithCleanup_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := RateLimitWithCleanup(ctx, RateLimitConfig{Max: 1, Window: time.Millisecond})(okHandler())
	assert.Equal(t, http.StatusOK, hit(h).Code)
	cancel()
}
