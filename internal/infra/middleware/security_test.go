package middleware

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"egyptoai/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func sendFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/chat", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	expectedHeaders := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}
	for header, want := range expectedHeaders {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}
	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeaders_HSTS_WithTLS(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(w, req)

	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", got)
	}
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if seen == "" {
		t.Fatal("request id not set on context")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("header %q != context %q", got, seen)
	}
}

func TestRequestID_ReusesValidInbound(t *testing.T) {
	const inbound = "0f8fad5b-d9cb-469f-a165-70867728950e"
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != inbound {
		t.Errorf("seen = %q, want %q", seen, inbound)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "not a uuid\n")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not a uuid\n" {
		t.Error("malformed inbound id should be replaced")
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(buf.String(), "handler panic") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRateLimit_AllowsNormalTraffic(t *testing.T) {
	handler := RateLimit(context.Background(), 60, 10)(okHandler())

	for i := 0; i < 10; i++ {
		if w := sendFrom(handler, "192.168.1.1:12345"); w.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimit_BlocksWithJSONBody(t *testing.T) {
	var limited []string
	handler := RateLimitWithConfig(context.Background(), RateLimitConfig{
		RequestsPerMin: 5,
		BurstSize:      5,
		OnLimited:      func(ip string) { limited = append(limited, ip) },
	})(okHandler())

	for i := 0; i < 5; i++ {
		if w := sendFrom(handler, "10.1.1.1:5000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}
	}

	w := sendFrom(handler, "10.1.1.1:5000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth request: status %d, want 429", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != DefaultLimitMessage {
		t.Errorf("error = %q", body["error"])
	}
	if len(limited) != 1 || limited[0] != "10.1.1.1" {
		t.Errorf("OnLimited calls = %v", limited)
	}
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	handler := RateLimit(context.Background(), 6, 2)(okHandler())

	client1Blocked := false
	for i := 0; i < 3; i++ {
		if sendFrom(handler, "192.168.1.1:12345").Code == http.StatusTooManyRequests {
			client1Blocked = true
		}
	}

	client2Success := 0
	for i := 0; i < 2; i++ {
		if sendFrom(handler, "192.168.1.2:12345").Code == http.StatusOK {
			client2Success++
		}
	}

	if !client1Blocked {
		t.Error("Client 1 should have been rate limited")
	}
	if client2Success != 2 {
		t.Errorf("Client 2 should have 2 successful requests, got %d", client2Success)
	}
}

func TestRateLimit_IndependentLimiters(t *testing.T) {
	ctx := context.Background()
	chat := RateLimit(ctx, 1, 1)(okHandler())
	other := RateLimit(ctx, 1, 1)(okHandler())

	sendFrom(chat, "1.1.1.1:1")
	if sendFrom(chat, "1.1.1.1:1").Code != http.StatusTooManyRequests {
		t.Error("chat limiter should block")
	}
	if sendFrom(other, "1.1.1.1:1").Code != http.StatusOK {
		t.Error("separate limiter must not share buckets")
	}
}

func TestRateLimit_TokenRefill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping time-dependent test in short mode")
	}

	// 60 req/min = 1 req/sec, burst 1
	handler := RateLimit(context.Background(), 60, 1)(okHandler())

	if w := sendFrom(handler, "192.168.1.1:12345"); w.Code != http.StatusOK {
		t.Errorf("First request: got status %d", w.Code)
	}
	if w := sendFrom(handler, "192.168.1.1:12345"); w.Code != http.StatusTooManyRequests {
		t.Errorf("Second request (immediate): got status %d", w.Code)
	}

	time.Sleep(1100 * time.Millisecond)

	if w := sendFrom(handler, "192.168.1.1:12345"); w.Code != http.StatusOK {
		t.Errorf("Third request (after refill): got status %d", w.Code)
	}
}

func TestClientIP_SpoofingPrevention(t *testing.T) {
	tests := []struct {
		name           string
		remoteAddr     string
		xForwardedFor  string
		xRealIP        string
		trustedProxies []string
		wantIP         string
	}{
		{
			name:           "untrusted source ignores XFF",
			remoteAddr:     "1.2.3.4:12345",
			xForwardedFor:  "8.8.8.8",
			trustedProxies: []string{"192.168.1.1"},
			wantIP:         "1.2.3.4",
		},
		{
			name:          "no trusted proxies ignores XFF",
			remoteAddr:    "1.2.3.4:12345",
			xForwardedFor: "8.8.8.8",
			wantIP:        "1.2.3.4",
		},
		{
			name:           "trusted proxy uses first XFF entry",
			remoteAddr:     "192.168.1.1:12345",
			xForwardedFor:  "203.0.113.1, 198.51.100.1",
			trustedProxies: []string{"192.168.1.1"},
			wantIP:         "203.0.113.1",
		},
		{
			name:           "trusted CIDR uses XFF",
			remoteAddr:     "10.0.3.7:80",
			xForwardedFor:  "8.8.8.8",
			trustedProxies: []string{"10.0.0.0/16"},
			wantIP:         "8.8.8.8",
		},
		{
			name:           "trusted proxy falls back to X-Real-IP",
			remoteAddr:     "192.168.1.1:12345",
			xRealIP:        "203.0.113.9",
			trustedProxies: []string{"192.168.1.1"},
			wantIP:         "203.0.113.9",
		},
		{
			name:       "ipv6 peer strips port",
			remoteAddr: "[2001:db8::1]:443",
			wantIP:     "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(req, tt.trustedProxies); got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mw("a"), mw("b"), mw("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if strings.Join(order, ",") != "a,b,c" {
		t.Errorf("order = %v", order)
	}
}
