package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"egyptoai/internal/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestIssueVerify(t *testing.T) {
	tok := NewTokens(testSecret, 0)

	token, err := tok.Issue("01HV0USER")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token %q is not three dot-separated parts", token)
	}

	uid, err := tok.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if uid != "01HV0USER" {
		t.Errorf("uid = %q", uid)
	}
}

func TestIssueEmptyUser(t *testing.T) {
	if _, err := NewTokens(testSecret, time.Hour).Issue(""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	tok := NewTokens(testSecret, time.Hour)
	good, _ := tok.Issue("user-1")
	parts := strings.Split(good, ".")

	other := NewTokens([]byte("another-secret-another-secret-xx"), time.Hour)
	foreign, _ := other.Issue("user-1")

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	forgedParts := strings.Split(mustSign(t, forged, []byte("wrong")), ".")

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	noExpiry := mustSign(t, jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}), testSecret)
	noSubject := mustSign(t, jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}), testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two parts", parts[0] + "." + parts[1]},
		{"tampered claims", parts[0] + "." + forgedParts[1] + "." + parts[2]},
		{"bad signature encoding", parts[0] + "." + parts[1] + ".!!!"},
		{"foreign secret", foreign},
		{"alg none", unsigned},
		{"no expiry", noExpiry},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tok.Verify(tt.token)
			if !errors.Is(err, domain.ErrAuthInvalid) {
				t.Errorf("err = %v, want ErrAuthInvalid", err)
			}
		})
	}
}

func mustSign(t *testing.T, token *jwt.Token, key []byte) string {
	t.Helper()
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestIssuedClaims(t *testing.T) {
	tok := NewTokens(testSecret, 0)
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tok.now = func() time.Time { return issued }
	token, _ := tok.Issue("user-1")

	var claims jwt.RegisteredClaims
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if alg := parsed.Method.Alg(); alg != "HS256" {
		t.Errorf("alg = %q, want HS256", alg)
	}
	if claims.Subject != "user-1" {
		t.Errorf("sub = %q", claims.Subject)
	}
	if got := claims.ExpiresAt.Time; !got.Equal(issued.Add(DefaultTTL)) {
		t.Errorf("exp = %v, want %v", got, issued.Add(DefaultTTL))
	}
}

func TestVerifyExpired(t *testing.T) {
	tok := NewTokens(testSecret, time.Minute)
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tok.now = func() time.Time { return issued }
	token, _ := tok.Issue("user-1")

	tok.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err := tok.Verify(token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("user=" + domain.UserIDFromContext(r.Context())))
	})
}

func TestRequireAuth(t *testing.T) {
	tok := NewTokens(testSecret, time.Hour)
	token, _ := tok.Issue("user-1")
	h := RequireAuth(tok)(echoUser())

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "user=user-1" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/profile", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/profile", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestOptionalAuth(t *testing.T) {
	tok := NewTokens(testSecret, time.Hour)
	token, _ := tok.Issue("user-1")
	h := OptionalAuth(tok)(echoUser())

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"anonymous", "", "user="},
		{"valid", "Bearer " + token, "user=user-1"},
		{"lowercase scheme", "bearer " + token, "user=user-1"},
		{"invalid continues anonymously", "Bearer junk", "user="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/chat/stream", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK || rec.Body.String() != tt.want {
				t.Errorf("got %d %q, want %q", rec.Code, rec.Body.String(), tt.want)
			}
		})
	}
}
