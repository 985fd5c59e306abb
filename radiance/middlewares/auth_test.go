package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"radiance/radiance/config"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestParseUserID(t *testing.T) {
	secret := "test-secret"
	token := signToken(t, secret, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	userID, ok := ParseUserID(token, secret)
	if !ok || userID != 42 {
		t.Errorf("expected user 42, got %d (ok=%v)", userID, ok)
	}

	if _, ok := ParseUserID(token, "wrong-secret"); ok {
		t.Error("expected rejection with the wrong secret")
	}

	expired := signToken(t, secret, jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	if _, ok := ParseUserID(expired, secret); ok {
		t.Error("expected rejection of an expired token")
	}

	noClaim := signToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, ok := ParseUserID(noClaim, secret); ok {
		t.Error("expected rejection of a token without user_id")
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	var gotUserID int
	handler := AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Context().Value(UserIDKey).(int)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rr.Code)
	}

	token := signToken(t, cfg.JWTSecret, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 with a valid token, got %d", rr.Code)
	}
	if gotUserID != 7 {
		t.Errorf("expected user 7 in context, got %d", gotUserID)
	}
}
