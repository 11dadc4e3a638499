package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "kine-01",
			Issuer:    "physio",
			Audience:  jwt.ClaimStrings{"physio-api"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RolePhysiotherapist},
	}
}

func runJWT(t *testing.T, mw echo.MiddlewareFunc, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	var inner echo.Context
	err := mw(func(c echo.Context) error {
		inner = c
		return c.String(http.StatusOK, "ok")
	})(c)
	if inner == nil {
		inner = c
	}
	return inner, err
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	cfg := JWTConfig{Issuer: "physio", Audience: "physio-api", SigningKey: testSigningKey}
	token := createTestToken(t, validClaims(), testSigningKey)

	c, err := runJWT(t, JWTMiddleware(cfg), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(c.Request().Context()); got != "kine-01" {
		t.Errorf("expected user kine-01, got %q", got)
	}
	if got := RolesFromContext(c.Request().Context()); len(got) != 1 || got[0] != RolePhysiotherapist {
		t.Errorf("expected physiotherapist role, got %v", got)
	}
	if c.Get("user_id") != "kine-01" {
		t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	cfg := JWTConfig{Issuer: "physio", Audience: "physio-api", SigningKey: testSigningKey}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"no expiry", createTestToken(t, noExpiry, testSigningKey)},
		{"wrong issuer", createTestToken(t, wrongIssuer, testSigningKey)},
		{"wrong audience", createTestToken(t, wrongAudience, testSigningKey)},
		{"wrong key", createTestToken(t, validClaims(), []byte("another-key"))},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, JWTMiddleware(cfg), "Bearer "+tt.token)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_NoSigningKey(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	_, err := runJWT(t, JWTMiddleware(JWTConfig{}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	cfg := JWTConfig{Issuer: "physio", Audience: "physio-api", SigningKey: testSigningKey}

	token, err := cfg.IssueToken("medico-7", []string{RolePhysician}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	claims, err := cfg.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "medico-7" {
		t.Errorf("expected subject medico-7, got %q", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != RolePhysician {
		t.Errorf("expected physician role, got %v", claims.Roles)
	}
}

func TestIssueToken_NoSigningKey(t *testing.T) {
	if _, err := (JWTConfig{}).IssueToken("x", nil, time.Hour); err != ErrNoSigningKey {
		t.Errorf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestDevAuthMiddleware_DefaultsWithoutHeader(t *testing.T) {
	c, err := runJWT(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(c.Request().Context()); got != "dev-user" {
		t.Errorf("expected dev-user, got %q", got)
	}
	if got := RolesFromContext(c.Request().Context()); len(got) != 1 || got[0] != RoleAdmin {
		t.Errorf("expected admin role, got %v", got)
	}
}

func TestDevAuthMiddleware_ValidatesProvidedToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}

	_, err := runJWT(t, DevAuthMiddleware(cfg), "Bearer not.a.jwt")
	expectStatus(t, err, http.StatusUnauthorized)

	claims := validClaims()
	claims.Audience = nil
	claims.Issuer = ""
	c, err := runJWT(t, DevAuthMiddleware(cfg), "Bearer "+createTestToken(t, claims, testSigningKey))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(c.Request().Context()); got != "kine-01" {
		t.Errorf("expected token subject, got %q", got)
	}
}
