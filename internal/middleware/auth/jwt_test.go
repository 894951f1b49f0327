package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	assert.NoError(t, err)
	return token
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"email": "owner@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	}
}

func serve(t *testing.T, authHeader, path string) (*httptest.ResponseRecorder, *AuthUser) {
	t.Helper()
	e := echo.New()
	middleware := JWTMiddleware(JWTConfig{
		Secret:    testSecret,
		Logger:    zap.NewNop(),
		SkipPaths: []string{"/webhooks"},
	})

	var seen *AuthUser
	handler := middleware(func(c echo.Context) error {
		seen, _ = GetUserFromContext(c)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	assert.NoError(t, handler(e.NewContext(req, rec)))
	return rec, seen
}

func TestJWTMiddleware_SuccessfulAuthentication(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("owner-123"))

	rec, user := serve(t, "Bearer "+token, "/api/v1/payments/pay_1")

	assert.Equal(t, http.StatusOK, rec.Code)
	if assert.NotNil(t, user) {
		assert.Equal(t, "owner-123", user.OwnerID)
		assert.Equal(t, "owner@example.com", user.Email)
		assert.Equal(t, "authenticated", user.Role)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims("owner-123")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	noExp := validClaims("owner-123")
	delete(noExp, "exp")

	noSub := validClaims("")
	delete(noSub, "sub")

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"not bearer", "Basic abc", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.jwt", "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims("owner-123")), "INVALID_TOKEN"},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), "INVALID_TOKEN"},
		{"no expiry", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExp), "INVALID_TOKEN"},
		{"other algorithm", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("owner-123")), "INVALID_TOKEN"},
		{"no subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSub), "INVALID_CLAIMS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := serve(t, tt.header, "/api/v1/payments/pay_1")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
			assert.Nil(t, user)
		})
	}
}

func TestJWTMiddleware_SkipPaths(t *testing.T) {
	rec, user := serve(t, "", "/webhooks/crypto")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, user)
}

func TestGetOwnerID(t *testing.T) {
	e := echo.New()

	t.Run("from context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &AuthUser{OwnerID: "owner-9"}))
		c := e.NewContext(req, httptest.NewRecorder())

		ownerID, err := GetOwnerID(c)
		assert.NoError(t, err)
		assert.Equal(t, "owner-9", ownerID)
	})

	t.Run("missing user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		_, err := GetOwnerID(c)
		assert.Error(t, err)

		_, err = RequireAuth(c)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "AUTH_REQUIRED")
	})
}
