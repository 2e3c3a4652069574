package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signedToken(t *testing.T, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	assert.NoError(t, err)
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "testsecret")
	defer viper.Set("jwt.secret_key", "")

	var gotUserID string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value("userID").(string)
	}))

	t.Run("valid token", func(t *testing.T) {
		gotUserID = ""
		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		req.Header.Set("Authorization", "Bearer "+signedToken(t, "testsecret", "user1"))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user1", gotUserID)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		req.Header.Set("Authorization", "Bearer "+signedToken(t, "othersecret", "user1"))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": "user1",
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("testsecret"))
		assert.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/wallet/balance", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
