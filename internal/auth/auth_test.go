package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestIdentityFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	id, err := IdentityFromToken(sign(t, Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "mmchat", ExpiresAt: jwt.NewNumericDate(exp)},
	}))
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "mmchat", id.Issuer)
	assert.True(t, exp.Equal(id.ExpiresAt))
	assert.False(t, id.Expired(time.Now()))
	assert.True(t, id.Expired(exp.Add(time.Second)))
}

func TestIdentityFallsBackToSubject(t *testing.T) {
	id, err := IdentityFromToken(sign(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u2"}}))
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)

	_, err = IdentityFromToken(sign(t, Claims{}))
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = IdentityFromToken("not-a-token")
	assert.Error(t, err)
}

func TestBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	me := Identity{UserID: "me"}

	tests := []struct {
		name   string
		local  string
		header string
		status int
	}{
		{"open when no local token", "", "", http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"right token", "s3cret", "Bearer s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/me", BearerMiddleware(tt.local, me), func(c *gin.Context) {
				c.String(http.StatusOK, MustUserID(c))
			})
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "me", w.Body.String())
			}
		})
	}
}
