package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type ctxKey string

const CtxIdentity ctxKey = "identity"

// BearerMiddleware guards the local API. An empty localToken lets every
// request through; the daemon binds to loopback by default. The identity
// of the signed-in user is attached to every request.
func BearerMiddleware(localToken string, id Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		if localToken != "" {
			h := c.GetHeader("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
				return
			}
			tok := strings.TrimPrefix(h, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(tok), []byte(localToken)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Token"})
				return
			}
		}
		c.Set(string(CtxIdentity), id)
		c.Next()
	}
}

func MustIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(string(CtxIdentity)); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

func MustUserID(c *gin.Context) string {
	return MustIdentity(c).UserID
}
