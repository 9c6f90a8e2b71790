package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

// Accepted answers an intent that was taken but not yet confirmed by the
// server.
func Accepted(c *gin.Context, v any) {
	c.JSON(http.StatusAccepted, v)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Err(c *gin.Context, code int, msg any) {
	c.JSON(code, gin.H{"error": msg})
}
