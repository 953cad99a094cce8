package middleware

import "github.com/gin-gonic/gin"

// abortJSON stops the chain with the same {request_id, code, message}
// envelope the handlers use.
func abortJSON(c *gin.Context, status int, code, message string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": asString(rid),
		"code":       code,
		"message":    message,
	})
}
