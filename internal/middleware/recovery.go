package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// Recovery panic recovery middleware
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.WithFields(map[string]interface{}{
			"error":  recovered,
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"stack":  string(debug.Stack()),
		}).Error("Panic recovered")

		utils.Error(c, utils.CodeInternalError, "internal server error")
	})
}

// RecoveryWithWriter panic recovery middleware with custom writer
func RecoveryWithWriter(writer gin.RecoveryFunc) gin.HandlerFunc {
	return gin.CustomRecovery(writer)
}
