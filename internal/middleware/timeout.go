package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"checkout/pkg/utils"
)

// TimeoutConfig timeout configuration
type TimeoutConfig struct {
	// Timeout timeout duration
	Timeout time.Duration
	// ErrorHandler timeout error handler function
	ErrorHandler gin.HandlerFunc
	// SkipFunc function to skip timeout check
	SkipFunc func(*gin.Context) bool
}

// DefaultTimeoutConfig default timeout configuration
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout: 30 * time.Second,
		ErrorHandler: func(c *gin.Context) {
			utils.Error(c, utils.CodeCheckoutTimeout, "request timed out")
		},
	}
}

// Timeout timeout middleware
func Timeout(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return TimeoutWithConfig(config)
}

// APITimeout default timeout for API endpoints
func APITimeout() gin.HandlerFunc {
	return Timeout(30 * time.Second)
}

// TimeoutWithConfig timeout middleware with configuration
func TimeoutWithConfig(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.SkipFunc != nil && config.SkipFunc(c) {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			defer func() {
				if r := recover(); r != nil {
					if config.ErrorHandler != nil {
						config.ErrorHandler(c)
					}
				}
				close(done)
			}()
			c.Next()
		}()

		select {
		case <-done:
			return
		case <-ctx.Done():
			if config.ErrorHandler != nil {
				config.ErrorHandler(c)
			}
			c.Abort()
		}
	}
}
