package middleware

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"checkout/pkg/log"
	"checkout/pkg/utils"
)

// RateLimitConfig rate limiting middleware configuration
type RateLimitConfig struct {
	// Rate requests per second
	Rate float64
	// Burst maximum burst size
	Burst int
	// KeyFunc function to generate rate limit key
	KeyFunc func(c *gin.Context) string
	// ErrorHandler error handling function
	ErrorHandler func(c *gin.Context)
	// SkipFunc function to skip rate limiting
	SkipFunc func(c *gin.Context) bool
}

// DefaultRateLimitConfig default rate limiting configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:  100,
		Burst: 200,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
		ErrorHandler: func(c *gin.Context) {
			utils.Error(c, utils.CodeRateLimit, "too many requests")
		},
		SkipFunc: func(c *gin.Context) bool {
			return false
		},
	}
}

// RateLimit rate limiting middleware
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	config := DefaultRateLimitConfig()
	config.Rate = rps
	config.Burst = burst
	return RateLimitWithConfig(config)
}

// RateLimitWithConfig rate limiting middleware with configuration
func RateLimitWithConfig(config RateLimitConfig) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		if config.SkipFunc != nil && config.SkipFunc(c) {
			c.Next()
			return
		}

		key := config.KeyFunc(c)

		mu.Lock()
		limiter, exists := limiters[key]
		if !exists {
			limiter = rate.NewLimiter(rate.Limit(config.Rate), config.Burst)
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			log.WithFields(map[string]interface{}{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"ip":     c.ClientIP(),
			}).Warn("Rate limit exceeded")

			config.ErrorHandler(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

// CheckoutRateLimit per-user rate limiting for the checkout endpoint
func CheckoutRateLimit(rps float64, burst int) gin.HandlerFunc {
	config := DefaultRateLimitConfig()
	config.Rate = rps
	config.Burst = burst
	config.KeyFunc = func(c *gin.Context) string {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			return c.ClientIP()
		}
		return fmt.Sprintf("checkout:%s", userID)
	}
	return RateLimitWithConfig(config)
}
