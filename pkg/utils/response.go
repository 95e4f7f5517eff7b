package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response standard response structure
type Response struct {
	Code      ResponseCode `json:"code"`
	Message   string       `json:"message"`
	Data      interface{}  `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Success returns success response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// Error returns error response with a business code
func Error(c *gin.Context, code ResponseCode, message string) {
	c.JSON(httpStatus(code), Response{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// ErrorFrom maps an application error onto the response structure.
func ErrorFrom(c *gin.Context, err error) {
	if appErr, ok := IsAppError(err); ok {
		Error(c, appErr.Code, appErr.Message)
		return
	}
	Error(c, CodeInternalError, "internal server error")
}

// httpStatus maps business codes onto HTTP status codes.
func httpStatus(code ResponseCode) int {
	switch {
	case code == CodeSuccess:
		return http.StatusOK
	case code == CodeNotFound:
		return http.StatusNotFound
	case code == CodeRateLimit:
		return http.StatusTooManyRequests
	case code >= 40001 && code < 42000:
		return http.StatusBadRequest
	case code >= 42001 && code < 43000:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
