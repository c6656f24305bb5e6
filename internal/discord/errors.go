package discord

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError Discord REST 错误响应（非 2xx 且非 429）
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api error: status=%d, code=%d, message=%s", e.Status, e.Code, e.Message)
}

// RateLimitError 429 响应，RetryAfter 为服务端要求的等待时长
type RateLimitError struct {
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	scope := "route"
	if e.Global {
		scope = "global"
	}
	return fmt.Sprintf("discord rate limited (%s): retry after %v", scope, e.RetryAfter)
}

// AsRateLimit 提取限流错误，调用方据此决定等待与重试
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsForbidden reports whether err is an HTTP 403 from Discord,
// e.g. the target user has DMs disabled for this server.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// IsUnauthorized reports whether err is an HTTP 401, meaning the bot token
// was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is an HTTP 404, e.g. an unknown guild id.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
