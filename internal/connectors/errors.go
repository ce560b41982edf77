package connectors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/slack-go/slack"
)

// ThrottleError — внешняя система попросила подождать (HTTP 429 / Slack ratelimited).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}

// StatusError — неуспешный HTTP ответ внешнего API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// asThrottle приводит ограничение скорости Slack к общему ThrottleError.
func asThrottle(err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &ThrottleError{RetryAfter: rl.RetryAfter, Cause: err}
	}
	return err
}

// parseRetryAfter понимает только секунды; дату из заголовка игнорируем.
func parseRetryAfter(h string, fallback time.Duration) time.Duration {
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
