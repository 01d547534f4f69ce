package publish

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrTooLarge         = errors.New("file exceeds upload limit")
	ErrRateLimited      = errors.New("rate limited")
)

// Error is a failed publish call. Code and RetryAfter mirror the transport
// response when there was one.
type Error struct {
	Op         string
	Code       int
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: code %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// apiError extracts the Bot API error, which the library returns by pointer
// from requests but which callers also construct by value.
func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

// isPermissionDenied also inspects the description: multipart uploads come
// back without an error code.
func isPermissionDenied(e tgbotapi.Error) bool {
	if e.Code == 403 {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.HasPrefix(msg, "forbidden:") ||
		strings.Contains(msg, "not enough rights") ||
		strings.Contains(msg, "have no rights") ||
		strings.Contains(msg, "chat_write_forbidden")
}
