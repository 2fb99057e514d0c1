package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoToken is returned by Login when the upstream accepted the request but
// its response carried no recognizable token.
var ErrNoToken = errors.New("admin api: no token in login response")

// StatusError is a non-2xx response from the Admin API.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin api: %s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Message returns the upstream's own explanation if the body has one.
func (e *StatusError) Message() string {
	if gjson.ValidBytes(e.Body) {
		b := gjson.ParseBytes(e.Body)
		for _, k := range []string{"message", "error", "detail", "data.message"} {
			if v := b.Get(k); v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
				return strings.TrimSpace(v.Str)
			}
		}
	}
	return http.StatusText(e.StatusCode)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsUnavailable reports whether err means the Admin API could not serve the
// request at all: transport failures and 5xx responses.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
