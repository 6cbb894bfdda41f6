// Package identity provides session identifier primitives.
package identity

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SessionHeaderName carries the session id when it is not in the query string.
const SessionHeaderName = "X-Session-ID"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is acceptable as a session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// SessionIDFromRequest reads the session id from the query string, then the
// session header. It returns "" when neither is present.
func SessionIDFromRequest(r *http.Request) string {
	sid := r.URL.Query().Get("session_id")
	if sid == "" {
		sid = r.Header.Get(SessionHeaderName)
	}
	return strings.TrimSpace(sid)
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
