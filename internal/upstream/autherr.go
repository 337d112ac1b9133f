package upstream

import (
	"errors"
	"strings"
)

// ErrAuthRejected means the credential was still refused after one forced
// refresh: a second consecutive auth failure indicates bad credentials, not
// a stale key.
var ErrAuthRejected = errors.New("upstream rejected credentials after refresh")

// DefaultAuthErrorMarkers is the observed set of substrings the upstream
// embeds in success envelopes when the key is actually bad ("Invalid Api
// Key", "invalid credentials"). The set was reverse-engineered, not
// documented, so it stays configurable.
var DefaultAuthErrorMarkers = []string{"invalid"}

// AuthErrorDetector decides whether a response or error is an auth failure.
// All disguised-failure heuristics live here and nowhere else.
type AuthErrorDetector struct {
	markers []string
}

// NewAuthErrorDetector builds a detector; with no markers it uses
// DefaultAuthErrorMarkers.
func NewAuthErrorDetector(markers ...string) *AuthErrorDetector {
	if len(markers) == 0 {
		markers = DefaultAuthErrorMarkers
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &AuthErrorDetector{markers: lowered}
}

// IsAuthPayload reports whether a transport-successful payload is a
// disguised auth failure (HTTP 200 with e.g. "Invalid Api Key" in the
// message field).
func (d *AuthErrorDetector) IsAuthPayload(p Payload) bool {
	if p == nil {
		return false
	}
	msg := strings.ToLower(p.ResponseMessage())
	for _, marker := range d.markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsAuthError reports whether a call error is an auth signal: an HTTP 401 or
// an error message carrying one of the configured markers.
func (d *AuthErrorDetector) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == 401 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range d.markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
