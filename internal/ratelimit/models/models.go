package models

import (
	"strings"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, set when Allowed is false
}

// Key builds the bucket key for a client IP on a route. Segments are
// sanitized so an IPv6 address or a route cannot spill into a neighbouring
// segment.
func Key(route, clientIP string) string {
	return "ratelimit:" + SanitizeKeySegment(route) + ":" + SanitizeKeySegment(clientIP)
}

// SanitizeKeySegment replaces the ':' delimiter inside a key segment.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
