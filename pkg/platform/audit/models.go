package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventType names an audited action.
type EventType string

const (
	EventIdentityResolved   EventType = "identity_resolved"
	EventIdentityRegistered EventType = "identity_registered"
	EventRateLimitExceeded  EventType = "rate_limit_exceeded"
	EventNotificationSent   EventType = "notification_sent"
)

// Event is emitted from domain logic to capture key actions. Citizen ids are
// never carried raw; SubjectHash holds a truncated SHA-256 of the id.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	SubjectHash string            `json:"subject_hash,omitempty"`
	Outcome     string            `json:"outcome,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	ClientIP    string            `json:"client_ip,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// HashSubject returns the first 16 hex characters of the SHA-256 of id, or
// "" for an empty id.
func HashSubject(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}
