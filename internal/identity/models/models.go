package models

import (
	"strings"
	"time"

	dErrors "mtoken/pkg/domain-errors"
)

// ExternalProfile is the profile authority's view of a citizen. It is passed
// through exactly as returned; no casing, phone or date normalization.
type ExternalProfile struct {
	SubjectID    string `json:"userId"`
	CitizenID    string `json:"citizenId"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	DateOfBirth  string `json:"dateOfBirth"`
	Email        string `json:"email"`
	Notification string `json:"notification"`
	Mobile       string `json:"mobile"`
}

// IdentityRecord is a persisted identity.
//
// Invariants:
//   - exactly one record per CitizenID
//   - SubjectID is the primary key and never empty once stored
//   - CreatedAt is assigned by the store and immutable
//   - after creation only Mobile and AdditionalInfo change
type IdentityRecord struct {
	SubjectID      string    `json:"userId"`
	CitizenID      string    `json:"citizenId"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	DateOfBirth    string    `json:"dateOfBirth"`
	Mobile         string    `json:"mobile"`
	Email          string    `json:"email"`
	Notification   string    `json:"notification"`
	AdditionalInfo string    `json:"additionalInfo"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Submission is a completed registration draft.
type Submission struct {
	SubjectID      string
	CitizenID      string
	FirstName      string
	LastName       string
	DateOfBirth    string
	Mobile         string
	Email          string
	Notification   string
	AdditionalInfo string
}

// Normalize trims every field so that absent and blank values are the same
// empty marker before they reach the store.
func (s *Submission) Normalize() {
	s.SubjectID = strings.TrimSpace(s.SubjectID)
	s.CitizenID = strings.TrimSpace(s.CitizenID)
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.DateOfBirth = strings.TrimSpace(s.DateOfBirth)
	s.Mobile = strings.TrimSpace(s.Mobile)
	s.Email = strings.TrimSpace(s.Email)
	s.Notification = strings.TrimSpace(s.Notification)
	s.AdditionalInfo = strings.TrimSpace(s.AdditionalInfo)
}

// Validate requires the conflict key. Everything else is optional.
func (s *Submission) Validate() error {
	if s.CitizenID == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "citizenId is required")
	}
	return nil
}

// Record converts the submission into the record the store writes.
func (s *Submission) Record() *IdentityRecord {
	return &IdentityRecord{
		SubjectID:      s.SubjectID,
		CitizenID:      s.CitizenID,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		DateOfBirth:    s.DateOfBirth,
		Mobile:         s.Mobile,
		Email:          s.Email,
		Notification:   s.Notification,
		AdditionalInfo: s.AdditionalInfo,
	}
}

// ResolveRequest carries the caller inputs of a resolution.
type ResolveRequest struct {
	ApplicationID string
	IdentityToken string
}

// Normalize trims surrounding whitespace.
func (r *ResolveRequest) Normalize() {
	r.ApplicationID = strings.TrimSpace(r.ApplicationID)
	r.IdentityToken = strings.TrimSpace(r.IdentityToken)
}

// Validate fails when either input is missing.
func (r *ResolveRequest) Validate() error {
	if r.ApplicationID == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "applicationId is required")
	}
	if r.IdentityToken == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "identityToken is required")
	}
	return nil
}
