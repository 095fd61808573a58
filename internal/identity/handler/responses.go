package handler

import (
	"time"

	"mtoken/internal/identity/models"
)

// Envelope messages.
const (
	MessageFound      = "Login complete"
	MessageNewUser    = "Please register"
	MessageRegistered = "Registration Complete"
)

// RecordResponse is the FOUND payload.
type RecordResponse struct {
	UserID         string `json:"userId"`
	CitizenID      string `json:"citizenId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	DateOfBirth    string `json:"dateOfBirth"`
	Mobile         string `json:"mobile"`
	Email          string `json:"email"`
	Notification   string `json:"notification"`
	AdditionalInfo string `json:"additionalInfo"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

// DraftResponse is the NEW_USER payload.
type DraftResponse struct {
	UserID         string `json:"userId"`
	CitizenID      string `json:"citizenId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	DateOfBirth    string `json:"dateOfBirth"`
	Email          string `json:"email"`
	Notification   string `json:"notification"`
	Mobile         string `json:"mobile"`
	AdditionalInfo string `json:"additionalInfo"`
}

func toRecordResponse(r *models.IdentityRecord) RecordResponse {
	resp := RecordResponse{
		UserID:         r.SubjectID,
		CitizenID:      r.CitizenID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		DateOfBirth:    r.DateOfBirth,
		Mobile:         r.Mobile,
		Email:          r.Email,
		Notification:   r.Notification,
		AdditionalInfo: r.AdditionalInfo,
	}
	if !r.CreatedAt.IsZero() {
		resp.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func toDraftResponse(d *models.Draft) DraftResponse {
	return DraftResponse{
		UserID:         d.SubjectID,
		CitizenID:      d.CitizenID,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		DateOfBirth:    d.DateOfBirth,
		Email:          d.Email,
		Notification:   d.Notification,
		Mobile:         d.Mobile,
		AdditionalInfo: d.AdditionalInfo,
	}
}
