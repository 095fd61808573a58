package handler

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"mtoken/internal/identity/models"
	"mtoken/internal/upstream"
	dErrors "mtoken/pkg/domain-errors"
)

// Column limits of the identity table.
const (
	maxVarchar         = "255"
	maxNotification    = "50"
	maxAdditionalInfo  = "4096"
	maxTokenLength     = "4096"
	missingDataMessage = "Missing Data"
)

// firstNonEmpty returns the first value that is not blank after trimming.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// LoginRequest is the resolve payload. appId/mToken are canonical; the
// other spellings are accepted from older clients.
type LoginRequest struct {
	AppID              string `json:"appId"`
	ApplicationID      string `json:"applicationId"`
	AppIDSnake         string `json:"app_id"`
	MToken             string `json:"mToken"`
	IdentityToken      string `json:"identityToken"`
	MTokenSnake        string `json:"m_token"`
	resolvedAppID      string
	resolvedIdentToken string
}

// Validate reconciles the aliases and checks presence and length.
func (r *LoginRequest) Validate() error {
	r.resolvedAppID = firstNonEmpty(r.AppID, r.ApplicationID, r.AppIDSnake)
	r.resolvedIdentToken = firstNonEmpty(r.MToken, r.IdentityToken, r.MTokenSnake)

	if r.resolvedAppID == "" || r.resolvedIdentToken == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, missingDataMessage)
	}
	if !govalidator.StringLength(r.resolvedAppID, "1", maxVarchar) {
		return dErrors.New(dErrors.CodeValidation, "appId is too long")
	}
	if !govalidator.StringLength(r.resolvedIdentToken, "1", maxTokenLength) {
		return dErrors.New(dErrors.CodeValidation, "mToken is too long")
	}
	return nil
}

// ToModel returns the canonical resolve input. Call after Validate.
func (r *LoginRequest) ToModel() models.ResolveRequest {
	return models.ResolveRequest{
		ApplicationID: r.resolvedAppID,
		IdentityToken: r.resolvedIdentToken,
	}
}

// RegisterRequest is the completed registration draft. Both camelCase and
// snake_case spellings are accepted; the first non-empty one wins.
type RegisterRequest struct {
	UserID            string                `json:"userId"`
	UserIDSnake       string                `json:"user_id"`
	CitizenID         string                `json:"citizenId"`
	CitizenIDSnake    string                `json:"citizen_id"`
	FirstName         string                `json:"firstName"`
	FirstNameSnake    string                `json:"first_name"`
	LastName          string                `json:"lastName"`
	LastNameSnake     string                `json:"last_name"`
	DateOfBirth       string                `json:"dateOfBirth"`
	DateOfBirthString string                `json:"dateOfBirthString"`
	DateOfBirthSnake  string                `json:"date_of_birth"`
	Email             string                `json:"email"`
	Notification      upstream.FlexibleText `json:"notification"`
	Mobile            string                `json:"mobile"`
	AdditionalInfo    string                `json:"additionalInfo"`
	AdditionalInfoAlt string                `json:"additional_info"`

	submission models.Submission
}

// Validate reconciles the aliases into one submission and checks lengths.
func (r *RegisterRequest) Validate() error {
	r.submission = models.Submission{
		SubjectID:      firstNonEmpty(r.UserID, r.UserIDSnake),
		CitizenID:      firstNonEmpty(r.CitizenID, r.CitizenIDSnake),
		FirstName:      firstNonEmpty(r.FirstName, r.FirstNameSnake),
		LastName:       firstNonEmpty(r.LastName, r.LastNameSnake),
		DateOfBirth:    firstNonEmpty(r.DateOfBirth, r.DateOfBirthString, r.DateOfBirthSnake),
		Email:          firstNonEmpty(r.Email),
		Notification:   firstNonEmpty(r.Notification.String()),
		Mobile:         firstNonEmpty(r.Mobile),
		AdditionalInfo: firstNonEmpty(r.AdditionalInfo, r.AdditionalInfoAlt),
	}
	sub := &r.submission

	if sub.CitizenID == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, missingDataMessage)
	}

	limits := []struct {
		field string
		value string
		max   string
	}{
		{"userId", sub.SubjectID, maxVarchar},
		{"citizenId", sub.CitizenID, maxVarchar},
		{"firstName", sub.FirstName, maxVarchar},
		{"lastName", sub.LastName, maxVarchar},
		{"dateOfBirth", sub.DateOfBirth, maxVarchar},
		{"email", sub.Email, maxVarchar},
		{"mobile", sub.Mobile, maxVarchar},
		{"notification", sub.Notification, maxNotification},
		{"additionalInfo", sub.AdditionalInfo, maxAdditionalInfo},
	}
	for _, l := range limits {
		if !govalidator.StringLength(l.value, "0", l.max) {
			return dErrors.New(dErrors.CodeValidation, l.field+" must be at most "+l.max+" characters")
		}
	}
	return nil
}

// ToModel returns the canonical submission. Call after Validate.
func (r *RegisterRequest) ToModel() models.Submission {
	return r.submission
}
