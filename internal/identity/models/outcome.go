package models

// OutcomeKind tags a successful resolution.
type OutcomeKind string

const (
	OutcomeFound   OutcomeKind = "found"
	OutcomeNewUser OutcomeKind = "new_user"
)

// Outcome is the result of a resolution. Exactly one of Record and Draft is
// set: Record for OutcomeFound, Draft for OutcomeNewUser. Failures are
// returned as errors, never as an Outcome.
type Outcome struct {
	Kind   OutcomeKind
	Record *IdentityRecord
	Draft  *Draft
}

// Draft is the registration form prefilled from the external profile. Contact
// fields are left empty for the caller to complete.
type Draft struct {
	SubjectID      string `json:"userId"`
	CitizenID      string `json:"citizenId"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	DateOfBirth    string `json:"dateOfBirth"`
	Email          string `json:"email"`
	Notification   string `json:"notification"`
	Mobile         string `json:"mobile"`
	AdditionalInfo string `json:"additionalInfo"`
}

// NewFound wraps a stored record.
func NewFound(record *IdentityRecord) *Outcome {
	return &Outcome{Kind: OutcomeFound, Record: record}
}

// NewDraft wraps the identity fields of profile. Mobile and additional info
// stay empty even when the authority supplied a mobile number.
func NewDraft(profile *ExternalProfile) *Outcome {
	return &Outcome{
		Kind: OutcomeNewUser,
		Draft: &Draft{
			SubjectID:    profile.SubjectID,
			CitizenID:    profile.CitizenID,
			FirstName:    profile.FirstName,
			LastName:     profile.LastName,
			DateOfBirth:  profile.DateOfBirth,
			Email:        profile.Email,
			Notification: profile.Notification,
		},
	}
}

// Stage is where in a resolution or registration a call currently is.
type Stage string

const (
	StageStart            Stage = "start"
	StageAuthorityPending Stage = "authority_pending"
	StageProfilePending   Stage = "profile_pending"
	StageStoreLookup      Stage = "store_lookup"
	StageStoreUpsert      Stage = "store_upsert"
	StageDone             Stage = "done"
)
