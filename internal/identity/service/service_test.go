package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mtoken/internal/authority"
	"mtoken/internal/identity/models"
	"mtoken/internal/identity/service/mocks"
	"mtoken/internal/upstream"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/platform/audit"
	"mtoken/pkg/platform/sentinel"
)

// =============================================================================
// Reconciliation Engine Test Suite
// =============================================================================
// Collaborators are gomock mocks so every test can assert exactly which
// external calls were (or were not) issued.

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	authority *mocks.MockAuthorityClient
	profiles  *mocks.MockProfileResolver
	store     *mocks.MockStore
	audit     *mocks.MockAuditPublisher
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.setup()
}

func (s *ServiceSuite) SetupSubTest() {
	s.setup()
}

func (s *ServiceSuite) setup() {
	s.ctrl = gomock.NewController(s.T())
	s.authority = mocks.NewMockAuthorityClient(s.ctrl)
	s.profiles = mocks.NewMockProfileResolver(s.ctrl)
	s.store = mocks.NewMockStore(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.service = New(s.authority, s.profiles, s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.audit),
		WithTimeouts(Timeouts{Authority: time.Second, Profile: time.Second, Store: time.Second}),
		WithSubjectIDGenerator(func() string { return "generated-subject" }),
	)
}

const (
	testCitizenID = "1-2345-67890-12-3"
	testCred      = authority.Credential("bearer-123")
)

func validRequest() models.ResolveRequest {
	return models.ResolveRequest{ApplicationID: "MY_APP", IdentityToken: "abc123"}
}

func testProfile() *models.ExternalProfile {
	return &models.ExternalProfile{
		SubjectID:    "ext-7781",
		CitizenID:    testCitizenID,
		FirstName:    "สมชาย",
		LastName:     "ใจดี",
		DateOfBirth:  "01/01/2530",
		Email:        "somchai@example.com",
		Notification: "true",
		Mobile:       "0899999999",
	}
}

func (s *ServiceSuite) expectAuthorityAndProfile() {
	s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil).Times(1)
	s.profiles.EXPECT().ResolveProfile(gomock.Any(), testCred, "MY_APP", "abc123").Return(testProfile(), nil).Times(1)
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "error: %v", err)
}

// =============================================================================
// Resolve - Input Validation
// =============================================================================

func (s *ServiceSuite) TestResolveValidation() {
	cases := []struct {
		name string
		req  models.ResolveRequest
	}{
		{"missing application id", models.ResolveRequest{IdentityToken: "abc123"}},
		{"missing identity token", models.ResolveRequest{ApplicationID: "MY_APP"}},
		{"whitespace identity token", models.ResolveRequest{ApplicationID: "MY_APP", IdentityToken: "  "}},
		{"both missing", models.ResolveRequest{}},
	}
	for _, tc := range cases {
		s.Run(tc.name+" fails before any external call", func() {
			s.authority.EXPECT().AcquireCredential(gomock.Any()).Times(0)
			s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			s.store.EXPECT().FindByCitizenID(gomock.Any(), gomock.Any()).Times(0)

			outcome, err := s.service.Resolve(context.Background(), tc.req)
			s.Nil(outcome)
			s.requireCode(err, dErrors.CodeInvalidRequest)
		})
	}
}

// =============================================================================
// Resolve - Branching
// =============================================================================

func (s *ServiceSuite) TestResolveBranches() {
	s.Run("stored citizen returns FOUND with stored contact fields", func() {
		s.expectAuthorityAndProfile()
		stored := &models.IdentityRecord{
			SubjectID:      "subject-1",
			CitizenID:      testCitizenID,
			FirstName:      "สมชาย",
			Mobile:         "0812345678",
			AdditionalInfo: "Bangkok",
		}
		s.store.EXPECT().FindByCitizenID(gomock.Any(), testCitizenID).Return(stored, nil)

		outcome, err := s.service.Resolve(context.Background(), validRequest())
		s.Require().NoError(err)
		s.Equal(models.OutcomeFound, outcome.Kind)
		s.Nil(outcome.Draft)
		s.Equal("0812345678", outcome.Record.Mobile, "stored mobile wins over the authority's")
		s.Equal("Bangkok", outcome.Record.AdditionalInfo)
	})

	s.Run("unknown citizen returns NEW_USER draft with empty contact fields", func() {
		s.expectAuthorityAndProfile()
		s.store.EXPECT().FindByCitizenID(gomock.Any(), testCitizenID).Return(nil, sentinel.ErrNotFound)

		outcome, err := s.service.Resolve(context.Background(), validRequest())
		s.Require().NoError(err)
		s.Equal(models.OutcomeNewUser, outcome.Kind)
		s.Nil(outcome.Record)
		s.Equal(testCitizenID, outcome.Draft.CitizenID)
		s.Equal("สมชาย", outcome.Draft.FirstName)
		s.Equal("somchai@example.com", outcome.Draft.Email)
		s.Empty(outcome.Draft.Mobile)
		s.Empty(outcome.Draft.AdditionalInfo)
	})

	s.Run("every resolve acquires a fresh credential", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil).Times(2)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), testCred, "MY_APP", "abc123").Return(testProfile(), nil).Times(2)
		s.store.EXPECT().FindByCitizenID(gomock.Any(), testCitizenID).Return(nil, sentinel.ErrNotFound).Times(2)

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.Require().NoError(err)
		_, err = s.service.Resolve(context.Background(), validRequest())
		s.Require().NoError(err)
	})
}

// =============================================================================
// Resolve - Failure Classification
// =============================================================================

func (s *ServiceSuite) TestResolveAuthorityFailures() {
	s.Run("network failure is AuthorityUnavailable", func() {
		netErr := upstream.NewError(upstream.CategoryOutage, "authority", "request failed", errors.New("connection refused"))
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(authority.Credential(""), netErr)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		outcome, err := s.service.Resolve(context.Background(), validRequest())
		s.Nil(outcome)
		s.requireCode(err, dErrors.CodeAuthorityUnavailable)
		s.Equal(upstream.CategoryOutage, upstream.CategoryOf(err))
	})

	s.Run("empty credential is AuthorityUnavailable with a distinct cause", func() {
		emptyErr := upstream.NewError(upstream.CategoryBadData, "authority", "empty credential", nil)
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(authority.Credential(""), emptyErr)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeAuthorityUnavailable)
		s.Equal(upstream.CategoryBadData, upstream.CategoryOf(err))
	})

	s.Run("empty credential without error is still AuthorityUnavailable", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(authority.Credential(""), nil)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeAuthorityUnavailable)
	})
}

func (s *ServiceSuite) TestResolveProfileFailures() {
	s.Run("empty result is ProfileAuthorityRejected", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), testCred, "MY_APP", "abc123").
			Return(nil, upstream.NewError(upstream.CategoryRejected, "profile", "no profile", nil))
		s.store.EXPECT().FindByCitizenID(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeProfileRejected)
		s.Equal(RejectedMessage, dErrors.MessageOf(err))
	})

	s.Run("transport failure is ProfileUnavailable", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, upstream.NewError(upstream.CategoryTimeout, "profile", "request timed out", context.DeadlineExceeded))
		s.store.EXPECT().FindByCitizenID(gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeProfileUnavailable)
	})

	s.Run("shape mismatch is ProfileUnavailable", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, upstream.NewError(upstream.CategoryContractMismatch, "profile", "no citizenId", nil))

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeProfileUnavailable)
	})
}

func (s *ServiceSuite) TestResolveStoreFailure() {
	s.expectAuthorityAndProfile()
	s.store.EXPECT().FindByCitizenID(gomock.Any(), testCitizenID).
		Return(nil, errors.Join(sentinel.ErrUnavailable, errors.New("connection reset")))

	outcome, err := s.service.Resolve(context.Background(), validRequest())
	s.Nil(outcome)
	s.requireCode(err, dErrors.CodeStoreUnavailable)
}

func (s *ServiceSuite) TestResolveAppliesStepTimeout() {
	s.service.timeouts = Timeouts{Authority: 20 * time.Millisecond}
	s.authority.EXPECT().AcquireCredential(gomock.Any()).DoAndReturn(func(ctx context.Context) (authority.Credential, error) {
		<-ctx.Done()
		return "", upstream.ClassifyTransport("authority", ctx.Err())
	})

	_, err := s.service.Resolve(context.Background(), validRequest())
	s.requireCode(err, dErrors.CodeAuthorityUnavailable)
	s.Equal(upstream.CategoryTimeout, upstream.CategoryOf(err))
}

func (s *ServiceSuite) TestResolveRecoversPanics() {
	s.Run("panic in the profile step is Internal", func() {
		s.authority.EXPECT().AcquireCredential(gomock.Any()).Return(testCred, nil)
		s.profiles.EXPECT().ResolveProfile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, authority.Credential, string, string) (*models.ExternalProfile, error) {
				panic("nil map write")
			})

		outcome, err := s.service.Resolve(context.Background(), validRequest())
		s.Nil(outcome)
		s.requireCode(err, dErrors.CodeInternal)
		s.Contains(err.Error(), string(models.StageProfilePending))
	})

	s.Run("panic in the store lookup is Internal", func() {
		s.expectAuthorityAndProfile()
		s.store.EXPECT().FindByCitizenID(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, string) (*models.IdentityRecord, error) {
				panic("driver bug")
			})

		_, err := s.service.Resolve(context.Background(), validRequest())
		s.requireCode(err, dErrors.CodeInternal)
	})
}

// =============================================================================
// Register
// =============================================================================

func (s *ServiceSuite) TestRegister() {
	s.Run("normalizes and upserts the submission", func() {
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *models.IdentityRecord) error {
			s.Equal("generated-subject", r.SubjectID)
			s.Equal(testCitizenID, r.CitizenID)
			s.Equal("0812345678", r.Mobile)
			s.Equal("Bangkok", r.AdditionalInfo)
			s.Empty(r.Email)
			return nil
		})

		err := s.service.Register(context.Background(), models.Submission{
			CitizenID:      " " + testCitizenID + " ",
			Mobile:         "0812345678",
			AdditionalInfo: "Bangkok ",
		})
		s.NoError(err)
	})

	s.Run("keeps a known subject id", func() {
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, r *models.IdentityRecord) error {
			s.Equal("ext-7781", r.SubjectID)
			return nil
		})

		s.NoError(s.service.Register(context.Background(), models.Submission{SubjectID: "ext-7781", CitizenID: testCitizenID}))
	})

	s.Run("store failure is RegistrationFailed carrying the cause", func() {
		cause := errors.Join(sentinel.ErrUnavailable, errors.New("connection refused"))
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(cause).Times(1)

		err := s.service.Register(context.Background(), models.Submission{CitizenID: testCitizenID})
		s.requireCode(err, dErrors.CodeRegistrationFailed)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("missing citizen id never reaches the store", func() {
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Times(0)

		err := s.service.Register(context.Background(), models.Submission{Mobile: "0812345678"})
		s.requireCode(err, dErrors.CodeInvalidRequest)
	})

	s.Run("panic in the store is Internal", func() {
		s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *models.IdentityRecord) error {
			panic("boom")
		})

		err := s.service.Register(context.Background(), models.Submission{CitizenID: testCitizenID})
		s.requireCode(err, dErrors.CodeInternal)
	})
}

// =============================================================================
// Audit
// =============================================================================

func (s *ServiceSuite) TestAuditFailureDoesNotChangeOutcome() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down")).Times(1)
	s.service.auditPublisher = publisher

	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.NoError(s.service.Register(context.Background(), models.Submission{CitizenID: testCitizenID}))
}

func (s *ServiceSuite) TestAuditEventsCarryHashedSubject() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(audit.EventIdentityResolved, e.Type)
		s.Equal("new_user", e.Outcome)
		s.Equal(audit.HashSubject(testCitizenID), e.SubjectHash)
		s.NotContains(e.SubjectHash, testCitizenID)
		return nil
	})
	s.service.auditPublisher = publisher

	s.expectAuthorityAndProfile()
	s.store.EXPECT().FindByCitizenID(gomock.Any(), testCitizenID).Return(nil, sentinel.ErrNotFound)

	_, err := s.service.Resolve(context.Background(), validRequest())
	s.NoError(err)
}
