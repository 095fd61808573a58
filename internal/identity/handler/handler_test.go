package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mtoken/internal/identity/handler/mocks"
	"mtoken/internal/identity/models"
	"mtoken/internal/platform/middleware"
	dErrors "mtoken/pkg/domain-errors"
	"mtoken/pkg/requestcontext"
	"mtoken/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.setup()
}

func (s *HandlerSuite) SetupSubTest() {
	s.setup()
}

func (s *HandlerSuite) setup() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.router = chi.NewRouter()
	s.router.MethodNotAllowed(middleware.MethodNotAllowed)
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

// =============================================================================
// Login
// =============================================================================

func (s *HandlerSuite) TestLoginNewUser() {
	s.service.EXPECT().
		Resolve(gomock.Any(), models.ResolveRequest{ApplicationID: "MY_APP", IdentityToken: "abc123"}).
		Return(models.NewDraft(&models.ExternalProfile{
			SubjectID: "ext-7781",
			CitizenID: "1-2345-67890-12-3",
			FirstName: "สมชาย",
			Mobile:    "0899999999",
		}), nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", map[string]string{
		"appId":  "MY_APP",
		"mToken": "abc123",
	})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	env := testutil.DecodeEnvelope(s.T(), rr)
	s.Equal("new_user", env.Status)
	s.Equal(MessageNewUser, env.Message)
	data := testutil.DecodeData[map[string]string](s.T(), env)
	s.Equal("1-2345-67890-12-3", data["citizenId"])
	s.Equal("สมชาย", data["firstName"])
	s.Equal("", data["mobile"])
}

func (s *HandlerSuite) TestLoginFound() {
	s.service.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(models.NewFound(&models.IdentityRecord{
		SubjectID:      "subject-1",
		CitizenID:      "1-2345-67890-12-3",
		Mobile:         "0812345678",
		AdditionalInfo: "Bangkok",
		CreatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}), nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", map[string]string{
		"appId":  "MY_APP",
		"mToken": "abc123",
	})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	env := testutil.DecodeEnvelope(s.T(), rr)
	s.Equal("found", env.Status)
	s.Equal(MessageFound, env.Message)
	data := testutil.DecodeData[map[string]string](s.T(), env)
	s.Equal("0812345678", data["mobile"])
	s.Equal("Bangkok", data["additionalInfo"])
	s.Equal("2025-01-01T00:00:00Z", data["createdAt"])
}

func (s *HandlerSuite) TestLoginAliases() {
	cases := []struct {
		name string
		body map[string]string
	}{
		{"long names", map[string]string{"applicationId": "MY_APP", "identityToken": "abc123"}},
		{"snake case", map[string]string{"app_id": "MY_APP", "m_token": "abc123"}},
		{"canonical wins over alias", map[string]string{"appId": "MY_APP", "app_id": "OTHER", "mToken": "abc123", "m_token": "stale"}},
		{"blank canonical falls through", map[string]string{"appId": "  ", "app_id": "MY_APP", "mToken": "abc123"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().
				Resolve(gomock.Any(), models.ResolveRequest{ApplicationID: "MY_APP", IdentityToken: "abc123"}).
				Return(models.NewDraft(&models.ExternalProfile{CitizenID: "c-1"}), nil)

			rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", tc.body))
			testutil.AssertStatus(s.T(), rr, http.StatusOK)
		})
	}
}

func (s *HandlerSuite) TestLoginMissingData() {
	s.service.EXPECT().Resolve(gomock.Any(), gomock.Any()).Times(0)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", map[string]string{"appId": "MY_APP"})
	rr := testutil.DoRequest(s.router, req)

	env := testutil.AssertErrorEnvelope(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidRequest))
	s.Equal("Missing Data", env.Message)
}

func (s *HandlerSuite) TestEmptyBodyIsMissingData() {
	s.service.EXPECT().Resolve(gomock.Any(), gomock.Any()).Times(0)
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

	for _, path := range []string{"/api/auth/login", "/api/user/register"} {
		s.Run(path, func() {
			rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, path, ""))
			env := testutil.AssertErrorEnvelope(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidRequest))
			s.Equal("Missing Data", env.Message)
		})
	}
}

func (s *HandlerSuite) TestLoginErrorMapping() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"authority", dErrors.Wrap(errors.New("dial"), dErrors.CodeAuthorityUnavailable, "authority unavailable"), http.StatusBadGateway},
		{"profile", dErrors.New(dErrors.CodeProfileUnavailable, "profile authority unavailable"), http.StatusBadGateway},
		{"rejected", dErrors.New(dErrors.CodeProfileRejected, "Govt API returned NULL (Token Expired or Invalid)"), http.StatusUnauthorized},
		{"store", dErrors.New(dErrors.CodeStoreUnavailable, "identity store unavailable"), http.StatusServiceUnavailable},
		{"internal", dErrors.New(dErrors.CodeInternal, "unexpected failure during store_lookup"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().Resolve(gomock.Any(), gomock.Any()).Return(nil, tc.err)

			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/auth/login", map[string]string{"appId": "MY_APP", "mToken": "abc123"})
			rr := testutil.DoRequest(s.router, req)

			env := testutil.AssertErrorEnvelope(s.T(), rr, tc.status, string(dErrors.CodeOf(tc.err)))
			s.NotContains(env.Message, "dial", "causes are never exposed")
		})
	}
}

func (s *HandlerSuite) TestMalformedBody() {
	s.service.EXPECT().Resolve(gomock.Any(), gomock.Any()).Times(0)

	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/auth/login", `{"appId":`))
	testutil.AssertErrorEnvelope(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestMethodNotAllowed() {
	for _, path := range []string{"/api/auth/login", "/api/user/register"} {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, path, nil))
		env := testutil.AssertErrorEnvelope(s.T(), rr, http.StatusMethodNotAllowed, string(dErrors.CodeMethodNotAllowed))
		s.Equal("Method Not Allowed", env.Message)
	}
}

// =============================================================================
// Register
// =============================================================================

func (s *HandlerSuite) TestRegisterSuccess() {
	s.service.EXPECT().Register(gomock.Any(), models.Submission{
		CitizenID:      "1-2345-67890-12-3",
		FirstName:      "สมชาย",
		DateOfBirth:    "01/01/2530",
		Notification:   "true",
		Mobile:         "0812345678",
		AdditionalInfo: "Bangkok",
	}).Return(nil)

	body := `{
		"citizenId": "1-2345-67890-12-3",
		"first_name": "สมชาย",
		"dateOfBirthString": "01/01/2530",
		"notification": true,
		"mobile": "0812345678",
		"additional_info": "Bangkok"
	}`
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/api/user/register", body))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	env := testutil.DecodeEnvelope(s.T(), rr)
	s.Equal("success", env.Status)
	s.Equal(MessageRegistered, env.Message)
}

func (s *HandlerSuite) TestRegisterFailure() {
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeRegistrationFailed, "registration failed"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/user/register", map[string]string{"citizenId": "c-1"})
	rr := testutil.DoRequest(s.router, req)

	env := testutil.AssertErrorEnvelope(s.T(), rr, http.StatusInternalServerError, string(dErrors.CodeRegistrationFailed))
	s.NotContains(env.Message, "connection refused")
}

func (s *HandlerSuite) TestRegisterValidation() {
	s.Run("missing citizen id", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/user/register", map[string]string{"mobile": "0812345678"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertErrorEnvelope(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidRequest))
	})

	s.Run("oversized field", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/user/register", map[string]string{
			"citizenId": "c-1",
			"mobile":    strings.Repeat("9", 256),
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertErrorEnvelope(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestServiceReceivesRequestContext() {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s.service.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ models.Submission) error {
		s.Equal("req-42", requestcontext.RequestID(ctx))
		s.Equal(now, requestcontext.Now(ctx))
		return nil
	})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/user/register", map[string]string{"citizenId": "c-1"})
	req = testutil.WithTime(testutil.WithRequestID(req, "req-42"), now)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}
