package handler

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtoken/internal/upstream"
	dErrors "mtoken/pkg/domain-errors"
)

func TestLoginRequestValidate(t *testing.T) {
	t.Run("trims and resolves canonical names", func(t *testing.T) {
		req := LoginRequest{AppID: " MY_APP ", MToken: "\tabc123\n"}
		require.NoError(t, req.Validate())
		model := req.ToModel()
		assert.Equal(t, "MY_APP", model.ApplicationID)
		assert.Equal(t, "abc123", model.IdentityToken)
	})

	t.Run("blank token is missing data", func(t *testing.T) {
		req := LoginRequest{AppID: "MY_APP", MToken: "   "}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequest))
		assert.Equal(t, "Missing Data", dErrors.MessageOf(err))
	})

	t.Run("oversized token", func(t *testing.T) {
		req := LoginRequest{AppID: "MY_APP", MToken: strings.Repeat("x", 4097)}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestRegisterRequestValidate(t *testing.T) {
	t.Run("camel case preferred over snake case", func(t *testing.T) {
		var req RegisterRequest
		body := `{"citizenId":"c-1","citizen_id":"c-2","last_name":"ใจดี","notification":1}`
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		require.NoError(t, req.Validate())

		sub := req.ToModel()
		assert.Equal(t, "c-1", sub.CitizenID)
		assert.Equal(t, "ใจดี", sub.LastName)
		assert.Equal(t, "1", sub.Notification)
	})

	t.Run("null notification is empty", func(t *testing.T) {
		var req RegisterRequest
		require.NoError(t, json.Unmarshal([]byte(`{"citizenId":"c-1","notification":null}`), &req))
		require.NoError(t, req.Validate())
		assert.Empty(t, req.ToModel().Notification)
	})

	t.Run("length is counted in characters", func(t *testing.T) {
		req := RegisterRequest{CitizenID: "c-1", FirstName: strings.Repeat("ก", 255)}
		assert.NoError(t, req.Validate())
	})

	t.Run("notification column limit", func(t *testing.T) {
		req := RegisterRequest{CitizenID: "c-1", Notification: upstream.FlexibleText(strings.Repeat("y", 51))}
		err := req.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Contains(t, dErrors.MessageOf(err), "notification")
	})
}
