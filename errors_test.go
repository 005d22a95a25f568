package identity_test

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/pulseboard/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestErrorProbes(t *testing.T) {
	tests := []struct {
		name     string
		probe    func(error) bool
		err      error
		expected bool
	}{
		{
			name:     "token expired matches",
			probe:    identity.IsTokenExpiredError,
			err:      identity.ErrTokenExpired,
			expected: true,
		},
		{
			name:     "token expired rejects other codes",
			probe:    identity.IsTokenExpiredError,
			err:      identity.ErrTokenInvalid,
			expected: false,
		},
		{
			name:     "token invalid matches",
			probe:    identity.IsTokenInvalidError,
			err:      identity.ErrTokenInvalid,
			expected: true,
		},
		{
			name:     "code expired matches",
			probe:    identity.IsCodeExpiredError,
			err:      identity.ErrCodeExpired,
			expected: true,
		},
		{
			name:     "attempts exhausted matches",
			probe:    identity.IsAttemptsExhaustedError,
			err:      identity.ErrAttemptsExhausted,
			expected: true,
		},
		{
			name:     "user banned matches",
			probe:    identity.IsUserBannedError,
			err:      identity.ErrUserBanned,
			expected: true,
		},
		{
			name:     "plain errors never match",
			probe:    identity.IsTokenExpiredError,
			err:      errors.New("token is expired"),
			expected: false,
		},
		{
			name:     "nil never matches",
			probe:    identity.IsUserBannedError,
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.probe(tt.err))
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("text codes are stable", func(t *testing.T) {
		assert.Equal(t, identity.TextCodeSSONotConfigured, identity.ErrSSONotConfigured.TextCode)
		assert.Equal(t, identity.TextCodeTokenExpired, identity.ErrTokenExpired.TextCode)
		assert.Equal(t, identity.TextCodeTokenInvalid, identity.ErrTokenInvalid.TextCode)
		assert.Equal(t, identity.TextCodeCodeExpired, identity.ErrCodeExpired.TextCode)
		assert.Equal(t, identity.TextCodeCodeInvalid, identity.ErrInvalidCode.TextCode)
		assert.Equal(t, identity.TextCodeAttemptsExhausted, identity.ErrAttemptsExhausted.TextCode)
		assert.Equal(t, identity.TextCodeUserBanned, identity.ErrUserBanned.TextCode)
	})

	t.Run("misconfiguration is an operation error", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryOperation, identity.ErrSSONotConfigured.Category)
		assert.Equal(t, goerrors.CodeConflict, identity.ErrSSONotConfigured.Code)
	})

	t.Run("ban is an authorization error", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuthz, identity.ErrUserBanned.Category)
		assert.Equal(t, goerrors.CodeForbidden, identity.ErrUserBanned.Code)
	})
}
