package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/circuitd/circuitd/internal/auth"
)

func newTestService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenConfig{
		SigningKey: "test-signing-key",
		Issuer:     "circuitd",
		Audience:   "circuitd-admin",
	})
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestService()

	token, expiresAt, err := svc.Generate("ops@example.com", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	operator, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", operator)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := newTestService()

	token, _, err := svc.Generate("ops@example.com", -time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenService_RejectsWrongKey(t *testing.T) {
	token, _, err := newTestService().Generate("ops@example.com", time.Hour)
	require.NoError(t, err)

	other := auth.NewTokenService(auth.TokenConfig{
		SigningKey: "different-key",
		Issuer:     "circuitd",
		Audience:   "circuitd-admin",
	})
	_, err = other.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	_, err := newTestService().Validate("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
