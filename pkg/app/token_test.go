package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := NewTokenManager(TokenConfig{SecretKey: "test-secret"})

	token, err := tm.Generate("device-a")
	require.NoError(t, err)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "device-a", claims.DeviceID)
	assert.Equal(t, DefaultTokenIssuer, claims.Issuer)

	assert.NoError(t, tm.Validate(token, "device-a"))
	assert.Error(t, tm.Validate(token, "device-b"))
}

func TestTokenManager_RejectsForeignKey(t *testing.T) {
	token, err := NewTokenManager(TokenConfig{SecretKey: "one"}).Generate("device-a")
	require.NoError(t, err)

	assert.Error(t, NewTokenManager(TokenConfig{SecretKey: "two"}).Validate(token, "device-a"))
}

func TestTokenManager_Expiry(t *testing.T) {
	tm := NewTokenManager(TokenConfig{SecretKey: "k", Expiry: -time.Hour})
	token, err := tm.Generate("device-a")
	require.NoError(t, err)
	assert.Error(t, tm.Validate(token, "device-a"))

	_, err = tm.Generate("")
	assert.Error(t, err)
}
