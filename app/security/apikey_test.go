package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRoundTrip(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	assert.NotEqual(t, key, hash)

	assert.NoError(t, VerifyAPIKey(hash, key))
	assert.ErrorIs(t, VerifyAPIKey(hash, key+"x"), ErrInvalidAPIKey)
	assert.ErrorIs(t, VerifyAPIKey(hash, ""), ErrInvalidAPIKey)
}

func TestVerifyAPIKey_EmptyHashDisablesAuth(t *testing.T) {
	assert.NoError(t, VerifyAPIKey("", ""))
	assert.NoError(t, VerifyAPIKey("", "anything"))
}

func TestHashAPIKey_RejectsEmpty(t *testing.T) {
	_, err := HashAPIKey("")
	assert.Error(t, err)
}
