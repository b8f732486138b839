package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("alice")
	require.NoError(t, err)
	assert.Contains(t, token, "Bearer ")

	username, err := ParseJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestParseJWTRejectsGarbage(t *testing.T) {
	_, err := ParseJWT("Bearer not.a.token")
	assert.Error(t, err)

	_, err = ParseJWT("")
	assert.Error(t, err)
}
