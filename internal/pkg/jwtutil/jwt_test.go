package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Hour, 42, "ada")
	require.NoError(t, err)

	claims, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ada", claims.Username)
	assert.Equal(t, "42", claims.Subject)
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("s3cret", time.Hour, 1, "ada")
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken("s3cret", -time.Minute, 1, "ada")
	require.NoError(t, err)

	_, err = ParseToken("s3cret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("s3cret", "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateToken_EmptySecret(t *testing.T) {
	_, err := GenerateToken("", time.Hour, 1, "ada")
	assert.Error(t, err)
}
