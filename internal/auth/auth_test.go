package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueParseRoundTrip(t *testing.T) {
	tok, err := Issue("user-1", RoleTeacher, "Ms. Rao", "classhub", "secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Value)

	claims, err := Parse(tok.Value, "secret", "classhub")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)
	assert.Equal(t, "Ms. Rao", claims.Name)
}

func TestParseWrongKey(t *testing.T) {
	tok, err := Issue("user-1", RoleStudent, "", "classhub", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(tok.Value, "other-secret", "classhub")
	assert.Error(t, err)
}

func TestParseIssuerMismatch(t *testing.T) {
	tok, err := Issue("user-1", RoleStudent, "", "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	_, err = Parse(tok.Value, "secret", "classhub")
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	tok, err := Issue("user-1", RoleStudent, "", "classhub", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = Parse(tok.Value, "secret", "classhub")
	assert.Error(t, err)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
