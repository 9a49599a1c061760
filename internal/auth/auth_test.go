package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := NewService("test-secret")
	svc.users["alice"] = &User{
		Username:     "alice",
		PasswordHash: hashFor(t, "s3cret"),
		Role:         RoleOperator,
	}

	user, token, err := svc.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, user.Role)
	require.NotEmpty(t, token)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.Equal(t, "alice", claims.Subject)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := NewService("test-secret")
	svc.users["alice"] = &User{
		Username:     "alice",
		PasswordHash: hashFor(t, "s3cret"),
		Role:         RoleAdmin,
	}

	_, _, err := svc.Authenticate("alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Authenticate("nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a")
	issuer.users["alice"] = &User{
		Username:     "alice",
		PasswordHash: hashFor(t, "s3cret"),
		Role:         RoleReadOnly,
	}
	_, token, err := issuer.Authenticate("alice", "s3cret")
	require.NoError(t, err)

	verifier := NewService("secret-b")
	_, err = verifier.ParseToken(token)
	assert.Error(t, err)
}

func TestLoadUsers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	content := `users:
  - username: alice
    password_hash: "` + hashFor(t, "pw") + `"
    role: admin
  - username: ""
    password_hash: "ignored"
    role: operator
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	svc := NewService("test-secret")
	n, err := svc.LoadUsers(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "entries without a username are skipped")

	_, _, err = svc.Authenticate("alice", "pw")
	assert.NoError(t, err)
}

func TestLoadUsersCountsPerCall(t *testing.T) {
	dir := t.TempDir()
	svc := NewService("test-secret")

	first := filepath.Join(dir, "first.yaml")
	require.NoError(t, os.WriteFile(first, []byte(
		"users:\n  - username: alice\n    password_hash: \""+hashFor(t, "pw")+"\"\n    role: admin\n"), 0o600))
	n, err := svc.LoadUsers(first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second file reports its own entries, not the cumulative table size.
	second := filepath.Join(dir, "second.yaml")
	require.NoError(t, os.WriteFile(second, []byte(
		"users:\n  - username: bob\n    password_hash: \""+hashFor(t, "pw")+"\"\n    role: operator\n"), 0o600))
	n, err = svc.LoadUsers(second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = svc.Authenticate("alice", "pw")
	assert.NoError(t, err)
	_, _, err = svc.Authenticate("bob", "pw")
	assert.NoError(t, err)
}

func TestLoadUsersMissingFile(t *testing.T) {
	svc := NewService("test-secret")
	n, err := svc.LoadUsers(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
