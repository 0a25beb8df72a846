package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_CurrentUserID(t *testing.T) {
	id, ok := Static("alice").CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "alice", id)

	_, ok = Static("  ").CurrentUserID()
	assert.False(t, ok)
}

func TestEnvIdentity_CurrentUserID(t *testing.T) {
	t.Setenv(EnvUserID, "bob")

	id, ok := EnvIdentity{}.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "bob", id)

	t.Setenv(EnvUserID, "")
	_, ok = EnvIdentity{}.CurrentUserID()
	assert.False(t, ok)
}

func TestChain_FirstPresentWins(t *testing.T) {
	t.Setenv(EnvUserID, "")

	chain := Chain{Static(""), nil, EnvIdentity{}, Static("carol"), Static("dave")}
	id, ok := chain.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, "carol", id)

	_, ok = Chain{}.CurrentUserID()
	assert.False(t, ok)
}

func TestRequireUser(t *testing.T) {
	id, err := RequireUser(Static("alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", id)

	_, err = RequireUser(Static(""))
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Contains(t, err.Error(), EnvUserID)
}

func TestEnvProvider_GetToken_Success(t *testing.T) {
	expectedToken := "pulse_test_token_123"
	t.Setenv(EnvToken, expectedToken)

	provider := &EnvProvider{}
	token, err := provider.GetToken()

	require.NoError(t, err)
	assert.Equal(t, expectedToken, token)
}

func TestEnvProvider_GetToken_Missing(t *testing.T) {
	t.Setenv(EnvToken, "")

	provider := &EnvProvider{}
	token, err := provider.GetToken()

	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), EnvToken)
}

func TestFileProvider_GetToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  secret\n"), 0o600))

	token, err := (&FileProvider{Path: path}).GetToken()
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	_, err = (&FileProvider{}).GetToken()
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = (&FileProvider{Path: empty}).GetToken()
	assert.ErrorContains(t, err, "empty")
}

func TestGetToken_FallbackToEnv(t *testing.T) {
	t.Setenv(EnvToken, "from-env")

	token, err := GetToken(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
}

func TestGetToken_BothFail(t *testing.T) {
	t.Setenv(EnvToken, "")

	_, err := GetToken(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token file")

	_, err = GetToken("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvToken)
}

func TestProviders_Interface(t *testing.T) {
	var _ TokenProvider = &EnvProvider{}
	var _ TokenProvider = &FileProvider{}
	var _ IdentityProvider = Static("")
	var _ IdentityProvider = EnvIdentity{}
	var _ IdentityProvider = Chain{}
}
