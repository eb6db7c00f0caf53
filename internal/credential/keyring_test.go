package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileKeyring(t *testing.T) *Keyring {
	t.Helper()
	return &Keyring{Backends: []keyring.BackendType{keyring.FileBackend}, FileDir: t.TempDir()}
}

func TestKeyring_SetGetDelete(t *testing.T) {
	k := fileKeyring(t)

	require.NoError(t, k.Set(TokenKey, "s3cret"))
	got, err := k.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	require.NoError(t, k.Delete(TokenKey))
	_, err = k.Get(TokenKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyring_TokenPrecedence(t *testing.T) {
	k := fileKeyring(t)
	t.Setenv(tokenEnv, "")

	token, err := k.Token("")
	require.NoError(t, err)
	assert.Empty(t, token, "missing entry is not an error")

	require.NoError(t, k.Set(TokenKey, "from-keyring"))
	token, err = k.Token("")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", token)

	t.Setenv(tokenEnv, "from-env")
	token, err = k.Token("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)

	token, err = k.Token("explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", token)
}
