package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key := MustRandom(KeySize)
	blob, err := Seal(key, []byte("eyJhbGciOi"), []byte("token"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(blob, []byte("eyJhbGciOi")))

	plain, err := Open(key, blob, []byte("token"))
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi", string(plain))
}

func TestOpen_WrongAdditionalData(t *testing.T) {
	key := MustRandom(KeySize)
	blob, err := Seal(key, []byte("abc"), []byte("token"))
	require.NoError(t, err)

	_, err = Open(key, blob, []byte("other"))
	assert.Error(t, err)
}

func TestOpen_ShortBlob(t *testing.T) {
	_, err := Open(MustRandom(KeySize), []byte{1, 2, 3}, nil)
	assert.EqualError(t, err, "ciphertext too short")
}

func TestSeal_BadKey(t *testing.T) {
	_, err := Seal([]byte("short"), []byte("abc"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestDeriveKey(t *testing.T) {
	master := MustRandom(KeySize)
	a, err := DeriveKey(master, InfoTokenStore)
	require.NoError(t, err)
	b, err := DeriveKey(master, InfoTokenStore)
	require.NoError(t, err)
	c, err := DeriveKey(master, "another-label")
	require.NoError(t, err)

	assert.Len(t, a, KeySize)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestReadMasterKey(t *testing.T) {
	hexKey := NewMasterKeyHex()

	t.Run("env wins", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, hexKey)
		k, err := ReadMasterKey("/does/not/exist")
		require.NoError(t, err)
		assert.Len(t, k, KeySize)
	})

	t.Run("file fallback", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "")
		path := filepath.Join(t.TempDir(), "master.key")
		require.NoError(t, os.WriteFile(path, []byte(hexKey+"\n"), 0600))
		k, err := ReadMasterKey(path)
		require.NoError(t, err)
		assert.Len(t, k, KeySize)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "")
		_, err := ReadMasterKey("")
		assert.Error(t, err)
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv(MasterKeyEnv, "abcd")
		_, err := ReadMasterKey("")
		assert.Error(t, err)
	})
}
