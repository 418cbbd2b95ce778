package crypto_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/crypto"
)

// Well-known throwaway key; never funded.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecrypt(t *testing.T) {
	blob, err := crypto.EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	got, err := crypto.DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = crypto.DecryptKey(blob, "wrong")
	assert.Error(t, err)
}

func TestKeyFileRecordsAddress(t *testing.T) {
	blob, err := crypto.EncryptKey(testKey, "pw")
	require.NoError(t, err)

	addr, err := crypto.KeyFileAddress(blob)
	require.NoError(t, err)
	assert.Equal(t, "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", addr)
}

func TestDecryptKey_TamperedAddress(t *testing.T) {
	blob, err := crypto.EncryptKey(testKey, "pw")
	require.NoError(t, err)

	var kf map[string]any
	require.NoError(t, json.Unmarshal(blob, &kf))
	kf["address"] = "0x0000000000000000000000000000000000000001"
	tampered, err := json.Marshal(kf)
	require.NoError(t, err)

	_, err = crypto.DecryptKey(tampered, "pw")
	assert.Error(t, err)
}

func TestEncryptKey_Rejects(t *testing.T) {
	_, err := crypto.EncryptKey(testKey, "")
	assert.Error(t, err)

	_, err = crypto.EncryptKey("abcd", "pw")
	assert.Error(t, err)
}

func TestLoadResolverKey(t *testing.T) {
	t.Run("raw", func(t *testing.T) {
		key, err := crypto.LoadResolverKey(crypto.KeyConfig{RawPrivateKey: "0x" + testKey})
		require.NoError(t, err)
		require.NotNil(t, key)
		assert.Equal(t, "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", key.Address)
	})

	t.Run("encrypted file", func(t *testing.T) {
		blob, err := crypto.EncryptKey(testKey, "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "key.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		key, err := crypto.LoadResolverKey(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		require.NoError(t, err)
		assert.Equal(t, "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23", key.Address)
	})

	t.Run("none configured", func(t *testing.T) {
		key, err := crypto.LoadResolverKey(crypto.KeyConfig{})
		assert.NoError(t, err)
		assert.Nil(t, key)
	})

	t.Run("bad hex", func(t *testing.T) {
		_, err := crypto.LoadResolverKey(crypto.KeyConfig{RawPrivateKey: "zz"})
		assert.Error(t, err)
	})
}
