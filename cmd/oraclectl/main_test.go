package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/crypto"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.toml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"encrypt-key", "resolve", "recent", "leaderboard", "migrate", "reconcile", "archives", "audit", "config"})
}

func TestEncryptKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")

	out, err := run(t, "encrypt-key", "--key", "0x"+testKey, "--password", "hunter2", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := crypto.DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptKeyRequiresKey(t *testing.T) {
	t.Setenv("ORACLE_LEDGER_PRIVATE_KEY", "")
	_, err := run(t, "encrypt-key", "--password", "pw", "-o", filepath.Join(t.TempDir(), "k.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no private key")
}

func TestResolveRequiresMarket(t *testing.T) {
	_, err := run(t, "resolve", "--feed", "BTC", "--threshold", "50000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--market")
}

func TestLeaderboardRejectsUnknownSort(t *testing.T) {
	_, err := run(t, "leaderboard", "--sort", "luck")
	assert.Error(t, err)
}

func TestTruncateAndShortAddress(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "0x2c75…5c23", shortAddress("0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"))
	assert.Equal(t, "0xabc", shortAddress("0xabc"))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "16.0 MiB", humanBytes(16<<20))
}

func TestConfigMasksSecrets(t *testing.T) {
	t.Setenv("ORACLE_LEDGER_PRIVATE_KEY", "0x"+testKey)
	out, err := run(t, "config", "--validate")
	require.NoError(t, err)
	assert.Contains(t, out, `private_key = "***"`)
	assert.NotContains(t, out, testKey)
	assert.Contains(t, out, "[ledger]")
}
