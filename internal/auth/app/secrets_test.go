package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestLoadSecrets_GeneratesThenReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")

	first, err := LoadSecrets(dir, slogx.Discard())
	require.NoError(t, err)
	require.Len(t, first.CSRFKey, csrfKeyLength)
	require.Len(t, first.CookieHashKey, cookieHashKeyLength)
	require.Len(t, first.CookieBlockKey, cookieBlockKeyLength)

	second, err := LoadSecrets(dir, slogx.Discard())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestLoadSecrets_RejectsCorruptKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "csrf.key"), []byte("short"), 0600))

	_, err := LoadSecrets(dir, slogx.Discard())
	require.ErrorContains(t, err, "corrupt")
}
