package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "cryptox-test")
	if err != nil {
		panic(err)
	}
	SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"empty password", ""},
		{"unicode password", "пароль🔒密码"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash should be in PHC format")

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6)
			require.Equal(t, "m=19456,t=2,p=1", parts[3])
			require.NotEmpty(t, parts[4], "salt should not be empty")
			require.NotEmpty(t, parts[5], "hash should not be empty")

			require.NoError(t, VerifyPassword(tt.password, hash))
			if tt.password != "" {
				require.NotContains(t, hash, tt.password, "plaintext must not appear in the hash")
			}
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, err := HashPassword("samepassword")
	require.NoError(t, err)
	hash2, err := HashPassword("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.NoError(t, VerifyPassword("samepassword", hash1))
	require.NoError(t, VerifyPassword("samepassword", hash2))
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{
		"wrong-password",
		"Correct-Password",
		"correct-password ",
		"",
		strings.Repeat("x", 10000),
	} {
		require.ErrorIs(t, VerifyPassword(wrong, hash), ErrPasswordMismatch)
	}
}

func TestVerifyPassword_InvalidHashFormat(t *testing.T) {
	tests := []struct {
		name        string
		invalidHash string
	}{
		{"empty hash", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!invalid!!!"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"empty digest", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword("test-password", tt.invalidHash)
			require.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	require.False(t, NeedsRehash(hash))

	weaker := strings.Replace(hash, "t=2", "t=1", 1)
	require.True(t, NeedsRehash(weaker))
	require.True(t, NeedsRehash("garbage"))
}

func TestVerifyDummy(t *testing.T) {
	require.NotPanics(t, func() {
		VerifyDummy("anything")
		VerifyDummy("")
	})
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]struct{}, 50)

	for range 50 {
		password, err := GeneratePassword()
		require.NoError(t, err)
		require.Len(t, password, 12)

		for _, char := range password {
			valid := (char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9')
			require.True(t, valid, "password should only contain alphanumeric characters")
		}

		require.NotContains(t, seen, password, "duplicate password generated")
		seen[password] = struct{}{}
	}
}

func TestSetPepperPath_ChangesHashes(t *testing.T) {
	hash, err := HashPassword("peppered")
	require.NoError(t, err)

	original := GetPepper()
	dir := t.TempDir()
	SetPepperPath(filepath.Join(dir, "other-pepper"))
	t.Cleanup(func() {
		pepperMu.Lock()
		pepper = original
		pepperMu.Unlock()
	})

	require.NotEqual(t, original, GetPepper())
	require.ErrorIs(t, VerifyPassword("peppered", hash), ErrPasswordMismatch)

	data, err := os.ReadFile(filepath.Join(dir, "other-pepper"))
	require.NoError(t, err)
	require.Equal(t, GetPepper(), string(data))
}
