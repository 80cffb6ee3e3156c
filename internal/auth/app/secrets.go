package app

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Secrets are the keys that sign and encrypt browser state. They are
// generated on first start and reused afterwards so restarts keep sessions
// and open forms valid.
type Secrets struct {
	CSRFKey        []byte
	CookieHashKey  []byte
	CookieBlockKey []byte
}

const (
	csrfKeyLength        = 32
	cookieHashKeyLength  = 64
	cookieBlockKeyLength = 32
)

// LoadSecrets reads the keys under dir, creating any that are missing.
func LoadSecrets(dir string, logger *slog.Logger) (Secrets, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return Secrets{}, fmt.Errorf("create secrets dir: %w", err)
	}

	var s Secrets
	var err error
	if s.CSRFKey, err = loadKey(filepath.Join(dir, "csrf.key"), csrfKeyLength, logger); err != nil {
		return Secrets{}, err
	}
	if s.CookieHashKey, err = loadKey(filepath.Join(dir, "cookie_hash.key"), cookieHashKeyLength, logger); err != nil {
		return Secrets{}, err
	}
	if s.CookieBlockKey, err = loadKey(filepath.Join(dir, "cookie_block.key"), cookieBlockKeyLength, logger); err != nil {
		return Secrets{}, err
	}
	return s, nil
}

// loadKey loads a key from disk. If the key does not exist, a new one is
// created and saved to disk.
func loadKey(file string, length int, logger *slog.Logger) ([]byte, error) {
	key, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("key not found; generating one", "file", file)
		key = make([]byte, length)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		if err := os.WriteFile(file, key, 0400); err != nil {
			return nil, fmt.Errorf("save %s: %w", file, err)
		}
		return key, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	if len(key) != length {
		return nil, fmt.Errorf("%s is corrupt: want %d bytes, got %d", file, length, len(key))
	}
	return key, nil
}
