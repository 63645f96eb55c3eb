package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrGeneratePepper reads the pepper stored at path, creating the file with
// a fresh random value when it does not exist yet.
func LoadOrGeneratePepper(path string) (string, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}

	b, err := os.ReadFile(path)
	if err == nil {
		pepper := strings.TrimSpace(string(b))
		if pepper == "" {
			return "", errors.New("cryptox: pepper file is empty")
		}
		return pepper, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	pepper := base64.RawURLEncoding.EncodeToString(buf)

	if err := os.WriteFile(path, []byte(pepper), 0600); err != nil {
		return "", err
	}
	return pepper, nil
}
