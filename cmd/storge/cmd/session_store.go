package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nfrund/storge/internal/auth"
)

// sessionPath is where the signed-in session token lives between runs.
func sessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".storge", "session.json"), nil
}

func saveSession(s auth.Session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// loadSession reads the stored session and rejects expired ones.
func loadSession() (auth.Session, error) {
	path, err := sessionPath()
	if err != nil {
		return auth.Session{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return auth.Session{}, fmt.Errorf("not signed in, run \"storge login\" first: %w", err)
	}
	var s auth.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return auth.Session{}, fmt.Errorf("decode stored session: %w", err)
	}
	if s.Expired() {
		return auth.Session{}, fmt.Errorf("session expired, run \"storge login\" again")
	}
	return s, nil
}

func clearSession() error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
