package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotLoggedIn is returned by LoadSession when no team is saved.
var ErrNotLoggedIn = errors.New("not logged in, run `glctl login`")

// Session is the team a player logged in as. The engine has no tokens, so
// only the identity is kept.
type Session struct {
	TeamCode   string    `json:"team_code"`
	Username   string    `json:"username"`
	APIBaseURL string    `json:"api_base_url"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// SessionFile is where the session lives: $GLCTL_HOME/session.json, or
// ~/.glctl/session.json when GLCTL_HOME is unset.
func SessionFile() (string, error) {
	dir := strings.TrimSpace(os.Getenv("GLCTL_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home: %w", err)
		}
		dir = filepath.Join(home, ".glctl")
	}
	return filepath.Join(dir, "session.json"), nil
}

// SaveSession replaces the saved session. The file is written beside the
// target and renamed so a crash never leaves half a session behind.
func SaveSession(s Session) error {
	s.TeamCode = strings.TrimSpace(s.TeamCode)
	if s.TeamCode == "" {
		return errors.New("session has no team code")
	}
	path, err := SessionFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "session-*.json")
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func LoadSession() (Session, error) {
	path, err := SessionFile()
	if err != nil {
		return Session{}, err
	}
	body, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Session{}, ErrNotLoggedIn
	case err != nil:
		return Session{}, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	if strings.TrimSpace(s.TeamCode) == "" {
		return Session{}, ErrNotLoggedIn
	}
	return s, nil
}

// ClearSession forgets the saved team. Clearing twice is not an error.
func ClearSession() error {
	path, err := SessionFile()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
