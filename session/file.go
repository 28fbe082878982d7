package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type fileState struct {
	Profile struct {
		ID                     string  `yaml:"id"`
		FullName               string  `yaml:"full_name"`
		Role                   string  `yaml:"role"`
		CompanyID              *string `yaml:"company_id,omitempty"`
		AvatarURL              string  `yaml:"avatar_url,omitempty"`
		XPPoints               int64   `yaml:"xp_points"`
		RequiresPasswordChange bool    `yaml:"requires_password_change"`
	} `yaml:"profile"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token,omitempty"`
	ExpiresAt    time.Time `yaml:"expires_at,omitempty"`
}

// Save writes a signed-in state to path (mode 0600). Any other state removes
// the file.
func Save(path string, s State) error {
	if s.Status != SignedIn || s.Profile == nil || s.Tokens == nil {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	var f fileState
	p := s.Profile
	f.Profile.ID, f.Profile.FullName, f.Profile.Role = p.ID, p.FullName, p.Role
	f.Profile.CompanyID, f.Profile.AvatarURL = p.CompanyID, p.AvatarURL
	f.Profile.XPPoints, f.Profile.RequiresPasswordChange = p.XPPoints, p.RequiresPasswordChange
	f.AccessToken, f.RefreshToken, f.ExpiresAt = s.Tokens.AccessToken, s.Tokens.RefreshToken, s.Tokens.ExpiresAt

	raw, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Load reads a state written by Save. A missing file is a signed-out state.
func Load(path string) (State, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var f fileState
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return State{}, fmt.Errorf("decode session %s: %w", path, err)
	}
	if f.AccessToken == "" {
		return State{}, nil
	}
	p := Profile{
		ID:                     f.Profile.ID,
		FullName:               f.Profile.FullName,
		Role:                   f.Profile.Role,
		CompanyID:              f.Profile.CompanyID,
		AvatarURL:              f.Profile.AvatarURL,
		XPPoints:               f.Profile.XPPoints,
		RequiresPasswordChange: f.Profile.RequiresPasswordChange,
	}
	tok := Tokens{AccessToken: f.AccessToken, RefreshToken: f.RefreshToken, ExpiresAt: f.ExpiresAt}
	return State{Status: SignedIn, Profile: &p, Tokens: &tok}, nil
}

// DefaultPath is where the CLI keeps its session.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ecodigital", "session.yaml"), nil
}
