package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/rpcgate/internal/session"
	"github.com/pelletier/go-toml/v2"
)

// UsersConfig is the password store and access control file.
type UsersConfig struct {
	Users []UserConfig `toml:"users"`
}

type UserConfig struct {
	Username     string        `toml:"username"`
	PasswordHash string        `toml:"password_hash"`
	Grants       []GrantConfig `toml:"grants"`
}

type GrantConfig struct {
	Scope      string `toml:"scope"`
	Object     string `toml:"object"`
	Method     string `toml:"method"`
	Permission string `toml:"permission"`
}

func LoadUsersConfig(path string) (UsersConfig, error) {
	var cfg UsersConfig
	if err := loadToml(path, &cfg); err != nil {
		return UsersConfig{}, err
	}
	if err := ValidateUsersConfig(cfg); err != nil {
		return UsersConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// LoadUsers reads and validates a users file and converts it for the
// session manager.
func LoadUsers(path string) ([]*session.User, error) {
	cfg, err := LoadUsersConfig(path)
	if err != nil {
		return nil, err
	}
	return SessionUsers(cfg)
}

// SaveUsersConfig writes cfg atomically enough for a single operator tool.
func SaveUsersConfig(path string, cfg UsersConfig) error {
	if err := ValidateUsersConfig(cfg); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("config write failed (%s): %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config write failed (%s): %w", path, err)
	}
	return nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateUsersConfig(cfg UsersConfig) error {
	seen := make(map[string]struct{}, len(cfg.Users))
	for i, u := range cfg.Users {
		if err := ValidateUserEntry(u); err != nil {
			return fmt.Errorf("user[%d] invalid: %w", i, err)
		}
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("user[%d] invalid: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = struct{}{}
	}
	return nil
}

func ValidateUserEntry(u UserConfig) error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("password_hash is required")
	}
	if _, err := hex.DecodeString(u.PasswordHash); err != nil {
		return fmt.Errorf("password_hash must be hex: %w", err)
	}
	for j, g := range u.Grants {
		if _, err := session.ParseLevel(g.Permission); err != nil {
			return fmt.Errorf("grant[%d]: %w", j, err)
		}
	}
	return nil
}
