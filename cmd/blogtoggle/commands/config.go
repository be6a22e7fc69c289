package commands

import (
	"errors"
	"fmt"
	"os"

	"blogtoggle/internal/toggle"
	"blogtoggle/pkg/configutil"

	"dario.cat/mergo"
)

type LabelsConfig struct {
	Favorite toggle.Labels `json:"favorite"`
	Follow   toggle.Labels `json:"follow"`
}

type Config struct {
	BaseUrl  string       `json:"base_url"`
	Username string       `json:"username"`
	Password string       `json:"password"`
	Labels   LabelsConfig `json:"labels"`
}

// loadConfig reads the config file (which may be missing when every field is
// given as a flag) and applies the flag overrides.
func loadConfig() (Config, error) {
	cfg, err := configutil.ReadRecursively[Config](*configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	err = mergo.Merge(&cfg, overrides, mergo.WithOverride)
	if err != nil {
		return Config{}, err
	}

	if cfg.BaseUrl == "" {
		return Config{}, fmt.Errorf("no base_url in %s and no --base-url given", *configPath)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("username and password are required")
	}
	return cfg, nil
}
