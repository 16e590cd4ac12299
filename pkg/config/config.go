package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mattn/go-isatty"
)

// Config is the tool's own preferences file; identity and repository
// behavior stay in git config where they belong.
type Config struct {
	// Color: "auto", "always" or "never".
	Color string `toml:"color"`
	Log   Log    `toml:"log"`
}

type Log struct {
	// Level: logrus level name for diagnostic output.
	Level string `toml:"level"`
}

func defaults() *Config {
	return &Config{Color: "auto", Log: Log{Level: "warning"}}
}

// Path returns the preferences file location under the user config dir.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stackform", "config.toml"), nil
}

// Load reads the preferences file; a missing file yields defaults.
func Load() (*Config, error) {
	cfg := defaults()
	p, err := Path()
	if err != nil {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(p, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// ColorEnabled resolves the color mode against the given stream.
func (c *Config) ColorEnabled(fd uintptr) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	}
	return isatty.IsTerminal(fd)
}
