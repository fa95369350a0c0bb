package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/maxkra/sasshost/errors"
)

// Config holds the CLI's compile defaults. Flags override whatever is
// loaded here.
type Config struct {
	// Compiler is the command that starts the compiler in embedded mode,
	// e.g. ["dart-sass-embedded"] or ["sass", "--embedded"]. Empty means
	// look one up on PATH.
	Compiler []string `yaml:"compiler"`

	LoadPaths []string `yaml:"load_paths"`
	Style     string   `yaml:"style"`
	SourceMap bool     `yaml:"source_map"`
	Quiet     bool     `yaml:"quiet"`

	// Allow restricts what the filesystem importer may serve, as
	// doublestar patterns relative to each load path.
	Allow []string `yaml:"allow"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// User-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".sasshost", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".sasshost", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

// LoadFile loads a single explicit config file, skipping the layered
// lookup.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config %s", path)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a
	// simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}
