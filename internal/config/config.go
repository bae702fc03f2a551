// Package config loads the optional YAML configuration file of the obi
// command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfig names a configuration file that takes precedence over the
// default locations.
const EnvConfig = "OBI_CONFIG"

type Config struct {
	// Extra roots searched by mod().
	ModulePath []string `yaml:"module_path"`
	// bbolt database holding the REPL history. Empty disables persistence.
	HistoryFile        string `yaml:"history_file"`
	LogLevel           string `yaml:"log_level"`
	Prompt             string `yaml:"prompt"`
	ContinuationPrompt string `yaml:"continuation_prompt"`
}

func Default() Config {
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".obi_history.db")
	}
	return Config{
		ModulePath:         []string{},
		HistoryFile:        history,
		LogLevel:           "warn",
		Prompt:             "obi> ",
		ContinuationPrompt: "...> ",
	}
}

// Decode reads a configuration on top of the defaults. Unknown keys are an
// error.
func Decode(r io.Reader) (Config, error) {
	config := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	config.HistoryFile = expandHome(config.HistoryFile)
	for i, root := range config.ModulePath {
		config.ModulePath[i] = expandHome(root)
	}
	if _, err := config.Level(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Paths lists the locations searched when no file is given explicitly.
func Paths() []string {
	if path := os.Getenv(EnvConfig); path != "" {
		return []string{path}
	}
	var paths []string
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		paths = append(paths, filepath.Join(dir, "obi", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "obi", "config.yaml"))
	}
	return paths
}

// Load reads the file at path, or the first existing file among Paths when
// path is empty. A missing default file yields the defaults; a missing
// explicit file is an error.
func Load(path string) (Config, error) {
	if path != "" {
		return loadFile(path)
	}
	for _, candidate := range Paths() {
		config, err := loadFile(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return config, err
	}
	return Default(), nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	config, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

func (self Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(self.LogLevel)); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log_level %q", self.LogLevel)
	}
	return level, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
