package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the promptctx home directory.
	DefaultDirName = ".promptctx"

	// PromptsDirName is the subdirectory searched for local prompt files.
	PromptsDirName = "prompts"

	// ReportsDirName is the subdirectory for exported composition reports.
	ReportsDirName = "reports"

	// LogsDirName is the subdirectory for rotated log files.
	LogsDirName = "logs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the default sqlite database file name.
	DatabaseFileName = "promptctx.db"
)

// Dir represents the promptctx home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.promptctx).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path to the default sqlite database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// PromptsDir returns the home prompt directory, searched after the
// configured search directories.
func (d *Dir) PromptsDir() string {
	return filepath.Join(d.path, PromptsDirName)
}

// ReportsDir returns the directory for composition reports.
func (d *Dir) ReportsDir() string {
	return filepath.Join(d.path, ReportsDirName)
}

// ReportPath returns the default report path for a prompt.
func (d *Dir) ReportPath(promptName string) string {
	return filepath.Join(d.ReportsDir(), promptName+".md")
}

// LogPath returns the default log file path.
func (d *Dir) LogPath() string {
	return filepath.Join(d.path, LogsDirName, "promptctx.log")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.PromptsDir(), d.ReportsDir(), filepath.Dir(d.LogPath())} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
