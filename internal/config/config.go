package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultHistoryCap is the number of undo records retained per conversation.
const DefaultHistoryCap = 10

// DefaultMaxBackupBytes is the size at which a file is no longer snapshotted (100 MiB).
const DefaultMaxBackupBytes int64 = 100 * 1024 * 1024

// NoBackupCeiling disables the snapshot size ceiling. Zero means unset.
const NoBackupCeiling int64 = -1

// DefaultStateDir is the state directory, resolved against the working directory at call time.
const DefaultStateDir = ".kuse"

// Config holds application configuration.
type Config struct {
	// HistoryCap is the maximum number of undo records kept per conversation.
	// Pushing past the cap evicts the oldest record.
	HistoryCap int `json:"history_cap" yaml:"history_cap" envconfig:"HISTORY_CAP"`

	// MaxBackupBytes is the snapshot ceiling. Files at or above it are overwritten
	// without undo coverage. NoBackupCeiling (-1) removes the ceiling.
	MaxBackupBytes int64 `json:"max_backup_bytes" yaml:"max_backup_bytes" envconfig:"MAX_BACKUP_BYTES"`

	// StateDir holds backups/ and trash/. A relative value is joined with the
	// process working directory each time it is used, not once at startup.
	StateDir string `json:"state_dir,omitempty" yaml:"state_dir,omitempty" envconfig:"STATE_DIR"`

	// ProjectRoot anchors relative tool paths. Empty means the working directory.
	ProjectRoot string `json:"project_root,omitempty" yaml:"project_root,omitempty" envconfig:"PROJECT_ROOT"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty" envconfig:"DISABLED_TOOLS"`

	// DisabledTypes is a list of tool type prefixes to disable entirely.
	// Known types: "file", "undo", "journal".
	DisabledTypes []string `json:"disabled_types,omitempty" yaml:"disabled_types,omitempty" envconfig:"DISABLED_TYPES"`

	// JournalDisabled turns off the SQLite audit journal.
	JournalDisabled bool `json:"journal_disabled,omitempty" yaml:"journal_disabled,omitempty" envconfig:"JOURNAL_DISABLED"`

	// Debug lowers the log level and enables the file log.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty" envconfig:"DEBUG"`

	// WebAddr starts the dashboard next to the MCP server when non-empty.
	WebAddr string `json:"web_addr,omitempty" yaml:"web_addr,omitempty" envconfig:"WEB_ADDR"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		HistoryCap:     DefaultHistoryCap,
		MaxBackupBytes: DefaultMaxBackupBytes,
		StateDir:       DefaultStateDir,
	}
}

// configNames are the file names probed in a config directory, in order.
var configNames = []string{"config.json", "config.yaml", "config.yml"}

// Load loads configuration from baseDir/config.{json,yaml,yml}.
// Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.kuse.
func Load(baseDir string) (*Config, error) {
	return loadFile(findConfigFile(baseDir))
}

// LoadWithRepo loads configuration from the global dir, the nearest repo .kuse
// directory above startDir, a .env file in startDir, and KUSE_* environment
// variables, in increasing order of precedence.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(findConfigFile(globalDir))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)

	// .env is optional; an existing variable is never overwritten by it
	_ = godotenv.Load(filepath.Join(startDir, ".env"))

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with KUSE_* environment variables.
func ApplyEnv(cfg *Config) error {
	env := &Config{}
	if err := envconfig.Process("KUSE", env); err != nil {
		return fmt.Errorf("failed to process env vars: %w", err)
	}
	*cfg = *Merge(cfg, env)
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .kuse config file.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		if path := findConfigFile(filepath.Join(dir, ".kuse")); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// findConfigFile returns the first existing config file in dir, or "".
func findConfigFile(dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or missing (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.HistoryCap = overlay.HistoryCap
	if result.HistoryCap == 0 {
		result.HistoryCap = base.HistoryCap
	}

	result.MaxBackupBytes = overlay.MaxBackupBytes
	if result.MaxBackupBytes == 0 {
		result.MaxBackupBytes = base.MaxBackupBytes
	}

	result.StateDir = firstNonEmpty(overlay.StateDir, base.StateDir)
	result.ProjectRoot = firstNonEmpty(overlay.ProjectRoot, base.ProjectRoot)
	result.WebAddr = firstNonEmpty(overlay.WebAddr, base.WebAddr)

	// Booleans: overlay wins if true, else base
	result.JournalDisabled = base.JournalDisabled || overlay.JournalDisabled
	result.Debug = base.Debug || overlay.Debug

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// Validate rejects values the undo manager cannot work with.
func (c *Config) Validate() error {
	if c.HistoryCap < 1 {
		return fmt.Errorf("history_cap must be at least 1, got %d", c.HistoryCap)
	}
	if c.MaxBackupBytes < NoBackupCeiling {
		return fmt.Errorf("max_backup_bytes must be -1 (no ceiling) or positive, got %d", c.MaxBackupBytes)
	}
	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("state_dir must not be empty")
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
