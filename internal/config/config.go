// Package config holds the TOML configuration for the moderation daemon.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon's full configuration.
type Config struct {
	// GroupURL is the group's member-requests moderation page.
	GroupURL string `toml:"group_url"`

	// BaseDir anchors all relative state: decision cache, artifacts, keys,
	// session, logs.
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`

	// PollIntervalMinutes is the base delay between scan passes.
	// JitterFraction widens it randomly in both directions; the realized
	// delay never drops below one minute.
	PollIntervalMinutes int     `toml:"poll_interval_minutes"`
	JitterFraction      float64 `toml:"jitter_fraction"`

	// WorkingHoursStart and WorkingHoursEnd bound the daily scanning window
	// (local time, whole hours). Outside the window the browser is closed
	// and scanning sleeps.
	WorkingHoursStart int `toml:"working_hours_start"`
	WorkingHoursEnd   int `toml:"working_hours_end"`

	// HashThreshold is the maximum Hamming distance at which two card
	// fingerprints are considered the same applicant. 0 disables
	// fingerprint matching.
	HashThreshold int `toml:"hash_threshold"`

	// CleanupHours is the retention for undecided and unexecuted records
	// and for archived artifacts.
	CleanupHours int `toml:"cleanup_hours"`

	Browser    BrowserConfig    `toml:"browser"`
	OCR        OCRConfig        `toml:"ocr"`
	Store      StoreConfig      `toml:"store"`
	Artifacts  ArtifactConfig   `toml:"artifacts"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	Headless    bool   `toml:"headless"`
	ExecPath    string `toml:"exec_path,omitempty"`
	UserAgent   string `toml:"user_agent,omitempty"`
	Width       int    `toml:"width,omitempty"`
	Height      int    `toml:"height,omitempty"`
	SessionPath string `toml:"session_path,omitempty"`
}

// OCRConfig selects and tunes the text recognizer.
type OCRConfig struct {
	Type          string  `toml:"type"`                // "tesseract" (default) or "stub"
	Languages     string  `toml:"languages,omitempty"` // "ita+eng" style list
	MinConfidence float64 `toml:"min_confidence,omitempty"`
}

// StoreConfig selects the decision cache backend. This uses a tagged union
// pattern: the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"`           // "json" (default), "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // backend file location
}

// ArtifactConfig selects the image archive backend. Tagged union on Type.
type ArtifactConfig struct {
	Type string `toml:"type"` // "filesystem" (default), "s3" or "memory"

	// Filesystem-specific.
	Dir string `toml:"dir,omitempty"`

	// S3-specific.
	Bucket          string `toml:"bucket,omitempty"`
	Prefix          string `toml:"prefix,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// TelegramConfig identifies the bot and the single operator chat.
type TelegramConfig struct {
	Token  string `toml:"token"`
	ChatID int64  `toml:"chat_id"`
}

// EncryptionConfig holds paths to the age key pair protecting the saved
// browser session.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a Config with defaults anchored at baseDir.
func NewConfig(groupURL, baseDir string) *Config {
	return &Config{
		GroupURL:            groupURL,
		BaseDir:             baseDir,
		LogDir:              filepath.Join(baseDir, "log"),
		PollIntervalMinutes: 20,
		JitterFraction:      0.3,
		WorkingHoursStart:   6,
		WorkingHoursEnd:     22,
		HashThreshold:       3,
		CleanupHours:        360,
		Browser: BrowserConfig{
			Headless:    true,
			SessionPath: filepath.Join(baseDir, "session", "state.age"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "session.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "session.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path, refusing to
// overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
