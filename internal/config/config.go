package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for declutter.
type Config struct {
	InstanceID      string                `toml:"instance_id"`
	BaseDir         string                `toml:"base_dir"`
	LogDir          string                `toml:"log_dir"`
	LogLevel        string                `toml:"log_level,omitempty"` // "debug", "info" (default), "warn" or "error"
	Database        DatabaseConfig        `toml:"database"`
	Archive         ArchiveConfig         `toml:"archive"`
	Encryption      EncryptionConfig      `toml:"encryption"`
	Events          EventsConfig          `toml:"events"`
	Server          ServerConfig          `toml:"server"`
	Analysis        AnalysisConfig        `toml:"analysis"`
	Costs           CostsConfig           `toml:"costs"`
	Recommendations RecommendationsConfig `toml:"recommendations"`
	Providers       []ProviderConfig      `toml:"providers"`
	Plans           []PlanConfig          `toml:"plans"`
}

// DatabaseConfig represents configuration for the inventory and analysis database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents the object store used for report exports and database backups.
// This uses a tagged union pattern - an empty Type disables the archive.
type ArchiveConfig struct {
	Type string `toml:"type"` // "", "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyEnv string `toml:"s3_access_key_env,omitempty"` // static credentials; default chain when empty
	S3SecretKeyEnv string `toml:"s3_secret_key_env,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for report encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	// Armor writes ASCII-armored ciphertext.
	Armor bool `toml:"armor"`
}

// EventsConfig selects where domain events are published.
type EventsConfig struct {
	Type          string `toml:"type"` // "" / "none" or "nats"
	URL           string `toml:"url,omitempty"`
	Stream        string `toml:"stream,omitempty"`
	SubjectPrefix string `toml:"subject_prefix,omitempty"`
}

// ServerConfig holds HTTP server settings for `declutter serve`.
type ServerConfig struct {
	Listen string `toml:"listen"`
	JobTTL string `toml:"job_ttl"` // Go duration, e.g. "30m"
}

// AnalysisConfig holds analysis-wide settings.
type AnalysisConfig struct {
	PrimaryCloud string   `toml:"primary_cloud"`
	Ignore       []string `toml:"ignore"`
	// IgnoreFile holds further patterns, one per line.
	IgnoreFile string `toml:"ignore_file,omitempty"`
}

// CostsConfig is the per-provider price table in USD per GB per month.
type CostsConfig struct {
	DefaultRate float64            `toml:"default_rate"`
	Rates       map[string]float64 `toml:"rates"`
}

// RecommendationsConfig holds the policy constants of the recommendation rules.
type RecommendationsConfig struct {
	LargeFileBytes   int64   `toml:"large_file_bytes"`
	CompressRatio    float64 `toml:"compress_ratio"`
	MaxCompressIDs   int     `toml:"max_compress_ids"`
	ArchiveAfterDays int     `toml:"archive_after_days"`
	ArchiveRatio     float64 `toml:"archive_ratio"`
	MaxArchiveIDs    int     `toml:"max_archive_ids"`
}

// ProviderConfig configures remote deletion for one provider.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ProviderConfig struct {
	Type string `toml:"type"` // "onedrive", "googledrive", "googlephotos", "dropbox", "s3" or "memory"
	Name string `toml:"name"` // provider name as it appears in the inventory; defaults to Type

	// HTTP/OAuth fields (onedrive, googledrive, googlephotos, dropbox)
	BaseURL         string `toml:"base_url,omitempty"`
	AccessTokenEnv  string `toml:"access_token_env,omitempty"`
	RefreshTokenEnv string `toml:"refresh_token_env,omitempty"`
	ClientID        string `toml:"client_id,omitempty"`
	ClientSecretEnv string `toml:"client_secret_env,omitempty"`
	TokenURL        string `toml:"token_url,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyEnv string `toml:"s3_access_key_env,omitempty"` // static credentials; default chain when empty
	S3SecretKeyEnv string `toml:"s3_secret_key_env,omitempty"`
}

// ProviderName returns the inventory name this provider config serves.
func (p ProviderConfig) ProviderName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Type
}

// PlanConfig lists the feature limits of one subscription plan.
type PlanConfig struct {
	Name     string          `toml:"name"`
	Features []FeatureConfig `toml:"features"`
}

// FeatureConfig is one feature's availability on a plan. A zero Limit means unlimited.
type FeatureConfig struct {
	Feature string `toml:"feature"`
	Enabled bool   `toml:"enabled"`
	Limit   int64  `toml:"limit"`
}

// DefaultCostRates returns the published per-provider storage prices.
func DefaultCostRates() map[string]float64 {
	return map[string]float64{
		"onedrive":     0.0069,
		"google_drive": 0.0199,
		"dropbox":      0.0059,
		"icloud":       0.0198,
		"amazon_drive": 0.0119,
		"box":          0.0042,
	}
}

const gib = 1024 * 1024 * 1024

// DefaultPlans returns the standard subscription plans.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{Name: "free", Features: []FeatureConfig{
			{Feature: "storage_analysis", Enabled: true, Limit: 5 * gib},
			{Feature: "cross_cloud_deduplication", Enabled: true, Limit: 100},
			{Feature: "advanced_analytics", Enabled: false},
		}},
		{Name: "pro", Features: []FeatureConfig{
			{Feature: "storage_analysis", Enabled: true, Limit: 100 * gib},
			{Feature: "cross_cloud_deduplication", Enabled: true},
			{Feature: "advanced_analytics", Enabled: true},
		}},
		{Name: "business", Features: []FeatureConfig{
			{Feature: "storage_analysis", Enabled: true, Limit: 1024 * gib},
			{Feature: "cross_cloud_deduplication", Enabled: true},
			{Feature: "advanced_analytics", Enabled: true},
		}},
		{Name: "enterprise", Features: []FeatureConfig{
			{Feature: "storage_analysis", Enabled: true},
			{Feature: "cross_cloud_deduplication", Enabled: true},
			{Feature: "advanced_analytics", Enabled: true},
		}},
	}
}

// DefaultRecommendations returns the standard recommendation policy.
func DefaultRecommendations() RecommendationsConfig {
	return RecommendationsConfig{
		LargeFileBytes:   100 * 1024 * 1024,
		CompressRatio:    0.3,
		MaxCompressIDs:   10,
		ArchiveAfterDays: 365,
		ArchiveRatio:     0.5,
		MaxArchiveIDs:    20,
	}
}

// NewConfig creates a new Config with the provided values and default settings.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Archive: ArchiveConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "archive"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "declutter.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "declutter.key"),
		},
		Events: EventsConfig{Type: "none"},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
			JobTTL: "30m",
		},
		Costs: CostsConfig{
			DefaultRate: 0.01,
			Rates:       DefaultCostRates(),
		},
		Recommendations: DefaultRecommendations(),
		Plans:           DefaultPlans(),
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
