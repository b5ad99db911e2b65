package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const keyFile = "encryption.key"

type Backend string

const (
	BackendSelfHosted Backend = "self-hosted"
	BackendFirebase   Backend = "firebase"
	BackendAWS        Backend = "aws"
	BackendSupabase   Backend = "supabase"
	BackendP2P        Backend = "p2p"
	BackendDropbox    Backend = "dropbox"
	BackendFS         Backend = "fs"
)

var Backends = []Backend{BackendSelfHosted, BackendFirebase, BackendAWS, BackendSupabase, BackendP2P, BackendDropbox, BackendFS}

type ResolutionMode string

const (
	ModeAutomatic ResolutionMode = "automatic"
	ModeManual    ResolutionMode = "manual"
)

type Config struct {
	Enabled                bool           `mapstructure:"enabled"`
	Backend                Backend        `mapstructure:"backend"`
	AutoSync               bool           `mapstructure:"auto_sync"`
	SyncIntervalMs         int64          `mapstructure:"sync_interval"`
	ConflictResolutionMode ResolutionMode `mapstructure:"conflict_resolution_mode"`
	CompressionEnabled     bool           `mapstructure:"compression_enabled"`
	EncryptionEnabled      bool           `mapstructure:"encryption_enabled"`
	EncryptionKey          string         `mapstructure:"encryption_key"`
	IncludeAssets          bool           `mapstructure:"include_assets"`
	MaxUploadSize          int64          `mapstructure:"max_upload_size"`
	AssetThreshold         int64          `mapstructure:"asset_threshold"`
	TransferConcurrency    int            `mapstructure:"transfer_concurrency"`

	Author       string   `mapstructure:"author"`
	WorkspaceDir string   `mapstructure:"workspace_dir"`
	DBPath       string   `mapstructure:"db_path"`
	DaemonPort   int      `mapstructure:"daemon_port"`
	BufferSize   int      `mapstructure:"buffer_size"`
	IgnoreList   []string `mapstructure:"ignore_list"`
	Watch        bool     `mapstructure:"watch"`
	PollInterval int64    `mapstructure:"poll_interval"`

	FS         FSConfig         `mapstructure:"fs"`
	SelfHosted SelfHostedConfig `mapstructure:"self_hosted"`
	S3         S3Config         `mapstructure:"s3"`
	Supabase   S3Config         `mapstructure:"supabase"`
	GDrive     FolderConfig     `mapstructure:"gdrive"`
	Dropbox    FolderConfig     `mapstructure:"dropbox"`
	Peer       PeerConfig       `mapstructure:"peer"`

	Hub        HubConfig        `mapstructure:"hub"`
	PeerServer PeerServerConfig `mapstructure:"peer_server"`
}

type FSConfig struct {
	Dir string `mapstructure:"dir"`
}

type SelfHostedConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"`
}

type FolderConfig struct {
	Folder string `mapstructure:"folder"`
}

type PeerConfig struct {
	Addr string `mapstructure:"addr"`
}

type HubConfig struct {
	Addr    string `mapstructure:"addr"`
	DataDir string `mapstructure:"data_dir"`
	Token   string `mapstructure:"token"`
}

type PeerServerConfig struct {
	Addr    string `mapstructure:"addr"`
	DataDir string `mapstructure:"data_dir"`
}

var Default = Config{
	Enabled:                false,
	Backend:                BackendSelfHosted,
	AutoSync:               true,
	SyncIntervalMs:         30000,
	ConflictResolutionMode: ModeAutomatic,
	CompressionEnabled:     true,
	EncryptionEnabled:      true,
	IncludeAssets:          true,
	MaxUploadSize:          100 * 1024 * 1024,
	AssetThreshold:         1024 * 1024,
	TransferConcurrency:    4,
	DaemonPort:             9100,
	BufferSize:             100,
	PollInterval:           5000,
	IgnoreList:             []string{".git/**", "**/.DS_Store", "**/*.tmp", "**/*.swp", ".modsync/**"},
	SelfHosted:             SelfHostedConfig{URL: "http://localhost:9200"},
	S3:                     S3Config{Region: "us-east-1", Prefix: "modsync"},
	Supabase:               S3Config{Region: "us-east-1", Prefix: "modsync"},
	GDrive:                 FolderConfig{Folder: "modsync"},
	Dropbox:                FolderConfig{Folder: "/modsync"},
	Peer:                   PeerConfig{Addr: "localhost:9300"},
	Hub:                    HubConfig{Addr: ":9200"},
	PeerServer:             PeerServerConfig{Addr: ":9300"},
}

// Dir returns ~/.modsync, creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".modsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	return load(dir, "")
}

// LoadFile reads an explicit config file, applying the same defaults and
// environment overrides as Load.
func LoadFile(path string) (*Config, error) {
	return load(filepath.Dir(path), path)
}

func load(dir, file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	setDefaults(v, dir)

	v.SetEnvPrefix("MODSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := errors.AsType[viper.ConfigFileNotFoundError](err)
		if !notFound && !(file != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.EncryptionEnabled && cfg.EncryptionKey == "" {
		key, err := loadOrCreateKey(dir)
		if err != nil {
			return nil, err
		}
		cfg.EncryptionKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadOrCreateKey returns the passphrase stored in <dir>/encryption.key,
// generating one on first use. Collaborators must share the same key.
func loadOrCreateKey(dir string) (string, error) {
	keyPath := filepath.Join(dir, keyFile)
	if data, err := os.ReadFile(keyPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}
	key := hex.EncodeToString(b)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	if err := os.WriteFile(keyPath, []byte(key), 0600); err != nil {
		return "", fmt.Errorf("failed to save encryption key: %w", err)
	}

	return key, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("enabled", Default.Enabled)
	v.SetDefault("backend", string(Default.Backend))
	v.SetDefault("auto_sync", Default.AutoSync)
	v.SetDefault("sync_interval", Default.SyncIntervalMs)
	v.SetDefault("conflict_resolution_mode", string(Default.ConflictResolutionMode))
	v.SetDefault("compression_enabled", Default.CompressionEnabled)
	v.SetDefault("encryption_enabled", Default.EncryptionEnabled)
	v.SetDefault("encryption_key", "")
	v.SetDefault("include_assets", Default.IncludeAssets)
	v.SetDefault("max_upload_size", Default.MaxUploadSize)
	v.SetDefault("asset_threshold", Default.AssetThreshold)
	v.SetDefault("transfer_concurrency", Default.TransferConcurrency)

	v.SetDefault("author", "")
	v.SetDefault("workspace_dir", filepath.Join(dir, "projects"))
	v.SetDefault("db_path", filepath.Join(dir, "modsync.db"))
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("watch", Default.Watch)
	v.SetDefault("poll_interval", Default.PollInterval)

	v.SetDefault("fs.dir", filepath.Join(dir, "remote"))
	v.SetDefault("self_hosted.url", Default.SelfHosted.URL)
	v.SetDefault("self_hosted.token", "")
	for _, key := range []string{"s3", "supabase"} {
		v.SetDefault(key+".bucket", "")
		v.SetDefault(key+".region", Default.S3.Region)
		v.SetDefault(key+".endpoint", "")
		v.SetDefault(key+".access_key", "")
		v.SetDefault(key+".secret_key", "")
		v.SetDefault(key+".prefix", Default.S3.Prefix)
		v.SetDefault(key+".public_url", "")
	}
	v.SetDefault("gdrive.folder", Default.GDrive.Folder)
	v.SetDefault("dropbox.folder", Default.Dropbox.Folder)
	v.SetDefault("peer.addr", Default.Peer.Addr)
	v.SetDefault("hub.addr", Default.Hub.Addr)
	v.SetDefault("hub.data_dir", filepath.Join(dir, "hub"))
	v.SetDefault("hub.token", "")
	v.SetDefault("peer_server.addr", Default.PeerServer.Addr)
	v.SetDefault("peer_server.data_dir", filepath.Join(dir, "peer"))
}

func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}

	if c.ConflictResolutionMode != ModeAutomatic && c.ConflictResolutionMode != ModeManual {
		return fmt.Errorf("unknown conflict resolution mode: %s", c.ConflictResolutionMode)
	}

	if c.SyncIntervalMs <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %d", c.SyncIntervalMs)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive, got %d", c.MaxUploadSize)
	}

	if c.EncryptionEnabled && c.EncryptionKey == "" {
		return fmt.Errorf("encryption_key is required when encryption is enabled")
	}

	return nil
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// FeedInterval is how often watched projects poll the backend for changes
// made by collaborators. Zero disables polling.
func (c *Config) FeedInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 0
	}

	return time.Duration(c.PollInterval) * time.Millisecond
}

func (c *Config) Concurrency() int {
	if c.TransferConcurrency <= 0 {
		return 1
	}

	return c.TransferConcurrency
}
