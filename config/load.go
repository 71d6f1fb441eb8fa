package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDatabaseURL = "REGISTRY_DATABASE_URL"
	EnvBindAddress = "REGISTRY_BIND_ADDRESS"
)

// Load reads the configuration document at path (YAML, or TOML for a .toml
// extension), applies a local .env file and the environment overrides,
// fills in defaults and validates the result.
func Load(path string) (*ServerRoot, error) {
	root, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}
	root.ApplyEnv(os.LookupEnv)
	root.SetDefaults()
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return root, nil
}

// Parse decodes the configuration document without defaults or overrides.
func Parse(path string) (*ServerRoot, error) {
	var root ServerRoot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &root); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return &root, nil
}

// ApplyEnv applies the recognised environment overrides.
// No other value is read from the environment.
func (r *ServerRoot) ApplyEnv(lookup func(string) (string, bool)) {
	if url, ok := lookup(EnvDatabaseURL); ok && url != "" {
		r.Database.URL = url
	}
	if addr, ok := lookup(EnvBindAddress); ok && addr != "" {
		r.General.BindAddress = addr
	}
}

func (r *ServerRoot) SetDefaults() {
	if r.General.Addr == "" {
		r.General.Addr = "127.0.0.1"
	}
	if r.General.Port == 0 {
		r.General.Port = 3000
	}
	if r.General.Timeout == 0 {
		r.General.Timeout = 30 * time.Second
	}
	if r.Database.MaxConnections <= 0 {
		r.Database.MaxConnections = 4
	}
	if r.Index.Type == "" {
		r.Index.Type = IndexTypeCommandLine
	}
	if r.Index.Remote == "" {
		r.Index.Remote = "origin"
	}
	if r.Index.Branch == "" {
		r.Index.Branch = "master"
	}
	if r.Index.CommitterName == "" {
		r.Index.CommitterName = "Cargo Registry"
	}
	if r.Index.CommitterEmail == "" {
		r.Index.CommitterEmail = "registry@localhost"
	}
	if r.Storage.Type == "" {
		r.Storage.Type = StorageTypeDisk
	}
	if r.Storage.KeyPrefix == "" {
		r.Storage.KeyPrefix = "crates"
	}
	if r.Storage.DownloadMode == "" {
		r.Storage.DownloadMode = DownloadModeRedirect
	}
	if r.Search.Directory == "" {
		r.Search.Directory = "search"
	}
	if r.Syntax.Theme == "" {
		r.Syntax.Theme = "monokai"
	}
	if r.Publish.MaxUploadSize == "" {
		r.Publish.MaxUploadSize = "10MB"
	}
	if r.Publish.MaxRetries <= 0 {
		r.Publish.MaxRetries = 3
	}
	if r.Auth.LoginRate <= 0 {
		r.Auth.LoginRate = 1
	}
	if r.Auth.LoginBurst <= 0 {
		r.Auth.LoginBurst = 5
	}
}

func (r *ServerRoot) Validate() error {
	switch r.Index.Type {
	case IndexTypeCommandLine, IndexTypeGit2:
	default:
		return fmt.Errorf("unknown index type %q", r.Index.Type)
	}
	if r.Index.Path == "" {
		return fmt.Errorf("index.path is required")
	}
	if r.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	switch r.Storage.Type {
	case StorageTypeDisk:
		if r.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for disk storage")
		}
	case StorageTypeS3, StorageTypeGCS:
		if r.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s storage", r.Storage.Type)
		}
		if strings.HasSuffix(r.Storage.KeyPrefix, "/") {
			return fmt.Errorf("storage.key_prefix must not end with '/'")
		}
		if r.Storage.Type == StorageTypeS3 && r.Storage.Region == "" {
			return fmt.Errorf("storage.region is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", r.Storage.Type)
	}
	switch r.Storage.DownloadMode {
	case DownloadModeRedirect, DownloadModeStream:
	default:
		return fmt.Errorf("unknown download mode %q", r.Storage.DownloadMode)
	}
	if _, err := r.MaxUploadBytes(); err != nil {
		return err
	}
	return nil
}

// MaxUploadBytes parses publish.max_upload_size ("10MB", "512KiB", ...).
func (r *ServerRoot) MaxUploadBytes() (int64, error) {
	size, err := humanize.ParseBytes(r.Publish.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("invalid publish.max_upload_size %q: %w", r.Publish.MaxUploadSize, err)
	}
	return int64(size), nil
}

// ListenAddress returns the address the HTTP server binds to.
func (r *ServerRoot) ListenAddress() string {
	if r.General.BindAddress != "" {
		return r.General.BindAddress
	}
	return fmt.Sprintf("%s:%d", r.General.Addr, r.General.Port)
}
