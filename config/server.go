package config

import "time"

type ServerRoot struct {
	General  GeneralConfig  `yaml:"general" toml:"general"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Index    IndexConfig    `yaml:"index" toml:"index"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Syntax   SyntaxConfig   `yaml:"syntax" toml:"syntax"`
	Publish  PublishConfig  `yaml:"publish" toml:"publish"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
}

type GeneralConfig struct {
	Addr        string `yaml:"addr" toml:"addr"`
	Port        int    `yaml:"port" toml:"port"`
	BindAddress string `yaml:"bind_address" toml:"bind_address"`
	// Hostname and URL are used to build the URLs written to config.json
	Hostname   string        `yaml:"hostname" toml:"hostname"`
	URL        string        `yaml:"url" toml:"url"`
	TlsEnabled bool          `yaml:"tls" toml:"tls"`
	Certs      Certs         `yaml:"certs" toml:"certs"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	Categories string        `yaml:"categories" toml:"categories"`
}

type Certs struct {
	CertFile string `yaml:"cert" toml:"cert"`
	KeyFile  string `yaml:"key" toml:"key"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url" toml:"url"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections"`
}

const (
	IndexTypeCommandLine = "command-line"
	IndexTypeGit2        = "git2"
)

type IndexConfig struct {
	Type   string `yaml:"type" toml:"type"`
	Path   string `yaml:"path" toml:"path"`
	Remote string `yaml:"remote" toml:"remote"`
	Branch string `yaml:"branch" toml:"branch"`

	CommitterName  string `yaml:"committer_name" toml:"committer_name"`
	CommitterEmail string `yaml:"committer_email" toml:"committer_email"`

	// credentials of the git2 variant
	SSHKeyPath    string `yaml:"ssh_key_path" toml:"ssh_key_path"`
	SSHPassphrase string `yaml:"ssh_passphrase" toml:"ssh_passphrase"`
	Username      string `yaml:"username" toml:"username"`
	Token         string `yaml:"token" toml:"token"`
}

const (
	StorageTypeDisk = "disk"
	StorageTypeS3   = "s3"
	StorageTypeGCS  = "gcs"

	DownloadModeRedirect = "redirect"
	DownloadModeStream   = "stream"
)

type StorageConfig struct {
	Type         string `yaml:"type" toml:"type"`
	Path         string `yaml:"path" toml:"path"`
	Region       string `yaml:"region" toml:"region"`
	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	Bucket       string `yaml:"bucket" toml:"bucket"`
	KeyPrefix    string `yaml:"key_prefix" toml:"key_prefix"`
	DownloadMode string `yaml:"download_mode" toml:"download_mode"`
}

type SearchConfig struct {
	Directory string `yaml:"directory" toml:"directory"`
}

type SyntaxConfig struct {
	Theme string `yaml:"theme" toml:"theme"`
}

type PublishConfig struct {
	MaxUploadSize string `yaml:"max_upload_size" toml:"max_upload_size"`
	MaxRetries    int    `yaml:"max_retries" toml:"max_retries"`
}

type AuthConfig struct {
	Registration bool       `yaml:"registration" toml:"registration"`
	LoginRate    float64    `yaml:"login_rate" toml:"login_rate"`
	LoginBurst   int        `yaml:"login_burst" toml:"login_burst"`
	OIDC         OIDCConfig `yaml:"oidc" toml:"oidc"`
}

type OIDCConfig struct {
	Issuer       string `yaml:"issuer" toml:"issuer"`
	ClientId     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
}

func (o OIDCConfig) Enabled() bool {
	return o.Issuer != "" && o.ClientId != ""
}
