package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Ardrive       ArdriveConfig       `mapstructure:"ardrive"`
	Manifest      ManifestConfig      `mapstructure:"manifest"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"` // json or console
	LockFile          string        `mapstructure:"lock_file"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"` // 0 disables
	ConfigPassphrase  string        `mapstructure:"config_passphrase"` // optional; may come from env
	AllowMissingTools bool          `mapstructure:"allow_missing_tools"`
}

// ArdriveConfig describes how the upload tool is invoked.
type ArdriveConfig struct {
	Binary         string            `mapstructure:"binary"`
	Command        string            `mapstructure:"command"`
	Wallet         string            `mapstructure:"wallet"`
	SourceDir      string            `mapstructure:"source_dir"` // upload root
	DestName       string            `mapstructure:"dest_name"`
	ParentFolderID string            `mapstructure:"parent_folder_id"`
	ExtraArgs      []string          `mapstructure:"extra_args"`
	Env            map[string]string `mapstructure:"env"`
}

type ManifestConfig struct {
	Output string `mapstructure:"output"`
	Index  string `mapstructure:"index"`
	Print  bool   `mapstructure:"print"`
}

type ArchiveConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Compression   string        `mapstructure:"compression"` // none, gzip, zstd
	Encryption    bool          `mapstructure:"encryption"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Retention     Retention     `mapstructure:"retention"`
}

type Retention struct {
	KeepLast int `mapstructure:"keep_last"`
	KeepDays int `mapstructure:"keep_days"`
}

type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // local, s3
	Local   LocalStore `mapstructure:"local"`
	S3      S3Store    `mapstructure:"s3"`
	Prefix  string     `mapstructure:"prefix"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
