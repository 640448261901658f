package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/arpm/internal/cryptoutil"
)

const (
	envPrefix = "ARPM"

	DefaultOutput = "../manifest.json"
	DefaultIndex  = "index.html"
)

// Load reads configuration from a file (optionally encrypted), env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			vp.SetConfigType(configTypeFromPath(resolved))
			key := os.Getenv("ARPM_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but ARPM_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("ARPM_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"arpm.yaml",
		"arpm.yml",
		"arpm.toml",
		"arpm.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "arpm")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range []string{"arpm.yaml.enc", "arpm.yml.enc", "arpm.toml.enc"} {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch filepath.Ext(trimmed) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.operation_timeout", "1h")
	vp.SetDefault("global.lock_file", "")
	vp.SetDefault("global.config_passphrase", "")
	vp.SetDefault("global.allow_missing_tools", false)
	vp.SetDefault("ardrive.binary", "ardrive")
	vp.SetDefault("ardrive.command", "upload-file")
	vp.SetDefault("ardrive.wallet", "")
	vp.SetDefault("ardrive.source_dir", "./dist")
	vp.SetDefault("ardrive.dest_name", "")
	vp.SetDefault("ardrive.parent_folder_id", "")
	vp.SetDefault("ardrive.extra_args", []string{})
	vp.SetDefault("manifest.output", DefaultOutput)
	vp.SetDefault("manifest.index", DefaultIndex)
	vp.SetDefault("manifest.print", true)
	vp.SetDefault("archive.enabled", false)
	vp.SetDefault("archive.compression", "zstd")
	vp.SetDefault("archive.encryption", false)
	vp.SetDefault("archive.encryption_key", "")
	vp.SetDefault("archive.retry_count", 3)
	vp.SetDefault("archive.retry_backoff", "5s")
	vp.SetDefault("archive.retention.keep_last", 0)
	vp.SetDefault("archive.retention.keep_days", 0)
	vp.SetDefault("storage.backend", "local")
	vp.SetDefault("storage.local.path", "./.arpm")
	vp.SetDefault("storage.prefix", "")
	vp.SetDefault("storage.s3.endpoint", "")
	vp.SetDefault("storage.s3.region", "")
	vp.SetDefault("storage.s3.bucket", "")
	vp.SetDefault("storage.s3.access_key", "")
	vp.SetDefault("storage.s3.secret_key", "")
	vp.SetDefault("storage.s3.session_token", "")
	vp.SetDefault("storage.s3.use_ssl", false)
	vp.SetDefault("storage.s3.force_path_style", false)
	vp.SetDefault("storage.s3.tls_insecure_skip", false)
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Archive.RetryBackoff == 0 {
		cfg.Archive.RetryBackoff = 5 * time.Second
	}
	if cfg.Manifest.Index == "" {
		cfg.Manifest.Index = DefaultIndex
	}
	if cfg.Manifest.Output == "" {
		cfg.Manifest.Output = DefaultOutput
	}
	if cfg.Ardrive.DestName == "" && cfg.Ardrive.SourceDir != "" {
		cfg.Ardrive.DestName = filepath.Base(filepath.Clean(cfg.Ardrive.SourceDir))
	}
}

func expandEnv(cfg *Config) {
	cfg.Ardrive.Wallet = os.ExpandEnv(cfg.Ardrive.Wallet)
	cfg.Ardrive.SourceDir = os.ExpandEnv(cfg.Ardrive.SourceDir)
	for k, v := range cfg.Ardrive.Env {
		cfg.Ardrive.Env[k] = os.ExpandEnv(v)
	}
	cfg.Archive.EncryptionKey = os.ExpandEnv(cfg.Archive.EncryptionKey)
	cfg.Storage.S3.AccessKey = os.ExpandEnv(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = os.ExpandEnv(cfg.Storage.S3.SecretKey)
	cfg.Storage.S3.SessionToken = os.ExpandEnv(cfg.Storage.S3.SessionToken)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(cryptoutil.ConfigKeySetting, key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
