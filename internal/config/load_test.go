package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
global:
  log_level: debug
ardrive:
  wallet: /keys/wallet.json
  source_dir: /srv/site/dist
  extra_args: ["--turbo"]
manifest:
  output: /srv/site/manifest.json
archive:
  enabled: true
  retry_backoff: 2s
  retention:
    keep_last: 4
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "arpm.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "json", cfg.Global.LogFormat)
	assert.Equal(t, time.Hour, cfg.Global.OperationTimeout)

	assert.Equal(t, "ardrive", cfg.Ardrive.Binary)
	assert.Equal(t, "upload-file", cfg.Ardrive.Command)
	assert.Equal(t, "/keys/wallet.json", cfg.Ardrive.Wallet)
	assert.Equal(t, "dist", cfg.Ardrive.DestName)
	assert.Equal(t, []string{"--turbo"}, cfg.Ardrive.ExtraArgs)

	assert.Equal(t, "/srv/site/manifest.json", cfg.Manifest.Output)
	assert.Equal(t, DefaultIndex, cfg.Manifest.Index)
	assert.True(t, cfg.Manifest.Print)

	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "zstd", cfg.Archive.Compression)
	assert.Equal(t, 3, cfg.Archive.RetryCount)
	assert.Equal(t, 2*time.Second, cfg.Archive.RetryBackoff)
	assert.Equal(t, 4, cfg.Archive.Retention.KeepLast)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ARPM_ARDRIVE_WALLET", "/env/wallet.json")
	t.Setenv("ARPM_ARDRIVE_DEST_NAME", "4vrtiny")
	t.Setenv("ARPM_MANIFEST_INDEX", "home.html")

	cfg, err := Load(writeConfig(t, "arpm.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "/env/wallet.json", cfg.Ardrive.Wallet)
	assert.Equal(t, "4vrtiny", cfg.Ardrive.DestName)
	assert.Equal(t, "home.html", cfg.Manifest.Index)
}

func TestLoadEnvOverridesNestedKeys(t *testing.T) {
	t.Setenv("ARPM_STORAGE_S3_BUCKET", "deploys")
	t.Setenv("ARPM_STORAGE_S3_USE_SSL", "true")
	t.Setenv("ARPM_GLOBAL_ALLOW_MISSING_TOOLS", "true")
	t.Setenv("ARPM_GLOBAL_LOCK_FILE", "/run/arpm/site.lock")
	t.Setenv("ARPM_ARCHIVE_RETENTION_KEEP_LAST", "5")
	t.Setenv("ARPM_ARCHIVE_RETENTION_KEEP_DAYS", "30")
	t.Setenv("ARPM_ARDRIVE_EXTRA_ARGS", "--turbo,--dry-run")

	cfg, err := Load(writeConfig(t, "arpm.yaml", "ardrive:\n  wallet: /w.json\n"))
	require.NoError(t, err)

	assert.Equal(t, "deploys", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Storage.S3.UseSSL)
	assert.True(t, cfg.Global.AllowMissingTools)
	assert.Equal(t, "/run/arpm/site.lock", cfg.Global.LockFile)
	assert.Equal(t, 5, cfg.Archive.Retention.KeepLast)
	assert.Equal(t, 30, cfg.Archive.Retention.KeepDays)
	assert.Equal(t, []string{"--turbo", "--dry-run"}, cfg.Ardrive.ExtraArgs)
}

func TestLoadExpandsWalletPath(t *testing.T) {
	t.Setenv("WALLET_HOME", "/home/deployer")
	cfg, err := Load(writeConfig(t, "arpm.yaml", "ardrive:\n  wallet: $WALLET_HOME/arWallet.json\n"))
	require.NoError(t, err)
	assert.Equal(t, "/home/deployer/arWallet.json", cfg.Ardrive.Wallet)
}

func TestLoadEncryptedConfig(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	plain := writeConfig(t, "arpm.yaml", sampleYAML)
	encrypted := filepath.Join(t.TempDir(), "arpm.yaml.enc")
	require.NoError(t, EncryptConfigFile(plain, encrypted, key))

	t.Setenv("ARPM_CONFIG_KEY", key)
	cfg, err := Load(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "/keys/wallet.json", cfg.Ardrive.Wallet)
}

func TestLoadEncryptedConfigWithoutKey(t *testing.T) {
	t.Setenv("ARPM_CONFIG_KEY", "")
	path := writeConfig(t, "arpm.yaml.enc", "not really encrypted")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEncryptConfigFileRefusesInPlace(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	plain := writeConfig(t, "arpm.yaml", sampleYAML)
	assert.Error(t, EncryptConfigFile(plain, plain, key))
}

func TestConfigTypeFromPath(t *testing.T) {
	cases := map[string]string{
		"arpm.yaml.enc":       "yaml",
		"arpm.toml.enc":       "toml",
		"arpm.json.encrypted": "json",
		"arpm.enc":            "yaml",
	}
	for in, want := range cases {
		if got := configTypeFromPath(in); got != want {
			t.Fatalf("configTypeFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
