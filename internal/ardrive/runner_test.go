package ardrive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/arpm/internal/config"
)

func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	path := filepath.Join(t.TempDir(), "ardrive")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func baseConfig(binary string) config.ArdriveConfig {
	return config.ArdriveConfig{
		Binary:    binary,
		Command:   "upload-file",
		Wallet:    "/keys/wallet.json",
		SourceDir: "/srv/dist",
		DestName:  "4vrtiny",
	}
}

func TestArgs(t *testing.T) {
	cfg := baseConfig("ardrive")
	r := NewRunner(cfg, false, zerolog.Nop())
	assert.Equal(t, []string{"upload-file", "-w", "/keys/wallet.json", "-f", "/srv/dist", "-d", "4vrtiny"}, r.Args())

	cfg.ParentFolderID = "abc-123"
	cfg.ExtraArgs = []string{"--turbo"}
	r = NewRunner(cfg, false, zerolog.Nop())
	assert.Equal(t, []string{
		"upload-file", "-w", "/keys/wallet.json", "-f", "/srv/dist", "-d", "4vrtiny",
		"--parent-folder-id", "abc-123", "--turbo",
	}, r.Args())
}

func TestUploadReturnsStdout(t *testing.T) {
	tool := fakeTool(t, `echo "progress for $7" >&2
printf '{"created":[{"type":"file","sourceUri":"%s/index.html","dataTxId":"%s"}]}' "$5" "$ARPM_FAKE_TX"`)
	cfg := baseConfig(tool)
	cfg.Env = map[string]string{"ARPM_FAKE_TX": "TX1"}

	out, err := NewRunner(cfg, false, zerolog.Nop()).Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"created":[{"type":"file","sourceUri":"/srv/dist/index.html","dataTxId":"TX1"}]}`, string(out))
}

func TestUploadNonZeroExit(t *testing.T) {
	tool := fakeTool(t, `echo '{"created":[]}'
echo "insufficient funds" >&2
exit 2`)
	out, err := NewRunner(baseConfig(tool), false, zerolog.Nop()).Upload(context.Background())
	assert.Nil(t, out)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr), "got %T", err)
	assert.Equal(t, 2, launchErr.ExitCode)
	assert.Equal(t, "insufficient funds", launchErr.Stderr)
	assert.True(t, strings.Contains(err.Error(), "insufficient funds"))
}

func TestUploadNonZeroExitLogsDiscardedOutput(t *testing.T) {
	tool := fakeTool(t, `echo '{"created":[{"type":"file","dataTxId":"PAID"}]}'
exit 1`)
	var logs bytes.Buffer
	_, err := NewRunner(baseConfig(tool), false, zerolog.New(&logs)).Upload(context.Background())
	require.Error(t, err)

	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"stdout_bytes":48`)
	assert.Contains(t, logs.String(), "PAID")
}

func TestUploadMissingBinary(t *testing.T) {
	_, err := NewRunner(baseConfig("arpm-no-such-ardrive"), true, zerolog.Nop()).Upload(context.Background())
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, -1, launchErr.ExitCode)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	wallet := filepath.Join(dir, "wallet.json")
	require.NoError(t, os.WriteFile(wallet, []byte("{}"), 0o600))
	source := filepath.Join(dir, "dist")
	require.NoError(t, os.Mkdir(source, 0o755))

	cfg := baseConfig("arpm-no-such-ardrive")
	cfg.Wallet = wallet
	cfg.SourceDir = source

	assert.NoError(t, NewRunner(cfg, true, zerolog.Nop()).Validate(context.Background()))
	assert.Error(t, NewRunner(cfg, false, zerolog.Nop()).Validate(context.Background()), "binary must be required")

	missingWallet := cfg
	missingWallet.Wallet = filepath.Join(dir, "nope.json")
	assert.Error(t, NewRunner(missingWallet, true, zerolog.Nop()).Validate(context.Background()))

	fileSource := cfg
	fileSource.SourceDir = wallet
	assert.Error(t, NewRunner(fileSource, true, zerolog.Nop()).Validate(context.Background()))
}
