package ardrive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rowjay/arpm/internal/config"
	"github.com/rowjay/arpm/internal/util"
)

const stderrTailBytes = 2048

// LaunchError reports an upload tool that could not be found, could not be
// started, or exited non-zero. Its stdout is never parsed.
type LaunchError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("run %s %s: %v", e.Binary, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Runner invokes the ardrive CLI with flags taken from config.
type Runner struct {
	cfg               config.ArdriveConfig
	allowMissingTools bool
	log               zerolog.Logger
}

func NewRunner(cfg config.ArdriveConfig, allowMissingTools bool, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, allowMissingTools: allowMissingTools, log: log}
}

func (r *Runner) Name() string { return r.cfg.Binary }

// Root is the upload root that sourceUri values are relative to.
func (r *Runner) Root() string { return r.cfg.SourceDir }

// Args returns the argument vector passed to the binary.
func (r *Runner) Args() []string {
	args := []string{r.cfg.Command, "-w", r.cfg.Wallet, "-f", r.cfg.SourceDir, "-d", r.cfg.DestName}
	if r.cfg.ParentFolderID != "" {
		args = append(args, "--parent-folder-id", r.cfg.ParentFolderID)
	}
	return append(args, r.cfg.ExtraArgs...)
}

// Validate checks the tool, wallet and source directory without uploading.
func (r *Runner) Validate(_ context.Context) error {
	if !r.allowMissingTools {
		if err := util.RequireBinary(r.cfg.Binary); err != nil {
			return err
		}
	}
	if r.cfg.Wallet == "" {
		return errors.New("ardrive.wallet is required")
	}
	if _, err := os.Stat(r.cfg.Wallet); err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	if r.cfg.SourceDir == "" {
		return errors.New("ardrive.source_dir is required")
	}
	info, err := os.Stat(r.cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("source dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source dir %s is not a directory", r.cfg.SourceDir)
	}
	return nil
}

// Upload runs the tool and blocks until it exits. Stdout is returned only
// for a zero exit status.
func (r *Runner) Upload(ctx context.Context) ([]byte, error) {
	args := r.Args()
	if err := util.RequireBinary(r.cfg.Binary); err != nil {
		return nil, &LaunchError{Binary: r.cfg.Binary, Args: args, ExitCode: -1, Err: err}
	}

	r.log.Info().Str("binary", r.cfg.Binary).Str("source", r.cfg.SourceDir).Str("dest", r.cfg.DestName).Msg("starting upload")
	cmd := util.Command(ctx, r.cfg.Binary, args, r.cfg.Env)
	out, err := util.Run(cmd)
	if len(out.Stderr) > 0 {
		r.log.Debug().Str("stderr", util.Tail(out.Stderr, stderrTailBytes)).Msg("upload tool stderr")
	}
	if err != nil {
		if len(out.Stdout) > 0 {
			// The tool may already have been paid before failing.
			r.log.Warn().Int("exit_code", out.ExitCode).Int("stdout_bytes", len(out.Stdout)).
				Str("stdout", util.Tail(out.Stdout, stderrTailBytes)).
				Msg("upload tool failed; its output was not parsed")
		}
		return nil, &LaunchError{
			Binary:   r.cfg.Binary,
			Args:     args,
			ExitCode: out.ExitCode,
			Stderr:   util.Tail(out.Stderr, stderrTailBytes),
			Err:      err,
		}
	}
	r.log.Info().Int("bytes", len(out.Stdout)).Msg("upload finished")
	return out.Stdout, nil
}
