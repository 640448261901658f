package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowjay/arpm/internal/config"
	"github.com/rowjay/arpm/internal/cryptoutil"
	"github.com/rowjay/arpm/internal/lock"
	"github.com/rowjay/arpm/internal/manifest"
	"github.com/rowjay/arpm/internal/notify"
	"github.com/rowjay/arpm/internal/storage"
)

// Uploader pushes the upload root to the network and returns the tool's
// JSON receipt.
type Uploader interface {
	Name() string
	Root() string
	Validate(ctx context.Context) error
	Upload(ctx context.Context) ([]byte, error)
}

type App struct {
	Cfg      *config.Config
	Uploader Uploader
	Storage  storage.Storage
	Log      zerolog.Logger
	Notifier notify.Notifier
	Stdout   io.Writer

	now   func() time.Time
	newID func() string
}

func New(cfg *config.Config, uploader Uploader, store storage.Storage, log zerolog.Logger, notifier notify.Notifier) *App {
	return &App{
		Cfg:      cfg,
		Uploader: uploader,
		Storage:  store,
		Log:      log,
		Notifier: notifier,
		Stdout:   os.Stdout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Result is what a successful run produced.
type Result struct {
	RunID      string
	Receipt    *manifest.Receipt
	Manifest   manifest.Manifest
	Output     string
	ArchiveKey string
}

// run carries one invocation through publish, archive and notify.
type run struct {
	kind    string
	id      string
	started time.Time
	raw     []byte
	result  *Result
	err     error
	log     zerolog.Logger
}

// Deploy uploads the source directory, then writes the path manifest for it.
func (a *App) Deploy(ctx context.Context) (*Result, error) {
	r := a.begin("deploy")
	defer a.finish(r)

	lockPath := a.Cfg.Global.LockFile
	if lockPath == "" {
		lockPath = lock.ForSource(a.Uploader.Root())
	}
	guard, err := lock.Acquire(lockPath)
	if err != nil {
		r.err = err
		return nil, err
	}
	defer guard.Release()
	r.log.Debug().Str("lock", guard.Path()).Msg("deploy lock held")

	raw, err := a.Uploader.Upload(ctx)
	if err != nil {
		r.err = err
		return nil, err
	}
	r.raw = raw

	a.publish(ctx, r)
	if r.err != nil && !a.Cfg.Archive.Enabled {
		a.saveReceipt(r)
	}
	a.archive(ctx, r)
	return r.result, r.err
}

// Generate builds the manifest from a receipt saved by an earlier upload.
func (a *App) Generate(ctx context.Context, raw []byte) (*Result, error) {
	r := a.begin("generate")
	defer a.finish(r)
	r.raw = raw

	a.publish(ctx, r)
	a.archive(ctx, r)
	return r.result, r.err
}

// Validate checks everything a deploy needs without uploading.
func (a *App) Validate(ctx context.Context) error {
	if err := a.Uploader.Validate(ctx); err != nil {
		return err
	}
	outDir := filepath.Dir(a.Cfg.Manifest.Output)
	info, err := os.Stat(outDir)
	if err != nil {
		return fmt.Errorf("manifest output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("manifest output directory %s is not a directory", outDir)
	}
	if !a.Cfg.Archive.Enabled {
		return nil
	}
	if a.Cfg.Archive.Encryption {
		if _, err := cryptoutil.ParseKey(cryptoutil.ArchiveKeySetting, a.Cfg.Archive.EncryptionKey); err != nil {
			return err
		}
	}
	_, err = a.Storage.List(ctx, a.prefix())
	return err
}

func (a *App) begin(kind string) *run {
	r := &run{kind: kind, id: a.newID(), started: a.now()}
	r.log = a.Log.With().Str("run_id", r.id).Str("dest", a.Cfg.Ardrive.DestName).Logger()
	r.log.Debug().Str("uploader", a.Uploader.Name()).Str("root", a.Uploader.Root()).Msgf("%s started", kind)
	return r
}

// saveReceipt keeps the output of a paid upload whose manifest could not be
// produced, next to where the manifest would have gone, so generate can
// retry from it.
func (a *App) saveReceipt(r *run) {
	path := receiptPath(a.Cfg.Manifest.Output, r.id)
	if err := manifest.WriteFile(path, r.raw); err != nil {
		r.log.Error().Err(err).Str("receipt", string(r.raw)).Msg("could not save upload output; logged instead")
		return
	}
	r.log.Warn().Str("receipt", path).Msg("upload output saved; rerun with generate -i")
}

func receiptPath(output, runID string) string {
	return filepath.Join(filepath.Dir(output), "arpm-receipt-"+runID+".json")
}

func (a *App) publish(_ context.Context, r *run) {
	receipt, err := manifest.Parse(r.raw, a.Uploader.Root())
	if err != nil {
		r.err = err
		return
	}
	for typ, n := range receipt.Skipped {
		r.log.Debug().Str("type", typ).Int("count", n).Msg("skipped non-file entities")
	}
	if receipt.Duplicates > 0 {
		r.log.Warn().Int("duplicates", receipt.Duplicates).Msg("upload output repeated paths; later entries kept")
	}

	m := manifest.Build(receipt.Files, a.Cfg.Manifest.Index)
	var console io.Writer
	if a.Cfg.Manifest.Print {
		console = a.Stdout
	}
	if _, err := manifest.Emit(m, a.Cfg.Manifest.Output, console); err != nil {
		r.err = err
		return
	}
	if m.Fallback == nil {
		r.log.Warn().Str("index", m.Index.Path).Msg("index path was not uploaded; manifest has no fallback")
	}
	r.log.Info().Int("files", len(m.Paths)).Str("output", a.Cfg.Manifest.Output).Msg("manifest written")
	r.result = &Result{RunID: r.id, Receipt: receipt, Manifest: m, Output: a.Cfg.Manifest.Output}
}

func (a *App) finish(r *run) {
	if a.Notifier == nil {
		return
	}
	ended := a.now()
	event := notify.Event{
		Type:        r.kind,
		RunID:       r.id,
		Message:     fmt.Sprintf("%s %s", r.kind, a.Cfg.Ardrive.DestName),
		Status:      statusFromErr(r.err),
		Destination: a.Cfg.Ardrive.DestName,
		SourceDir:   a.Uploader.Root(),
		StartedAt:   r.started,
		EndedAt:     ended,
		Duration:    ended.Sub(r.started).String(),
	}
	if r.result != nil {
		event.Files = len(r.result.Manifest.Paths)
		event.ManifestPath = r.result.Output
		event.ArchiveKey = r.result.ArchiveKey
		if r.result.Manifest.Fallback != nil {
			event.FallbackID = r.result.Manifest.Fallback.ID
		}
	}
	if r.err != nil {
		event.Error = r.err.Error()
	}
	if err := a.Notifier.Notify(context.Background(), event); err != nil {
		r.log.Warn().Err(err).Msg("notification failed")
	}
}

func statusFromErr(err error) string {
	if err == nil {
		return "success"
	}
	return "failed"
}
