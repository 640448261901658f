package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rowjay/arpm/internal/compress"
	"github.com/rowjay/arpm/internal/cryptoutil"
	"github.com/rowjay/arpm/internal/storage"
	"github.com/rowjay/arpm/internal/util"
	"github.com/rowjay/arpm/internal/version"
)

const (
	receiptKind  = "receipt.json"
	manifestKind = "manifest.json"
)

// archive stores the receipt, the manifest and a record for r. Failures are
// logged; the manifest on disk is already final by now.
func (a *App) archive(ctx context.Context, r *run) {
	if !a.Cfg.Archive.Enabled || len(r.raw) == 0 {
		return
	}
	stem, err := a.storeRun(ctx, r)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to archive run")
		return
	}
	r.log.Info().Str("key", stem).Msg("run archived")
	if r.result != nil {
		r.result.ArchiveKey = stem
	}
	if err := a.applyRetention(ctx, r.log); err != nil {
		r.log.Warn().Err(err).Msg("retention failed")
	}
}

func (a *App) storeRun(ctx context.Context, r *run) (string, error) {
	cfg := a.Cfg.Archive
	stem := util.BuildObjectKey(a.Cfg.Storage.Prefix, a.Cfg.Ardrive.DestName, r.started, r.id, "")
	receiptKey := stem + "." + receiptKind
	if ext := compress.Extension(cfg.Compression); ext != "" {
		receiptKey += "." + ext
	}

	payload, err := compress.Bytes(cfg.Compression, r.raw)
	if err != nil {
		return "", err
	}
	if cfg.Encryption {
		key, err := cryptoutil.ParseKey(cryptoutil.ArchiveKeySetting, cfg.EncryptionKey)
		if err != nil {
			return "", err
		}
		if payload, err = cryptoutil.Seal(payload, key); err != nil {
			return "", err
		}
		receiptKey += ".enc"
	}

	meta := map[string]string{"arpm-run": r.id}
	if err := a.put(ctx, receiptKey, payload, meta); err != nil {
		return "", fmt.Errorf("archive receipt: %w", err)
	}

	record := storage.Record{
		RunID:        r.id,
		Destination:  a.Cfg.Ardrive.DestName,
		SourceDir:    a.Uploader.Root(),
		ReceiptKey:   receiptKey,
		Compression:  cfg.Compression,
		Encryption:   cfg.Encryption,
		CreatedAt:    r.started.UTC(),
		ReceiptBytes: int64(len(r.raw)),
		ToolVersion:  version.Version,
	}
	if r.err != nil {
		record.Error = r.err.Error()
	}
	if r.result != nil {
		data, err := os.ReadFile(r.result.Output)
		if err != nil {
			return "", fmt.Errorf("read manifest for archive: %w", err)
		}
		record.ManifestKey = stem + "." + manifestKind
		record.ManifestPath = r.result.Output
		record.Files = len(r.result.Manifest.Paths)
		record.Skipped = r.result.Receipt.Skipped
		if err := a.put(ctx, record.ManifestKey, data, meta); err != nil {
			return "", fmt.Errorf("archive manifest: %w", err)
		}
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", err
	}
	if err := a.put(ctx, storage.RecordKey(stem), body, meta); err != nil {
		return "", fmt.Errorf("archive record: %w", err)
	}
	return stem, nil
}

func (a *App) put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	return util.Retry(ctx, a.Cfg.Archive.RetryCount, a.Cfg.Archive.RetryBackoff, func() error {
		return a.Storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), meta)
	})
}

// List returns archived objects for the configured destination.
func (a *App) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	return a.Storage.List(ctx, a.prefix())
}

// Show returns an archived object. Receipts come back decrypted and
// decompressed as the tool originally printed them.
func (a *App) Show(ctx context.Context, key string) ([]byte, error) {
	exists, err := a.Storage.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("no archived object %s", key)
	}
	body, err := a.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(key, "."+receiptKind) {
		return body, nil
	}

	var record storage.Record
	recordBody, err := a.read(ctx, storage.RecordKey(util.RunStem(key)))
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if err := json.Unmarshal(recordBody, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	payload := io.Reader(bytes.NewReader(body))
	if record.Encryption {
		secret, err := cryptoutil.ParseKey(cryptoutil.ArchiveKeySetting, a.Cfg.Archive.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("encryption key is required to read encrypted receipt: %w", err)
		}
		if payload, err = cryptoutil.DecryptReader(payload, secret); err != nil {
			return nil, err
		}
	}
	rc, err := compress.WrapReader(record.Compression, payload)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *App) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.Storage.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// applyRetention deletes whole runs beyond keep_last that are also older
// than keep_days. Keys sort by their UTC timestamp.
func (a *App) applyRetention(ctx context.Context, log zerolog.Logger) error {
	policy := a.Cfg.Archive.Retention
	if policy.KeepLast == 0 && policy.KeepDays == 0 {
		return nil
	}
	objects, err := a.Storage.List(ctx, a.prefix())
	if err != nil {
		return err
	}
	byRun := map[string][]string{}
	var runs []string
	for _, obj := range objects {
		stem := util.RunStem(obj.Key)
		if _, seen := byRun[stem]; !seen {
			runs = append(runs, stem)
		}
		byRun[stem] = append(byRun[stem], obj.Key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))

	cutoff := a.now().AddDate(0, 0, -policy.KeepDays)
	for i, stem := range runs {
		if policy.KeepLast > 0 && i < policy.KeepLast {
			continue
		}
		if policy.KeepDays > 0 {
			when, ok := util.RunTime(stem)
			if !ok || !when.Before(cutoff) {
				continue
			}
		}
		for _, key := range byRun[stem] {
			if err := a.Storage.Delete(ctx, key); err != nil {
				return err
			}
		}
		log.Info().Str("run", stem).Msg("pruned archived run")
	}
	return nil
}

func (a *App) prefix() string {
	return util.BuildPrefix(a.Cfg.Storage.Prefix, a.Cfg.Ardrive.DestName)
}
