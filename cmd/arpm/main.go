package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowjay/arpm/internal/app"
	"github.com/rowjay/arpm/internal/ardrive"
	"github.com/rowjay/arpm/internal/config"
	"github.com/rowjay/arpm/internal/logging"
	"github.com/rowjay/arpm/internal/manifest"
	"github.com/rowjay/arpm/internal/notify"
	"github.com/rowjay/arpm/internal/storage"
	"github.com/rowjay/arpm/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Binary         string
	Wallet         string
	SourceDir      string
	DestName       string
	ParentFolderID string
	Output         string
	Index          string
	Quiet          bool
	Archive        string
	Storage        string
	LocalPath      string
	S3Endpoint     string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3Region       string
	S3UseSSL       string
	S3PathStyle    string
	EncryptionKey  string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:           "arpm",
		Short:         "Upload a build directory with ardrive and write its arweave/paths manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.Binary, "ardrive-bin", "", "Upload tool binary")
	rootCmd.PersistentFlags().StringVarP(&overrides.Wallet, "wallet", "w", "", "Arweave wallet key file")
	rootCmd.PersistentFlags().StringVarP(&overrides.SourceDir, "source-dir", "f", "", "Directory to upload (upload root)")
	rootCmd.PersistentFlags().StringVarP(&overrides.DestName, "dest", "d", "", "Destination name on the drive")
	rootCmd.PersistentFlags().StringVar(&overrides.ParentFolderID, "parent-folder-id", "", "Drive folder to upload into")
	rootCmd.PersistentFlags().StringVarP(&overrides.Output, "output", "o", "", "Manifest output path")
	rootCmd.PersistentFlags().StringVar(&overrides.Index, "index", "", "Index path inside the manifest")
	rootCmd.PersistentFlags().BoolVarP(&overrides.Quiet, "quiet", "q", false, "Do not print the manifest to stdout")

	rootCmd.PersistentFlags().StringVar(&overrides.Archive, "archive", "", "Archive receipts and manifests (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.Storage, "storage", "", "Archive backend (local, s3)")
	rootCmd.PersistentFlags().StringVar(&overrides.LocalPath, "storage-path", "", "Local archive path")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	rootCmd.PersistentFlags().StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.EncryptionKey, "encryption-key", "", "Archive encryption key (base64 or hex)")

	rootCmd.AddCommand(newDeployCmd(root, overrides))
	rootCmd.AddCommand(newGenerateCmd(root, overrides))
	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newShowCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arpm: %s: %v\n", errorKind(err), err)
		os.Exit(1)
	}
}

func newDeployCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Upload the source directory and write its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(svc.Cfg)
			defer cancel()

			res, err := svc.Deploy(ctx)
			if err != nil {
				return err
			}
			logger.Info().Str("run_id", res.RunID).Int("files", len(res.Manifest.Paths)).Str("output", res.Output).Msg("deploy completed")
			return nil
		},
	}
}

func newGenerateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a manifest from a saved upload receipt without uploading",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(svc.Cfg)
			defer cancel()

			res, err := svc.Generate(ctx, raw)
			if err != nil {
				return err
			}
			logger.Info().Str("run_id", res.RunID).Int("files", len(res.Manifest.Paths)).Str("output", res.Output).Msg("manifest generated")
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "Receipt file written by the upload tool (- for stdin)")
	return cmd
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, wallet, source directory and archive access",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(svc.Cfg)
			defer cancel()
			if err := svc.Validate(ctx); err != nil {
				return err
			}
			logger.Info().Msg("validation succeeded")
			return nil
		},
	}
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived runs for the destination",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(svc.Cfg)
			defer cancel()
			items, err := svc.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, item := range items {
				fmt.Fprintf(out, "%s\t%d\t%s\n", item.Key, item.Size, item.Modified.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newShowCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an archived receipt, manifest or record",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return fmt.Errorf("--key is required")
			}
			svc, _, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := operationContext(svc.Cfg)
			defer cancel()
			body, err := svc.Show(ctx, key)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Archive key as printed by list")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arpm %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func setup(root *rootFlags, overrides *overrideFlags) (*app.App, zerolog.Logger, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, logger, err
	}
	runner := ardrive.NewRunner(cfg.Ardrive, cfg.Global.AllowMissingTools, logger)
	return app.New(cfg, runner, store, logger, notify.FromConfig(cfg.Notifications)), logger, nil
}

func operationContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Global.OperationTimeout > 0 {
		return context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
	}
	return context.WithCancel(context.Background())
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.Binary != "" {
		cfg.Ardrive.Binary = overrides.Binary
	}
	if overrides.Wallet != "" {
		cfg.Ardrive.Wallet = overrides.Wallet
	}
	if overrides.SourceDir != "" {
		if overrides.DestName == "" && cfg.Ardrive.DestName == filepath.Base(filepath.Clean(cfg.Ardrive.SourceDir)) {
			cfg.Ardrive.DestName = filepath.Base(filepath.Clean(overrides.SourceDir))
		}
		cfg.Ardrive.SourceDir = overrides.SourceDir
	}
	if overrides.DestName != "" {
		cfg.Ardrive.DestName = overrides.DestName
	}
	if overrides.ParentFolderID != "" {
		cfg.Ardrive.ParentFolderID = overrides.ParentFolderID
	}
	if overrides.Output != "" {
		cfg.Manifest.Output = overrides.Output
	}
	if overrides.Index != "" {
		cfg.Manifest.Index = overrides.Index
	}
	if overrides.Quiet {
		cfg.Manifest.Print = false
	}

	if overrides.Archive != "" {
		cfg.Archive.Enabled = parseBool(overrides.Archive)
	}
	if overrides.EncryptionKey != "" {
		cfg.Archive.EncryptionKey = overrides.EncryptionKey
		cfg.Archive.Encryption = true
	}
	if overrides.Storage != "" {
		cfg.Storage.Backend = overrides.Storage
	}
	if overrides.LocalPath != "" {
		cfg.Storage.Local.Path = overrides.LocalPath
	}
	if overrides.S3Endpoint != "" {
		cfg.Storage.S3.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Storage.S3.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Storage.S3.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Storage.S3.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Storage.S3.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Storage.S3.UseSSL = parseBool(overrides.S3UseSSL)
	}
	if overrides.S3PathStyle != "" {
		cfg.Storage.S3.ForcePathStyle = parseBool(overrides.S3PathStyle)
	}

	cfg.Archive.Compression = strings.ToLower(cfg.Archive.Compression)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// errorKind names which stage of the pipeline failed.
func errorKind(err error) string {
	var launchErr *ardrive.LaunchError
	var parseErr *manifest.ParseError
	var schemaErr *manifest.SchemaError
	var writeErr *manifest.WriteError
	switch {
	case errors.As(err, &launchErr):
		return "launch"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &writeErr):
		return "write"
	default:
		return "error"
	}
}
