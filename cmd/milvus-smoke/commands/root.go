package commands

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmga-lab/milvus-smoke/pkg/smoke"
)

// ErrFailed is returned when the smoke run completed but a step failed.
var ErrFailed = errors.New("smoke test failed")

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. opts are passed to the smoke runner
// after the defaults.
func NewRootCmd(opts ...smoke.Option) *cobra.Command {
	var (
		configPath string
		logLevel   string
		flagCfg    = smoke.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "milvus-smoke",
		Short: "End-to-end smoke test for a Milvus endpoint",
		Long: `milvus-smoke - exercise a Milvus endpoint end to end.

Steps:
  1. connect            7. load collection
  2. list collections   8. entity statistics
  3. create collection  9. vector search
  4. insert vectors    10. filtered query
  5. flush             11. release (and drop with --drop)
  6. build index

Settings come from defaults, then --config (YAML), then MILVUS_HOST
(host or host:port), then explicitly set flags.

Examples:
  # Default run against localhost:19530
  milvus-smoke

  # Remote endpoint, HNSW index, verify results and clean up
  milvus-smoke --host milvus.internal --index-type HNSW --metric COSINE --strict --drop`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			cfg, err := resolveConfig(cmd, configPath)
			if err != nil {
				return err
			}
			logger.Debug("resolved configuration",
				zap.String("address", cfg.Address()),
				zap.Int("rows", cfg.Rows),
				zap.Int("dimension", cfg.Dimension),
				zap.String("index", cfg.Index.IndexType),
				zap.Bool("strict", cfg.Strict),
				zap.Bool("drop", cfg.Drop))

			runOpts := append([]smoke.Option{
				smoke.WithOutput(cmd.OutOrStdout()),
				smoke.WithLogger(logger),
			}, opts...)
			report := smoke.NewRunner(cfg, runOpts...).Run(cmd.Context())
			if !report.Passed() {
				return ErrFailed
			}
			return nil
		},
	}

	flagCfg.BindFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// resolveConfig layers defaults, the config file, MILVUS_HOST and explicitly
// set flags, in that order.
func resolveConfig(cmd *cobra.Command, configPath string) (smoke.Config, error) {
	cfg := smoke.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = smoke.LoadFile(configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Overlay(cmd.Flags()); err != nil {
		return cfg, errors.Wrap(err, "failed to apply flags")
	}
	return cfg, nil
}
