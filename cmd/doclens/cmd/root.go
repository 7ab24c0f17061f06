// Package cmd provides the CLI commands for doclens.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclens/doclens/internal/config"
	"github.com/doclens/doclens/internal/logging"
	"github.com/doclens/doclens/pkg/version"
)

var (
	flagDir      string
	flagLogLevel string
	flagJSONLogs bool
)

// NewRootCmd creates the root command for the doclens CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doclens",
		Short: "Local-first document indexing and hybrid search",
		Long: `DocLens indexes a directory of documents into a local hybrid search
index (BM25 keyword + semantic vectors) and keeps it fresh with
incremental, checkpointed updates as files change.

Everything runs locally; no data leaves the machine.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("doclens version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flagDir, "dir", "d", ".", "Directory to index and search")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "Emit logs as JSON")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig resolves configuration for the --dir flag and installs the
// logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagDir)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	format := cfg.Logging.Format
	if flagJSONLogs {
		format = "json"
	}
	logging.Setup(os.Stderr, level, format)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print detailed version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}
