package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/config"
	"github.com/sells-group/keyword-cli/internal/source"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "keyword-cli",
	Short: "Search keyword revenue attribution",
	Long:  "Reads web-analytics hit data, credits purchase revenue to the last search engine and keyword that referred each visitor, and writes a search keyword performance report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceErrors: true,
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, source.ErrSourceUnavailable) {
		return 2
	}
	return 1
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
