package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/thread-annotator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "thread-annotator",
	Short: "Structured analysis of discussion threads",
	Long:  "Rebuilds comment trees, chunks posts and asks a text generation model for one schema-conforming JSON value per template field, retrying until the output validates.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
