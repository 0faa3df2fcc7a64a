package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "churn-risk",
	Short: "Customer churn risk scoring pipeline",
	Long:  "Trains a churn classifier on labelled customer data, evaluates it on a held-out split, and scores customers into risk tiers with retention strategies and business impact.",
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
