package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/churn-risk/internal/ingest"
	"github.com/sells-group/churn-risk/internal/insights"
)

var summaryData string

type summaryOutput struct {
	Dataset           insights.Summary      `json:"dataset"`
	FeatureImportance []insights.Importance `json:"feature_importance"`
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print dataset statistics and data-quality counts as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("summary"); err != nil {
			return err
		}
		recs, err := ingest.ReadFile(cmd.Context(), summaryData)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), summaryOutput{
			Dataset:           insights.Summarize(recs),
			FeatureImportance: insights.FeatureImportance(),
		})
	},
}

func init() {
	summaryCmd.Flags().StringVar(&summaryData, "data", "", "customer data (.csv or .xlsx)")
	_ = summaryCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(summaryCmd)
}
