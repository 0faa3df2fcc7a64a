package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/ingest"
	"github.com/sells-group/churn-risk/internal/insights"
	"github.com/sells-group/churn-risk/internal/risk"
)

var (
	batchData   string
	batchInput  string
	batchOutput string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Train on --data, then score and rank every customer in --input",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Read the batch first so a malformed file fails before training.
		recs, err := ingest.ReadFile(ctx, batchInput)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "batch", batchData)
		if err != nil {
			return err
		}
		defer env.Close()

		br, err := env.Session.PredictBatch(ctx, recs)
		if err != nil {
			return err
		}

		if err := risk.ExportCSV(br.Predictions, batchOutput); err != nil {
			return err
		}
		zap.L().Info("batch: export written",
			zap.String("path", batchOutput),
			zap.Int("rows", len(br.Predictions)),
		)

		printBusiness(cmd.OutOrStdout(), br)
		return nil
	},
}

func printBusiness(w io.Writer, br *risk.BatchResult) {
	b := br.Business
	fmt.Fprintf(w, "customers:             %d\n", b.Total)
	for _, p := range insights.TierSeries(br) {
		fmt.Fprintf(w, "  %-6s               %d (%.1f%%)\n", p.Label, p.Count, p.Share*100)
	}
	if b.OutOfRangeCount > 0 {
		fmt.Fprintf(w, "outside training range: %d\n", b.OutOfRangeCount)
	}
	fmt.Fprintf(w, "avg monthly charge:    %.2f\n", b.AvgMonthlyCharge)
	fmt.Fprintf(w, "potential annual loss: %.2f\n", b.PotentialAnnualLoss)
	fmt.Fprintf(w, "expected savings:      %.2f\n", b.ExpectedSavings)
	fmt.Fprintf(w, "retention cost:        %.2f\n", b.RetentionCost)
	fmt.Fprintf(w, "roi:                   %.2f\n", b.ROI)
	if cm := b.Confusion; cm != nil {
		fmt.Fprintf(w, "confusion:             tp=%d tn=%d fp=%d fn=%d\n", cm.TruePositive, cm.TrueNegative, cm.FalsePositive, cm.FalseNegative)
		fmt.Fprintf(w, "false positive cost:   %.2f\n", b.CostOfFalsePositives)
		fmt.Fprintf(w, "false negative cost:   %.2f\n", b.CostOfFalseNegatives)
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchData, "data", "", "labelled training data (.csv or .xlsx)")
	batchCmd.Flags().StringVar(&batchInput, "input", "", "customers to score (.csv or .xlsx)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "churn-risk.csv", "ranked CSV export path")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
