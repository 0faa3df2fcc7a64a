package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/churn-risk/internal/features"
	"github.com/sells-group/churn-risk/internal/model"
	"github.com/sells-group/churn-risk/internal/risk"
)

var (
	predictData        string
	predictRecord      string
	predictProbability float64
	predictTenure      float64
	predictMonthly     float64
	predictContract    string
)

// assessment is the --probability output.
type assessment struct {
	Probability float64      `json:"probability"`
	Profile     risk.Profile `json:"profile"`
	risk.Assessment
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score one customer",
	Long: "Scores a single customer. With --record the model is trained on --data first; " +
		"with --probability the given churn probability is assessed directly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("probability") {
			if err := cfg.Validate("predict"); err != nil {
				return err
			}
			if predictProbability < 0 || predictProbability > 1 {
				return eris.Errorf("predict: probability must be in [0,1], got %v", predictProbability)
			}
			prof := risk.Profile{
				Tenure:         predictTenure,
				MonthlyCharges: predictMonthly,
				Contract:       features.ContractCode(predictContract),
			}
			return writeJSON(cmd.OutOrStdout(), assessment{
				Probability: predictProbability,
				Profile:     prof,
				Assessment:  cfg.Policy.Assess(predictProbability, prof),
			})
		}

		if predictRecord == "" {
			return eris.New("predict: one of --record or --probability is required")
		}
		rec, err := parseRecord(predictRecord)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "predict", predictData)
		if err != nil {
			return err
		}
		defer env.Close()

		pred, err := env.Session.PredictOne(ctx, rec)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), pred)
	},
}

// parseRecord reads "col=value,col=value" into a record.
func parseRecord(s string) (model.CustomerRecord, error) {
	row := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return model.CustomerRecord{}, eris.Errorf("predict: invalid record field %q (want col=value)", pair)
		}
		row[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(row) == 0 {
		return model.CustomerRecord{}, eris.New("predict: record has no fields")
	}
	return model.RecordFromRow(row), nil
}

func init() {
	predictCmd.Flags().StringVar(&predictData, "data", "", "labelled training data (.csv or .xlsx)")
	predictCmd.Flags().StringVar(&predictRecord, "record", "", "customer as col=value pairs, e.g. tenure=5,MonthlyCharges=80,Contract=Month-to-month")
	predictCmd.Flags().Float64Var(&predictProbability, "probability", 0, "assess this churn probability instead of predicting one")
	predictCmd.Flags().Float64Var(&predictTenure, "tenure", 0, "tenure in months (with --probability)")
	predictCmd.Flags().Float64Var(&predictMonthly, "monthly", 0, "monthly charges (with --probability)")
	predictCmd.Flags().StringVar(&predictContract, "contract", "Month-to-month", "contract term (with --probability)")
	rootCmd.AddCommand(predictCmd)
}
