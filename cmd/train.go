package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/churn-risk/internal/evaluate"
	"github.com/sells-group/churn-risk/internal/risk"
	"github.com/sells-group/churn-risk/internal/session"
	"github.com/sells-group/churn-risk/internal/trainer"
)

var (
	trainData   string
	trainReport string
)

// trainingReport is the YAML document written by --report.
type trainingReport struct {
	GeneratedAt time.Time         `yaml:"generated_at"`
	Data        string            `yaml:"data"`
	Model       session.ModelInfo `yaml:"model"`
	Evaluation  *evaluate.Report  `yaml:"evaluation,omitempty"`
	Config      trainer.Config    `yaml:"config"`
	Policy      risk.Policy       `yaml:"policy"`
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train and evaluate a churn classifier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "train", trainData)
		if err != nil {
			return err
		}
		defer env.Close()

		info, err := env.Session.Model()
		if err != nil {
			return err
		}
		printTraining(cmd.OutOrStdout(), info, env.Evaluation)

		if trainReport != "" {
			rep := trainingReport{
				GeneratedAt: time.Now().UTC(),
				Data:        trainData,
				Model:       info,
				Evaluation:  env.Evaluation,
				Config:      cfg.Model,
				Policy:      cfg.Policy,
			}
			if err := writeYAML(trainReport, rep); err != nil {
				return err
			}
		}
		return nil
	},
}

func printTraining(w io.Writer, info session.ModelInfo, ev *evaluate.Report) {
	fmt.Fprintf(w, "model:       %s\n", info.ID)
	fmt.Fprintf(w, "train rows:  %d\n", info.TrainRows)
	if h := info.History; h != nil && len(h.Epochs) > 0 {
		last := h.Last()
		fmt.Fprintf(w, "final epoch: %d loss=%.4f acc=%.4f\n", last.Epoch, last.Loss, last.Accuracy)
	}
	if ev == nil {
		fmt.Fprintln(w, "evaluation:  skipped (no held-out rows)")
		return
	}
	m, cm := ev.Metrics, ev.Matrix
	fmt.Fprintf(w, "test rows:   %d\n", ev.Samples)
	fmt.Fprintf(w, "loss:        %.4f\n", ev.Loss)
	fmt.Fprintf(w, "accuracy:    %.4f\n", m.Accuracy)
	fmt.Fprintf(w, "precision:   %.4f\n", m.Precision)
	fmt.Fprintf(w, "recall:      %.4f\n", m.Recall)
	fmt.Fprintf(w, "specificity: %.4f\n", m.Specificity)
	fmt.Fprintf(w, "f1:          %.4f\n", m.F1)
	fmt.Fprintf(w, "confusion:   tp=%d tn=%d fp=%d fn=%d\n", cm.TruePositive, cm.TrueNegative, cm.FalsePositive, cm.FalseNegative)
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "train: create report")
	}
	defer f.Close() //nolint:errcheck

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "train: encode report")
	}
	return eris.Wrap(enc.Close(), "train: flush report")
}

func init() {
	trainCmd.Flags().StringVar(&trainData, "data", "", "labelled training data (.csv or .xlsx)")
	trainCmd.Flags().StringVar(&trainReport, "report", "", "write a YAML training report to this path")
	rootCmd.AddCommand(trainCmd)
}
