package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfig = `
log:
  level: error
model:
  hidden_units: [8, 4]
  dropout: [0.1]
  epochs: 3
  batch_size: 16
`

// setupWorkdir moves into a temp dir holding a fast config and n labelled rows.
func setupWorkdir(t *testing.T, n int) (dir, data string) {
	t.Helper()
	dir = t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o644))

	var b strings.Builder
	b.WriteString("customerID,tenure,MonthlyCharges,TotalCharges,Contract,OnlineSecurity,TechSupport,InternetService,Churn\n")
	contracts := []string{"Month-to-month", "One year", "Two year"}
	for i := range n {
		tenure := (i * 7) % 72
		monthly := 20 + float64((i*13)%100)
		churn := "No"
		if i%3 == 0 && tenure < 30 {
			churn = "Yes"
		}
		fmt.Fprintf(&b, "C%03d,%d,%.2f,%.2f,%s,%s,No,Fiber optic,%s\n",
			i, tenure, monthly, monthly*float64(tenure), contracts[i%3], []string{"Yes", "No"}[i%2], churn)
	}
	data = filepath.Join(dir, "customers.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))
	return dir, data
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestTrainCommand(t *testing.T) {
	dir, data := setupWorkdir(t, 50)
	report := filepath.Join(dir, "report.yaml")

	out, err := execute(t, "train", "--data", data, "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "test rows:   10")
	assert.Contains(t, out, "f1:")

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "model")
	assert.Contains(t, doc, "evaluation")
	assert.Equal(t, data, doc["data"])
}

func TestTrainCommand_MissingData(t *testing.T) {
	setupWorkdir(t, 10)
	_, err := execute(t, "train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")
}

func TestBatchCommand(t *testing.T) {
	dir, data := setupWorkdir(t, 40)
	output := filepath.Join(dir, "ranked.csv")

	out, err := execute(t, "batch", "--data", data, "--input", data, "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "customers:             40")
	assert.Contains(t, out, "potential annual loss")
	assert.Contains(t, out, "confusion:")

	raw, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 41)
	assert.Equal(t, "Customer_ID,Churn_Probability,Risk_Level,Tenure,Monthly_Charges,Contract", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,"))
}

func TestBatchCommand_MalformedInput(t *testing.T) {
	dir, data := setupWorkdir(t, 20)
	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("tenure,Contract\n"), 0o644))

	_, err := execute(t, "batch", "--data", data, "--input", empty, "--output", filepath.Join(dir, "out.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed batch")
}

func TestPredictCommand_Probability(t *testing.T) {
	setupWorkdir(t, 1)

	out, err := execute(t, "predict", "--probability", "0.8", "--tenure", "3", "--monthly", "50")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "high", got["risk_tier"])
	assert.InDelta(t, 1200, got["lifetime_value"], 1e-9)
	assert.InDelta(t, 0.8, got["probability"], 1e-9)

	_, err = execute(t, "predict", "--probability", "1.5")
	assert.Error(t, err)
}

func TestPredictCommand_Record(t *testing.T) {
	_, data := setupWorkdir(t, 40)

	out, err := execute(t, "predict", "--data", data, "--record", "tenure=2,MonthlyCharges=95,Contract=Month-to-month")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	p, ok := got["probability"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
	assert.Contains(t, got, "assessment")

	_, err = execute(t, "predict", "--data", data)
	assert.Error(t, err)
}

func TestSummaryCommand(t *testing.T) {
	_, data := setupWorkdir(t, 12)

	out, err := execute(t, "summary", "--data", data)
	require.NoError(t, err)

	var got struct {
		Dataset struct {
			Rows     int `json:"rows"`
			Labelled int `json:"labelled"`
		} `json:"dataset"`
		FeatureImportance []map[string]any `json:"feature_importance"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 12, got.Dataset.Rows)
	assert.Equal(t, 12, got.Dataset.Labelled)
	assert.Len(t, got.FeatureImportance, 8)
}
