package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"train", "predict", "batch", "summary", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "churn-risk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestTrainCommand_Flags(t *testing.T) {
	require.NotNil(t, trainCmd.Flags().Lookup("data"))
	require.NotNil(t, trainCmd.Flags().Lookup("report"))
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("output")
	require.NotNil(t, flag, "batch command should have --output flag")
	assert.Equal(t, "churn-risk.csv", flag.DefValue)
	require.NotNil(t, batchCmd.Flags().Lookup("input"))
}

func TestPredictCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "record", "probability", "tenure", "monthly", "contract"} {
		assert.NotNil(t, predictCmd.Flags().Lookup(name), name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord("tenure=5, MonthlyCharges=80.5,Contract=Month-to-month,gender=Male,")
	require.NoError(t, err)
	assert.Equal(t, "5", rec.Tenure)
	assert.Equal(t, "80.5", rec.MonthlyCharges)
	assert.Equal(t, "Month-to-month", rec.Contract)
	assert.Equal(t, "Male", rec.Extra["gender"])

	_, err = parseRecord("tenure")
	assert.Error(t, err)
	_, err = parseRecord("=5")
	assert.Error(t, err)
	_, err = parseRecord(" , ")
	assert.Error(t, err)
}
