package risk

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/model"
)

// exportColumns defines the ordered batch export columns.
var exportColumns = []string{
	"Customer_ID",
	"Churn_Probability",
	"Risk_Level",
	"Tenure",
	"Monthly_Charges",
	"Contract",
}

// WriteCSV writes ranked predictions as the batch export. Customer_ID is the
// 1-based rank.
func WriteCSV(w io.Writer, preds []model.PredictionResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportColumns); err != nil {
		return eris.Wrap(err, "risk export: write header")
	}
	for i, p := range preds {
		if err := cw.Write(exportRow(i+1, p)); err != nil {
			return eris.Wrap(err, "risk export: write row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "risk export: flush")
	}
	return nil
}

// ExportCSV writes the batch export to a file.
func ExportCSV(preds []model.PredictionResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "risk export: create file")
	}
	defer f.Close() //nolint:errcheck

	return WriteCSV(f, preds)
}

func exportRow(rank int, p model.PredictionResult) []string {
	var src model.CustomerRecord
	if p.Source != nil {
		src = *p.Source
	}
	return []string{
		strconv.Itoa(rank),                       // Customer_ID
		fmt.Sprintf("%.2f%%", p.Probability*100), // Churn_Probability
		p.Tier.Label(),                           // Risk_Level
		src.Tenure,                               // Tenure
		src.MonthlyCharges,                       // Monthly_Charges
		src.Contract,                             // Contract
	}
}
