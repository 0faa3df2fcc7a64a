package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/churn-risk/internal/model"
)

// ReadXLSX reads records from the first sheet of a workbook. The first row
// names the columns.
func ReadXLSX(path string) ([]model.CustomerRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: xlsx open file")
	}
	if len(f.Sheets) == 0 {
		return nil, &model.MalformedBatchError{Source: path, Reason: "workbook has no sheets"}
	}

	var (
		header []string
		recs   []model.CustomerRecord
	)
	for _, row := range f.Sheets[0].Rows {
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if header == nil {
			header = normalizeHeader(cells)
			continue
		}
		if blankRow(cells) {
			continue
		}
		recs = append(recs, rowRecord(header, cells))
	}

	if len(recs) == 0 {
		return nil, &model.MalformedBatchError{Source: path, Reason: "no data rows"}
	}
	return recs, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
