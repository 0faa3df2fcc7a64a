// Package ingest reads customer records from CSV and XLSX sources.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/churn-risk/internal/model"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
}

// StreamCSV reads a CSV with a header row and sends one record per data row.
// Short rows leave the missing columns absent. Both channels are closed when
// processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan model.CustomerRecord, <-chan error) {
	recCh := make(chan model.CustomerRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		var header []string
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: csv context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "ingest: csv read row")
				return
			}

			if header == nil {
				header = normalizeHeader(row)
				continue
			}
			if blankRow(row) {
				continue
			}

			select {
			case recCh <- rowRecord(header, row):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: csv context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// ReadCSV reads every record from a comma-separated source. A source with no
// data rows is a malformed batch.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.CustomerRecord, error) {
	return readCSV(ctx, r, "csv", CSVOptions{})
}

func readCSV(ctx context.Context, r io.Reader, source string, opts CSVOptions) ([]model.CustomerRecord, error) {
	recCh, errCh := StreamCSV(ctx, r, opts)

	var recs []model.CustomerRecord
	for rec := range recCh {
		recs = append(recs, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &model.MalformedBatchError{Source: source, Reason: "no data rows"}
	}
	return recs, nil
}

// normalizeHeader trims column names and drops a UTF-8 byte order mark.
func normalizeHeader(row []string) []string {
	header := make([]string, len(row))
	for i, h := range row {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}
	return header
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// rowRecord maps row values onto header columns. Values past the header
// and unnamed columns are ignored.
func rowRecord(header, row []string) model.CustomerRecord {
	m := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" || i >= len(row) {
			continue
		}
		m[name] = strings.TrimSpace(row[i])
	}
	return model.RecordFromRow(m)
}
