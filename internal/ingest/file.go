package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/churn-risk/internal/model"
)

// ReadFile reads records from a .csv, .tsv or .xlsx file.
func ReadFile(ctx context.Context, path string) ([]model.CustomerRecord, error) {
	var (
		recs []model.CustomerRecord
		err  error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		opts := CSVOptions{LazyQuotes: true}
		if ext == ".tsv" {
			opts.Delimiter = '\t'
		}
		recs, err = readCSVFile(ctx, path, opts)
	case ".xlsx":
		recs, err = ReadXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("ingest: loaded records",
		zap.String("path", path),
		zap.Int("rows", len(recs)),
	)
	return recs, nil
}

func readCSVFile(ctx context.Context, path string, opts CSVOptions) ([]model.CustomerRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open file")
	}
	defer f.Close() //nolint:errcheck

	return readCSV(ctx, f, path, opts)
}
