// Package output writes the transformed copy of each input file to the
// designated output location, in the same format as the input.
package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/models"
	"github.com/creadable/ingestor/pkg/parser"
	"github.com/creadable/ingestor/pkg/transform"
)

// header is the fixed column order for delimited output.
var header = []string{
	"index", "customer_id", "first_name", "last_name", "company", "city",
	"country", "phone_1", "phone_2", "email", "subscription_date", "website",
	"source_file", "ingested_at",
}

// Writer persists transformed batches next to their source format.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter creates a writer targeting the given directory. The directory
// is created on first use.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Write saves the batch as <base>_transformed.<ext>, where base and ext
// come from the batch's source file. Returns the written path.
func (w *Writer) Write(batch *models.Batch, format parser.Format) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to create output directory")
	}

	ext := filepath.Ext(batch.SourceFile)
	base := strings.TrimSuffix(filepath.Base(batch.SourceFile), ext)
	outPath := filepath.Join(w.dir, base+"_transformed"+ext)

	var err error
	switch format {
	case parser.FormatCSV:
		err = writeCSV(outPath, batch)
	case parser.FormatJSON:
		err = writeJSON(outPath, batch)
	default:
		return "", ingesterrors.New(ingesterrors.ErrorTypeInternal, "unsupported output format").
			WithDetail("format", ext)
	}
	if err != nil {
		return "", err
	}

	w.logger.Info("cleaned file saved",
		zap.String("output_file", outPath),
		zap.Int("records", batch.Size()))
	return outPath, nil
}

func writeCSV(path string, batch *models.Batch) error {
	f, err := os.Create(path) //nolint:gosec // G304: path derives from config
	if err != nil {
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to create output file")
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to write csv header")
	}
	for _, rec := range batch.Records {
		row := []string{
			strconv.FormatInt(rec.Index, 10),
			rec.CustomerID,
			rec.FirstName,
			rec.LastName,
			rec.Company,
			rec.City,
			rec.Country,
			deref(rec.Phone1),
			deref(rec.Phone2),
			rec.Email,
			rec.SubscriptionDate.Format(transform.DateFormat),
			deref(rec.Website),
			rec.SourceFile,
			rec.IngestedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to flush csv output")
	}
	return nil
}

func writeJSON(path string, batch *models.Batch) error {
	data, err := gojson.MarshalIndent(batch.Records, "", "  ")
	if err != nil {
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to encode json output")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeInternal, "failed to write output file")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
