// Package parser decodes raw file bytes into row-oriented raw records.
// Delimited-text input uses its first row as the header; structured-text
// input is an array of possibly-nested objects, flattened into flat
// key/value rows before normalization.
package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/models"
)

// Format identifies the declared input format of a source file.
type Format string

const (
	// FormatCSV is delimited text with a header row.
	FormatCSV Format = "csv"
	// FormatJSON is an array of possibly-nested objects.
	FormatJSON Format = "json"
	// FormatUnknown is any extension the parser does not handle.
	FormatUnknown Format = ""
)

// DetectFormat maps a file name's extension to its format.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// Parse decodes raw bytes in the given format into raw records. Malformed
// payloads return a parse error; the caller reports it and stops processing
// that file.
func Parse(data []byte, format Format) ([]models.RawRecord, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(data)
	case FormatJSON:
		return ParseJSON(data)
	default:
		return nil, ingesterrors.New(ingesterrors.ErrorTypeParse, "unsupported format").
			WithDetail("format", string(format))
	}
}

// ParseCSV decodes delimited text. The first row is the header; every
// subsequent row becomes one record keyed by the header values verbatim,
// before any normalization.
func ParseCSV(data []byte) ([]models.RawRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ingesterrors.New(ingesterrors.ErrorTypeParse, "csv payload is empty")
	}
	if err != nil {
		return nil, ingesterrors.Wrap(err, ingesterrors.ErrorTypeParse, "failed to read csv header")
	}

	var records []models.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ingesterrors.Wrap(err, ingesterrors.ErrorTypeParse, "malformed csv row").
				WithDetail("row", len(records)+2)
		}

		record := make(models.RawRecord, len(header))
		for i, key := range header {
			if i < len(row) {
				record[key] = row[i]
			}
		}
		records = append(records, record)
	}

	return records, nil
}

// ParseJSON decodes structured text: one array of possibly-nested objects.
// Each object is flattened so that every value is a scalar.
func ParseJSON(data []byte) ([]models.RawRecord, error) {
	var objects []map[string]any
	if err := gojson.Unmarshal(data, &objects); err != nil {
		return nil, ingesterrors.Wrap(err, ingesterrors.ErrorTypeParse, "malformed json payload")
	}

	records := make([]models.RawRecord, 0, len(objects))
	for _, obj := range objects {
		records = append(records, Flatten(obj))
	}
	return records, nil
}

// Flatten collapses a nested object into a single level, joining a nested
// object's keys to their parent key with an underscore, depth-first, until
// all values are scalars. Array values are re-encoded to a JSON string and
// kept as opaque scalars.
func Flatten(record map[string]any) models.RawRecord {
	flat := make(models.RawRecord, len(record))
	flattenInto(flat, "", record)
	return flat
}

func flattenInto(flat models.RawRecord, prefix string, record map[string]any) {
	for key, value := range record {
		flatKey := key
		if prefix != "" {
			flatKey = prefix + "_" + key
		}

		switch v := value.(type) {
		case map[string]any:
			flattenInto(flat, flatKey, v)
		case []any:
			encoded, err := gojson.Marshal(v)
			if err != nil {
				flat[flatKey] = ""
				continue
			}
			flat[flatKey] = string(encoded)
		default:
			flat[flatKey] = v
		}
	}
}
