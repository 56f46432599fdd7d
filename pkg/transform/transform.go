// Package transform canonicalizes raw records into normalized customer
// records: key normalization, value trimming, type coercion, date parsing,
// null and duplicate elimination, and provenance stamping.
//
// Per-record issues never escape this package; invalid records are dropped
// and only aggregate counts are logged. Only a malformed input structure
// (required columns missing entirely) fails the whole batch.
package transform

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/models"
)

// DateFormat is the fixed calendar format for subscription dates.
const DateFormat = "2006-01-02"

// requiredColumns must all be present (after key normalization) in the
// input's column set for the batch to be transformable at all.
var requiredColumns = []string{
	"index",
	"customer_id",
	"first_name",
	"last_name",
	"company",
	"city",
	"country",
	"email",
	"subscription_date",
}

// Transformer applies the normalization pipeline to one file's raw records.
type Transformer struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock overrides the ingestion-time clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// NewTransformer creates a transformer reporting through the given logger.
func NewTransformer(logger *zap.Logger, opts ...Option) *Transformer {
	t := &Transformer{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NormalizeKey canonicalizes a raw column or key name: surrounding
// whitespace is trimmed, the key is lower-cased, and internal spaces become
// underscores. The operation is idempotent.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
}

// Transform runs the normalization pipeline over one file's raw records and
// returns the resulting batch. Every surviving record carries the same
// source file name and the same ingestion timestamp, captured once at the
// start of this call.
func (t *Transformer) Transform(records []models.RawRecord, sourceFile string) (*models.Batch, error) {
	ingestedAt := t.now()

	normalized := make([]models.RawRecord, 0, len(records))
	columns := make(map[string]struct{})
	for _, raw := range records {
		rec := make(models.RawRecord, len(raw))
		for key, value := range raw {
			normKey := NormalizeKey(key)
			rec[normKey] = trimValue(value)
			columns[normKey] = struct{}{}
		}
		normalized = append(normalized, rec)
	}

	if err := checkRequiredColumns(columns, len(records)); err != nil {
		return nil, err
	}

	var dropped dropCounts
	customers := make([]models.Customer, 0, len(normalized))
	for _, rec := range normalized {
		customer, reason := buildCustomer(rec)
		if reason != "" {
			dropped.add(reason)
			continue
		}
		customers = append(customers, customer)
	}

	deduped := make([]models.Customer, 0, len(customers))
	for _, candidate := range customers {
		duplicate := false
		for _, kept := range deduped {
			if kept.Equal(candidate) {
				duplicate = true
				break
			}
		}
		if duplicate {
			dropped.duplicates++
			continue
		}
		deduped = append(deduped, candidate)
	}

	for i := range deduped {
		deduped[i].SourceFile = sourceFile
		deduped[i].IngestedAt = ingestedAt
	}

	t.logger.Info("batch transformed",
		zap.String("source_file", sourceFile),
		zap.Int("input_records", len(records)),
		zap.Int("output_records", len(deduped)),
		zap.Int("dropped_invalid_index", dropped.badIndex),
		zap.Int("dropped_invalid_date", dropped.badDate),
		zap.Int("dropped_missing_required", dropped.missingRequired),
		zap.Int("dropped_duplicates", dropped.duplicates))

	return &models.Batch{SourceFile: sourceFile, Records: deduped}, nil
}

type dropCounts struct {
	badIndex        int
	badDate         int
	missingRequired int
	duplicates      int
}

func (d *dropCounts) add(reason string) {
	switch reason {
	case "index":
		d.badIndex++
	case "date":
		d.badDate++
	default:
		d.missingRequired++
	}
}

// checkRequiredColumns fails the whole batch when a required column is
// absent from the input entirely. An empty input has no columns to check.
func checkRequiredColumns(columns map[string]struct{}, recordCount int) error {
	if recordCount == 0 {
		return nil
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return ingesterrors.New(ingesterrors.ErrorTypeValidation, "input is missing required columns").
			WithDetail("columns", strings.Join(missing, ","))
	}
	return nil
}

// buildCustomer converts one normalized raw record into a Customer. A
// non-empty reason marks the record invalid: it is dropped, not fatal.
func buildCustomer(rec models.RawRecord) (models.Customer, string) {
	var c models.Customer

	index, ok := coerceIndex(rec["index"])
	if !ok {
		return c, "index"
	}
	c.Index = index

	required := map[string]*string{
		"customer_id": &c.CustomerID,
		"first_name":  &c.FirstName,
		"last_name":   &c.LastName,
		"company":     &c.Company,
		"city":        &c.City,
		"country":     &c.Country,
		"email":       &c.Email,
	}
	for key, dst := range required {
		value, ok := scalarString(rec[key])
		if !ok || value == "" {
			return c, "required"
		}
		*dst = value
	}

	dateStr, ok := scalarString(rec["subscription_date"])
	if !ok || dateStr == "" {
		return c, "required"
	}
	date, err := time.Parse(DateFormat, dateStr)
	if err != nil {
		return c, "date"
	}
	c.SubscriptionDate = date

	c.Phone1 = optionalString(rec["phone_1"])
	c.Phone2 = optionalString(rec["phone_2"])
	c.Website = optionalString(rec["website"])

	return c, ""
}

// coerceIndex coerces the index field to an integer. Structured input may
// deliver it as a JSON number; delimited input always delivers a string.
func coerceIndex(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		if v == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// scalarString renders a scalar value as a string. Missing values and
// nested structures do not qualify.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

// optionalString returns a pointer for present, non-empty optional values
// and nil otherwise.
func optionalString(value any) *string {
	s, ok := scalarString(value)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// trimValue trims surrounding whitespace on string-typed values and leaves
// every other type untouched.
func trimValue(value any) any {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}
