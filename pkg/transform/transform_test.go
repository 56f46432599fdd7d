package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/models"
	"github.com/creadable/ingestor/pkg/testutil"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestTransformer(t *testing.T) *Transformer {
	return NewTransformer(testutil.TestLogger(t), WithClock(func() time.Time { return fixedNow }))
}

// fullRecord returns a raw record carrying every required column, with
// overrides applied on top.
func fullRecord(overrides map[string]any) models.RawRecord {
	rec := models.RawRecord{
		"index":             "1",
		"customer_id":       "ABC123",
		"first_name":        "Alice",
		"last_name":         "Smith",
		"company":           "Acme",
		"city":              "Berlin",
		"country":           "Germany",
		"email":             "alice@example.com",
		"subscription_date": "2023-12-01",
	}
	for k, v := range overrides {
		rec[k] = v
	}
	return rec
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Customer Id ", "customer_id"},
		{"First Name", "first_name"},
		{"index", "index"},
		{"  Subscription Date  ", "subscription_date"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in))
	}
}

func TestNormalizeKeyIsIdempotent(t *testing.T) {
	for _, key := range []string{" Customer Id ", "First Name", "already_normal", "MiXeD Case Key"} {
		once := NormalizeKey(key)
		assert.Equal(t, once, NormalizeKey(once), key)
	}
}

func TestTransformBasicCleaning(t *testing.T) {
	raw := []models.RawRecord{
		{
			" Customer Id ":      "  ABC123  ",
			"First Name":         " Alice ",
			"Last Name":          "Smith",
			"Company":            "Acme",
			"City":               "Berlin",
			"Country":            "Germany",
			"Email":              "alice@example.com",
			"Subscription Date":  "2023-12-01",
			"index":              "1",
		},
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())

	rec := batch.Records[0]
	assert.Equal(t, int64(1), rec.Index)
	assert.Equal(t, "ABC123", rec.CustomerID)
	assert.Equal(t, "Alice", rec.FirstName)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), rec.SubscriptionDate)
	assert.Equal(t, "test.csv", rec.SourceFile)
	assert.Equal(t, fixedNow, rec.IngestedAt)
}

func TestTransformDropsRecordOnBadIndex(t *testing.T) {
	raw := []models.RawRecord{
		fullRecord(map[string]any{"index": "not-a-number"}),
		fullRecord(map[string]any{"index": "2", "customer_id": "XYZ456"}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())
	assert.Equal(t, int64(2), batch.Records[0].Index)
}

func TestTransformDropsRecordOnBadDate(t *testing.T) {
	// A subscription_date not matching the fixed format drops that single
	// record, not the whole batch.
	raw := []models.RawRecord{
		fullRecord(map[string]any{"subscription_date": "12/01/2023"}),
		fullRecord(map[string]any{"index": "2", "customer_id": "XYZ456"}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())
	assert.Equal(t, "XYZ456", batch.Records[0].CustomerID)
}

func TestTransformDropsRecordMissingRequiredValue(t *testing.T) {
	raw := []models.RawRecord{
		fullRecord(map[string]any{"email": "   "}),
		fullRecord(map[string]any{"index": "2", "customer_id": "XYZ456"}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())
}

func TestTransformCollapsesExactDuplicates(t *testing.T) {
	raw := []models.RawRecord{
		fullRecord(nil),
		fullRecord(nil),
		fullRecord(map[string]any{"index": "2", "customer_id": "XYZ456"}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 2, batch.Size())

	for i, a := range batch.Records {
		for j, b := range batch.Records {
			if i != j {
				assert.False(t, a.Equal(b), "retained records must not be field-wise identical")
			}
		}
	}
}

func TestTransformSharesOneIngestionInstant(t *testing.T) {
	raw := []models.RawRecord{
		fullRecord(nil),
		fullRecord(map[string]any{"index": "2", "customer_id": "XYZ456"}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "batch.csv")
	require.NoError(t, err)
	require.Equal(t, 2, batch.Size())
	assert.Equal(t, batch.Records[0].IngestedAt, batch.Records[1].IngestedAt)
	assert.Equal(t, "batch.csv", batch.Records[0].SourceFile)
	assert.Equal(t, "batch.csv", batch.Records[1].SourceFile)
}

func TestTransformFailsBatchOnMissingRequiredColumns(t *testing.T) {
	raw := []models.RawRecord{
		{"index": "1", "customer_id": "ABC123"},
	}

	_, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.Error(t, err)
	assert.True(t, ingesterrors.IsType(err, ingesterrors.ErrorTypeValidation))
}

func TestTransformEmptyInput(t *testing.T) {
	batch, err := newTestTransformer(t).Transform(nil, "empty.csv")
	require.NoError(t, err)
	assert.True(t, batch.Empty())
}

func TestTransformOptionalFields(t *testing.T) {
	raw := []models.RawRecord{
		fullRecord(map[string]any{"phone_1": "555-1234", "website": ""}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.csv")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())

	rec := batch.Records[0]
	require.NotNil(t, rec.Phone1)
	assert.Equal(t, "555-1234", *rec.Phone1)
	assert.Nil(t, rec.Phone2)
	assert.Nil(t, rec.Website)
}

func TestTransformCoercesJSONNumericIndex(t *testing.T) {
	// Structured input delivers index as a JSON number.
	raw := []models.RawRecord{
		fullRecord(map[string]any{"index": float64(7)}),
	}

	batch, err := newTestTransformer(t).Transform(raw, "test.json")
	require.NoError(t, err)
	require.Equal(t, 1, batch.Size())
	assert.Equal(t, int64(7), batch.Records[0].Index)
}
