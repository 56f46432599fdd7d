// Package loader persists normalized batches into PostgreSQL with
// conflict-skip semantics: existing rows keyed by index are left untouched,
// new rows are inserted, and a persisted row is never updated.
package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/creadable/ingestor/pkg/ingesterrors"
	"github.com/creadable/ingestor/pkg/models"
)

// Schema is the customer table DDL. Primary key on index gives the
// conflict-skip insert its target; customer_id carries its own uniqueness
// constraint.
const Schema = `
CREATE TABLE IF NOT EXISTS customer (
    index             BIGINT PRIMARY KEY,
    customer_id       VARCHAR(64) NOT NULL UNIQUE,
    first_name        VARCHAR(100) NOT NULL,
    last_name         VARCHAR(100) NOT NULL,
    company           VARCHAR(255) NOT NULL,
    city              VARCHAR(100) NOT NULL,
    country           VARCHAR(100) NOT NULL,
    phone_1           VARCHAR(50),
    phone_2           VARCHAR(50),
    email             VARCHAR(255) NOT NULL,
    subscription_date DATE NOT NULL,
    website           VARCHAR(255),
    source_file       VARCHAR(255) NOT NULL,
    ingested_at       TIMESTAMPTZ NOT NULL
)`

// chunkSize caps rows per INSERT statement. PostgreSQL's extended protocol
// allows at most 65535 bind parameters per statement, so with 14 columns a
// single statement tops out near 4681 rows.
const chunkSize = 1000

// columns is the insert column order; it must match rowArgs.
var columns = []string{
	"index", "customer_id", "first_name", "last_name", "company", "city",
	"country", "phone_1", "phone_2", "email", "subscription_date", "website",
	"source_file", "ingested_at",
}

// execer is the slice of pgxpool.Pool the loader needs. Tests substitute
// a fake.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Loader writes batches to the customer table.
type Loader struct {
	db     execer
	logger *zap.Logger
}

// New creates a loader over a pgx connection pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Loader {
	return &Loader{db: pool, logger: logger}
}

// NewWithExecer creates a loader over any execer. Used by tests.
func NewWithExecer(db execer, logger *zap.Logger) *Loader {
	return &Loader{db: db, logger: logger}
}

// EnsureSchema creates the customer table if it does not exist.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, Schema); err != nil {
		return ingesterrors.Wrap(err, ingesterrors.ErrorTypeLoad, "failed to ensure customer schema")
	}
	return nil
}

// Load performs a bulk conflict-skip insert of the batch. Rows whose index
// already exists are silently skipped (first write wins). An empty batch is
// a logged no-op. Records failing the row-shape check are excluded from the
// insert set; if nothing remains the call is a no-op. Large batches are
// split into statements of at most chunkSize rows to stay under the
// protocol's bind-parameter cap. Store failures return a load error and the
// batch is considered not loaded; there is no retry at this layer.
func (l *Loader) Load(ctx context.Context, batch *models.Batch) (int64, error) {
	if batch.Empty() {
		l.logger.Warn("no data to insert", zap.String("source_file", sourceFileOf(batch)))
		return 0, nil
	}

	insertable := make([]models.Customer, 0, len(batch.Records))
	for _, rec := range batch.Records {
		if err := checkRowShape(rec); err != nil {
			l.logger.Warn("record excluded from insert set",
				zap.String("source_file", batch.SourceFile),
				zap.Int64("index", rec.Index),
				zap.Error(err))
			continue
		}
		insertable = append(insertable, rec)
	}
	if len(insertable) == 0 {
		l.logger.Warn("no insertable rows after row-shape check",
			zap.String("source_file", batch.SourceFile))
		return 0, nil
	}

	var inserted int64
	for start := 0; start < len(insertable); start += chunkSize {
		end := start + chunkSize
		if end > len(insertable) {
			end = len(insertable)
		}
		sql, args := buildInsert(insertable[start:end])
		tag, err := l.db.Exec(ctx, sql, args...)
		if err != nil {
			return inserted, ingesterrors.Wrap(err, ingesterrors.ErrorTypeLoad, "bulk insert failed").
				WithDetail("source_file", batch.SourceFile).
				WithDetail("rows", end-start).
				WithDetail("offset", start)
		}
		inserted += tag.RowsAffected()
	}

	l.logger.Info("records loaded",
		zap.String("source_file", batch.SourceFile),
		zap.Int("batch_size", len(insertable)),
		zap.Int64("inserted", inserted),
		zap.Int64("skipped_existing", int64(len(insertable))-inserted))

	return inserted, nil
}

// checkRowShape rejects records the store would refuse: NOT NULL columns
// must carry values. The normalizer guarantees this for records it emits;
// the check keeps a single bad row from failing the whole statement.
func checkRowShape(c models.Customer) error {
	switch {
	case c.CustomerID == "":
		return fmt.Errorf("missing customer_id")
	case c.FirstName == "" || c.LastName == "":
		return fmt.Errorf("missing name")
	case c.Company == "" || c.City == "" || c.Country == "":
		return fmt.Errorf("missing company, city or country")
	case c.Email == "":
		return fmt.Errorf("missing email")
	case c.SubscriptionDate.IsZero():
		return fmt.Errorf("missing subscription_date")
	case c.SourceFile == "" || c.IngestedAt.IsZero():
		return fmt.Errorf("missing provenance")
	}
	return nil
}

// buildInsert renders one multi-row INSERT ... ON CONFLICT (index) DO NOTHING
// statement with positional placeholders.
func buildInsert(records []models.Customer) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO customer (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(records)*len(columns))
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(columns)+j+1)
		}
		sb.WriteByte(')')
		args = append(args, rowArgs(rec)...)
	}

	sb.WriteString(" ON CONFLICT (index) DO NOTHING")
	return sb.String(), args
}

// rowArgs returns the record's values in column order.
func rowArgs(c models.Customer) []any {
	return []any{
		c.Index, c.CustomerID, c.FirstName, c.LastName, c.Company, c.City,
		c.Country, c.Phone1, c.Phone2, c.Email, c.SubscriptionDate, c.Website,
		c.SourceFile, c.IngestedAt,
	}
}

func sourceFileOf(batch *models.Batch) string {
	if batch == nil {
		return ""
	}
	return batch.SourceFile
}
