// Package warehouse reads case datasets from and writes customer summaries to a
// Postgres-protocol warehouse.
package warehouse

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/theimaginaryfoundation/case-digest/digest"
	"github.com/theimaginaryfoundation/case-digest/digest/fileutils"
)

// Table receives one row per summarized customer.
const Table = "customer_summaries"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var insertSQL = fmt.Sprintf(
	"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6)",
	Table, strings.Join(digest.OutputColumns, ", "),
)

// ErrNoDSN is returned by DSNFromEnv when no warehouse is configured.
var ErrNoDSN = errors.New("warehouse: no DSN configured (set WAREHOUSE_DSN or WAREHOUSE_HOST)")

type Warehouse struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// Open connects with lib/pq. dsn must be a postgres:// URL for EnsureTable to work.
func Open(dsn string, logger *slog.Logger) (*Warehouse, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open: %w", err)
	}
	return New(db, dsn, logger), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dsn string, logger *slog.Logger) *Warehouse {
	if logger == nil {
		logger = slog.Default()
	}
	return &Warehouse{db: db, dsn: dsn, logger: logger.With("component", "warehouse")}
}

func (w *Warehouse) Close() error { return w.db.Close() }

func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.db.PingContext(ctx); err != nil {
		return fmt.Errorf("warehouse: ping: %w", err)
	}
	return nil
}

// FetchRows runs query and returns every column as text. Timestamps are formatted
// as RFC 3339 so digest.ParseCaseTime reads them back.
func (w *Warehouse) FetchRows(ctx context.Context, query string) (fileutils.HeaderRows, error) {
	w.logger.Info("running query", "query", fileutils.Truncate(query, 200))
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return fileutils.HeaderRows{}, fmt.Errorf("warehouse: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fileutils.HeaderRows{}, fmt.Errorf("warehouse: columns: %w", err)
	}

	var out [][]string
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fileutils.HeaderRows{}, fmt.Errorf("warehouse: scan: %w", err)
		}
		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = formatValue(v)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return fileutils.HeaderRows{}, fmt.Errorf("warehouse: rows: %w", err)
	}
	w.logger.Info("query complete", "rows", len(out), "columns", len(cols))
	return fileutils.NewHeaderRows(cols, out), nil
}

// FetchCases runs query and maps the result onto case rows.
func (w *Warehouse) FetchCases(ctx context.Context, query string) ([]digest.CaseRow, error) {
	h, err := w.FetchRows(ctx, query)
	if err != nil {
		return nil, err
	}
	return digest.CaseRowsFromTable(h)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// InsertRow appends one summary row.
func (w *Warehouse) InsertRow(ctx context.Context, rec digest.SummaryRecord) error {
	if _, err := w.db.ExecContext(ctx, insertSQL, fieldArgs(rec)...); err != nil {
		return fmt.Errorf("warehouse: insert %s: %w", rec.Customer, err)
	}
	return nil
}

// WriteRecord makes Warehouse a digest.RecordSink.
func (w *Warehouse) WriteRecord(ctx context.Context, rec digest.SummaryRecord) error {
	return w.InsertRow(ctx, rec)
}

// BulkLoad replaces the table contents with records in one transaction using COPY.
func (w *Warehouse) BulkLoad(ctx context.Context, records []digest.SummaryRecord) (err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("warehouse: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(Table)); err != nil {
		return fmt.Errorf("warehouse: truncate: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(Table, digest.OutputColumns...))
	if err != nil {
		return fmt.Errorf("warehouse: prepare copy: %w", err)
	}
	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx, fieldArgs(rec)...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("warehouse: copy %s: %w", rec.Customer, err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("warehouse: flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return fmt.Errorf("warehouse: close copy: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("warehouse: commit: %w", err)
	}
	w.logger.Info("bulk load complete", "table", Table, "rows", len(records))
	return nil
}

// BulkLoadFile loads a pipe-delimited summary file written by digest.FileSink.
func (w *Warehouse) BulkLoadFile(ctx context.Context, path string) (int, error) {
	recs, err := digest.ReadSummaryFile(path)
	if err != nil {
		return 0, err
	}
	if err := w.BulkLoad(ctx, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

// EnsureTable applies the embedded migrations that create Table.
func (w *Warehouse) EnsureTable(ctx context.Context) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("warehouse: migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, w.dsn)
	if err != nil {
		return fmt.Errorf("warehouse: migrate: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()
	m.Log = migrateLogger{w.logger}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("warehouse: migrate up: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	w.logger.Info("table ready", "table", Table)
	return nil
}

type migrateLogger struct{ l *slog.Logger }

func (m migrateLogger) Printf(format string, v ...any) {
	m.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (m migrateLogger) Verbose() bool { return false }

func fieldArgs(rec digest.SummaryRecord) []any {
	f := rec.Fields()
	args := make([]any, len(f))
	for i, v := range f {
		args[i] = v
	}
	return args
}

// DSNFromEnv returns WAREHOUSE_DSN, or composes a postgres:// URL from WAREHOUSE_HOST,
// WAREHOUSE_PORT, WAREHOUSE_USER, WAREHOUSE_PASSWORD, WAREHOUSE_DB and WAREHOUSE_SSLMODE.
// sslmode defaults to verify-full.
func DSNFromEnv(getenv func(string) string) (string, error) {
	if dsn := strings.TrimSpace(getenv("WAREHOUSE_DSN")); dsn != "" {
		return dsn, nil
	}
	host := strings.TrimSpace(getenv("WAREHOUSE_HOST"))
	if host == "" {
		return "", ErrNoDSN
	}
	port := strings.TrimSpace(getenv("WAREHOUSE_PORT"))
	if port == "" {
		port = "5432"
	}
	sslmode := strings.TrimSpace(getenv("WAREHOUSE_SSLMODE"))
	if sslmode == "" {
		sslmode = "verify-full"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + strings.TrimSpace(getenv("WAREHOUSE_DB")),
	}
	if user := strings.TrimSpace(getenv("WAREHOUSE_USER")); user != "" {
		if pw := getenv("WAREHOUSE_PASSWORD"); pw != "" {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
	return u.String(), nil
}
