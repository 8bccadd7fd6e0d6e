package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/aluiziolira/go-books-etl/models"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name        string
	driver      string
	schema      []string
	clear       []string
	placeholder func(n int) string
	// copyIn bulk-loads rows instead of one INSERT per row when set.
	copyIn bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY,
			genre TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS in_stock (
			upc TEXT PRIMARY KEY,
			in_stock INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			upc TEXT PRIMARY KEY REFERENCES in_stock(upc),
			titles TEXT NOT NULL,
			genre_id INTEGER NOT NULL REFERENCES genres(id),
			ratings INTEGER NOT NULL,
			product_type TEXT NOT NULL,
			price_excl_tax_gbp REAL NOT NULL,
			price_incl_tax_gbp REAL NOT NULL,
			tax REAL NOT NULL,
			num_reviews INTEGER NOT NULL
		)`,
	},
	clear:       []string{"DELETE FROM books", "DELETE FROM in_stock", "DELETE FROM genres"},
	placeholder: func(int) string { return "?" },
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY,
			genre VARCHAR(50) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS in_stock (
			upc VARCHAR(25) PRIMARY KEY,
			in_stock INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			upc VARCHAR(25) PRIMARY KEY REFERENCES in_stock(upc),
			titles VARCHAR(300) NOT NULL,
			genre_id SMALLINT NOT NULL REFERENCES genres(id),
			ratings SMALLINT NOT NULL,
			product_type VARCHAR(15) NOT NULL,
			price_excl_tax_gbp NUMERIC(7,2) NOT NULL,
			price_incl_tax_gbp NUMERIC(7,2) NOT NULL,
			tax NUMERIC(7,2) NOT NULL,
			num_reviews INTEGER NOT NULL
		)`,
	},
	clear:       []string{"TRUNCATE TABLE books, in_stock, genres"},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	copyIn:      true,
}

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS genres (
			id INT PRIMARY KEY,
			genre VARCHAR(50) NOT NULL UNIQUE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS in_stock (
			upc VARCHAR(25) PRIMARY KEY,
			in_stock INT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS books (
			upc VARCHAR(25) PRIMARY KEY,
			titles VARCHAR(300) NOT NULL,
			genre_id INT NOT NULL,
			ratings SMALLINT NOT NULL,
			product_type VARCHAR(15) NOT NULL,
			price_excl_tax_gbp DECIMAL(7,2) NOT NULL,
			price_incl_tax_gbp DECIMAL(7,2) NOT NULL,
			tax DECIMAL(7,2) NOT NULL,
			num_reviews INT NOT NULL,
			FOREIGN KEY (upc) REFERENCES in_stock(upc),
			FOREIGN KEY (genre_id) REFERENCES genres(id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	clear:       []string{"DELETE FROM books", "DELETE FROM in_stock", "DELETE FROM genres"},
	placeholder: func(int) string { return "?" },
}

// SQLSink replaces the three tables inside one transaction.
type SQLSink struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLSink opens dsn with the driver of the named dialect and ensures the schema exists.
func NewSQLSink(ctx context.Context, driver, dsn string) (*SQLSink, error) {
	var d dialect
	switch driver {
	case "sqlite":
		d = sqliteDialect
		dsn = sqliteDSN(dsn)
	case "postgres":
		d = postgresDialect
	case "mysql":
		d = mysqlDialect
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	s := &SQLSink{db: db, dialect: d}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqlitePragmas are appended to a sqlite DSN unless it already sets them.
var sqlitePragmas = []struct{ key, value string }{
	{"_busy_timeout", "5000"},
	{"_journal_mode", "WAL"},
	{"_foreign_keys", "on"},
}

// sqliteDSN adds the missing sqlite pragmas, keeping any the caller set.
func sqliteDSN(dsn string) string {
	path, query, _ := strings.Cut(dsn, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}

	params := query
	for _, p := range sqlitePragmas {
		if values.Has(p.key) {
			continue
		}
		if params != "" {
			params += "&"
		}
		params += p.key + "=" + p.value
	}
	return path + "?" + params
}

// rollback aborts tx, ignoring a transaction that already finished.
func rollback(tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *SQLSink) createSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Load deletes every stored row and inserts tables in the given order, all or nothing.
func (s *SQLSink) Load(ctx context.Context, tables []models.Table) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := rollback(tx); rbErr != nil {
				slog.Error("rollback failed", slog.String("dialect", s.dialect.name), slog.Any("error", rbErr))
			}
		}
	}()

	for _, stmt := range s.dialect.clear {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
	}

	for _, table := range tables {
		if s.dialect.copyIn {
			err = s.copyTable(ctx, tx, table)
		} else {
			err = s.insertTable(ctx, tx, table)
		}
		if err != nil {
			return err
		}
		slog.Debug("table loaded", slog.String("table", table.Name), slog.Int("rows", len(table.Rows)))
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLSink) insertTable(ctx context.Context, tx *sql.Tx, table models.Table) error {
	stmt, err := tx.PrepareContext(ctx, s.insertQuery(table))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table.Name, err)
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table.Name, i, err)
		}
	}
	return nil
}

func (s *SQLSink) insertQuery(table models.Table) string {
	placeholders := make([]string, len(table.Columns))
	for i := range table.Columns {
		placeholders[i] = s.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table.Name, strings.Join(table.Columns, ", "), strings.Join(placeholders, ", "))
}

// copyTable streams rows through COPY FROM STDIN.
func (s *SQLSink) copyTable(ctx context.Context, tx *sql.Tx, table models.Table) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table.Name, table.Columns...))
	if err != nil {
		return fmt.Errorf("prepare copy %s: %w", table.Name, err)
	}

	for i, row := range table.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return fmt.Errorf("copy %s row %d: %w", table.Name, i, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy %s: %w", table.Name, err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy %s: %w", table.Name, err)
	}
	return nil
}

// Count returns the number of rows stored in table.
func (s *SQLSink) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case models.TableBooks, models.TableGenres, models.TableStock:
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Close releases the connection pool.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
