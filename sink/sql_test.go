package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-books-etl/models"
)

func testTables(upcs ...string) []models.Table {
	tables := &models.Tables{
		Genres: []models.GenreRow{{ID: 1, Genre: "Fiction"}, {ID: 2, Genre: "Poetry"}},
	}
	for i, upc := range upcs {
		tables.Books = append(tables.Books, models.BookRow{
			UPC:          upc,
			Title:        "Title " + upc,
			GenreID:      i%2 + 1,
			Rating:       3,
			ProductType:  "Books",
			PriceExclTax: 51.77,
			PriceInclTax: 51.77,
			Tax:          0,
			NumReviews:   i,
		})
		tables.Stock = append(tables.Stock, models.StockRow{UPC: upc, InStock: 20 + i})
	}
	return tables.Batches()
}

func openSQLite(t *testing.T) *SQLSink {
	t.Helper()
	s, err := NewSQLSink(context.Background(), "sqlite", filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("open sqlite sink: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func counts(t *testing.T, s *SQLSink) map[string]int {
	t.Helper()
	out := make(map[string]int)
	for _, table := range []string{models.TableGenres, models.TableStock, models.TableBooks} {
		n, err := s.Count(context.Background(), table)
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		out[table] = n
	}
	return out
}

func TestSQLSinkLoadReplacesTables(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	if err := s.Load(ctx, testTables("a", "b", "c")); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"genres": 2, "in_stock": 3, "books": 3}, counts(t, s)); diff != "" {
		t.Fatalf("counts after first load (-want +got):\n%s", diff)
	}

	if err := s.Load(ctx, testTables("z")); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"genres": 2, "in_stock": 1, "books": 1}, counts(t, s)); diff != "" {
		t.Fatalf("counts after second load (-want +got):\n%s", diff)
	}

	var (
		title   string
		genre   string
		price   float64
		inStock int
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT b.titles, g.genre, b.price_incl_tax_gbp, s.in_stock
		FROM books b
		JOIN genres g ON g.id = b.genre_id
		JOIN in_stock s ON s.upc = b.upc
		WHERE b.upc = ?`, "z")
	if err := row.Scan(&title, &genre, &price, &inStock); err != nil {
		t.Fatalf("query joined row: %v", err)
	}
	if title != "Title z" || genre != "Fiction" || price != 51.77 || inStock != 20 {
		t.Fatalf("unexpected row: %q %q %v %d", title, genre, price, inStock)
	}
}

func TestSQLSinkLoadIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	if err := s.Load(ctx, testTables("a", "b")); err != nil {
		t.Fatalf("first load: %v", err)
	}

	broken := testTables("x", "y")
	books := broken[2]
	books.Rows[1][2] = 99 // genre_id with no genre row
	broken[2] = books

	if err := s.Load(ctx, broken); err == nil {
		t.Fatalf("expected foreign key failure")
	}
	if diff := cmp.Diff(map[string]int{"genres": 2, "in_stock": 2, "books": 2}, counts(t, s)); diff != "" {
		t.Fatalf("failed load changed stored rows (-want +got):\n%s", diff)
	}
}

func TestSQLSinkEnforcesForeignKeysWithCustomDSN(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLSink(ctx, "sqlite", filepath.Join(t.TempDir(), "books.db")+"?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite sink: %v", err)
	}
	defer s.Close()

	broken := testTables("x")
	broken[2].Rows[0][2] = 99

	if err := s.Load(ctx, broken); err == nil {
		t.Fatalf("expected foreign key failure with a DSN that carries its own parameters")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{dsn: "books.db", want: "books.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"},
		{dsn: "file:books.db?cache=shared", want: "file:books.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"},
		{dsn: "books.db?_journal_mode=DELETE", want: "books.db?_journal_mode=DELETE&_busy_timeout=5000&_foreign_keys=on"},
		{dsn: "books.db?_foreign_keys=on&_busy_timeout=100&_journal_mode=WAL", want: "books.db?_foreign_keys=on&_busy_timeout=100&_journal_mode=WAL"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.dsn); got != tt.want {
			t.Fatalf("sqliteDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestRollbackIgnoresFinishedTransaction(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := rollback(tx); err != nil {
		t.Fatalf("rollback after commit should be silent, got %v", err)
	}

	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO genres (id, genre) VALUES (1, 'Poetry')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := rollback(tx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if n, err := s.Count(ctx, models.TableGenres); err != nil || n != 0 {
		t.Fatalf("genres after rollback = %d, %v", n, err)
	}
}

func TestSQLSinkInsertQuery(t *testing.T) {
	pg := &SQLSink{dialect: postgresDialect}
	my := &SQLSink{dialect: mysqlDialect}
	table := models.Table{Name: models.TableStock, Columns: models.StockColumns}

	if got := pg.insertQuery(table); got != "INSERT INTO in_stock (upc, in_stock) VALUES ($1, $2)" {
		t.Fatalf("postgres query = %q", got)
	}
	if got := my.insertQuery(table); got != "INSERT INTO in_stock (upc, in_stock) VALUES (?, ?)" {
		t.Fatalf("mysql query = %q", got)
	}
}

func TestSQLSinkRejectsUnknownDriver(t *testing.T) {
	if _, err := NewSQLSink(context.Background(), "oracle", "whatever"); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestSQLSinkCountRejectsUnknownTable(t *testing.T) {
	s := openSQLite(t)
	if _, err := s.Count(context.Background(), "users; DROP TABLE books"); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}
