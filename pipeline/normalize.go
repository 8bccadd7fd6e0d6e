package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aluiziolira/go-books-etl/models"
)

// ErrIntegrity is returned when normalized tables violate referential integrity.
var ErrIntegrity = errors.New("referential integrity violated")

// GenreIndex maps genre labels to surrogate ids assigned in sorted label order.
type GenreIndex struct {
	ids  map[string]int
	rows []models.GenreRow
}

// BuildGenreIndex assigns ids 1..N to the distinct trimmed genre labels, sorted ascending.
func BuildGenreIndex(records []models.CleanedRecord) *GenreIndex {
	distinct := make(map[string]struct{})
	for _, r := range records {
		distinct[strings.TrimSpace(r.Genre)] = struct{}{}
	}

	labels := make([]string, 0, len(distinct))
	for label := range distinct {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	idx := &GenreIndex{
		ids:  make(map[string]int, len(labels)),
		rows: make([]models.GenreRow, 0, len(labels)),
	}
	for i, label := range labels {
		idx.ids[label] = i + 1
		idx.rows = append(idx.rows, models.GenreRow{ID: i + 1, Genre: label})
	}
	return idx
}

// ID returns the id of label.
func (g *GenreIndex) ID(label string) (int, bool) {
	id, ok := g.ids[strings.TrimSpace(label)]
	return id, ok
}

// Rows returns the genre table in id order.
func (g *GenreIndex) Rows() []models.GenreRow {
	return append([]models.GenreRow(nil), g.rows...)
}

// Len returns the number of distinct genres.
func (g *GenreIndex) Len() int {
	return len(g.rows)
}

// Normalize splits cleaned records into the genre, book and stock tables.
func Normalize(records []models.CleanedRecord) (*models.Tables, error) {
	index := BuildGenreIndex(records)

	tables := &models.Tables{
		Genres: index.Rows(),
		Books:  make([]models.BookRow, 0, len(records)),
		Stock:  make([]models.StockRow, 0, len(records)),
	}

	for _, r := range records {
		genreID, ok := index.ID(r.Genre)
		if !ok {
			return nil, fmt.Errorf("%w: genre %q not indexed", ErrIntegrity, r.Genre)
		}
		tables.Books = append(tables.Books, models.BookRow{
			UPC:          r.UPC,
			Title:        r.Title,
			GenreID:      genreID,
			Rating:       r.Rating,
			ProductType:  r.ProductType,
			PriceExclTax: r.PriceExclTax,
			PriceInclTax: r.PriceInclTax,
			Tax:          r.Tax,
			NumReviews:   r.NumReviews,
		})
		tables.Stock = append(tables.Stock, models.StockRow{UPC: r.UPC, InStock: r.InStock})
	}

	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return tables, nil
}
