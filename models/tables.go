package models

import (
	"errors"
	"fmt"
)

// Table names and their load order. Referenced tables come first.
const (
	TableGenres = "genres"
	TableStock  = "in_stock"
	TableBooks  = "books"
)

// Table is an ordered-column batch of rows handed to writers and sinks.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// GenreRow is one entry of the genre lookup table.
type GenreRow struct {
	ID    int    `json:"id"`
	Genre string `json:"genre"`
}

// BookRow is one row of the books table.
type BookRow struct {
	UPC          string  `json:"upc"`
	Title        string  `json:"titles"`
	GenreID      int     `json:"genre_id"`
	Rating       int     `json:"ratings"`
	ProductType  string  `json:"product_type"`
	PriceExclTax float64 `json:"price_excl_tax_gbp"`
	PriceInclTax float64 `json:"price_incl_tax_gbp"`
	Tax          float64 `json:"tax"`
	NumReviews   int     `json:"num_reviews"`
}

// StockRow is one row of the in_stock table.
type StockRow struct {
	UPC     string `json:"upc"`
	InStock int    `json:"in_stock"`
}

// Tables is the normalized output of one run.
type Tables struct {
	Books  []BookRow
	Genres []GenreRow
	Stock  []StockRow
}

// Column sets of the persisted tables.
var (
	BookColumns = []string{
		"upc", "titles", "genre_id", "ratings", "product_type",
		"price_excl_tax_gbp", "price_incl_tax_gbp", "tax", "num_reviews",
	}
	GenreColumns = []string{"id", "genre"}
	StockColumns = []string{"upc", "in_stock"}
)

// Validate checks the referential integrity of the table set.
func (t *Tables) Validate() error {
	if t == nil {
		return errors.New("tables are nil")
	}

	genreIDs := make(map[int]struct{}, len(t.Genres))
	labels := make(map[string]struct{}, len(t.Genres))
	for i, g := range t.Genres {
		if g.ID != i+1 {
			return fmt.Errorf("genre %q has id %d, want %d", g.Genre, g.ID, i+1)
		}
		if _, dup := labels[g.Genre]; dup {
			return fmt.Errorf("duplicate genre label %q", g.Genre)
		}
		labels[g.Genre] = struct{}{}
		genreIDs[g.ID] = struct{}{}
	}

	stock := make(map[string]int, len(t.Stock))
	for _, s := range t.Stock {
		stock[s.UPC]++
	}

	books := make(map[string]struct{}, len(t.Books))
	for _, b := range t.Books {
		if _, dup := books[b.UPC]; dup {
			return fmt.Errorf("duplicate upc %q in books", b.UPC)
		}
		books[b.UPC] = struct{}{}
		if _, ok := genreIDs[b.GenreID]; !ok {
			return fmt.Errorf("book %q references unknown genre_id %d", b.UPC, b.GenreID)
		}
		if n := stock[b.UPC]; n != 1 {
			return fmt.Errorf("book %q has %d stock rows, want 1", b.UPC, n)
		}
	}
	if len(stock) != len(books) {
		return fmt.Errorf("stock rows cover %d upcs, books cover %d", len(stock), len(books))
	}
	return nil
}

// Batches returns the tables as ordered-column batches in load order.
func (t *Tables) Batches() []Table {
	genres := Table{Name: TableGenres, Columns: GenreColumns, Rows: make([][]any, 0, len(t.Genres))}
	for _, g := range t.Genres {
		genres.Rows = append(genres.Rows, []any{g.ID, g.Genre})
	}

	stock := Table{Name: TableStock, Columns: StockColumns, Rows: make([][]any, 0, len(t.Stock))}
	for _, s := range t.Stock {
		stock.Rows = append(stock.Rows, []any{s.UPC, s.InStock})
	}

	books := Table{Name: TableBooks, Columns: BookColumns, Rows: make([][]any, 0, len(t.Books))}
	for _, b := range t.Books {
		books.Rows = append(books.Rows, []any{
			b.UPC, b.Title, b.GenreID, b.Rating, b.ProductType,
			b.PriceExclTax, b.PriceInclTax, b.Tax, b.NumReviews,
		})
	}

	return []Table{genres, stock, books}
}
