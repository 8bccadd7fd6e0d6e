// Package models defines data structures shared by the ETL stages.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// NotAvailable is the placeholder extraction stores for attributes the page did not carry.
const NotAvailable = "N/A"

// RawRecord is one product as scraped, every field still text.
type RawRecord struct {
	Title        string `csv:"titles" json:"titles"`
	Genre        string `csv:"genre" json:"genre"`
	Rating       string `csv:"ratings" json:"ratings"`
	UPC          string `csv:"upc" json:"upc"`
	ProductType  string `csv:"product_type" json:"product_type"`
	PriceExclTax string `csv:"price_excl_tax_gbp" json:"price_excl_tax_gbp"`
	PriceInclTax string `csv:"price_incl_tax_gbp" json:"price_incl_tax_gbp"`
	Tax          string `csv:"tax" json:"tax"`
	Availability string `csv:"in_stock" json:"in_stock"`
	NumReviews   string `csv:"num_reviews" json:"num_reviews"`

	// URL is where the record came from. It does not take part in record equality.
	URL string `csv:"-" json:"url,omitempty"`
}

// Fields returns the ten scraped values in column order.
func (r RawRecord) Fields() []string {
	return []string{
		r.Title, r.Genre, r.Rating, r.UPC, r.ProductType,
		r.PriceExclTax, r.PriceInclTax, r.Tax, r.Availability, r.NumReviews,
	}
}

// Key identifies a record by value, ignoring its URL.
func (r RawRecord) Key() [10]string {
	var key [10]string
	copy(key[:], r.Fields())
	return key
}

// CleanedRecord is a RawRecord after type coercion.
type CleanedRecord struct {
	Title        string  `json:"titles"`
	Genre        string  `json:"genre"`
	Rating       int     `json:"ratings"`
	UPC          string  `json:"upc"`
	ProductType  string  `json:"product_type"`
	PriceExclTax float64 `json:"price_excl_tax_gbp"`
	PriceInclTax float64 `json:"price_incl_tax_gbp"`
	Tax          float64 `json:"tax"`
	InStock      int     `json:"in_stock"`
	NumReviews   int     `json:"num_reviews"`
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	StartTime       time.Time
	EndTime         time.Time
	RecordCount     int
	PageCount       int
	RequestCount    int
	ErrorCount      int
	RetryCount      int
	SkippedProducts int
	FailedURLs      []string
	ErrorsByType    map[string]int
	EndReason       string
}

// CleanReport counts what the cleaner dropped, keyed by reason.
type CleanReport struct {
	Input   int
	Output  int
	Dropped map[string]int
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	Crawl     *CrawlResult
	Clean     CleanReport
	TableRows map[string]int
	StartTime time.Time
	EndTime   time.Time
}

// RawTable renders raw records as a tabular batch.
func RawTable(name string, records []RawRecord) Table {
	t := Table{Name: name, Columns: append([]string(nil), rawColumns...)}
	t.Rows = make([][]any, 0, len(records))
	for _, r := range records {
		row := make([]any, 0, len(rawColumns))
		for _, v := range r.Fields() {
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// CleanedTable renders cleaned records as a tabular batch.
func CleanedTable(name string, records []CleanedRecord) Table {
	t := Table{Name: name, Columns: append([]string(nil), rawColumns...)}
	t.Rows = make([][]any, 0, len(records))
	for _, r := range records {
		t.Rows = append(t.Rows, []any{
			r.Title, r.Genre, r.Rating, r.UPC, r.ProductType,
			r.PriceExclTax, r.PriceInclTax, r.Tax, r.InStock, r.NumReviews,
		})
	}
	return t
}

var rawColumns = []string{
	"titles", "genre", "ratings", "upc", "product_type",
	"price_excl_tax_gbp", "price_incl_tax_gbp", "tax", "in_stock", "num_reviews",
}

// FormatValue renders a table cell the way the text outputs store it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
