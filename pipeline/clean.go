package pipeline

import (
	"strings"

	"github.com/aluiziolira/go-books-etl/models"
	"github.com/aluiziolira/go-books-etl/parser"
)

// Reasons a record is dropped by Clean.
const (
	DropDuplicate    = "duplicate"
	DropMissingField = "missing_field"
	DropBadRating    = "bad_rating"
	DropBadPrice     = "bad_price"
	DropPriceOrder   = "price_order"
	DropBadStock     = "bad_stock"
	DropBadReviews   = "bad_reviews"
	DropDuplicateUPC = "duplicate_upc"
)

// Clean deduplicates, filters and coerces raw records. The input slice is not modified
// and the output keeps input order.
func Clean(raw []models.RawRecord) ([]models.CleanedRecord, models.CleanReport) {
	report := models.CleanReport{Input: len(raw), Dropped: make(map[string]int)}
	cleaned := make([]models.CleanedRecord, 0, len(raw))

	seen := make(map[[10]string]struct{}, len(raw))
	upcs := make(map[string]struct{}, len(raw))

	for _, r := range raw {
		key := r.Key()
		if _, dup := seen[key]; dup {
			report.Dropped[DropDuplicate]++
			continue
		}
		seen[key] = struct{}{}

		if hasMissingField(r) {
			report.Dropped[DropMissingField]++
			continue
		}

		record, reason := coerce(r)
		if reason != "" {
			report.Dropped[reason]++
			continue
		}

		if _, dup := upcs[record.UPC]; dup {
			report.Dropped[DropDuplicateUPC]++
			continue
		}
		upcs[record.UPC] = struct{}{}

		cleaned = append(cleaned, record)
	}

	report.Output = len(cleaned)
	return cleaned, report
}

func hasMissingField(r models.RawRecord) bool {
	for _, v := range r.Fields() {
		if parser.IsMissing(v) {
			return true
		}
	}
	return false
}

// coerce converts one complete record, returning the drop reason on failure.
func coerce(r models.RawRecord) (models.CleanedRecord, string) {
	rating, err := parser.RatingToNumeric(r.Rating)
	if err != nil {
		return models.CleanedRecord{}, DropBadRating
	}

	var prices [3]float64
	for i, raw := range [3]string{r.PriceExclTax, r.PriceInclTax, r.Tax} {
		if prices[i], err = parser.ParsePrice(raw); err != nil {
			return models.CleanedRecord{}, DropBadPrice
		}
	}
	// Tax is never negative, so the pre-tax price cannot exceed the taxed one.
	if prices[0] > prices[1] {
		return models.CleanedRecord{}, DropPriceOrder
	}

	stock, err := parser.ParseStock(r.Availability)
	if err != nil {
		return models.CleanedRecord{}, DropBadStock
	}

	reviews, err := parser.ParseReviews(r.NumReviews)
	if err != nil {
		return models.CleanedRecord{}, DropBadReviews
	}

	return models.CleanedRecord{
		Title:        strings.TrimSpace(r.Title),
		Genre:        parser.NormalizeGenre(r.Genre),
		Rating:       rating,
		UPC:          strings.TrimSpace(r.UPC),
		ProductType:  strings.TrimSpace(r.ProductType),
		PriceExclTax: prices[0],
		PriceInclTax: prices[1],
		Tax:          prices[2],
		InStock:      stock,
		NumReviews:   reviews,
	}, ""
}
