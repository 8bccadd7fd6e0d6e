package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-books-etl/models"
)

// ErrCoercion marks a field that could not be converted to its target type.
var ErrCoercion = errors.New("coercion failed")

// UncategorizedGenre replaces breadcrumb labels that are not real genres.
const UncategorizedGenre = "Uncategorized"

var placeholderGenres = map[string]struct{}{
	"Default":       {},
	"Add a comment": {},
}

var ratings = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// The catalog prices in pounds. Pages decoded as Latin-1 show the sign as "Â£".
var currencyPrefixes = []string{"Â£", "£"}

var digitRun = regexp.MustCompile(`\d+`)

// IsMissing reports whether a scraped value is empty or the extraction placeholder.
func IsMissing(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || value == models.NotAvailable
}

// RatingToNumeric converts the textual star rating to 1..5.
func RatingToNumeric(rating string) (int, error) {
	n, ok := ratings[strings.TrimSpace(rating)]
	if !ok {
		return 0, fmt.Errorf("%w: rating %q", ErrCoercion, rating)
	}
	return n, nil
}

// ParsePrice strips the currency sign and parses the amount.
func ParsePrice(price string) (float64, error) {
	price = strings.TrimSpace(price)
	amount, found := "", false
	for _, prefix := range currencyPrefixes {
		if rest, ok := strings.CutPrefix(price, prefix); ok {
			amount, found = strings.TrimSpace(rest), true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: price %q has no currency sign", ErrCoercion, price)
	}

	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %v", ErrCoercion, price, err)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: price %q out of range", ErrCoercion, price)
	}
	return value, nil
}

// ParseStock extracts the first run of digits from the availability text.
func ParseStock(availability string) (int, error) {
	match := digitRun.FindString(availability)
	if match == "" {
		return 0, fmt.Errorf("%w: availability %q has no count", ErrCoercion, availability)
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("%w: availability %q: %v", ErrCoercion, availability, err)
	}
	return n, nil
}

// ParseReviews parses the review count.
func ParseReviews(reviews string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(reviews))
	if err != nil {
		return 0, fmt.Errorf("%w: reviews %q: %v", ErrCoercion, reviews, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: reviews %q is negative", ErrCoercion, reviews)
	}
	return n, nil
}

// NormalizeGenre trims the label and folds placeholder labels into UncategorizedGenre.
func NormalizeGenre(genre string) string {
	genre = strings.TrimSpace(genre)
	if _, ok := placeholderGenres[genre]; ok {
		return UncategorizedGenre
	}
	return genre
}
