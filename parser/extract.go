// Package parser turns catalog markup into records and coerces scraped text into typed values.
package parser

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-books-etl/models"
)

// ErrUnrecognizedPage is returned when a detail page lacks the breadcrumb,
// the rating marker or the attribute table.
var ErrUnrecognizedPage = errors.New("unrecognized product page")

// Attribute table keys as labelled on product pages.
const (
	attrUPC          = "UPC"
	attrProductType  = "Product Type"
	attrPriceExclTax = "Price (excl. tax)"
	attrPriceInclTax = "Price (incl. tax)"
	attrTax          = "Tax"
	attrAvailability = "Availability"
	attrNumReviews   = "Number of reviews"
)

// ExtractRecord parses a product detail page.
func ExtractRecord(body io.Reader) (*models.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}
	return ExtractRecordFromDocument(doc)
}

// ExtractRecordFromDocument parses an already loaded product detail page.
// Attributes missing from the table are recorded as models.NotAvailable.
func ExtractRecordFromDocument(doc *goquery.Document) (*models.RawRecord, error) {
	breadcrumb := doc.Find("ul.breadcrumb").First()
	if breadcrumb.Length() == 0 {
		return nil, fmt.Errorf("%w: no breadcrumb", ErrUnrecognizedPage)
	}
	rating := doc.Find("p.star-rating").First()
	if rating.Length() == 0 {
		return nil, fmt.Errorf("%w: no rating marker", ErrUnrecognizedPage)
	}
	table := doc.Find("table.table-striped").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: no attribute table", ErrUnrecognizedPage)
	}

	attrs := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.Find("th").First().Text())
		if key == "" {
			return
		}
		attrs[key] = strings.TrimSpace(row.Find("td").First().Text())
	})
	attr := func(key string) string {
		if v, ok := attrs[key]; ok {
			return v
		}
		return models.NotAvailable
	}

	title := models.NotAvailable
	if active := breadcrumb.Find("li.active").First(); active.Length() > 0 {
		title = strings.TrimSpace(active.Text())
	}

	genre := models.NotAvailable
	if items := breadcrumb.Find("li"); items.Length() > 2 {
		genre = strings.TrimSpace(items.Eq(2).Text())
	}

	ratingText := models.NotAvailable
	if class, ok := rating.Attr("class"); ok {
		if parts := strings.Fields(class); len(parts) > 1 {
			ratingText = parts[1]
		}
	}

	return &models.RawRecord{
		Title:        title,
		Genre:        genre,
		Rating:       ratingText,
		UPC:          attr(attrUPC),
		ProductType:  attr(attrProductType),
		PriceExclTax: attr(attrPriceExclTax),
		PriceInclTax: attr(attrPriceInclTax),
		Tax:          attr(attrTax),
		Availability: attr(attrAvailability),
		NumReviews:   attr(attrNumReviews),
	}, nil
}

// ExtractProductLinks returns the absolute detail page URLs listed on a catalog index page.
func ExtractProductLinks(pageURL string, body io.Reader) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	var links []string
	doc.Find("h3 a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}
