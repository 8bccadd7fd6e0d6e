package parser

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-books-etl/models"
)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestExtractRecord(t *testing.T) {
	rec, err := ExtractRecord(openFixture(t, "product.html"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := &models.RawRecord{
		Title:        "A Light in the Attic",
		Genre:        "Poetry",
		Rating:       "Three",
		UPC:          "a897fe39b1053632",
		ProductType:  "Books",
		PriceExclTax: "£51.77",
		PriceInclTax: "£51.77",
		Tax:          "£0.00",
		Availability: "In stock (22 available)",
		NumReviews:   "0",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractRecordMissingAttributes(t *testing.T) {
	page := `<html><body>
<ul class="breadcrumb"><li>Home</li><li>Books</li><li class="active">Solo</li></ul>
<p class="star-rating Four"></p>
<table class="table table-striped">
<tr><th>UPC</th><td>u1</td></tr>
<tr><th>Price (excl. tax)</th><td>£10.00</td></tr>
</table></body></html>`

	rec, err := ExtractRecord(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if rec.UPC != "u1" || rec.PriceExclTax != "£10.00" {
		t.Fatalf("present attributes lost: %+v", rec)
	}
	for name, value := range map[string]string{
		"product type": rec.ProductType,
		"price incl":   rec.PriceInclTax,
		"tax":          rec.Tax,
		"availability": rec.Availability,
		"reviews":      rec.NumReviews,
	} {
		if value != models.NotAvailable {
			t.Fatalf("%s = %q, want %q", name, value, models.NotAvailable)
		}
	}
	// Third breadcrumb item is the active title here, so genre comes from it as scraped.
	if rec.Genre != "Solo" {
		t.Fatalf("genre = %q, want %q", rec.Genre, "Solo")
	}
}

func TestExtractRecordUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "no breadcrumb",
			page: `<p class="star-rating One"></p><table class="table table-striped"></table>`,
			want: "breadcrumb",
		},
		{
			name: "no rating",
			page: `<ul class="breadcrumb"><li>Home</li></ul><table class="table table-striped"></table>`,
			want: "rating",
		},
		{
			name: "no table",
			page: `<ul class="breadcrumb"><li>Home</li></ul><p class="star-rating One"></p>`,
			want: "attribute table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractRecord(strings.NewReader(tt.page))
			if !errors.Is(err, ErrUnrecognizedPage) {
				t.Fatalf("expected ErrUnrecognizedPage, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestExtractProductLinks(t *testing.T) {
	links, err := ExtractProductLinks("https://books.toscrape.com/catalogue/page-1.html", openFixture(t, "index.html"))
	if err != nil {
		t.Fatalf("extract links: %v", err)
	}
	want := []string{
		"https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
		"https://books.toscrape.com/catalogue/tipping-the-velvet_999/index.html",
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Fatalf("links mismatch (-want +got):\n%s", diff)
	}
}
