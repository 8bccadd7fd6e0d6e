package parser

import (
	"errors"
	"testing"
)

func TestRatingToNumeric(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "One", want: 1},
		{in: "Two", want: 2},
		{in: "Three", want: 3},
		{in: " Four ", want: 4},
		{in: "Five", want: 5},
		{in: "Zero", wantErr: true},
		{in: "three", wantErr: true},
		{in: "N/A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := RatingToNumeric(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Fatalf("expected coercion error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("RatingToNumeric(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{name: "pound", in: "£51.77", want: 51.77},
		{name: "latin1 mojibake", in: "Â£51.77", want: 51.77},
		{name: "padded", in: "  £0.00 ", want: 0},
		{name: "no currency", in: "51.77", wantErr: true},
		{name: "garbage", in: "£abc", wantErr: true},
		{name: "placeholder", in: "N/A", wantErr: true},
		{name: "negative", in: "£-1.00", wantErr: true},
		{name: "empty amount", in: "£", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Fatalf("expected coercion error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParsePrice(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseStock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "In stock (22 available)", want: 22},
		{in: "In stock (1 available)", want: 1},
		{in: "In stock", wantErr: true},
		{in: "N/A", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Fatalf("expected coercion error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ParseStock(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseReviews(t *testing.T) {
	if got, err := ParseReviews(" 3 "); err != nil || got != 3 {
		t.Fatalf("ParseReviews = %d, %v; want 3", got, err)
	}
	for _, in := range []string{"", "N/A", "-2", "1.5"} {
		if _, err := ParseReviews(in); !errors.Is(err, ErrCoercion) {
			t.Fatalf("ParseReviews(%q) expected coercion error, got %v", in, err)
		}
	}
}

func TestNormalizeGenre(t *testing.T) {
	tests := map[string]string{
		" Poetry ":      "Poetry",
		"Default":       UncategorizedGenre,
		"Add a comment": UncategorizedGenre,
		"Fiction":       "Fiction",
	}
	for in, want := range tests {
		if got := NormalizeGenre(in); got != want {
			t.Fatalf("NormalizeGenre(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsMissing(t *testing.T) {
	for _, in := range []string{"", "   ", "N/A", " N/A "} {
		if !IsMissing(in) {
			t.Fatalf("IsMissing(%q) should be true", in)
		}
	}
	if IsMissing("Books") {
		t.Fatalf("IsMissing(Books) should be false")
	}
}
