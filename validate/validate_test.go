package validate

import "testing"

type sample struct {
	URL string `validate:"required,url" json:"url"`
	N   int    `validate:"gte=0" json:"n"`
}

func TestStructPassesValidInput(t *testing.T) {
	if err := Struct(&sample{URL: "https://example.com", N: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructReportsFieldErrors(t *testing.T) {
	err := Struct(&sample{URL: "", N: -1})
	if err == nil {
		t.Fatal("expected a validation error")
	}

	fe, ok := err.(FieldErrors)
	if !ok {
		t.Fatalf("error type = %T, want FieldErrors", err)
	}
	if len(fe) != 2 {
		t.Fatalf("len(fe) = %d, want 2", len(fe))
	}
}
