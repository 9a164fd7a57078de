package matcher

import (
	"reflect"
	"testing"

	"github.com/raaihank/docmask/internal/ocr"
	"github.com/raaihank/docmask/internal/patterns"
)

func tok(text string, x0, y0, x1, y1 int, conf float64) ocr.Token {
	return ocr.Token{Text: text, BoundingBox: ocr.BoundingBox{X0: x0, Y0: y0, X1: x1, Y1: y1}, Confidence: conf}
}

func byCategory(matches []PIIMatch, category string) []PIIMatch {
	var out []PIIMatch
	for _, m := range matches {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

func TestFindEmailSingleToken(t *testing.T) {
	tokens := []ocr.Token{tok("alice.smith@example.com", 10, 10, 200, 30, 95)}

	got := Find("Email: alice.smith@example.com", tokens, patterns.Default())

	want := []PIIMatch{{
		Category:    "Email Address",
		MatchedText: "alice.smith@example.com",
		Confidence:  95,
		BoundingBox: ocr.BoundingBox{X0: 10, Y0: 10, X1: 200, Y1: 30},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFindPhoneSingleToken(t *testing.T) {
	tokens := []ocr.Token{
		tok("Mobile:", 0, 0, 40, 10, 90),
		tok("9876543210", 45, 0, 120, 10, 88),
	}

	got := Find("Mobile: 9876543210", tokens, patterns.Default())
	if len(got) != 1 {
		t.Fatalf("expected exactly one match, got %+v", got)
	}
	if got[0].Category != "Phone Number" || got[0].BoundingBox.X0 != 45 || got[0].Confidence != 88 {
		t.Errorf("unexpected match: %+v", got[0])
	}
}

func TestFindSplitAadhaarTakesFirstContainedFragment(t *testing.T) {
	// The full match contains the first fragment, so the bidirectional
	// containment test correlates it and only that fragment's box is used.
	// This departs from the zero-match outcome once expected for split
	// numbers: containment in either direction is applied literally and
	// fragments are never unioned into one box.
	tokens := []ocr.Token{
		tok("1234", 0, 0, 30, 10, 80),
		tok("5678", 35, 0, 65, 10, 81),
		tok("9012", 70, 0, 100, 10, 82),
	}

	got := byCategory(Find("1234 5678 9012", tokens, patterns.Default()), "Aadhaar Number")
	if len(got) != 1 {
		t.Fatalf("expected one aadhaar match, got %+v", got)
	}
	if got[0].BoundingBox != tokens[0].BoundingBox || got[0].Confidence != 80 {
		t.Errorf("expected geometry of first fragment, got %+v", got[0])
	}
}

func TestFindDropsNumberWhenSegmentationBreaksContainment(t *testing.T) {
	tokens := []ocr.Token{
		tok("Aadhaar", 0, 0, 50, 10, 90),
		tok("No:1234", 55, 0, 100, 10, 90),
		tok("5678-9012", 105, 0, 170, 10, 90),
	}

	got := Find("Aadhaar No: 1234 5678 9012", tokens, patterns.Default())
	if aadhaar := byCategory(got, "Aadhaar Number"); len(aadhaar) != 0 {
		t.Fatalf("expected aadhaar to be dropped, got %+v", aadhaar)
	}
}

func TestFindEmptyTokenIndex(t *testing.T) {
	for _, tokens := range [][]ocr.Token{nil, {}} {
		got := Find("Email: alice.smith@example.com 9876543210", tokens, patterns.Default())
		if len(got) != 0 {
			t.Errorf("expected no matches without tokens, got %+v", got)
		}
	}
}

func TestFindPartialPhoneToken(t *testing.T) {
	defs, err := patterns.Select(patterns.Default(), []string{patterns.Phone})
	if err != nil {
		t.Fatal(err)
	}

	// "987654" is literally inside the match, so it correlates.
	got := Find("Call +91 9876543210", []ocr.Token{tok("987654", 1, 2, 3, 4, 70)}, defs)
	if len(got) != 1 || got[0].MatchedText != "+91 9876543210" {
		t.Fatalf("expected correlation with contained fragment, got %+v", got)
	}

	// Neither string contains the other.
	got = Find("Call +91 9876543210", []ocr.Token{tok("98765 43210", 1, 2, 3, 4, 70)}, defs)
	if len(got) != 0 {
		t.Fatalf("expected drop, got %+v", got)
	}
}

func TestFindCaseInsensitiveCorrelation(t *testing.T) {
	tokens := []ocr.Token{tok("PAN:ABCDE1234F", 5, 5, 90, 20, 77)}
	got := Find("pan abcde1234f", tokens, patterns.Default())
	pan := byCategory(got, "PAN Number")
	if len(pan) != 1 || pan[0].MatchedText != "abcde1234f" {
		t.Fatalf("expected case-insensitive correlation, got %+v", got)
	}
}

func TestFindFirstTokenWinsAndTokensAreReused(t *testing.T) {
	tokens := []ocr.Token{
		tok("john@example.com", 0, 0, 10, 10, 50),
		tok("john@example.com", 20, 20, 30, 30, 99),
	}

	got := Find("john@example.com and john@example.com", tokens, patterns.Default())
	if len(got) != 2 {
		t.Fatalf("expected two matches, got %+v", got)
	}
	for _, m := range got {
		if m.BoundingBox != tokens[0].BoundingBox {
			t.Errorf("expected every occurrence to use the first token, got %+v", m)
		}
	}
}

func TestFindOrderIsCategoryThenText(t *testing.T) {
	text := "Rahul Sharma 12/05/1990 rahul@example.com 9876543210"
	tokens := []ocr.Token{
		tok("Rahul", 0, 0, 10, 10, 90),
		tok("12/05/1990", 0, 20, 10, 30, 90),
		tok("rahul@example.com", 0, 40, 10, 50, 90),
		tok("9876543210", 0, 60, 10, 70, 90),
	}

	got := Find(text, tokens, patterns.Default())
	var categories []string
	for _, m := range got {
		categories = append(categories, m.Category)
	}
	want := []string{"Phone Number", "Email Address", "Date of Birth", "Potential Name"}
	if !reflect.DeepEqual(categories, want) {
		t.Fatalf("expected %v, got %v", want, categories)
	}
}

func TestFindIsDeterministic(t *testing.T) {
	text := "Priya Nair priya@example.org +91 9123456789 ABCDE1234F 1999-01-31"
	tokens := []ocr.Token{
		tok("Priya", 0, 0, 10, 10, 90),
		tok("Nair", 12, 0, 20, 10, 90),
		tok("priya@example.org", 0, 20, 40, 30, 91),
		tok("9123456789", 0, 40, 40, 50, 92),
		tok("ABCDE1234F", 0, 60, 40, 70, 93),
		tok("1999-01-31", 0, 80, 40, 90, 94),
	}

	first := Find(text, tokens, patterns.Default())
	for i := 0; i < 20; i++ {
		if got := Find(text, tokens, patterns.Default()); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestFindCategoryIndependence(t *testing.T) {
	text := "Priya Nair priya@example.org 9123456789"
	tokens := []ocr.Token{
		tok("Priya", 0, 0, 10, 10, 90),
		tok("priya@example.org", 0, 20, 40, 30, 91),
		tok("9123456789", 0, 40, 40, 50, 92),
	}

	all := Find(text, tokens, patterns.Default())

	withoutName, err := patterns.Select(patterns.Default(), []string{patterns.Aadhaar, patterns.Phone, patterns.Email, patterns.PAN, patterns.DOB})
	if err != nil {
		t.Fatal(err)
	}
	reduced := Find(text, tokens, withoutName)

	var expected []PIIMatch
	for _, m := range all {
		if m.Category != "Potential Name" {
			expected = append(expected, m)
		}
	}
	if !reflect.DeepEqual(reduced, expected) {
		t.Fatalf("removing name changed other categories: %+v vs %+v", reduced, expected)
	}
}

func TestFindWithStats(t *testing.T) {
	tokens := []ocr.Token{tok("alice@example.com", 0, 0, 10, 10, 90)}
	defs, err := patterns.Select(patterns.Default(), []string{patterns.Email})
	if err != nil {
		t.Fatal(err)
	}
	_, stats := FindWithStats("alice@example.com bob@example.com", tokens, defs)
	if stats.Occurrences != 2 || stats.Dropped != 1 || stats.ByCategory["Email Address"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
