package parse

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/kitbuilder587/rankwatch/internal/domain"
	"github.com/kitbuilder587/rankwatch/internal/serp"
)

func intPtr(n int) *int { return &n }

func defaultOptions(target string) domain.SearchOptions {
	opts := domain.SearchOptions{Domain: target, Country: "US"}
	opts.Normalize()
	return opts
}

func nativeResponse(organic []serp.OrganicResult) *serp.NativeResponse {
	return &serp.NativeResponse{
		SearchInformation: &serp.SearchInformation{TotalResults: json.RawMessage(`1240000`)},
		OrganicResults:    organic,
	}
}

func TestNative_ProviderFieldPosition(t *testing.T) {
	resp := nativeResponse([]serp.OrganicResult{
		{Position: intPtr(3), Link: "https://www.example.com/a", Title: "Example"},
		{Position: intPtr(1), Link: "https://other.com"},
	})

	rec := Native("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if !rec.Found {
		t.Fatal("expected found")
	}
	if rec.Position == nil || *rec.Position != 3 {
		t.Fatalf("position = %v, want 3", rec.Position)
	}
	if rec.Validation.Source != domain.SourceProviderField {
		t.Errorf("source = %s, want provider_field", rec.Validation.Source)
	}
	if rec.Validation.Confidence < 80 {
		t.Errorf("confidence = %d, want >= 80", rec.Validation.Confidence)
	}
	if rec.URL != "https://www.example.com/a" {
		t.Errorf("url = %q", rec.URL)
	}
	if rec.TotalResults != 1240000 {
		t.Errorf("total results = %d, want 1240000", rec.TotalResults)
	}
}

func TestNative_FeatureOffsetFallback(t *testing.T) {
	organic := []serp.OrganicResult{
		{Link: "https://unrelated.org/page"},
		{Link: "https://shop.example.com/item", Title: "Shop"},
	}
	// pad the page so the thin-results penalty does not apply
	for i := 0; i < 8; i++ {
		organic = append(organic, serp.OrganicResult{Link: "https://filler.net/p"})
	}

	resp := nativeResponse(organic)
	resp.Ads = []serp.Ad{{Link: "https://ad1.com"}, {Link: "https://ad2.com"}}
	resp.AnswerBox = &serp.AnswerBox{Type: "organic_result", Title: "Answer"}

	rec := Native("running shoes", resp, defaultOptions("shop.example.com"), domain.SearchMetadata{})

	if !rec.Found {
		t.Fatal("expected found")
	}
	// array position 2 + offset (2 ads + answer box) = 5
	if rec.Position == nil || *rec.Position != 5 {
		t.Fatalf("position = %v, want 5", rec.Position)
	}
	if rec.Validation.Source != domain.SourceArrayIndexFallback {
		t.Errorf("source = %s, want array_index_fallback", rec.Validation.Source)
	}
	if len(rec.Validation.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", rec.Validation.Warnings)
	}
	// 100 - 30 (fallback) - 10 (2 features) - 5 (1 warning)
	if rec.Validation.Confidence != 55 {
		t.Errorf("confidence = %d, want 55", rec.Validation.Confidence)
	}
}

func TestNative_PositionDriftWarning(t *testing.T) {
	resp := nativeResponse([]serp.OrganicResult{
		{Position: intPtr(9), Link: "https://example.com/a"},
	})

	rec := Native("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if rec.Position == nil || *rec.Position != 9 {
		t.Fatalf("position = %v, want 9 (provider field wins)", rec.Position)
	}
	if len(rec.Validation.Warnings) != 1 {
		t.Errorf("warnings = %v, want drift warning", rec.Validation.Warnings)
	}
}

func TestNative_EmptyOrganic(t *testing.T) {
	rec := Native("widgets", nativeResponse(nil), defaultOptions("example.com"), domain.SearchMetadata{})

	if rec.Found {
		t.Error("expected not found")
	}
	if rec.Position != nil {
		t.Errorf("position = %v, want nil", rec.Position)
	}
	if rec.Validation.Confidence != 0 {
		t.Errorf("confidence = %d, want 0", rec.Validation.Confidence)
	}
	if rec.Reliability != domain.ReliabilityLow {
		t.Errorf("reliability = %s, want low", rec.Reliability)
	}
}

func TestNative_BestMatchPrefersPositionOnTie(t *testing.T) {
	// two exact matches (www is stripped on extraction) with equal confidence; the second carries a
	// provider position and must win
	resp := nativeResponse([]serp.OrganicResult{
		{Link: "https://www.example.com/old"},
		{Position: intPtr(2), Link: "https://www.example.com/new"},
	})

	rec := Native("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if rec.URL != "https://www.example.com/new" {
		t.Errorf("best match url = %q, want the positioned result", rec.URL)
	}
	if rec.Position == nil || *rec.Position != 2 {
		t.Errorf("position = %v, want 2", rec.Position)
	}
}

func TestNative_ExactMatchWithoutPositionKeepsScanning(t *testing.T) {
	// exact match lacks a position; a later, lower-graded match carrying one
	// must not displace it, and the scan must not stop early either
	resp := nativeResponse([]serp.OrganicResult{
		{Link: "example.com"},
		{Position: intPtr(2), Link: "https://blog.example.com/b"},
	})

	rec := Native("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if !rec.Found {
		t.Fatal("expected found")
	}
	if rec.URL != "example.com" {
		t.Errorf("best match url = %q, want the exact match", rec.URL)
	}
	if rec.Validation.Source != domain.SourceArrayIndexFallback {
		t.Errorf("source = %s, want array_index_fallback", rec.Validation.Source)
	}
}

func TestNative_Verification(t *testing.T) {
	opts := defaultOptions("example.com")
	opts.Verify = true

	resp := nativeResponse([]serp.OrganicResult{
		{Position: intPtr(2), Link: "https://example.com/a"},
	})
	resp.Ads = []serp.Ad{{Link: "https://ad.com"}}

	rec := Native("widgets", resp, opts, domain.SearchMetadata{})

	// drift 1 <= expected (1 ad) + 2 -> verified
	if rec.Validation.Source != domain.SourceCrossVerified {
		t.Errorf("source = %s, want cross_verified", rec.Validation.Source)
	}
	if rec.Validation.VerifiedPosition == nil || *rec.Validation.VerifiedPosition != 2 {
		t.Errorf("verified position = %v, want 2", rec.Validation.VerifiedPosition)
	}
}

func TestNative_VerificationFailure(t *testing.T) {
	opts := defaultOptions("example.com")
	opts.Verify = true

	resp := nativeResponse([]serp.OrganicResult{
		{Position: intPtr(20), Link: "https://example.com/a"},
	})

	rec := Native("widgets", resp, opts, domain.SearchMetadata{})

	if rec.Validation.Source != domain.SourceProviderField {
		t.Errorf("source = %s, want provider_field kept on failed verification", rec.Validation.Source)
	}
	found := false
	for _, w := range rec.Validation.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected a verification warning")
	}
	if rec.Position == nil || *rec.Position != 20 {
		t.Errorf("position = %v, want original 20", rec.Position)
	}
}

func TestNative_Competitors(t *testing.T) {
	var organic []serp.OrganicResult
	for i := 1; i <= 15; i++ {
		organic = append(organic, serp.OrganicResult{
			Position: intPtr(i),
			Link:     "https://competitor.com/p",
		})
	}

	rec := Native("widgets", nativeResponse(organic), defaultOptions("example.com"), domain.SearchMetadata{})

	if len(rec.Competitors) != domain.MaxCompetitors {
		t.Errorf("competitors = %d, want %d", len(rec.Competitors), domain.MaxCompetitors)
	}
	if rec.Competitors[0].Domain != "competitor.com" {
		t.Errorf("competitor domain = %q", rec.Competitors[0].Domain)
	}
}

func TestNative_Deterministic(t *testing.T) {
	resp := nativeResponse([]serp.OrganicResult{
		{Position: intPtr(3), Link: "https://example.com/a", Title: "A", Snippet: "s"},
	})
	opts := defaultOptions("example.com")

	a := Native("widgets", resp, opts, domain.SearchMetadata{})
	b := Native("widgets", resp, opts, domain.SearchMetadata{})

	a.CheckedAt, b.CheckedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("parsing the same payload twice differs:\n%+v\n%+v", a, b)
	}
}

func TestCustom_ArrayIndexPosition(t *testing.T) {
	resp := &serp.CustomResponse{
		Items: []serp.CustomItem{
			{Link: "https://other.org/x"},
			{Link: "https://example.com/y", Title: "Y"},
			{Link: "https://third.net/z"},
		},
	}
	resp.SearchInformation.TotalResults = "52100"

	rec := Custom("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if !rec.Found {
		t.Fatal("expected found")
	}
	if rec.Position == nil || *rec.Position != 2 {
		t.Fatalf("position = %v, want 2", rec.Position)
	}
	if rec.Validation.Source != domain.SourceArrayIndexFallback {
		t.Errorf("source = %s, want array_index_fallback", rec.Validation.Source)
	}
	if len(rec.Validation.Features) != 0 {
		t.Errorf("features = %v, want none", rec.Validation.Features)
	}
	if rec.TotalResults != 52100 {
		t.Errorf("total results = %d, want 52100", rec.TotalResults)
	}
	// 100 - 30 (fallback) - 10 (3 items < 10)
	if rec.Validation.Confidence != 60 {
		t.Errorf("confidence = %d, want 60", rec.Validation.Confidence)
	}
}

func TestCustom_NotFound(t *testing.T) {
	resp := &serp.CustomResponse{Items: []serp.CustomItem{{Link: "https://other.org"}}}

	rec := Custom("widgets", resp, defaultOptions("example.com"), domain.SearchMetadata{})

	if rec.Found || rec.Position != nil || rec.Validation.Confidence != 0 {
		t.Errorf("want not-found record, got %+v", rec)
	}
}

func TestParseTotalResults(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"number", `1240000`, 1240000},
		{"quoted number", `"52100"`, 52100},
		{"prose with separators", `"About 1,240,000 results"`, 1240000},
		{"missing", ``, 0},
		{"no digits", `"none"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serp.ParseTotalResults(json.RawMessage(tt.in)); got != tt.want {
				t.Errorf("ParseTotalResults(%s) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
