package locale

import (
	"strings"
	"testing"
)

func TestGetWithSubstitutions(t *testing.T) {
	loc, err := New("en", "en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := loc.Get("album_caption", "title", "Album", "tracks", "3", "url", "https://example.org")
	if !strings.Contains(got, "Album") || !strings.Contains(got, "3") || !strings.Contains(got, "https://example.org") {
		t.Fatalf("substitutions missing: %q", got)
	}
	if strings.Contains(got, "{") {
		t.Fatalf("unresolved placeholder in %q", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	loc, err := New("xx", "en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := loc.Get("menu_cancel"); got == "menu_cancel" || got == "" {
		t.Fatalf("expected fallback string, got %q", got)
	}
}

func TestRegionSuffixNormalized(t *testing.T) {
	loc, err := New("en-US", "en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := loc.Get("menu_next"); got == "menu_next" {
		t.Fatal("expected en table to resolve for en-US")
	}
}

func TestUnknownKeyReturnsKey(t *testing.T) {
	loc, err := New("en", "en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := loc.Get("no_such_key"); got != "no_such_key" {
		t.Fatalf("got %q", got)
	}
}
