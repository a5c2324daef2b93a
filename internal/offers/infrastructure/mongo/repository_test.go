package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/offers/domain"
)

func TestNormalizePatchCoercesDates(t *testing.T) {
	patch := bson.M{
		"valid_from":  "2026-03-01",
		"valid_until": "2026-03-31T00:00:00Z",
	}
	if err := normalizePatch(patch); err != nil {
		t.Fatalf("normalizePatch: %v", err)
	}
	from, ok := patch["valid_from"].(time.Time)
	if !ok || !from.Equal(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("valid_from = %v (%T), want coerced time", patch["valid_from"], patch["valid_from"])
	}
	until, ok := patch["valid_until"].(time.Time)
	if !ok || !until.Equal(time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("valid_until = %v (%T), want coerced time", patch["valid_until"], patch["valid_until"])
	}
}

func TestNormalizePatchRejectsBadInput(t *testing.T) {
	if err := normalizePatch(bson.M{}); err == nil {
		t.Fatal("empty patch accepted")
	}
	if err := normalizePatch(bson.M{"valid_from": "sometime in march"}); err == nil {
		t.Fatal("malformed date accepted")
	}
	if err := normalizePatch(bson.M{
		"valid_from":  "2026-03-31",
		"valid_until": "2026-03-01",
	}); err == nil {
		t.Fatal("inverted validity bounds accepted")
	}
	if err := normalizePatch(bson.M{"duration": "5+x"}); err == nil {
		t.Fatal("malformed duration accepted")
	}
	if err := normalizePatch(bson.M{"details": []any{}}); err == nil {
		t.Fatal("empty details accepted")
	}
	if err := normalizePatch(bson.M{"details": []any{
		map[string]any{"item_line": "thc"},
		map[string]any{"item_line": "thc"},
	}}); err == nil {
		t.Fatal("duplicate item_line accepted")
	}
}

func TestNormalizePatchDerivesDurationAndDetails(t *testing.T) {
	patch := bson.M{
		"duration": "10+4",
		"details": []any{
			map[string]any{"item_line": "ocean-freight", "price_20": 100.0, "price_40": 180.0},
		},
	}
	if err := normalizePatch(patch); err != nil {
		t.Fatalf("normalizePatch: %v", err)
	}
	if patch["duration_sum"] != 14 {
		t.Fatalf("duration_sum = %v, want 14", patch["duration_sum"])
	}
	items, ok := patch["details"].([]domain.LineItem)
	if !ok || len(items) != 1 {
		t.Fatalf("details = %v (%T), want typed line items", patch["details"], patch["details"])
	}
	if items[0].CurrencyCode != "USD" {
		t.Fatalf("currency default = %q, want USD", items[0].CurrencyCode)
	}
}
