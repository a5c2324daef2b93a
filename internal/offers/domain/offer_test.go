package domain

import (
	"testing"
	"time"
)

func TestParseDurationSum(t *testing.T) {
	cases := []struct {
		duration string
		want     int
		wantErr  bool
	}{
		{"5+2", 7, false},
		{"5", 5, false},
		{"5+", 5, false},
		{"", 0, false},
		{"10+4+1", 15, false},
		{"abc", 0, true},
		{"5+x", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationSum(tc.duration)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDurationSum(%q) accepted invalid input", tc.duration)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDurationSum(%q): %v", tc.duration, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDurationSum(%q) = %d, want %d", tc.duration, got, tc.want)
		}
	}
}

func validOffer() Offer {
	return Offer{
		LoadingPort:      "Shanghai",
		DischargePort:    "Koper",
		FinalDestination: "Budapest",
		ValidFrom:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:       time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
		Duration:         "30+5",
		Incoterm:         IncotermFOB,
		Details: []LineItem{
			{ItemLine: "ocean-freight", Price20: 1200, Price40: 2100, CurrencyCode: "USD"},
			{ItemLine: "thc", Price20: 150, Price40: 210},
		},
	}
}

func TestPrepareDerivesAndDefaults(t *testing.T) {
	offer := validOffer()
	now := time.Date(2023, 2, 1, 10, 30, 0, 0, time.UTC)

	if err := offer.Prepare(now); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if offer.DurationSum != 35 {
		t.Fatalf("duration_sum = %d, want 35", offer.DurationSum)
	}
	if offer.Activity != ActivityActive {
		t.Fatalf("activity = %s, want %s", offer.Activity, ActivityActive)
	}
	if !offer.CreatedAt.Equal(now) {
		t.Fatalf("created_at = %v, want %v", offer.CreatedAt, now)
	}
	if offer.Details[1].CurrencyCode != "USD" {
		t.Fatalf("currency default = %q, want USD", offer.Details[1].CurrencyCode)
	}
}

func TestValidateRejectsBadOffers(t *testing.T) {
	empty := validOffer()
	empty.Details = nil
	if err := empty.Validate(); err == nil {
		t.Fatal("offer without line items accepted")
	}

	dup := validOffer()
	dup.Details = append(dup.Details, LineItem{ItemLine: "thc"})
	if err := dup.Validate(); err == nil {
		t.Fatal("duplicate item_line accepted")
	}

	inverted := validOffer()
	inverted.ValidFrom, inverted.ValidUntil = inverted.ValidUntil, inverted.ValidFrom
	if err := inverted.Validate(); err == nil {
		t.Fatal("inverted validity accepted")
	}

	badTerm := validOffer()
	badTerm.Incoterm = "CPT"
	if err := badTerm.Validate(); err == nil {
		t.Fatal("unknown incoterm accepted")
	}
}

func TestParseLineItems(t *testing.T) {
	raw := []any{
		map[string]any{"item_line": "ocean-freight", "price_20": 100.0, "price_40": 180.0, "currency_code": "EUR"},
		map[string]any{"item_line": "thc", "price_20": 60.0, "price_40": 90.0},
	}
	items, err := ParseLineItems(raw)
	if err != nil {
		t.Fatalf("ParseLineItems: %v", err)
	}
	if len(items) != 2 || items[0].ItemLine != "ocean-freight" || items[0].Price20 != 100 {
		t.Fatalf("parsed items = %+v", items)
	}
	if items[1].CurrencyCode != "USD" {
		t.Fatalf("currency default = %q, want USD", items[1].CurrencyCode)
	}

	if _, err := ParseLineItems([]any{}); err == nil {
		t.Fatal("empty details accepted")
	}
	if _, err := ParseLineItems([]any{map[string]any{"price_20": 1.0}}); err == nil {
		t.Fatal("line item without item_line accepted")
	}
	if _, err := ParseLineItems([]any{
		map[string]any{"item_line": "thc"},
		map[string]any{"item_line": "thc"},
	}); err == nil {
		t.Fatal("duplicate item_line accepted")
	}
	if _, err := ParseLineItems("not a slice"); err == nil {
		t.Fatal("non-array details accepted")
	}
}

func TestParseIncotermIsCaseInsensitive(t *testing.T) {
	term, ok := ParseIncoterm("fob")
	if !ok || term != IncotermFOB {
		t.Fatalf("ParseIncoterm(fob) = %s, %v", term, ok)
	}
	if _, ok := ParseIncoterm("DDP"); ok {
		t.Fatal("ParseIncoterm accepted DDP")
	}
}
