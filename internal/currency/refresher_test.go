package currency

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type fakeSource struct {
	payload RatesResponse
	err     error
}

func (f fakeSource) Latest(_ context.Context, _ string) (RatesResponse, error) {
	return f.payload, f.err
}

type captureStore struct {
	snapshot Snapshot
	err      error
}

func (c *captureStore) Replace(_ context.Context, snapshot Snapshot) error {
	c.snapshot = snapshot
	return c.err
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRefresherStoresSortedRates(t *testing.T) {
	source := fakeSource{payload: RatesResponse{
		Base:  "USD",
		Rates: map[string]float64{"HUF": 350.2, "EUR": 0.92, "CNY": 7.1},
	}}
	store := &captureStore{}
	refresher, err := NewRefresher(source, store, "USD", testLogger())
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}

	if err := refresher.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.snapshot.Base != "USD" {
		t.Fatalf("base = %q, want USD", store.snapshot.Base)
	}
	codes := make([]string, 0, len(store.snapshot.Rates))
	for _, rate := range store.snapshot.Rates {
		codes = append(codes, rate.CurrencyCode)
	}
	want := []string{"CNY", "EUR", "HUF"}
	for i, code := range want {
		if codes[i] != code {
			t.Fatalf("rate order = %v, want %v", codes, want)
		}
	}
	if store.snapshot.FetchedAt.IsZero() {
		t.Fatal("fetched_at not set")
	}
}

func TestRefresherPropagatesSourceError(t *testing.T) {
	upstream := errors.New("boom")
	refresher, err := NewRefresher(fakeSource{err: upstream}, &captureStore{}, "USD", testLogger())
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	if err := refresher.Run(context.Background()); !errors.Is(err, upstream) {
		t.Fatalf("Run err = %v, want %v", err, upstream)
	}
}

func TestParseDailyAt(t *testing.T) {
	hour, minute, err := parseDailyAt("00:00")
	if err != nil || hour != 0 || minute != 0 {
		t.Fatalf("parseDailyAt(00:00) = %d:%d, %v", hour, minute, err)
	}
	hour, minute, err = parseDailyAt("14:35")
	if err != nil || hour != 14 || minute != 35 {
		t.Fatalf("parseDailyAt(14:35) = %d:%d, %v", hour, minute, err)
	}
	if _, _, err := parseDailyAt("25:00"); err == nil {
		t.Fatal("parseDailyAt accepted 25:00")
	}
}

func TestSchedulerShouldRunOnlyAtConfiguredMinute(t *testing.T) {
	s, err := NewScheduler(&Refresher{}, "03:15", testLogger())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	at := time.Date(2023, 5, 1, 3, 15, 30, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Fatal("shouldRun false at the configured minute")
	}
	if s.shouldRun(at.Add(time.Minute)) {
		t.Fatal("shouldRun true a minute later")
	}
}

func TestNewSchedulerRejectsMalformedSchedule(t *testing.T) {
	if _, err := NewScheduler(&Refresher{}, "not-a-time", testLogger()); err == nil {
		t.Fatal("NewScheduler accepted an unparseable schedule")
	}
	if _, err := NewScheduler(&Refresher{}, "25:00", testLogger()); err == nil {
		t.Fatal("NewScheduler accepted 25:00")
	}
}
