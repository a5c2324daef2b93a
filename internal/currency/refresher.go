package currency

import (
	"context"
	"errors"
	"log"
	"time"

	"freight-cloud/internal/observability/metrics"
)

// RateSource fetches the latest rates.
type RateSource interface {
	Latest(ctx context.Context, base string) (RatesResponse, error)
}

// SnapshotWriter persists a fetched snapshot.
type SnapshotWriter interface {
	Replace(ctx context.Context, snapshot Snapshot) error
}

// Refresher pulls the latest rates and replaces the stored snapshot.
type Refresher struct {
	source RateSource
	store  SnapshotWriter
	base   string
	logger *log.Logger
}

// NewRefresher constructs a Refresher.
func NewRefresher(source RateSource, store SnapshotWriter, base string, logger *log.Logger) (*Refresher, error) {
	if source == nil {
		return nil, errors.New("currency: nil rate source")
	}
	if store == nil {
		return nil, errors.New("currency: nil snapshot store")
	}
	if base == "" {
		return nil, errors.New("currency: empty base currency")
	}
	if logger == nil {
		return nil, errors.New("currency: nil logger")
	}
	return &Refresher{source: source, store: store, base: base, logger: logger}, nil
}

// Run fetches and stores one snapshot.
func (r *Refresher) Run(ctx context.Context) error {
	started := time.Now()
	err := r.refresh(ctx)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveCurrencyRefresh(result, time.Since(started))
	return err
}

func (r *Refresher) refresh(ctx context.Context) error {
	payload, err := r.source.Latest(ctx, r.base)
	if err != nil {
		return err
	}
	snapshot := SnapshotFromRates(payload.Base, payload.Rates, time.Now())
	if snapshot.Base == "" {
		snapshot.Base = r.base
	}
	if err := r.store.Replace(ctx, snapshot); err != nil {
		return err
	}
	r.logger.Printf("currency: refreshed snapshot base=%s rates=%d", snapshot.Base, len(snapshot.Rates))
	return nil
}
