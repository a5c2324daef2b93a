// Package views installs the derived aggregation views the read
// endpoints are served from.
package views

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"freight-cloud/internal/query"
)

// Definition describes one view: its name, the collection or view it
// reads from and the pipeline shaping it.
type Definition struct {
	Name     string
	ViewOn   string
	Pipeline mongo.Pipeline
}

// Definitions returns the view set in dependency order: the combined
// view reads from the normalized offer view, so that one must exist
// first.
func Definitions() []Definition {
	return []Definition{
		{
			Name:     query.ViewPriceListCurrency,
			ViewOn:   query.CollectionPriceLists,
			Pipeline: query.PriceListCurrencyPipeline(),
		},
		{
			Name:     query.ViewOffersCurrency,
			ViewOn:   query.CollectionOffers,
			Pipeline: query.OfferCurrencyPipeline(),
		},
		{
			Name:     query.ViewOffersWithPriceLists,
			ViewOn:   query.ViewOffersCurrency,
			Pipeline: query.OffersWithPriceListsPipeline(),
		},
	}
}

// Result reports what the installer did; callers decide how to react
// instead of the installer tracking global state.
type Result struct {
	Created  []string
	Existing []string
}

// Installer creates the views on startup.
type Installer struct {
	db     *mongo.Database
	logger *log.Logger
}

// NewInstaller constructs an Installer.
func NewInstaller(db *mongo.Database, logger *log.Logger) (*Installer, error) {
	if db == nil {
		return nil, errors.New("views: nil database")
	}
	if logger == nil {
		return nil, errors.New("views: nil logger")
	}
	return &Installer{db: db, logger: logger}, nil
}

// Install creates every missing view and reports the outcome. Existing
// views are left untouched; use Reinstall after a pipeline change.
func (i *Installer) Install(ctx context.Context) (Result, error) {
	existing, err := i.existingNames(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, def := range Definitions() {
		if _, ok := existing[def.Name]; ok {
			result.Existing = append(result.Existing, def.Name)
			continue
		}
		if err := i.db.CreateView(ctx, def.Name, def.ViewOn, def.Pipeline); err != nil {
			return result, fmt.Errorf("views: create %s: %w", def.Name, err)
		}
		i.logger.Printf("views: created %s on %s", def.Name, def.ViewOn)
		result.Created = append(result.Created, def.Name)
	}
	return result, nil
}

// Reinstall drops and recreates all views, picking up pipeline changes.
func (i *Installer) Reinstall(ctx context.Context) (Result, error) {
	existing, err := i.existingNames(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, def := range Definitions() {
		if _, ok := existing[def.Name]; !ok {
			continue
		}
		if err := i.db.Collection(def.Name).Drop(ctx); err != nil {
			return Result{}, fmt.Errorf("views: drop %s: %w", def.Name, err)
		}
	}
	return i.Install(ctx)
}

func (i *Installer) existingNames(ctx context.Context) (map[string]struct{}, error) {
	names, err := i.db.ListCollectionNames(ctx, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("views: list collections: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}
