package integration_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"freight-cloud/internal/currency"
	offerdomain "freight-cloud/internal/offers/domain"
	offermongo "freight-cloud/internal/offers/infrastructure/mongo"
	listdomain "freight-cloud/internal/pricelists/domain"
	listmongo "freight-cloud/internal/pricelists/infrastructure/mongo"
	"freight-cloud/internal/query"
	"freight-cloud/internal/views"
)

// newTestDatabase connects to the instance named by MONGO_URL and
// returns a fresh database with the views installed. Skips when no
// instance is configured.
func newTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	url := os.Getenv("MONGO_URL")
	if url == "" {
		t.Skip("MONGO_URL not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		t.Fatalf("mongo connect: %v", err)
	}
	db := client.Database(fmt.Sprintf("freight_it_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx := context.Background()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop test database: %v", err)
		}
		_ = client.Disconnect(ctx)
	})

	installer, err := views.NewInstaller(db, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new installer: %v", err)
	}
	if _, err := installer.Install(context.Background()); err != nil {
		t.Fatalf("install views: %v", err)
	}
	return db
}

func seedRates(t *testing.T, db *mongo.Database, rates map[string]float64) {
	t.Helper()
	store, err := currency.NewStore(db)
	if err != nil {
		t.Fatalf("new currency store: %v", err)
	}
	snapshot := currency.SnapshotFromRates("USD", rates, time.Now().UTC())
	if err := store.Replace(context.Background(), snapshot); err != nil {
		t.Fatalf("replace snapshot: %v", err)
	}
}

func newOfferRepository(t *testing.T, db *mongo.Database) (*offermongo.Repository, *offermongo.Recorder) {
	t.Helper()
	recorder, err := offermongo.NewRecorder(db)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	repo, err := offermongo.NewRepository(db, recorder, nil, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new offer repository: %v", err)
	}
	return repo, recorder
}

func baseOffer() *offerdomain.Offer {
	return &offerdomain.Offer{
		LoadingPort:   "SHA",
		DischargePort: "ROT",
		Incoterm:      offerdomain.IncotermDAP,
		ValidFrom:     time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:    time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		Details: []offerdomain.LineItem{
			{ItemLine: "ocean-freight", Price20: 100, Price40: 100, CurrencyCode: "EUR"},
			{ItemLine: "thc", Price20: 60, Price40: 60, CurrencyCode: "EUR"},
		},
	}
}

func TestOfferCurrencyNormalization(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedRates(t, db, map[string]float64{"EUR": 2, "USD": 1})
	repo, _ := newOfferRepository(t, db)

	if err := repo.Create(ctx, baseOffer()); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	var row struct {
		TotalPrice20USD float64 `bson:"total_price_20_usd"`
		Details         []struct {
			Price20USD float64 `bson:"price_20_usd"`
		} `bson:"details"`
	}
	err := db.Collection(query.ViewOffersCurrency).FindOne(ctx, bson.M{}).Decode(&row)
	if err != nil {
		t.Fatalf("read view: %v", err)
	}
	if len(row.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(row.Details))
	}
	if row.Details[0].Price20USD != 50 {
		t.Fatalf("expected 100@2.0 = 50 usd, got %v", row.Details[0].Price20USD)
	}
	if row.TotalPrice20USD != 80 {
		t.Fatalf("expected total 50+30 = 80, got %v", row.TotalPrice20USD)
	}
}

// A price list satisfying two rules must be concatenated twice and its
// totals counted twice in the roll-up. The loading/discharge and
// customs fields are set to non-matching values on both sides so only
// the forwarder and sealine rules fire.
func TestOfferPriceListDoubleCount(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedRates(t, db, map[string]float64{"EUR": 2, "USD": 1})
	offerRepo, _ := newOfferRepository(t, db)
	listRepo, err := listmongo.NewRepository(db, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new price-list repository: %v", err)
	}

	offer := baseOffer()
	offer.Forwarder = "atlas"
	offer.Sealine = "msc"
	offer.TrainStation = "offer-station"
	offer.FinalDestination = "offer-dest"
	offer.InlandCarrier = offerdomain.PortPair{LoadingPort: "offer-load", DischargePort: "offer-disch"}
	offer.Customs = offerdomain.PortPair{DischargePort: "offer-customs"}
	if err := offerRepo.Create(ctx, offer); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	list := &listdomain.PriceList{
		Category:         listdomain.CategoryForwarder,
		Forwarder:        "atlas",
		Sealine:          "msc",
		Incoterm:         offerdomain.IncotermDAP,
		TrainStation:     "list-station",
		FinalDestination: "list-dest",
		DischargePort:    "list-disch",
		InlandCarrier:    offerdomain.PortPair{LoadingPort: "list-load", DischargePort: "list-disch"},
		Customs:          offerdomain.PortPair{DischargePort: "list-customs"},
		ValidFrom:        time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:       time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC),
		Details: []offerdomain.LineItem{
			{ItemLine: "handling", Price20: 10, Price40: 10, CurrencyCode: "EUR"},
		},
	}
	if err := listRepo.Create(ctx, list); err != nil {
		t.Fatalf("create price list: %v", err)
	}

	var row struct {
		TotalPrice20USD float64  `bson:"total_price_20_usd"`
		PriceLists      []bson.M `bson:"priceLists"`
	}
	err = db.Collection(query.ViewOffersWithPriceLists).FindOne(ctx, bson.M{}).Decode(&row)
	if err != nil {
		t.Fatalf("read view: %v", err)
	}
	if len(row.PriceLists) != 2 {
		t.Fatalf("expected the list twice (forwarder + sealine rule), got %d entries", len(row.PriceLists))
	}
	// 80 usd offer total, plus 5 usd list total counted once per rule.
	if row.TotalPrice20USD != 90 {
		t.Fatalf("expected 80 + 2*5 = 90, got %v", row.TotalPrice20USD)
	}
}

// The gap map runs over the sorted interval list, not the reduced
// accumulator, so two disjoint intervals yield three gaps: before the
// first, between the two, and open-ended after the last.
func TestFreeIntervals(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedRates(t, db, map[string]float64{"USD": 1})
	listRepo, err := listmongo.NewRepository(db, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new price-list repository: %v", err)
	}

	jan1 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	jan10 := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	jan20 := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	for _, bounds := range [][2]time.Time{{jan1, jan10}, {jan20, jan31}} {
		list := &listdomain.PriceList{
			Category:   listdomain.CategoryCCDestination,
			ValidFrom:  bounds[0],
			ValidUntil: bounds[1],
			Details:    []offerdomain.LineItem{{ItemLine: "base", Price20: 1, Price40: 1, CurrencyCode: "USD"}},
		}
		if err := listRepo.Create(ctx, list); err != nil {
			t.Fatalf("create price list %v: %v", bounds, err)
		}
	}

	gaps, err := listRepo.FreeIntervals(ctx, query.Params{"category": string(listdomain.CategoryCCDestination)})
	if err != nil {
		t.Fatalf("free intervals: %v", err)
	}
	if len(gaps) != 1 {
		t.Fatalf("expected 1 category, got %d", len(gaps))
	}
	intervals := gaps[0].FreeIntervals
	if len(intervals) != 3 {
		t.Fatalf("expected 3 gaps, got %d: %+v", len(intervals), intervals)
	}
	if !intervals[0].ValidFrom.Equal(time.Unix(0, 0).UTC()) {
		t.Fatalf("leading gap must start at epoch, got %v", intervals[0].ValidFrom)
	}
	if intervals[0].ValidUntil == nil || !intervals[0].ValidUntil.Equal(jan1) {
		t.Fatalf("leading gap must end at the first interval start, got %v", intervals[0].ValidUntil)
	}
	if !intervals[1].ValidFrom.Equal(jan10.Add(time.Millisecond)) {
		t.Fatalf("middle gap must start 1ms after the first interval end, got %v", intervals[1].ValidFrom)
	}
	if intervals[1].ValidUntil == nil || !intervals[1].ValidUntil.Equal(jan20) {
		t.Fatalf("middle gap must end at the next interval start, got %v", intervals[1].ValidUntil)
	}
	if !intervals[2].ValidFrom.Equal(jan31.Add(time.Millisecond)) {
		t.Fatalf("trailing gap must start 1ms after the last interval end, got %v", intervals[2].ValidFrom)
	}
	if intervals[2].ValidUntil != nil {
		t.Fatalf("trailing gap must be open-ended, got %v", *intervals[2].ValidUntil)
	}
}

func TestFacetPaginationAndZeroMatch(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedRates(t, db, map[string]float64{"USD": 1})
	listRepo, err := listmongo.NewRepository(db, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new price-list repository: %v", err)
	}

	for i := 0; i < 12; i++ {
		list := &listdomain.PriceList{
			Category:   listdomain.CategoryLocalCharges,
			Forwarder:  fmt.Sprintf("forwarder-%02d", i),
			ValidFrom:  time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			ValidUntil: time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC),
			Details:    []offerdomain.LineItem{{ItemLine: "base", Price20: 1, Price40: 1, CurrencyCode: "USD"}},
		}
		if err := listRepo.Create(ctx, list); err != nil {
			t.Fatalf("create price list %d: %v", i, err)
		}
	}

	page, err := listRepo.List(ctx, query.Params{"page": "2", "limit": "5", "sort": "forwarder"})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if page.TotalCount != 12 {
		t.Fatalf("expected totalCount 12 independent of pagination, got %d", page.TotalCount)
	}
	if len(page.Data) != 5 {
		t.Fatalf("expected 5 rows on page 2, got %d", len(page.Data))
	}
	if page.Data[0].Forwarder != "forwarder-05" {
		t.Fatalf("expected page 2 to start at the sixth row, got %s", page.Data[0].Forwarder)
	}

	empty, err := listRepo.List(ctx, query.Params{"forwarder": "no-such-forwarder"})
	if err != nil {
		t.Fatalf("list zero match: %v", err)
	}
	if empty.Data == nil || len(empty.Data) != 0 {
		t.Fatalf("zero match must yield an empty data list, got %v", empty.Data)
	}
	if empty.TotalCount != 0 {
		t.Fatalf("zero match must yield totalCount 0, got %d", empty.TotalCount)
	}
}

func TestUpdateRecordsHistory(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	seedRates(t, db, map[string]float64{"EUR": 2})
	repo, recorder := newOfferRepository(t, db)

	offer := baseOffer()
	if err := repo.Create(ctx, offer); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	previous, err := repo.Update(ctx, offer.ID, bson.M{"client": "acme"})
	if err != nil {
		t.Fatalf("update offer: %v", err)
	}
	if previous.Client != "" {
		t.Fatalf("expected pre-update snapshot, got client %q", previous.Client)
	}

	updated, err := repo.Get(ctx, offer.ID)
	if err != nil {
		t.Fatalf("get offer: %v", err)
	}
	if updated.Client != "acme" {
		t.Fatalf("expected updated client, got %q", updated.Client)
	}
	if len(updated.UpdateHistory) != 1 {
		t.Fatalf("expected update_history to grow by one, got %d", len(updated.UpdateHistory))
	}

	snapshots, err := recorder.ListByOffer(ctx, offer.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	mainID, ok := snapshots[0]["main_id"].(bson.ObjectID)
	if !ok || mainID != offer.ID {
		t.Fatalf("snapshot main_id must equal the offer id, got %v", snapshots[0]["main_id"])
	}

	// A second update snapshots the offer as it stood, including the
	// update_history accumulated so far.
	if _, err := repo.Update(ctx, offer.ID, bson.M{"client": "globex"}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	snapshots, err = recorder.ListByOffer(ctx, offer.ID)
	if err != nil {
		t.Fatalf("list history after second update: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	var second bson.M
	for _, snapshot := range snapshots {
		if snapshot["client"] == "acme" {
			second = snapshot
		}
	}
	if second == nil {
		t.Fatalf("no snapshot captured the first update's state: %v", snapshots)
	}
	history, ok := second["update_history"].(bson.A)
	if !ok || len(history) != 1 {
		t.Fatalf("second snapshot must carry the prior update_history, got %v", second["update_history"])
	}
}
