// Package domain holds the freight offer aggregate.
package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/apperror"
)

// Incoterm is the agreed delivery term of an offer.
type Incoterm string

const (
	IncotermDAP Incoterm = "DAP"
	IncotermCIF Incoterm = "CIF"
	IncotermEXW Incoterm = "EXW"
	IncotermFOB Incoterm = "FOB"
)

// ParseIncoterm validates an incoterm value.
func ParseIncoterm(value string) (Incoterm, bool) {
	switch Incoterm(strings.ToUpper(value)) {
	case IncotermDAP, IncotermCIF, IncotermEXW, IncotermFOB:
		return Incoterm(strings.ToUpper(value)), true
	default:
		return "", false
	}
}

// Activity is the soft-delete state of a document.
type Activity string

const (
	ActivityActive   Activity = "Active"
	ActivityArchived Activity = "Archived"
)

// WeightLimit caps the cargo weight per container size.
type WeightLimit struct {
	W20 float64 `bson:"w_20,omitempty" json:"w_20,omitempty"`
	W40 float64 `bson:"w_40,omitempty" json:"w_40,omitempty"`
}

// PortPair names the two ends of a leg handled by a single party.
type PortPair struct {
	LoadingPort   string `bson:"loading_port,omitempty" json:"loading_port,omitempty"`
	DischargePort string `bson:"discharge_port,omitempty" json:"discharge_port,omitempty"`
}

// LineItem is one priced service row of an offer or price list.
type LineItem struct {
	ItemLine     string  `bson:"item_line" json:"item_line"`
	Supplier     string  `bson:"supplier,omitempty" json:"supplier,omitempty"`
	Price20      float64 `bson:"price_20" json:"price_20"`
	Price40      float64 `bson:"price_40" json:"price_40"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
	Per          bool    `bson:"per" json:"per"`
}

// ParseLineItems converts a freshly decoded details payload into typed
// line items and enforces the same invariants Validate applies: at
// least one row, item_line present and unique, currency defaulted to
// USD.
func ParseLineItems(raw any) ([]LineItem, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "offers: invalid details payload", err)
	}
	var items []LineItem
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "offers: invalid details payload", err)
	}
	if len(items) == 0 {
		return nil, apperror.New(apperror.KindValidation, "offers: at least one line item required")
	}
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		if items[i].ItemLine == "" {
			return nil, apperror.New(apperror.KindValidation, "offers: line item without item_line")
		}
		if _, dup := seen[items[i].ItemLine]; dup {
			return nil, apperror.New(apperror.KindValidation, "offers: duplicate line item "+items[i].ItemLine)
		}
		seen[items[i].ItemLine] = struct{}{}
		if items[i].CurrencyCode == "" {
			items[i].CurrencyCode = "USD"
		}
	}
	return items, nil
}

// SenderInformation links a document to the user and company that
// created it.
type SenderInformation struct {
	User    bson.ObjectID `bson:"user,omitempty" json:"user,omitempty"`
	Company bson.ObjectID `bson:"company,omitempty" json:"company,omitempty"`
}

// Offer is a full freight quotation for one route.
type Offer struct {
	ID                bson.ObjectID     `bson:"_id,omitempty" json:"_id,omitempty"`
	LoadingPort       string            `bson:"loading_port,omitempty" json:"loading_port,omitempty"`
	FinalDestination  string            `bson:"final_destination,omitempty" json:"final_destination,omitempty"`
	DischargePort     string            `bson:"discharge_port,omitempty" json:"discharge_port,omitempty"`
	TransitPort       string            `bson:"transit_port,omitempty" json:"transit_port,omitempty"`
	PointOfShipment   string            `bson:"point_of_shipment,omitempty" json:"point_of_shipment,omitempty"`
	TrainStation      string            `bson:"train_station,omitempty" json:"train_station,omitempty"`
	Country           string            `bson:"country,omitempty" json:"country,omitempty"`
	Forwarder         string            `bson:"forwarder,omitempty" json:"forwarder,omitempty"`
	Sealine           string            `bson:"sealine,omitempty" json:"sealine,omitempty"`
	InlandCarrier     PortPair          `bson:"inland_carrier,omitempty" json:"inland_carrier,omitempty"`
	Customs           PortPair          `bson:"customs,omitempty" json:"customs,omitempty"`
	WeightLimit       WeightLimit       `bson:"weight_limit,omitempty" json:"weight_limit,omitempty"`
	ValidFrom         time.Time         `bson:"valid_from" json:"valid_from"`
	ValidUntil        time.Time         `bson:"valid_until" json:"valid_until"`
	Duration          string            `bson:"duration,omitempty" json:"duration,omitempty"`
	DurationSum       int               `bson:"duration_sum,omitempty" json:"duration_sum,omitempty"`
	FreeDays          int               `bson:"free_days,omitempty" json:"free_days,omitempty"`
	Mode              []string          `bson:"mode,omitempty" json:"mode,omitempty"`
	Certificate       string            `bson:"certificate,omitempty" json:"certificate,omitempty"`
	Incoterm          Incoterm          `bson:"incoterm" json:"incoterm"`
	Importer          string            `bson:"importer,omitempty" json:"importer,omitempty"`
	Client            string            `bson:"client,omitempty" json:"client,omitempty"`
	Details           []LineItem        `bson:"details" json:"details"`
	Activity          Activity          `bson:"activity" json:"activity"`
	CreatedAt         time.Time         `bson:"created_at" json:"created_at"`
	SecretStatus      bool              `bson:"secret_status" json:"secret_status"`
	TotalPrice        float64           `bson:"total_price,omitempty" json:"total_price,omitempty"`
	UpdateHistory     []bson.ObjectID   `bson:"update_history,omitempty" json:"update_history,omitempty"`
	Company           bson.ObjectID     `bson:"company,omitempty" json:"company,omitempty"`
	SenderInformation SenderInformation `bson:"senderInformation,omitempty" json:"senderInformation,omitempty"`
}

// ParseDurationSum turns a duration such as "5+2" into its total of
// days. Blank segments are ignored, so "5+" sums to 5.
func ParseDurationSum(duration string) (int, error) {
	if strings.TrimSpace(duration) == "" {
		return 0, nil
	}
	sum := 0
	for _, segment := range strings.Split(duration, "+") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		days, err := strconv.Atoi(segment)
		if err != nil {
			return 0, apperror.New(apperror.KindValidation, "offers: invalid duration "+duration)
		}
		sum += days
	}
	return sum, nil
}

// Validate checks the invariants enforced on create and update.
func (o *Offer) Validate() error {
	if o.ValidFrom.IsZero() || o.ValidUntil.IsZero() {
		return apperror.New(apperror.KindValidation, "offers: validity bounds required")
	}
	if o.ValidUntil.Before(o.ValidFrom) {
		return apperror.New(apperror.KindValidation, "offers: valid_until precedes valid_from")
	}
	if _, ok := ParseIncoterm(string(o.Incoterm)); !ok {
		return apperror.New(apperror.KindValidation, "offers: invalid incoterm "+string(o.Incoterm))
	}
	if len(o.Details) == 0 {
		return apperror.New(apperror.KindValidation, "offers: at least one line item required")
	}
	seen := make(map[string]struct{}, len(o.Details))
	for _, item := range o.Details {
		if item.ItemLine == "" {
			return apperror.New(apperror.KindValidation, "offers: line item without item_line")
		}
		if _, dup := seen[item.ItemLine]; dup {
			return apperror.New(apperror.KindValidation, "offers: duplicate line item "+item.ItemLine)
		}
		seen[item.ItemLine] = struct{}{}
	}
	return nil
}

// Prepare fills the derived and defaulted fields before persisting.
func (o *Offer) Prepare(now time.Time) error {
	sum, err := ParseDurationSum(o.Duration)
	if err != nil {
		return err
	}
	o.DurationSum = sum
	if o.Activity == "" {
		o.Activity = ActivityActive
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now.UTC()
	}
	for i := range o.Details {
		if o.Details[i].CurrencyCode == "" {
			o.Details[i].CurrencyCode = "USD"
		}
	}
	return o.Validate()
}
