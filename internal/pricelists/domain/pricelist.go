// Package domain holds the price-list aggregate.
package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/apperror"
	offers "freight-cloud/internal/offers/domain"
)

// Category names the cost segment a price list covers.
type Category string

const (
	CategoryCCDestination  Category = "cc-destination"
	CategoryInlandCarrier  Category = "inland-carrier"
	CategoryForwarder      Category = "forwarder"
	CategoryInlandSupplier Category = "inland-supplier"
	CategoryLocalCharges   Category = "local-charges"
)

// ParseCategory validates a category value.
func ParseCategory(value string) (Category, bool) {
	switch Category(value) {
	case CategoryCCDestination, CategoryInlandCarrier, CategoryForwarder,
		CategoryInlandSupplier, CategoryLocalCharges:
		return Category(value), true
	default:
		return "", false
	}
}

// PriceList is a supplier tariff valid for one interval, matched
// against offers by category-specific fields.
type PriceList struct {
	ID                bson.ObjectID            `bson:"_id,omitempty" json:"_id,omitempty"`
	Category          Category                 `bson:"category" json:"category"`
	FinalDestination  string                   `bson:"final_destination,omitempty" json:"final_destination,omitempty"`
	DischargePort     string                   `bson:"discharge_port,omitempty" json:"discharge_port,omitempty"`
	TrainStation      string                   `bson:"train_station,omitempty" json:"train_station,omitempty"`
	Forwarder         string                   `bson:"forwarder,omitempty" json:"forwarder,omitempty"`
	Sealine           string                   `bson:"sealine,omitempty" json:"sealine,omitempty"`
	Incoterm          offers.Incoterm          `bson:"incoterm,omitempty" json:"incoterm,omitempty"`
	InlandCarrier     offers.PortPair          `bson:"inland_carrier,omitempty" json:"inland_carrier,omitempty"`
	Customs           offers.PortPair          `bson:"customs,omitempty" json:"customs,omitempty"`
	ValidFrom         time.Time                `bson:"valid_from" json:"valid_from"`
	ValidUntil        time.Time                `bson:"valid_until" json:"valid_until"`
	Details           []offers.LineItem        `bson:"details" json:"details"`
	Activity          offers.Activity          `bson:"activity" json:"activity"`
	CreatedAt         time.Time                `bson:"created_at" json:"created_at"`
	Company           bson.ObjectID            `bson:"company,omitempty" json:"company,omitempty"`
	SenderInformation offers.SenderInformation `bson:"senderInformation,omitempty" json:"senderInformation,omitempty"`
}

// Validate checks the invariants enforced on create and update.
func (p *PriceList) Validate() error {
	if _, ok := ParseCategory(string(p.Category)); !ok {
		return apperror.New(apperror.KindValidation, "pricelists: invalid category "+string(p.Category))
	}
	if p.ValidFrom.IsZero() || p.ValidUntil.IsZero() {
		return apperror.New(apperror.KindValidation, "pricelists: validity bounds required")
	}
	if p.ValidUntil.Before(p.ValidFrom) {
		return apperror.New(apperror.KindValidation, "pricelists: valid_until precedes valid_from")
	}
	if len(p.Details) == 0 {
		return apperror.New(apperror.KindValidation, "pricelists: at least one line item required")
	}
	seen := make(map[string]struct{}, len(p.Details))
	for _, item := range p.Details {
		if item.ItemLine == "" {
			return apperror.New(apperror.KindValidation, "pricelists: line item without item_line")
		}
		if _, dup := seen[item.ItemLine]; dup {
			return apperror.New(apperror.KindValidation, "pricelists: duplicate line item "+item.ItemLine)
		}
		seen[item.ItemLine] = struct{}{}
	}
	return nil
}

// Prepare fills defaults before persisting.
func (p *PriceList) Prepare(now time.Time) error {
	if p.Activity == "" {
		p.Activity = offers.ActivityActive
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now.UTC()
	}
	for i := range p.Details {
		if p.Details[i].CurrencyCode == "" {
			p.Details[i].CurrencyCode = "USD"
		}
	}
	return p.Validate()
}

// ScopeFilter returns the fields identifying the matching scope the
// overlap guard applies to. Two price lists conflict only when every
// scope field coincides and their validity intervals overlap.
func (p *PriceList) ScopeFilter() bson.M {
	return bson.M{
		"company":           p.Company,
		"category":          p.Category,
		"final_destination": p.FinalDestination,
		"discharge_port":    p.DischargePort,
		"train_station":     p.TrainStation,
		"forwarder":         p.Forwarder,
		"sealine":           p.Sealine,
	}
}
