package query

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Variant selects the base aggregation stages a pipeline build starts
// from.
type Variant string

const (
	// VariantOffers is the offer currency-normalization pipeline.
	VariantOffers Variant = "offers"
	// VariantLogin is the no-op base for plain collection reads.
	VariantLogin Variant = "login"
	// VariantInvitations joins invitations to their sending user so
	// company scoping becomes possible.
	VariantInvitations Variant = "invitations"
	// VariantFreeIntervals computes uncovered validity ranges per
	// price-list category.
	VariantFreeIntervals Variant = "free-intervals"
	// VariantPriceListCurrency is the price-list currency-normalization
	// pipeline.
	VariantPriceListCurrency Variant = "price-list-currency"
	// VariantEmpty is the no-op base for reads against the derived
	// views, which are already fully shaped.
	VariantEmpty Variant = "empty"
)

// Collection and view names.
const (
	CollectionOffers         = "offers"
	CollectionOfferHistories = "offer_histories"
	CollectionPriceLists     = "price_lists"
	CollectionCurrencies     = "currencies"
	CollectionUsers          = "users"
	CollectionInvitations    = "invitations"

	ViewOffersCurrency       = "offers_currency_exchange"
	ViewPriceListCurrency    = "price_list_currency_exchange"
	ViewOffersWithPriceLists = "offers_with_price_lists_currency_exchange"
)

// BasePipeline returns a fresh copy of the variant's base stages.
func BasePipeline(variant Variant) mongo.Pipeline {
	var base mongo.Pipeline
	switch variant {
	case VariantOffers:
		base = OfferCurrencyPipeline()
	case VariantInvitations:
		base = invitationPipeline()
	case VariantFreeIntervals:
		base = FreeIntervalPipeline()
	case VariantPriceListCurrency:
		base = PriceListCurrencyPipeline()
	default:
		base = mongo.Pipeline{}
	}
	return base
}

// offerScalarFields are the offer fields carried through the
// normalization re-group unchanged, first value wins.
var offerScalarFields = []string{
	"loading_port",
	"final_destination",
	"discharge_port",
	"transit_port",
	"point_of_shipment",
	"train_station",
	"country",
	"forwarder",
	"sealine",
	"customs",
	"weight_limit",
	"valid_from",
	"valid_until",
	"duration",
	"free_days",
	"mode",
	"certificate",
	"incoterm",
	"importer",
	"inland_carrier",
	"client",
	"activity",
	"uploaded_by",
	"created_at",
	"secret_status",
	"update_history",
	"duration_sum",
	"total_price",
	"company",
	"senderInformation",
}

var priceListScalarFields = []string{
	"category",
	"incoterm",
	"final_destination",
	"forwarder",
	"sealine",
	"train_station",
	"valid_from",
	"valid_until",
	"customs",
	"discharge_port",
	"inland_carrier",
	"activity",
	"company",
}

// OfferCurrencyPipeline normalizes offer line-item prices into USD and
// re-aggregates per offer with summed USD totals.
func OfferCurrencyPipeline() mongo.Pipeline {
	return currencyNormalization(offerScalarFields)
}

// PriceListCurrencyPipeline is the price-list counterpart of
// OfferCurrencyPipeline.
func PriceListCurrencyPipeline() mongo.Pipeline {
	return currencyNormalization(priceListScalarFields)
}

// currencyNormalization unwinds the line items, correlates each row to
// the current rate snapshot by currency code, divides both prices by
// the looked-up rate and groups the document back together. A line item
// with an unknown currency code finds no rate: the division yields a
// missing value and the $sum simply skips that row.
func currencyNormalization(scalarFields []string) mongo.Pipeline {
	group := bson.D{{Key: "_id", Value: "$_id"}}
	for _, field := range scalarFields {
		group = append(group, bson.E{Key: field, Value: bson.D{{Key: "$first", Value: "$" + field}}})
	}
	group = append(group,
		bson.E{Key: "details", Value: bson.D{{Key: "$push", Value: "$details"}}},
		bson.E{Key: "total_price_20_usd", Value: bson.D{{Key: "$sum", Value: "$details.price_20_usd"}}},
		bson.E{Key: "total_price_40_usd", Value: bson.D{{Key: "$sum", Value: "$details.price_40_usd"}}},
	)

	return mongo.Pipeline{
		bson.D{{Key: "$unwind", Value: "$details"}},
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollectionCurrencies},
			{Key: "let", Value: bson.D{{Key: "currency_code", Value: "$details.currency_code"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$unwind", Value: "$rates"}},
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$rates.currency_code", "$$currency_code"}},
				}}}}},
				bson.D{{Key: "$project", Value: bson.D{
					{Key: "_id", Value: 0},
					{Key: "rate", Value: "$rates.rate"},
				}}},
			}},
			{Key: "as", Value: "currency"},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "details.price_20_usd", Value: usdExpr("$details.price_20")},
			{Key: "details.price_40_usd", Value: usdExpr("$details.price_40")},
		}}},
		bson.D{{Key: "$group", Value: group}},
	}
}

func usdExpr(price string) bson.D {
	return bson.D{{Key: "$divide", Value: bson.A{
		price,
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$currency.rate", 0}}},
	}}}
}

// matchRule is one correlated sub-lookup against the normalized
// price-list view. Every pair equates a candidate price-list field with
// an offer-side variable; all rules share the validity-containment
// gate.
type matchRule struct {
	as    string
	pairs [][2]string
}

// offerPriceListRules are the independent matching rules whose results
// are concatenated, duplicates included, into the offer's priceLists.
var offerPriceListRules = []matchRule{
	{as: "customs_clearance", pairs: [][2]string{
		{"customs.discharge_port", "customs_clearance"},
		{"discharge_port", "discharge_port"},
	}},
	{as: "inland_carrier_discharge", pairs: [][2]string{
		{"inland_carrier.discharge_port", "inland_carrier_discharge"},
		{"train_station", "train_station"},
		{"discharge_port", "discharge_port"},
		{"final_destination", "final_destination"},
	}},
	{as: "forwarder", pairs: [][2]string{
		{"incoterm", "incoterm"},
		{"forwarder", "forwarder"},
	}},
	{as: "inland_carrier_loading", pairs: [][2]string{
		{"inland_carrier.loading_port", "inland_carrier_loading"},
	}},
	{as: "sealine", pairs: [][2]string{
		{"sealine", "sealine"},
	}},
}

// offerLookupVars exposes the offer fields the rules may reference.
var offerLookupVars = bson.D{
	{Key: "final_destination", Value: "$final_destination"},
	{Key: "discharge_port", Value: "$discharge_port"},
	{Key: "customs_clearance", Value: "$customs.discharge_port"},
	{Key: "train_station", Value: "$train_station"},
	{Key: "inland_carrier_loading", Value: "$inland_carrier.loading_port"},
	{Key: "inland_carrier_discharge", Value: "$inland_carrier.discharge_port"},
	{Key: "forwarder", Value: "$forwarder"},
	{Key: "incoterm", Value: "$incoterm"},
	{Key: "sealine", Value: "$sealine"},
	{Key: "valid_from", Value: "$valid_from"},
	{Key: "valid_until", Value: "$valid_until"},
}

// OffersWithPriceListsPipeline correlates every normalized offer with
// the price lists matching any of the rules, then rolls their USD
// totals into the offer's. A price list satisfying two rules appears
// twice and is counted twice; this mirrors how costs have always been
// rolled up and must not change silently.
func OffersWithPriceListsPipeline() mongo.Pipeline {
	pipeline := mongo.Pipeline{}
	ruleFields := bson.A{}
	dropRules := bson.D{}
	for _, rule := range offerPriceListRules {
		pipeline = append(pipeline, ruleLookup(rule))
		ruleFields = append(ruleFields, "$"+rule.as)
		dropRules = append(dropRules, bson.E{Key: rule.as, Value: 0})
	}

	pipeline = append(pipeline,
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "priceLists", Value: bson.D{{Key: "$concatArrays", Value: ruleFields}}},
		}}},
		bson.D{{Key: "$project", Value: dropRules}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "total_price_20_usd", Value: rollupExpr("$total_price_20_usd", "total_price_20_usd")},
			{Key: "total_price_40_usd", Value: rollupExpr("$total_price_40_usd", "total_price_40_usd")},
		}}},
	)
	return pipeline
}

// ruleLookup builds one correlated sub-query: the rule's equalities
// plus the validity containment gate (the candidate's interval must
// fully contain the offer's).
func ruleLookup(rule matchRule) bson.D {
	conditions := bson.A{}
	for _, pair := range rule.pairs {
		conditions = append(conditions, bson.D{
			{Key: "$eq", Value: bson.A{"$" + pair[0], "$$" + pair[1]}},
		})
	}
	conditions = append(conditions,
		bson.D{{Key: "$lte", Value: bson.A{"$valid_from", "$$valid_from"}}},
		bson.D{{Key: "$gte", Value: bson.A{"$valid_until", "$$valid_until"}}},
	)

	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: ViewPriceListCurrency},
		{Key: "let", Value: offerLookupVars},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
				{Key: "$and", Value: conditions},
			}}}}},
		}},
		{Key: "as", Value: rule.as},
	}}}
}

func rollupExpr(current, field string) bson.D {
	return bson.D{{Key: "$add", Value: bson.A{
		current,
		bson.D{{Key: "$reduce", Value: bson.D{
			{Key: "input", Value: "$priceLists"},
			{Key: "initialValue", Value: 0},
			{Key: "in", Value: bson.D{{Key: "$sum", Value: bson.A{"$$value", "$$this." + field}}}},
		}}},
	}}}
}

// intervalEpoch is the lower bound of the gap preceding the first
// validity interval.
var intervalEpoch = time.Unix(0, 0).UTC()

// FreeIntervalPipeline computes, per category, the date ranges not
// covered by any validity interval. Intervals are sorted by valid_from
// and grouped per category; one projection then both reduces them into
// an accumulator of non-overlapping intervals and emits the complement
// of the sorted list: epoch up to the first interval, a gap after each
// interval's end (+1 ms) reaching to the next interval's start, the
// last gap open-ended with a null upper bound.
//
// The overlap predicate deliberately ORs the two bound comparisons,
// matching the behavior shipped to date; see the package tests before
// changing it.
func FreeIntervalPipeline() mongo.Pipeline {
	overlapWithAccumulated := bson.D{{Key: "$anyElementTrue", Value: bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: "$$value"},
		{Key: "as", Value: "interval"},
		{Key: "in", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{"$$this.valid_until", "$$interval.valid_from"}}},
			bson.D{{Key: "$lt", Value: bson.A{"$$this.valid_from", "$$interval.valid_until"}}},
		}}}},
	}}}}}

	reduceValid := bson.D{{Key: "$reduce", Value: bson.D{
		{Key: "input", Value: "$validIntervals"},
		{Key: "initialValue", Value: bson.A{}},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.D{
			{Key: "if", Value: bson.D{{Key: "$not", Value: overlapWithAccumulated}}},
			{Key: "then", Value: bson.D{{Key: "$concatArrays", Value: bson.A{"$$value", bson.A{"$$this"}}}}},
			{Key: "else", Value: "$$value"},
		}}}},
	}}}

	lastIndex := bson.D{{Key: "$subtract", Value: bson.A{
		bson.D{{Key: "$size", Value: "$validIntervals"}},
		1,
	}}}

	gapUpperBound := bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{{Key: "nextIndex", Value: bson.D{
			{Key: "$indexOfArray", Value: bson.A{"$validIntervals", "$$interval"}},
		}}}},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$$nextIndex", lastIndex}}},
			nil,
			bson.D{{Key: "$arrayElemAt", Value: bson.A{
				"$validIntervals.valid_from",
				bson.D{{Key: "$add", Value: bson.A{"$$nextIndex", 1}}},
			}}},
		}}}},
	}}}

	freeIntervals := bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{{Key: "firstInterval", Value: bson.D{
			{Key: "$arrayElemAt", Value: bson.A{"$validIntervals", 0}},
		}}}},
		{Key: "in", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			bson.A{bson.D{
				{Key: "valid_from", Value: intervalEpoch},
				{Key: "valid_until", Value: "$$firstInterval.valid_from"},
			}},
			bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: "$validIntervals"},
				{Key: "as", Value: "interval"},
				{Key: "in", Value: bson.D{
					{Key: "valid_from", Value: bson.D{{Key: "$add", Value: bson.A{"$$interval.valid_until", 1}}}},
					{Key: "valid_until", Value: gapUpperBound},
				}},
			}}},
		}}}},
	}}}

	// Both expressions live in one $project on purpose: projection
	// expressions read the stage's input document, so the gap map runs
	// over the sorted pre-reduce interval list while validIntervals is
	// reduced from the same input. Splitting the stages would feed the
	// gap map the reduced list instead and swallow every interval after
	// the first.
	return mongo.Pipeline{
		bson.D{{Key: "$sort", Value: bson.D{{Key: "valid_from", Value: 1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$category"},
			{Key: "validIntervals", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "valid_from", Value: "$valid_from"},
				{Key: "valid_until", Value: "$valid_until"},
			}}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "category", Value: "$_id"},
			{Key: "validIntervals", Value: reduceValid},
			{Key: "freeIntervals", Value: freeIntervals},
		}}},
	}
}

// invitationPipeline joins each invitation to its sending user and
// flattens the result, so that senderInformation.company becomes
// filterable.
func invitationPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollectionUsers},
			{Key: "let", Value: bson.D{{Key: "senderInformationId", Value: "$senderInformation"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$_id", "$$senderInformationId"}},
				}}}}},
				bson.D{{Key: "$project", Value: bson.D{{Key: "company", Value: 1}}}},
			}},
			{Key: "as", Value: "senderInformation"},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "senderInformation", Value: bson.D{
				{Key: "$arrayElemAt", Value: bson.A{"$senderInformation", 0}},
			}},
		}}},
	}
}
