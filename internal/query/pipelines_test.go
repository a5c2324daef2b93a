package query

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestOfferCurrencyPipelineShape(t *testing.T) {
	pipeline := OfferCurrencyPipeline()
	wantStages := []string{"$unwind", "$lookup", "$addFields", "$group"}
	if len(pipeline) != len(wantStages) {
		t.Fatalf("pipeline has %d stages, want %d", len(pipeline), len(wantStages))
	}
	for i, want := range wantStages {
		if stageName(pipeline[i]) != want {
			t.Fatalf("stage %d = %s, want %s", i, stageName(pipeline[i]), want)
		}
	}

	lookup := stageValue(t, pipeline[1], "$lookup")
	if docField(t, lookup, "from") != CollectionCurrencies {
		t.Fatalf("lookup from = %v, want %s", docField(t, lookup, "from"), CollectionCurrencies)
	}
	if docField(t, lookup, "as") != "currency" {
		t.Fatalf("lookup as = %v, want currency", docField(t, lookup, "as"))
	}

	addFields := stageValue(t, pipeline[2], "$addFields")
	for _, field := range []string{"details.price_20_usd", "details.price_40_usd"} {
		expr, ok := docField(t, addFields, field).(bson.D)
		if !ok || expr[0].Key != "$divide" {
			t.Fatalf("%s = %v, want a $divide expression", field, docField(t, addFields, field))
		}
	}

	group := stageValue(t, pipeline[3], "$group")
	if docField(t, group, "_id") != "$_id" {
		t.Fatalf("group _id = %v, want $_id", docField(t, group, "_id"))
	}
	for _, field := range offerScalarFields {
		acc, ok := docField(t, group, field).(bson.D)
		if !ok || acc[0].Key != "$first" {
			t.Fatalf("group %s = %v, want $first accumulator", field, docField(t, group, field))
		}
	}
	details, ok := docField(t, group, "details").(bson.D)
	if !ok || details[0].Key != "$push" {
		t.Fatalf("group details = %v, want $push", docField(t, group, "details"))
	}
	for _, total := range []string{"total_price_20_usd", "total_price_40_usd"} {
		acc, ok := docField(t, group, total).(bson.D)
		if !ok || acc[0].Key != "$sum" {
			t.Fatalf("group %s = %v, want $sum accumulator", total, docField(t, group, total))
		}
	}
}

func TestPriceListCurrencyPipelineGroupFields(t *testing.T) {
	pipeline := PriceListCurrencyPipeline()
	group := stageValue(t, pipeline[len(pipeline)-1], "$group")
	for _, field := range priceListScalarFields {
		acc, ok := docField(t, group, field).(bson.D)
		if !ok || acc[0].Key != "$first" {
			t.Fatalf("group %s = %v, want $first accumulator", field, docField(t, group, field))
		}
	}
}

func TestOffersWithPriceListsRuleLookups(t *testing.T) {
	pipeline := OffersWithPriceListsPipeline()

	// One lookup per rule, then concat, cleanup and the totals roll-up.
	if got, want := len(pipeline), len(offerPriceListRules)+3; got != want {
		t.Fatalf("pipeline has %d stages, want %d", got, want)
	}

	for i, rule := range offerPriceListRules {
		lookup := stageValue(t, pipeline[i], "$lookup")
		if docField(t, lookup, "from") != ViewPriceListCurrency {
			t.Fatalf("rule %s reads from %v, want %s", rule.as, docField(t, lookup, "from"), ViewPriceListCurrency)
		}
		if docField(t, lookup, "as") != rule.as {
			t.Fatalf("rule %d lands in %v, want %s", i, docField(t, lookup, "as"), rule.as)
		}

		sub := docField(t, lookup, "pipeline").(bson.A)
		match := sub[0].(bson.D)
		expr := stageValue(t, match, "$match")
		and := docField(t, expr, "$expr").(bson.D)
		conditions := docField(t, and, "$and").(bson.A)

		// Every field pair plus the two validity bounds.
		if got, want := len(conditions), len(rule.pairs)+2; got != want {
			t.Fatalf("rule %s has %d conditions, want %d", rule.as, got, want)
		}
		for j, pair := range rule.pairs {
			eq := conditions[j].(bson.D)
			operands := docField(t, eq, "$eq").(bson.A)
			if operands[0] != "$"+pair[0] || operands[1] != "$$"+pair[1] {
				t.Fatalf("rule %s pair %d = %v, want %s == %s", rule.as, j, operands, pair[0], pair[1])
			}
		}

		// Containment: the candidate interval must enclose the offer's.
		lower := conditions[len(conditions)-2].(bson.D)
		if lower[0].Key != "$lte" {
			t.Fatalf("rule %s lower bound uses %s, want $lte", rule.as, lower[0].Key)
		}
		lowerOps := lower[0].Value.(bson.A)
		if lowerOps[0] != "$valid_from" || lowerOps[1] != "$$valid_from" {
			t.Fatalf("rule %s lower bound = %v", rule.as, lowerOps)
		}
		upper := conditions[len(conditions)-1].(bson.D)
		if upper[0].Key != "$gte" {
			t.Fatalf("rule %s upper bound uses %s, want $gte", rule.as, upper[0].Key)
		}
		upperOps := upper[0].Value.(bson.A)
		if upperOps[0] != "$valid_until" || upperOps[1] != "$$valid_until" {
			t.Fatalf("rule %s upper bound = %v", rule.as, upperOps)
		}
	}

	concat := stageValue(t, pipeline[len(offerPriceListRules)], "$addFields")
	priceLists := docField(t, concat, "priceLists").(bson.D)
	arrays := docField(t, priceLists, "$concatArrays").(bson.A)
	if len(arrays) != len(offerPriceListRules) {
		t.Fatalf("concat joins %d arrays, want %d", len(arrays), len(offerPriceListRules))
	}

	cleanup := stageValue(t, pipeline[len(offerPriceListRules)+1], "$project")
	for _, rule := range offerPriceListRules {
		if docField(t, cleanup, rule.as) != 0 {
			t.Fatalf("rule field %s not excluded after concat", rule.as)
		}
	}

	rollup := stageValue(t, pipeline[len(offerPriceListRules)+2], "$addFields")
	for _, total := range []string{"total_price_20_usd", "total_price_40_usd"} {
		add, ok := docField(t, rollup, total).(bson.D)
		if !ok || add[0].Key != "$add" {
			t.Fatalf("%s roll-up = %v, want $add", total, docField(t, rollup, total))
		}
	}
}

func TestFreeIntervalPipelineStages(t *testing.T) {
	pipeline := FreeIntervalPipeline()
	wantStages := []string{"$sort", "$group", "$project"}
	if len(pipeline) != len(wantStages) {
		t.Fatalf("pipeline has %d stages, want %d", len(pipeline), len(wantStages))
	}
	for i, want := range wantStages {
		if stageName(pipeline[i]) != want {
			t.Fatalf("stage %d = %s, want %s", i, stageName(pipeline[i]), want)
		}
	}

	sort := stageValue(t, pipeline[0], "$sort")
	if docField(t, sort, "valid_from") != 1 {
		t.Fatalf("sort = %v, want valid_from ascending", sort)
	}

	group := stageValue(t, pipeline[1], "$group")
	if docField(t, group, "_id") != "$category" {
		t.Fatalf("group _id = %v, want $category", docField(t, group, "_id"))
	}

	// The reduce and the gap map share one projection so the gap map
	// reads the sorted list, not the reduced accumulator.
	final := stageValue(t, pipeline[2], "$project")
	reduced, ok := docField(t, final, "validIntervals").(bson.D)
	if !ok || reduced[0].Key != "$reduce" {
		t.Fatalf("validIntervals = %v, want $reduce", docField(t, final, "validIntervals"))
	}

	free, ok := docField(t, final, "freeIntervals").(bson.D)
	if !ok || free[0].Key != "$let" {
		t.Fatalf("freeIntervals = %v, want $let", docField(t, final, "freeIntervals"))
	}
	letDoc := free[0].Value.(bson.D)
	in := docField(t, letDoc, "in").(bson.D)
	parts := docField(t, in, "$concatArrays").(bson.A)

	// Leading gap opens at the epoch.
	lead := parts[0].(bson.A)[0].(bson.D)
	if docField(t, lead, "valid_from") != any(intervalEpoch) {
		t.Fatalf("leading gap opens at %v, want %v", docField(t, lead, "valid_from"), intervalEpoch)
	}
	if docField(t, lead, "valid_until") != "$$firstInterval.valid_from" {
		t.Fatalf("leading gap closes at %v", docField(t, lead, "valid_until"))
	}
}

func TestBasePipelineVariants(t *testing.T) {
	if got := len(BasePipeline(VariantEmpty)); got != 0 {
		t.Fatalf("empty variant has %d stages, want 0", got)
	}
	if got := len(BasePipeline(VariantLogin)); got != 0 {
		t.Fatalf("login variant has %d stages, want 0", got)
	}
	if got := len(BasePipeline(VariantOffers)); got != 4 {
		t.Fatalf("offer variant has %d stages, want 4", got)
	}
	if got := len(BasePipeline(VariantInvitations)); got != 2 {
		t.Fatalf("invitation variant has %d stages, want 2", got)
	}

	// Every call hands out an independent copy.
	first := BasePipeline(VariantOffers)
	first[0] = bson.D{{Key: "$match", Value: bson.M{}}}
	second := BasePipeline(VariantOffers)
	if stageName(second[0]) == "$match" {
		t.Fatal("mutating a returned base pipeline leaked into the next build")
	}
}
