package query

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func stageName(stage bson.D) string {
	if len(stage) == 0 {
		return ""
	}
	return stage[0].Key
}

func stageValue(t *testing.T, stage bson.D, name string) bson.D {
	t.Helper()
	if stageName(stage) != name {
		t.Fatalf("stage = %s, want %s", stageName(stage), name)
	}
	doc, ok := stage[0].Value.(bson.D)
	if !ok {
		t.Fatalf("%s value = %T, want bson.D", name, stage[0].Value)
	}
	return doc
}

func docField(t *testing.T, doc bson.D, key string) any {
	t.Helper()
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("field %s missing from %v", key, doc)
	return nil
}

func TestBuilderFacetContract(t *testing.T) {
	pipeline, err := NewBuilder(Params{
		"client": "ACME",
		"page":   "3",
		"limit":  "10",
	}, VariantEmpty).Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		t.Fatalf("Facet: %v", err)
	}
	if len(pipeline) != 2 {
		t.Fatalf("pipeline has %d stages, want facet + project", len(pipeline))
	}

	facet := stageValue(t, pipeline[0], "$facet")
	data, ok := docField(t, facet, "data").(mongo.Pipeline)
	if !ok {
		t.Fatalf("data branch = %T, want mongo.Pipeline", docField(t, facet, "data"))
	}
	count, ok := docField(t, facet, "count").(mongo.Pipeline)
	if !ok {
		t.Fatalf("count branch = %T, want mongo.Pipeline", docField(t, facet, "count"))
	}

	// data branch: match, then skip/limit for page 3 of 10.
	if stageName(data[0]) != "$match" {
		t.Fatalf("data branch starts with %s, want $match", stageName(data[0]))
	}
	skip := data[len(data)-2]
	limit := data[len(data)-1]
	if stageName(skip) != "$skip" || skip[0].Value != 20 {
		t.Fatalf("skip stage = %v, want $skip 20", skip)
	}
	if stageName(limit) != "$limit" || limit[0].Value != 10 {
		t.Fatalf("limit stage = %v, want $limit 10", limit)
	}

	// count branch: same match, no pagination, a terminal $count.
	if stageName(count[0]) != "$match" {
		t.Fatalf("count branch starts with %s, want $match", stageName(count[0]))
	}
	for _, stage := range count {
		if name := stageName(stage); name == "$skip" || name == "$limit" {
			t.Fatalf("count branch contains %s", name)
		}
	}
	last := count[len(count)-1]
	if stageName(last) != "$count" || last[0].Value != "count" {
		t.Fatalf("count branch ends with %v, want $count", last)
	}

	project := stageValue(t, pipeline[1], "$project")
	if docField(t, project, "data") != "$data" {
		t.Fatalf("projection data = %v, want $data", docField(t, project, "data"))
	}
	totalCount, ok := docField(t, project, "totalCount").(bson.D)
	if !ok || totalCount[0].Key != "$ifNull" {
		t.Fatalf("totalCount = %v, want $ifNull fallback", docField(t, project, "totalCount"))
	}
}

func TestBuilderPaginationDefaults(t *testing.T) {
	pipeline, err := NewBuilder(Params{}, VariantEmpty).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		t.Fatalf("Facet: %v", err)
	}
	facet := stageValue(t, pipeline[0], "$facet")
	data := docField(t, facet, "data").(mongo.Pipeline)

	skip := data[len(data)-2]
	limit := data[len(data)-1]
	if skip[0].Value != 0 {
		t.Fatalf("default skip = %v, want 0", skip[0].Value)
	}
	if limit[0].Value != defaultLimit {
		t.Fatalf("default limit = %v, want %d", limit[0].Value, defaultLimit)
	}
}

func TestBuilderSortAndFieldSelection(t *testing.T) {
	pipeline, err := NewBuilder(Params{
		"sort":   "-created_at,client",
		"fields": "client,forwarder",
	}, VariantEmpty).Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		t.Fatalf("Facet: %v", err)
	}
	facet := stageValue(t, pipeline[0], "$facet")
	data := docField(t, facet, "data").(mongo.Pipeline)

	var sortDoc, projectDoc bson.D
	for _, stage := range data {
		switch stageName(stage) {
		case "$sort":
			sortDoc = stage[0].Value.(bson.D)
		case "$project":
			projectDoc = stage[0].Value.(bson.D)
		}
	}
	if sortDoc == nil {
		t.Fatal("no $sort stage in data branch")
	}
	if sortDoc[0].Key != "created_at" || sortDoc[0].Value != -1 {
		t.Fatalf("sort[0] = %v, want created_at descending", sortDoc[0])
	}
	if sortDoc[1].Key != "client" || sortDoc[1].Value != 1 {
		t.Fatalf("sort[1] = %v, want client ascending", sortDoc[1])
	}

	if projectDoc == nil {
		t.Fatal("no $project stage in data branch")
	}
	if docField(t, projectDoc, "client") != 1 || docField(t, projectDoc, "forwarder") != 1 {
		t.Fatalf("projection = %v, want inclusion of client and forwarder", projectDoc)
	}
}

func TestBuilderMatchPlacementPerVariant(t *testing.T) {
	offers, err := NewBuilder(Params{"client": "ACME"}, VariantOffers).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		t.Fatalf("Facet: %v", err)
	}
	data := docField(t, stageValue(t, offers[0], "$facet"), "data").(mongo.Pipeline)
	if stageName(data[0]) != "$match" {
		t.Fatalf("offer variant starts with %s, want $match before normalization", stageName(data[0]))
	}
	if stageName(data[1]) != "$unwind" {
		t.Fatalf("offer variant stage 2 = %s, want $unwind", stageName(data[1]))
	}

	base := len(BasePipeline(VariantInvitations))
	invitations, err := NewBuilder(Params{"senderInformation.company": bson.NewObjectID().Hex()}, VariantInvitations).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err != nil {
		t.Fatalf("Facet: %v", err)
	}
	data = docField(t, stageValue(t, invitations[0], "$facet"), "data").(mongo.Pipeline)
	if stageName(data[0]) == "$match" {
		t.Fatal("invitation match placed before the sender join")
	}
	if stageName(data[base]) != "$match" {
		t.Fatalf("invitation stage %d = %s, want $match after the join", base, stageName(data[base]))
	}
}

func TestBuilderSurfacesNormalizationError(t *testing.T) {
	_, err := NewBuilder(Params{"company": "zzz"}, VariantEmpty).
		Filter().Sort().LimitFields().Paginate().Facet()
	if err == nil {
		t.Fatal("Facet accepted a malformed identifier")
	}
}

func TestBuilderFreeIntervals(t *testing.T) {
	pipeline, err := NewBuilder(Params{"company": bson.NewObjectID().Hex()}, VariantFreeIntervals).
		FreeIntervals()
	if err != nil {
		t.Fatalf("FreeIntervals: %v", err)
	}
	if stageName(pipeline[0]) != "$match" {
		t.Fatalf("first stage = %s, want $match", stageName(pipeline[0]))
	}
	if stageName(pipeline[1]) != "$sort" {
		t.Fatalf("second stage = %s, want $sort", stageName(pipeline[1]))
	}
	if got, want := len(pipeline), 1+len(FreeIntervalPipeline()); got != want {
		t.Fatalf("pipeline has %d stages, want %d", got, want)
	}
}
