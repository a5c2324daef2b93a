package query

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	defaultPage  = 1
	defaultLimit = 5
)

// Builder composes normalized query input with a variant base pipeline
// into the final aggregation pipeline. The stage order
// filter → sort → limitFields → paginate → facet is enforced at compile
// time: every stage method returns the next phase only, and Facet
// freezes the pipeline into its final two-stage form.
type Builder interface {
	// Filter prepends the match stage built from the query input.
	// The invitations variant appends it after the join instead,
	// because invitation documents only gain the company field the
	// join produces.
	Filter() SortStage

	// FreeIntervals is the alternate terminal mode: a match stage
	// prepended to the free-interval base pipeline, no pagination.
	FreeIntervals() (mongo.Pipeline, error)
}

// SortStage accepts the optional sort stage.
type SortStage interface {
	Sort() FieldsStage
}

// FieldsStage accepts the optional inclusion projection.
type FieldsStage interface {
	LimitFields() PaginateStage
}

// PaginateStage accepts pagination.
type PaginateStage interface {
	Paginate() FacetStage
}

// FacetStage finalizes the pipeline.
type FacetStage interface {
	// Facet wraps the main pipeline and the count snapshot into a
	// two-branch facet plus a projection. The executed pipeline
	// always yields exactly one document shaped
	// {data: [...], totalCount: <int>}, with totalCount defaulting
	// to 0 when nothing matched.
	Facet() (mongo.Pipeline, error)
}

type builder struct {
	params        Params
	variant       Variant
	pipeline      mongo.Pipeline
	countPipeline mongo.Pipeline
	err           error
}

// NewBuilder starts a pipeline build for the given variant.
func NewBuilder(params Params, variant Variant) Builder {
	return &builder{
		params:   params,
		variant:  variant,
		pipeline: BasePipeline(variant),
	}
}

func (b *builder) Filter() SortStage {
	filter, err := Normalize(b.params)
	if err != nil {
		b.err = err
		return b
	}
	match := bson.D{{Key: "$match", Value: filter}}
	if b.variant == VariantInvitations {
		b.pipeline = append(b.pipeline, match)
	} else {
		b.pipeline = append(mongo.Pipeline{match}, b.pipeline...)
	}
	return b
}

func (b *builder) Sort() FieldsStage {
	raw, _ := b.params["sort"].(string)
	if raw == "" {
		return b
	}
	sortDoc := bson.D{}
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		direction := 1
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: field, Value: direction})
	}
	if len(sortDoc) > 0 {
		b.pipeline = append(b.pipeline, bson.D{{Key: "$sort", Value: sortDoc}})
	}
	return b
}

func (b *builder) LimitFields() PaginateStage {
	raw, _ := b.params["fields"].(string)
	if raw == "" {
		return b
	}
	projection := bson.D{}
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		projection = append(projection, bson.E{Key: field, Value: 1})
	}
	if len(projection) > 0 {
		b.pipeline = append(b.pipeline, bson.D{{Key: "$project", Value: projection}})
	}
	return b
}

func (b *builder) Paginate() FacetStage {
	page := intParam(b.params, "page", defaultPage)
	limit := intParam(b.params, "limit", defaultLimit)
	skip := (page - 1) * limit

	// Snapshot the pipeline before skip/limit: the count branch must
	// see every matching document, not just the requested page.
	b.countPipeline = append(mongo.Pipeline{}, b.pipeline...)
	b.countPipeline = append(b.countPipeline, bson.D{{Key: "$count", Value: "count"}})

	b.pipeline = append(b.pipeline,
		bson.D{{Key: "$skip", Value: skip}},
		bson.D{{Key: "$limit", Value: limit}},
	)
	return b
}

func (b *builder) Facet() (mongo.Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	facet := bson.D{{Key: "$facet", Value: bson.D{
		{Key: "data", Value: b.pipeline},
		{Key: "count", Value: b.countPipeline},
	}}}
	project := bson.D{{Key: "$project", Value: bson.D{
		{Key: "data", Value: "$data"},
		{Key: "totalCount", Value: bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$arrayElemAt", Value: bson.A{"$count.count", 0}}},
			0,
		}}}},
	}}}
	return mongo.Pipeline{facet, project}, nil
}

func (b *builder) FreeIntervals() (mongo.Pipeline, error) {
	filter, err := Normalize(b.params)
	if err != nil {
		return nil, err
	}
	match := bson.D{{Key: "$match", Value: filter}}
	return append(mongo.Pipeline{match}, b.pipeline...), nil
}

func intParam(params Params, key string, fallback int) int {
	raw, _ := params[key].(string)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// Page is the single document a faceted pipeline yields.
type Page[T any] struct {
	Data       []T   `bson:"data"`
	TotalCount int64 `bson:"totalCount"`
}
