package query

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/apperror"
)

// Params is the raw query input: field name to either a plain value or a
// nested operator map such as {"gte": "10"}.
type Params map[string]any

// excludedKeys never reach the match filter; the builder consumes them.
var excludedKeys = []string{"page", "sort", "limit", "fields", "distinct"}

// comparisonOps maps bare operator tokens to their query-language form,
// so clients may omit the prefix sigil.
var comparisonOps = map[string]string{
	"gte": "$gte",
	"gt":  "$gt",
	"lte": "$lte",
	"lt":  "$lt",
	"eq":  "$eq",
	"ne":  "$ne",
}

// dateFields, intFields and idFields are the keys with a known type.
var (
	dateFields = []string{"valid_from", "valid_until"}
	intFields  = []string{"duration_sum", "free_days"}
	idFields   = []string{"_id", "company", "senderInformation.company", "uploaded_by"}
)

// ParseHTTPQuery turns URL query values into Params. Bracketed keys such
// as valid_from[gte]=2023-01-01 become nested operator maps.
func ParseHTTPQuery(values url.Values) Params {
	params := Params{}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		value := vals[0]
		open := strings.IndexByte(key, '[')
		if open > 0 && strings.HasSuffix(key, "]") {
			field := key[:open]
			op := key[open+1 : len(key)-1]
			nested, ok := params[field].(map[string]any)
			if !ok {
				nested = map[string]any{}
				params[field] = nested
			}
			nested[op] = value
			continue
		}
		params[key] = value
	}
	return params
}

// Clone returns a shallow copy with nested operator maps copied one
// level deep, so normalization never mutates the caller's input.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for key, value := range p {
		if nested, ok := asMap(value); ok {
			copied := make(map[string]any, len(nested))
			for op, opValue := range nested {
				copied[op] = opValue
			}
			out[key] = copied
			continue
		}
		out[key] = value
	}
	return out
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case bson.M:
		return typed, true
	default:
		return nil, false
	}
}

// Normalize turns Params into a typed match filter. It rewrites bare
// comparison operators into their $-prefixed form, strips the excluded
// keys and coerces known fields (dates, ints, identifiers). The rewrite
// is structural, so running Normalize over already-typed input yields
// the same result.
func Normalize(params Params) (bson.M, error) {
	filter := bson.M{}
	for key, value := range params.Clone() {
		if isExcluded(key) {
			continue
		}
		if nested, ok := asMap(value); ok {
			filter[key] = rewriteOperators(nested)
			continue
		}
		filter[key] = value
	}

	for _, field := range dateFields {
		if err := coerceDates(filter, field); err != nil {
			return nil, err
		}
	}
	combineValidityBounds(filter)

	for _, field := range intFields {
		if err := coerceInts(filter, field); err != nil {
			return nil, err
		}
	}
	for _, field := range idFields {
		if err := coerceObjectID(filter, field); err != nil {
			return nil, err
		}
	}
	return filter, nil
}

func isExcluded(key string) bool {
	for _, excluded := range excludedKeys {
		if key == excluded {
			return true
		}
	}
	return false
}

func rewriteOperators(nested map[string]any) bson.M {
	out := bson.M{}
	for op, value := range nested {
		if prefixed, ok := comparisonOps[op]; ok {
			out[prefixed] = value
			continue
		}
		out[op] = value
	}
	return out
}

// coerceDates converts every operator value of a date field into a
// time.Time. Values that are already typed pass through unchanged.
func coerceDates(filter bson.M, field string) error {
	nested, ok := filter[field].(bson.M)
	if !ok {
		return nil
	}
	for op, value := range nested {
		switch typed := value.(type) {
		case time.Time:
			// already coerced
		case string:
			parsed, err := ParseDate(typed)
			if err != nil {
				return apperror.Wrap(apperror.KindValidation, "invalid date for "+field, err)
			}
			nested[op] = parsed
		default:
			return apperror.New(apperror.KindValidation, "invalid date for "+field)
		}
	}
	return nil
}

// ParseDate accepts the date layouts clients send, RFC 3339 or a bare
// calendar date, and returns the instant in UTC.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, apperror.New(apperror.KindValidation, "unsupported date format "+value)
}

// combineValidityBounds merges valid_from and valid_until, when both are
// present, into one conjunctive $and condition and removes the
// originals. Without this the two bounds would target the same field
// slot and one would silently overwrite the other.
func combineValidityBounds(filter bson.M) {
	from, hasFrom := filter["valid_from"]
	until, hasUntil := filter["valid_until"]
	if !hasFrom || !hasUntil {
		return
	}
	filter["$and"] = bson.A{
		bson.M{"valid_from": from},
		bson.M{"valid_until": until},
	}
	delete(filter, "valid_from")
	delete(filter, "valid_until")
}

func coerceInts(filter bson.M, field string) error {
	nested, ok := filter[field].(bson.M)
	if !ok {
		return nil
	}
	for op, value := range nested {
		switch typed := value.(type) {
		case int, int32, int64:
			// already coerced
		case string:
			parsed, err := strconv.Atoi(typed)
			if err != nil {
				return apperror.Wrap(apperror.KindValidation, "invalid integer for "+field, err)
			}
			nested[op] = parsed
		default:
			return apperror.New(apperror.KindValidation, "invalid integer for "+field)
		}
	}
	return nil
}

func coerceObjectID(filter bson.M, field string) error {
	value, ok := filter[field]
	if !ok {
		return nil
	}
	switch typed := value.(type) {
	case bson.ObjectID:
		return nil
	case string:
		id, err := bson.ObjectIDFromHex(typed)
		if err != nil {
			return apperror.Wrap(apperror.KindValidation, "invalid identifier for "+field, err)
		}
		filter[field] = id
		return nil
	default:
		return apperror.New(apperror.KindValidation, "invalid identifier for "+field)
	}
}
