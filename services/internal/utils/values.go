package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// lookup walks a nested document along the given keys. It returns false when
// any step is missing or is not a document.
func lookup(doc any, keys ...string) (any, bool) {
	cur := doc
	for _, k := range keys {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[k]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]any:
		return t, true
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []any:
		return t, true
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

// StringValue converts a scalar document value to a trimmed string pointer.
// Empty strings and non-scalar values yield nil.
func StringValue(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = strings.TrimSpace(t)
	case int32, int64, int:
		s = fmt.Sprint(t)
	case float64:
		if math.IsNaN(t) {
			return nil
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	case primitive.ObjectID:
		s = t.Hex()
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// FloatValue converts numeric document values, including numeric strings
// with a decimal comma, to a float pointer. Anything else yields nil.
func FloatValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case primitive.Decimal128:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", ".")
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// TimeValue converts BSON datetimes and date strings to a UTC time pointer.
func TimeValue(v any) *time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		tt := t.Time().UTC()
		return &tt
	case time.Time:
		tt := t.UTC()
		return &tt
	case string:
		return ParseDate(t)
	}
	return nil
}

// DocumentID renders a document _id as a string whatever its BSON type.
func DocumentID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	}
	return fmt.Sprint(v)
}
