package merge

import (
	"bytes"
	"reflect"
	"time"
)

// Equal reports canonical structural equality between two JSON-shaped
// values. It is independent of map key insertion order and treats
// numeric values of different Go types (int vs float64 after JSON
// decoding) as equal when they represent the same number. Typed
// containers (map[string]string, []string and similar) are normalized
// before comparison, so a typed payload equals its decoded generic
// form.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}

	if am, ok := asMap(a); ok {
		bm, ok := asMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, has := bm[k]
			if !has || !Equal(av, bv) {
				return false
			}
		}
		return true
	}

	if as, ok := asSlice(a); ok {
		bs, ok := asSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	if af, ok := asNumber(a); ok {
		bf, ok := asNumber(b)
		return ok && af == bf
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}

	// Remaining uncomparable dynamic types would panic under ==.
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// asMap normalizes any string-keyed map to its generic form.
func asMap(v interface{}) (map[string]interface{}, bool) {
	if m, ok := v.(map[string]interface{}); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice normalizes any slice or array to its generic form. Byte
// slices are excluded; they compare as opaque blobs, not element-wise.
func asSlice(v interface{}) ([]interface{}, bool) {
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
