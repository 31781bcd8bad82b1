package boundary

import (
	"encoding/json"
	"math"
)

// Vec3 is a 3-component vector of floats.
type Vec3 [3]float64

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// toFloat coerces any finite numeric value to float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toInt coerces an integral numeric value to int.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// toVec3 coerces any 3-element indexable of numbers to a Vec3.
func toVec3(v any) (Vec3, bool) {
	switch s := v.(type) {
	case Vec3:
		return s, true
	case [3]float64:
		return Vec3(s), true
	case []float64:
		if len(s) != 3 {
			return Vec3{}, false
		}
		return Vec3{s[0], s[1], s[2]}, true
	case []int:
		if len(s) != 3 {
			return Vec3{}, false
		}
		return Vec3{float64(s[0]), float64(s[1]), float64(s[2])}, true
	case []any:
		if len(s) != 3 {
			return Vec3{}, false
		}
		var out Vec3
		for i, elem := range s {
			f, ok := toFloat(elem)
			if !ok {
				return Vec3{}, false
			}
			out[i] = f
		}
		return out, true
	}
	return Vec3{}, false
}

// toMap accepts both map[string]any and Raw.
func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Raw:
		return m, true
	}
	return nil, false
}
