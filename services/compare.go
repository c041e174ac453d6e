package services

import (
	"math"
	"strings"
)

// AttrValue is a nullable attribute value resolved from a listing or a
// property. At most one of Str/Num is set; both nil means the value is
// absent.
type AttrValue struct {
	Str *string
	Num *float64
}

// Absent reports whether no value is present.
func (v AttrValue) Absent() bool {
	return v.Str == nil && v.Num == nil
}

// StrValue wraps a string; empty strings count as absent.
func StrValue(s string) AttrValue {
	if strings.TrimSpace(s) == "" {
		return AttrValue{}
	}
	return AttrValue{Str: &s}
}

// NumValue wraps a float.
func NumValue(f float64) AttrValue {
	return AttrValue{Num: &f}
}

// NumPtr wraps an optional float.
func NumPtr(f *float64) AttrValue {
	if f == nil {
		return AttrValue{}
	}
	return NumValue(*f)
}

// IntPtr wraps an optional int.
func IntPtr(i *int) AttrValue {
	if i == nil {
		return AttrValue{}
	}
	return NumValue(float64(*i))
}

// Area attributes compared with a tolerance band: a couple of square meters
// is scraping noise, not a different unit.
func isAreaAttribute(name string) bool {
	switch name {
	case "area_total", "area_living", "area_kitchen":
		return true
	}
	return false
}

// CompareAttribute compares two values of a named attribute and returns
// whether they match plus a fractional similarity in [0, 1].
//
// Absence on both sides is agreement, not a mismatch; one-sided absence is a
// mismatch. Street and house number get partial substring credit because
// sources abbreviate differently. Areas tolerate rounding drift, floors
// tolerate off-by-one numbering, everything else requires exact equality.
func CompareAttribute(name string, a, b AttrValue) (bool, float64) {
	if a.Absent() && b.Absent() {
		return true, 1.0
	}
	if a.Absent() || b.Absent() {
		return false, 0.0
	}

	if a.Str != nil && b.Str != nil {
		s1 := strings.TrimSpace(strings.ToLower(*a.Str))
		s2 := strings.TrimSpace(strings.ToLower(*b.Str))
		if s1 == s2 {
			return true, 1.0
		}
		if name == "street" || name == "house_number" {
			if strings.Contains(s1, s2) || strings.Contains(s2, s1) {
				return true, 0.8
			}
		}
		return false, 0.0
	}

	if a.Num != nil && b.Num != nil {
		diff := math.Abs(*a.Num - *b.Num)

		if isAreaAttribute(name) {
			if diff <= 2.0 {
				return true, 1.0
			}
			if diff <= 5.0 {
				return true, 0.7
			}
			return false, 0.0
		}

		if name == "floor" {
			if diff <= 1.0 {
				return true, 1.0
			}
			return false, 0.0
		}

		if diff == 0 {
			return true, 1.0
		}
		return false, 0.0
	}

	// Mixed types never compare equal.
	return false, 0.0
}
