package services

import "testing"

func TestCompareAttribute_Absence(t *testing.T) {
	// Absent on both sides is agreement.
	matched, sim := CompareAttribute("rooms", AttrValue{}, AttrValue{})
	if !matched || sim != 1.0 {
		t.Fatalf("both absent: got (%v, %v), want (true, 1.0)", matched, sim)
	}

	// One-sided absence is a mismatch.
	matched, sim = CompareAttribute("rooms", NumValue(2), AttrValue{})
	if matched || sim != 0.0 {
		t.Fatalf("one-sided absence: got (%v, %v), want (false, 0.0)", matched, sim)
	}

	// Empty strings count as absent.
	if !StrValue("").Absent() {
		t.Fatal("empty string should be absent")
	}
	if !StrValue("   ").Absent() {
		t.Fatal("blank string should be absent")
	}
}

func TestCompareAttribute_Strings(t *testing.T) {
	matched, sim := CompareAttribute("city", StrValue("Санкт-Петербург"), StrValue("  санкт-петербург "))
	if !matched || sim != 1.0 {
		t.Fatalf("case/space insensitive match: got (%v, %v)", matched, sim)
	}

	matched, _ = CompareAttribute("city", StrValue("Москва"), StrValue("Казань"))
	if matched {
		t.Fatal("different cities should not match")
	}
}

func TestCompareAttribute_SubstringCredit(t *testing.T) {
	// Substring credit applies to street and house number only.
	matched, sim := CompareAttribute("street", StrValue("ленина"), StrValue("ленина 2-я"))
	if !matched || sim != 0.8 {
		t.Fatalf("street substring: got (%v, %v), want (true, 0.8)", matched, sim)
	}

	matched, sim = CompareAttribute("house_number", StrValue("10"), StrValue("10к2"))
	if !matched || sim != 0.8 {
		t.Fatalf("house number substring: got (%v, %v), want (true, 0.8)", matched, sim)
	}

	matched, _ = CompareAttribute("city", StrValue("Питер"), StrValue("Санкт-Питербург"))
	if matched {
		t.Fatal("substring credit must not apply to city")
	}
}

func TestCompareAttribute_Areas(t *testing.T) {
	cases := []struct {
		a, b    float64
		matched bool
		sim     float64
	}{
		{50.0, 50.0, true, 1.0},
		{50.0, 52.0, true, 1.0},
		{50.0, 54.9, true, 0.7},
		{50.0, 55.0, true, 0.7},
		{50.0, 55.1, false, 0.0},
	}

	for _, c := range cases {
		matched, sim := CompareAttribute("area_total", NumValue(c.a), NumValue(c.b))
		if matched != c.matched || sim != c.sim {
			t.Errorf("area %.1f vs %.1f: got (%v, %v), want (%v, %v)",
				c.a, c.b, matched, sim, c.matched, c.sim)
		}
	}
}

func TestCompareAttribute_Floor(t *testing.T) {
	matched, sim := CompareAttribute("floor", NumValue(5), NumValue(6))
	if !matched || sim != 1.0 {
		t.Fatalf("floor off-by-one: got (%v, %v), want (true, 1.0)", matched, sim)
	}

	matched, _ = CompareAttribute("floor", NumValue(5), NumValue(7))
	if matched {
		t.Fatal("floor difference of 2 should not match")
	}
}

func TestCompareAttribute_ExactNumerics(t *testing.T) {
	matched, sim := CompareAttribute("rooms", NumValue(3), NumValue(3))
	if !matched || sim != 1.0 {
		t.Fatalf("equal rooms: got (%v, %v)", matched, sim)
	}

	matched, _ = CompareAttribute("rooms", NumValue(3), NumValue(4))
	if matched {
		t.Fatal("rooms must compare exactly")
	}
}

func TestCompareAttribute_MixedTypes(t *testing.T) {
	matched, sim := CompareAttribute("rooms", StrValue("3"), NumValue(3))
	if matched || sim != 0.0 {
		t.Fatalf("mixed types: got (%v, %v), want (false, 0.0)", matched, sim)
	}
}
