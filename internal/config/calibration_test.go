package config

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseCalibrationValue(t *testing.T) {
	cases := []struct {
		value  string
		kind   DistKind
		p1, p2 float64
	}{
		{"normal(5, 1)", DistNormal, 5, 1},
		{"NORMAL(5, 1)", DistNormal, 5, 1},
		{"lognormal(7.2, 0.5)", DistLogNormal, 7.2, 0.5},
		{"uniform(2, 4)", DistUniform, 2, 4},
		{"uniform(1000 - 2000)", DistUniform, 1000, 2000},
		{"1000 - 2000", DistNormal, 1500, 1000 / (2 * rangeZ)},
		{"normal(1000 - 2000)", DistNormal, 1500, 1000 / (2 * rangeZ)},
		{"lognormal(100 - 200)", DistLogNormal,
			(math.Log(100) + math.Log(200)) / 2,
			(math.Log(200) - math.Log(100)) / (2 * rangeZ)},
		{"<1500", DistUniform, 0, 1500},
	}
	for _, tc := range cases {
		cal, err := parseCalibrationValue("clade", tc.value)
		if err != nil {
			t.Errorf("parse %q: %v", tc.value, err)
			continue
		}
		if cal.Kind != tc.kind || !almost(cal.Param1, tc.p1) || !almost(cal.Param2, tc.p2) {
			t.Errorf("parse %q = %s(%g, %g), want %s(%g, %g)",
				tc.value, cal.Kind, cal.Param1, cal.Param2, tc.kind, tc.p1, tc.p2)
		}
	}
}

func TestParseCalibrationLowerBound(t *testing.T) {
	cal, err := parseCalibrationValue("clade", ">1200")
	if err != nil {
		t.Fatal(err)
	}
	if cal.Kind != DistUniform || cal.Param1 != 1200 || !math.IsInf(cal.Param2, 1) {
		t.Errorf("parse >1200 = %s(%g, %g)", cal.Kind, cal.Param1, cal.Param2)
	}
}

func TestParseCalibrationErrors(t *testing.T) {
	bad := []string{
		"",
		"garbage",
		"uniform(4, 2)",
		"normal(2000 - 1000)",
		"lognormal(-1 - 5)",
		"normal(1)",
		"<abc",
	}
	for _, v := range bad {
		if _, err := parseCalibrationValue("clade", v); err == nil {
			t.Errorf("parse %q should fail", v)
		}
	}
}

func TestParseCalibrationKey(t *testing.T) {
	cases := []struct {
		key       string
		clade     string
		originate bool
	}{
		{"Germanic", "Germanic", false},
		{"Germanic, originate", "Germanic", true},
		{"Germanic,originate", "Germanic", true},
		{"Germanic_originate", "Germanic", true},
		{"a, b, c", "a, b, c", false},
	}
	for _, tc := range cases {
		clade, originate := parseCalibrationKey(tc.key)
		if clade != tc.clade || originate != tc.originate {
			t.Errorf("parseCalibrationKey(%q) = (%q, %t), want (%q, %t)",
				tc.key, clade, originate, tc.clade, tc.originate)
		}
	}
}
