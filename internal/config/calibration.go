package config

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DistKind is a calibration distribution family.
type DistKind string

const (
	DistNormal    DistKind = "normal"
	DistLogNormal DistKind = "lognormal"
	DistUniform   DistKind = "uniform"
)

// Calibration is one compiled clade-age prior. For normal the parameters
// are mean/sigma, for lognormal M/S, for uniform the lower and upper
// bound.
type Calibration struct {
	Clade     string
	Taxa      []string
	Kind      DistKind
	Param1    float64
	Param2    float64
	Originate bool
}

// rangeZ converts a 95% interval half-width into a standard deviation.
const rangeZ = 1.96

// hugeBound stands in for "no upper limit" in one-sided calibrations.
var hugeBound = math.Inf(1)

var calExpr = regexp.MustCompile(`^(normal|lognormal|uniform)\s*\(([^)]*)\)$`)

// parseCalibrationValue compiles one prior string of the calibration
// section. Accepted forms:
//
//	normal(m, s)  lognormal(M, S)  uniform(lo, hi)
//	normal(lo - hi)  lognormal(lo - hi)  uniform(lo - hi)
//	lo - hi        (normal over the range)
//	<x             (uniform between 0 and x)
//	>x             (uniform above x)
func parseCalibrationValue(clade, value string) (Calibration, error) {
	cal := Calibration{Clade: clade}
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return cal, configErrorf("calibration", clade, "empty calibration")
	}

	if m := calExpr.FindStringSubmatch(v); m != nil {
		cal.Kind = DistKind(m[1])
		args := m[2]
		if lo, hi, ok := parseRange(args); ok {
			return fromRange(cal, lo, hi)
		}
		p1, p2, err := parsePair(args)
		if err != nil {
			return cal, configErrorf("calibration", clade, "%s: %v", m[1], err)
		}
		cal.Param1, cal.Param2 = p1, p2
		if cal.Kind == DistUniform && cal.Param2 <= cal.Param1 {
			return cal, configErrorf("calibration", clade, "uniform bounds out of order")
		}
		return cal, nil
	}

	switch {
	case strings.HasPrefix(v, "<"):
		x, err := parseNumber(v[1:])
		if err != nil {
			return cal, configErrorf("calibration", clade, "%v", err)
		}
		cal.Kind = DistUniform
		cal.Param1, cal.Param2 = 0, x
		return cal, nil
	case strings.HasPrefix(v, ">"):
		x, err := parseNumber(v[1:])
		if err != nil {
			return cal, configErrorf("calibration", clade, "%v", err)
		}
		cal.Kind = DistUniform
		cal.Param1, cal.Param2 = x, hugeBound
		return cal, nil
	}

	if lo, hi, ok := parseRange(v); ok {
		cal.Kind = DistNormal
		return fromRange(cal, lo, hi)
	}
	return cal, configErrorf("calibration", clade, "cannot parse %q", value)
}

// fromRange converts a lo-hi interval into the family's native parameters,
// treating the interval as a central 95% band.
func fromRange(cal Calibration, lo, hi float64) (Calibration, error) {
	if hi <= lo {
		return cal, configErrorf("calibration", cal.Clade, "range bounds out of order")
	}
	switch cal.Kind {
	case DistUniform:
		cal.Param1, cal.Param2 = lo, hi
	case DistLogNormal:
		if lo <= 0 {
			return cal, configErrorf("calibration", cal.Clade,
				"lognormal range must be positive")
		}
		llo, lhi := math.Log(lo), math.Log(hi)
		cal.Param1 = (llo + lhi) / 2
		cal.Param2 = (lhi - llo) / (2 * rangeZ)
	default:
		cal.Param1 = (lo + hi) / 2
		cal.Param2 = (hi - lo) / (2 * rangeZ)
	}
	return cal, nil
}

// parseRange recognises "lo - hi". The separator must have surrounding
// context that distinguishes it from a negative number.
func parseRange(v string) (lo, hi float64, ok bool) {
	parts := splitRange(v)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := parseNumber(parts[0])
	hi, err2 := parseNumber(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

func splitRange(v string) []string {
	// A dash following a digit or whitespace splits the range; a leading
	// dash is a sign.
	for i := 1; i < len(v); i++ {
		if v[i] != '-' {
			continue
		}
		prev := v[i-1]
		if prev == 'e' || prev == 'E' {
			continue // exponent sign
		}
		return []string{v[:i], v[i+1:]}
	}
	return nil
}

func parsePair(args string) (float64, float64, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return 0, 0, strconv.ErrSyntax
	}
	p1, err := parseNumber(parts[0])
	if err != nil {
		return 0, 0, err
	}
	p2, err := parseNumber(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return p1, p2, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseCalibrationKey splits a calibration key into its clade label and
// the originate flag. Both ", originate" and a trailing "_originate"
// request an origin-edge calibration.
func parseCalibrationKey(key string) (clade string, originate bool) {
	clade = strings.TrimSpace(key)
	lower := strings.ToLower(clade)
	switch {
	case strings.HasSuffix(lower, ",originate"):
		return strings.TrimSpace(clade[:len(clade)-len(",originate")]), true
	case strings.HasSuffix(lower, ", originate"):
		return strings.TrimSpace(clade[:len(clade)-len(", originate")]), true
	case strings.HasSuffix(lower, "_originate"):
		return strings.TrimSpace(clade[:len(clade)-len("_originate")]), true
	}
	return clade, false
}
