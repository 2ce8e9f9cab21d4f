// Package clock implements the branch-rate clock variants. Each clock owns
// its rate parameters and emits its own document fragments; the document
// builder decides where those fragments go.
package clock

import (
	"fmt"

	"phylogen/internal/xmltree"
)

// Settings are the resolved options of one clock section.
type Settings struct {
	Name         string
	Type         string // "strict", "relaxed" or "random"
	Distribution string // relaxed variants: "lognormal", "exponential", "gamma"

	// Correlated makes a random local clock's rates multipliers on the
	// parent branch rate instead of absolute values.
	Correlated bool

	Rate     *float64
	Mean     *float64
	Variance *float64

	EstimateRate     *bool
	EstimateVariance *bool

	// Rates is the number of discrete rate categories for relaxed clocks;
	// 0 means engine default.
	Rates int
}

// Context carries the analysis-wide facts a clock needs at construction.
type Context struct {
	// Calibrated is true when any calibration is configured; an
	// uncalibrated analysis cannot identify the overall rate, so it is
	// fixed rather than estimated.
	Calibrated bool
}

// Clock is the common surface of all clock variants.
type Clock interface {
	Name() string
	Kind() string
	IsStrict() bool
	MeanRateID() string
	BranchRateModelID() string
	EstimateRate() bool

	AddState(state *xmltree.Node)
	AddBranchRateModel(root *xmltree.Node)
	AddPrior(prior *xmltree.Node)
	AddOperators(run *xmltree.Node)
	AddParamLogs(logger *xmltree.Node)
}

type factory func(Settings, Context) Clock

var registry = map[string]factory{}

func register(typeTag, distribution string, f factory) {
	registry[typeTag+"/"+distribution] = f
}

// New constructs the clock matching the settings' type tag (and, for
// relaxed clocks, distribution). Unknown tags are an error naming the tag.
func New(s Settings, ctx Context) (Clock, error) {
	dist := s.Distribution
	if s.Type == "relaxed" {
		if dist == "" {
			dist = "lognormal"
		}
	} else {
		dist = ""
	}
	f, ok := registry[s.Type+"/"+dist]
	if !ok {
		return nil, fmt.Errorf("clock: unknown clock type %q (distribution %q)", s.Type, s.Distribution)
	}
	return f(s, ctx), nil
}

// baseClock implements the pieces shared by every variant: the mean rate
// state node, its uniform prior, the scale operator, and the rate log.
type baseClock struct {
	name         string
	kind         string
	initialMean  float64
	estimateRate bool
}

func newBase(s Settings, ctx Context) baseClock {
	b := baseClock{name: s.Name, kind: s.Type, initialMean: 1.0}
	explicitRate := false
	if s.Mean != nil {
		b.initialMean = *s.Mean
		explicitRate = true
	} else if s.Rate != nil {
		b.initialMean = *s.Rate
		explicitRate = true
	}
	// A user-fixed rate is not estimated unless they insist; otherwise the
	// rate is only estimable when calibrations anchor the timescale.
	switch {
	case s.EstimateRate != nil:
		b.estimateRate = *s.EstimateRate
	case explicitRate:
		b.estimateRate = false
	default:
		b.estimateRate = ctx.Calibrated
	}
	return b
}

func (b *baseClock) Name() string        { return b.name }
func (b *baseClock) Kind() string        { return b.kind }
func (b *baseClock) EstimateRate() bool  { return b.estimateRate }
func (b *baseClock) MeanRateID() string  { return "clockRate.c:" + b.name }
func (b *baseClock) meanRateRef() string { return "@" + b.MeanRateID() }

func (b *baseClock) AddState(state *xmltree.Node) {
	p := state.Element("parameter",
		"id", b.MeanRateID(),
		"upper", "1000.0",
		"name", "stateNode")
	p.Text = xmltree.AttrValue(b.initialMean)
}

func (b *baseClock) AddPrior(prior *xmltree.Node) {
	sub := prior.Element("prior",
		"id", "clockPrior:"+b.name,
		"name", "distribution",
		"x", b.meanRateRef())
	sub.Element("Uniform",
		"id", "UniformClockPrior:"+b.name,
		"name", "distr",
		"upper", "Infinity")
}

func (b *baseClock) AddOperators(run *xmltree.Node) {
	if !b.estimateRate {
		return
	}
	run.Element("operator",
		"id", "clockScaler.c:"+b.name,
		"spec", "ScaleOperator",
		"parameter", b.meanRateRef(),
		"scaleFactor", "0.5",
		"weight", "3.0")
}

func (b *baseClock) AddParamLogs(logger *xmltree.Node) {
	logger.Element("log", "idref", b.MeanRateID())
}
