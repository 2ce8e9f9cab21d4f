package clock

import "phylogen/internal/xmltree"

func init() {
	register("random", "", func(s Settings, ctx Context) Clock {
		c := &randomLocalClock{
			baseClock:        newBase(s, ctx),
			correlated:       s.Correlated,
			estimateVariance: true,
		}
		if s.EstimateVariance != nil {
			c.estimateVariance = *s.EstimateVariance
		}
		return c
	})
}

// randomLocalClock lets the rate change at a sampled subset of branches:
// boolean indicators mark the change points and a gamma draws the local
// rates, with a Poisson prior keeping the number of changes small.
type randomLocalClock struct {
	baseClock
	correlated       bool
	estimateVariance bool
}

func (c *randomLocalClock) IsStrict() bool { return false }

func (c *randomLocalClock) BranchRateModelID() string {
	return "RandomLocalClock.c:" + c.name
}

func (c *randomLocalClock) indicatorsID() string { return "Indicators.c:" + c.name }
func (c *randomLocalClock) ratesID() string      { return "clockrates.c:" + c.name }
func (c *randomLocalClock) shapeID() string      { return "randomClockGammaShape:" + c.name }
func (c *randomLocalClock) scaleID() string      { return "randomClockGammaScale:" + c.name }
func (c *randomLocalClock) changeCountID() string {
	return "RandomRateChangesCount:" + c.name
}

func (c *randomLocalClock) AddState(state *xmltree.Node) {
	c.baseClock.AddState(state)
	state.Element("stateNode",
		"id", c.indicatorsID(),
		"spec", "parameter.BooleanParameter",
		"dimension", "42")
	rates := state.Element("stateNode",
		"id", c.ratesID(),
		"spec", "parameter.RealParameter",
		"dimension", "42")
	rates.Text = "0.1"
	shape := state.Element("parameter",
		"id", c.shapeID(),
		"lower", "1.1",
		"upper", "1000.0",
		"name", "stateNode")
	shape.Text = "5.0"
	scale := state.Element("parameter",
		"id", c.scaleID(),
		"name", "stateNode")
	scale.Text = "0.2"
}

func (c *randomLocalClock) AddBranchRateModel(root *xmltree.Node) {
	root.Element("branchRateModel",
		"id", c.BranchRateModelID(),
		"spec", "beast.evolution.branchratemodel.RandomLocalClockModel",
		"indicators", "@"+c.indicatorsID(),
		"rates", "@"+c.ratesID(),
		"ratesAreMultipliers", c.correlated,
		"tree", "@Tree.t:tree",
		"clock.rate", c.meanRateRef())
}

func (c *randomLocalClock) AddPrior(prior *xmltree.Node) {
	c.baseClock.AddPrior(prior)

	sub := prior.Element("prior",
		"id", "RandomRatesPrior.c:"+c.name,
		"name", "distribution",
		"x", "@"+c.ratesID())
	sub.Element("Gamma",
		"id", "RandomRatesPriorGamma:"+c.name,
		"name", "distr",
		"alpha", "@"+c.shapeID(),
		"beta", "@"+c.scaleID())

	if c.estimateVariance {
		sub := prior.Element("prior",
			"id", "randomClockGammaShapePrior.s:"+c.name,
			"name", "distribution",
			"x", "@"+c.shapeID())
		sub.Element("Exponential",
			"id", "randomClockGammaShapePriorExponential.s:"+c.name,
			"name", "distr",
			"mean", "0.23")
	}

	changes := prior.Element("prior",
		"id", "RandomRateChangesPrior.c:"+c.name,
		"name", "distribution")
	changes.Element("x",
		"id", c.changeCountID(),
		"spec", "util.Sum",
		"arg", "@"+c.indicatorsID())
	poisson := changes.Element("distr",
		"id", "RandomRateChangesPoisson.c:"+c.name,
		"spec", "beast.math.distributions.Poisson")
	lambda := poisson.Element("parameter",
		"id", "RandomRateChangesPoissonLambda:"+c.name,
		"estimate", "false",
		"name", "lambda")
	lambda.Text = "0.6931471805599453"
}

func (c *randomLocalClock) AddOperators(run *xmltree.Node) {
	c.baseClock.AddOperators(run)
	run.Element("operator",
		"id", "IndicatorsBitFlip.c:"+c.name,
		"spec", "BitFlipOperator",
		"parameter", "@"+c.indicatorsID(),
		"weight", "15.0")
	run.Element("operator",
		"id", "ClockRateScaler.c:"+c.name,
		"spec", "ScaleOperator",
		"parameter", "@"+c.ratesID(),
		"scaleFactor", "0.5",
		"weight", "15.0")
	if c.estimateVariance {
		updown := run.Element("operator",
			"id", "randomClockGammaUpDown:"+c.name,
			"spec", "UpDownOperator",
			"scaleFactor", "0.5",
			"weight", "1.0")
		updown.Element("parameter", "idref", c.shapeID(), "name", "up")
		updown.Element("parameter", "idref", c.scaleID(), "name", "down")
	}
}

func (c *randomLocalClock) AddParamLogs(logger *xmltree.Node) {
	c.baseClock.AddParamLogs(logger)
	logger.Element("log", "idref", c.indicatorsID())
	logger.Element("log", "idref", c.ratesID())
	logger.Element("log", "idref", c.changeCountID())
	logger.Element("log", "idref", c.shapeID())
}
