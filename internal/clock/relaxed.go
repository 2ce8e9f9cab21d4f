package clock

import "phylogen/internal/xmltree"

func init() {
	register("relaxed", "lognormal", func(s Settings, ctx Context) Clock {
		c := &logNormalRelaxedClock{relaxedClock: newRelaxed(s, ctx), initialVariance: 0.1, estimateVariance: true}
		if s.Variance != nil {
			c.initialVariance = *s.Variance
			c.estimateVariance = false
		}
		if s.EstimateVariance != nil {
			c.estimateVariance = *s.EstimateVariance
		}
		return c
	})
	register("relaxed", "exponential", func(s Settings, ctx Context) Clock {
		return &exponentialRelaxedClock{newRelaxed(s, ctx)}
	})
	register("relaxed", "gamma", func(s Settings, ctx Context) Clock {
		return &gammaRelaxedClock{newRelaxed(s, ctx)}
	})
}

// relaxedClock carries the shared machinery of the rate-varying variants:
// per-branch rate categories and their operators.
type relaxedClock struct {
	baseClock
	rates int
}

func newRelaxed(s Settings, ctx Context) relaxedClock {
	rates := s.Rates
	if rates == 0 {
		rates = -1
	}
	return relaxedClock{baseClock: newBase(s, ctx), rates: rates}
}

func (c *relaxedClock) IsStrict() bool { return false }

func (c *relaxedClock) BranchRateModelID() string {
	return "RelaxedClockModel.c:" + c.name
}

func (c *relaxedClock) categoriesID() string {
	return "rateCategories.c:" + c.name
}

func (c *relaxedClock) AddState(state *xmltree.Node) {
	c.baseClock.AddState(state)
	sn := state.Element("stateNode",
		"id", c.categoriesID(),
		"spec", "parameter.IntegerParameter",
		"dimension", "42")
	sn.Text = "1"
}

func (c *relaxedClock) addBranchRateModel(root *xmltree.Node) *xmltree.Node {
	return root.Element("branchRateModel",
		"id", c.BranchRateModelID(),
		"spec", "beast.evolution.branchratemodel.UCRelaxedClockModel",
		"rateCategories", "@"+c.categoriesID(),
		"tree", "@Tree.t:tree",
		"numberOfDiscreteRates", c.rates,
		"clock.rate", c.meanRateRef())
}

func (c *relaxedClock) AddOperators(run *xmltree.Node) {
	c.baseClock.AddOperators(run)
	run.Element("operator",
		"id", "rateCategoriesRandomWalkOperator.c:"+c.name,
		"spec", "IntRandomWalkOperator",
		"parameter", "@"+c.categoriesID(),
		"windowSize", "1",
		"weight", "10.0")
	run.Element("operator",
		"id", "rateCategoriesSwapOperator.c:"+c.name,
		"spec", "SwapOperator",
		"intparameter", "@"+c.categoriesID(),
		"weight", "10.0")
	run.Element("operator",
		"id", "rateCategoriesUniformOperator.c:"+c.name,
		"spec", "UniformOperator",
		"parameter", "@"+c.categoriesID(),
		"weight", "10.0")
}

func (c *relaxedClock) AddParamLogs(logger *xmltree.Node) {
	c.baseClock.AddParamLogs(logger)
	logger.Element("log",
		"id", "rate.c:"+c.name,
		"spec", "beast.evolution.branchratemodel.RateStatistic",
		"branchratemodel", "@"+c.BranchRateModelID(),
		"tree", "@Tree.t:tree")
}

// logNormalRelaxedClock draws branch rates from a lognormal distribution
// whose standard deviation may itself be sampled.
type logNormalRelaxedClock struct {
	relaxedClock
	initialVariance  float64
	estimateVariance bool
}

func (c *logNormalRelaxedClock) sdevID() string { return "ucldSdev.c:" + c.name }

func (c *logNormalRelaxedClock) AddState(state *xmltree.Node) {
	c.relaxedClock.AddState(state)
	p := state.Element("parameter",
		"id", c.sdevID(),
		"lower", "0.0",
		"upper", "10.0",
		"name", "stateNode")
	p.Text = xmltree.AttrValue(c.initialVariance)
}

func (c *logNormalRelaxedClock) AddBranchRateModel(root *xmltree.Node) {
	brm := c.addBranchRateModel(root)
	brm.Element("LogNormal",
		"id", "LogNormalDistributionModel.c:"+c.name,
		"M", "1.0",
		"S", "@"+c.sdevID(),
		"meanInRealSpace", "true",
		"name", "distr")
}

func (c *logNormalRelaxedClock) AddPrior(prior *xmltree.Node) {
	c.relaxedClock.AddPrior(prior)
	if !c.estimateVariance {
		return
	}
	sub := prior.Element("prior",
		"id", "ucldSdevPrior:"+c.name,
		"name", "distribution",
		"x", "@"+c.sdevID())
	gamma := sub.Element("Gamma", "id", "ucldSdevPriorGamma:"+c.name, "name", "distr")
	alpha := gamma.Element("parameter",
		"id", "ucldSdevPriorAlpha:"+c.name, "estimate", "false", "name", "alpha")
	alpha.Text = "0.5396"
	beta := gamma.Element("parameter",
		"id", "ucldSdevPriorBeta:"+c.name, "estimate", "false", "name", "beta")
	beta.Text = "0.3819"
}

func (c *logNormalRelaxedClock) AddOperators(run *xmltree.Node) {
	c.relaxedClock.AddOperators(run)
	if c.estimateVariance {
		run.Element("operator",
			"id", "ucldSdevScaler.c:"+c.name,
			"spec", "ScaleOperator",
			"parameter", "@"+c.sdevID(),
			"scaleFactor", "0.5",
			"weight", "3.0")
	}
}

func (c *logNormalRelaxedClock) AddParamLogs(logger *xmltree.Node) {
	c.relaxedClock.AddParamLogs(logger)
	logger.Element("log", "idref", c.sdevID())
}

// exponentialRelaxedClock draws branch rates from an exponential keyed to
// the mean clock rate; it has no extra free parameters.
type exponentialRelaxedClock struct {
	relaxedClock
}

func (c *exponentialRelaxedClock) AddBranchRateModel(root *xmltree.Node) {
	brm := c.addBranchRateModel(root)
	brm.Element("Exponential",
		"id", "ExponentialDistribution.c:"+c.name,
		"mean", c.meanRateRef(),
		"name", "distr")
}

// gammaRelaxedClock draws branch rates from a gamma with sampled shape and
// scale, held to shape*scale = 1 by an up/down operator.
type gammaRelaxedClock struct {
	relaxedClock
}

func (c *gammaRelaxedClock) shapeID() string { return "clockRateGammaShape:" + c.name }
func (c *gammaRelaxedClock) scaleID() string { return "clockRateGammaScale:" + c.name }

func (c *gammaRelaxedClock) AddState(state *xmltree.Node) {
	c.relaxedClock.AddState(state)
	shape := state.Element("parameter",
		"id", c.shapeID(), "lower", "0.0", "name", "stateNode")
	shape.Text = "2.0"
	scale := state.Element("parameter",
		"id", c.scaleID(), "lower", "0.0", "name", "stateNode")
	scale.Text = "0.5"
}

func (c *gammaRelaxedClock) AddBranchRateModel(root *xmltree.Node) {
	brm := c.addBranchRateModel(root)
	brm.Element("Gamma",
		"id", "relaxedClockDistribution:"+c.name,
		"alpha", "@"+c.shapeID(),
		"beta", "@"+c.scaleID(),
		"name", "distr")
}

func (c *gammaRelaxedClock) AddPrior(prior *xmltree.Node) {
	c.relaxedClock.AddPrior(prior)
	sub := prior.Element("prior",
		"id", "clockRateGammaShapePrior.s:"+c.name,
		"name", "distribution",
		"x", "@"+c.shapeID())
	sub.Element("Exponential",
		"id", "clockRateGammaShapePriorExponential.s:"+c.name,
		"name", "distr",
		"mean", "1.0")
}

func (c *gammaRelaxedClock) AddOperators(run *xmltree.Node) {
	c.relaxedClock.AddOperators(run)
	updown := run.Element("operator",
		"id", "relaxedClockGammaUpDown:"+c.name,
		"spec", "UpDownOperator",
		"scaleFactor", "0.5",
		"weight", "3.0")
	updown.Element("parameter", "idref", c.shapeID(), "name", "up")
	updown.Element("parameter", "idref", c.scaleID(), "name", "down")
}

func (c *gammaRelaxedClock) AddParamLogs(logger *xmltree.Node) {
	c.relaxedClock.AddParamLogs(logger)
	logger.Element("log", "idref", c.shapeID())
}
