package model

import (
	"fmt"

	"phylogen/internal/xmltree"
)

func init() {
	register("bsvs", func(s Settings, ctx Context) (Model, error) {
		m := &bsvsModel{}
		b, err := newBase(s, ctx, m)
		if err != nil {
			return nil, err
		}
		m.baseModel = b
		return m, nil
	})
}

// bsvsModel is a general substitution model with Bayesian stochastic
// variable selection: a boolean indicator per state pair switches
// individual transition rates on and off.
type bsvsModel struct {
	*baseModel
}

func (m *bsvsModel) substitutionName() string { return "SVSGeneralSubstitutionModel" }

func (m *bsvsModel) encode(b *baseModel, feature, value string) []string {
	return encodeStandard(b, feature, value)
}

func (m *bsvsModel) ascertainmentColumns(b *baseModel, feature string) int {
	return b.valueCounts[feature]
}

// rateDimension is the number of individual transition rates for one
// feature.
func (m *bsvsModel) rateDimension(feature string) int {
	n := m.valueCounts[feature]
	if m.settings.Symmetric {
		return n * (n - 1) / 2
	}
	return n * (n - 1)
}

func (m *bsvsModel) AddState(state *xmltree.Node) {
	m.baseModel.AddState(state)
	for _, f := range m.features {
		fname := m.fname(f)
		dim := m.rateDimension(f)
		ind := state.Element("stateNode",
			"id", "rateIndicator.s:"+fname,
			"spec", "parameter.BooleanParameter",
			"dimension", dim)
		ind.Text = "true"
		rates := state.Element("parameter",
			"id", "relativeGeoRates.s:"+fname,
			"name", "stateNode",
			"dimension", dim)
		rates.Text = "1.0"
	}
}

func (m *bsvsModel) AddPrior(prior *xmltree.Node) {
	m.baseModel.AddPrior(prior)
	for _, f := range m.features {
		fname := m.fname(f)
		m.addNonZeroRatePrior(prior, f, fname)
		ratePrior := prior.Element("prior",
			"id", "relativeGeoRatesPrior.s:"+fname,
			"name", "distribution",
			"x", "@relativeGeoRates.s:"+fname)
		gamma := ratePrior.Element("Gamma",
			"id", "relativeGeoRatesPriorGamma.s:"+fname,
			"name", "distr")
		gamma.Element("parameter",
			"id", "relativeGeoRatesPriorGammaAlpha.s:"+fname,
			"name", "alpha",
			"estimate", false).Text = "1.0"
		gamma.Element("parameter",
			"id", "relativeGeoRatesPriorGammaBeta.s:"+fname,
			"name", "beta",
			"estimate", false).Text = "1.0"
	}
}

// addNonZeroRatePrior puts a prior on the count of active rates. A
// Poisson with an offset of n-1 keeps the rate graph connected; the
// exponential alternative penalises density more smoothly.
func (m *bsvsModel) addNonZeroRatePrior(prior *xmltree.Node, feature, fname string) {
	n := m.valueCounts[feature]
	p := prior.Element("prior",
		"id", "nonZeroRatePrior.s:"+fname,
		"name", "distribution")
	p.Element("x",
		"id", "nonZeroRateCount.s:"+fname,
		"spec", "util.Sum",
		"arg", "@rateIndicator.s:"+fname)
	switch m.settings.SVSPrior {
	case "exponential":
		// Mean chosen so the minimal connected graph gets ~50% of the
		// mass.
		offset := n - 1
		if !m.settings.Symmetric {
			offset = n
		}
		mean := float64(m.rateDimension(feature)-offset)/1.442695 + float64(offset)
		expo := p.Element("distr",
			"id", "nonZeroRatePriorExponential.s:"+fname,
			"spec", "beast.math.distributions.Exponential",
			"offset", offset)
		expo.Element("parameter",
			"id", "nonZeroRatePriorExponentialMean.s:"+fname,
			"name", "mean",
			"estimate", false).Text = xmltree.AttrValue(mean - float64(offset))
	default: // poisson
		offset := n - 1
		if !m.settings.Symmetric {
			offset = n
		}
		pois := p.Element("distr",
			"id", "nonZeroRatePriorPoisson.s:"+fname,
			"spec", "beast.math.distributions.Poisson",
			"offset", offset)
		// lambda ln(2): 50% prior probability on the minimal graph.
		pois.Element("parameter",
			"id", "nonZeroRatePriorPoissonLambda.s:"+fname,
			"name", "lambda",
			"estimate", false).Text = "0.693147"
	}
}

func (m *bsvsModel) addSubstModel(b *baseModel, sitemodel *xmltree.Node, feature, fname string) {
	subst := sitemodel.Element("substModel",
		"id", "svs.s:"+fname,
		"spec", "SVSGeneralSubstitutionModel",
		"rateIndicator", "@rateIndicator.s:"+fname,
		"rates", "@relativeGeoRates.s:"+fname,
		"symmetric", m.settings.Symmetric)
	switch b.settings.Frequencies {
	case "empirical":
		subst.Element("frequencies",
			"id", "feature_freqs.s:"+fname,
			"spec", "Frequencies",
			"data", "@feature_data_"+fname)
	default:
		freq := subst.Element("frequencies",
			"id", "feature_freqs.s:"+fname,
			"spec", "Frequencies")
		n := b.valueCounts[feature]
		param := freq.Element("frequencies",
			"id", "feature_frequencies.s:"+fname,
			"spec", "parameter.RealParameter",
			"dimension", n)
		param.Text = xmltree.AttrValue(1.0 / float64(n))
	}
}

func (m *bsvsModel) userDataType(b *baseModel, feature, fname string) *xmltree.Node {
	return xmltree.NewElement("userDataType",
		"id", "featureDataType."+fname,
		"spec", "beast.evolution.datatype.UserDataType",
		"codeMap", b.codemaps[feature],
		"codelength", "-1",
		"states", fmt.Sprint(b.valueCounts[feature]))
}

func (m *bsvsModel) AddOperators(run *xmltree.Node) {
	m.baseModel.AddOperators(run)
	for _, f := range m.features {
		fname := m.fname(f)
		run.Element("operator",
			"id", "svsIndicatorFlip.s:"+fname,
			"spec", "BitFlipOperator",
			"parameter", "@rateIndicator.s:"+fname,
			"weight", "30.0")
		run.Element("operator",
			"id", "svsRateScaler.s:"+fname,
			"spec", "ScaleOperator",
			"parameter", "@relativeGeoRates.s:"+fname,
			"scaleAllIndependently", "true",
			"scaleFactor", "0.5",
			"weight", "10.0")
		// Shrinks rates that just had their indicator switched off, so
		// they do not wander while masked.
		run.Element("operator",
			"id", "svsShutdownMask.s:"+fname,
			"spec", "BitFlipBSSVSOperator",
			"indicator", "@rateIndicator.s:"+fname,
			"mu", "@relativeGeoRates.s:"+fname,
			"weight", "10.0")
	}
}

func (m *bsvsModel) AddParamLogs(logger *xmltree.Node) {
	m.baseModel.AddParamLogs(logger)
	if !m.ctx.Params {
		return
	}
	for _, f := range m.features {
		fname := m.fname(f)
		logger.Element("log", "idref", "nonZeroRateCount.s:"+fname)
		logger.Element("log", "idref", "relativeGeoRates.s:"+fname)
		logger.Element("log", "idref", "rateIndicator.s:"+fname)
	}
}
