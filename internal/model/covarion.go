package model

import (
	"phylogen/internal/datafile"
	"phylogen/internal/xmltree"
)

func init() {
	register("covarion", func(s Settings, ctx Context) (Model, error) {
		m := &covarionModel{}
		b, err := newBase(s, ctx, m)
		if err != nil {
			return nil, err
		}
		m.baseModel = b
		if s.Binarised != nil {
			m.preBinarised = *s.Binarised
		} else {
			m.preBinarised = looksBinary(b)
		}
		return m, nil
	})
}

// covarionModel is the binary covarion model: multistate features are
// recoded into one-hot binary columns, and all features share one
// substitution model with hidden fast/slow rate classes.
type covarionModel struct {
	*baseModel
	// preBinarised marks data that already is 0/1 coded, so no recoding
	// happens and each feature stays a single column.
	preBinarised bool
	substEmitted bool
	dtypeEmitted bool
}

// looksBinary reports whether every observed value across all features is
// 0 or 1.
func looksBinary(b *baseModel) bool {
	for _, f := range b.features {
		for _, t := range b.data.Taxa() {
			v := b.value(t, f)
			if v != datafile.MissingValue && v != "0" && v != "1" {
				return false
			}
		}
	}
	return true
}

func (m *covarionModel) substitutionName() string { return "BinaryCovarion" }

func (m *covarionModel) encode(b *baseModel, feature, value string) []string {
	if m.preBinarised {
		return encodeStandard(b, feature, value)
	}
	// One-hot recoding: one binary column per observed value.
	n := b.valueCounts[feature]
	cols := make([]string, n)
	if value == datafile.MissingValue {
		for i := range cols {
			cols[i] = datafile.MissingValue
		}
		return cols
	}
	for i, v := range b.uniqueValues[feature] {
		if v == value {
			cols[i] = "1"
		} else {
			cols[i] = "0"
		}
	}
	return cols
}

func (m *covarionModel) ascertainmentColumns(b *baseModel, feature string) int {
	// A single all-absent column corrects for never observing an
	// all-zero pattern.
	return 1
}

func (m *covarionModel) AddState(state *xmltree.Node) {
	m.baseModel.AddState(state)
	name := m.settings.Name
	alpha := state.Element("parameter",
		"id", "covarion_alpha.s:"+name,
		"lower", "1.0E-4",
		"upper", "1.0",
		"name", "stateNode")
	alpha.Text = "0.5"
	s := state.Element("parameter",
		"id", "covarion_s.s:"+name,
		"lower", "1.0E-4",
		"upper", "Infinity",
		"name", "stateNode")
	s.Text = "0.5"
	if m.settings.Frequencies == "estimate" {
		freq := state.Element("parameter",
			"id", "covarion_freqs_param.s:"+name,
			"dimension", 2,
			"lower", "0.0",
			"upper", "1.0",
			"name", "stateNode")
		freq.Text = "0.5 0.5"
	}
}

func (m *covarionModel) AddPrior(prior *xmltree.Node) {
	m.baseModel.AddPrior(prior)
	name := m.settings.Name
	alphaPrior := prior.Element("prior",
		"id", "covarionAlphaPrior.s:"+name,
		"name", "distribution",
		"x", "@covarion_alpha.s:"+name)
	alphaPrior.Element("Uniform",
		"id", "CovarionAlphaUniform.s:"+name,
		"name", "distr",
		"upper", "Infinity")
	sPrior := prior.Element("prior",
		"id", "covarionSwitchPrior.s:"+name,
		"name", "distribution",
		"x", "@covarion_s.s:"+name)
	gamma := sPrior.Element("Gamma",
		"id", "CovarionSwitchGamma.s:"+name,
		"name", "distr")
	gamma.Element("parameter",
		"id", "CovarionSwitchGammaAlpha.s:"+name,
		"name", "alpha",
		"estimate", false).Text = "0.05"
	gamma.Element("parameter",
		"id", "CovarionSwitchGammaBeta.s:"+name,
		"name", "beta",
		"estimate", false).Text = "10.0"
}

// addSubstModel emits the shared covarion substitution model once and
// references it from every later feature.
func (m *covarionModel) addSubstModel(b *baseModel, sitemodel *xmltree.Node, feature, fname string) {
	name := b.settings.Name
	if m.substEmitted {
		sitemodel.Set("substModel", "@covarion.s:"+name)
		return
	}
	m.substEmitted = true
	subst := sitemodel.Element("substModel",
		"id", "covarion.s:"+name,
		"spec", "BinaryCovarion",
		"alpha", "@covarion_alpha.s:"+name,
		"switchRate", "@covarion_s.s:"+name)
	switch b.settings.Frequencies {
	case "estimate":
		subst.Element("vfrequencies",
			"id", "covarion_freqs.s:"+name,
			"spec", "Frequencies",
			"frequencies", "@covarion_freqs_param.s:"+name)
	case "empirical":
		f0, f1 := m.empiricalFrequencies()
		subst.Element("vfrequencies",
			"id", "covarion_freqs.s:"+name,
			"spec", "parameter.RealParameter",
			"dimension", 2,
			"estimate", false).Text = xmltree.AttrValue(f0) + " " + xmltree.AttrValue(f1)
	default:
		subst.Element("vfrequencies",
			"id", "covarion_freqs.s:"+name,
			"spec", "parameter.RealParameter",
			"dimension", 2,
			"estimate", false).Text = "0.5 0.5"
	}
	hfreq := subst.Element("parameter",
		"id", "hiddenfrequencies.s:"+name,
		"dimension", 2,
		"lower", "0.0",
		"upper", "1.0",
		"name", "hfrequencies",
		"estimate", false)
	hfreq.Text = "0.5 0.5"
}

// empiricalFrequencies counts the 0/1 ratio across the whole encoded
// alignment.
func (m *covarionModel) empiricalFrequencies() (float64, float64) {
	var zeros, ones float64
	for _, t := range m.taxa {
		for _, f := range m.features {
			for _, c := range m.encode(m.baseModel, f, m.value(t, f)) {
				switch c {
				case "0":
					zeros++
				case "1":
					ones++
				}
			}
		}
	}
	total := zeros + ones
	if total == 0 {
		return 0.5, 0.5
	}
	return zeros / total, ones / total
}

func (m *covarionModel) userDataType(b *baseModel, feature, fname string) *xmltree.Node {
	name := b.settings.Name
	if m.dtypeEmitted {
		return xmltree.NewElement("userDataType",
			"idref", "TwoStateCovarionDatatype."+name)
	}
	m.dtypeEmitted = true
	return xmltree.NewElement("userDataType",
		"id", "TwoStateCovarionDatatype."+name,
		"spec", "beast.evolution.datatype.TwoStateCovarion")
}

func (m *covarionModel) AddOperators(run *xmltree.Node) {
	m.baseModel.AddOperators(run)
	name := m.settings.Name
	run.Element("operator",
		"id", "covarionAlphaScaler.s:"+name,
		"spec", "ScaleOperator",
		"parameter", "@covarion_alpha.s:"+name,
		"scaleFactor", "0.5",
		"weight", "1.0")
	run.Element("operator",
		"id", "covarionSwitchScaler.s:"+name,
		"spec", "ScaleOperator",
		"parameter", "@covarion_s.s:"+name,
		"scaleFactor", "0.5",
		"weight", "1.0")
	if m.settings.Frequencies == "estimate" {
		run.Element("operator",
			"id", "covarionFrequencyExchanger.s:"+name,
			"spec", "DeltaExchangeOperator",
			"parameter", "@covarion_freqs_param.s:"+name,
			"delta", "0.01",
			"weight", "1.0")
	}
}

func (m *covarionModel) AddParamLogs(logger *xmltree.Node) {
	m.baseModel.AddParamLogs(logger)
	if !m.ctx.Params {
		return
	}
	name := m.settings.Name
	logger.Element("log", "idref", "covarion_alpha.s:"+name)
	logger.Element("log", "idref", "covarion_s.s:"+name)
	if m.settings.Frequencies == "estimate" {
		logger.Element("log", "idref", "covarion_freqs_param.s:"+name)
	}
}
