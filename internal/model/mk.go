package model

import (
	"fmt"

	"phylogen/internal/xmltree"
)

func init() {
	register("mk", func(s Settings, ctx Context) (Model, error) {
		m := &mkModel{}
		b, err := newBase(s, ctx, m)
		if err != nil {
			return nil, err
		}
		m.baseModel = b
		return m, nil
	})
}

// mkModel is the Lewis Mk model: each feature evolves over its own state
// space with equal transition rates between all states.
type mkModel struct {
	*baseModel
}

func (m *mkModel) substitutionName() string { return "LewisMK" }

func (m *mkModel) encode(b *baseModel, feature, value string) []string {
	return encodeStandard(b, feature, value)
}

func (m *mkModel) ascertainmentColumns(b *baseModel, feature string) int {
	return b.valueCounts[feature]
}

func (m *mkModel) AddState(state *xmltree.Node) {
	m.baseModel.AddState(state)
	if m.settings.Frequencies != "estimate" {
		return
	}
	for _, f := range m.features {
		fname := m.fname(f)
		n := m.valueCounts[f]
		sn := state.Element("stateNode",
			"id", "feature_freqs_param.s:"+fname,
			"spec", "parameter.RealParameter",
			"dimension", n,
			"lower", "0.0",
			"upper", "1.0")
		sn.Text = xmltree.AttrValue(1.0 / float64(n))
	}
}

func (m *mkModel) AddOperators(run *xmltree.Node) {
	m.baseModel.AddOperators(run)
	if m.settings.Frequencies != "estimate" {
		return
	}
	for _, f := range m.features {
		fname := m.fname(f)
		run.Element("operator",
			"id", "estimatedFrequencyOperator:"+fname,
			"spec", "DeltaExchangeOperator",
			"parameter", "@feature_freqs_param.s:"+fname,
			"delta", "0.01",
			"weight", "0.1")
	}
}

func (m *mkModel) AddParamLogs(logger *xmltree.Node) {
	m.baseModel.AddParamLogs(logger)
	if !m.ctx.Params || m.settings.Frequencies != "estimate" {
		return
	}
	for _, f := range m.features {
		logger.Element("log", "idref", "feature_freqs_param.s:"+m.fname(f))
	}
}

func (m *mkModel) addSubstModel(b *baseModel, sitemodel *xmltree.Node, feature, fname string) {
	subst := sitemodel.Element("substModel",
		"id", "mk.s:"+fname,
		"spec", "LewisMK",
		"datatype", "@featureDataType."+fname)
	switch b.settings.Frequencies {
	case "estimate":
		subst.Element("frequencies",
			"id", "feature_freqs.s:"+fname,
			"spec", "Frequencies",
			"frequencies", "@feature_freqs_param.s:"+fname)
	case "empirical":
		subst.Element("frequencies",
			"id", "feature_freqs.s:"+fname,
			"spec", "Frequencies",
			"data", "@feature_data_"+fname)
	default:
		// Uniform frequencies are LewisMK's native behaviour.
	}
}

func (m *mkModel) userDataType(b *baseModel, feature, fname string) *xmltree.Node {
	return xmltree.NewElement("userDataType",
		"id", "featureDataType."+fname,
		"spec", "beast.evolution.datatype.UserDataType",
		"codeMap", b.codemaps[feature],
		"codelength", "-1",
		"states", fmt.Sprint(b.valueCounts[feature]))
}
