package beastgen

import (
	"strconv"
	"strings"

	"phylogen/internal/xmltree"
)

// addOperators emits the proposal set: tree-shape moves gated on what is
// being sampled, the tree-prior scaler, per-clock and per-model moves,
// and one rate-exchange operator per clock spanning its rate-varying
// models.
func (b *Builder) addOperators() {
	sampleTopology := b.cfg.Languages.SampleTopology
	sampleBranchLengths := b.cfg.Languages.SampleBranchLengths

	if sampleTopology {
		b.run.Element("operator",
			"id", "SubtreeSlide.t:tree",
			"spec", "SubtreeSlide",
			"tree", "@"+treeID,
			"markclades", "true",
			"weight", "15.0")
		b.run.Element("operator",
			"id", "narrow.t:tree",
			"spec", "Exchange",
			"tree", "@"+treeID,
			"weight", "15.0")
		b.run.Element("operator",
			"id", "wide.t:tree",
			"spec", "Exchange",
			"isNarrow", "false",
			"tree", "@"+treeID,
			"weight", "3.0")
		b.run.Element("operator",
			"id", "WilsonBalding.t:tree",
			"spec", "WilsonBalding",
			"tree", "@"+treeID,
			"weight", "3.0")
	}
	if sampleBranchLengths {
		b.run.Element("operator",
			"id", "UniformOperator.t:tree",
			"spec", "Uniform",
			"tree", "@"+treeID,
			"weight", "30.0")
		b.run.Element("operator",
			"id", "treeScaler.t:tree",
			"spec", "ScaleOperator",
			"scaleFactor", "0.5",
			"tree", "@"+treeID,
			"weight", "3.0")
		b.run.Element("operator",
			"id", "treeRootScaler.t:tree",
			"spec", "ScaleOperator",
			"scaleFactor", "0.5",
			"tree", "@"+treeID,
			"rootOnly", "true",
			"weight", "3.0")
		b.addUpDown()
	}

	b.treePrior.addOperators(b.run)

	for _, ck := range b.cfg.Clocks {
		ck.AddOperators(b.run)
		b.addRateExchange(ck.Name())
	}
	if b.cfg.GeoClock != nil {
		b.cfg.GeoClock.AddOperators(b.run)
	}
	for _, m := range b.cfg.Models {
		m.AddOperators(b.run)
	}
	if g := b.cfg.Geography; g != nil {
		g.AddOperators(b.run)
	}
}

// addUpDown scales the tree against the clock rates. Without calibrations
// the rates are fixed and the tree alone is scaled, so the operator is
// pointless.
func (b *Builder) addUpDown() {
	if !b.cfg.Calibrated() {
		return
	}
	var rates []string
	for _, ck := range b.cfg.Clocks {
		if ck.EstimateRate() {
			rates = append(rates, ck.MeanRateID())
		}
	}
	if len(rates) == 0 {
		return
	}
	updown := b.run.Element("operator",
		"id", "UpDown.t:tree",
		"spec", "UpDownOperator",
		"scaleFactor", "0.5",
		"weight", "3.0")
	updown.Element("tree", "idref", treeID, "name", "up")
	for _, r := range rates {
		updown.Element("parameter", "idref", r, "name", "down")
	}
}

// addRateExchange emits one DeltaExchange across all per-feature rates of
// a clock's rate-varying models. The explicit weight vector appears only
// when some feature spans more than one column.
func (b *Builder) addRateExchange(clockName string) {
	models := b.rateVaryingModels(clockName)
	if len(models) == 0 {
		return
	}
	var ids []string
	var weights []string
	uniform := true
	for _, m := range models {
		w := m.Weights()
		for i, f := range m.Features() {
			ids = append(ids, m.FeatureRateIDs()[i])
			weights = append(weights, strconv.Itoa(w[f]))
			if w[f] != 1 {
				uniform = false
			}
		}
	}
	op := b.run.Element("operator",
		"id", "featureClockRateDeltaExchanger:"+xmltree.ValidID(clockName),
		"spec", "DeltaExchangeOperator",
		"weight", "3.0")
	for _, id := range ids {
		op.Element("parameter", "idref", id)
	}
	if !uniform {
		wv := op.Element("weightvector",
			"id", "featureClockRateWeights:"+xmltree.ValidID(clockName),
			"spec", "parameter.IntegerParameter",
			"dimension", len(weights),
			"estimate", false)
		wv.Text = strings.Join(weights, " ")
	}
}
