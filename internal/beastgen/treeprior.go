package beastgen

import "phylogen/internal/xmltree"

// treePrior is the tree-shape prior chosen by languages.tree_prior. Each
// variant owns its parameters and emits its own fragments.
type treePrior interface {
	addState(state *xmltree.Node)
	addPrior(prior *xmltree.Node)
	addOperators(run *xmltree.Node)
	addParamLogs(logger *xmltree.Node)
}

func newTreePrior(kind string) treePrior {
	if kind == "coalescent" {
		return coalescentPrior{}
	}
	return yulePrior{}
}

// yulePrior is a pure-birth process with a sampled birth rate.
type yulePrior struct{}

func (yulePrior) addState(state *xmltree.Node) {
	state.Element("parameter",
		"id", "birthRate.t:tree",
		"name", "stateNode").Text = "1.0"
}

func (yulePrior) addPrior(prior *xmltree.Node) {
	prior.Element("distribution",
		"id", "YuleModel.t:tree",
		"spec", "beast.evolution.speciation.YuleModel",
		"birthDiffRate", "@birthRate.t:tree",
		"tree", "@"+treeID)
	birthPrior := prior.Element("prior",
		"id", "YuleBirthRatePrior.t:tree",
		"name", "distribution",
		"x", "@birthRate.t:tree")
	birthPrior.Element("Uniform",
		"id", "YuleBirthRatePriorUniform.t:tree",
		"name", "distr",
		"upper", "Infinity")
}

func (yulePrior) addOperators(run *xmltree.Node) {
	run.Element("operator",
		"id", "YuleBirthRateScaler.t:tree",
		"spec", "ScaleOperator",
		"parameter", "@birthRate.t:tree",
		"scaleFactor", "0.5",
		"weight", "3.0")
}

func (yulePrior) addParamLogs(logger *xmltree.Node) {
	logger.Element("log", "idref", "birthRate.t:tree")
}

// coalescentPrior assumes a constant population size behind the genealogy.
type coalescentPrior struct{}

func (coalescentPrior) addState(state *xmltree.Node) {
	state.Element("parameter",
		"id", "popSize.t:tree",
		"name", "stateNode").Text = "1.0"
}

func (coalescentPrior) addPrior(prior *xmltree.Node) {
	coalescent := prior.Element("distribution",
		"id", "Coalescent.t:tree",
		"spec", "Coalescent")
	pop := coalescent.Element("populationModel",
		"id", "ConstantPopulation.t:tree",
		"spec", "ConstantPopulation")
	pop.Element("parameter", "idref", "popSize.t:tree", "name", "popSize")
	coalescent.Element("treeIntervals",
		"id", "TreeIntervals.t:tree",
		"spec", "TreeIntervals",
		"tree", "@"+treeID)
}

func (coalescentPrior) addOperators(run *xmltree.Node) {
	run.Element("operator",
		"id", "PopulationSizeScaler.t:tree",
		"spec", "ScaleOperator",
		"parameter", "@popSize.t:tree",
		"scaleFactor", "0.5",
		"weight", "3.0")
}

func (coalescentPrior) addParamLogs(logger *xmltree.Node) {
	logger.Element("log", "idref", "popSize.t:tree")
}
