package clock

import "phylogen/internal/xmltree"

func init() {
	register("strict", "", func(s Settings, ctx Context) Clock {
		return &strictClock{baseClock: newBase(s, ctx)}
	})
}

type strictClock struct {
	baseClock
}

func (c *strictClock) IsStrict() bool { return true }

func (c *strictClock) BranchRateModelID() string {
	return "StrictClockModel.c:" + c.name
}

func (c *strictClock) AddBranchRateModel(root *xmltree.Node) {
	root.Element("branchRateModel",
		"id", c.BranchRateModelID(),
		"spec", "beast.evolution.branchratemodel.StrictClockModel",
		"clock.rate", c.meanRateRef())
}
