package beastgen

import (
	"phylogen/internal/clock"
	"phylogen/internal/xmltree"
)

// addLoggers emits the logger set: screen, trace and tree streams, each
// gated on the admin toggles.
func (b *Builder) addLoggers() {
	every := b.cfg.LogEvery()

	if b.cfg.Admin.Screenlog {
		screen := b.run.Element("logger",
			"id", "screenlog",
			"logEvery", every)
		screen.Element("log", "idref", "posterior")
		screen.Element("log",
			"id", "ESS.0",
			"spec", "util.ESS",
			"arg", "@posterior")
		screen.Element("log", "idref", "likelihood")
		screen.Element("log", "idref", "prior")
	}

	if b.cfg.Admin.LogProbabilities || b.cfg.Admin.LogParams {
		b.addTraceLogger(every)
	}
	b.addTreeLoggers(every)
}

func (b *Builder) addTraceLogger(every int64) {
	trace := b.run.Element("logger",
		"id", "tracelog",
		"fileName", b.cfg.Admin.Basename+".log",
		"logEvery", every,
		"model", "@posterior",
		"sanitiseHeaders", "true",
		"sort", "smart")
	if b.cfg.Admin.LogProbabilities {
		trace.Element("log", "idref", "posterior")
		trace.Element("log", "idref", "likelihood")
		trace.Element("log", "idref", "prior")
	}
	if b.cfg.Admin.LogParams {
		trace.Element("log",
			"id", "treeHeight",
			"spec", "beast.evolution.tree.TreeHeightLogger",
			"tree", "@"+treeID)
		for _, cal := range b.cfg.Calibrations {
			label := xmltree.ValidID(cal.Clade)
			if cal.Originate {
				label += "originate"
			}
			trace.Element("log", "idref", label+"MRCA")
		}
		b.treePrior.addParamLogs(trace)
		for _, ck := range b.cfg.Clocks {
			ck.AddParamLogs(trace)
		}
		if b.cfg.GeoClock != nil {
			b.cfg.GeoClock.AddParamLogs(trace)
		}
		if g := b.cfg.Geography; g != nil {
			g.AddParamLogs(trace)
		}
	}
	// Models gate their own parameter and fine-probability terms.
	for _, m := range b.cfg.Models {
		m.AddParamLogs(trace)
	}
}

func (b *Builder) addTreeLoggers(every int64) {
	if !b.cfg.Admin.LogTrees {
		return
	}
	if b.cfg.StartingTree != nil &&
		!b.cfg.Languages.SampleTopology && !b.cfg.Languages.SampleBranchLengths {
		b.log.Info("tree is fully fixed, skipping tree logs")
		return
	}

	var relaxed []clock.Clock
	for _, ck := range b.cfg.Clocks {
		if !ck.IsStrict() {
			relaxed = append(relaxed, ck)
		}
	}

	if len(relaxed) == 0 {
		logger := b.run.Element("logger",
			"id", "treelog",
			"fileName", b.cfg.Admin.Basename+".nex",
			"logEvery", every,
			"mode", "tree")
		logger.Element("log",
			"id", "treeLogger",
			"spec", "beast.evolution.tree.TreeWithMetaDataLogger",
			"tree", "@"+treeID)
	} else {
		for _, ck := range relaxed {
			name, file := "treelog", b.cfg.Admin.Basename+".nex"
			if len(relaxed) > 1 {
				name = "treelog_" + xmltree.ValidID(ck.Name())
				file = b.cfg.Admin.Basename + "_" + ck.Name() + "_rates.nex"
			}
			logger := b.run.Element("logger",
				"id", name,
				"fileName", file,
				"logEvery", every,
				"mode", "tree")
			logger.Element("log",
				"id", name+"Logger",
				"spec", "beast.evolution.tree.TreeWithMetaDataLogger",
				"branchratemodel", "@"+ck.BranchRateModelID(),
				"tree", "@"+treeID)
		}
	}

	if b.cfg.Admin.LogPureTree {
		logger := b.run.Element("logger",
			"id", "puretreelog",
			"fileName", b.cfg.Admin.Basename+"_pure.nex",
			"logEvery", every,
			"mode", "tree")
		logger.Element("log",
			"id", "pureTreeLogger",
			"spec", "beast.evolution.tree.TreeWithMetaDataLogger",
			"tree", "@"+treeID)
	}

	if g := b.cfg.Geography; g != nil {
		if g.Settings.LogLocations || !b.cfg.GeoClock.IsStrict() {
			logger := b.run.Element("logger",
				"id", "geotreelog",
				"fileName", b.cfg.Admin.Basename+"_geography.nex",
				"logEvery", every,
				"mode", "tree")
			log := logger.Element("log",
				"id", "geoTreeLogger",
				"spec", "sphericalGeo.TreeWithTraitLogger",
				"tree", "@"+treeID)
			log.Element("metadata", "idref", "locationParameter")
		}
	}
}
