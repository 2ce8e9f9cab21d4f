package beastgen

import (
	"sort"

	"phylogen/internal/config"
	"phylogen/internal/xmltree"
)

// taxonSetEntry is one emitted taxon set, keyed by membership: two named
// sets with equal membership are the same set, whatever their labels.
type taxonSetEntry struct {
	id      string
	members map[string]bool
}

// taxonSet returns either a full taxon-set definition or a reference to a
// previously emitted set with the same membership. A linear scan is fine:
// the number of constraint and calibration sets per analysis is small.
// The very first set is the tree's own roster and defines the taxa
// themselves; later definitions reference them.
func (b *Builder) taxonSet(name string, members []string) *xmltree.Node {
	want := map[string]bool{}
	for _, m := range members {
		want[m] = true
	}
	for _, e := range b.taxonSets {
		if len(e.members) != len(want) {
			continue
		}
		same := true
		for m := range want {
			if !e.members[m] {
				same = false
				break
			}
		}
		if same {
			return xmltree.NewElement("taxonset", "idref", e.id)
		}
	}

	id := xmltree.ValidID(name)
	first := len(b.taxonSets) == 0
	b.taxonSets = append(b.taxonSets, taxonSetEntry{id: id, members: want})

	set := xmltree.NewElement("taxonset", "id", id, "spec", "TaxonSet")
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	for _, m := range sorted {
		if first {
			set.Element("taxon", "id", m, "spec", "Taxon")
		} else {
			set.Element("taxon", "idref", m)
		}
	}
	return set
}

// addCalibration emits one clade-age prior. Normal and lognormal carry
// their two shape parameters as children; uniform carries its bounds as
// attributes and no children.
func (b *Builder) addCalibration(prior *xmltree.Node, cal config.Calibration) {
	label := xmltree.ValidID(cal.Clade)
	// The distribution id distinguishes originate calibrations so a clade
	// can carry both node and origin-edge priors; the taxon-set label does
	// not.
	idLabel := label
	if cal.Originate {
		idLabel += "originate"
	}
	dist := prior.Element("distribution",
		"id", idLabel+"MRCA",
		"spec", "beast.math.distributions.MRCAPrior",
		"monophyletic", "true",
		"tree", "@"+treeID)
	if cal.Originate {
		dist.Set("useOriginate", "true")
	}
	dist.Append(b.taxonSet(label, cal.Taxa))

	switch cal.Kind {
	case config.DistUniform:
		dist.Element("Uniform",
			"id", "CalibrationDistribution."+idLabel,
			"name", "distr",
			"lower", cal.Param1,
			"upper", upperBound(cal.Param2))
	case config.DistLogNormal:
		d := dist.Element("LogNormal",
			"id", "CalibrationDistribution."+idLabel,
			"name", "distr",
			"offset", "0.0")
		d.Element("parameter",
			"id", "CalibrationDistribution."+idLabel+".M",
			"name", "M",
			"estimate", false).Text = xmltree.AttrValue(cal.Param1)
		d.Element("parameter",
			"id", "CalibrationDistribution."+idLabel+".S",
			"name", "S",
			"estimate", false).Text = xmltree.AttrValue(cal.Param2)
	default: // normal
		d := dist.Element("Normal",
			"id", "CalibrationDistribution."+idLabel,
			"name", "distr",
			"offset", "0.0")
		d.Element("parameter",
			"id", "CalibrationDistribution."+idLabel+".mean",
			"name", "mean",
			"estimate", false).Text = xmltree.AttrValue(cal.Param1)
		d.Element("parameter",
			"id", "CalibrationDistribution."+idLabel+".sigma",
			"name", "sigma",
			"estimate", false).Text = xmltree.AttrValue(cal.Param2)
	}
}

// upperBound renders one-sided calibrations with the engine's infinity
// token.
func upperBound(v float64) string {
	if v > 1e290 {
		return "Infinity"
	}
	return xmltree.AttrValue(v)
}
