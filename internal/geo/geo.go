// Package geo implements the optional spherical phylogeography model:
// language locations evolve over the tree under a diffusion process with
// its own clock.
package geo

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"phylogen/internal/xmltree"
)

// Settings are the resolved options of the geography section.
type Settings struct {
	Name           string // always "geo"
	Clock          string // clock section name, "" = dedicated strict clock
	LogLocations   bool
	SamplingPoints []string // clade names whose internal locations are sampled
	DataFiles      []string // user location files overriding classification data
}

// Location is a latitude/longitude pair in degrees.
type Location struct {
	Lat float64
	Lon float64
}

// Model holds the resolved geography component.
type Model struct {
	Settings  Settings
	Locations map[string]Location // taxon → location
	Taxa      []string            // taxa with a known location, sorted
	// Points are the sampling-point clades with their resolved members.
	Points map[string][]string
}

// ReadLocationFile parses a delimited file of taxon, latitude, longitude
// columns. A header line is skipped when its coordinates do not parse.
func ReadLocationFile(path string) (map[string]Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]Location{}
	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := splitLocationLine(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("geo: %s:%d: expected taxon, latitude, longitude", path, lineno)
		}
		lat, err1 := strconv.ParseFloat(fields[1], 64)
		lon, err2 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil {
			if lineno == 1 {
				continue // header
			}
			return nil, fmt.Errorf("geo: %s:%d: bad coordinates", path, lineno)
		}
		out[fields[0]] = Location{Lat: lat, Lon: lon}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("geo: reading %s: %w", path, err)
	}
	return out, nil
}

func splitLocationLine(line string) []string {
	var fields []string
	if strings.Contains(line, "\t") {
		fields = strings.Split(line, "\t")
	} else {
		fields = strings.Split(line, ",")
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// Finalise restricts the model to the analysis taxa and drops taxa
// without coordinates, reporting them.
func (m *Model) Finalise(taxa []string) (missing []string) {
	m.Taxa = nil
	for _, t := range taxa {
		if _, ok := m.Locations[t]; ok {
			m.Taxa = append(m.Taxa, t)
		} else {
			missing = append(missing, t)
		}
	}
	sort.Strings(m.Taxa)
	return missing
}

// AddData emits the location trait alignment.
func (m *Model) AddData(root *xmltree.Node) {
	data := root.Element("data",
		"id", "locationData",
		"spec", "sphericalGeo.AlignmentFromTraitMap")
	traits := make([]string, 0, len(m.Taxa))
	for _, t := range m.Taxa {
		loc := m.Locations[t]
		traits = append(traits, fmt.Sprintf("%s=%s %s",
			t, xmltree.AttrValue(loc.Lat), xmltree.AttrValue(loc.Lon)))
	}
	tm := data.Element("traitMap",
		"id", "geoTraitMap",
		"spec", "sphericalGeo.TreeTraitMap",
		"initByMean", "true",
		"randomizelower", "-90 -180",
		"randomizeupper", "90 180",
		"traitName", "location",
		"tree", "@Tree.t:tree",
		"value", strings.Join(traits, ",\n"))
	tm.Element("parameter",
		"id", "locationParameter",
		"spec", "sphericalGeo.LocationParameter",
		"dimension", 2*(2*len(m.Taxa)-1),
		"minordimension", 2,
		"name", "location").Text = "0.0"
	data.Element("userDataType",
		"id", "LocationDataType",
		"spec", "sphericalGeo.LocationDataType")
}

// AddState contributes the diffusion precision parameter.
func (m *Model) AddState(state *xmltree.Node) {
	p := state.Element("parameter",
		"id", "sphericalPrecision",
		"lower", "0.0",
		"name", "stateNode")
	p.Text = "100.0"
	state.Element("stateNode", "idref", "locationParameter")
}

// AddPrior contributes the precision prior.
func (m *Model) AddPrior(prior *xmltree.Node) {
	precPrior := prior.Element("prior",
		"id", "sphericalPrecisionPrior",
		"name", "distribution",
		"x", "@sphericalPrecision")
	precPrior.Element("Uniform",
		"id", "sphericalPrecisionPriorUniform",
		"name", "distr",
		"upper", "1.0E100")
}

// AddLikelihood emits the spherical diffusion likelihood, hooked to the
// geography clock's branch-rate model.
func (m *Model) AddLikelihood(likelihood *xmltree.Node, branchRateModelID string) {
	dist := likelihood.Element("distribution",
		"id", "sphericalGeographyLikelihood",
		"spec", "sphericalGeo.ApproxMultivariateTraitLikelihood",
		"tree", "@Tree.t:tree",
		"branchRateModel", "@"+branchRateModelID,
		"data", "@locationData",
		"location", "@locationParameter")
	for _, name := range m.pointNames() {
		dist.Element("geoprior", "idref", "geoPrior_"+xmltree.ValidID(name))
	}
	sub := dist.Element("siteModel",
		"id", "geoSiteModel",
		"spec", "SiteModel")
	sub.Element("substModel",
		"id", "sphericalDiffusionSubstModel",
		"spec", "sphericalGeo.SphericalDiffusionModel",
		"precision", "@sphericalPrecision",
		"fast", "true",
		"threshold", "1")
}

func (m *Model) pointNames() []string {
	names := make([]string, 0, len(m.Points))
	for n := range m.Points {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddSamplingPoints emits one region prior per sampling-point clade; the
// taxonSet callback routes through the document's taxon-set cache.
func (m *Model) AddSamplingPoints(run *xmltree.Node, taxonSet func(name string, members []string) *xmltree.Node) {
	for _, name := range m.pointNames() {
		gp := run.Element("geoprior",
			"id", "geoPrior_"+xmltree.ValidID(name),
			"spec", "sphericalGeo.GeoPrior",
			"tree", "@Tree.t:tree",
			"location", "@locationParameter")
		gp.Append(taxonSet(name, m.Points[name]))
	}
}

// AddOperators contributes the precision scaler and the location sampler.
func (m *Model) AddOperators(run *xmltree.Node) {
	run.Element("operator",
		"id", "sphericalPrecisionScaler",
		"spec", "ScaleOperator",
		"parameter", "@sphericalPrecision",
		"scaleFactor", "0.7",
		"weight", "5.0")
	if len(m.Points) > 0 {
		run.Element("operator",
			"id", "locationSampler",
			"spec", "sphericalGeo.LocationOperator",
			"location", "@locationParameter",
			"likelihood", "@sphericalGeographyLikelihood",
			"weight", "10.0")
	}
}

// AddParamLogs logs the diffusion precision.
func (m *Model) AddParamLogs(logger *xmltree.Node) {
	logger.Element("log", "idref", "sphericalPrecision")
}
