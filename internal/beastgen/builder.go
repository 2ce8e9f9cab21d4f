// Package beastgen assembles the inference document from a processed
// configuration. Assembly order is a correctness requirement: later
// fragments reference identifiers defined earlier.
package beastgen

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"phylogen/internal/config"
	"phylogen/internal/logging"
	"phylogen/internal/model"
	"phylogen/internal/xmltree"
)

// treeID is the identity of the single analysis tree; every fragment that
// touches the tree references it.
const treeID = "Tree.t:tree"

// Comment markers recognised by the extract command.
const (
	ConfigMarker   = "Original configuration:\n"
	EmbeddedMarker = "Embedded data file: "
)

// BuildError is a fatal document-assembly problem.
type BuildError struct {
	Msg string
	Err error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("beastgen: %s: %v", e.Msg, e.Err)
	}
	return "beastgen: " + e.Msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// Options adjust document assembly.
type Options struct {
	Version string
	// Now stamps the provenance comment; zero means time.Now.
	Now    time.Time
	Logger *slog.Logger
}

// Builder emits the document for one processed configuration.
type Builder struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	root *xmltree.Node
	run  *xmltree.Node

	treePrior treePrior
	taxonSets []taxonSetEntry
}

// New prepares a builder. The configuration must already be processed.
func New(cfg *config.Config, opts Options) (*Builder, error) {
	if !cfg.Processed() {
		return nil, &BuildError{Msg: "configuration has not been processed"}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("beastgen")
	}
	return &Builder{
		cfg:       cfg,
		opts:      opts,
		log:       opts.Logger,
		treePrior: newTreePrior(cfg.Languages.TreePrior),
	}, nil
}

// Build assembles and validates the whole document.
func (b *Builder) Build() (*xmltree.Node, error) {
	b.root = xmltree.NewElement("beast",
		"beautitemplate", "Standard",
		"beautistatus", "",
		"namespace", "beast.core:beast.evolution.alignment:beast.evolution.tree.coalescent:beast.core.util:beast.evolution.nuc:beast.evolution.operators:beast.evolution.sitemodel:beast.evolution.substitutionmodel:beast.evolution.likelihood",
		"version", "2.0")

	b.addProvenance()
	if err := b.addEmbeddedData(); err != nil {
		return nil, err
	}
	b.addMaps()

	for _, m := range b.cfg.Models {
		m.AddMasterData(b.root)
	}
	if g := b.cfg.Geography; g != nil {
		g.AddData(b.root)
	}
	for _, ck := range b.cfg.Clocks {
		ck.AddBranchRateModel(b.root)
	}
	if b.cfg.GeoClock != nil {
		b.cfg.GeoClock.AddBranchRateModel(b.root)
	}

	b.addRun()
	b.addState()
	b.addInit()
	b.addPosterior()
	b.addOperators()
	b.addLoggers()

	if err := xmltree.Validate(b.root); err != nil {
		return nil, &BuildError{Msg: "reference validation failed", Err: err}
	}
	return b.root, nil
}

func (b *Builder) addProvenance() {
	b.root.CommentNode(fmt.Sprintf("Generated by phylogen %s on %s",
		b.opts.Version, b.opts.Now.Format(time.RFC1123)))
	b.root.CommentNode(ConfigMarker + b.cfg.Text)
}

// addEmbeddedData copies each model's data file into a comment so the
// document is self-contained.
func (b *Builder) addEmbeddedData() error {
	if !b.cfg.Admin.EmbedData {
		return nil
	}
	seen := map[string]bool{}
	for _, m := range b.cfg.Models {
		path := m.DataFile()
		if path == "" || path == "stdin" || seen[path] {
			continue
		}
		seen[path] = true
		data, err := os.ReadFile(path)
		if err != nil {
			return &BuildError{Msg: "embedding " + path, Err: err}
		}
		b.root.CommentNode(EmbeddedMarker + path + "\n" + string(data))
	}
	return nil
}

var mapAliases = [][2]string{
	{"Uniform", "beast.math.distributions.Uniform"},
	{"Exponential", "beast.math.distributions.Exponential"},
	{"LogNormal", "beast.math.distributions.LogNormalDistributionModel"},
	{"Normal", "beast.math.distributions.Normal"},
	{"Beta", "beast.math.distributions.Beta"},
	{"Gamma", "beast.math.distributions.Gamma"},
	{"LaplaceDistribution", "beast.math.distributions.LaplaceDistribution"},
	{"prior", "beast.math.distributions.Prior"},
	{"InverseGamma", "beast.math.distributions.InverseGamma"},
	{"OneOnX", "beast.math.distributions.OneOnX"},
}

func (b *Builder) addMaps() {
	for _, alias := range mapAliases {
		m := b.root.Element("map", "name", alias[0])
		m.Text = alias[1]
	}
}

func (b *Builder) addRun() {
	b.run = b.root.Element("run",
		"id", "mcmc",
		"spec", "MCMC",
		"chainLength", b.cfg.MCMC.ChainLength)
	if b.cfg.MCMC.SampleFromPrior {
		b.run.Set("sampleFromPrior", "true")
	}
}

func (b *Builder) addState() {
	state := b.run.Element("state", "id", "state", "name", "state")
	tree := state.Element("tree",
		"id", treeID,
		"name", "stateNode")
	tree.Append(b.taxonSet("taxa", b.cfg.Taxa))

	b.treePrior.addState(state)

	for _, ck := range b.cfg.Clocks {
		ck.AddState(state)
	}
	if b.cfg.GeoClock != nil {
		b.cfg.GeoClock.AddState(state)
	}
	for _, m := range b.cfg.Models {
		m.AddState(state)
	}
	if g := b.cfg.Geography; g != nil {
		g.AddState(state)
	}
}

// addInit picks the tree initializer. First match wins: explicit starting
// tree, constrained-random under non-trivial monophyly, simple-random
// when a hard calibration bound exists, plain random otherwise.
func (b *Builder) addInit() {
	switch {
	case b.cfg.StartingTree != nil:
		b.run.Element("init",
			"id", "startingTree",
			"spec", "beast.util.TreeParser",
			"initial", "@"+treeID,
			"taxonset", "@taxa",
			"IsLabelledNewick", "true",
			"newick", b.cfg.StartingTree.String())
	case b.cfg.MonophylyNewick() != "" && len(b.cfg.Taxa) >= 3:
		init := b.run.Element("init",
			"id", "startingTree",
			"spec", "beast.evolution.tree.ConstrainedRandomTree",
			"initial", "@"+treeID,
			"taxonset", "@taxa",
			"constraints", "@constraints")
		addPopModel(init)
	case b.hasUniformCalibration():
		b.run.Element("init",
			"id", "startingTree",
			"spec", "beast.evolution.tree.SimpleRandomTree",
			"initial", "@"+treeID,
			"taxonset", "@taxa")
	default:
		init := b.run.Element("init",
			"id", "startingTree",
			"spec", "beast.evolution.tree.RandomTree",
			"initial", "@"+treeID,
			"taxonset", "@taxa")
		addPopModel(init)
	}
}

func addPopModel(init *xmltree.Node) {
	pop := init.Element("populationModel",
		"id", "ConstantPopulation0.t:tree",
		"spec", "ConstantPopulation")
	pop.Element("parameter",
		"id", "randomPopSize.t:tree",
		"name", "popSize").Text = "1.0"
}

func (b *Builder) hasUniformCalibration() bool {
	for _, cal := range b.cfg.Calibrations {
		if cal.Kind == config.DistUniform {
			return true
		}
	}
	return false
}

func (b *Builder) addPosterior() {
	posterior := b.run.Element("distribution",
		"id", "posterior",
		"spec", "util.CompoundDistribution")
	b.addPrior(posterior)
	b.addLikelihood(posterior)
}

func (b *Builder) addPrior(posterior *xmltree.Node) {
	prior := posterior.Element("distribution",
		"id", "prior",
		"spec", "util.CompoundDistribution")

	if nwk := b.cfg.MonophylyNewick(); nwk != "" {
		prior.Element("distribution",
			"id", "constraints",
			"spec", "beast.math.distributions.MultiMonophyleticConstraint",
			"tree", "@"+treeID,
			"newick", nwk)
	}
	for _, cal := range b.cfg.Calibrations {
		b.addCalibration(prior, cal)
	}

	b.treePrior.addPrior(prior)

	for _, ck := range b.cfg.Clocks {
		ck.AddPrior(prior)
	}
	if b.cfg.GeoClock != nil {
		b.cfg.GeoClock.AddPrior(prior)
	}
	for _, m := range b.cfg.Models {
		m.AddPrior(prior)
	}
	if g := b.cfg.Geography; g != nil {
		g.AddPrior(prior)
		g.AddSamplingPoints(prior, b.taxonSet)
	}
}

func (b *Builder) addLikelihood(posterior *xmltree.Node) {
	likelihood := posterior.Element("distribution",
		"id", "likelihood",
		"spec", "util.CompoundDistribution")
	for _, m := range b.cfg.Models {
		ck := b.cfg.ClockFor(m)
		m.SetBranchRateModel(ck.BranchRateModelID())
		m.AddLikelihood(likelihood)
	}
	if g := b.cfg.Geography; g != nil {
		g.AddLikelihood(likelihood, b.cfg.GeoClock.BranchRateModelID())
	}
}

// rateVaryingModels returns the rate-varying models driven by one clock.
func (b *Builder) rateVaryingModels(clockName string) []model.Model {
	var out []model.Model
	for _, m := range b.cfg.ModelsUsing(clockName) {
		if m.RateVariation() {
			out = append(out, m)
		}
	}
	return out
}
