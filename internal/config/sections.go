package config

import (
	"os"
	"strings"

	"phylogen/internal/classify"
)

// maxChainLength is the largest iteration count the inference engine's
// 32-bit counters accept.
const maxChainLength = 2147483647

// Admin holds the administrative settings.
type Admin struct {
	Basename         string
	EmbedData        bool
	Screenlog        bool
	LogAll           bool
	LogEvery         int64
	LogProbabilities bool
	LogFineProbs     bool
	LogParams        bool
	LogTrees         bool
	LogPureTree      bool
	GlottologRelease string
}

func (c *Config) parseAdmin(values map[string]string) error {
	o := newOptions("admin", values)
	a := &c.Admin
	a.Basename = o.str("basename", "phylogen")
	a.EmbedData = o.boolean("embed_data", false)
	a.Screenlog = o.boolean("screenlog", true)
	a.LogAll = o.boolean("log_all", false)
	a.LogEvery = o.integer("log_every", 0)
	a.LogProbabilities = o.boolean("log_probabilities", true)
	a.LogFineProbs = o.boolean("log_fine_probs", false)
	a.LogParams = o.boolean("log_params", false)
	a.LogTrees = o.boolean("log_trees", true)
	a.LogPureTree = o.boolean("log_pure_tree", false)
	a.GlottologRelease = o.str("glottolog_release", "4.0")
	o.rejectUnknown()
	if err := o.err(); err != nil {
		return err
	}
	if a.LogAll {
		a.LogParams = true
		a.LogProbabilities = true
		a.LogFineProbs = true
		a.LogTrees = true
	}
	if a.LogFineProbs {
		a.LogProbabilities = true
	}
	if a.LogEvery < 0 {
		return configErrorf("admin", "log_every", "must not be negative")
	}
	return nil
}

// MCMC holds the chain/run settings.
type MCMC struct {
	ChainLength     int64
	SampleFromPrior bool
	PathSampling    bool
	Alpha           float64
	PreBurnin       int64
	LogBurnin       int64
	Steps           int64
}

func (c *Config) parseMCMC(values map[string]string) error {
	o := newOptions("mcmc", values)
	m := &c.MCMC
	m.ChainLength = o.integer("chainlength", 10000000)
	m.SampleFromPrior = o.boolean("sample_from_prior", false)
	m.PathSampling = o.boolean("path_sampling", false)
	m.Alpha = o.float("alpha", 0.3)
	m.PreBurnin = o.integer("preburnin", 10)
	m.LogBurnin = o.integer("log_burnin", 50)
	m.Steps = o.integer("steps", 8)
	o.rejectUnknown()
	if err := o.err(); err != nil {
		return err
	}
	if m.ChainLength <= 0 {
		return configErrorf("mcmc", "chainlength", "must be positive")
	}
	if m.ChainLength > maxChainLength {
		c.log.Info("capping chain length", "requested", m.ChainLength, "cap", int64(maxChainLength))
		m.ChainLength = maxChainLength
	}
	if m.SampleFromPrior && m.PathSampling {
		return configErrorf("mcmc", "sample_from_prior",
			"cannot be combined with path_sampling")
	}
	return nil
}

// Languages holds the language-selection settings.
type Languages struct {
	Languages  []string
	Families   []string
	Macroareas []string
	Exclusions []string
	Overlap    string

	StartingTree        string
	SampleBranchLengths bool
	SampleTopology      bool
	SubsampleSize       int64
	TreePrior           string

	Monophyly           bool
	MonophylyNewick     string
	MonophylyStartDepth int
	MonophylyEndDepth   int
	MonophylyDirection  classify.Direction
	MonophylyGrip       classify.Grip

	MinimumData float64
}

func (c *Config) parseLanguages(values map[string]string) error {
	o := newOptions("languages", values)
	l := &c.Languages
	var err error
	if l.Languages, err = listOption(o, "languages"); err != nil {
		return err
	}
	if l.Families, err = listOption(o, "families"); err != nil {
		return err
	}
	if l.Macroareas, err = listOption(o, "macroareas"); err != nil {
		return err
	}
	if l.Exclusions, err = listOption(o, "exclusions"); err != nil {
		return err
	}
	l.Overlap = o.enum("overlap", "union", "union", "intersection", "equality", "error")
	if l.Overlap == "error" {
		c.warnf("overlap policy %q is deprecated, treating as %q", "error", "equality")
		l.Overlap = "equality"
	}
	if l.StartingTree, err = treeOption(o, "starting_tree"); err != nil {
		return err
	}
	l.SampleBranchLengths = o.boolean("sample_branch_lengths", true)
	l.SampleTopology = o.boolean("sample_topology", true)
	l.SubsampleSize = o.integer("subsample_size", 0)
	l.TreePrior = o.enum("tree_prior", "yule", "yule", "coalescent")

	if mono, ok := o.raw("monophyly"); ok {
		if b, berr := parseBool(mono); berr == nil {
			l.Monophyly = b
		} else if l.MonophylyNewick, err = loadTreeValue(mono); err != nil {
			return configErrorf("languages", "monophyly", "%v", err)
		} else {
			l.Monophyly = true
		}
	}
	if o.has("monophyletic") {
		c.warnf("option %q is deprecated, use %q", "monophyletic", "monophyly")
		l.Monophyly = o.boolean("monophyletic", false)
	}
	l.MonophylyStartDepth = int(o.integer("monophyly_start_depth", 0))
	l.MonophylyEndDepth = int(o.integer("monophyly_end_depth", 0))
	switch o.enum("monophyly_direction", "top_down", "top_down", "bottom_up") {
	case "bottom_up":
		l.MonophylyDirection = classify.BottomUp
	default:
		l.MonophylyDirection = classify.TopDown
	}
	switch o.enum("monophyly_grip", "tight", "tight", "loose") {
	case "loose":
		l.MonophylyGrip = classify.Loose
	default:
		l.MonophylyGrip = classify.Tight
	}
	l.MinimumData = o.float("minimum_data", 0)
	o.rejectUnknown()
	if err := o.err(); err != nil {
		return err
	}
	if l.SubsampleSize < 0 {
		return configErrorf("languages", "subsample_size", "must not be negative")
	}
	if l.MonophylyEndDepth != 0 && l.MonophylyEndDepth <= l.MonophylyStartDepth {
		return configErrorf("languages", "monophyly_end_depth",
			"must be greater than monophyly_start_depth")
	}
	return nil
}

// listOption reads a comma-separated list, or the contents of a file when
// the value names one.
func listOption(o *options, key string) ([]string, error) {
	v, ok := o.raw(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, nil
	}
	v = strings.TrimSpace(v)
	if fileExists(v) {
		data, err := os.ReadFile(v)
		if err != nil {
			return nil, configErrorf(o.section, key, "reading %s: %v", v, err)
		}
		return splitLines(string(data)), nil
	}
	return splitList(v), nil
}

// treeOption reads a newick string, or the contents of a file when the
// value names one.
func treeOption(o *options, key string) (string, error) {
	v, ok := o.raw(key)
	if !ok {
		return "", nil
	}
	tree, err := loadTreeValue(v)
	if err != nil {
		return "", configErrorf(o.section, key, "%v", err)
	}
	return tree, nil
}

func loadTreeValue(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	if fileExists(v) {
		data, err := os.ReadFile(v)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return v, nil
}

func fileExists(path string) bool {
	// Newick strings contain characters that never survive to real paths,
	// so a plain stat is a safe discriminator.
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitLines(v string) []string {
	var out []string
	for _, line := range strings.Split(v, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return out
}
