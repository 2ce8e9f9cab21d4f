// Package config turns raw section mappings into a fully resolved
// analysis: typed settings, instantiated models and clocks, the final
// language set, monophyly structure and compiled calibrations. After
// Process the aggregate is read-only; the document builder only reads it.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"phylogen/internal/classify"
	"phylogen/internal/clock"
	"phylogen/internal/datafile"
	"phylogen/internal/geo"
	"phylogen/internal/logging"
	"phylogen/internal/model"
	"phylogen/internal/newick"
	"phylogen/internal/rawcfg"
)

// Config is the resolved analysis aggregate.
type Config struct {
	Admin     Admin
	MCMC      MCMC
	Languages Languages

	Models []model.Model
	Clocks []clock.Clock
	// GeoClock drives the geography component; nil without geography.
	GeoClock  clock.Clock
	Geography *geo.Model

	// Calibrations are sorted by clade label.
	Calibrations   []Calibration
	LanguageGroups map[string][]string

	// Taxa is the final sorted language list.
	Taxa           []string
	Classification *classify.Classification

	// Text is the verbatim concatenated config input, embedded in the
	// document for round-tripping.
	Text string

	StartingTree    *newick.Node
	monophylyNewick string
	monophylyGroups *classify.Group

	modelSettings []model.Settings
	clockSettings map[string]clock.Settings
	clockOrder    []string
	rawCals       []rawCalibration
	geoSettings   *geo.Settings

	processed bool
	warnings  []string
	log       *slog.Logger
	stdin     io.Reader
	source    *classify.Source
}

type rawCalibration struct {
	key   string
	value string
}

// Option adjusts construction.
type Option func(*Config)

// WithLogger routes resolution logging and warnings.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.log = l } }

// WithStdin supplies the reader backing "stdin" data options.
func WithStdin(r io.Reader) Option { return func(c *Config) { c.stdin = r } }

// WithClassificationSource overrides the default fetch/cache source.
func WithClassificationSource(s *classify.Source) Option {
	return func(c *Config) { c.source = s }
}

// WithClassification injects a pre-loaded classification, skipping the
// source entirely.
func WithClassification(cl *classify.Classification) Option {
	return func(c *Config) { c.Classification = cl }
}

// New parses and validates the raw sections. Models and clocks are
// instantiated later, by Process.
func New(raw *rawcfg.Raw, opts ...Option) (*Config, error) {
	c := &Config{
		Text:           raw.Text,
		LanguageGroups: map[string][]string{},
		clockSettings:  map[string]clock.Settings{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.New("config")
	}

	if err := c.parseAdmin(raw.Section("admin")); err != nil {
		return nil, err
	}
	if err := c.parseMCMC(raw.Section("mcmc")); err != nil {
		return nil, err
	}
	if err := c.parseLanguages(raw.Section("languages")); err != nil {
		return nil, err
	}

	for _, name := range raw.SectionNames() {
		switch {
		case name == "admin" || name == "mcmc" || name == "languages":
			// Handled above.
		case name == "calibration":
			c.parseCalibrationSection(raw.Section(name))
		case name == "language_groups":
			c.parseLanguageGroups(raw.Section(name))
		case name == "geography":
			if err := c.parseGeography(raw.Section(name)); err != nil {
				return nil, err
			}
		case strings.HasPrefix(name, "model"):
			s, err := c.parseModelSection(name, raw.Section(name))
			if err != nil {
				return nil, err
			}
			c.modelSettings = append(c.modelSettings, s)
		case strings.HasPrefix(name, "clock"):
			s, err := c.parseClockSection(name, raw.Section(name))
			if err != nil {
				return nil, err
			}
			c.clockSettings[s.Name] = s
			c.clockOrder = append(c.clockOrder, s.Name)
		default:
			return nil, configErrorf(name, "", "unknown section")
		}
	}
	if len(c.modelSettings) == 0 {
		return nil, configErrorf("", "", "at least one model section is required")
	}
	return c, nil
}

// sectionSuffix extracts the instance name of a "model foo" / "clock foo"
// header.
func sectionSuffix(section, kind string) (string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(section, kind))
	if rest == "" {
		return "", configErrorf(section, "", "%s sections need a name (\"%s <name>\")", kind, kind)
	}
	return rest, nil
}

func (c *Config) parseModelSection(section string, values map[string]string) (model.Settings, error) {
	name, err := sectionSuffix(section, "model")
	if err != nil {
		return model.Settings{}, err
	}
	o := newOptions(section, values)
	s := model.Settings{Name: name}
	s.Type = strings.ToLower(o.str("type", ""))
	s.DataFile = o.str("data", "")
	if s.Type == "" {
		return s, configErrorf(section, "type", "required")
	}
	if s.DataFile == "" {
		return s, configErrorf(section, "data", "required")
	}
	if s.Features, err = listOption(o, "features"); err != nil {
		return s, err
	}
	if s.Exclusions, err = listOption(o, "exclusions"); err != nil {
		return s, err
	}
	s.Clock = o.str("clock", "")
	s.RateVariation = o.boolean("rate_variation", false)
	s.RemoveConstantFeature = o.boolean("remove_constant_features", true)
	s.MinimumData = o.float("minimum_data", c.Languages.MinimumData)
	s.Frequencies = o.enum("frequencies", "empirical", "empirical", "uniform", "estimate")
	s.Ascertained = o.boolPtr("ascertained")
	s.Binarised = o.boolPtr("binarised")
	if o.has("binarized") {
		c.warnf("option %q is deprecated, use %q", "binarized", "binarised")
		s.Binarised = o.boolPtr("binarized")
	}
	s.Symmetric = o.boolean("symmetric", true)
	s.SVSPrior = o.enum("svsprior", "poisson", "poisson", "exponential")
	if o.boolean("pruned", false) {
		c.warnf("[%s] pruned-tree likelihoods are not supported, ignoring", section)
	}
	// Model sections accept further variant-specific keys without
	// complaint.
	return s, o.err()
}

func (c *Config) parseClockSection(section string, values map[string]string) (clock.Settings, error) {
	name, err := sectionSuffix(section, "clock")
	if err != nil {
		return clock.Settings{}, err
	}
	o := newOptions(section, values)
	s := clock.Settings{Name: name}
	s.Type = o.enum("type", "strict", "strict", "relaxed", "random")
	s.Distribution = o.enum("distribution", "", "lognormal", "exponential", "gamma")
	s.Correlated = o.boolean("correlated", false)
	s.Rate = o.floatPtr("rate")
	s.Mean = o.floatPtr("mean")
	s.Variance = o.floatPtr("variance")
	s.EstimateRate = o.boolPtr("estimate_rate")
	if o.has("estimate_mean") {
		s.EstimateRate = o.boolPtr("estimate_mean")
	}
	s.EstimateVariance = o.boolPtr("estimate_variance")
	s.Rates = int(o.integer("rates", 0))
	return s, o.err()
}

func (c *Config) parseCalibrationSection(values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.rawCals = append(c.rawCals, rawCalibration{key: k, value: values[k]})
	}
}

func (c *Config) parseLanguageGroups(values map[string]string) {
	for name, members := range values {
		c.LanguageGroups[strings.ToLower(name)] = splitList(members)
	}
}

func (c *Config) parseGeography(values map[string]string) error {
	o := newOptions("geography", values)
	s := &geo.Settings{Name: "geo"}
	s.Clock = o.str("clock", "")
	s.LogLocations = o.boolean("log_locations", true)
	var err error
	if s.SamplingPoints, err = listOption(o, "sampling_points"); err != nil {
		return err
	}
	if s.DataFiles, err = listOption(o, "data"); err != nil {
		return err
	}
	o.rejectUnknown()
	if err := o.err(); err != nil {
		return err
	}
	c.geoSettings = s
	return nil
}

func (c *Config) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, msg)
	c.log.Warn(msg)
}

// Warnings returns the non-fatal findings collected so far.
func (c *Config) Warnings() []string { return c.warnings }

// Processed reports whether the resolution pass has run.
func (c *Config) Processed() bool { return c.processed }

// Calibrated reports whether any calibration is configured.
func (c *Config) Calibrated() bool { return len(c.rawCals) > 0 }

// LogEvery derives the sampling interval for loggers.
func (c *Config) LogEvery() int64 {
	if c.Admin.LogEvery > 0 {
		return c.Admin.LogEvery
	}
	every := c.MCMC.ChainLength / 10000
	if every < 1 {
		every = 1
	}
	return every
}

// MonophylyNewick returns the grouping constraint structure, "" when
// monophyly is off or degenerate.
func (c *Config) MonophylyNewick() string { return c.monophylyNewick }

// MonophylyGroups returns the derived constraint tree, nil for explicit
// newick overrides or no monophyly.
func (c *Config) MonophylyGroups() *classify.Group { return c.monophylyGroups }

// Process runs the single resolution pass: classification, clock and
// model instantiation, language-set resolution, monophyly, calibrations,
// geography. Afterwards the Config is frozen.
func (c *Config) Process(ctx context.Context) error {
	if c.processed {
		c.log.Info("configuration already processed, skipping")
		return nil
	}

	if err := c.loadClassification(ctx); err != nil {
		return err
	}
	if err := c.buildClocks(); err != nil {
		return err
	}
	if err := c.buildModels(); err != nil {
		return err
	}

	taxa, err := c.resolveLanguages()
	if err != nil {
		return err
	}
	c.Taxa = taxa
	for _, m := range c.Models {
		if err := m.Finalise(taxa); err != nil {
			return err
		}
	}

	if err := c.resolveMonophyly(); err != nil {
		return err
	}
	if err := c.resolveStartingTree(); err != nil {
		return err
	}
	if err := c.resolveCalibrations(); err != nil {
		return err
	}
	if err := c.resolveGeography(); err != nil {
		return err
	}
	c.pruneUnusedClocks()

	c.processed = true
	return nil
}

// needsClassification reports whether any configured feature consults the
// external classification.
func (c *Config) needsClassification() bool {
	switch {
	case len(c.Languages.Families) > 0, len(c.Languages.Macroareas) > 0:
		return true
	case len(c.Languages.Languages) > 0:
		return true
	case c.Languages.Monophyly && c.Languages.MonophylyNewick == "":
		return true
	case c.geoSettings != nil:
		return true
	}
	for _, cal := range c.rawCals {
		clade, _ := parseCalibrationKey(cal.key)
		if !strings.Contains(clade, ",") {
			if _, ok := c.LanguageGroups[strings.ToLower(clade)]; !ok {
				return true
			}
		}
	}
	return false
}

func (c *Config) loadClassification(ctx context.Context) error {
	if c.Classification != nil || !c.needsClassification() {
		return nil
	}
	if c.source == nil {
		c.source = classify.NewSource(classify.WithLogger(c.log))
	}
	cl, err := c.source.Load(ctx, c.Admin.GlottologRelease)
	if err != nil {
		return fmt.Errorf("loading classification release %s: %w", c.Admin.GlottologRelease, err)
	}
	c.Classification = cl
	return nil
}

// buildClocks instantiates every clock the models or geography reference,
// creating an implicit strict default when needed.
func (c *Config) buildClocks() error {
	cctx := clock.Context{Calibrated: c.Calibrated()}

	referenced := map[string]bool{}
	for _, s := range c.modelSettings {
		name := s.Clock
		if name == "" {
			name = "default"
		}
		referenced[name] = true
	}

	order := append([]string(nil), c.clockOrder...)
	if referenced["default"] {
		if _, ok := c.clockSettings["default"]; !ok {
			c.clockSettings["default"] = clock.Settings{Name: "default", Type: "strict"}
			order = append(order, "default")
		}
	}
	for name := range referenced {
		if _, ok := c.clockSettings[name]; !ok {
			return configErrorf("", "", "model references unknown clock %q", name)
		}
	}
	for _, name := range order {
		ck, err := clock.New(c.clockSettings[name], cctx)
		if err != nil {
			return configErrorf("clock "+name, "type", "%v", err)
		}
		c.Clocks = append(c.Clocks, ck)
	}
	return nil
}

func (c *Config) buildModels() error {
	mctx := model.Context{
		Calibrated: c.Calibrated(),
		FineProbs:  c.Admin.LogFineProbs,
		Params:     c.Admin.LogParams,
	}
	for _, s := range c.modelSettings {
		data, err := datafile.Load(s.DataFile, datafile.Options{Stdin: c.stdin})
		if err != nil {
			return err
		}
		s.Data = data
		m, err := model.New(s, mctx)
		if err != nil {
			return configErrorf("model "+s.Name, "type", "%v", err)
		}
		c.Models = append(c.Models, m)
	}
	return nil
}

// ClockFor returns the clock instance driving a model.
func (c *Config) ClockFor(m model.Model) clock.Clock {
	name := m.ClockName()
	if name == "" {
		name = "default"
	}
	for _, ck := range c.Clocks {
		if ck.Name() == name {
			return ck
		}
	}
	return nil
}

// ModelsUsing returns the models driven by the named clock, in
// configuration order.
func (c *Config) ModelsUsing(clockName string) []model.Model {
	var out []model.Model
	for _, m := range c.Models {
		name := m.ClockName()
		if name == "" {
			name = "default"
		}
		if name == clockName {
			out = append(out, m)
		}
	}
	return out
}

// pruneUnusedClocks drops configured clocks no model references.
func (c *Config) pruneUnusedClocks() {
	kept := c.Clocks[:0]
	for _, ck := range c.Clocks {
		if len(c.ModelsUsing(ck.Name())) == 0 {
			c.warnf("clock %q is not used by any model, excluding it", ck.Name())
			continue
		}
		kept = append(kept, ck)
	}
	c.Clocks = kept
}

func (c *Config) resolveMonophyly() error {
	l := &c.Languages
	if !l.Monophyly {
		return nil
	}
	if l.MonophylyNewick != "" {
		tree, err := newick.Parse(l.MonophylyNewick)
		if err != nil {
			return configErrorf("languages", "monophyly", "bad newick: %v", err)
		}
		if err := c.checkTreeCoverage("monophyly", tree); err != nil {
			return err
		}
		tree = tree.Prune(toSet(c.Taxa))
		if tree == nil {
			return configErrorf("languages", "monophyly",
				"constraint tree shares no taxa with the analysis")
		}
		tree.StripInternalNames()
		tree.StripLengths()
		c.monophylyNewick = tree.String()
		return nil
	}
	groups := classify.DeriveGroups(c.Classification, c.Taxa, classify.GroupOptions{
		StartDepth: l.MonophylyStartDepth,
		EndDepth:   l.MonophylyEndDepth,
		Direction:  l.MonophylyDirection,
		Grip:       l.MonophylyGrip,
	})
	if groups == nil || !groups.Meaningful() {
		c.warnf("monophyly requested but the classification yields no non-trivial groups")
		return nil
	}
	c.monophylyGroups = groups
	c.monophylyNewick = groups.Newick()
	return nil
}

func (c *Config) resolveStartingTree() error {
	if c.Languages.StartingTree == "" {
		return nil
	}
	tree, err := newick.Parse(c.Languages.StartingTree)
	if err != nil {
		return configErrorf("languages", "starting_tree", "bad newick: %v", err)
	}
	if err := c.checkTreeCoverage("starting_tree", tree); err != nil {
		return err
	}
	tree = tree.Prune(toSet(c.Taxa))
	if tree == nil {
		return configErrorf("languages", "starting_tree",
			"tree shares no taxa with the analysis")
	}
	tree.StripInternalNames()
	tree.ResolvePolytomies()
	c.StartingTree = tree
	return nil
}

// checkTreeCoverage verifies a user tree mentions every analysis language
// exactly once.
func (c *Config) checkTreeCoverage(option string, tree *newick.Node) error {
	leaves := tree.Leaves()
	seen := map[string]bool{}
	for _, l := range leaves {
		if seen[l] {
			return configErrorf("languages", option, "taxon %q appears twice in the tree", l)
		}
		seen[l] = true
	}
	var missing []string
	for _, t := range c.Taxa {
		if !seen[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return configErrorf("languages", option,
			"tree is missing analysis languages: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) resolveCalibrations() error {
	final := toSet(c.Taxa)
	for _, raw := range c.rawCals {
		clade, originate := parseCalibrationKey(raw.key)
		cal, err := parseCalibrationValue(clade, raw.value)
		if err != nil {
			return err
		}
		cal.Originate = originate

		members, err := c.resolveClade(clade)
		if err != nil {
			return err
		}
		var kept []string
		for _, t := range members {
			if final[t] {
				kept = append(kept, t)
			} else {
				c.warnf("calibration %q: taxon %q is not part of the analysis, dropping it", clade, t)
			}
		}
		if len(kept) == 0 {
			return configErrorf("calibration", raw.key, "no analysis languages in clade")
		}
		sort.Strings(kept)
		cal.Taxa = kept
		c.Calibrations = append(c.Calibrations, cal)
	}
	sort.Slice(c.Calibrations, func(i, j int) bool {
		return c.Calibrations[i].Clade < c.Calibrations[j].Clade
	})
	return nil
}

// resolveClade expands a clade label into taxa: an explicit comma list, a
// named language group, or a classification clade.
func (c *Config) resolveClade(clade string) ([]string, error) {
	if strings.Contains(clade, ",") {
		return splitList(clade), nil
	}
	if members, ok := c.LanguageGroups[strings.ToLower(clade)]; ok {
		return members, nil
	}
	if c.Classification == nil {
		return nil, configErrorf("calibration", clade,
			"clade is neither a language group nor resolvable without classification data")
	}
	members := c.Classification.CladeMembers(clade, c.Taxa)
	if len(members) == 0 {
		return nil, configErrorf("calibration", clade, "clade matches no analysis language")
	}
	return members, nil
}

func (c *Config) resolveGeography() error {
	if c.geoSettings == nil {
		return nil
	}
	s := c.geoSettings

	locations := map[string]geo.Location{}
	for _, t := range c.Taxa {
		if loc, ok := c.Classification.LocationOf(t); ok {
			locations[t] = geo.Location{Lat: loc.Lat, Lon: loc.Lon}
		}
	}
	for _, path := range s.DataFiles {
		user, err := geo.ReadLocationFile(path)
		if err != nil {
			return err
		}
		for t, loc := range user {
			locations[t] = loc
		}
	}

	g := &geo.Model{Settings: *s, Locations: locations, Points: map[string][]string{}}
	missing := g.Finalise(c.Taxa)
	if len(missing) > 0 {
		c.warnf("no location data for %d languages: %s", len(missing), strings.Join(missing, ", "))
	}
	if len(g.Taxa) == 0 {
		return configErrorf("geography", "", "no location data for any analysis language")
	}

	if len(s.SamplingPoints) > 0 && c.monophylyNewick == "" {
		c.warnf("geographic sampling points without monophyly constraints rarely converge")
	}
	for _, point := range s.SamplingPoints {
		members, err := c.resolveClade(point)
		if err != nil {
			return err
		}
		var kept []string
		for _, t := range members {
			if _, ok := g.Locations[t]; ok {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			c.warnf("sampling point %q has no located languages, dropping it", point)
			continue
		}
		sort.Strings(kept)
		g.Points[point] = kept
	}

	clockName := s.Clock
	cctx := clock.Context{Calibrated: c.Calibrated()}
	if clockName == "" {
		c.GeoClock, _ = clock.New(clock.Settings{Name: "geo", Type: "strict"}, cctx)
	} else {
		cs, ok := c.clockSettings[clockName]
		if !ok {
			return configErrorf("geography", "clock", "unknown clock %q", clockName)
		}
		ck, err := clock.New(cs, cctx)
		if err != nil {
			return configErrorf("geography", "clock", "%v", err)
		}
		c.GeoClock = ck
	}
	c.Geography = g
	return nil
}
