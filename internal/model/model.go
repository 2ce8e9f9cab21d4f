// Package model implements the substitution model variants. A model owns
// one dataset, knows which features survive filtering, and emits its own
// document fragments; the document builder decides ordering.
package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"phylogen/internal/datafile"
	"phylogen/internal/xmltree"
)

// Settings are the resolved options of one model section.
type Settings struct {
	Name       string
	Type       string // "mk", "covarion", "bsvs"
	DataFile   string
	Data       datafile.Dataset // pre-loaded dataset
	Clock      string           // clock section name, "" = default clock
	Features   []string         // explicit feature list; nil = all
	Exclusions []string

	RateVariation         bool
	RemoveConstantFeature bool
	MinimumData           float64 // percent of non-missing datapoints required per feature

	Frequencies string // "empirical", "uniform", "estimate"
	Ascertained *bool  // nil = decide from calibration presence

	// Binarised marks data that is already 0/1 recoded, so the covarion
	// model must not re-binarise it.
	Binarised *bool

	// bsvs only
	Symmetric bool
	SVSPrior  string // "poisson" or "exponential"
}

// Context carries analysis-wide facts models need.
type Context struct {
	Calibrated bool // any calibration present: drives default ascertainment
	FineProbs  bool // log individual likelihood terms
	Params     bool // log model parameters
}

// Model is the common surface of all substitution model variants.
type Model interface {
	Name() string
	Type() string
	// SubstitutionName is the inference engine's name for the variant's
	// substitution model class.
	SubstitutionName() string
	ClockName() string
	RateVariation() bool
	Features() []string
	// Weights returns per-feature integer weights for rate-exchange
	// bookkeeping; binarised features weigh as many columns as they expand
	// into.
	Weights() map[string]int
	// FeatureRateIDs returns the per-feature rate parameter identifiers,
	// in feature order; empty without rate variation.
	FeatureRateIDs() []string
	// Taxa returns the taxa present in the model's dataset.
	Taxa() []string
	DataFile() string

	// Finalise restricts the dataset to the final taxon list and computes
	// feature properties. It must run exactly once, after language-set
	// resolution.
	Finalise(taxa []string) error

	// SetBranchRateModel tells the model which clock fragment its tree
	// likelihoods reference. The builder calls it before AddLikelihood.
	SetBranchRateModel(id string)

	AddMasterData(root *xmltree.Node)
	AddState(state *xmltree.Node)
	AddPrior(prior *xmltree.Node)
	AddLikelihood(likelihood *xmltree.Node)
	AddOperators(run *xmltree.Node)
	AddParamLogs(logger *xmltree.Node)
}

type factory func(Settings, Context) (Model, error)

var registry = map[string]factory{}

func register(typeTag string, f factory) { registry[typeTag] = f }

// New constructs the model matching the settings' type tag.
func New(s Settings, ctx Context) (Model, error) {
	f, ok := registry[s.Type]
	if !ok {
		return nil, fmt.Errorf("model: unknown model type %q", s.Type)
	}
	if s.Data == nil {
		return nil, fmt.Errorf("model: %s: no dataset loaded", s.Name)
	}
	return f(s, ctx)
}

// Types returns the registered model type tags, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// substEmitter is the variant hook: how one feature's substitution model
// and data type are emitted, and how a raw value is encoded into columns.
type substEmitter interface {
	substitutionName() string
	encode(b *baseModel, feature, value string) []string
	// ascertainmentColumns is the number of dummy columns prepended to a
	// feature block when the ascertainment correction applies.
	ascertainmentColumns(b *baseModel, feature string) int
	addSubstModel(b *baseModel, sitemodel *xmltree.Node, feature, fname string)
	userDataType(b *baseModel, feature, fname string) *xmltree.Node
}

// baseModel carries data bookkeeping and the fragment logic shared by all
// variants.
type baseModel struct {
	settings Settings
	ctx      Context
	subst    substEmitter

	data     datafile.Dataset
	features []string
	taxa     []string

	ascertained bool
	finalised   bool

	branchRateModelRef string

	valueCounts   map[string]int
	uniqueValues  map[string][]string
	missingRatios map[string]float64
	codemaps      map[string]string
	weights       map[string]int
	filters       map[string]string // feature → column range in the master alignment
}

func newBase(s Settings, ctx Context, subst substEmitter) (*baseModel, error) {
	b := &baseModel{settings: s, ctx: ctx, subst: subst, data: s.Data}
	if err := b.applyFeatureFilter(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *baseModel) SubstitutionName() string { return b.subst.substitutionName() }

func (b *baseModel) Name() string          { return b.settings.Name }
func (b *baseModel) Type() string          { return b.settings.Type }
func (b *baseModel) ClockName() string     { return b.settings.Clock }
func (b *baseModel) RateVariation() bool   { return b.settings.RateVariation }
func (b *baseModel) Features() []string    { return b.features }
func (b *baseModel) Weights() map[string]int { return b.weights }
func (b *baseModel) DataFile() string      { return b.settings.DataFile }

func (b *baseModel) Taxa() []string {
	if b.finalised {
		return b.taxa
	}
	return b.data.Taxa()
}

// applyFeatureFilter reduces the dataset to the requested features.
func (b *baseModel) applyFeatureFilter() error {
	wanted := b.settings.Features
	if len(wanted) == 0 || (len(wanted) == 1 && wanted[0] == "*") {
		wanted = b.data.Features()
	}
	excluded := map[string]bool{}
	for _, f := range b.settings.Exclusions {
		excluded[f] = true
	}
	keep := map[string]bool{}
	for _, f := range wanted {
		if !excluded[f] {
			keep[f] = true
		}
	}
	for _, features := range b.data {
		for f := range features {
			if !keep[f] {
				delete(features, f)
			}
		}
	}
	b.features = nil
	for f := range keep {
		for _, features := range b.data {
			if _, ok := features[f]; ok {
				b.features = append(b.features, f)
				break
			}
		}
	}
	sort.Strings(b.features)
	if len(b.features) == 0 {
		return fmt.Errorf("model: %s: no features left after filtering", b.settings.Name)
	}
	return nil
}

// Finalise restricts the dataset to the final taxon list, computes feature
// properties, and drops unusable features.
func (b *baseModel) Finalise(taxa []string) error {
	if b.finalised {
		return nil
	}
	keep := map[string]bool{}
	for _, t := range taxa {
		keep[t] = true
	}
	for t := range b.data {
		if !keep[t] {
			delete(b.data, t)
		}
	}
	if len(b.data) == 0 {
		return fmt.Errorf("model: %s: language filters leave nothing in the dataset", b.settings.Name)
	}
	// Taxa the dataset lacks still get a row of missing values, so the
	// alignment covers the whole analysis.
	b.taxa = append([]string(nil), taxa...)
	sort.Strings(b.taxa)

	if b.settings.Ascertained != nil {
		b.ascertained = *b.settings.Ascertained
	} else {
		// Ascertainment correction matters when the tree is calibrated,
		// because removing constant features biases timing estimates.
		b.ascertained = b.ctx.Calibrated
	}

	b.computeFeatureProperties()
	if err := b.removeUnwantedFeatures(); err != nil {
		return err
	}
	b.computeWeights()
	b.finalised = true
	return nil
}

func (b *baseModel) value(taxon, feature string) string {
	v, ok := b.data[taxon][feature]
	if !ok || v == "" {
		return datafile.MissingValue
	}
	return v
}

func (b *baseModel) computeFeatureProperties() {
	b.valueCounts = map[string]int{}
	b.uniqueValues = map[string][]string{}
	b.missingRatios = map[string]float64{}
	b.codemaps = map[string]string{}
	for _, f := range b.features {
		missing := 0
		seen := map[string]bool{}
		for _, t := range b.taxa {
			v := b.value(t, f)
			if v == datafile.MissingValue {
				missing++
				continue
			}
			seen[v] = true
		}
		unique := make([]string, 0, len(seen))
		for v := range seen {
			unique = append(unique, v)
		}
		sortValues(unique)
		b.uniqueValues[f] = unique
		b.valueCounts[f] = len(unique)
		b.missingRatios[f] = float64(missing) / float64(len(b.taxa))
		b.codemaps[f] = buildCodemap(len(unique))
	}
}

// sortValues orders feature values numerically when they all look like
// integers ("10" after "2"), lexically otherwise.
func sortValues(values []string) {
	numeric := true
	for _, v := range values {
		if _, err := strconv.Atoi(v); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		sort.Slice(values, func(i, j int) bool {
			a, _ := strconv.Atoi(values[i])
			c, _ := strconv.Atoi(values[j])
			return a < c
		})
		return
	}
	sort.Strings(values)
}

func buildCodemap(n int) string {
	var bits []string
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		bits = append(bits, fmt.Sprintf("%d=%d", i, i))
		codes = append(codes, strconv.Itoa(i))
	}
	all := strings.Join(codes, " ")
	bits = append(bits, "?="+all, "-="+all)
	return strings.Join(bits, ",")
}

func (b *baseModel) removeUnwantedFeatures() error {
	var kept []string
	for _, f := range b.features {
		switch {
		case b.valueCounts[f] == 0:
			// No datapoints at all for the selected taxa.
		case int(100*(1.0-b.missingRatios[f])) < int(b.settings.MinimumData):
			// Too much missing data.
		case b.valueCounts[f] == 1 && b.settings.RemoveConstantFeature:
			// Constant features carry no signal and bias branch lengths
			// unless an ascertainment correction is applied.
		default:
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return fmt.Errorf("model: %s: no usable features left", b.settings.Name)
	}
	b.features = kept
	return nil
}

func (b *baseModel) computeWeights() {
	b.weights = map[string]int{}
	for _, f := range b.features {
		b.weights[f] = len(b.subst.encode(b, f, b.firstObserved(f)))
	}
}

func (b *baseModel) firstObserved(f string) string {
	if vals := b.uniqueValues[f]; len(vals) > 0 {
		return vals[0]
	}
	return datafile.MissingValue
}

// encodeStandard maps a value to its index code, one column per feature.
func encodeStandard(b *baseModel, feature, value string) []string {
	if value == datafile.MissingValue {
		return []string{datafile.MissingValue}
	}
	for i, v := range b.uniqueValues[feature] {
		if v == value {
			return []string{strconv.Itoa(i)}
		}
	}
	return []string{datafile.MissingValue}
}

func (b *baseModel) fname(feature string) string {
	return b.settings.Name + ":" + xmltree.ValidID(feature)
}

// AddMasterData emits the model's alignment block: one sequence per taxon,
// concatenating the encoded columns of every feature, and records the
// per-feature column ranges for the filtered alignments.
func (b *baseModel) AddMasterData(root *xmltree.Node) {
	data := root.Element("data",
		"id", "data_"+b.settings.Name,
		"name", "data_"+b.settings.Name,
		"dataType", "integer")
	b.filters = map[string]string{}
	for _, t := range b.taxa {
		var cols []string
		col := 1
		for _, f := range b.features {
			enc := b.encodeDatapoint(f, b.value(t, f))
			if _, done := b.filters[f]; !done {
				if len(enc) == 1 {
					b.filters[f] = strconv.Itoa(col)
				} else {
					b.filters[f] = fmt.Sprintf("%d-%d", col, col+len(enc)-1)
				}
			}
			col += len(enc)
			cols = append(cols, enc...)
		}
		data.Element("sequence",
			"id", fmt.Sprintf("seq_%s:%s", b.settings.Name, t),
			"taxon", t,
			"value", strings.Join(cols, ","))
	}
}

// encodeDatapoint applies ascertainment padding around the variant's
// encoding.
func (b *baseModel) encodeDatapoint(feature, value string) []string {
	enc := b.subst.encode(b, feature, value)
	if !b.ascertained {
		return enc
	}
	// Ascertainment correction adds dummy columns ahead of the real ones.
	extra := b.subst.ascertainmentColumns(b, feature)
	out := make([]string, 0, extra+len(enc))
	if value == datafile.MissingValue {
		for i := 0; i < extra; i++ {
			out = append(out, datafile.MissingValue)
		}
	} else {
		for i := 0; i < extra; i++ {
			out = append(out, strconv.Itoa(i))
		}
	}
	return append(out, enc...)
}

// AddState emits per-feature rate parameters when rate variation is on.
func (b *baseModel) AddState(state *xmltree.Node) {
	if !b.settings.RateVariation {
		return
	}
	for _, f := range b.features {
		p := state.Element("parameter",
			"id", b.featureRateID(f),
			"name", "stateNode")
		p.Text = "1.0"
	}
	// Shape must stay above 1.0 so the rate distribution is bell-shaped
	// rather than L-shaped.
	shape := state.Element("parameter",
		"id", "featureClockRateGammaShape:"+b.settings.Name,
		"lower", "1.1",
		"upper", "100.0",
		"name", "stateNode")
	shape.Text = "5.0"
	scale := state.Element("parameter",
		"id", "featureClockRateGammaScale:"+b.settings.Name,
		"name", "stateNode")
	scale.Text = "0.2"
}

func (b *baseModel) featureRateID(feature string) string {
	return "featureClockRate:" + b.fname(feature)
}

func (b *baseModel) FeatureRateIDs() []string {
	if !b.settings.RateVariation {
		return nil
	}
	ids := make([]string, 0, len(b.features))
	for _, f := range b.features {
		ids = append(ids, b.featureRateID(f))
	}
	return ids
}

// AddPrior emits the gamma prior over per-feature rates when rate
// variation is on.
func (b *baseModel) AddPrior(prior *xmltree.Node) {
	if !b.settings.RateVariation {
		return
	}
	sub := prior.Element("prior",
		"id", "featureClockRatePrior.s:"+b.settings.Name,
		"name", "distribution")
	compound := sub.Element("input",
		"id", "featureClockRateCompound:"+b.settings.Name,
		"spec", "beast.core.parameter.CompoundValuable",
		"name", "x")
	for _, f := range b.features {
		compound.Element("var", "idref", b.featureRateID(f))
	}
	sub.Element("input",
		"id", "featureClockRatePriorGamma:"+b.settings.Name,
		"spec", "beast.math.distributions.Gamma",
		"name", "distr",
		"alpha", "@featureClockRateGammaShape:"+b.settings.Name,
		"beta", "@featureClockRateGammaScale:"+b.settings.Name)
	// Exponential hyperprior on the gamma scale favours less rate
	// variation; mean 0.23 puts roughly even odds on a 10x spread between
	// fastest and slowest feature in a mid-sized dataset.
	scalePrior := prior.Element("prior",
		"id", "featureClockRateGammaScalePrior.s:"+b.settings.Name,
		"name", "distribution",
		"x", "@featureClockRateGammaScale:"+b.settings.Name)
	scalePrior.Element("Exponential",
		"id", "featureClockRateGammaScalePriorExponential.s:"+b.settings.Name,
		"mean", "0.23",
		"name", "distr")
}

// AddLikelihood emits one tree likelihood per feature.
func (b *baseModel) AddLikelihood(likelihood *xmltree.Node) {
	for _, f := range b.features {
		fname := b.fname(f)
		dist := likelihood.Element("distribution",
			"id", "featureLikelihood:"+fname,
			"spec", "TreeLikelihood",
			"useAmbiguities", "true",
			"branchRateModel", "@"+b.branchRateModelRef,
			"tree", "@Tree.t:tree")
		b.addSitemodel(dist, f, fname)
		b.addFeatureData(dist, f, fname)
	}
}

func (b *baseModel) SetBranchRateModel(id string) { b.branchRateModelRef = id }

func (b *baseModel) addSitemodel(dist *xmltree.Node, feature, fname string) {
	sitemodel := dist.Element("siteModel",
		"id", "SiteModel."+fname,
		"spec", "SiteModel",
		"mutationRate", b.mutationRate(feature),
		"proportionInvariant", "0")
	b.subst.addSubstModel(b, sitemodel, feature, fname)
}

func (b *baseModel) mutationRate(feature string) string {
	if b.settings.RateVariation {
		return "@" + b.featureRateID(feature)
	}
	return "1.0"
}

func (b *baseModel) addFeatureData(dist *xmltree.Node, feature, fname string) {
	data := dist.Element("data",
		"id", "feature_data_"+fname,
		"spec", "FilteredAlignment",
		"data", "@data_"+b.settings.Name,
		"filter", b.filters[feature])
	if b.ascertained {
		data.Set("ascertained", "true")
		data.Set("excludefrom", "0")
		data.Set("excludeto", strconv.Itoa(b.subst.ascertainmentColumns(b, feature)))
	}
	data.Append(b.subst.userDataType(b, feature, fname))
}

// AddOperators scales the rate-variation gamma when configured.
func (b *baseModel) AddOperators(run *xmltree.Node) {
	if !b.settings.RateVariation {
		return
	}
	updown := run.Element("operator",
		"id", "featureClockRateGammaUpDown:"+b.settings.Name,
		"spec", "UpDownOperator",
		"scaleFactor", "0.5",
		"weight", "0.3")
	updown.Element("parameter", "idref", "featureClockRateGammaShape:"+b.settings.Name, "name", "up")
	updown.Element("parameter", "idref", "featureClockRateGammaScale:"+b.settings.Name, "name", "down")
}

// AddParamLogs logs per-feature rates and, under fine-grained logging, the
// individual likelihood and prior terms.
func (b *baseModel) AddParamLogs(logger *xmltree.Node) {
	if b.ctx.FineProbs {
		for _, f := range b.features {
			logger.Element("log", "idref", "featureLikelihood:"+b.fname(f))
		}
		if b.settings.RateVariation {
			logger.Element("log", "idref", "featureClockRatePrior.s:"+b.settings.Name)
			logger.Element("log", "idref", "featureClockRateGammaScalePrior.s:"+b.settings.Name)
		}
	}
	if b.ctx.Params && b.settings.RateVariation {
		for _, f := range b.features {
			logger.Element("log", "idref", b.featureRateID(f))
		}
		logger.Element("log", "idref", "featureClockRateGammaShape:"+b.settings.Name)
		logger.Element("log", "idref", "featureClockRateGammaScale:"+b.settings.Name)
	}
}
