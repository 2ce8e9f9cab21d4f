package beastgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"phylogen/internal/classify"
	"phylogen/internal/config"
	"phylogen/internal/rawcfg"
	"phylogen/internal/xmltree"
)

func testClassification() *classify.Classification {
	chain := func(names ...string) []classify.Ancestor {
		out := make([]classify.Ancestor, len(names))
		for i, n := range names {
			out[i] = classify.Ancestor{Name: n, Code: n + "0000"}
		}
		return out
	}
	return &classify.Classification{
		Release: "4.0",
		Taxa: map[string]classify.Entry{
			"eng": {Chain: chain("Indo-European", "Germanic", "West Germanic")},
			"deu": {Chain: chain("Indo-European", "Germanic", "West Germanic")},
			"swe": {Chain: chain("Indo-European", "Germanic", "North Germanic")},
			"fra": {Chain: chain("Indo-European", "Romance")},
		},
	}
}

const standardData = "iso,f1,f2\ndeu,1,0\neng,2,0\nfra,3,1\nswe,1,1\n"

func writeDataFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// processed builds a fully resolved configuration around one mk model.
func processed(t *testing.T, extra string) *config.Config {
	t.Helper()
	yaml := fmt.Sprintf("model lexicon:\n  type: mk\n  data: %s\n%s",
		writeDataFile(t, standardData), extra)
	raw, err := rawcfg.Parse([]byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.New(raw, config.WithClassification(testClassification()))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func buildXML(t *testing.T, cfg *config.Config) string {
	t.Helper()
	b, err := New(cfg, Options{Version: "test", Now: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatal(err)
	}
	root, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return xmltree.String(root)
}

func TestBuildMinimal(t *testing.T) {
	got := buildXML(t, processed(t, ""))
	for _, want := range []string{
		`<beast`,
		`Generated by phylogen test`,
		ConfigMarker,
		`id="Tree.t:tree"`,
		`id="data_lexicon"`,
		`spec="beast.evolution.speciation.YuleModel"`,
		`spec="beast.evolution.tree.RandomTree"`,
		`spec="beast.evolution.branchratemodel.StrictClockModel"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(got, "sampleFromPrior") {
		t.Error("sampleFromPrior should be absent by default")
	}
}

func TestBuildRequiresProcessed(t *testing.T) {
	raw, err := rawcfg.Parse([]byte("model m:\n  type: mk\n  data: x.csv\n"))
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := config.New(raw)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg, Options{}); err == nil {
		t.Error("unprocessed configuration should be rejected")
	}
}

func TestSampleFromPrior(t *testing.T) {
	got := buildXML(t, processed(t, "mcmc:\n  sample_from_prior: true\n"))
	if !strings.Contains(got, `sampleFromPrior="true"`) {
		t.Error("sampleFromPrior attribute missing")
	}
}

func TestEmbedData(t *testing.T) {
	cfg := processed(t, "admin:\n  embed_data: true\n")
	got := buildXML(t, cfg)
	if !strings.Contains(got, EmbeddedMarker) {
		t.Error("embedded data marker missing")
	}
	if !strings.Contains(got, "deu,1,0") {
		t.Error("embedded file contents missing")
	}
}

func TestTreeInitStartingTree(t *testing.T) {
	got := buildXML(t, processed(t, "languages:\n  starting_tree: \"(eng,deu,fra,swe)\"\n"))
	if !strings.Contains(got, `spec="beast.util.TreeParser"`) {
		t.Error("explicit starting tree should use TreeParser")
	}
}

func TestTreeInitMonophyly(t *testing.T) {
	got := buildXML(t, processed(t, "languages:\n  monophyly: true\n"))
	if !strings.Contains(got, `spec="beast.evolution.tree.ConstrainedRandomTree"`) {
		t.Error("monophyly should use ConstrainedRandomTree")
	}
	if !strings.Contains(got, `spec="beast.math.distributions.MultiMonophyleticConstraint"`) {
		t.Error("constraint distribution missing")
	}
}

func TestTreeInitUniformCalibration(t *testing.T) {
	got := buildXML(t, processed(t, "calibration:\n  Germanic: uniform(500, 1500)\n"))
	if !strings.Contains(got, `spec="beast.evolution.tree.SimpleRandomTree"`) {
		t.Error("hard calibration bound should use SimpleRandomTree")
	}
}

func TestCalibrationNormal(t *testing.T) {
	got := buildXML(t, processed(t, "calibration:\n  Germanic: normal(3000, 200)\n"))
	if !strings.Contains(got, `id="GermanicMRCA"`) {
		t.Error("MRCA prior missing")
	}
	if !strings.Contains(got, `id="CalibrationDistribution.Germanic.mean"`) ||
		!strings.Contains(got, `id="CalibrationDistribution.Germanic.sigma"`) {
		t.Error("normal calibration needs mean and sigma children")
	}
	// The calibration set covers a strict subset of the roster, so it is a
	// fresh definition referencing the roster's taxa.
	if !strings.Contains(got, `<taxonset id="Germanic" spec="TaxonSet">`) {
		t.Error("calibration taxon set missing")
	}
	if !strings.Contains(got, `<taxon idref="deu"/>`) {
		t.Error("calibration set should reference roster taxa")
	}
}

func TestCalibrationUniformAttrs(t *testing.T) {
	got := buildXML(t, processed(t, "calibration:\n  Germanic: uniform(500, 1500)\n"))
	if !strings.Contains(got, `lower="500" upper="1500"`) {
		t.Errorf("uniform bounds should be attributes:\n%s", got)
	}
	if strings.Contains(got, "CalibrationDistribution.Germanic.") {
		t.Error("uniform calibration must not emit parameter children")
	}
}

func TestCalibrationOpenUpperBound(t *testing.T) {
	got := buildXML(t, processed(t, "calibration:\n  Germanic: \">1200\"\n"))
	if !strings.Contains(got, `upper="Infinity"`) {
		t.Error("open calibration should render an Infinity bound")
	}
}

func TestCalibrationOriginate(t *testing.T) {
	got := buildXML(t, processed(t, strings.Join([]string{
		"calibration:",
		"  Germanic: normal(3000, 200)",
		"  Germanic, originate: normal(3500, 200)",
		"",
	}, "\n")))
	if !strings.Contains(got, `id="GermanicMRCA"`) ||
		!strings.Contains(got, `id="GermanicoriginateMRCA"`) {
		t.Error("node and originate priors should coexist")
	}
	if !strings.Contains(got, `useOriginate="true"`) {
		t.Error("originate prior missing useOriginate")
	}
	// Both priors constrain the same clade: one set definition, one back
	// reference.
	if n := strings.Count(got, `<taxonset id="Germanic" `); n != 1 {
		t.Errorf("%d definitions of the Germanic set, want 1", n)
	}
	if n := strings.Count(got, `<taxonset idref="Germanic"/>`); n != 1 {
		t.Errorf("%d references to the Germanic set, want 1", n)
	}
}

func TestTaxonSetDedupAcrossLabels(t *testing.T) {
	got := buildXML(t, processed(t, strings.Join([]string{
		"language_groups:",
		"  core: eng, deu",
		"calibration:",
		"  core: normal(1000, 100)",
		"  deu, eng: normal(2000, 100)",
		"",
	}, "\n")))
	// Same membership under two labels: the second prior references the
	// first set.
	if n := strings.Count(got, `<taxonset id="core" `); n != 1 {
		t.Errorf("%d definitions of the core set, want 1", n)
	}
	if n := strings.Count(got, `<taxonset idref="core"/>`); n != 1 {
		t.Errorf("%d references to the core set, want 1", n)
	}
	if strings.Contains(got, `<taxonset id="deu__eng"`) {
		t.Error("duplicate-membership set should not get its own definition")
	}
}

func TestCalibrationUpDownOperator(t *testing.T) {
	got := buildXML(t, processed(t, "calibration:\n  Germanic: normal(3000, 200)\n"))
	if !strings.Contains(got, `id="UpDown.t:tree"`) {
		t.Error("calibrated analysis with estimated rates should get an up/down operator")
	}

	got = buildXML(t, processed(t, ""))
	if strings.Contains(got, `id="UpDown.t:tree"`) {
		t.Error("uncalibrated analysis should not scale tree against rates")
	}
}

func TestRelaxedClockTreeLog(t *testing.T) {
	cfg := processed(t, strings.Join([]string{
		"clock main:",
		"  type: relaxed",
		"model second:",
		"  type: mk",
		"  data: " + writeDataFile(t, standardData),
		"  clock: main",
		"",
	}, "\n"))
	got := buildXML(t, cfg)
	// A single relaxed clock keeps the plain treelog name but annotates
	// branches with its rates.
	if !strings.Contains(got, `id="treelog"`) {
		t.Errorf("tree log missing:\n%s", got)
	}
	if !strings.Contains(got, `branchratemodel="@RelaxedClockModel.c:main"`) {
		t.Errorf("tree log should carry the relaxed clock's rates:\n%s", got)
	}
}

func TestTwoRelaxedClocksSplitTreeLogs(t *testing.T) {
	cfg := processed(t, strings.Join([]string{
		"clock one:",
		"  type: relaxed",
		"clock two:",
		"  type: relaxed",
		"model first:",
		"  type: mk",
		"  data: " + writeDataFile(t, standardData),
		"  clock: one",
		"model second:",
		"  type: mk",
		"  data: " + writeDataFile(t, standardData),
		"  clock: two",
		"",
	}, "\n"))
	got := buildXML(t, cfg)
	if !strings.Contains(got, `id="treelog_one"`) || !strings.Contains(got, `id="treelog_two"`) {
		t.Errorf("per-clock tree logs missing:\n%s", got)
	}
	if !strings.Contains(got, "_one_rates.nex") {
		t.Error("per-clock tree log file suffix missing")
	}
}

func TestFixedTreeSkipsTreeLogs(t *testing.T) {
	got := buildXML(t, processed(t, strings.Join([]string{
		"languages:",
		"  starting_tree: \"(eng,deu,fra,swe)\"",
		"  sample_topology: false",
		"  sample_branch_lengths: false",
		"",
	}, "\n")))
	if strings.Contains(got, "treelog") {
		t.Error("fully fixed tree should emit no tree logs")
	}
}

func TestCoalescentTreePrior(t *testing.T) {
	got := buildXML(t, processed(t, "languages:\n  tree_prior: coalescent\n"))
	for _, want := range []string{
		`id="Coalescent.t:tree"`,
		`spec="ConstantPopulation"`,
		`id="popSize.t:tree"`,
		`id="PopulationSizeScaler.t:tree"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q", want)
		}
	}
	for _, reject := range []string{"YuleModel", "birthRate.t:tree"} {
		if strings.Contains(got, reject) {
			t.Errorf("coalescent document still carries %q", reject)
		}
	}
}

func TestRandomLocalClockDocument(t *testing.T) {
	cfg := processed(t, strings.Join([]string{
		"clock default:",
		"  type: random",
		"calibration:",
		"  Germanic: normal(3000, 200)",
		"",
	}, "\n"))
	got := buildXML(t, cfg)
	for _, want := range []string{
		`spec="beast.evolution.branchratemodel.RandomLocalClockModel"`,
		`id="Indicators.c:default"`,
		`spec="BitFlipOperator"`,
		`spec="beast.math.distributions.Poisson"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document missing %q", want)
		}
	}
}
