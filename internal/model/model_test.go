package model

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"phylogen/internal/datafile"
	"phylogen/internal/xmltree"
)

// testData builds a fresh dataset per test; model construction mutates it.
func testData() datafile.Dataset {
	return datafile.Dataset{
		"deu": {"f1": "1", "f2": "A", "f3": "0"},
		"eng": {"f1": "2", "f2": "A", "f3": "0"},
		"fra": {"f1": "10", "f2": "B", "f3": "0"},
	}
}

func allTaxa() []string { return []string{"deu", "eng", "fra"} }

func TestNewUnknownType(t *testing.T) {
	if _, err := New(Settings{Name: "m", Type: "jukescantor", Data: testData()}, Context{}); err == nil {
		t.Error("unknown model type should fail")
	}
	if _, err := New(Settings{Name: "m", Type: "mk"}, Context{}); err == nil {
		t.Error("missing dataset should fail")
	}
}

func TestTypes(t *testing.T) {
	want := []string{"bsvs", "covarion", "mk"}
	if diff := cmp.Diff(want, Types()); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
}

func TestFeatureFilter(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"f1"}, m.Features()); diff != "" {
		t.Errorf("explicit list (-want +got):\n%s", diff)
	}

	m, err = New(Settings{Name: "m", Type: "mk", Data: testData(), Exclusions: []string{"f2"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"f1", "f3"}, m.Features()); diff != "" {
		t.Errorf("exclusions (-want +got):\n%s", diff)
	}

	m, err = New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"*"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"f1", "f2", "f3"}, m.Features()); diff != "" {
		t.Errorf("wildcard (-want +got):\n%s", diff)
	}

	if _, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"missing"}}, Context{}); err == nil {
		t.Error("empty feature set should fail")
	}
}

func TestFinaliseRemovesConstantFeature(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), RemoveConstantFeature: true}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	// f3 is "0" everywhere.
	if diff := cmp.Diff([]string{"f1", "f2"}, m.Features()); diff != "" {
		t.Errorf("features (-want +got):\n%s", diff)
	}
}

func TestFinaliseMinimumData(t *testing.T) {
	data := testData()
	data["deu"]["f4"] = "1"
	m, err := New(Settings{Name: "m", Type: "mk", Data: data, MinimumData: 50}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	// f4 is observed for one taxon of three: 33% < 50%.
	for _, f := range m.Features() {
		if f == "f4" {
			t.Errorf("f4 should be dropped, features = %v", m.Features())
		}
	}
}

func TestFinaliseEmptyDataset(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData()}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise([]string{"swe"}); err == nil {
		t.Error("no overlapping taxa should fail")
	}
}

func masterData(t *testing.T, m Model) *xmltree.Node {
	t.Helper()
	root := xmltree.NewElement("beast")
	m.AddMasterData(root)
	return root.Children[0]
}

func sequenceValue(t *testing.T, data *xmltree.Node, taxon string) string {
	t.Helper()
	for _, c := range data.Children {
		if c.Get("taxon") == taxon {
			return c.Get("value")
		}
	}
	t.Fatalf("no sequence for %s", taxon)
	return ""
}

func TestMasterDataNumericOrder(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	data := masterData(t, m)
	// f1 values sort numerically: 1, 2, 10 → codes 0, 1, 2.
	if got := sequenceValue(t, data, "fra"); got != "2" {
		t.Errorf("fra f1 encoded as %q, want 2 (10 sorts after 2)", got)
	}
	if got := sequenceValue(t, data, "deu"); got != "0" {
		t.Errorf("deu f1 encoded as %q, want 0", got)
	}
}

func TestMasterDataAscertainment(t *testing.T) {
	asc := true
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}, Ascertained: &asc}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	data := masterData(t, m)
	// Three observed values → three dummy columns ahead of the real one.
	if got := sequenceValue(t, data, "eng"); got != "0,1,2,1" {
		t.Errorf("ascertained encoding = %q, want 0,1,2,1", got)
	}
}

func TestAscertainmentDefaultsFromCalibration(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}}, Context{Calibrated: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	data := masterData(t, m)
	if got := sequenceValue(t, data, "deu"); got != "0,1,2,0" {
		t.Errorf("calibrated analysis should ascertain by default, got %q", got)
	}
}

func TestMasterDataMissingTaxonRow(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	// swe is in the analysis but absent from this model's dataset.
	if err := m.Finalise([]string{"deu", "eng", "fra", "swe"}); err != nil {
		t.Fatal(err)
	}
	data := masterData(t, m)
	if got := sequenceValue(t, data, "swe"); got != "?" {
		t.Errorf("absent taxon row = %q, want ?", got)
	}
}

func TestCovarionOneHot(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "covarion", Data: testData(), Features: []string{"f2"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	if got := m.Weights()["f2"]; got != 2 {
		t.Errorf("one-hot weight = %d, want 2", got)
	}
	data := masterData(t, m)
	if got := sequenceValue(t, data, "fra"); got != "0,1" {
		t.Errorf("fra f2=B encoded as %q, want 0,1", got)
	}
	if got := sequenceValue(t, data, "deu"); got != "1,0" {
		t.Errorf("deu f2=A encoded as %q, want 1,0", got)
	}
}

func TestCovarionPreBinarised(t *testing.T) {
	data := datafile.Dataset{
		"deu": {"f1": "0"},
		"eng": {"f1": "1"},
	}
	m, err := New(Settings{Name: "m", Type: "covarion", Data: data}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise([]string{"deu", "eng"}); err != nil {
		t.Fatal(err)
	}
	// Data that already looks binary is not recoded.
	if got := m.Weights()["f1"]; got != 1 {
		t.Errorf("binary weight = %d, want 1", got)
	}
}

func TestCovarionAscertainmentSingleColumn(t *testing.T) {
	asc := true
	m, err := New(Settings{Name: "m", Type: "covarion", Data: testData(), Features: []string{"f2"}, Ascertained: &asc}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	data := masterData(t, m)
	if got := sequenceValue(t, data, "deu"); got != "0,1,0" {
		t.Errorf("ascertained covarion encoding = %q, want 0,1,0", got)
	}
}

func TestMkUserDataTypeCodemap(t *testing.T) {
	m, err := New(Settings{Name: "m", Type: "mk", Data: testData(), Features: []string{"f1"}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	m.AddMasterData(xmltree.NewElement("beast"))
	m.SetBranchRateModel("StrictClockModel.c:default")
	like := xmltree.NewElement("distribution")
	m.AddLikelihood(like)
	got := xmltree.String(like)
	if !strings.Contains(got, `codeMap="0=0,1=1,2=2,?=0 1 2,-=0 1 2"`) {
		t.Errorf("missing code map:\n%s", got)
	}
	if !strings.Contains(got, `spec="LewisMK"`) {
		t.Errorf("missing substitution model:\n%s", got)
	}
	if !strings.Contains(got, `branchRateModel="@StrictClockModel.c:default"`) {
		t.Errorf("missing branch rate model reference:\n%s", got)
	}
}

func TestFeatureRateIDs(t *testing.T) {
	m, err := New(Settings{Name: "lex", Type: "mk", Data: testData(), RateVariation: true}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	ids := m.FeatureRateIDs()
	if len(ids) != len(m.Features()) {
		t.Fatalf("%d rate ids for %d features", len(ids), len(m.Features()))
	}
	if ids[0] != "featureClockRate:lex:f1" {
		t.Errorf("rate id = %q", ids[0])
	}

	m, err = New(Settings{Name: "lex", Type: "mk", Data: testData()}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Finalise(allTaxa()); err != nil {
		t.Fatal(err)
	}
	if got := m.FeatureRateIDs(); got != nil {
		t.Errorf("rate ids without rate variation = %v", got)
	}
}
