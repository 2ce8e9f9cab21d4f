package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"phylogen/internal/xmltree"
)

func writeLocationFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadLocationFile(t *testing.T) {
	path := writeLocationFile(t, "eng,52.0,0.0\ndeu,51.0,10.0\n")
	got, err := ReadLocationFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]Location{
		"eng": {Lat: 52.0, Lon: 0.0},
		"deu": {Lat: 51.0, Lon: 10.0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLocationFileSkipsHeaderAndComments(t *testing.T) {
	path := writeLocationFile(t, "taxon,lat,lon\n# a note\neng,52.0,0.0\n")
	got, err := ReadLocationFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["eng"].Lat != 52.0 {
		t.Errorf("unexpected locations: %v", got)
	}
}

func TestReadLocationFileTabs(t *testing.T) {
	path := writeLocationFile(t, "eng\t52.0\t0.0\n")
	got, err := ReadLocationFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got["eng"].Lon != 0.0 || got["eng"].Lat != 52.0 {
		t.Errorf("unexpected locations: %v", got)
	}
}

func TestReadLocationFileBadCoordinates(t *testing.T) {
	path := writeLocationFile(t, "eng,52.0,0.0\ndeu,north,east\n")
	if _, err := ReadLocationFile(path); err == nil {
		t.Error("bad coordinates past the header should fail")
	}
}

func TestFinalise(t *testing.T) {
	m := &Model{Locations: map[string]Location{
		"eng": {Lat: 52.0},
		"deu": {Lat: 51.0},
	}}
	missing := m.Finalise([]string{"swe", "eng", "deu"})
	if diff := cmp.Diff([]string{"swe"}, missing); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"deu", "eng"}, m.Taxa); diff != "" {
		t.Errorf("taxa (-want +got):\n%s", diff)
	}
}

func TestFragments(t *testing.T) {
	m := &Model{
		Locations: map[string]Location{"eng": {Lat: 52.0, Lon: 0.5}, "deu": {Lat: 51.0, Lon: 10.0}},
		Points:    map[string][]string{"Germanic": {"deu", "eng"}},
	}
	m.Finalise([]string{"deu", "eng"})

	root := xmltree.NewElement("beast")
	m.AddData(root)
	got := xmltree.String(root)
	if !strings.Contains(got, `spec="sphericalGeo.AlignmentFromTraitMap"`) {
		t.Errorf("trait alignment missing:\n%s", got)
	}
	// 2 taxa: 2*(2n-1) = 6 location dimensions.
	if !strings.Contains(got, `dimension="6"`) {
		t.Errorf("location parameter dimension wrong:\n%s", got)
	}
	if !strings.Contains(got, "deu=51 10") {
		t.Errorf("trait map missing coordinates:\n%s", got)
	}

	run := xmltree.NewElement("run")
	m.AddSamplingPoints(run, func(name string, members []string) *xmltree.Node {
		set := xmltree.NewElement("taxonset", "id", xmltree.ValidID(name))
		for _, t := range members {
			set.Element("taxon", "idref", t)
		}
		return set
	})
	got = xmltree.String(run)
	if !strings.Contains(got, `id="geoPrior_Germanic"`) {
		t.Errorf("sampling-point prior missing:\n%s", got)
	}

	like := xmltree.NewElement("distribution")
	m.AddLikelihood(like, "StrictClockModel.c:geo")
	got = xmltree.String(like)
	if !strings.Contains(got, `branchRateModel="@StrictClockModel.c:geo"`) {
		t.Errorf("likelihood missing clock reference:\n%s", got)
	}
	if !strings.Contains(got, `<geoprior idref="geoPrior_Germanic"/>`) {
		t.Errorf("likelihood missing geoprior reference:\n%s", got)
	}

	ops := xmltree.NewElement("run")
	m.AddOperators(ops)
	got = xmltree.String(ops)
	if !strings.Contains(got, `id="locationSampler"`) {
		t.Errorf("location sampler missing with sampling points:\n%s", got)
	}
}
