// Package report renders human-readable summaries of a processed
// analysis: a markdown report, a GeoJSON location export and a plain
// taxon list.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"phylogen/internal/config"
)

// Markdown renders the analysis report.
func Markdown(cfg *config.Config, version string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis report: %s\n\n", cfg.Admin.Basename)
	fmt.Fprintf(&b, "Generated by phylogen %s on %s.\n\n", version, now.Format("2006-01-02"))

	fmt.Fprintf(&b, "## Languages\n\n%d languages", len(cfg.Taxa))
	if cfg.Languages.SubsampleSize > 0 {
		fmt.Fprintf(&b, " (subsampled to %d)", cfg.Languages.SubsampleSize)
	}
	b.WriteString(":\n\n")
	for _, t := range cfg.Taxa {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\n")

	b.WriteString("## Models\n\n")
	b.WriteString("| name | type | substitution | features | rate variation | clock |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, m := range cfg.Models {
		clockName := m.ClockName()
		if clockName == "" {
			clockName = "default"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %t | %s |\n",
			m.Name(), m.Type(), m.SubstitutionName(), len(m.Features()),
			m.RateVariation(), clockName)
	}
	b.WriteString("\n## Clocks\n\n")
	for _, ck := range cfg.Clocks {
		fmt.Fprintf(&b, "- %s (%s, rate %s)\n", ck.Name(), ck.Kind(), rateNote(ck.EstimateRate()))
	}

	if len(cfg.Calibrations) > 0 {
		b.WriteString("\n## Calibrations\n\n")
		for _, cal := range cfg.Calibrations {
			note := ""
			if cal.Originate {
				note = ", originate"
			}
			fmt.Fprintf(&b, "- %s: %s(%g, %g)%s over %d taxa\n",
				cal.Clade, cal.Kind, cal.Param1, cal.Param2, note, len(cal.Taxa))
		}
	}

	if nwk := cfg.MonophylyNewick(); nwk != "" {
		fmt.Fprintf(&b, "\n## Monophyly constraints\n\n```\n%s\n```\n", nwk)
	}

	if ws := cfg.Warnings(); len(ws) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range ws {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

func rateNote(estimated bool) string {
	if estimated {
		return "estimated"
	}
	return "fixed"
}

// LanguageList renders the final taxon list, one per line.
func LanguageList(cfg *config.Config) string {
	return strings.Join(cfg.Taxa, "\n") + "\n"
}

type geoFeature struct {
	Type       string         `json:"type"`
	Geometry   geoGeometry    `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geoGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type geoCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

// GeoJSON exports the analysis languages as a point collection. Taxa
// without location data are skipped.
func GeoJSON(cfg *config.Config) ([]byte, error) {
	coll := geoCollection{Type: "FeatureCollection"}
	for _, t := range cfg.Taxa {
		lat, lon, ok := locationOf(cfg, t)
		if !ok {
			continue
		}
		coll.Features = append(coll.Features, geoFeature{
			Type: "Feature",
			Geometry: geoGeometry{
				Type:        "Point",
				Coordinates: [2]float64{lon, lat},
			},
			Properties: map[string]any{"name": t},
		})
	}
	return json.MarshalIndent(coll, "", "  ")
}

func locationOf(cfg *config.Config, taxon string) (lat, lon float64, ok bool) {
	if g := cfg.Geography; g != nil {
		if loc, found := g.Locations[taxon]; found {
			return loc.Lat, loc.Lon, true
		}
	}
	if cfg.Classification != nil {
		if loc, found := cfg.Classification.LocationOf(taxon); found {
			return loc.Lat, loc.Lon, true
		}
	}
	return 0, 0, false
}
