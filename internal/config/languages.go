package config

import (
	"crypto/sha256"
	"sort"
	"strings"
)

// combineTaxonSets folds per-dataset taxon sets left-to-right under the
// configured overlap policy.
func combineTaxonSets(sets [][]string, policy string) (map[string]bool, error) {
	if len(sets) == 0 {
		return nil, configErrorf("languages", "", "no datasets to resolve languages from")
	}
	result := toSet(sets[0])
	for _, s := range sets[1:] {
		next := toSet(s)
		switch policy {
		case "union":
			for t := range next {
				result[t] = true
			}
		case "intersection":
			for t := range result {
				if !next[t] {
					delete(result, t)
				}
			}
		case "equality":
			if !setsEqual(result, next) {
				return nil, configErrorf("languages", "overlap",
					"datasets disagree on their language sets under the equality policy")
			}
		default:
			return nil, configErrorf("languages", "overlap", "unknown policy %q", policy)
		}
	}
	return result, nil
}

func toSet(taxa []string) map[string]bool {
	s := make(map[string]bool, len(taxa))
	for _, t := range taxa {
		s[t] = true
	}
	return s
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}

// resolveLanguages computes the final sorted taxon list from the models'
// datasets and the language-selection settings.
func (c *Config) resolveLanguages() ([]string, error) {
	sets := make([][]string, 0, len(c.Models))
	for _, m := range c.Models {
		sets = append(sets, m.Taxa())
	}
	result, err := combineTaxonSets(sets, c.Languages.Overlap)
	if err != nil {
		return nil, err
	}

	if len(c.Languages.Languages) > 0 {
		keep := map[string]bool{}
		for _, want := range c.Languages.Languages {
			for t := range result {
				if c.Classification.Matches(t, want) || strings.EqualFold(t, want) {
					keep[t] = true
				}
			}
		}
		result = keep
	}

	if len(c.Languages.Families) > 0 || len(c.Languages.Macroareas) > 0 {
		for t := range result {
			if !c.allowedByFilters(t) {
				delete(result, t)
			}
		}
	}

	for _, excl := range c.Languages.Exclusions {
		for t := range result {
			if strings.EqualFold(t, excl) {
				delete(result, t)
			}
		}
	}

	taxa := make([]string, 0, len(result))
	for t := range result {
		taxa = append(taxa, t)
	}
	sort.Strings(taxa)

	if k := int(c.Languages.SubsampleSize); k > 0 && k < len(taxa) {
		taxa = subsample(taxa, k)
		c.log.Info("subsampled languages", "kept", k)
	}
	if len(taxa) == 0 {
		return nil, configErrorf("languages", "", "no languages left after filtering")
	}
	return taxa, nil
}

// allowedByFilters reports whether a taxon's ancestor chain or macroarea
// matches any requested family/macroarea.
func (c *Config) allowedByFilters(taxon string) bool {
	for _, fam := range c.Languages.Families {
		for _, anc := range c.Classification.ChainNames(taxon) {
			if strings.EqualFold(anc, fam) {
				return true
			}
		}
	}
	area := c.Classification.MacroareaOf(taxon)
	for _, want := range c.Languages.Macroareas {
		if strings.EqualFold(area, want) {
			return true
		}
	}
	return false
}

// subsample keeps the k taxa with the smallest identifier digests. The
// digest ranking is stable across runs and platforms, and uncorrelated
// with alphabetical order, so repeated runs agree while the pick stays
// unbiased.
func subsample(taxa []string, k int) []string {
	type ranked struct {
		taxon  string
		digest [sha256.Size]byte
	}
	rs := make([]ranked, len(taxa))
	for i, t := range taxa {
		rs[i] = ranked{taxon: t, digest: sha256.Sum256([]byte(t))}
	}
	sort.Slice(rs, func(i, j int) bool {
		for b := 0; b < sha256.Size; b++ {
			if rs[i].digest[b] != rs[j].digest[b] {
				return rs[i].digest[b] < rs[j].digest[b]
			}
		}
		return rs[i].taxon < rs[j].taxon
	})
	out := make([]string, 0, k)
	for _, r := range rs[:k] {
		out = append(out, r.taxon)
	}
	sort.Strings(out)
	return out
}
