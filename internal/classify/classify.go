// Package classify holds the external taxonomic classification: for every
// known taxon an ordered ancestor chain (root first), plus macroarea and
// location metadata. The data is fetched once per release and cached on
// disk; everything else in the system treats it as read-only.
package classify

import (
	"sort"
	"strings"
)

// Ancestor is one step of a taxon's classification chain.
type Ancestor struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Entry is the classification record for a single taxon.
type Entry struct {
	Chain     []Ancestor `json:"chain"`
	Macroarea string     `json:"macroarea,omitempty"`
	Location  *Location  `json:"location,omitempty"`
}

// Location is a point coordinate for a taxon.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Classification is the full taxon table for one release. Lookups are
// case-insensitive on the taxon identifier.
type Classification struct {
	Release string           `json:"release"`
	Taxa    map[string]Entry `json:"taxa"`
}

// Lookup returns the entry for a taxon, if any.
func (c *Classification) Lookup(taxon string) (Entry, bool) {
	e, ok := c.Taxa[strings.ToLower(taxon)]
	return e, ok
}

// ChainNames returns the ancestor names for a taxon, root first.
// A taxon unknown to the classification yields nil.
func (c *Classification) ChainNames(taxon string) []string {
	e, ok := c.Lookup(taxon)
	if !ok {
		return nil
	}
	names := make([]string, len(e.Chain))
	for i, a := range e.Chain {
		names[i] = a.Name
	}
	return names
}

// Matches reports whether any entry of the taxon's ancestor chain matches
// name, by clade name or code. Names compare case-insensitively, like the
// family filters.
func (c *Classification) Matches(taxon, name string) bool {
	e, ok := c.Lookup(taxon)
	if !ok {
		return false
	}
	for _, a := range e.Chain {
		if strings.EqualFold(a.Name, name) || strings.EqualFold(a.Code, name) {
			return true
		}
	}
	return false
}

// CladeMembers returns all taxa in members whose ancestor chain contains
// the named clade, sorted.
func (c *Classification) CladeMembers(name string, members []string) []string {
	var out []string
	for _, t := range members {
		if c.Matches(t, name) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// MacroareaOf returns the macroarea for a taxon, or "".
func (c *Classification) MacroareaOf(taxon string) string {
	e, _ := c.Lookup(taxon)
	return e.Macroarea
}

// LocationOf returns the coordinates for a taxon, if known.
func (c *Classification) LocationOf(taxon string) (Location, bool) {
	e, ok := c.Lookup(taxon)
	if !ok || e.Location == nil {
		return Location{}, false
	}
	return *e.Location, true
}
