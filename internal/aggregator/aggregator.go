// Package aggregator builds each site's change set by unioning the
// generic tables every site receives with that site's own rows from each
// site-dependent table.
package aggregator

import "github.com/ntchinda/posync/internal/model"

// Build returns the per-site change sets for the given sites, combining
// genericChanges (already read once, shared by every site) with
// siteChanges (keyed by site, already filtered to that site's rows).
func Build(sites []string, genericChanges []model.TableChanges, siteChanges map[string][]model.TableChanges) []model.ChangeSet {
	sets := make([]model.ChangeSet, 0, len(sites))
	for _, site := range sites {
		tables := make([]model.TableChanges, 0, len(genericChanges)+len(siteChanges[site]))
		tables = append(tables, genericChanges...)
		tables = append(tables, siteChanges[site]...)
		sets = append(sets, model.ChangeSet{Site: site, Tables: tables})
	}
	return sets
}

// HasChanges reports whether a change set has any rows at all, the
// condition posync uses to decide whether a site's tick produces an
// artifact or is skipped with a "no changes" log line.
func HasChanges(cs model.ChangeSet) bool {
	return cs.TotalRows() > 0
}
