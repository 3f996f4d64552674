// Package match selects the classified records relevant to a subscriber's
// declared area preferences.
package match

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/phlwatch/digest-cli/internal/model"
)

// citywideLiteral in either preference set matches everything, same as an
// empty preference.
const citywideLiteral = "citywide"

// Citywide reports whether the preference matches all records: both sets
// empty, or either set naming the citywide literal.
func Citywide(pref model.Preference) bool {
	if len(pref.Neighborhoods) == 0 && len(pref.Districts) == 0 {
		return true
	}
	for _, n := range pref.Neighborhoods {
		if strings.EqualFold(n, citywideLiteral) {
			return true
		}
	}
	for _, d := range pref.Districts {
		if strings.EqualFold(d, citywideLiteral) {
			return true
		}
	}
	return false
}

// Match returns the records relevant to the preference, preserving input
// order. A record is relevant if the preference is citywide, OR its
// neighborhood is in the preference's neighborhood set, OR its district is
// in the district set: a union across the two dimensions, never an
// intersection. Preference names absent from the data simply never match;
// an empty result is a valid outcome meaning no relevant activity.
//
// Neither input is mutated.
func Match(pref model.Preference, records []model.ClassifiedRecord) []model.ClassifiedRecord {
	if Citywide(pref) {
		out := make([]model.ClassifiedRecord, len(records))
		copy(out, records)
		return out
	}

	fold := cases.Fold()
	neighborhoods := foldSet(fold, pref.Neighborhoods)
	districts := foldSet(fold, pref.Districts)

	var out []model.ClassifiedRecord
	for _, r := range records {
		if r.Neighborhood != "" && neighborhoods[fold.String(r.Neighborhood)] {
			out = append(out, r)
			continue
		}
		if districts[fold.String(r.District)] {
			out = append(out, r)
		}
	}
	return out
}

func foldSet(fold cases.Caser, names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		set[fold.String(n)] = true
	}
	return set
}
