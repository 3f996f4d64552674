package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlwatch/digest-cli/internal/model"
)

func record(id, neighborhood, district string) model.ClassifiedRecord {
	return model.ClassifiedRecord{
		RawRecord:    model.RawRecord{ID: id},
		Neighborhood: neighborhood,
		District:     district,
	}
}

func ids(records []model.ClassifiedRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestMatch_CitywideReturnsEverythingInOrder(t *testing.T) {
	records := []model.ClassifiedRecord{
		record("a", "Fishtown", "1"),
		record("b", "", "5"),
		record("c", "Point Breeze", model.DistrictUnknown),
	}

	got := Match(model.Preference{}, records)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))

	got = Match(model.Preference{Neighborhoods: []string{"Citywide"}}, records)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestMatch_UnionSemantics(t *testing.T) {
	// A subscriber choosing a neighborhood and a district receives the
	// union of both, not the intersection.
	records := []model.ClassifiedRecord{
		record("fishtown", "Fishtown", "5"),
		record("district1", "Society Hill", "1"),
		record("unrelated", "Overbrook", "4"),
	}

	pref := model.Preference{
		Neighborhoods: []string{"Fishtown"},
		Districts:     []string{"1"},
	}
	got := Match(pref, records)
	assert.Equal(t, []string{"fishtown", "district1"}, ids(got))
}

func TestMatch_CaseFolding(t *testing.T) {
	records := []model.ClassifiedRecord{
		record("a", "Fishtown", "1"),
	}
	got := Match(model.Preference{Neighborhoods: []string{"FISHTOWN"}}, records)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestMatch_UnknownNamesNeverMatch(t *testing.T) {
	// A preference naming an area absent from the boundary set is a
	// subscriber-data hygiene problem, not a crash.
	records := []model.ClassifiedRecord{
		record("a", "Fishtown", "1"),
	}
	got := Match(model.Preference{Neighborhoods: []string{"Atlantis"}}, records)
	assert.Empty(t, got)
}

func TestMatch_EmptyResultIsValid(t *testing.T) {
	got := Match(model.Preference{Districts: []string{"9"}}, nil)
	assert.Empty(t, got)
}

func TestMatch_UnassignedNeighborhoodOnlyMatchesDistrict(t *testing.T) {
	records := []model.ClassifiedRecord{
		record("a", "", "2"),
	}

	got := Match(model.Preference{Neighborhoods: []string{"Fishtown"}}, records)
	assert.Empty(t, got)

	got = Match(model.Preference{Districts: []string{"2"}}, records)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestMatch_DoesNotMutateInputs(t *testing.T) {
	records := []model.ClassifiedRecord{
		record("a", "Fishtown", "1"),
		record("b", "Overbrook", "4"),
	}
	pref := model.Preference{Neighborhoods: []string{"Fishtown"}}

	got := Match(pref, records)
	require.Len(t, got, 1)
	got[0].ID = "mutated"

	assert.Equal(t, "a", records[0].ID)
	assert.Equal(t, []string{"Fishtown"}, pref.Neighborhoods)
}

func TestCitywide(t *testing.T) {
	tests := []struct {
		name string
		pref model.Preference
		want bool
	}{
		{"both empty", model.Preference{}, true},
		{"literal in neighborhoods", model.Preference{Neighborhoods: []string{"citywide"}}, true},
		{"literal in districts", model.Preference{Districts: []string{"CITYWIDE"}}, true},
		{"specific neighborhood", model.Preference{Neighborhoods: []string{"Fishtown"}}, false},
		{"specific district", model.Preference{Districts: []string{"1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Citywide(tt.pref))
		})
	}
}
