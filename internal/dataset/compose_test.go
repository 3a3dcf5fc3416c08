package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/karimogit/GBIF3D/internal/gbif"
)

func TestDerivedYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record gbif.Occurrence
		want   int
	}{
		{"structured field wins", gbif.Occurrence{Year: 2019, EventDate: "2005-06-01"}, 2019},
		{"full date fallback", gbif.Occurrence{EventDate: "2005-06-01"}, 2005},
		{"year-month fallback", gbif.Occurrence{EventDate: "2005-06"}, 2005},
		{"year-only fallback", gbif.Occurrence{EventDate: "2005"}, 2005},
		{"no data", gbif.Occurrence{}, 0},
		{"garbage date", gbif.Occurrence{EventDate: "unknown"}, 0},
		{"short date", gbif.Occurrence{EventDate: "99"}, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DerivedYear(&tt.record))
		})
	}
}

func TestDerivedMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record gbif.Occurrence
		want   int
	}{
		{"structured field wins", gbif.Occurrence{Month: 3, EventDate: "2005-06-01"}, 3},
		{"full date fallback", gbif.Occurrence{EventDate: "2005-06-01"}, 6},
		{"year-month fallback", gbif.Occurrence{EventDate: "2005-06"}, 6},
		{"year-only yields no month", gbif.Occurrence{EventDate: "2005"}, 0},
		{"structured month out of range", gbif.Occurrence{Month: 13}, 0},
		{"date month out of range", gbif.Occurrence{EventDate: "2005-17"}, 0},
		{"no data", gbif.Occurrence{}, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DerivedMonth(&tt.record))
		})
	}
}

func TestMergedView(t *testing.T) {
	t.Parallel()

	api := []gbif.Occurrence{
		{Key: 1, Year: 2020, Month: 5},
		{Key: 2, Year: 2020}, // month unknown
		{Key: 3, Year: 2019, Month: 5},
	}
	imported := []gbif.Occurrence{
		{Key: -1, EventDate: "2020-05-10"},
		{Key: -2, EventDate: "2020"}, // year-only import
	}

	t.Run("no filter keeps everything in order", func(t *testing.T) {
		t.Parallel()
		merged := MergedView(api, imported, 0, 0)
		keys := recordKeys(merged)
		assert.Equal(t, []int64{1, 2, 3, -1, -2}, keys, "API records precede imports")
	})

	t.Run("year filter keeps month-less records", func(t *testing.T) {
		t.Parallel()
		merged := MergedView(api, imported, 2020, 0)
		assert.Equal(t, []int64{1, 2, -1, -2}, recordKeys(merged),
			"records without month data stay under a year-only filter")
	})

	t.Run("month filter excludes month-less records", func(t *testing.T) {
		t.Parallel()
		merged := MergedView(api, imported, 2020, 5)
		assert.Equal(t, []int64{1, -1}, recordKeys(merged),
			"records without month data are excluded by a month filter")
	})

	t.Run("month without matching year yields nothing", func(t *testing.T) {
		t.Parallel()
		merged := MergedView(api, imported, 2018, 5)
		assert.Empty(t, merged)
	})
}

func recordKeys(records []gbif.Occurrence) []int64 {
	keys := make([]int64, len(records))
	for i := range records {
		keys[i] = records[i].Key
	}
	return keys
}
