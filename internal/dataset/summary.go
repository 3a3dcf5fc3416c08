package dataset

import (
	"sort"
	"strconv"

	"github.com/karimogit/GBIF3D/internal/gbif"
)

// Caps on the distinct-value sets accumulated per species, keeping report
// rows bounded regardless of record volume.
const (
	maxSummaryCountries = 5
	maxSummaryBases     = 3
)

// SpeciesSummary is one row of the species report: all records grouped
// under one species key.
type SpeciesSummary struct {
	Name               string     `json:"name"`
	Count              int        `json:"count"`
	ConservationStatus string     `json:"conservationStatus,omitempty"`
	Years              string     `json:"years,omitempty"`
	Countries          []string   `json:"countries,omitempty"`
	ExampleCoordinate  *[2]float64 `json:"exampleCoordinate,omitempty"`
	BasesOfRecord      []string   `json:"basesOfRecord,omitempty"`
}

// speciesKey groups a record under its scientific name, falling back to the
// species then genus field, then a literal "Unknown".
func speciesKey(o *gbif.Occurrence) string {
	switch {
	case o.ScientificName != "":
		return o.ScientificName
	case o.Species != "":
		return o.Species
	case o.Genus != "":
		return o.Genus
	default:
		return "Unknown"
	}
}

type summaryAccumulator struct {
	summary  SpeciesSummary
	minYear  int
	maxYear  int
	countrySet map[string]bool
	basisSet   map[string]bool
}

// SummarizeSpecies aggregates records into per-species report rows sorted
// descending by occurrence count (name ascending as tiebreak, so output is
// deterministic).
func SummarizeSpecies(records []gbif.Occurrence) []SpeciesSummary {
	groups := make(map[string]*summaryAccumulator)
	order := make([]string, 0)

	for i := range records {
		rec := &records[i]
		key := speciesKey(rec)
		acc, ok := groups[key]
		if !ok {
			acc = &summaryAccumulator{
				summary:    SpeciesSummary{Name: key},
				countrySet: make(map[string]bool),
				basisSet:   make(map[string]bool),
			}
			groups[key] = acc
			order = append(order, key)
		}

		acc.summary.Count++

		if acc.summary.ConservationStatus == "" && rec.IUCNRedListCategory != "" {
			acc.summary.ConservationStatus = rec.IUCNRedListCategory
		}

		if year := DerivedYear(rec); year > 0 {
			if acc.minYear == 0 || year < acc.minYear {
				acc.minYear = year
			}
			if year > acc.maxYear {
				acc.maxYear = year
			}
		}

		if rec.CountryCode != "" && !acc.countrySet[rec.CountryCode] &&
			len(acc.summary.Countries) < maxSummaryCountries {
			acc.countrySet[rec.CountryCode] = true
			acc.summary.Countries = append(acc.summary.Countries, rec.CountryCode)
		}

		if rec.BasisOfRecord != "" && !acc.basisSet[rec.BasisOfRecord] &&
			len(acc.summary.BasesOfRecord) < maxSummaryBases {
			acc.basisSet[rec.BasisOfRecord] = true
			acc.summary.BasesOfRecord = append(acc.summary.BasesOfRecord, rec.BasisOfRecord)
		}

		if acc.summary.ExampleCoordinate == nil && rec.HasCoordinates() {
			acc.summary.ExampleCoordinate = &[2]float64{*rec.DecimalLatitude, *rec.DecimalLongitude}
		}
	}

	summaries := make([]SpeciesSummary, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		acc.summary.Years = yearRange(acc.minYear, acc.maxYear)
		summaries = append(summaries, acc.summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Count != summaries[j].Count {
			return summaries[i].Count > summaries[j].Count
		}
		return summaries[i].Name < summaries[j].Name
	})

	return summaries
}

// yearRange renders a single year or a "min-max" range.
func yearRange(minYear, maxYear int) string {
	switch {
	case minYear == 0:
		return ""
	case minYear == maxYear:
		return strconv.Itoa(minYear)
	default:
		return strconv.Itoa(minYear) + "-" + strconv.Itoa(maxYear)
	}
}
