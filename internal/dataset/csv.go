package dataset

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/karimogit/GBIF3D/internal/gbif"
)

// preferredFields is the documented column ordering for tabular exports:
// identifier, names, coordinates, date parts, taxonomy, then administrative
// fields. Keys present in the data but not listed here follow in
// lexicographic order.
var preferredFields = []string{
	"key",
	"scientificName",
	"vernacularName",
	"decimalLatitude",
	"decimalLongitude",
	"year",
	"month",
	"eventDate",
	"kingdom",
	"phylum",
	"class",
	"order",
	"family",
	"genus",
	"species",
	"iucnRedListCategory",
	"basisOfRecord",
	"countryCode",
	"datasetKey",
	"datasetName",
	"institutionCode",
	"recordedBy",
}

// ToCSV serializes records into CSV. The header row is the union of all
// keys present across the records, preferred fields first. Records lacking
// coordinates still appear; only spatial exports exclude them.
func ToCSV(records []gbif.Occurrence) (string, error) {
	rows := make([]map[string]any, 0, len(records))
	present := make(map[string]bool)

	for i := range records {
		// Round-trip through JSON so absent optional fields drop out and
		// key names match the wire format.
		data, err := json.Marshal(&records[i])
		if err != nil {
			return "", err
		}
		var row map[string]any
		if err := json.Unmarshal(data, &row); err != nil {
			return "", err
		}
		delete(row, "media")
		for k := range row {
			present[k] = true
		}
		rows = append(rows, row)
	}

	header := make([]string, 0, len(present))
	for _, field := range preferredFields {
		if present[field] {
			header = append(header, field)
			delete(present, field)
		}
	}
	remaining := make([]string, 0, len(present))
	for k := range present {
		remaining = append(remaining, k)
	}
	sort.Strings(remaining)
	header = append(header, remaining...)

	var sb strings.Builder
	writeCSVRow(&sb, header)
	for _, row := range rows {
		fields := make([]string, len(header))
		for i, k := range header {
			fields[i] = csvValue(row[k])
		}
		writeCSVRow(&sb, fields)
	}
	return sb.String(), nil
}

func writeCSVRow(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(escapeCSV(f))
	}
	sb.WriteByte('\n')
}

// escapeCSV quotes a field containing a comma, quote or newline, doubling
// internal quotes.
func escapeCSV(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// csvValue renders a decoded JSON value as a CSV cell; missing values
// render as empty fields.
func csvValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconvFormat(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func strconvFormat(f float64) string {
	// JSON numbers decode as float64; print integers without a decimal part
	if f == float64(int64(f)) {
		data, _ := json.Marshal(int64(f))
		return string(data)
	}
	data, _ := json.Marshal(f)
	return string(data)
}
