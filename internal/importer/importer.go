// Package importer parses user-provided occurrence files (CSV, JSON, or
// ZIP-archived CSV/JSON) into records. Imported records receive descending
// negative synthetic keys so they can never collide with positive
// API-sourced keys.
package importer

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
)

// fieldAliases normalizes recognized column names to record fields. Header
// names are lower-cased with spaces and underscores stripped before lookup.
var fieldAliases = map[string]string{
	"key":              "key",
	"id":               "key",
	"gbifid":           "key",
	"occurrenceid":     "key",
	"decimallatitude":  "lat",
	"latitude":         "lat",
	"lat":              "lat",
	"decimallongitude": "lon",
	"longitude":        "lon",
	"lon":              "lon",
	"lng":              "lon",
	"long":             "lon",
	"scientificname":   "scientificName",
	"name":             "scientificName",
	"vernacularname":   "vernacularName",
	"commonname":       "vernacularName",
	"year":             "year",
	"month":            "month",
	"eventdate":        "eventDate",
	"date":             "eventDate",
	"kingdom":          "kingdom",
	"phylum":           "phylum",
	"class":            "class",
	"order":            "order",
	"family":           "family",
	"genus":            "genus",
	"species":          "species",
	"iucnredlistcategory": "iucnRedListCategory",
	"conservationstatus":  "iucnRedListCategory",
	"basisofrecord":       "basisOfRecord",
	"countrycode":         "countryCode",
	"country":             "countryCode",
	"datasetkey":          "datasetKey",
	"datasetname":         "datasetName",
	"institutioncode":     "institutionCode",
	"recordedby":          "recordedBy",
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// ParseFile interprets data as ZIP, JSON or CSV based on content sniffing
// and returns the usable records plus the next unused synthetic key. Rows
// without valid coordinates are silently dropped; an input yielding no
// usable rows is a parse error. startKey is the first synthetic key to
// assign (-1 on a fresh import set); callers thread the returned next key
// into the following call so keys stay unique across batches.
func ParseFile(name string, data []byte, startKey int64) ([]gbif.Occurrence, int64, error) {
	if startKey >= 0 {
		startKey = -1
	}
	if len(data) == 0 {
		return nil, startKey, parseError("imported file is empty", name)
	}

	if bytes.HasPrefix(data, []byte("PK")) {
		return parseZip(name, data, startKey)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return parseJSON(name, data, startKey)
	}
	return parseCSV(name, data, startKey)
}

func parseError(message, name string) error {
	return errors.Newf("%s", message).
		Category(errors.CategoryFileParsing).
		Context("file_name", name).
		Component("importer").
		Build()
}

// parseZip extracts the first CSV or JSON entry of the archive.
func parseZip(name string, data []byte, startKey int64) ([]gbif.Occurrence, int64, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, startKey, parseError("could not read ZIP archive", name)
	}

	for _, file := range reader.File {
		lower := strings.ToLower(file.Name)
		if !strings.HasSuffix(lower, ".csv") && !strings.HasSuffix(lower, ".json") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, startKey, parseError("could not open ZIP entry "+file.Name, name)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, startKey, parseError("could not read ZIP entry "+file.Name, name)
		}
		if strings.HasSuffix(lower, ".json") {
			return parseJSON(file.Name, content, startKey)
		}
		return parseCSV(file.Name, content, startKey)
	}

	return nil, startKey, parseError("ZIP archive contains no CSV or JSON entry", name)
}

// parseJSON accepts a top-level array of flat objects or a GeoJSON-style
// wrapper with a features array.
func parseJSON(name string, data []byte, startKey int64) ([]gbif.Occurrence, int64, error) {
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		var wrapper struct {
			Features []struct {
				Properties map[string]any `json:"properties"`
				Geometry   struct {
					Coordinates []float64 `json:"coordinates"`
				} `json:"geometry"`
			} `json:"features"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil || len(wrapper.Features) == 0 {
			return nil, startKey, parseError("could not interpret file as JSON occurrence data", name)
		}
		for _, feature := range wrapper.Features {
			row := feature.Properties
			if row == nil {
				row = map[string]any{}
			}
			if len(feature.Geometry.Coordinates) >= 2 {
				row["decimalLongitude"] = feature.Geometry.Coordinates[0]
				row["decimalLatitude"] = feature.Geometry.Coordinates[1]
			}
			rows = append(rows, row)
		}
	}

	records := make([]gbif.Occurrence, 0, len(rows))
	nextKey := startKey
	for _, row := range rows {
		fields := make(map[string]string, len(row))
		for k, v := range row {
			if field, ok := fieldAliases[normalizeHeader(k)]; ok {
				fields[field] = stringValue(v)
			}
		}
		if rec, ok := buildRecord(fields, &nextKey); ok {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, startKey, parseError("imported file contains no rows with valid coordinates", name)
	}
	return records, nextKey, nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func parseCSV(name string, data []byte, startKey int64) ([]gbif.Occurrence, int64, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, startKey, parseError("could not interpret file as CSV", name)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = fieldAliases[normalizeHeader(h)]
	}

	records := make([]gbif.Occurrence, 0)
	nextKey := startKey
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, startKey, parseError("malformed CSV row: "+err.Error(), name)
		}
		fields := make(map[string]string)
		for i, value := range row {
			if i < len(columns) && columns[i] != "" && value != "" {
				fields[columns[i]] = value
			}
		}
		if rec, ok := buildRecord(fields, &nextKey); ok {
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		return nil, startKey, parseError("imported file contains no rows with valid coordinates", name)
	}
	return records, nextKey, nil
}

// buildRecord assembles one record from normalized fields. Rows without
// valid coordinates are dropped. A positive numeric key in the source data
// is kept; otherwise the next descending synthetic key is assigned.
func buildRecord(fields map[string]string, nextKey *int64) (gbif.Occurrence, bool) {
	lat, latErr := strconv.ParseFloat(fields["lat"], 64)
	lon, lonErr := strconv.ParseFloat(fields["lon"], 64)
	if latErr != nil || lonErr != nil ||
		math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) ||
		lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return gbif.Occurrence{}, false
	}

	rec := gbif.Occurrence{
		DecimalLatitude:     &lat,
		DecimalLongitude:    &lon,
		ScientificName:      fields["scientificName"],
		VernacularName:      fields["vernacularName"],
		EventDate:           fields["eventDate"],
		Kingdom:             fields["kingdom"],
		Phylum:              fields["phylum"],
		Class:               fields["class"],
		Order:               fields["order"],
		Family:              fields["family"],
		Genus:               fields["genus"],
		Species:             fields["species"],
		IUCNRedListCategory: fields["iucnRedListCategory"],
		BasisOfRecord:       fields["basisOfRecord"],
		CountryCode:         fields["countryCode"],
		DatasetKey:          fields["datasetKey"],
		DatasetName:         fields["datasetName"],
		InstitutionCode:     fields["institutionCode"],
		RecordedBy:          fields["recordedBy"],
	}

	if year, err := strconv.Atoi(fields["year"]); err == nil && year > 0 {
		rec.Year = year
	}
	if month, err := strconv.Atoi(fields["month"]); err == nil && month >= 1 && month <= 12 {
		rec.Month = month
	}

	if key, err := strconv.ParseInt(fields["key"], 10, 64); err == nil && key > 0 {
		rec.Key = key
	} else {
		rec.Key = *nextKey
		*nextKey--
	}

	return rec, true
}
