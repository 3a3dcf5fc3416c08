package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karimogit/GBIF3D/internal/conf"
	"github.com/karimogit/GBIF3D/internal/datastore"
	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/media"
	"github.com/karimogit/GBIF3D/internal/places"
)

// stubOccurrenceService implements OccurrenceService with canned responses.
type stubOccurrenceService struct {
	aggregate   *gbif.Aggregate
	fetchErr    error
	lastFilter  *gbif.FilterSet
	lastMax     int
	suggestions []gbif.SpeciesSuggestion
	record      *gbif.Occurrence
}

func (s *stubOccurrenceService) Search(_ context.Context, filter *gbif.FilterSet) (*gbif.SearchResult, error) {
	s.lastFilter = filter
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return &gbif.SearchResult{Results: s.aggregate.Records, Count: s.aggregate.Count, EndOfRecords: true}, nil
}

func (s *stubOccurrenceService) FetchUpTo(_ context.Context, filter *gbif.FilterSet, maxTotal int) (*gbif.Aggregate, error) {
	s.lastFilter = filter
	s.lastMax = maxTotal
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.aggregate, nil
}

func (s *stubOccurrenceService) SuggestSpecies(_ context.Context, _ string, _ int) ([]gbif.SpeciesSuggestion, error) {
	return s.suggestions, nil
}

func (s *stubOccurrenceService) SearchSpecies(_ context.Context, _ string, _ bool, _ int) ([]gbif.SpeciesSuggestion, error) {
	return s.suggestions, nil
}

func (s *stubOccurrenceService) GetOccurrence(_ context.Context, key int64) (*gbif.Occurrence, error) {
	if s.record == nil {
		return nil, errors.Newf("occurrence %d not found", key).
			Category(errors.CategoryNotFound).Build()
	}
	return s.record, nil
}

type stubPlaceService struct {
	results []places.Place
	err     error
}

func (s *stubPlaceService) Search(_ context.Context, _ string, _ int) ([]places.Place, error) {
	return s.results, s.err
}

func newTestController(t *testing.T, gbifStub *stubOccurrenceService, placeStub *stubPlaceService) *Controller {
	t.Helper()

	if gbifStub == nil {
		gbifStub = &stubOccurrenceService{aggregate: &gbif.Aggregate{Records: []gbif.Occurrence{}}}
	}
	if placeStub == nil {
		placeStub = &stubPlaceService{}
	}

	store, err := datastore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	settings := &conf.Settings{}
	settings.Server.CORSOrigin = "*"

	controller := New(settings, gbifStub, placeStub, media.NewLookup(gbifStub), store)
	t.Cleanup(controller.Close)
	return controller
}

func doRequest(c *Controller, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func TestSearchOccurrencesRequiresTaxonFilter(t *testing.T) {
	c := newTestController(t, nil, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "taxonKey")
}

func TestSearchOccurrences(t *testing.T) {
	stub := &stubOccurrenceService{aggregate: &gbif.Aggregate{
		Records: []gbif.Occurrence{{Key: 1, ScientificName: "Parus major"}},
		Count:   1,
	}}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet,
		"/api/v1/occurrences?taxonKey=212&bbox=10,58,20,62&max=500", nil))

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var agg gbif.Aggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	require.Len(t, agg.Records, 1)
	assert.Equal(t, "Parus major", agg.Records[0].ScientificName)

	require.NotNil(t, stub.lastFilter)
	assert.Equal(t, int64(212), stub.lastFilter.TaxonKey, "single taxonKey collapses to the scalar field")
	assert.Empty(t, stub.lastFilter.TaxonKeys)
	assert.Equal(t, "POLYGON((10 58,10 62,20 62,20 58,10 58))", stub.lastFilter.Geometry,
		"bbox parameter becomes the wire polygon")
	assert.Equal(t, 500, stub.lastMax)
}

func TestSearchOccurrencesConfiguredCeiling(t *testing.T) {
	stub := &stubOccurrenceService{aggregate: &gbif.Aggregate{Records: []gbif.Occurrence{}}}
	c := newTestController(t, stub, nil)
	c.Settings.Fetch.MaxTotal = 200

	rec := doRequest(c, httptest.NewRequest(http.MethodGet,
		"/api/v1/occurrences?taxonKey=212&max=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200, stub.lastMax, "requested max must be capped at the configured ceiling")

	t.Run("default target is capped too", func(t *testing.T) {
		c.Settings.Fetch.MaxTotal = 50
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences?taxonKey=212", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 50, stub.lastMax)
	})
}

func TestSearchOccurrencesMultipleTaxa(t *testing.T) {
	stub := &stubOccurrenceService{aggregate: &gbif.Aggregate{Records: []gbif.Occurrence{}}}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet,
		"/api/v1/occurrences?taxonKey=212&taxonKey=797", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{212, 797}, stub.lastFilter.TaxonKeys)
	assert.Zero(t, stub.lastFilter.TaxonKey)
}

func TestSearchOccurrencesInvalidParameters(t *testing.T) {
	c := newTestController(t, nil, nil)

	tests := []struct {
		name string
		url  string
	}{
		{"non-numeric taxonKey", "/api/v1/occurrences?taxonKey=abc"},
		{"negative taxonKey", "/api/v1/occurrences?taxonKey=-5"},
		{"short bbox", "/api/v1/occurrences?taxonKey=212&bbox=10,58,20"},
		{"non-numeric bbox", "/api/v1/occurrences?taxonKey=212&bbox=10,58,20,north"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(c, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchOccurrencesRateLimitMapsTo429(t *testing.T) {
	stub := &stubOccurrenceService{fetchErr: errors.Newf("GBIF API rate limited (status 429)").
		Category(errors.CategoryRateLimit).Build()}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences?taxonKey=212", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestSearchOccurrencesUpstreamFailureMapsTo502(t *testing.T) {
	stub := &stubOccurrenceService{fetchErr: errors.Newf("GBIF API error (status 500)").
		Category(errors.CategoryNetwork).Build()}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences?taxonKey=212", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSuggestSpecies(t *testing.T) {
	stub := &stubOccurrenceService{
		aggregate:   &gbif.Aggregate{},
		suggestions: []gbif.SpeciesSuggestion{{Key: 2492010, CanonicalName: "Parus major"}},
	}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/species/suggest?q=parus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions []gbif.SpeciesSuggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Parus major", suggestions[0].CanonicalName)
}

func TestSearchPlaces(t *testing.T) {
	placeStub := &stubPlaceService{results: []places.Place{{ID: "1", Name: "Helsinki"}}}
	c := newTestController(t, nil, placeStub)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/places/search?q=helsinki", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var results []places.Place
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Helsinki", results[0].Name)
}

func TestRecordImages(t *testing.T) {
	stub := &stubOccurrenceService{
		aggregate: &gbif.Aggregate{},
		record: &gbif.Occurrence{Key: 42, Media: []gbif.MediaItem{
			{Identifier: "https://example.org/a.jpg"},
		}},
	}
	c := newTestController(t, stub, nil)

	t.Run("valid key", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences/42/images", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var payload struct {
			Key    int64    `json:"key"`
			Images []string `json:"images"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, int64(42), payload.Key)
		assert.Equal(t, []string{"https://example.org/a.jpg"}, payload.Images)
	})

	t.Run("negative key", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences/-1/images", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "imported records carry no remote media")
	})

	t.Run("non-numeric key", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences/abc/images", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func multipartUpload(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestImportLifecycle(t *testing.T) {
	c := newTestController(t, nil, nil)

	body, contentType := multipartUpload(t, "file", "upload.csv",
		"scientificName,lat,lon,year\nParus major,60.17,24.94,2020\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := doRequest(c, req)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var result struct {
		Imported int               `json:"imported"`
		Total    int               `json:"total"`
		Records  []gbif.Occurrence `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(-1), result.Records[0].Key, "imported records get synthetic negative keys")

	t.Run("imported records appear in exports", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/export/csv", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Parus major")
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "occurrences.csv")
	})

	t.Run("clear drops the imported set", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/import", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/export/csv", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "Parus major")
	})
}

func TestImportKeysUniqueAcrossUploads(t *testing.T) {
	c := newTestController(t, nil, nil)

	upload := func(name, content string) []gbif.Occurrence {
		t.Helper()
		body, contentType := multipartUpload(t, "file", name, content)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/import", body)
		req.Header.Set(echo.HeaderContentType, contentType)

		rec := doRequest(c, req)
		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

		var result struct {
			Records []gbif.Occurrence `json:"records"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		return result.Records
	}

	first := upload("first.csv",
		"scientificName,lat,lon\nParus major,60.17,24.94\nPica pica,59.33,18.07\n")
	second := upload("second.csv",
		"scientificName,lat,lon\nCorvus corax,62.0,26.0\n")

	require.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.Equal(t, int64(-3), second[0].Key, "second upload continues the synthetic key sequence")

	seen := map[int64]bool{}
	for _, rec := range append(first, second...) {
		assert.False(t, seen[rec.Key], "key %d assigned twice across uploads", rec.Key)
		seen[rec.Key] = true
	}

	t.Run("clear restarts the numbering", func(t *testing.T) {
		rec := doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/import", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		fresh := upload("third.csv", "scientificName,lat,lon\nLoxia curvirostra,63.0,27.0\n")
		require.Len(t, fresh, 1)
		assert.Equal(t, int64(-1), fresh[0].Key)
	})
}

func TestImportRejectsGarbage(t *testing.T) {
	c := newTestController(t, nil, nil)

	body, contentType := multipartUpload(t, "file", "upload.csv", "lat,lon\nbad,data\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := doRequest(c, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestImportRequiresFileField(t *testing.T) {
	c := newTestController(t, nil, nil)

	body, contentType := multipartUpload(t, "wrong", "upload.csv", "lat,lon\n60,24\n")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", body)
	req.Header.Set(echo.HeaderContentType, contentType)

	rec := doRequest(c, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportGeoJSON(t *testing.T) {
	lat, lon := 60.17, 24.94
	stub := &stubOccurrenceService{aggregate: &gbif.Aggregate{
		Records: []gbif.Occurrence{
			{Key: 1, DecimalLatitude: &lat, DecimalLongitude: &lon},
			{Key: 2}, // no coordinates, excluded from the spatial export
		},
	}}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/export/geojson?taxonKey=212", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "occurrences.geojson")

	var collection struct {
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &collection))
	assert.Len(t, collection.Features, 1)
}

func TestSpeciesReport(t *testing.T) {
	stub := &stubOccurrenceService{aggregate: &gbif.Aggregate{
		Records: []gbif.Occurrence{
			{ScientificName: "Parus major", Year: 2020},
			{ScientificName: "Parus major", Year: 2021},
			{ScientificName: "Pica pica", Year: 2020},
		},
	}}
	c := newTestController(t, stub, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/report/species?taxonKey=212", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
		Years string `json:"years"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, "Parus major", summaries[0].Name)
	assert.Equal(t, 2, summaries[0].Count)
	assert.Equal(t, "2020-2021", summaries[0].Years)
}

func TestFavoritesEndpoints(t *testing.T) {
	c := newTestController(t, nil, nil)

	payload := `{"name":"Southern Finland","west":20,"south":59,"east":31,"north":62}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/regions/favorites", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, "application/json")

	rec := doRequest(c, req)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	var created datastore.FavoriteRegion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID, "missing id is assigned on save")

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/regions/favorites", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []datastore.FavoriteRegion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "Southern Finland", listed[0].Name)

	rec = doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/regions/favorites/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/regions/favorites", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)
}

func TestSavedOccurrenceEndpoints(t *testing.T) {
	c := newTestController(t, nil, nil)

	payload := `{"key":42,"scientificName":"Parus major"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/occurrences/saved", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, "application/json")

	rec := doRequest(c, req)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences/saved", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var records []gbif.Occurrence
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, int64(42), records[0].Key)

	rec = doRequest(c, httptest.NewRequest(http.MethodDelete, "/api/v1/occurrences/saved/42", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/occurrences/saved", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Empty(t, records)
}

func TestViewPreferencesEndpoints(t *testing.T) {
	c := newTestController(t, nil, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/view", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var prefs datastore.ViewPreferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	assert.Equal(t, "3d", prefs.SceneMode, "defaults before first save")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/preferences/view",
		strings.NewReader(`{"sceneMode":"2d","baseMap":"terrain"}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec = doRequest(c, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/preferences/view", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	assert.Equal(t, "2d", prefs.SceneMode)
	assert.Equal(t, "terrain", prefs.BaseMap)
}

func TestHealth(t *testing.T) {
	c := newTestController(t, nil, nil)

	rec := doRequest(c, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
