package media

import (
	"context"
	"crypto/md5" //nolint:gosec // Commons URL scheme, not used for security
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
)

type stubRecordFetcher struct {
	record *gbif.Occurrence
	err    error
	calls  int
}

func (f *stubRecordFetcher) GetOccurrence(_ context.Context, _ int64) (*gbif.Occurrence, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func TestRecordImages(t *testing.T) {
	t.Parallel()

	fetcher := &stubRecordFetcher{record: &gbif.Occurrence{
		Key: 42,
		Media: []gbif.MediaItem{
			{Type: "StillImage", Identifier: "https://example.org/a.jpg"},
			{Type: "StillImage", Identifier: ""},
			{Type: "StillImage", Identifier: "https://example.org/b.jpg"},
			{Type: "StillImage", Identifier: "https://example.org/c.jpg"},
		},
	}}

	urls, err := NewLookup(fetcher).RecordImages(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.org/a.jpg", "https://example.org/b.jpg"}, urls,
		"blank identifiers are skipped and the result is capped at %d", MaxImagesPerRecord)
}

func TestRecordImagesRejectsNonPositiveKeys(t *testing.T) {
	t.Parallel()

	fetcher := &stubRecordFetcher{}
	lookup := NewLookup(fetcher)

	for _, key := range []int64{0, -1} {
		_, err := lookup.RecordImages(context.Background(), key)
		require.Error(t, err, "key %d must be rejected", key)
		assert.True(t, errors.IsValidation(err))
	}
	assert.Zero(t, fetcher.calls, "invalid keys must not trigger a record fetch")
}

func TestRecordImagesPropagatesFetchErrors(t *testing.T) {
	t.Parallel()

	fetchErr := errors.Newf("record not found").Category(errors.CategoryNotFound).Build()
	fetcher := &stubRecordFetcher{err: fetchErr}

	_, err := NewLookup(fetcher).RecordImages(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestRecordImagesNoMedia(t *testing.T) {
	t.Parallel()

	fetcher := &stubRecordFetcher{record: &gbif.Occurrence{Key: 42}}
	urls, err := NewLookup(fetcher).RecordImages(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestImageURL(t *testing.T) {
	t.Parallel()

	t.Run("full URLs pass through", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "https://example.org/a.jpg", ImageURL("https://example.org/a.jpg"))
		assert.Equal(t, "http://example.org/a.jpg", ImageURL("http://example.org/a.jpg"))
	})

	t.Run("bare Commons names map to the hashed path", func(t *testing.T) {
		t.Parallel()
		sum := md5.Sum([]byte("Great_Tit.jpg")) //nolint:gosec // Commons URL scheme
		digest := hex.EncodeToString(sum[:])
		want := fmt.Sprintf("https://upload.wikimedia.org/wikipedia/commons/%s/%s/Great_Tit.jpg",
			digest[:1], digest[:2])

		assert.Equal(t, want, ImageURL("Great Tit.jpg"),
			"spaces become underscores before hashing")
	})
}
