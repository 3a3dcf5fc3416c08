// Package media resolves the image URLs attached to an occurrence record.
package media

import (
	"context"
	"crypto/md5" //nolint:gosec // Commons URL scheme, not used for security
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
)

// MaxImagesPerRecord bounds how many image URLs one record lookup returns.
const MaxImagesPerRecord = 2

const commonsUploadBase = "https://upload.wikimedia.org/wikipedia/commons"

// RecordFetcher fetches one occurrence record by key.
type RecordFetcher interface {
	GetOccurrence(ctx context.Context, key int64) (*gbif.Occurrence, error)
}

// Lookup resolves image URLs for occurrence records.
type Lookup struct {
	fetcher RecordFetcher
}

// NewLookup creates an image lookup backed by the given record fetcher.
func NewLookup(fetcher RecordFetcher) *Lookup {
	return &Lookup{fetcher: fetcher}
}

// RecordImages returns up to MaxImagesPerRecord image URLs for the record.
// Only positive integer keys are valid: negative keys belong to locally
// imported records that carry no remote media.
func (l *Lookup) RecordImages(ctx context.Context, key int64) ([]string, error) {
	if key <= 0 {
		return nil, errors.Newf("invalid occurrence key: %d", key).
			Category(errors.CategoryValidation).
			Context("key", key).
			Component("media").
			Build()
	}

	record, err := l.fetcher.GetOccurrence(ctx, key)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, MaxImagesPerRecord)
	for _, item := range record.Media {
		if item.Identifier == "" {
			continue
		}
		urls = append(urls, ImageURL(item.Identifier))
		if len(urls) == MaxImagesPerRecord {
			break
		}
	}
	return urls, nil
}

// ImageURL derives a fetchable URL from a media identifier. Full URLs pass
// through; bare Wikimedia Commons file names map onto the hashed upload
// path, where the directory levels are the first hex digits of the MD5 of
// the file name.
func ImageURL(identifier string) string {
	if strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://") {
		return identifier
	}

	name := strings.ReplaceAll(identifier, " ", "_")
	sum := md5.Sum([]byte(name)) //nolint:gosec // Commons URL scheme
	digest := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s/%s/%s/%s", commonsUploadBase, digest[:1], digest[:2], name)
}
