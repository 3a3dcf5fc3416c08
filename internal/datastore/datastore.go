// Package datastore persists the small user state that survives reloads:
// favorite named regions, saved occurrence records and view preferences.
package datastore

import (
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/geo"
	"github.com/karimogit/GBIF3D/internal/logging"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "datastore.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, _, err = logging.NewFileLogger(logFilePath, "datastore", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize datastore file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "datastore")
	}
}

// FavoriteRegion is a named bounds rectangle saved by the user.
type FavoriteRegion struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	West      float64   `json:"west"`
	South     float64   `json:"south"`
	East      float64   `json:"east"`
	North     float64   `json:"north"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bounds returns the favorite's extent as geo bounds.
func (f *FavoriteRegion) Bounds() geo.Bounds {
	return geo.Bounds{West: f.West, South: f.South, East: f.East, North: f.North}
}

// SavedOccurrence stores one saved record as a JSON blob keyed by the
// occurrence key.
type SavedOccurrence struct {
	Key     int64     `gorm:"primaryKey" json:"key"`
	Record  string    `json:"-"`
	SavedAt time.Time `json:"savedAt"`
}

// ViewPreferences is the single-row last-used view configuration.
type ViewPreferences struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SceneMode string    `json:"sceneMode"`
	BaseMap   string    `json:"baseMap"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQLite database holding the persisted user state.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the datastore at the given path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Newf("failed to open datastore at %s: %w", path, err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	if err := db.AutoMigrate(&FavoriteRegion{}, &SavedOccurrence{}, &ViewPreferences{}); err != nil {
		return nil, errors.Newf("failed to migrate datastore schema: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}

	logger.Info("datastore opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dbError(op string, err error) error {
	return errors.Newf("datastore %s failed: %w", op, err).
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Component("datastore").
		Build()
}

// ListFavorites returns all favorite regions, oldest first. Rows with
// implausible bounds are discarded rather than surfaced.
func (s *Store) ListFavorites() ([]FavoriteRegion, error) {
	var favorites []FavoriteRegion
	if err := s.db.Order("created_at").Find(&favorites).Error; err != nil {
		return nil, dbError("list favorites", err)
	}

	valid := favorites[:0]
	for _, fav := range favorites {
		if fav.Name == "" || !fav.Bounds().Valid() {
			logger.Warn("discarding malformed favorite region", "id", fav.ID)
			continue
		}
		valid = append(valid, fav)
	}
	return valid, nil
}

// SaveFavorite inserts or replaces a favorite region.
func (s *Store) SaveFavorite(fav *FavoriteRegion) error {
	if fav.ID == "" || fav.Name == "" {
		return errors.Newf("favorite region requires id and name").
			Category(errors.CategoryValidation).
			Component("datastore").
			Build()
	}
	if fav.CreatedAt.IsZero() {
		fav.CreatedAt = time.Now()
	}
	if err := s.db.Save(fav).Error; err != nil {
		return dbError("save favorite", err)
	}
	return nil
}

// DeleteFavorite removes a favorite region by id.
func (s *Store) DeleteFavorite(id string) error {
	if err := s.db.Delete(&FavoriteRegion{}, "id = ?", id).Error; err != nil {
		return dbError("delete favorite", err)
	}
	return nil
}

// SaveOccurrence persists one occurrence record by key.
func (s *Store) SaveOccurrence(record *gbif.Occurrence) error {
	if record.Key == 0 {
		return errors.Newf("occurrence record requires a key").
			Category(errors.CategoryValidation).
			Component("datastore").
			Build()
	}
	blob, err := json.Marshal(record)
	if err != nil {
		return dbError("serialize occurrence", err)
	}
	saved := SavedOccurrence{Key: record.Key, Record: string(blob), SavedAt: time.Now()}
	if err := s.db.Save(&saved).Error; err != nil {
		return dbError("save occurrence", err)
	}
	return nil
}

// ListSavedOccurrences returns all saved records. Rows whose stored JSON no
// longer parses are discarded on read rather than crashing the caller.
func (s *Store) ListSavedOccurrences() ([]gbif.Occurrence, error) {
	var rows []SavedOccurrence
	if err := s.db.Order("saved_at").Find(&rows).Error; err != nil {
		return nil, dbError("list saved occurrences", err)
	}

	records := make([]gbif.Occurrence, 0, len(rows))
	for _, row := range rows {
		var record gbif.Occurrence
		if err := json.Unmarshal([]byte(row.Record), &record); err != nil {
			logger.Warn("discarding malformed saved occurrence", "key", row.Key, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteSavedOccurrence removes one saved record by key.
func (s *Store) DeleteSavedOccurrence(key int64) error {
	if err := s.db.Delete(&SavedOccurrence{}, "key = ?", key).Error; err != nil {
		return dbError("delete saved occurrence", err)
	}
	return nil
}

// ClearSavedOccurrences removes all saved records.
func (s *Store) ClearSavedOccurrences() error {
	if err := s.db.Where("1 = 1").Delete(&SavedOccurrence{}).Error; err != nil {
		return dbError("clear saved occurrences", err)
	}
	return nil
}

// GetViewPreferences returns the stored view preferences, or defaults when
// none are stored yet.
func (s *Store) GetViewPreferences() (*ViewPreferences, error) {
	var prefs ViewPreferences
	err := s.db.First(&prefs, "id = ?", 1).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &ViewPreferences{SceneMode: "3d", BaseMap: "satellite"}, nil
	case err != nil:
		return nil, dbError("get view preferences", err)
	}
	return &prefs, nil
}

// SaveViewPreferences stores the last-used view configuration.
func (s *Store) SaveViewPreferences(prefs *ViewPreferences) error {
	prefs.ID = 1
	prefs.UpdatedAt = time.Now()
	if err := s.db.Save(prefs).Error; err != nil {
		return dbError("save view preferences", err)
	}
	return nil
}
