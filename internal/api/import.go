package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/karimogit/GBIF3D/internal/errors"
	"github.com/karimogit/GBIF3D/internal/gbif"
	"github.com/karimogit/GBIF3D/internal/importer"
)

// ImportFile parses an uploaded CSV, JSON or ZIP file into occurrence
// records and adds them to the in-memory imported set merged into every
// derived view until explicitly cleared.
func (c *Controller) ImportFile(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.handleError(ctx, errors.Newf("missing file upload").
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}
	if fileHeader.Size > maxImportSize {
		return c.handleError(ctx, errors.Newf("import file exceeds %d bytes", maxImportSize).
			Category(errors.CategoryValidation).
			Component("api").
			Build())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.handleError(ctx, errors.Newf("could not open upload: %w", err).
			Category(errors.CategoryFileParsing).
			Component("api").
			Build())
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.handleError(ctx, errors.Newf("could not read upload: %w", err).
			Category(errors.CategoryFileParsing).
			Component("api").
			Build())
	}

	// The synthetic key cursor is threaded across uploads so records from
	// separate imports never share a key.
	c.importedMutex.Lock()
	records, nextKey, err := importer.ParseFile(fileHeader.Filename, data, c.importNextKey)
	if err != nil {
		c.importedMutex.Unlock()
		return c.handleError(ctx, err)
	}
	c.imported = append(c.imported, records...)
	c.importNextKey = nextKey
	total := len(c.imported)
	c.importedMutex.Unlock()

	c.apiLogger.Info("file imported",
		"file_name", fileHeader.Filename,
		"records", len(records),
		"imported_total", total)

	return ctx.JSON(http.StatusOK, map[string]any{
		"imported": len(records),
		"total":    total,
		"records":  records,
	})
}

// ClearImported drops the in-memory imported record set.
func (c *Controller) ClearImported(ctx echo.Context) error {
	c.importedMutex.Lock()
	c.imported = nil
	c.importNextKey = -1
	c.importedMutex.Unlock()
	return ctx.NoContent(http.StatusNoContent)
}

// importedRecords returns a snapshot of the imported set.
func (c *Controller) importedRecords() []gbif.Occurrence {
	c.importedMutex.RLock()
	defer c.importedMutex.RUnlock()
	snapshot := make([]gbif.Occurrence, len(c.imported))
	copy(snapshot, c.imported)
	return snapshot
}
