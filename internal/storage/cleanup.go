package storage

import (
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// Cleaner removes physical artifacts on a best-effort basis. Failures are logged
// for offline reconciliation and never surfaced to callers.
type Cleaner struct {
	layout *Layout
	log    *zap.Logger
}

func NewCleaner(layout *Layout, log *zap.Logger) *Cleaner {
	return &Cleaner{layout: layout, log: log.Named("cleanup")}
}

// Remove deletes each non-empty relative path. A path that is already gone counts as
// removed. It returns the number of paths that could not be removed.
func (c *Cleaner) Remove(assetID string, relPaths ...string) int {
	failed := 0
	for _, rel := range relPaths {
		if rel == "" {
			continue
		}
		abs, err := c.layout.Abs(rel)
		if err == nil {
			err = os.Remove(abs)
		}
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		failed++
		c.log.Warn("cleanup failed",
			zap.String("asset_id", assetID),
			zap.String("path", rel),
			zap.Error(err),
		)
	}
	return failed
}
