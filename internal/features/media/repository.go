package media

import (
	"context"
	"fmt"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/database"
)

type MediaRepository interface {
	EnsureSchema(ctx context.Context) error
	Create(ctx context.Context, asset *MediaAsset) error
	Get(ctx context.Context, id string) (*MediaAsset, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*MediaAsset, error)
	List(ctx context.Context, filter ListFilter) ([]*MediaAsset, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	UpdateMetadata(ctx context.Context, id string, patch MetadataPatch, updatedAt time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
}

// NewMediaRepository picks the catalog backend configured by CATALOG_DRIVER.
func NewMediaRepository(cfg *config.Config, sqldb *database.SQLDB, mongodb *database.MongodbDB) (MediaRepository, error) {
	switch cfg.CatalogDriver {
	case "postgres", "postgresql", database.DialectMySQL, database.DialectSQLite:
		if sqldb == nil || sqldb.DB == nil {
			return nil, fmt.Errorf("catalog driver %s has no SQL connection", cfg.CatalogDriver)
		}
		return NewSQLMediaRepository(sqldb.DB, sqldb.Dialect), nil
	case "mongo":
		if mongodb == nil || mongodb.DB == nil {
			return nil, fmt.Errorf("catalog driver mongo has no Mongo connection")
		}
		return NewMongoMediaRepository(mongodb), nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.CatalogDriver)
	}
}
