package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish-media/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Dialects double as database/sql driver names.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

// SQLDB wraps a relational connection pool. DB is nil when the catalog is not relational.
type SQLDB struct {
	DB      *sql.DB
	Dialect string
}

// NewSQLDatabase opens the relational catalog connection for the postgres, mysql and sqlite drivers.
func NewSQLDatabase(lc fx.Lifecycle, cfg *config.Config) (*SQLDB, error) {
	switch cfg.CatalogDriver {
	case "postgres", "postgresql":
		return openSQL(lc, DialectPostgres, cfg.DatabaseURL)
	case DialectMySQL:
		dsn, err := mysqlDSN(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return openSQL(lc, DialectMySQL, dsn)
	case DialectSQLite:
		return openSQL(lc, DialectSQLite, cfg.DatabaseURL)
	default:
		return &SQLDB{}, nil
	}
}

func openSQL(lc fx.Lifecycle, driver, dsn string) (*SQLDB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DialectSQLite {
		// One writer at a time; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	zap.L().Info("connected to catalog database", zap.String("driver", driver))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	return &SQLDB{DB: db, Dialect: driver}, nil
}

// mysqlDSN forces parseTime so DATETIME columns scan into time.Time, in UTC.
func mysqlDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc.FormatDSN(), nil
}
