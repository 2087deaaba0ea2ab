package media

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parish-media/internal/database"
	"parish-media/internal/mediatype"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS media_assets (
	id                VARCHAR(36) PRIMARY KEY,
	category          VARCHAR(16) NOT NULL,
	mime_type         VARCHAR(128) NOT NULL,
	original_filename VARCHAR(255) NOT NULL,
	stored_filename   VARCHAR(64) NOT NULL,
	storage_path      VARCHAR(255) NOT NULL,
	file_size_bytes   BIGINT NOT NULL,
	width             INTEGER NULL,
	height            INTEGER NULL,
	duration_seconds  INTEGER NULL,
	thumbnail_path    VARCHAR(255) NULL,
	optimized_path    VARCHAR(255) NULL,
	tags              TEXT NULL,
	uploaded_by       VARCHAR(64) NULL,
	visibility        VARCHAR(16) NOT NULL DEFAULT 'public',
	is_featured       BOOLEAN NOT NULL DEFAULT FALSE,
	alt_text          VARCHAR(255) NOT NULL DEFAULT '',
	caption           VARCHAR(500) NOT NULL DEFAULT '',
	description       TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
)`

const mysqlSchema = `CREATE TABLE IF NOT EXISTS media_assets (
	id                VARCHAR(36) PRIMARY KEY,
	category          VARCHAR(16) NOT NULL,
	mime_type         VARCHAR(128) NOT NULL,
	original_filename VARCHAR(255) NOT NULL,
	stored_filename   VARCHAR(64) NOT NULL,
	storage_path      VARCHAR(255) NOT NULL,
	file_size_bytes   BIGINT NOT NULL,
	width             INT NULL,
	height            INT NULL,
	duration_seconds  INT NULL,
	thumbnail_path    VARCHAR(255) NULL,
	optimized_path    VARCHAR(255) NULL,
	tags              TEXT NULL,
	uploaded_by       VARCHAR(64) NULL,
	visibility        VARCHAR(16) NOT NULL DEFAULT 'public',
	is_featured       BOOLEAN NOT NULL DEFAULT FALSE,
	alt_text          VARCHAR(255) NOT NULL DEFAULT '',
	caption           VARCHAR(500) NOT NULL DEFAULT '',
	description       TEXT NOT NULL,
	created_at        DATETIME(6) NOT NULL,
	updated_at        DATETIME(6) NOT NULL,
	INDEX idx_media_assets_category (category),
	INDEX idx_media_assets_uploaded_by (uploaded_by),
	INDEX idx_media_assets_created_at (created_at)
)`

const sqliteSchema = `CREATE TABLE IF NOT EXISTS media_assets (
	id                TEXT PRIMARY KEY,
	category          TEXT NOT NULL,
	mime_type         TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	stored_filename   TEXT NOT NULL,
	storage_path      TEXT NOT NULL,
	file_size_bytes   INTEGER NOT NULL,
	width             INTEGER NULL,
	height            INTEGER NULL,
	duration_seconds  INTEGER NULL,
	thumbnail_path    TEXT NULL,
	optimized_path    TEXT NULL,
	tags              TEXT NULL,
	uploaded_by       TEXT NULL,
	visibility        TEXT NOT NULL DEFAULT 'public',
	is_featured       BOOLEAN NOT NULL DEFAULT 0,
	alt_text          TEXT NOT NULL DEFAULT '',
	caption           TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
)`

// Shared by postgres and sqlite.
var postgresIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_media_assets_category ON media_assets (category)`,
	`CREATE INDEX IF NOT EXISTS idx_media_assets_uploaded_by ON media_assets (uploaded_by)`,
	`CREATE INDEX IF NOT EXISTS idx_media_assets_created_at ON media_assets (created_at)`,
}

const assetColumns = `id, category, mime_type, original_filename, stored_filename, storage_path,
	file_size_bytes, width, height, duration_seconds, thumbnail_path, optimized_path, tags,
	uploaded_by, visibility, is_featured, alt_text, caption, description, created_at, updated_at`

type SQLMediaRepository struct {
	DB      *sql.DB
	Dialect string
}

func NewSQLMediaRepository(db *sql.DB, dialect string) MediaRepository {
	return &SQLMediaRepository{DB: db, Dialect: dialect}
}

func (r *SQLMediaRepository) EnsureSchema(ctx context.Context) error {
	var stmts []string
	switch r.Dialect {
	case database.DialectMySQL:
		stmts = []string{mysqlSchema}
	case database.DialectSQLite:
		stmts = append([]string{sqliteSchema}, postgresIndexes...)
	default:
		stmts = append([]string{postgresSchema}, postgresIndexes...)
	}
	for _, stmt := range stmts {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure media schema: %w", err)
		}
	}
	return nil
}

func (r *SQLMediaRepository) Create(ctx context.Context, a *MediaAsset) error {
	var tags any
	if len(a.Tags) > 0 {
		b, err := json.Marshal(a.Tags)
		if err != nil {
			return err
		}
		tags = string(b)
	}

	query := `INSERT INTO media_assets (` + assetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.DB.ExecContext(ctx, r.rebind(query),
		a.ID, string(a.Category), a.MimeType, a.OriginalFilename, a.StoredFilename, a.StoragePath,
		a.FileSizeBytes, a.Width, a.Height, a.DurationSeconds, a.ThumbnailPath, a.OptimizedPath, tags,
		a.UploadedBy, string(a.Visibility), a.IsFeatured, a.AltText, a.Caption, a.Description,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (r *SQLMediaRepository) Get(ctx context.Context, id string) (*MediaAsset, error) {
	row := r.DB.QueryRowContext(ctx, r.rebind(`SELECT `+assetColumns+` FROM media_assets WHERE id = ?`), id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssetNotFound
	}
	return a, err
}

func (r *SQLMediaRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*MediaAsset, error) {
	out := make(map[string]*MediaAsset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.DB.QueryContext(ctx, r.rebind(`SELECT `+assetColumns+` FROM media_assets WHERE id IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *SQLMediaRepository) List(ctx context.Context, filter ListFilter) ([]*MediaAsset, error) {
	where, args := buildWhere(filter)
	query := `SELECT ` + assetColumns + ` FROM media_assets` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.DB.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*MediaAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (r *SQLMediaRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	where, args := buildWhere(filter)
	var total int64
	err := r.DB.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM media_assets`+where), args...).Scan(&total)
	return total, err
}

func (r *SQLMediaRepository) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch, updatedAt time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{updatedAt}
	if patch.AltText != nil {
		sets = append(sets, "alt_text = ?")
		args = append(args, *patch.AltText)
	}
	if patch.Caption != nil {
		sets = append(sets, "caption = ?")
		args = append(args, *patch.Caption)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Visibility != nil {
		sets = append(sets, "visibility = ?")
		args = append(args, string(*patch.Visibility))
	}
	if patch.IsFeatured != nil {
		sets = append(sets, "is_featured = ?")
		args = append(args, *patch.IsFeatured)
	}
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx, r.rebind(`UPDATE media_assets SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return err
	}
	// MySQL reports zero affected rows when nothing changed.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLMediaRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.rebind(`DELETE FROM media_assets WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// buildWhere is the single filter builder behind both List and Count.
func buildWhere(f ListFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.UploadedBy != "" {
		conds = append(conds, "uploaded_by = ?")
		args = append(args, f.UploadedBy)
	}
	if f.Visibility != "" {
		conds = append(conds, "visibility = ?")
		args = append(args, string(f.Visibility))
	}
	if f.Featured != nil {
		conds = append(conds, "is_featured = ?")
		args = append(args, *f.Featured)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		conds = append(conds, "(LOWER(original_filename) LIKE ? ESCAPE '!' OR LOWER(caption) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern, pattern)
	}
	if !f.IncludePrivate {
		if f.ViewerID != "" {
			conds = append(conds, "(visibility = ? OR uploaded_by = ?)")
			args = append(args, string(VisibilityPublic), f.ViewerID)
		} else {
			conds = append(conds, "visibility = ?")
			args = append(args, string(VisibilityPublic))
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike escapes with '!' since the dialects disagree on backslash literals.
func escapeLike(s string) string {
	return strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`).Replace(s)
}

// rebind turns ? placeholders into $n for postgres.
func (r *SQLMediaRepository) rebind(query string) string {
	if r.Dialect != database.DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*MediaAsset, error) {
	var (
		a                              MediaAsset
		category, visibility           string
		width, height, duration        sql.NullInt64
		thumb, optimized, tags, upload sql.NullString
	)
	err := row.Scan(
		&a.ID, &category, &a.MimeType, &a.OriginalFilename, &a.StoredFilename, &a.StoragePath,
		&a.FileSizeBytes, &width, &height, &duration, &thumb, &optimized, &tags,
		&upload, &visibility, &a.IsFeatured, &a.AltText, &a.Caption, &a.Description,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Category = mediatype.Category(category)
	a.Visibility = Visibility(visibility)
	a.Width = nullInt(width)
	a.Height = nullInt(height)
	a.DurationSeconds = nullInt(duration)
	a.ThumbnailPath = nullString(thumb)
	a.OptimizedPath = nullString(optimized)
	a.UploadedBy = nullString(upload)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
