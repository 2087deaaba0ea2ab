package media

import (
	"io"
	"time"

	"parish-media/internal/mediatype"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// MediaAsset is the catalog record. Binary-derived fields are written once at ingest;
// only the descriptive fields, Visibility and IsFeatured change afterwards.
type MediaAsset struct {
	ID               string             `json:"id" bson:"_id"`
	Category         mediatype.Category `json:"category" bson:"category"`
	MimeType         string             `json:"mime_type" bson:"mime_type"`
	OriginalFilename string             `json:"original_filename" bson:"original_filename"`
	StoredFilename   string             `json:"stored_filename" bson:"stored_filename"`
	StoragePath      string             `json:"storage_path" bson:"storage_path"` // relative to the storage root
	FileSizeBytes    int64              `json:"file_size_bytes" bson:"file_size_bytes"`
	Width            *int               `json:"width" bson:"width"`
	Height           *int               `json:"height" bson:"height"`
	DurationSeconds  *int               `json:"duration_seconds" bson:"duration_seconds"`
	ThumbnailPath    *string            `json:"thumbnail_path" bson:"thumbnail_path"`
	OptimizedPath    *string            `json:"optimized_path" bson:"optimized_path"`
	Tags             map[string]string  `json:"tags,omitempty" bson:"tags,omitempty"`
	UploadedBy       *string            `json:"uploaded_by" bson:"uploaded_by"`
	Visibility       Visibility         `json:"visibility" bson:"visibility"`
	IsFeatured       bool               `json:"is_featured" bson:"is_featured"`
	AltText          string             `json:"alt_text" bson:"alt_text"`
	Caption          string             `json:"caption" bson:"caption"`
	Description      string             `json:"description" bson:"description"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// Paths lists every physical artifact the record references, original first.
func (a *MediaAsset) Paths() []string {
	paths := []string{a.StoragePath}
	if a.OptimizedPath != nil {
		paths = append(paths, *a.OptimizedPath)
	}
	if a.ThumbnailPath != nil {
		paths = append(paths, *a.ThumbnailPath)
	}
	return paths
}

// AssetResponse is the externally visible shape of a MediaAsset.
type AssetResponse struct {
	ID               string             `json:"id"`
	URL              string             `json:"url"`
	OriginalURL      string             `json:"original_url"`
	ThumbnailURL     *string            `json:"thumbnail_url"`
	Category         mediatype.Category `json:"category"`
	MimeType         string             `json:"mime_type"`
	OriginalFilename string             `json:"original_filename"`
	FileSizeBytes    int64              `json:"file_size_bytes"`
	Width            *int               `json:"width"`
	Height           *int               `json:"height"`
	DurationSeconds  *int               `json:"duration_seconds"`
	Tags             map[string]string  `json:"tags,omitempty"`
	UploadedBy       *string            `json:"uploaded_by"`
	Visibility       Visibility         `json:"visibility"`
	IsFeatured       bool               `json:"is_featured"`
	AltText          string             `json:"alt_text"`
	Caption          string             `json:"caption"`
	Description      string             `json:"description"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ListFilter is shared by the data and count queries of every repository.
type ListFilter struct {
	Category   mediatype.Category
	UploadedBy string
	Visibility Visibility
	Featured   *bool
	Search     string

	// Scope: unless IncludePrivate is set, only public rows match, plus the
	// viewer's own rows when ViewerID is non-empty.
	IncludePrivate bool
	ViewerID       string

	Limit  int
	Offset int
}

// MetadataPatch carries the allow-listed mutable fields; nil means unchanged.
type MetadataPatch struct {
	AltText     *string
	Caption     *string
	Description *string
	Visibility  *Visibility
	IsFeatured  *bool
}

func (p MetadataPatch) Empty() bool {
	return p.AltText == nil && p.Caption == nil && p.Description == nil && p.Visibility == nil && p.IsFeatured == nil
}

// ListQuery is the raw listing request as received over HTTP.
type ListQuery struct {
	Category   string `query:"category"`
	UploadedBy string `query:"uploaded_by"`
	Visibility string `query:"visibility"`
	Featured   string `query:"featured"`
	Q          string `query:"q"`
	Page       int    `query:"page"`
	Limit      int    `query:"limit"`
}

type ListResult struct {
	Data       []AssetResponse `json:"data"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}

// Actor is the identity a request acts as. An empty UserID is anonymous.
type Actor struct {
	UserID   string
	Elevated bool
}

func (a Actor) Anonymous() bool { return a.UserID == "" }

// Upload is one submitted file. Open may be called more than once.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadOptions apply to every file of a batch.
type UploadOptions struct {
	Visibility  Visibility
	AltText     string
	Caption     string
	Description string
}

type FileFailure struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
}

type BatchResult struct {
	Assets []AssetResponse `json:"assets"`
	Failed []FileFailure   `json:"failed"`
}
