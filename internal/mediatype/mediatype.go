// Package mediatype maps declared MIME types onto the four media categories the
// catalog understands and rejects everything else before any storage I/O.
package mediatype

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Category string

const (
	CategoryImage    Category = "image"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
)

// Categories lists every category in storage order.
var Categories = []Category{CategoryImage, CategoryVideo, CategoryAudio, CategoryDocument}

var ErrUnsupportedMediaType = errors.New("unsupported media type")

var allowed = map[string]Category{
	"image/jpeg":  CategoryImage,
	"image/jpg":   CategoryImage,
	"image/pjpeg": CategoryImage,
	"image/png":   CategoryImage,
	"image/gif":   CategoryImage,
	"image/webp":  CategoryImage,
	"image/bmp":   CategoryImage,
	"image/tiff":  CategoryImage,

	"video/mp4":        CategoryVideo,
	"video/mpeg":       CategoryVideo,
	"video/quicktime":  CategoryVideo,
	"video/webm":       CategoryVideo,
	"video/x-msvideo":  CategoryVideo,
	"video/x-matroska": CategoryVideo,

	"audio/mpeg":  CategoryAudio,
	"audio/mp3":   CategoryAudio,
	"audio/wav":   CategoryAudio,
	"audio/x-wav": CategoryAudio,
	"audio/wave":  CategoryAudio,
	"audio/ogg":   CategoryAudio,
	"audio/mp4":   CategoryAudio,
	"audio/x-m4a": CategoryAudio,
	"audio/aac":   CategoryAudio,
	"audio/flac":  CategoryAudio,
	"audio/webm":  CategoryAudio,

	"application/pdf":    CategoryDocument,
	"application/msword": CategoryDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   CategoryDocument,
	"application/vnd.ms-excel":                                                  CategoryDocument,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         CategoryDocument,
	"application/vnd.ms-powerpoint":                                             CategoryDocument,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": CategoryDocument,
	"application/rtf": CategoryDocument,
	"text/plain":      CategoryDocument,
	"text/csv":        CategoryDocument,
}

// Normalize lowercases the type and drops parameters such as charset.
func Normalize(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Classify returns the category for a declared MIME type.
func Classify(mimeType string) (Category, error) {
	mt := Normalize(mimeType)
	if c, ok := allowed[mt]; ok {
		return c, nil
	}
	if mt == "" {
		mt = "(empty)"
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt)
}

// Resolve returns the MIME type to classify. The declared type wins unless it is
// missing or the generic octet-stream, in which case the head of the payload is sniffed.
func Resolve(declared string, head io.Reader) (string, error) {
	mt := Normalize(declared)
	if mt != "" && mt != "application/octet-stream" {
		return mt, nil
	}
	if head == nil {
		return mt, nil
	}
	detected, err := mimetype.DetectReader(head)
	if err != nil {
		return "", fmt.Errorf("detect mime type: %w", err)
	}
	return Normalize(detected.String()), nil
}

// Dir is the storage directory for the category.
func (c Category) Dir() string {
	switch c {
	case CategoryImage:
		return "images"
	case CategoryVideo:
		return "videos"
	case CategoryAudio:
		return "audio"
	default:
		return "documents"
	}
}

// HasThumbnail reports whether the category has a thumbnail concept at all.
func (c Category) HasThumbnail() bool {
	return c == CategoryImage || c == CategoryVideo
}

func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryVideo, CategoryAudio, CategoryDocument:
		return true
	}
	return false
}
