package media

import (
	"errors"
	"fmt"

	"parish-media/internal/mediatype"
	"parish-media/internal/storage"
)

var (
	ErrNotFoundOrForbidden = errors.New("asset not found")
	ErrForbidden           = errors.New("access denied")
	ErrForbiddenField      = errors.New("field cannot be modified")
	ErrInvalidField        = errors.New("invalid field")
	ErrNoFiles             = errors.New("no files submitted")
	ErrTooManyFiles        = errors.New("too many files")
	ErrFileTooLarge        = errors.New("file too large")
	ErrCatalogWrite        = errors.New("catalog write failed")
	ErrCancelled           = errors.New("request cancelled before processing")

	// ErrAssetNotFound is returned by repositories; the service maps it to ErrNotFoundOrForbidden.
	ErrAssetNotFound = errors.New("media asset not found")
)

// Failure codes reported per file in batch responses.
const (
	CodeUnsupportedMediaType = "unsupported_media_type"
	CodeFileTooLarge         = "file_too_large"
	CodeStorageWrite         = "storage_write_failed"
	CodeCatalogWrite         = "catalog_write_failed"
	CodeReadFailed           = "read_failed"
	CodeCancelled            = "cancelled"
)

func failureCode(err error) string {
	switch {
	case errors.Is(err, mediatype.ErrUnsupportedMediaType):
		return CodeUnsupportedMediaType
	case errors.Is(err, ErrFileTooLarge):
		return CodeFileTooLarge
	case errors.Is(err, storage.ErrStorageWrite):
		return CodeStorageWrite
	case errors.Is(err, ErrCatalogWrite):
		return CodeCatalogWrite
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	default:
		return CodeReadFailed
	}
}

func fieldError(base error, field, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %s", base, field)
	}
	return fmt.Errorf("%w: %s: %s", base, field, detail)
}
