package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"parish-media/internal/mediatype"

	"github.com/google/uuid"
)

const ThumbnailDir = "thumbnails"

var ErrStorageWrite = errors.New("storage write failed")

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,9}$`)

// StoredFile describes one original committed to disk.
type StoredFile struct {
	ID             string
	Category       mediatype.Category
	StoredFilename string
	Path           string // absolute
	RelPath        string // relative to the storage root, slash separated
	Size           int64
}

// Layout owns the category-partitioned directory tree under Root.
type Layout struct {
	Root string
}

func NewLayout(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Layout{Root: abs}, nil
}

// EnsureLayout creates every category directory plus the thumbnail tree. MkdirAll is
// idempotent, so concurrent or repeated calls are harmless.
func (l *Layout) EnsureLayout() error {
	dirs := []string{ThumbnailDir}
	for _, c := range mediatype.Categories {
		dirs = append(dirs, c.Dir())
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(l.Root, d), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// SafeExt returns the lowercased extension of the original name, or "" when it
// contains anything other than letters and digits.
func SafeExt(originalFilename string) string {
	base := filepath.Base(strings.ReplaceAll(originalFilename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// Store writes r under a fresh identifier. The original filename only contributes its
// extension. A partially written file is removed before the error is returned.
func (l *Layout) Store(category mediatype.Category, originalFilename string, r io.Reader) (*StoredFile, error) {
	id := uuid.NewString()
	name := id + SafeExt(originalFilename)
	rel := category.Dir() + "/" + name
	path := filepath.Join(l.Root, category.Dir(), name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}

	return &StoredFile{
		ID:             id,
		Category:       category,
		StoredFilename: name,
		Path:           path,
		RelPath:        rel,
		Size:           n,
	}, nil
}

// ThumbnailRel is the relative thumbnail location for an asset id.
func ThumbnailRel(id string) string {
	return ThumbnailDir + "/" + id + "_thumb.jpg"
}

// OptimizedRel is the relative location of the optimized copy of an image.
func OptimizedRel(id, ext string) string {
	return mediatype.CategoryImage.Dir() + "/" + id + "_optimized" + ext
}

// Abs maps a relative storage path to an absolute one, refusing anything that
// would escape the root.
func (l *Layout) Abs(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", rel)
	}
	return filepath.Join(l.Root, clean), nil
}

// Rel is the inverse of Abs.
func (l *Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.Root, abs)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside storage root", abs)
	}
	return filepath.ToSlash(rel), nil
}

// IDFromFilename extracts the asset id from a stored, optimized or thumbnail filename.
func IDFromFilename(name string) (string, bool) {
	base := filepath.Base(name)
	if len(base) < 36 {
		return "", false
	}
	id := base[:36]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// StoredEntry is one regular file found while walking the layout.
type StoredEntry struct {
	RelPath string
	Info    fs.FileInfo
}

// Walk visits every regular file in the category and thumbnail directories.
func (l *Layout) Walk(fn func(StoredEntry) error) error {
	dirs := []string{ThumbnailDir}
	for _, c := range mediatype.Categories {
		dirs = append(dirs, c.Dir())
	}
	for _, d := range dirs {
		entries, err := os.ReadDir(filepath.Join(l.Root, d))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if err := fn(StoredEntry{RelPath: d + "/" + e.Name(), Info: info}); err != nil {
				return err
			}
		}
	}
	return nil
}
