package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/mediatype"
	"parish-media/internal/processing"
	"parish-media/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	exportBatchSize  = 500
	sniffBytes       = 3072

	maxAltTextLen     = 255
	maxCaptionLen     = 500
	maxDescriptionLen = 5000
)

type MediaService interface {
	UploadBatch(ctx context.Context, actor Actor, files []Upload, opts UploadOptions) (*BatchResult, error)
	List(ctx context.Context, actor Actor, q ListQuery) (*ListResult, error)
	Get(ctx context.Context, actor Actor, id string) (*AssetResponse, error)
	UpdateMetadata(ctx context.Context, actor Actor, id string, raw map[string]any) (*AssetResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
	Export(ctx context.Context, actor Actor, q ListQuery, w io.Writer) error
	ResolveFile(ctx context.Context, actor Actor, dir, file string) (string, error)
}

type MediaServiceImpl struct {
	Repo      MediaRepository
	Layout    *storage.Layout
	Cleaner   *storage.Cleaner
	Processor *processing.Processor
	Events    EventPublisher
	Config    *config.Config
	Log       *zap.Logger

	now func() time.Time
}

func NewMediaService(
	repo MediaRepository,
	layout *storage.Layout,
	cleaner *storage.Cleaner,
	processor *processing.Processor,
	events EventPublisher,
	cfg *config.Config,
	log *zap.Logger,
) MediaService {
	return &MediaServiceImpl{
		Repo:      repo,
		Layout:    layout,
		Cleaner:   cleaner,
		Processor: processor,
		Events:    events,
		Config:    cfg,
		Log:       log.Named("media"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UploadBatch runs one independent pipeline per file. Only request-level problems
// return an error; everything that happens to a single file lands in BatchResult.
func (s *MediaServiceImpl) UploadBatch(ctx context.Context, actor Actor, files []Upload, opts UploadOptions) (*BatchResult, error) {
	if actor.Anonymous() && !s.Config.AllowAnonymousUpload {
		return nil, ErrForbidden
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.Config.MaxUploadFiles {
		return nil, fmt.Errorf("%w: %d submitted, at most %d allowed", ErrTooManyFiles, len(files), s.Config.MaxUploadFiles)
	}
	// Nobody could manage a private asset without an owner.
	if opts.Visibility == "" || actor.Anonymous() {
		opts.Visibility = VisibilityPublic
	}
	if !opts.Visibility.Valid() {
		return nil, fieldError(ErrInvalidField, "visibility", string(opts.Visibility))
	}

	type outcome struct {
		asset *MediaAsset
		err   error
	}
	results := make([]outcome, len(files))

	// In-flight pipelines finish even if the client goes away.
	pipelineCtx := context.WithoutCancel(ctx)

	workers := s.Config.UploadWorkers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i].err = ErrCancelled
				return nil
			}
			results[i].asset, results[i].err = s.ingest(pipelineCtx, actor, files[i], opts)
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchResult{Assets: []AssetResponse{}, Failed: []FileFailure{}}
	for i, r := range results {
		if r.err != nil {
			out.Failed = append(out.Failed, FileFailure{
				Filename: files[i].Filename,
				Code:     failureCode(r.err),
				Reason:   r.err.Error(),
			})
			continue
		}
		resp := s.toResponse(r.asset)
		out.Assets = append(out.Assets, resp)
		if r.asset.Visibility == VisibilityPublic {
			s.publish(EventAssetCreated, r.asset.ID, &resp)
		}
	}

	s.Log.Info("upload batch processed",
		zap.String("uploaded_by", actor.UserID),
		zap.Int("submitted", len(files)),
		zap.Int("created", len(out.Assets)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

// ingest is the classify, store, process, catalog pipeline for a single file.
func (s *MediaServiceImpl) ingest(ctx context.Context, actor Actor, up Upload, opts UploadOptions) (*MediaAsset, error) {
	maxSize := s.Config.MaxFileSize
	if maxSize > 0 && up.Size > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, up.Size, maxSize)
	}

	rc, err := up.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, sniffBytes)
	head, err := br.Peek(sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	mimeType, err := mediatype.Resolve(up.MimeType, bytes.NewReader(head))
	if err != nil {
		return nil, err
	}
	category, err := mediatype.Classify(mimeType)
	if err != nil {
		return nil, err
	}

	var body io.Reader = br
	if maxSize > 0 {
		body = io.LimitReader(br, maxSize+1)
	}
	sf, err := s.Layout.Store(category, up.Filename, body)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && sf.Size > maxSize {
		s.Cleaner.Remove(sf.ID, sf.RelPath)
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, maxSize)
	}

	res := s.Processor.Process(ctx, sf, mimeType)

	now := s.now()
	asset := &MediaAsset{
		ID:               sf.ID,
		Category:         category,
		MimeType:         mimeType,
		OriginalFilename: displayName(up.Filename),
		StoredFilename:   sf.StoredFilename,
		StoragePath:      sf.RelPath,
		FileSizeBytes:    sf.Size,
		Width:            res.Width,
		Height:           res.Height,
		DurationSeconds:  res.DurationSeconds,
		ThumbnailPath:    res.ThumbnailPath,
		OptimizedPath:    res.OptimizedPath,
		Tags:             res.Tags,
		Visibility:       opts.Visibility,
		AltText:          opts.AltText,
		Caption:          opts.Caption,
		Description:      opts.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !actor.Anonymous() {
		uid := actor.UserID
		asset.UploadedBy = &uid
	}

	if err := s.Repo.Create(ctx, asset); err != nil {
		s.Log.Error("catalog insert failed",
			zap.String("asset_id", asset.ID),
			zap.String("filename", asset.OriginalFilename),
			zap.Error(err),
		)
		s.Cleaner.Remove(asset.ID, asset.Paths()...)
		return nil, fmt.Errorf("%w: %v", ErrCatalogWrite, err)
	}
	return asset, nil
}

func (s *MediaServiceImpl) List(ctx context.Context, actor Actor, q ListQuery) (*ListResult, error) {
	filter, err := s.filterFor(actor, q)
	if err != nil {
		return nil, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	// Keeps the offset from overflowing into a negative value.
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	total, err := s.Repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	assets, err := s.Repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	data := make([]AssetResponse, 0, len(assets))
	for _, a := range assets {
		data = append(data, s.toResponse(a))
	}
	return &ListResult{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// filterFor validates the query and applies the actor's visibility scope.
func (s *MediaServiceImpl) filterFor(actor Actor, q ListQuery) (ListFilter, error) {
	var f ListFilter

	if q.Category != "" {
		c := mediatype.Category(strings.ToLower(q.Category))
		if !c.Valid() {
			return f, fieldError(ErrInvalidField, "category", q.Category)
		}
		f.Category = c
	}
	if q.Visibility != "" {
		v := Visibility(strings.ToLower(q.Visibility))
		if !v.Valid() {
			return f, fieldError(ErrInvalidField, "visibility", q.Visibility)
		}
		f.Visibility = v
	}
	if q.Featured != "" {
		b, err := strconv.ParseBool(q.Featured)
		if err != nil {
			return f, fieldError(ErrInvalidField, "featured", q.Featured)
		}
		f.Featured = &b
	}
	f.UploadedBy = strings.TrimSpace(q.UploadedBy)
	f.Search = strings.TrimSpace(q.Q)

	f.IncludePrivate = actor.Elevated
	f.ViewerID = actor.UserID
	return f, nil
}

func (s *MediaServiceImpl) Get(ctx context.Context, actor Actor, id string) (*AssetResponse, error) {
	asset, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, asset) {
		return nil, ErrNotFoundOrForbidden
	}
	resp := s.toResponse(asset)
	return &resp, nil
}

func (s *MediaServiceImpl) UpdateMetadata(ctx context.Context, actor Actor, id string, raw map[string]any) (*AssetResponse, error) {
	patch, err := parsePatch(raw)
	if err != nil {
		return nil, err
	}

	asset, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, asset) {
		return nil, ErrNotFoundOrForbidden
	}

	now := s.now()
	if err := s.Repo.UpdateMetadata(ctx, id, patch, now); err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return nil, ErrNotFoundOrForbidden
		}
		return nil, err
	}

	applyPatch(asset, patch, now)
	resp := s.toResponse(asset)
	if asset.Visibility == VisibilityPublic {
		s.publish(EventAssetUpdated, asset.ID, &resp)
	}
	return &resp, nil
}

// Delete removes the physical artifacts first, then the catalog row. Cleanup
// failures are logged and do not block removal of the row.
func (s *MediaServiceImpl) Delete(ctx context.Context, actor Actor, id string) error {
	asset, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, asset) {
		return ErrNotFoundOrForbidden
	}

	if failed := s.Cleaner.Remove(asset.ID, asset.Paths()...); failed > 0 {
		s.Log.Warn("asset deleted with leftover files",
			zap.String("asset_id", asset.ID),
			zap.Int("failed", failed),
		)
	}

	deleted, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFoundOrForbidden
	}

	if asset.Visibility == VisibilityPublic {
		s.publish(EventAssetDeleted, asset.ID, nil)
	}
	return nil
}

// Export writes the whole filtered listing as a spreadsheet. Elevated roles only.
func (s *MediaServiceImpl) Export(ctx context.Context, actor Actor, q ListQuery, w io.Writer) error {
	if !actor.Elevated {
		return ErrForbidden
	}
	filter, err := s.filterFor(actor, q)
	if err != nil {
		return err
	}

	var rows []AssetResponse
	filter.Limit = exportBatchSize
	for {
		batch, err := s.Repo.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, a := range batch {
			rows = append(rows, s.toResponse(a))
		}
		if len(batch) < exportBatchSize {
			break
		}
		filter.Offset += exportBatchSize
	}

	return WriteInventory(w, rows)
}

// ResolveFile maps a public file URL onto an absolute path, applying the same
// visibility rules as Get.
func (s *MediaServiceImpl) ResolveFile(ctx context.Context, actor Actor, dir, file string) (string, error) {
	id, ok := storage.IDFromFilename(file)
	if !ok {
		return "", ErrNotFoundOrForbidden
	}
	asset, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}

	rel := dir + "/" + file
	owned := false
	for _, p := range asset.Paths() {
		if p == rel {
			owned = true
			break
		}
	}
	if !owned || !canView(actor, asset) {
		return "", ErrNotFoundOrForbidden
	}
	return s.Layout.Abs(rel)
}

func (s *MediaServiceImpl) load(ctx context.Context, id string) (*MediaAsset, error) {
	asset, err := s.Repo.Get(ctx, id)
	if errors.Is(err, ErrAssetNotFound) {
		return nil, ErrNotFoundOrForbidden
	}
	return asset, err
}

func (s *MediaServiceImpl) publish(kind, id string, asset *AssetResponse) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(Event{Type: kind, AssetID: id, Asset: asset})
}

func (s *MediaServiceImpl) toResponse(a *MediaAsset) AssetResponse {
	original := s.url(a.StoragePath)
	resp := AssetResponse{
		ID:               a.ID,
		URL:              original,
		OriginalURL:      original,
		Category:         a.Category,
		MimeType:         a.MimeType,
		OriginalFilename: a.OriginalFilename,
		FileSizeBytes:    a.FileSizeBytes,
		Width:            a.Width,
		Height:           a.Height,
		DurationSeconds:  a.DurationSeconds,
		Tags:             a.Tags,
		UploadedBy:       a.UploadedBy,
		Visibility:       a.Visibility,
		IsFeatured:       a.IsFeatured,
		AltText:          a.AltText,
		Caption:          a.Caption,
		Description:      a.Description,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.OptimizedPath != nil {
		resp.URL = s.url(*a.OptimizedPath)
	}
	if a.ThumbnailPath != nil {
		u := s.url(*a.ThumbnailPath)
		resp.ThumbnailURL = &u
	}
	return resp
}

func (s *MediaServiceImpl) url(rel string) string {
	return s.Config.UploadURLPrefix + "/" + rel
}

func canView(actor Actor, a *MediaAsset) bool {
	return a.Visibility == VisibilityPublic || canManage(actor, a)
}

func canManage(actor Actor, a *MediaAsset) bool {
	if actor.Elevated {
		return true
	}
	return !actor.Anonymous() && a.UploadedBy != nil && *a.UploadedBy == actor.UserID
}

// parsePatch validates a raw update body against the allow-list. Unknown keys are
// rejected before any type checks.
func parsePatch(raw map[string]any) (MetadataPatch, error) {
	var p MetadataPatch
	if len(raw) == 0 {
		return p, fieldError(ErrInvalidField, "body", "no fields to update")
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch k {
		case "alt_text", "caption", "description", "visibility", "is_featured":
		default:
			return p, fieldError(ErrForbiddenField, k, "")
		}
	}

	for _, k := range keys {
		v := raw[k]
		switch k {
		case "alt_text":
			s, err := stringField(k, v, maxAltTextLen)
			if err != nil {
				return p, err
			}
			p.AltText = &s
		case "caption":
			s, err := stringField(k, v, maxCaptionLen)
			if err != nil {
				return p, err
			}
			p.Caption = &s
		case "description":
			s, err := stringField(k, v, maxDescriptionLen)
			if err != nil {
				return p, err
			}
			p.Description = &s
		case "visibility":
			s, ok := v.(string)
			vis := Visibility(strings.ToLower(s))
			if !ok || !vis.Valid() {
				return p, fieldError(ErrInvalidField, k, "must be public or private")
			}
			p.Visibility = &vis
		case "is_featured":
			b, ok := v.(bool)
			if !ok {
				return p, fieldError(ErrInvalidField, k, "must be a boolean")
			}
			p.IsFeatured = &b
		}
	}
	return p, nil
}

func stringField(name string, v any, maxLen int) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fieldError(ErrInvalidField, name, "must be a string")
	}
	if len([]rune(s)) > maxLen {
		return "", fieldError(ErrInvalidField, name, fmt.Sprintf("longer than %d characters", maxLen))
	}
	return s, nil
}

func applyPatch(a *MediaAsset, p MetadataPatch, now time.Time) {
	if p.AltText != nil {
		a.AltText = *p.AltText
	}
	if p.Caption != nil {
		a.Caption = *p.Caption
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Visibility != nil {
		a.Visibility = *p.Visibility
	}
	if p.IsFeatured != nil {
		a.IsFeatured = *p.IsFeatured
	}
	a.UpdatedAt = now
}

// displayName keeps only the base name of what the client sent.
func displayName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "unnamed"
	}
	if r := []rune(name); len(r) > 255 {
		name = string(r[:255])
	}
	return name
}
