// Package processing derives secondary artifacts and metadata from stored originals.
// Every branch degrades instead of failing: whatever could not be derived is left
// nil and recorded in Result.Degraded.
package processing

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/mediatype"
	"parish-media/internal/storage"

	"github.com/dhowden/tag"
	"go.uber.org/zap"
)

type Options struct {
	ThumbnailSize         int
	OptimizedWidth        int
	OptimizedHeight       int
	ThumbnailQuality      int
	OptimizedQuality      int
	VideoThumbnailPercent int
	MaxPixels             int64
	Timeout               time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ThumbnailSize:         cfg.ThumbnailSize,
		OptimizedWidth:        cfg.OptimizedWidth,
		OptimizedHeight:       cfg.OptimizedHeight,
		ThumbnailQuality:      cfg.ThumbnailQuality,
		OptimizedQuality:      cfg.OptimizedQuality,
		VideoThumbnailPercent: cfg.VideoThumbnailPercent,
		MaxPixels:             cfg.MaxImagePixels,
		Timeout:               cfg.ProcessTimeout,
	}
}

// Result is what the processor managed to derive. Paths are relative to the storage root.
type Result struct {
	Width           *int
	Height          *int
	DurationSeconds *int
	ThumbnailPath   *string
	OptimizedPath   *string
	Tags            map[string]string
	Degraded        []string
}

// Artifacts lists every derived file that exists on disk for this result.
func (r *Result) Artifacts() []string {
	var out []string
	if r.OptimizedPath != nil {
		out = append(out, *r.OptimizedPath)
	}
	if r.ThumbnailPath != nil {
		out = append(out, *r.ThumbnailPath)
	}
	return out
}

func (r *Result) degrade(format string, args ...any) {
	r.Degraded = append(r.Degraded, fmt.Sprintf(format, args...))
}

type Processor struct {
	layout  *storage.Layout
	cleaner *storage.Cleaner
	prober  Prober
	opts    Options
	log     *zap.Logger
}

func NewProcessor(layout *storage.Layout, cleaner *storage.Cleaner, prober Prober, opts Options, log *zap.Logger) *Processor {
	return &Processor{
		layout:  layout,
		cleaner: cleaner,
		prober:  prober,
		opts:    opts,
		log:     log.Named("processing"),
	}
}

// Process dispatches on category. It never fails the file.
func (p *Processor) Process(ctx context.Context, sf *storage.StoredFile, mimeType string) *Result {
	res := &Result{}
	p.dispatch(ctx, sf, mimeType, res)

	for _, reason := range res.Degraded {
		p.log.Warn("processing degraded",
			zap.String("asset_id", sf.ID),
			zap.String("category", string(sf.Category)),
			zap.String("path", sf.RelPath),
			zap.String("reason", reason),
		)
	}
	return res
}

// dispatch turns a panicking decoder into a degraded result. Derived files the
// branch may have started are removed; the original stays.
func (p *Processor) dispatch(ctx context.Context, sf *storage.StoredFile, mimeType string, res *Result) {
	defer func() {
		if r := recover(); r != nil {
			p.cleaner.Remove(sf.ID,
				storage.ThumbnailRel(sf.ID),
				storage.OptimizedRel(sf.ID, ".jpg"),
				storage.OptimizedRel(sf.ID, ".png"),
			)
			res.ThumbnailPath, res.OptimizedPath = nil, nil
			res.degrade("%s processing panicked: %v", sf.Category, r)
		}
	}()

	switch sf.Category {
	case mediatype.CategoryImage:
		p.processImage(sf, mimeType, res)
	case mediatype.CategoryVideo:
		p.processVideo(ctx, sf, res)
	case mediatype.CategoryAudio:
		p.processAudio(ctx, sf, res)
	}
}

func (p *Processor) processVideo(ctx context.Context, sf *storage.StoredFile, res *Result) {
	info, err := p.probe(ctx, sf.Path)
	if err != nil {
		res.degrade("video probe: %v", err)
		return
	}

	if info.Width > 0 && info.Height > 0 {
		w, h := info.Width, info.Height
		res.Width, res.Height = &w, &h
	}
	if info.Duration > 0 {
		d := int(math.Round(info.Duration))
		res.DurationSeconds = &d
	}

	if !info.HasVideo {
		res.degrade("video thumbnail: no video stream")
		return
	}

	at := info.Duration * float64(p.opts.VideoThumbnailPercent) / 100
	rel := storage.ThumbnailRel(sf.ID)
	dst, err := p.layout.Abs(rel)
	if err != nil {
		res.degrade("video thumbnail: %v", err)
		return
	}

	captureCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	err = p.prober.CaptureFrame(captureCtx, sf.Path, dst, at, p.opts.ThumbnailSize)
	if err == nil {
		err = nonEmpty(dst)
	}
	if err != nil {
		p.cleaner.Remove(sf.ID, rel)
		res.degrade("video thumbnail: %v", err)
		return
	}
	res.ThumbnailPath = &rel
}

func (p *Processor) processAudio(ctx context.Context, sf *storage.StoredFile, res *Result) {
	if info, err := p.probe(ctx, sf.Path); err != nil {
		res.degrade("audio probe: %v", err)
	} else if info.Duration > 0 {
		d := int(math.Round(info.Duration))
		res.DurationSeconds = &d
	}

	// Tags are a bonus; missing or unreadable tags are not a degradation.
	if tags := readAudioTags(sf.Path); len(tags) > 0 {
		res.Tags = tags
	}
}

func (p *Processor) probe(ctx context.Context, path string) (*ProbeInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	return p.prober.Probe(probeCtx, path)
}

func readAudioTags(path string) map[string]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil
	}

	tags := map[string]string{}
	for k, v := range map[string]string{
		"title":  m.Title(),
		"artist": m.Artist(),
		"album":  m.Album(),
		"genre":  m.Genre(),
	} {
		if v != "" {
			tags[k] = v
		}
	}
	if m.Year() > 0 {
		tags["year"] = fmt.Sprint(m.Year())
	}
	return tags
}

func nonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
