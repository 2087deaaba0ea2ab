package processing

import (
	"image"
	"image/color"
	"image/png"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	"parish-media/internal/storage"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// processImage records the original dimensions, then derives the thumbnail and the
// optimized copy independently. A failed step removes its own output and leaves the
// corresponding path nil; the original is always kept.
func (p *Processor) processImage(sf *storage.StoredFile, mimeType string, res *Result) {
	// The header alone decides whether a full decode is affordable.
	w, h, ok := decodeConfig(sf.Path)
	if !ok {
		res.degrade("image decode: unreadable header")
		return
	}
	res.Width, res.Height = &w, &h
	if p.opts.MaxPixels > 0 && int64(w)*int64(h) > p.opts.MaxPixels {
		res.degrade("image decode: %dx%d exceeds %d pixels", w, h, p.opts.MaxPixels)
		return
	}

	src, err := imaging.Open(sf.Path, imaging.AutoOrientation(true))
	if err != nil {
		res.degrade("image decode: %v", err)
		return
	}

	// Auto-orientation may swap the axes.
	b := src.Bounds()
	ow, oh := b.Dx(), b.Dy()
	res.Width, res.Height = &ow, &oh

	thumbRel := storage.ThumbnailRel(sf.ID)
	if err := p.saveImage(sf.ID, thumbRel, func(path string) error {
		thumb := imaging.Fit(src, p.opts.ThumbnailSize, p.opts.ThumbnailSize, imaging.Lanczos)
		return imaging.Save(flatten(thumb), path, imaging.JPEGQuality(p.opts.ThumbnailQuality))
	}); err != nil {
		res.degrade("image thumbnail: %v", err)
	} else {
		res.ThumbnailPath = &thumbRel
	}

	// Re-encoding a GIF would drop its animation.
	if mimeType == "image/gif" {
		return
	}

	ext, opts := ".jpg", []imaging.EncodeOption{imaging.JPEGQuality(p.opts.OptimizedQuality)}
	if mimeType == "image/png" {
		ext, opts = ".png", []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)}
	}
	optRel := storage.OptimizedRel(sf.ID, ext)
	if err := p.saveImage(sf.ID, optRel, func(path string) error {
		out := imaging.Fit(src, p.opts.OptimizedWidth, p.opts.OptimizedHeight, imaging.Lanczos)
		if ext == ".jpg" {
			out = flatten(out)
		}
		return imaging.Save(out, path, opts...)
	}); err != nil {
		res.degrade("image optimize: %v", err)
	} else {
		res.OptimizedPath = &optRel
	}
}

func (p *Processor) saveImage(assetID, rel string, save func(path string) error) error {
	path, err := p.layout.Abs(rel)
	if err != nil {
		return err
	}
	if err := save(path); err != nil {
		p.cleaner.Remove(assetID, rel)
		return err
	}
	return nil
}

// flatten composites the image onto white so transparent regions do not turn black in JPEG.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func decodeConfig(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
