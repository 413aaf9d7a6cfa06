// Package media validates uploaded images, normalizes them to JPEG (plus an
// optional WebP variant) and writes them to the asset store.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"mime"
	"net/http"
	"strings"
	"sync"

	"classifieds/internal/models"
	"classifieds/internal/observability"
	"classifieds/internal/storage"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxUploadSizeMB = 10
	MaxDimension           = 2048
	JPEGQuality            = 82
	WebPQuality            = 70
)

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Stored is the result of saving one upload.
type Stored struct {
	URL     string
	WebPURL string
}

// Processor turns uploads into stored assets.
type Processor struct {
	store              storage.Store
	maxUploadSizeBytes int64
	webpVariants       bool
}

// NewProcessor returns a processor writing to store.
func NewProcessor(store storage.Store, maxUploadSizeMB int, webpVariants bool) *Processor {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = DefaultMaxUploadSizeMB
	}
	return &Processor{
		store:              store,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		webpVariants:       webpVariants,
	}
}

// Store returns the asset store the processor writes to.
func (p *Processor) Store() storage.Store {
	return p.store
}

// JPEGOnly returns a copy of p that skips WebP variants.
func (p *Processor) JPEGOnly() *Processor {
	cp := *p
	cp.webpVariants = false
	return &cp
}

type encoded struct {
	jpeg []byte
	webp []byte
}

// Validate checks size, sniffed type and decodability without encoding anything.
func (p *Processor) Validate(in Upload) error {
	_, err := p.decode(in)
	return err
}

func (p *Processor) decode(in Upload) (image.Image, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > p.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", p.maxUploadSizeBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") &&
		!isMatchingContentType(provided, decodedFormatToMime(format)) {
		return nil, models.NewValidationError("Image content type mismatch")
	}
	return decoded, nil
}

func (p *Processor) encode(in Upload) (*encoded, error) {
	decoded, err := p.decode(in)
	if err != nil {
		return nil, err
	}

	normalized := resizeToFit(decoded, MaxDimension, MaxDimension)
	out := &encoded{}
	if out.jpeg, err = encodeJPEG(normalized, JPEGQuality); err != nil {
		return nil, models.NewInternalError(err)
	}
	if p.webpVariants {
		if out.webp, err = encodeWebP(normalized, WebPQuality); err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	return out, nil
}

// Save processes and stores a single upload under prefix.
func (p *Processor) Save(ctx context.Context, prefix string, in Upload) (*Stored, error) {
	stored, err := p.SaveAll(ctx, prefix, []Upload{in})
	if err != nil {
		return nil, err
	}
	return &stored[0], nil
}

// SaveAll processes and stores uploads concurrently, preserving input order.
// If any upload fails, every blob already written is removed before returning.
func (p *Processor) SaveAll(ctx context.Context, prefix string, uploads []Upload) (_ []Stored, err error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	ctx, span := observability.StartServiceSpan(ctx, "media", "SaveAll")
	defer func() { observability.EndSpan(span, err) }()

	results := make([]Stored, len(uploads))
	var (
		mu      sync.Mutex
		written []string
	)
	track := func(url string) {
		mu.Lock()
		written = append(written, url)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			enc, err := p.encode(up)
			if err != nil {
				observability.ImagesProcessed.WithLabelValues("rejected").Inc()
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}

			url, err := p.store.Put(gctx, storage.NewObjectKey(prefix, ".jpg"), enc.jpeg, "image/jpeg")
			if err != nil {
				observability.ImagesProcessed.WithLabelValues("store_failed").Inc()
				return models.NewInternalError(err)
			}
			track(url)
			results[i].URL = url

			if enc.webp != nil {
				webpURL, err := p.store.Put(gctx, storage.NewObjectKey(prefix, ".webp"), enc.webp, "image/webp")
				if err != nil {
					observability.ImagesProcessed.WithLabelValues("store_failed").Inc()
					return models.NewInternalError(err)
				}
				track(webpURL)
				results[i].WebPURL = webpURL
			}
			observability.ImagesProcessed.WithLabelValues("stored").Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		storage.DeleteAll(context.WithoutCancel(ctx), p.store, written)
		return nil, err
	}
	return results, nil
}

// URLs flattens stored results into every URL they reference.
func URLs(stored []Stored) []string {
	urls := make([]string, 0, len(stored)*2)
	for _, s := range stored {
		urls = append(urls, s.URL)
		if s.WebPURL != "" {
			urls = append(urls, s.WebPURL)
		}
	}
	return urls
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
