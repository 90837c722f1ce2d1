// Package imaging normalizes catalog image references into a bounded-size
// data-URI representation suitable for the image embedding model and for
// storage in the vector collection payload.
//
// A reference may arrive as an HTTP(S) URL, a local file path, or an already
// base64-encoded payload. URLs and paths are fetched, decoded, resized to fit
// within MaxWidth×MaxHeight (aspect ratio preserved), re-encoded as JPEG, and
// wrapped as "data:image/jpeg;base64,...". Normalization failures are soft:
// callers receive an error and must treat the reference as having no usable
// embedding, never as a fatal condition.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// MaxEncodedLength is the hard cap on the length of a normalized data-URI
// string. It matches the varchar limit of the vector store payload column;
// anything longer is rejected rather than truncated.
const MaxEncodedLength = 65535

// urlPattern matches http:// and https:// references.
var urlPattern = regexp.MustCompile(`^https?://`)

// IsURL reports whether s looks like an HTTP(S) URL.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// IsPath reports whether s names an existing file on disk.
func IsPath(s string) bool {
	if s == "" || IsURL(s) || strings.HasPrefix(s, "data:") {
		return false
	}
	info, err := os.Stat(s)
	return err == nil && !info.IsDir()
}

// Config holds the normalization bounds. The zero value selects the defaults
// used by the catalog pipeline (256×256, JPEG quality 85).
type Config struct {
	// MaxWidth is the maximum output width in pixels.
	MaxWidth int
	// MaxHeight is the maximum output height in pixels.
	MaxHeight int
	// Quality is the JPEG re-encode quality (1–100).
	Quality int
	// FetchTimeout bounds each URL fetch.
	FetchTimeout time.Duration
}

// Normalizer converts image references into bounded data-URI strings.
// It is safe for concurrent use.
type Normalizer struct {
	// cfg holds the resolved bounds.
	cfg Config
	// client is the shared HTTP client used for URL references.
	client *http.Client
}

// NewNormalizer constructs a Normalizer, applying defaults for zero fields.
func NewNormalizer(cfg Config) *Normalizer {
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 256
	}
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 256
	}
	if cfg.Quality <= 0 {
		cfg.Quality = 85
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 120 * time.Second
	}
	return &Normalizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Normalize classifies ref and returns a bounded data-URI representation.
//
//   - URL: fetched over HTTP, decoded, resized, re-encoded.
//   - Path: read from disk, decoded, resized, re-encoded.
//   - Anything else: assumed to be an already-encoded payload; passed through
//     after the length cap check (data-URI payloads are additionally resized
//     when decodable, matching the behaviour for fetched bytes).
//
// The returned string never exceeds MaxEncodedLength. On any failure —
// network, decode, or cap overflow — an empty string and a descriptive error
// are returned; callers treat this as "no embedding possible".
func (n *Normalizer) Normalize(ctx context.Context, ref string) (string, error) {
	switch {
	case IsURL(ref):
		raw, err := n.fetch(ctx, ref)
		if err != nil {
			return "", err
		}
		return n.encode(raw)

	case IsPath(ref):
		raw, err := os.ReadFile(ref)
		if err != nil {
			return "", fmt.Errorf("imaging: read %s: %w", ref, err)
		}
		return n.encode(raw)

	default:
		return n.passthrough(ref)
	}
}

// fetch retrieves the raw bytes of an image URL.
func (n *Normalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imaging: create request: %w", err)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imaging: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imaging: fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imaging: read body: %w", err)
	}
	return raw, nil
}

// encode decodes raw image bytes, resizes to the configured bounds, re-encodes
// as JPEG, and wraps the result as a data-URI. Fails if the final string
// exceeds MaxEncodedLength.
func (n *Normalizer) encode(raw []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("imaging: decode: %w", err)
	}

	resized := n.thumbnail(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: n.cfg.Quality}); err != nil {
		return "", fmt.Errorf("imaging: jpeg encode: %w", err)
	}

	encoded := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(encoded) > MaxEncodedLength {
		return "", fmt.Errorf("imaging: encoded length %d exceeds cap %d", len(encoded), MaxEncodedLength)
	}
	return encoded, nil
}

// passthrough handles references that are already-encoded payloads.
// Decodable data-URIs are resized and re-encoded so oversized uploads still
// fit the cap; opaque payloads are only length-checked.
func (n *Normalizer) passthrough(ref string) (string, error) {
	if payload, ok := strings.CutPrefix(ref, "data:"); ok {
		if _, b64, found := strings.Cut(payload, ","); found {
			if raw, err := base64.StdEncoding.DecodeString(b64); err == nil {
				if encoded, encErr := n.encode(raw); encErr == nil {
					return encoded, nil
				}
			}
		}
	}

	if len(ref) > MaxEncodedLength {
		return "", fmt.Errorf("imaging: payload length %d exceeds cap %d", len(ref), MaxEncodedLength)
	}
	return ref, nil
}

// thumbnail scales img down to fit within the configured bounds, preserving
// aspect ratio. Images already within bounds are returned unchanged.
func (n *Normalizer) thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= n.cfg.MaxWidth && h <= n.cfg.MaxHeight {
		return img
	}

	scaleW := float64(n.cfg.MaxWidth) / float64(w)
	scaleH := float64(n.cfg.MaxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	outW := int(float64(w) * scale)
	outH := int(float64(h) * scale)
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
