// Package thumbnail turns a remote image into the canonical companion
// thumbnail: a 200x200 JPEG, base64 encoded.
package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the edge length of the output thumbnail.
	Size = 200

	defaultMaxBytes     = 10 << 20
	defaultMaxPixels    = 40_000_000
	defaultFetchTimeout = 20 * time.Second
)

var (
	// ErrFetchFailed covers transport errors, non-2xx responses and oversized bodies.
	ErrFetchFailed = errors.New("thumbnail fetch failed")
	// ErrDecodeFailed covers corrupt, unsupported or oversized image data.
	ErrDecodeFailed = errors.New("thumbnail decode failed")
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Params struct {
	Client   HTTPDoer
	MaxBytes int64
	// MaxPixels caps the declared width*height of a source image.
	MaxPixels int64
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Transcoder fetches source images and produces the canonical thumbnail.
type Transcoder struct {
	client    HTTPDoer
	maxBytes  int64
	maxPixels int64
	logger    *zap.Logger
}

// NewTranscoder constructs a Transcoder. A nil Client gets an http.Client
// bounded by Timeout.
func NewTranscoder(p Params) *Transcoder {
	if p.MaxBytes <= 0 {
		p.MaxBytes = defaultMaxBytes
	}
	if p.MaxPixels <= 0 {
		p.MaxPixels = defaultMaxPixels
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultFetchTimeout
	}
	if p.Client == nil {
		p.Client = &http.Client{Timeout: p.Timeout}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Transcoder{
		client:    p.Client,
		maxBytes:  p.MaxBytes,
		maxPixels: p.MaxPixels,
		logger:    p.Logger,
	}
}

// Transcode fetches sourceURL and returns the base64 of a 200x200 JPEG.
func (t *Transcoder) Transcode(ctx context.Context, sourceURL string) (string, error) {
	raw, err := t.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	// A few KiB of compressed data can declare gigapixel dimensions, so the
	// header is checked before any pixels are allocated.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > t.maxPixels {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeFailed, cfg.Width, cfg.Height, t.maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	encoded, err := Encode(src)
	if err != nil {
		return "", err
	}

	t.logger.Debug("thumbnail transcoded",
		zap.String("source_format", format),
		zap.Int("source_width", src.Bounds().Dx()),
		zap.Int("source_height", src.Bounds().Dy()),
		zap.Int("jpeg_bytes", len(encoded)),
	)
	return base64.StdEncoding.EncodeToString(encoded), nil
}

// Encode scales src to exactly Size x Size, ignoring its aspect ratio, and
// encodes it as JPEG at the default quality.
func Encode(src image.Image) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpeg.DefaultQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Transcoder) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	if int64(len(raw)) > t.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrFetchFailed, t.maxBytes)
	}
	return raw, nil
}
