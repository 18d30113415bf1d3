package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/thumb"
}

func decodeResult(t *testing.T, encoded string) (image.Image, string) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img, format
}

func TestTranscodeResizesIgnoringAspectRatio(t *testing.T) {
	url := serve(t, http.StatusOK, pngBytes(t, 1000, 500))
	tr := NewTranscoder(Params{})

	encoded, err := tr.Transcode(context.Background(), url)
	require.NoError(t, err)

	img, format := decodeResult(t, encoded)
	require.Equal(t, "jpeg", format)
	require.Equal(t, Size, img.Bounds().Dx())
	require.Equal(t, Size, img.Bounds().Dy())
}

func TestTranscodeUpscalesSmallSources(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 90)), nil))
	url := serve(t, http.StatusOK, buf.Bytes())

	encoded, err := NewTranscoder(Params{}).Transcode(context.Background(), url)
	require.NoError(t, err)

	img, _ := decodeResult(t, encoded)
	require.Equal(t, image.Rect(0, 0, Size, Size), img.Bounds())
}

func TestTranscodeNonSuccessStatus(t *testing.T) {
	url := serve(t, http.StatusNotFound, []byte("gone"))

	_, err := NewTranscoder(Params{}).Transcode(context.Background(), url)
	require.ErrorIs(t, err, ErrFetchFailed)
}

func TestTranscodeCorruptImage(t *testing.T) {
	url := serve(t, http.StatusOK, []byte("definitely not an image"))

	_, err := NewTranscoder(Params{}).Transcode(context.Background(), url)
	require.ErrorIs(t, err, ErrDecodeFailed)
	require.False(t, errors.Is(err, ErrFetchFailed))
}

func TestTranscodeBodyLimit(t *testing.T) {
	url := serve(t, http.StatusOK, pngBytes(t, 64, 64))

	_, err := NewTranscoder(Params{MaxBytes: 16}).Transcode(context.Background(), url)
	require.ErrorIs(t, err, ErrFetchFailed)
}

type failingDoer struct{}

func (failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestTranscodeTransportError(t *testing.T) {
	_, err := NewTranscoder(Params{Client: failingDoer{}}).Transcode(context.Background(), "http://example.invalid/x.jpg")
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorContains(t, err, "connection refused")
}

func TestTranscodeBadURL(t *testing.T) {
	_, err := NewTranscoder(Params{}).Transcode(context.Background(), "://nope")
	require.ErrorIs(t, err, ErrFetchFailed)
}

// hugePNG returns a valid PNG whose header declares w x h pixels while the
// file itself stays tiny.
func hugePNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1)
	// signature(8) + IHDR length(4) + "IHDR"(4), then width and height.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestTranscodeRejectsOversizedDimensions(t *testing.T) {
	body := hugePNG(t, 100000, 100000)
	require.Less(t, len(body), 1024)

	_, err := NewTranscoder(Params{}).Transcode(context.Background(), serve(t, http.StatusOK, body))
	require.ErrorIs(t, err, ErrDecodeFailed)
	require.ErrorContains(t, err, "100000x100000")
}

func TestTranscodePixelLimitIsConfigurable(t *testing.T) {
	url := serve(t, http.StatusOK, pngBytes(t, 64, 64))

	_, err := NewTranscoder(Params{MaxPixels: 64*64 - 1}).Transcode(context.Background(), url)
	require.ErrorIs(t, err, ErrDecodeFailed)

	encoded, err := NewTranscoder(Params{MaxPixels: 64 * 64}).Transcode(context.Background(), url)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)
}
