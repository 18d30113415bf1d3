package resolver

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/mediaresolver/pkg/metrics"
)

type stubResolver struct {
	mu    sync.Mutex
	ids   []string
	media *Media
	err   error
}

func (s *stubResolver) ResolveMedia(_ context.Context, identifier string) (*Media, error) {
	s.mu.Lock()
	s.ids = append(s.ids, identifier)
	s.mu.Unlock()
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.media, nil
}

type requestRecorder struct {
	metrics.Noop
	mu     sync.Mutex
	routes []string
}

func (r *requestRecorder) ObserveRequest(method, route, status string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, fmt.Sprintf("%s %s %s", method, route, status))
}

func newTestServer(t *testing.T, svc MediaResolver, m metrics.Metrics) *httptest.Server {
	t.Helper()
	h := NewHTTPHandler(svc, zap.NewNop(), HTTPOptions{Metrics: m})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHTTPResolveEndpoints(t *testing.T) {
	stub := &stubResolver{media: &Media{DownloadURL: testAudioURL, ThumbnailBase64: testThumb}}
	srv := newTestServer(t, stub, nil)

	for _, path := range []string{"/fetch_song_info", "/api/v1/media/resolve"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{"video_id":"abc"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		body := decodeBody(t, resp)
		require.Equal(t, testAudioURL, body["download_url"])
		require.Equal(t, testThumb, body["thumbnail_base64"])
	}

	resp, err := http.Get(srv.URL + "/api/v1/media/xyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testAudioURL, decodeBody(t, resp)["download_url"])

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Equal(t, []string{"abc", "abc", "xyz"}, stub.ids)
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{err: fmt.Errorf("%w: 0 candidates", ErrNoSuitableFormat), wantStatus: http.StatusNotFound, wantKind: "no_suitable_format"},
		{err: ErrMetadataNotFound, wantStatus: http.StatusNotFound, wantKind: "metadata_not_found"},
		{err: fmt.Errorf("%w: %w", ErrThumbnailFailed, errors.New("bad image")), wantStatus: http.StatusInternalServerError, wantKind: "thumbnail_failed"},
		{err: fmt.Errorf("%w: %w", ErrResolutionFailed, errors.New("unavailable")), wantStatus: http.StatusBadGateway, wantKind: "resolution_failed"},
		{err: fmt.Errorf("%w: %w", ErrStore, errors.New("refused")), wantStatus: http.StatusServiceUnavailable, wantKind: "store_unavailable"},
		{err: context.DeadlineExceeded, wantStatus: http.StatusGatewayTimeout, wantKind: "timeout"},
		{err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantKind: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.wantKind, func(t *testing.T) {
			srv := newTestServer(t, &stubResolver{err: tt.err}, nil)

			resp, err := http.Post(srv.URL+"/fetch_song_info", "application/json", strings.NewReader(`{"video_id":"abc"}`))
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decodeBody(t, resp)
			require.Equal(t, tt.wantKind, body["error"])
			require.NotEmpty(t, body["detail"])
		})
	}
}

func TestHTTPBadRequests(t *testing.T) {
	stub := &stubResolver{media: &Media{}}
	srv := newTestServer(t, stub, nil)

	for _, payload := range []string{`not json`, `{"video_id":""}`, `{}`, `{"video_id":"   "}`} {
		resp, err := http.Post(srv.URL+"/fetch_song_info", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
		resp.Body.Close()
	}
}

func TestHTTPHealthAndUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &stubResolver{}, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeBody(t, resp)["status"])

	resp, err = http.Get(srv.URL + "/fetch_song_info")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHTTPCompressesJSON(t *testing.T) {
	stub := &stubResolver{media: &Media{DownloadURL: testAudioURL, ThumbnailBase64: strings.Repeat("A", 4096)}}
	srv := newTestServer(t, stub, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/media/abc", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	var body resolveResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Equal(t, testAudioURL, body.DownloadURL)
}

func TestHTTPRecordsRouteMetrics(t *testing.T) {
	rec := &requestRecorder{}
	srv := newTestServer(t, &stubResolver{err: ErrMetadataNotFound}, rec)

	resp, err := http.Get(srv.URL + "/api/v1/media/abc")
	require.NoError(t, err)
	resp.Body.Close()

	// The middleware records after the body has been flushed to the client.
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.routes) == 1
	}, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, "GET /api/v1/media/{id} 404", rec.routes[0])
}
