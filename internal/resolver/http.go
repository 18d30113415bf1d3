package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/mediaresolver/pkg/metrics"
)

const maxRequestBodyBytes = 64 << 10

// MediaResolver is the operation the HTTP layer exposes.
type MediaResolver interface {
	ResolveMedia(ctx context.Context, identifier string) (*Media, error)
}

// HTTPOptions tunes the transport.
type HTTPOptions struct {
	RequestTimeout time.Duration
	CompressLevel  int
	Metrics        metrics.Metrics
}

// HTTPHandler exposes REST endpoints for the resolver service.
type HTTPHandler struct {
	service MediaResolver
	logger  *zap.Logger
	opts    HTTPOptions
	router  chi.Router
}

type resolveRequest struct {
	VideoID string `json:"video_id"`
}

type resolveResponse struct {
	DownloadURL     string `json:"download_url"`
	ThumbnailBase64 string `json:"thumbnail_base64"`
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(service MediaResolver, logger *zap.Logger, opts HTTPOptions) *HTTPHandler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.CompressLevel <= 0 {
		opts.CompressLevel = 5
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	h := &HTTPHandler{
		service: service,
		logger:  logger,
		opts:    opts,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)
	r.Use(middleware.Compress(h.opts.CompressLevel, "application/json"))
	r.Use(middleware.Timeout(h.opts.RequestTimeout))

	r.Get("/healthz", h.handleHealth)

	// Legacy path used by existing clients.
	r.Post("/fetch_song_info", h.handleResolveBody)

	r.Route("/api/v1/media", func(r chi.Router) {
		r.Post("/resolve", h.handleResolveBody)
		r.Get("/{id}", h.handleResolvePath)
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleResolveBody(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a video_id field")
		return
	}
	h.resolve(w, r, req.VideoID)
}

func (h *HTTPHandler) handleResolvePath(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, chi.URLParam(r, "id"))
}

func (h *HTTPHandler) resolve(w http.ResponseWriter, r *http.Request, identifier string) {
	identifier = strings.TrimSpace(identifier)
	media, err := h.service.ResolveMedia(r.Context(), identifier)
	if err != nil {
		status, kind, detail := describeError(err)
		fields := []zap.Field{
			zap.String("identifier", identifier),
			zap.String("kind", kind),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("resolve media failed", fields...)
		} else {
			h.logger.Info("resolve media rejected", fields...)
		}
		writeError(w, status, kind, detail)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		DownloadURL:     media.DownloadURL,
		ThumbnailBase64: media.ThumbnailBase64,
	})
}

// observe records request counts and latency by route pattern.
func (h *HTTPHandler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.opts.Metrics.ObserveRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// describeError maps an error kind to its HTTP status, code and client detail.
func describeError(err error) (int, string, string) {
	kind := errorKind(err)
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return http.StatusBadRequest, kind, "video_id is required"
	case errors.Is(err, ErrNoSuitableFormat):
		return http.StatusNotFound, kind, ErrNoSuitableFormat.Error()
	case errors.Is(err, ErrMetadataNotFound):
		return http.StatusNotFound, kind, ErrMetadataNotFound.Error()
	case errors.Is(err, ErrThumbnailFailed):
		return http.StatusInternalServerError, kind, "failed to download song thumbnail"
	case errors.Is(err, ErrResolutionFailed):
		return http.StatusBadGateway, kind, err.Error()
	case errors.Is(err, ErrStore):
		return http.StatusServiceUnavailable, kind, ErrStore.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout", "resolution did not finish in time"
	default:
		return http.StatusInternalServerError, kind, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]string{
		"error":  kind,
		"detail": detail,
	})
}
