package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/mediaresolver/pkg/cachestore"
	"github.com/your-org/mediaresolver/pkg/metrics"
)

const (
	tracerName     = "github.com/your-org/mediaresolver/internal/resolver"
	publishTimeout = 10 * time.Second
)

// Engine resolves an identifier into the candidate variants it can be served as.
type Engine interface {
	Resolve(ctx context.Context, identifier string) ([]Candidate, error)
}

// Thumbnail is one image offered by the catalog for a song.
type Thumbnail struct {
	URL    string
	Width  int
	Height int
}

// SongMetadata is the catalog view of a song. Thumbnails are ordered from
// lowest to highest resolution.
type SongMetadata struct {
	Title      string
	Thumbnails []Thumbnail
}

// Catalog looks up song metadata. A song that does not exist is reported as
// ErrMetadataNotFound or a nil result.
type Catalog interface {
	SongMetadata(ctx context.Context, identifier string) (*SongMetadata, error)
}

// Transcoder turns a thumbnail source URL into the stored base64 JPEG.
type Transcoder interface {
	Transcode(ctx context.Context, sourceURL string) (string, error)
}

// Media is the payload returned for an identifier.
type Media struct {
	DownloadURL     string
	ThumbnailBase64 string
}

// Params wires the Service collaborators.
type Params struct {
	Store      cachestore.Store
	Engine     Engine
	Catalog    Catalog
	Transcoder Transcoder
	Publisher  Publisher
	Metrics    metrics.Metrics
	Logger     *zap.Logger
	// ResolveTimeout bounds one full resolution; zero means no bound.
	ResolveTimeout time.Duration
	Now            func() time.Time
}

// Service serves media payloads from the resolution cache and resolves,
// transcodes and commits on a miss. At most one resolution per identifier
// runs at a time; other callers for that identifier wait for its result.
type Service struct {
	store          cachestore.Store
	engine         Engine
	catalog        Catalog
	transcoder     Transcoder
	publisher      Publisher
	metrics        metrics.Metrics
	logger         *zap.Logger
	tracer         trace.Tracer
	resolveTimeout time.Duration
	now            func() time.Time

	flights    singleflight.Group
	publishing sync.WaitGroup
}

// NewService constructs a resolver Service.
func NewService(p Params) *Service {
	if p.Publisher == nil {
		p.Publisher = noopPublisher{}
	}
	if p.Metrics == nil {
		p.Metrics = metrics.Noop{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		store:          p.Store,
		engine:         p.Engine,
		catalog:        p.Catalog,
		transcoder:     p.Transcoder,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
		logger:         p.Logger,
		tracer:         otel.Tracer(tracerName),
		resolveTimeout: p.ResolveTimeout,
		now:            p.Now,
	}
}

// ResolveMedia returns the download URL and thumbnail for identifier, serving a
// fresh cached entry when there is one.
//
// If ctx ends while a resolution is running, ResolveMedia returns ctx.Err() but
// the resolution still runs to completion and commits for later callers.
func (s *Service) ResolveMedia(ctx context.Context, identifier string) (*Media, error) {
	if identifier == "" {
		return nil, ErrInvalidIdentifier
	}

	ctx, span := s.tracer.Start(ctx, "resolver.ResolveMedia",
		trace.WithAttributes(attribute.String("media.identifier", identifier)))
	defer span.End()

	media, ok, err := s.lookup(ctx, identifier)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if ok {
		s.metrics.IncCacheLookup(metrics.OutcomeHit)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return media, nil
	}
	s.metrics.IncCacheLookup(metrics.OutcomeMiss)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	flight := s.flights.DoChan(identifier, func() (any, error) {
		return s.resolveExclusive(context.WithoutCancel(ctx), identifier)
	})

	select {
	case <-ctx.Done():
		s.logger.Info("caller left before resolution finished",
			zap.String("identifier", identifier), zap.Error(ctx.Err()))
		recordSpanError(span, ctx.Err())
		return nil, ctx.Err()
	case res := <-flight:
		if res.Shared {
			s.metrics.IncCacheLookup(metrics.OutcomeShared)
		}
		if res.Err != nil {
			recordSpanError(span, res.Err)
			return nil, res.Err
		}
		shared := *res.Val.(*Media)
		return &shared, nil
	}
}

// Close waits for pending event publications.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pending events: %w", ctx.Err())
	}
}

// lookup reports a fresh cached payload for identifier, if any.
func (s *Service) lookup(ctx context.Context, identifier string) (*Media, bool, error) {
	entry, err := s.store.Get(ctx, identifier)
	if errors.Is(err, cachestore.ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if !entry.Fresh(s.now()) {
		return nil, false, nil
	}
	return &Media{DownloadURL: entry.DownloadURL, ThumbnailBase64: entry.ThumbnailBase64}, true, nil
}

// resolveExclusive runs inside the identifier's flight.
func (s *Service) resolveExclusive(ctx context.Context, identifier string) (*Media, error) {
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}

	start := time.Now()
	media, err := s.resolve(ctx, identifier)
	elapsed := time.Since(start)
	s.metrics.ObserveResolution(errorKind(err), elapsed.Seconds())

	if err != nil {
		s.logger.Warn("media resolution failed",
			zap.String("identifier", identifier),
			zap.String("kind", errorKind(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	return media, nil
}

func (s *Service) resolve(ctx context.Context, identifier string) (*Media, error) {
	// Another flight may have committed between our lookup and this one starting.
	if media, ok, err := s.lookup(ctx, identifier); err != nil {
		return nil, err
	} else if ok {
		s.logger.Debug("entry refreshed by earlier resolution", zap.String("identifier", identifier))
		return media, nil
	}

	candidates, err := s.resolveCandidates(ctx, identifier)
	if err != nil {
		return nil, err
	}

	selected, err := SelectArtifact(candidates)
	if err != nil {
		return nil, fmt.Errorf("%w: %d candidates for %s", err, len(candidates), identifier)
	}
	expiresAt := ExtractExpiry(selected.URL, s.now())

	sourceURL, err := s.thumbnailSource(ctx, identifier)
	if err != nil {
		return nil, err
	}

	thumb, err := s.transcode(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	entry := cachestore.Entry{
		Identifier:      identifier,
		DownloadURL:     selected.URL,
		ThumbnailBase64: thumb,
		ExpiresAt:       expiresAt,
	}
	if err := s.commit(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("media resolved",
		zap.String("identifier", identifier),
		zap.Float64("audio_bitrate", selected.AudioBitrate),
		zap.String("audio_codec", selected.AudioCodec),
		zap.Time("expires_at", expiresAt),
	)
	s.publish(ctx, entry)

	return &Media{DownloadURL: entry.DownloadURL, ThumbnailBase64: entry.ThumbnailBase64}, nil
}

func (s *Service) resolveCandidates(ctx context.Context, identifier string) ([]Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.engine.Resolve")
	defer span.End()

	candidates, err := s.engine.Resolve(ctx, identifier)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrResolutionFailed, err)
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("media.candidates", len(candidates)))
	return candidates, nil
}

// thumbnailSource returns the highest resolution thumbnail URL, which the
// catalog lists last.
func (s *Service) thumbnailSource(ctx context.Context, identifier string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.catalog.SongMetadata")
	defer span.End()

	meta, err := s.catalog.SongMetadata(ctx, identifier)
	switch {
	case errors.Is(err, ErrMetadataNotFound):
		recordSpanError(span, err)
		return "", err
	case err != nil:
		err = fmt.Errorf("%w: catalog lookup: %w", ErrResolutionFailed, err)
		recordSpanError(span, err)
		return "", err
	case meta == nil:
		err = fmt.Errorf("%w: %s", ErrMetadataNotFound, identifier)
		recordSpanError(span, err)
		return "", err
	case len(meta.Thumbnails) == 0:
		err = fmt.Errorf("%w: no thumbnails for %s", ErrMetadataNotFound, identifier)
		recordSpanError(span, err)
		return "", err
	}

	best := meta.Thumbnails[len(meta.Thumbnails)-1]
	if best.URL == "" {
		err = fmt.Errorf("%w: empty thumbnail url for %s", ErrMetadataNotFound, identifier)
		recordSpanError(span, err)
		return "", err
	}
	return best.URL, nil
}

func (s *Service) transcode(ctx context.Context, sourceURL string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.thumbnail.Transcode")
	defer span.End()

	thumb, err := s.transcoder.Transcode(ctx, sourceURL)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrThumbnailFailed, err)
		recordSpanError(span, err)
		return "", err
	}
	return thumb, nil
}

func (s *Service) commit(ctx context.Context, entry cachestore.Entry) error {
	ctx, span := s.tracer.Start(ctx, "resolver.store.Upsert")
	defer span.End()

	if err := s.store.Upsert(ctx, entry); err != nil {
		err = fmt.Errorf("%w: %w", ErrStore, err)
		recordSpanError(span, err)
		return err
	}
	return nil
}

// publish emits the resolved event in the background; failures are logged only.
func (s *Service) publish(ctx context.Context, entry cachestore.Entry) {
	event := newResolvedEvent(entry.Identifier, entry.DownloadURL, entry.ExpiresAt, s.now())
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.PublishResolved(pubCtx, event); err != nil {
			s.logger.Warn("publish resolved event failed",
				zap.String("identifier", event.Identifier),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}()
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, errorKind(err))
}
