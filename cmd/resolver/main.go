package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/mediaresolver/internal/provider/ytdlp"
	"github.com/your-org/mediaresolver/internal/resolver"
	"github.com/your-org/mediaresolver/internal/thumbnail"
	"github.com/your-org/mediaresolver/pkg/cachestore"
	"github.com/your-org/mediaresolver/pkg/config"
	"github.com/your-org/mediaresolver/pkg/kafka"
	"github.com/your-org/mediaresolver/pkg/logger"
	"github.com/your-org/mediaresolver/pkg/metrics"
	"github.com/your-org/mediaresolver/pkg/storage/objectstore"
	"github.com/your-org/mediaresolver/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.LogEncoding)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	registry := prometheus.NewRegistry()
	mtr, err := metrics.NewProm(cfg.Metrics.Namespace, registry)
	if err != nil {
		logr.Fatal("init metrics", zap.Error(err))
	}

	store, err := cachestore.Open(ctx, cachestore.Config{
		Driver:         cfg.Store.Driver,
		RedisURL:       cfg.Store.RedisURL,
		RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
		PostgresDSN:    cfg.Store.PostgresDSN,
		Object: objectstore.Config{
			Provider:  cfg.Store.Object.Provider,
			Endpoint:  cfg.Store.Object.Endpoint,
			Region:    cfg.Store.Object.Region,
			Bucket:    cfg.Store.Object.Bucket,
			AccessKey: cfg.Store.Object.AccessKey,
			SecretKey: cfg.Store.Object.SecretKey,
			UseSSL:    cfg.Store.Object.UseSSL,
		},
		ObjectPrefix:   cfg.Store.Object.Prefix,
		MemoryTierSize: cfg.Store.MemoryTierSize,
	})
	if err != nil {
		logr.Fatal("open cache store", zap.Error(err), zap.String("driver", cfg.Store.Driver))
	}

	var (
		producer  *kafka.Producer
		publisher resolver.Publisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.ResolvedTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  cfg.Kafka.Retries,
		})
		publisher = resolver.NewKafkaPublisher(producer)
	}

	provider := ytdlp.NewClient(ytdlp.Params{
		Binary:    cfg.Provider.Binary,
		ExtraArgs: cfg.Provider.Args,
		Logger:    logr.Named("ytdlp"),
	})

	service := resolver.NewService(resolver.Params{
		Store:   store,
		Engine:  provider,
		Catalog: provider,
		Transcoder: thumbnail.NewTranscoder(thumbnail.Params{
			MaxBytes:  cfg.Thumbnail.MaxBytes,
			MaxPixels: cfg.Thumbnail.MaxPixels,
			Timeout:   cfg.Thumbnail.FetchTimeout,
			Logger:    logr.Named("thumbnail"),
		}),
		Publisher:      publisher,
		Metrics:        mtr,
		Logger:         logr,
		ResolveTimeout: cfg.Resolve.Timeout,
	})

	handler := resolver.NewHTTPHandler(service, logr, resolver.HTTPOptions{
		RequestTimeout: cfg.HTTP.RequestTimeout,
		CompressLevel:  cfg.HTTP.CompressLevel,
		Metrics:        mtr,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(registry))
	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("metrics server failed", zap.Error(err))
		}
	}()

	logr.Info("media resolver starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("metrics_addr", cfg.Metrics.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("events", producer != nil),
	)

	steps := []shutdownStep{
		{name: "http server", close: server.Shutdown},
		{name: "metrics server", close: metricsServer.Shutdown},
		{name: "resolver service", close: service.Close},
	}
	if producer != nil {
		steps = append(steps, shutdownStep{name: "kafka producer", close: producer.Close})
	}
	steps = append(steps, shutdownStep{name: "cache store", close: func(context.Context) error {
		return store.Close()
	}})

	if err := runUntilShutdown(ctx, logr, server.ListenAndServe, steps); err != nil {
		logr.Fatal("http server failed", zap.Error(err))
	}
	logr.Info("media resolver stopped")
}
