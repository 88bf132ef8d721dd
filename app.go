package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/chukwumela909/taskhub-server/config"
	"github.com/chukwumela909/taskhub-server/domain"
	"github.com/chukwumela909/taskhub-server/handlers"
	"github.com/chukwumela909/taskhub-server/notifications"
	"github.com/chukwumela909/taskhub-server/repositories"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "taskhub-server"

type categoryWriter interface {
	domain.CategoryDirectory
	Upsert(ctx context.Context, id, name string, active bool) error
}

// backend is the selected store together with the directories that live
// next to it.
type backend struct {
	store      domain.Store
	taskers    domain.TaskerDirectory
	categories domain.CategoryDirectory
	writer     categoryWriter
	cache      *repositories.CachedCategoryDirectory
	redis      *redis.Client
	prepare    func(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config, logger *log.Logger, tracer trace.Tracer) (*backend, error) {
	b := &backend{}
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := repositories.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, logger, tracer, cfg.OpTimeout, cfg.TxTimeout)
		if err != nil {
			return nil, err
		}
		b.store, b.taskers, b.writer, b.prepare = store, store.Taskers(), store.Categories(), store.EnsureIndexes
	case config.DriverSQLite:
		db, err := repositories.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := repositories.NewGormStore(db, logger, tracer, cfg.OpTimeout, cfg.TxTimeout)
		b.store, b.taskers, b.writer, b.prepare = store, store.Taskers(), store.Categories(), store.Migrate
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	b.categories = b.writer
	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.cache = repositories.NewCachedCategoryDirectory(b.redis, b.writer, "taskhub:category:", cfg.CategoryTTL, logger)
		b.categories = b.cache
	}
	return b, nil
}

func (b *backend) Close(ctx context.Context) error {
	err := b.store.Close(ctx)
	if b.redis != nil {
		err = errors.Join(err, b.redis.Close())
	}
	return err
}

// newSink picks the notification delivery target. The returned inbox is
// nil unless the sink keeps delivered notifications.
func newSink(cfg config.Config, logger *log.Logger, tracer trace.Tracer) (notifications.Sink, handlers.Inbox, func(), error) {
	switch cfg.NotificationSink {
	case config.SinkHTTP:
		return notifications.NewHTTPSink(notifications.DefaultHTTPSinkConfig(cfg.NotificationsURL), logger, tracer), nil, func() {}, nil
	case config.SinkCassandra:
		sink, err := notifications.NewCassandraSink(cfg.CassandraHosts, cfg.CassandraKeyspace, cfg.OpTimeout, logger, tracer)
		if err != nil {
			return nil, nil, nil, err
		}
		return sink, sink, sink.Close, nil
	default:
		return notifications.NewLogSink(logger), nil, func() {}, nil
	}
}

// setupTracing exports to Jaeger when an address is configured and falls
// back to a no-op provider otherwise.
func setupTracing(address string) (trace.TracerProvider, func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if address == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize exporter: %w", err)
	}
	tp, err := newTraceProvider(exp)
	if err != nil {
		return nil, nil, err
	}
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newExporter(address string) (*jaeger.Exporter, error) {
	return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(address)))
}

func newTraceProvider(exp sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	), nil
}

func newLogger(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags)
}
