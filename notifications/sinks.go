package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// LogSink writes notifications to a logger. Used when no delivery backend
// is configured.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(_ context.Context, n *Notification) error {
	s.logger.Printf("notification for %s: %s\n", n.UserID, n.Message)
	return nil
}

type HTTPSinkConfig struct {
	URL string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	Retries int
	Backoff time.Duration
	// BreakerTimeout is how long the breaker stays open before letting a
	// probe request through.
	BreakerTimeout time.Duration
}

func DefaultHTTPSinkConfig(url string) HTTPSinkConfig {
	return HTTPSinkConfig{
		URL:            url,
		Timeout:        5 * time.Second,
		Retries:        3,
		Backoff:        100 * time.Millisecond,
		BreakerTimeout: 2 * time.Second,
	}
}

// HTTPSink posts notifications to a notification service. Attempts are
// retried with a constant backoff and guarded by a circuit breaker so an
// unavailable service fails fast.
type HTTPSink struct {
	url     string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[interface{}]
	retrier *retrier.Retrier
	timeout time.Duration
	logger  *log.Logger
	tracer  trace.Tracer
}

func NewHTTPSink(cfg HTTPSinkConfig, logger *log.Logger, tracer trace.Tracer) *HTTPSink {
	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "NotificationSinkCB",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 0
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit Breaker '%s' changed from '%s' to '%s'\n", name, from, to)
		},
	})

	return &HTTPSink{
		url:     cfg.URL,
		client:  &http.Client{Transport: http.DefaultTransport},
		cb:      cb,
		retrier: retrier.New(retrier.ConstantBackoff(cfg.Retries, cfg.Backoff), nil),
		timeout: cfg.Timeout,
		logger:  logger,
		tracer:  tracer,
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, n *Notification) error {
	ctx, span := s.tracer.Start(ctx, "HTTPSink.Deliver")
	defer span.End()

	payload, err := json.Marshal(map[string]string{
		"user_id": n.UserID,
		"message": n.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.retrier.RunCtx(ctx, func(ctx context.Context) error {
			return s.post(ctx, payload)
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (s *HTTPSink) post(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Printf("notification service answered %d: %s\n", resp.StatusCode, string(body))
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}
