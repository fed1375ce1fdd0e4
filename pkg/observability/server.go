package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	httpStatusServerError = 500

	metricsPath = "/metrics"

	serverReadTimeout  = 5 * time.Second
	serverWriteTimeout = 10 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

// statusWriter wraps [http.ResponseWriter] to capture the status code.
type statusWriter struct {
	http.ResponseWriter

	statusCode int
	written    bool
}

// WriteHeader captures the status code before delegating to the wrapped writer.
func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.statusCode = code
		sw.written = true
	}

	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(buf []byte) (int, error) {
	if !sw.written {
		sw.statusCode = http.StatusOK
		sw.written = true
	}

	n, err := sw.ResponseWriter.Write(buf)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}

	return n, nil
}

// HTTPMiddleware returns an [http.Handler] that creates a span per request.
func HTTPMiddleware(tracer trace.Tracer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		spanName := hr.Method + " " + hr.URL.Path

		parentCtx := otel.GetTextMapPropagator().Extract(hr.Context(), propagation.HeaderCarrier(hr.Header))

		ctx, span := tracer.Start(parentCtx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(hr.Method),
				semconv.URLPath(hr.URL.Path),
			),
		)
		defer span.End()

		sw := &statusWriter{ResponseWriter: rw}
		next.ServeHTTP(sw, hr.WithContext(ctx))

		span.SetAttributes(semconv.HTTPResponseStatusCode(sw.statusCode))

		if sw.statusCode >= httpStatusServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
		}
	})
}

// MetricsServer exposes the Prometheus scrape endpoint while a command runs.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	done     chan error
}

// StartMetricsServer listens on addr and serves providers.MetricsHandler under /metrics.
func StartMetricsServer(addr string, providers Providers) (*MetricsServer, error) {
	if providers.MetricsHandler == nil {
		return nil, errors.New("metrics server: prometheus exporter is not enabled")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, providers.MetricsHandler)

	srv := &MetricsServer{
		server: &http.Server{
			Handler:      HTTPMiddleware(providers.Tracer, mux),
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
			IdleTimeout:  serverIdleTimeout,
		},
		listener: listener,
		logger:   providers.Logger,
		done:     make(chan error, 1),
	}

	go func() {
		serveErr := srv.server.Serve(listener)
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}

		srv.done <- serveErr
	}()

	srv.logger.Info("metrics server started", "addr", "http://"+listener.Addr().String()+metricsPath)

	return srv, nil
}

// Addr returns the address the server listens on.
func (srv *MetricsServer) Addr() string {
	return srv.listener.Addr().String()
}

// Shutdown stops accepting scrapes and waits for in-flight ones.
func (srv *MetricsServer) Shutdown(ctx context.Context) error {
	err := srv.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	return <-srv.done
}
