package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Sumatoshi-tech/rbforest/pkg/observability"
)

func newFilteredProvider(
	policy observability.AttributePolicy,
	logger *slog.Logger,
) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	filter := observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), policy, logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(filter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return tp, exporter
}

func TestAttributeFilter_KeepsCommandAttributes(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(observability.DefaultAttributePolicy(), nil)

	_, span := tp.Tracer("test").Start(context.Background(), "rbforest.stress")
	span.SetAttributes(
		attribute.Int(observability.AttrForestShards, 4),
		attribute.Int64(observability.AttrStressOps, 100_000),
		attribute.Bool(observability.AttrStressPassed, true),
		attribute.Int(observability.AttrTreeFailures, 0),
		attribute.Int(observability.AttrHibernateRawBytes, 4096),
		attribute.Int("arena.cap", 64),
		semconv.ErrorTypeKey.String("timeout"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Zero(t, spans[0].DroppedAttributes)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, int64(4), attrs[observability.AttrForestShards])
	assert.Equal(t, int64(100_000), attrs[observability.AttrStressOps])
	assert.Equal(t, true, attrs[observability.AttrStressPassed])
	assert.Equal(t, int64(4096), attrs[observability.AttrHibernateRawBytes])
	assert.Equal(t, int64(64), attrs["arena.cap"])
	assert.Equal(t, "timeout", attrs["error.type"])
}

func TestAttributeFilter_DropsOutsidePolicy(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(observability.DefaultAttributePolicy(), nil)

	_, span := tp.Tracer("test").Start(context.Background(), "rbforest.hibernate")
	span.SetAttributes(
		attribute.Int(observability.AttrHibernateKeys, 1000),
		attribute.String("tree.name", "tree-001"),
		attribute.String("user.id", "12345"),
		attribute.String("request.body", "{}"),
		attribute.String("stressful", "prefix without the dot"),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, 3, spans[0].DroppedAttributes)

	attrs := spanAttrMap(spans[0])
	assert.Equal(t, int64(1000), attrs[observability.AttrHibernateKeys])
	assert.Equal(t, "tree-001", attrs["tree.name"])
	assert.NotContains(t, attrs, "user.id")
	assert.NotContains(t, attrs, "request.body")
	assert.NotContains(t, attrs, "stressful")
}

func TestAttributeFilter_MiddlewareAttributes(t *testing.T) {
	t.Parallel()

	tp, exporter := newFilteredProvider(observability.DefaultAttributePolicy(), nil)

	_, span := tp.Tracer("test").Start(context.Background(), "GET /metrics")
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String("GET"),
		semconv.URLPath("/metrics"),
		semconv.HTTPResponseStatusCode(200),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Len(t, spans[0].Attributes, 3)
}

func TestAttributePolicy_With(t *testing.T) {
	t.Parallel()

	base := observability.DefaultAttributePolicy()
	extended := base.With("custom.", "build.id", " ", "")

	assert.Contains(t, extended.Prefixes, "custom.")
	assert.Contains(t, extended.Keys, "build.id")
	assert.Len(t, extended.Prefixes, len(base.Prefixes)+1)
	assert.Len(t, extended.Keys, len(base.Keys)+1)
	assert.NotContains(t, base.Prefixes, "custom.", "With must not alias the receiver")

	tp, exporter := newFilteredProvider(extended, nil)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(
		attribute.String("custom.region", "eu"),
		attribute.String("build.id", "abc"),
		attribute.String("build.host", "ci"),
	)
	span.End()

	attrs := spanAttrMap(exporter.GetSpans()[0])
	assert.Equal(t, "eu", attrs["custom.region"])
	assert.Equal(t, "abc", attrs["build.id"])
	assert.NotContains(t, attrs, "build.host")
}

func TestAttributeFilter_WarnsOncePerKey(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tp, _ := newFilteredProvider(observability.DefaultAttributePolicy(), logger)

	for range 3 {
		_, span := tp.Tracer("test").Start(context.Background(), "rbforest.stress")
		span.SetAttributes(attribute.String("user.secret", "val"))
		span.End()
	}

	assert.Equal(t, 1, strings.Count(buf.String(), "user.secret"))
	assert.Contains(t, buf.String(), "rbforest.stress")
}

// spanAttrMap converts a span's attributes into a map for easy assertion.
func spanAttrMap(s tracetest.SpanStub) map[string]any {
	m := make(map[string]any, len(s.Attributes))
	for _, a := range s.Attributes {
		m[string(a.Key)] = a.Value.AsInterface()
	}

	return m
}
