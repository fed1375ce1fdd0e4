package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Span attribute keys set by the rbforest commands. Log records reuse the same keys.
const (
	AttrForestShards      = nsForest + "shards"
	AttrForestTrees       = nsForest + "trees"
	AttrStressWorkers     = nsStress + "workers"
	AttrStressOps         = nsStress + "ops"
	AttrStressKeyspace    = nsStress + "keyspace"
	AttrStressSeed        = nsStress + "seed"
	AttrStressPassed      = nsStress + "passed"
	AttrStressElapsed     = nsStress + "elapsed"
	AttrStressDropped     = nsStress + "dropped_moves"
	AttrHibernateKeys     = nsHibernate + "keys"
	AttrHibernateBytes    = nsHibernate + "bytes"
	AttrHibernateRawBytes = nsHibernate + "raw_bytes"
	AttrHibernateElapsed  = nsHibernate + "elapsed"
	AttrTreeFailures      = nsTree + "failures"
)

const (
	nsForest    = "forest."
	nsStress    = "stress."
	nsHibernate = "hibernate."
	nsTree      = "tree."
	nsArena     = "arena."
)

// AttributePolicy lists the span attributes that reach the exporter. Everything
// else is dropped and counted in DroppedAttributes.
type AttributePolicy struct {
	// Prefixes are allowed key namespaces such as "stress.".
	Prefixes []string

	// Keys are allowed exact keys.
	Keys []string
}

// DefaultAttributePolicy allows the rbforest namespaces, the metric attribute keys
// and the semantic-convention keys set by HTTPMiddleware.
func DefaultAttributePolicy() AttributePolicy {
	return AttributePolicy{
		Prefixes: []string{nsForest, nsStress, nsHibernate, nsTree, nsArena},
		Keys: []string{
			attrOp,
			attrResult,
			string(semconv.ErrorTypeKey),
			string(semconv.HTTPRequestMethodKey),
			string(semconv.HTTPResponseStatusCodeKey),
			string(semconv.URLPathKey),
		},
	}
}

// With returns a copy of the policy that also allows extra. An entry ending in a
// dot is a namespace, anything else an exact key. Empty entries are ignored.
func (p AttributePolicy) With(extra ...string) AttributePolicy {
	out := AttributePolicy{
		Prefixes: append([]string(nil), p.Prefixes...),
		Keys:     append([]string(nil), p.Keys...),
	}

	for _, entry := range extra {
		entry = strings.TrimSpace(entry)

		switch {
		case entry == "":
		case strings.HasSuffix(entry, "."):
			out.Prefixes = append(out.Prefixes, entry)
		default:
			out.Keys = append(out.Keys, entry)
		}
	}

	return out
}

// attributeFilter is a SpanProcessor that applies an AttributePolicy before
// forwarding finished spans to a delegate processor.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
	prefixes []string
	keys     map[attribute.Key]struct{}

	// warned holds the keys already reported, so each is logged once.
	warned sync.Map
}

// NewAttributeFilter returns a SpanProcessor that drops attributes the policy does
// not allow. When logger is non-nil, the first drop of each key is logged as a warning.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, policy AttributePolicy, logger *slog.Logger) sdktrace.SpanProcessor {
	keys := make(map[attribute.Key]struct{}, len(policy.Keys))
	for _, key := range policy.Keys {
		keys[attribute.Key(key)] = struct{}{}
	}

	return &attributeFilter{
		delegate: delegate,
		logger:   logger,
		prefixes: policy.Prefixes,
		keys:     keys,
	}
}

// OnStart delegates to the wrapped processor.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd filters the attributes once and hands a filtered view to the delegate.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	orig := s.Attributes()
	kept := make([]attribute.KeyValue, 0, len(orig))

	for _, kv := range orig {
		if f.allowed(kv.Key) {
			kept = append(kept, kv)

			continue
		}

		f.warn(s.Name(), kv.Key)
	}

	if len(kept) == len(orig) {
		f.delegate.OnEnd(s)

		return
	}

	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, attrs: kept, dropped: len(orig) - len(kept)})
}

// Shutdown delegates to the wrapped processor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) allowed(key attribute.Key) bool {
	if _, ok := f.keys[key]; ok {
		return true
	}

	for _, prefix := range f.prefixes {
		if strings.HasPrefix(string(key), prefix) {
			return true
		}
	}

	return false
}

func (f *attributeFilter) warn(span string, key attribute.Key) {
	if f.logger == nil {
		return
	}

	if _, seen := f.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}

	f.logger.Warn("span attribute dropped", "span", span, "key", string(key))
}

// filteredSpan is a ReadOnlySpan with a reduced attribute set.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	attrs   []attribute.KeyValue
	dropped int
}

func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}

func (s *filteredSpan) DroppedAttributes() int {
	return s.ReadOnlySpan.DroppedAttributes() + s.dropped
}
