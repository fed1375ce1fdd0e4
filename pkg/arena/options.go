package arena

import (
	"log/slog"
	"time"
)

// growCapacityNumerator and growCapacityDenominator define the default 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// GrowEvent describes one enlargement of a store.
type GrowEvent struct {
	// OldCap and NewCap are the usable slot counts before and after the step.
	OldCap, NewCap int

	// Wait is how long the allocating goroutine waited for exclusive access.
	// Always zero for arenas that are not wrapped in a port.
	Wait time.Duration
}

type options struct {
	logger    *slog.Logger
	onGrow    func(GrowEvent)
	capacity  int
	growNum   int
	growDen   int
	threshold int
}

// Option configures an Arena.
type Option func(*options)

// WithCapacity pre-reserves n usable slots. Reserving enough up front means the
// exclusive grow step never runs.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithGrowthFactor sets the num/den factor applied to the capacity when the store is full.
// Factors not greater than one are ignored; the store always grows by at least one slot.
func WithGrowthFactor(num, den int) Option {
	return func(o *options) {
		if den > 0 && num > den {
			o.growNum, o.growDen = num, den
		}
	}
}

// WithHibernationThreshold makes Hibernate a no-op while fewer than n slots are occupied.
func WithHibernationThreshold(n int) Option {
	return func(o *options) {
		o.threshold = max(n, 0)
	}
}

// WithLogger sets the logger receiving grow events at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGrowHook registers a callback invoked after every grow step, outside the exclusive section.
func WithGrowHook(hook func(GrowEvent)) Option {
	return func(o *options) {
		o.onGrow = hook
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  slog.New(slog.DiscardHandler),
		growNum: growCapacityNumerator,
		growDen: growCapacityDenominator,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
