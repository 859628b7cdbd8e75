package reactor

// ============================================================================
// Functional configuration options. This library has no config file,
// network, or CLI surface, so the only configuration surface is a small
// functional-options struct applied at construction time, grounded in
// xinjiayu-RxGo/core.go's Option/Config pair (generalized from the
// teacher's interface{ Apply(*Config) } shape to a plain func(*Config),
// the idiom the rest of the Go ecosystem in this pack — e.g.
// kbukum-gokit's option constructors — uses instead of an Apply method).
// ============================================================================

// Config holds the defaults a Flux/Mono construction step may need:
// prefetch window size, queue capacity, and overflow policy. Every
// operator that needs one of these accepts it as an explicit parameter.
// CreateWithOptions is the only constructor that reads a Config, and it
// uses only OverflowStrategy; Prefetch, QueueCapacity and QueueFactory are
// not read by any operator.
type Config struct {
	Prefetch         int
	QueueCapacity    int
	OverflowStrategy OverflowStrategy
	QueueFactory     QueueFactory
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig mirrors xinjiayu-RxGo/core.go's DefaultConfig: a reasonable
// prefetch and queue size for the common case.
func DefaultConfig() *Config {
	return &Config{
		Prefetch:         128,
		QueueCapacity:    128,
		OverflowStrategy: OverflowBuffer,
		QueueFactory:     DefaultQueueFactory,
	}
}

// WithPrefetch sets Config.Prefetch. PublishOn and FlatMap take their
// prefetch as an explicit argument and do not read it.
func WithPrefetch(n int) Option {
	return func(c *Config) { c.Prefetch = n }
}

// WithQueueCapacity sets Config.QueueCapacity; no built-in stage reads it.
func WithQueueCapacity(n int) Option {
	return func(c *Config) { c.QueueCapacity = n }
}

// WithOverflowStrategy overrides the default backpressure adapter policy.
func WithOverflowStrategy(strategy OverflowStrategy) Option {
	return func(c *Config) { c.OverflowStrategy = strategy }
}

// WithQueueFactory sets Config.QueueFactory. The built-in stages construct
// their queues directly and do not read it.
func WithQueueFactory(factory QueueFactory) Option {
	return func(c *Config) { c.QueueFactory = factory }
}

func buildConfig(options ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// CreateWithOptions is Create with an explicit overflow policy, threaded
// through the emitter instead of left at the OverflowBuffer default. Only
// the OverflowStrategy option has an effect here.
func CreateWithOptions(producer func(Emitter), options ...Option) Flux {
	cfg := buildConfig(options...)
	return FromPublisher(&createPublisher{producer: producer, strategy: cfg.OverflowStrategy})
}
