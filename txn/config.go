package txn

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nornicdb/txgraph/graph"
	"github.com/nornicdb/txgraph/graph/memstore"
)

// Config holds the options spec §6 enumerates: how fresh base stores are
// built, how deep the active chain's delta spine may grow before a write
// forces synchronous reconciliation, how long a session may go without a
// heartbeat, how often the coordinator sweeps for timeouts, how long a
// timed-out session is retained for diagnostics, and an optional graph to
// bulk-load into both chains at construction.
type Config struct {
	// GraphFactory builds a fresh, empty base Store for the active and
	// stale chains.
	GraphFactory func() graph.Store

	// MaxChainLength bounds active.chainLength before Begin(Write)
	// performs synchronous reconciliation instead of waiting for the
	// background reconciler.
	MaxChainLength int

	// TransactionTimeout is the per-session heartbeat deadline.
	TransactionTimeout time.Duration

	// SweepInterval is the coordinator's timeout-sweep period.
	SweepInterval time.Duration

	// KeepTimedOutMultiplier is how many multiples of TransactionTimeout a
	// timed-out session's record is retained for diagnostics before
	// removeLongTimedOutTransactions drops it.
	KeepTimedOutMultiplier int

	// InitialGraph, if set, is bulk-loaded into both chains at
	// construction via graph.CopyStore (Copy() when available, else
	// iterate+add).
	InitialGraph graph.Store
}

// DefaultConfig returns the engine's defaults: MaxChainLength 2,
// TransactionTimeout 30s, SweepInterval 5s, KeepTimedOutMultiplier 10, and a
// GraphFactory building an empty memstore.Store.
func DefaultConfig() Config {
	return Config{
		GraphFactory:           func() graph.Store { return memstore.New() },
		MaxChainLength:         2,
		TransactionTimeout:     30 * time.Second,
		SweepInterval:          5 * time.Second,
		KeepTimedOutMultiplier: 10,
	}
}

// Option configures a Config built by NewConfig.
type Option func(*Config)

// WithGraphFactory overrides the default GraphFactory.
func WithGraphFactory(f func() graph.Store) Option {
	return func(c *Config) { c.GraphFactory = f }
}

// WithMaxChainLength overrides the default MaxChainLength.
func WithMaxChainLength(n int) Option {
	return func(c *Config) { c.MaxChainLength = n }
}

// WithTransactionTimeout overrides the default TransactionTimeout.
func WithTransactionTimeout(d time.Duration) Option {
	return func(c *Config) { c.TransactionTimeout = d }
}

// WithSweepInterval overrides the default SweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithKeepTimedOutMultiplier overrides the default KeepTimedOutMultiplier.
func WithKeepTimedOutMultiplier(n int) Option {
	return func(c *Config) { c.KeepTimedOutMultiplier = n }
}

// WithInitialGraph sets the graph bulk-loaded into both chains at
// construction.
func WithInitialGraph(g graph.Store) Option {
	return func(c *Config) { c.InitialGraph = g }
}

// NewConfig returns DefaultConfig with opts applied in order.
func NewConfig(opts ...Option) Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks that the configuration is usable: a non-nil GraphFactory,
// a MaxChainLength of at least 1, positive timeouts, and a
// KeepTimedOutMultiplier of at least 1.
func (c Config) Validate() error {
	if c.GraphFactory == nil {
		return fmt.Errorf("txn: config: GraphFactory must not be nil")
	}
	if c.MaxChainLength < 1 {
		return fmt.Errorf("txn: config: MaxChainLength must be >= 1, got %d", c.MaxChainLength)
	}
	if c.TransactionTimeout <= 0 {
		return fmt.Errorf("txn: config: TransactionTimeout must be positive, got %s", c.TransactionTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("txn: config: SweepInterval must be positive, got %s", c.SweepInterval)
	}
	if c.KeepTimedOutMultiplier < 1 {
		return fmt.Errorf("txn: config: KeepTimedOutMultiplier must be >= 1, got %d", c.KeepTimedOutMultiplier)
	}
	return nil
}

// Environment variable names recognized by LoadFromEnv, following the
// teacher's Docker/K8s-friendly NEO4J_/NORNICDB_ convention adapted to this
// engine's own namespace.
const (
	envMaxChainLength         = "TXGRAPH_MAX_CHAIN_LENGTH"
	envTransactionTimeoutMS   = "TXGRAPH_TRANSACTION_TIMEOUT_MS"
	envSweepIntervalMS        = "TXGRAPH_SWEEP_INTERVAL_MS"
	envKeepTimedOutMultiplier = "TXGRAPH_KEEP_TIMED_OUT_MULTIPLIER"
)

// LoadFromEnv returns DefaultConfig with any of TXGRAPH_MAX_CHAIN_LENGTH,
// TXGRAPH_TRANSACTION_TIMEOUT_MS, TXGRAPH_SWEEP_INTERVAL_MS, and
// TXGRAPH_KEEP_TIMED_OUT_MULTIPLIER applied from the process environment.
// GraphFactory and InitialGraph are not environment-configurable and are
// left at their defaults.
func LoadFromEnv() Config {
	c := DefaultConfig()

	if v, ok := os.LookupEnv(envMaxChainLength); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxChainLength = n
		}
	}
	if v, ok := os.LookupEnv(envTransactionTimeoutMS); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			c.TransactionTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv(envSweepIntervalMS); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			c.SweepInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v, ok := os.LookupEnv(envKeepTimedOutMultiplier); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.KeepTimedOutMultiplier = n
		}
	}
	return c
}

// yamlConfig mirrors Config's environment-configurable fields for YAML
// file loading, expressing durations as Go duration strings ("30s") rather
// than raw milliseconds.
type yamlConfig struct {
	MaxChainLength         *int    `yaml:"maxChainLength"`
	TransactionTimeout     *string `yaml:"transactionTimeout"`
	SweepInterval          *string `yaml:"sweepInterval"`
	KeepTimedOutMultiplier *int    `yaml:"keepTimedOutMultiplier"`
}

// LoadFromYAML reads a YAML configuration file and returns DefaultConfig
// with any present fields overridden. As with LoadFromEnv, GraphFactory and
// InitialGraph remain code-only configuration and are never read from the
// file.
func LoadFromYAML(path string) (Config, error) {
	c := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("txn: load config from %s: %w", path, err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return c, fmt.Errorf("txn: parse config %s: %w", path, err)
	}

	if y.MaxChainLength != nil {
		c.MaxChainLength = *y.MaxChainLength
	}
	if y.TransactionTimeout != nil {
		d, err := time.ParseDuration(*y.TransactionTimeout)
		if err != nil {
			return c, fmt.Errorf("txn: parse transactionTimeout %q: %w", *y.TransactionTimeout, err)
		}
		c.TransactionTimeout = d
	}
	if y.SweepInterval != nil {
		d, err := time.ParseDuration(*y.SweepInterval)
		if err != nil {
			return c, fmt.Errorf("txn: parse sweepInterval %q: %w", *y.SweepInterval, err)
		}
		c.SweepInterval = d
	}
	if y.KeepTimedOutMultiplier != nil {
		c.KeepTimedOutMultiplier = *y.KeepTimedOutMultiplier
	}
	return c, nil
}
