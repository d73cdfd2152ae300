package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/avx-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Option configures a Client at Connect.
type Option func(*Client)

// WithTagFunc tags every point with key=fn(), evaluated at write time so
// the value can change while the process runs (the controller name is only
// final once the controller document is loaded). Empty values are skipped.
func WithTagFunc(key string, fn func() string) Option {
	return func(c *Client) {
		if c.tagFuncs == nil {
			c.tagFuncs = make(map[string]func() string)
		}
		c.tagFuncs[key] = fn
	}
}

// Client writes controller telemetry to InfluxDB.
//
// Writes never block the caller: the library buffers points and flushes
// them in batches. Failures arrive at the SetOnError callback.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI

	closed atomic.Bool

	mu      sync.RWMutex
	onError func(err error)

	tagFuncs map[string]func() string
}

// writeOptions maps batch_size and flush_interval (seconds) onto the
// library's options, defaulting non-positive values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, c influxdb2.Client) error {
	healthy, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// Connect creates a client and checks the server answers a ping.
//
// Parameters:
//   - cfg: InfluxDB section of the application config
//   - opts: Client options such as WithTagFunc
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled, or wrapping ErrConnectionFailed
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

// forwardErrors runs until the write API closes its error channel.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// Close flushes buffered points and releases the client. Safe to call twice.
func (c *Client) Close() error {
	if c == nil || c.influx == nil || c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected is true from Connect until Close.
func (c *Client) IsConnected() bool {
	return c.influx != nil && !c.closed.Load()
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush sends buffered points now. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// WritePoint queues a point stamped now. Dropped after Close.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, c.withTags(tags), fields, time.Now()))
}

// withTags returns tags plus the WithTagFunc values, leaving tags untouched.
func (c *Client) withTags(tags map[string]string) map[string]string {
	if len(c.tagFuncs) == 0 {
		return tags
	}
	out := make(map[string]string, len(tags)+len(c.tagFuncs))
	for k, v := range tags {
		out[k] = v
	}
	for k, fn := range c.tagFuncs {
		if v := fn(); v != "" {
			out[k] = v
		}
	}
	return out
}
