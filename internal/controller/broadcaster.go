package controller

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/avx-core/internal/remote"
)

// ClientFunc is called once per client during a broadcast.
type ClientFunc func(ctx context.Context, conn remote.ClientConn) error

// Broadcaster keeps the ordered set of registered client URIs and fans calls
// out to them.
//
// A client whose call fails (dial error, call error, timeout or panic) is
// removed. Survivors keep their relative order. There is no retry.
type Broadcaster struct {
	dialer      remote.ClientDialer
	parallelism int
	timeout     time.Duration

	logger  Logger
	metrics Metrics
	auditor Auditor

	mu      sync.Mutex
	clients []string
}

// NewBroadcaster creates an empty broadcaster.
//
// Parameters:
//   - dialer: Turns client URIs into connections
//   - parallelism: Maximum concurrent client calls; values below 1 mean 1
//   - timeout: Bound on each client call
func NewBroadcaster(dialer remote.ClientDialer, parallelism int, timeout time.Duration) *Broadcaster {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Broadcaster{
		dialer:      dialer,
		parallelism: parallelism,
		timeout:     timeout,
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		auditor:     noopAuditor{},
	}
}

// SetLogger sets the logger for the broadcaster.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// SetMetrics sets the telemetry sink for the broadcaster.
func (b *Broadcaster) SetMetrics(m Metrics) {
	b.metrics = m
}

// SetAuditor sets where client changes are recorded.
func (b *Broadcaster) SetAuditor(a Auditor) {
	b.auditor = a
}

// Register appends uri. Registering a URI twice is a no-op.
func (b *Broadcaster) Register(ctx context.Context, uri string) {
	b.mu.Lock()
	if slices.Contains(b.clients, uri) {
		b.mu.Unlock()
		return
	}
	b.clients = append(b.clients, uri)
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Info("registered client", "client", uri, "clients", count)
	b.metrics.RecordClients(count)
	b.auditor.Record(ctx, ActionClientRegistered, "client", uri, nil)
}

// Unregister removes uri and reports whether it was registered.
func (b *Broadcaster) Unregister(ctx context.Context, uri string) bool {
	b.mu.Lock()
	i := slices.Index(b.clients, uri)
	if i < 0 {
		b.mu.Unlock()
		return false
	}
	b.clients = slices.Delete(b.clients, i, i+1)
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Info("unregistered client", "client", uri, "clients", count)
	b.metrics.RecordClients(count)
	b.auditor.Record(ctx, ActionClientRemoved, "client", uri, nil)
	return true
}

// Clients returns the registered URIs in registration order.
func (b *Broadcaster) Clients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.clients)
}

// Broadcast calls method with payload on every client.
// See BroadcastFunc.
func (b *Broadcaster) Broadcast(ctx context.Context, method string, payload any) []string {
	return b.BroadcastFunc(ctx, method, func(ctx context.Context, conn remote.ClientConn) error {
		return conn.Call(ctx, method, payload)
	})
}

// BroadcastFunc runs fn against every client registered when the call
// starts. Calls start in registration order, at most parallelism at a time,
// each bounded by the broadcaster's timeout. It waits for every call, then
// prunes the clients that failed.
//
// Parameters:
//   - ctx: Parent of every per-client context
//   - name: Used in logs and telemetry
//   - fn: Work to do per client
//
// Returns:
//   - []string: The pruned client URIs, in registration order
func (b *Broadcaster) BroadcastFunc(ctx context.Context, name string, fn ClientFunc) []string {
	start := time.Now()
	clients := b.Clients()
	failed := make([]bool, len(clients))

	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for i, uri := range clients {
		g.Go(func() error {
			b.logger.Debug("calling client", "method", name, "client", uri)
			if err := b.call(ctx, uri, name, fn); err != nil {
				failed[i] = true
				b.logger.Error("failed to call registered client, removing",
					"method", name,
					"client", uri,
					"error", fmt.Errorf("%w: %w", ErrClientUnreachable, err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	var pruned []string
	for i, uri := range clients {
		if failed[i] {
			pruned = append(pruned, uri)
		}
	}
	if len(pruned) > 0 {
		b.prune(ctx, pruned)
	}

	b.metrics.RecordBroadcast(name, len(clients), len(pruned), time.Since(start))
	return pruned
}

func (b *Broadcaster) call(ctx context.Context, uri, name string, fn ClientFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Panic("client call panicked", r, "method", name, "client", uri)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	conn, err := b.dialer.DialClient(uri)
	if err != nil {
		return err
	}
	return fn(ctx, conn)
}

func (b *Broadcaster) prune(ctx context.Context, uris []string) {
	b.mu.Lock()
	b.clients = slices.DeleteFunc(b.clients, func(c string) bool {
		return slices.Contains(uris, c)
	})
	count := len(b.clients)
	b.mu.Unlock()

	for _, uri := range uris {
		b.auditor.Record(ctx, ActionClientPruned, "client", uri, nil)
	}
	b.logger.Info("pruned clients", "removed", len(uris), "clients", count)
	b.metrics.RecordClients(count)
}
