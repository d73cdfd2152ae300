package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/avx-core/internal/remote"
)

// mockLogger records messages by level.
type mockLogger struct {
	mu      sync.Mutex
	entries []logLine
}

type logLine struct {
	level string
	msg   string
	args  []any
}

func (m *mockLogger) log(level, msg string, args []any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logLine{level: level, msg: msg, args: args})
}

func (m *mockLogger) Debug(msg string, args ...any) { m.log("debug", msg, args) }
func (m *mockLogger) Info(msg string, args ...any)  { m.log("info", msg, args) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.log("warn", msg, args) }
func (m *mockLogger) Error(msg string, args ...any) { m.log("error", msg, args) }

func (m *mockLogger) Exception(msg string, err error, args ...any) {
	m.log("exception", msg, append(args, "error", err))
}

func (m *mockLogger) Panic(msg string, recovered any, args ...any) {
	m.log("panic", msg, append(args, "recovered", recovered))
}

func (m *mockLogger) count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (m *mockLogger) has(level, msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// mockSlave is a Slave with a fixed device set and call counters.
type mockSlave struct {
	name    string
	devices map[string]bool
	hasErr  error
	delay   time.Duration

	mu         sync.Mutex
	hasCalls   []string
	proxyCalls []string

	// order, if set, records the slave name on every HasDevice call.
	order *callOrder
}

type callOrder struct {
	mu    sync.Mutex
	names []string
}

func (o *callOrder) add(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func (o *callOrder) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.names...)
}

func newMockSlave(name string, ids ...string) *mockSlave {
	devices := make(map[string]bool, len(ids))
	for _, id := range ids {
		devices[id] = true
	}
	return &mockSlave{name: name, devices: devices}
}

func (s *mockSlave) Name() string { return s.name }

func (s *mockSlave) HasDevice(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	s.hasCalls = append(s.hasCalls, id)
	s.mu.Unlock()
	if s.order != nil {
		s.order.add(s.name)
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if s.hasErr != nil {
		return false, s.hasErr
	}
	return s.devices[id], nil
}

func (s *mockSlave) ProxyDevice(_ context.Context, id string) (*remote.Handle, error) {
	s.mu.Lock()
	s.proxyCalls = append(s.proxyCalls, id)
	s.mu.Unlock()

	if !s.devices[id] {
		return nil, errors.New("not here")
	}
	return &remote.Handle{
		URI:      fmt.Sprintf("http://%s/api/v1/objects/%s", s.name, id),
		DeviceID: id,
		Owner:    s.name,
	}, nil
}

func (s *mockSlave) calls() (has, proxy int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hasCalls), len(s.proxyCalls)
}

// fakeClients is a ClientDialer whose connections record calls and fail on demand.
type fakeClients struct {
	mu      sync.Mutex
	calls   []string // "uri method"
	fail    map[string]error
	panics  map[string]bool
	hang    map[string]bool
	dialErr map[string]error
}

func newFakeClients() *fakeClients {
	return &fakeClients{
		fail:    map[string]error{},
		panics:  map[string]bool{},
		hang:    map[string]bool{},
		dialErr: map[string]error{},
	}
}

func (f *fakeClients) DialClient(uri string) (remote.ClientConn, error) {
	if err := f.dialErr[uri]; err != nil {
		return nil, err
	}
	return &fakeConn{uri: uri, parent: f}, nil
}

func (f *fakeClients) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeConn struct {
	uri    string
	parent *fakeClients
}

func (c *fakeConn) Call(ctx context.Context, method string, _ any) error {
	c.parent.mu.Lock()
	c.parent.calls = append(c.parent.calls, c.uri+" "+method)
	c.parent.mu.Unlock()

	if c.parent.panics[c.uri] {
		panic("client exploded")
	}
	if c.parent.hang[c.uri] {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.parent.fail[c.uri]
}

// mockAuditor records actions.
type mockAuditor struct {
	mu      sync.Mutex
	actions []string // "action entityID"
}

func (a *mockAuditor) Record(_ context.Context, action, _, entityID string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action+" "+entityID)
}

func (a *mockAuditor) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

// mockMetrics records resolution sources and broadcast counts.
type mockMetrics struct {
	mu          sync.Mutex
	sources     []string
	broadcasts  int
	lastClients int
}

func (m *mockMetrics) RecordResolution(_, source string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
}

func (m *mockMetrics) RecordBroadcast(string, int, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts++
}

func (m *mockMetrics) RecordClients(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastClients = n
}
