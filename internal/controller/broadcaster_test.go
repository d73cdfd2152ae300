package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/avx-core/internal/remote"
)

func newTestBroadcaster(clients *fakeClients, parallelism int, uris ...string) (*Broadcaster, *mockLogger) {
	b := NewBroadcaster(clients, parallelism, 50*time.Millisecond)
	logger := &mockLogger{}
	b.SetLogger(logger)
	for _, uri := range uris {
		b.Register(context.Background(), uri)
	}
	return b, logger
}

func TestBroadcaster_PrunesFailedClient(t *testing.T) {
	clients := newFakeClients()
	clients.fail["http://two"] = errors.New("connection reset")

	b, logger := newTestBroadcaster(clients, 1, "http://one", "http://two", "http://three")
	pruned := b.Broadcast(context.Background(), remote.MethodShowPowerOnDialog, nil)

	wantCalls := []string{
		"http://one showPowerOnDialog",
		"http://two showPowerOnDialog",
		"http://three showPowerOnDialog",
	}
	if diff := cmp.Diff(wantCalls, clients.called()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"http://two"}, pruned); diff != "" {
		t.Errorf("pruned mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"http://one", "http://three"}, b.Clients()); diff != "" {
		t.Errorf("Clients() mismatch (-want +got):\n%s", diff)
	}
	if !logger.has("error", "failed to call registered client, removing") {
		t.Error("failure not logged")
	}
}

func TestBroadcaster_FailureModes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeClients)
		log   string
	}{
		{"dial error", func(f *fakeClients) { f.dialErr["http://b"] = remote.ErrUnsupportedScheme }, "error"},
		{"timeout", func(f *fakeClients) { f.hang["http://b"] = true }, "error"},
		{"panic", func(f *fakeClients) { f.panics["http://b"] = true }, "panic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clients := newFakeClients()
			tt.setup(clients)

			b, logger := newTestBroadcaster(clients, 4, "http://a", "http://b", "http://c", "http://d")
			pruned := b.Broadcast(context.Background(), remote.MethodHidePowerDialog, nil)

			if diff := cmp.Diff([]string{"http://b"}, pruned); diff != "" {
				t.Errorf("pruned mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"http://a", "http://c", "http://d"}, b.Clients()); diff != "" {
				t.Errorf("Clients() mismatch (-want +got):\n%s", diff)
			}
			if logger.count(tt.log) == 0 {
				t.Errorf("no %s log entry", tt.log)
			}
		})
	}
}

func TestBroadcaster_RegisterUnregister(t *testing.T) {
	clients := newFakeClients()
	b, logger := newTestBroadcaster(clients, 1)
	metrics := &mockMetrics{}
	audit := &mockAuditor{}
	b.SetMetrics(metrics)
	b.SetAuditor(audit)
	ctx := context.Background()

	b.Register(ctx, "http://a")
	b.Register(ctx, "http://b")
	b.Register(ctx, "http://a")

	if diff := cmp.Diff([]string{"http://a", "http://b"}, b.Clients()); diff != "" {
		t.Errorf("Clients() mismatch (-want +got):\n%s", diff)
	}
	if metrics.lastClients != 2 {
		t.Errorf("RecordClients last = %d, want 2", metrics.lastClients)
	}

	if !b.Unregister(ctx, "http://a") {
		t.Error("Unregister(a) = false")
	}
	if b.Unregister(ctx, "http://a") {
		t.Error("Unregister(a) twice = true")
	}
	if diff := cmp.Diff([]string{"http://b"}, b.Clients()); diff != "" {
		t.Errorf("Clients() mismatch (-want +got):\n%s", diff)
	}
	if logger.count("info") != 3 {
		t.Errorf("info logs = %d, want 3 (one per change)", logger.count("info"))
	}

	want := []string{
		ActionClientRegistered + " http://a",
		ActionClientRegistered + " http://b",
		ActionClientRemoved + " http://a",
	}
	if diff := cmp.Diff(want, audit.recorded()); diff != "" {
		t.Errorf("audit mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcaster_EmptyAndAllHealthy(t *testing.T) {
	clients := newFakeClients()
	b, _ := newTestBroadcaster(clients, 8)
	metrics := &mockMetrics{}
	b.SetMetrics(metrics)

	if pruned := b.Broadcast(context.Background(), remote.MethodUpdateOutputMappings, nil); pruned != nil {
		t.Errorf("pruned = %v, want nil", pruned)
	}

	for _, uri := range []string{"http://a", "http://b", "http://c"} {
		b.Register(context.Background(), uri)
	}
	if pruned := b.Broadcast(context.Background(), remote.MethodUpdateOutputMappings, map[string]int{"1": 2}); pruned != nil {
		t.Errorf("pruned = %v, want nil", pruned)
	}
	if len(clients.called()) != 3 {
		t.Errorf("calls = %d, want 3", len(clients.called()))
	}
	if metrics.broadcasts != 2 {
		t.Errorf("RecordBroadcast calls = %d, want 2", metrics.broadcasts)
	}
}

func TestBroadcaster_RegisterDuringBroadcastSurvives(t *testing.T) {
	clients := newFakeClients()
	clients.fail["http://a"] = errors.New("gone")
	b, _ := newTestBroadcaster(clients, 1, "http://a")

	b.BroadcastFunc(context.Background(), "custom", func(ctx context.Context, conn remote.ClientConn) error {
		b.Register(ctx, "http://late")
		return conn.Call(ctx, "custom", nil)
	})

	if diff := cmp.Diff([]string{"http://late"}, b.Clients()); diff != "" {
		t.Errorf("Clients() mismatch (-want +got):\n%s", diff)
	}
}
