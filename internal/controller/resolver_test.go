package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/avx-core/internal/device"
	"github.com/nerrad567/avx-core/internal/remote"
)

func newTestResolver(t *testing.T, localIDs []string, slaves ...*mockSlave) (*Resolver, *mockMetrics) {
	t.Helper()
	reg := device.NewRegistry(nil)
	for _, id := range localIDs {
		dev, _ := device.NewVirtual(device.Description{Type: device.TypeVirtual, DeviceID: id})
		if err := reg.Add(context.Background(), dev); err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	list := make([]Slave, len(slaves))
	for i, s := range slaves {
		list[i] = s
	}

	r := NewResolver(reg, remote.NewObjectTable("http://master:8080", "avx.controller"),
		func() []Slave { return list }, 100*time.Millisecond)
	m := &mockMetrics{}
	r.SetMetrics(m)
	return r, m
}

func TestResolver_LocalReturnsIdenticalPointer(t *testing.T) {
	r, m := newTestResolver(t, []string{"projector"})
	ctx := context.Background()

	h1, err := r.Resolve(ctx, "projector")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h2, err := r.Resolve(ctx, "projector")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if h1 != h2 {
		t.Error("second Resolve() returned a different pointer")
	}
	if h1.Owner != "avx.controller" || h1.DeviceID != "projector" {
		t.Errorf("handle = %+v", h1)
	}
	if diff := cmp.Diff([]string{SourceLocal, SourceCache}, m.sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_SlaveScanNotRepeated(t *testing.T) {
	slave := newMockSlave("avx.controller.a", "screen")
	r, _ := newTestResolver(t, nil, slave)
	ctx := context.Background()

	h1, err := r.Resolve(ctx, "screen")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	h2, _ := r.Resolve(ctx, "screen")

	if h1 != h2 {
		t.Error("second Resolve() returned a different pointer")
	}
	has, proxy := slave.calls()
	if has != 1 || proxy != 1 {
		t.Errorf("slave calls = %d hasDevice, %d proxyDevice; want 1, 1", has, proxy)
	}
}

func TestResolver_DelegationOrder(t *testing.T) {
	order := &callOrder{}
	a := newMockSlave("avx.controller.a")
	b := newMockSlave("avx.controller.b", "mixer")
	a.order, b.order = order, order

	r, _ := newTestResolver(t, nil, a, b)
	h, err := r.Resolve(context.Background(), "mixer")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if diff := cmp.Diff([]string{"avx.controller.a", "avx.controller.b"}, order.get()); diff != "" {
		t.Errorf("query order mismatch (-want +got):\n%s", diff)
	}
	if h.Owner != "avx.controller.b" {
		t.Errorf("Owner = %q, want avx.controller.b", h.Owner)
	}
	if _, proxy := a.calls(); proxy != 0 {
		t.Errorf("slave a proxyDevice calls = %d, want 0", proxy)
	}
}

func TestResolver_FirstMatchWins(t *testing.T) {
	a := newMockSlave("avx.controller.a", "mixer")
	b := newMockSlave("avx.controller.b", "mixer")

	r, _ := newTestResolver(t, nil, a, b)
	h, err := r.Resolve(context.Background(), "mixer")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Owner != "avx.controller.a" {
		t.Errorf("Owner = %q, want avx.controller.a", h.Owner)
	}
	if has, _ := b.calls(); has != 0 {
		t.Errorf("slave b queried %d times, want 0", has)
	}
}

func TestResolver_LocalBeforeSlaves(t *testing.T) {
	a := newMockSlave("avx.controller.a", "projector")
	r, _ := newTestResolver(t, []string{"projector"}, a)

	h, err := r.Resolve(context.Background(), "projector")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if h.Owner != "avx.controller" {
		t.Errorf("Owner = %q, want local", h.Owner)
	}
	if has, _ := a.calls(); has != 0 {
		t.Errorf("slave queried %d times, want 0", has)
	}
}

func TestResolver_NotFound(t *testing.T) {
	a := newMockSlave("avx.controller.a")
	b := newMockSlave("avx.controller.b")
	r, m := newTestResolver(t, nil, a, b)
	logger := &mockLogger{}
	r.SetLogger(logger)

	_, err := r.Resolve(context.Background(), "ghost")
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrDeviceNotFound", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if logger.count("error") != 0 {
		t.Error("not found was logged as an error")
	}
	if diff := cmp.Diff([]string{SourceNotFound}, m.sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}

	// Not found is not cached: a later call asks again.
	_, _ = r.Resolve(context.Background(), "ghost")
	if has, _ := a.calls(); has != 2 {
		t.Errorf("slave a queried %d times, want 2", has)
	}
}

func TestResolver_FailingSlaveSkipped(t *testing.T) {
	tests := []struct {
		name   string
		broken *mockSlave
	}{
		{
			name:   "error",
			broken: &mockSlave{name: "avx.controller.broken", hasErr: errors.New("connection refused")},
		},
		{
			name:   "timeout",
			broken: &mockSlave{name: "avx.controller.slow", delay: time.Second, devices: map[string]bool{"mixer": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := newMockSlave("avx.controller.good", "mixer")
			r, _ := newTestResolver(t, nil, tt.broken, good)
			logger := &mockLogger{}
			r.SetLogger(logger)

			start := time.Now()
			h, err := r.Resolve(context.Background(), "mixer")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if h.Owner != "avx.controller.good" {
				t.Errorf("Owner = %q, want avx.controller.good", h.Owner)
			}
			if time.Since(start) > 900*time.Millisecond {
				t.Error("per-slave timeout not applied")
			}
			if !logger.has("warn", "slave query failed") {
				t.Error("failing slave not logged")
			}
		})
	}
}

func TestResolver_ConcurrentResolutionsShareOneLookup(t *testing.T) {
	slave := newMockSlave("avx.controller.a", "screen")
	slave.delay = 20 * time.Millisecond
	r, _ := newTestResolver(t, nil, slave)

	const n = 20
	handles := make([]*remote.Handle, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Resolve(context.Background(), "screen")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
			handles[i] = h
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("resolution %d returned a different handle", i)
		}
	}
	if _, proxy := slave.calls(); proxy != 1 {
		t.Errorf("proxyDevice calls = %d, want 1", proxy)
	}
}

func TestResolver_AbandonedCallerDoesNotFailOthers(t *testing.T) {
	slave := newMockSlave("avx.controller.a", "mixer")
	slave.delay = 50 * time.Millisecond
	r, _ := newTestResolver(t, nil, slave)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(first, "mixer")
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	type result struct {
		h   *remote.Handle
		err error
	}
	second := make(chan result, 1)
	go func() {
		h, err := r.Resolve(context.Background(), "mixer")
		second <- result{h, err}
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Resolve() error = %v, want context.Canceled", err)
	}

	got := <-second
	if got.err != nil {
		t.Fatalf("Resolve() with live context error = %v", got.err)
	}
	if got.h == nil || got.h.DeviceID != "mixer" {
		t.Errorf("Resolve() handle = %+v", got.h)
	}
	if has, _ := slave.calls(); has != 1 {
		t.Errorf("hasDevice calls = %d, want 1", has)
	}
	if r.Len() != 1 {
		t.Errorf("cache size = %d, want 1", r.Len())
	}
}

func TestResolver_Invalidate(t *testing.T) {
	a := newMockSlave("avx.controller.a", "screen", "mixer")
	r, _ := newTestResolver(t, []string{"projector"}, a)
	ctx := context.Background()

	for _, id := range []string{"projector", "screen", "mixer"} {
		if _, err := r.Resolve(ctx, id); err != nil {
			t.Fatalf("Resolve(%s) error = %v", id, err)
		}
	}

	if n := r.InvalidateOwner("avx.controller.a"); n != 2 {
		t.Errorf("InvalidateOwner() = %d, want 2", n)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.Invalidate("projector")
	if r.Len() != 0 {
		t.Errorf("Len() = %d after Invalidate, want 0", r.Len())
	}
}
