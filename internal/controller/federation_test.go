package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/version"
)

// fakeDialer serves slaves from a map; versions below the local one fail
// the version check.
type fakeDialer struct {
	slaves   map[string]*mockSlave
	versions map[string]string
	local    string
	dialled  []string
}

func (d *fakeDialer) dial(_ context.Context, controllerID string) (Slave, string, error) {
	d.dialled = append(d.dialled, controllerID)

	s, ok := d.slaves[controllerID]
	if !ok {
		return nil, "", fmt.Errorf("looking up %s: %w", naming.ControllerName(controllerID), naming.ErrNameNotFound)
	}
	v := d.versions[controllerID]
	if v == "" {
		v = d.local
	}
	if err := version.Check(v, d.local); err != nil {
		return nil, v, err
	}
	return s, v, nil
}

func newFakeDialer(ids ...string) *fakeDialer {
	d := &fakeDialer{
		slaves:   map[string]*mockSlave{},
		versions: map[string]string{},
		local:    "1.2.0",
	}
	for _, id := range ids {
		d.slaves[id] = newMockSlave(naming.ControllerName(id))
	}
	return d
}

func TestFederation_AddSlaveKeepsOrder(t *testing.T) {
	d := newFakeDialer("b", "a", "c")
	f := NewFederation(d.dial, 0)
	audit := &mockAuditor{}
	f.SetAuditor(audit)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c"} {
		if err := f.AddSlave(ctx, id); err != nil {
			t.Fatalf("AddSlave(%s) error = %v", id, err)
		}
	}

	var names []string
	for _, s := range f.Slaves() {
		names = append(names, s.Name())
	}
	want := []string{"avx.controller.b", "avx.controller.a", "avx.controller.c"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Slaves() mismatch (-want +got):\n%s", diff)
	}

	links := f.Links()
	if links[0].ControllerID != "b" || links[0].Version != "1.2.0" {
		t.Errorf("Links()[0] = %+v", links[0])
	}
	if got := audit.recorded(); len(got) != 3 || got[0] != ActionSlaveAdded+" b" {
		t.Errorf("audit = %v", got)
	}
}

func TestFederation_AddSlaveFailures(t *testing.T) {
	d := newFakeDialer("old")
	d.versions["old"] = "1.1.0"

	tests := []struct {
		name    string
		id      string
		wantErr error
		wantLog string
	}{
		{"unreachable", "missing", ErrSlaveUnreachable, "could not connect to slave"},
		{"version mismatch", "old", version.ErrVersionMismatch, "slave version incompatible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFederation(d.dial, 0)
			logger := &mockLogger{}
			f.SetLogger(logger)

			err := f.AddSlave(context.Background(), tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddSlave() error = %v, want %v", err, tt.wantErr)
			}
			if len(f.Slaves()) != 0 {
				t.Error("failed slave was added")
			}
			if !logger.has("error", tt.wantLog) {
				t.Errorf("expected error log %q", tt.wantLog)
			}
		})
	}
}

func TestFederation_AddSlaveDuplicate(t *testing.T) {
	d := newFakeDialer("a")
	f := NewFederation(d.dial, 0)
	ctx := context.Background()

	if err := f.AddSlave(ctx, "a"); err != nil {
		t.Fatalf("AddSlave() error = %v", err)
	}
	if err := f.AddSlave(ctx, "a"); !errors.Is(err, ErrDuplicateSlave) {
		t.Errorf("AddSlave() twice error = %v, want ErrDuplicateSlave", err)
	}
	if len(d.dialled) != 1 {
		t.Errorf("dialled %d times, want 1", len(d.dialled))
	}
}

func TestFederation_ConcurrentAddSlaveSameID(t *testing.T) {
	slave := newMockSlave("avx.controller.a")
	var arrived sync.WaitGroup
	arrived.Add(2)
	dial := func(context.Context, string) (Slave, string, error) {
		// Both callers are past the duplicate check before either links.
		arrived.Done()
		arrived.Wait()
		return slave, "1.2.0", nil
	}
	f := NewFederation(dial, 0)

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- f.AddSlave(context.Background(), "a") }()
	}

	var added, dup int
	for range 2 {
		switch err := <-errs; {
		case err == nil:
			added++
		case errors.Is(err, ErrDuplicateSlave):
			dup++
		default:
			t.Errorf("AddSlave() error = %v", err)
		}
	}
	if added != 1 || dup != 1 {
		t.Errorf("added = %d, duplicates = %d, want 1 and 1", added, dup)
	}
	if n := len(f.Slaves()); n != 1 {
		t.Errorf("Slaves() len = %d, want 1", n)
	}
}

func TestFederation_RemoveSlave(t *testing.T) {
	d := newFakeDialer("a", "b")
	f := NewFederation(d.dial, 0)
	ctx := context.Background()
	_ = f.AddSlave(ctx, "a")
	_ = f.AddSlave(ctx, "b")

	var removedOwner string
	f.OnRemove(func(owner string) { removedOwner = owner })

	if !f.RemoveSlave(ctx, "a") {
		t.Fatal("RemoveSlave(a) = false")
	}
	if removedOwner != "avx.controller.a" {
		t.Errorf("OnRemove owner = %q", removedOwner)
	}
	if f.RemoveSlave(ctx, "a") {
		t.Error("RemoveSlave(a) twice = true")
	}
	if got := f.Slaves(); len(got) != 1 || got[0].Name() != "avx.controller.b" {
		t.Errorf("Slaves() = %v", got)
	}
}
