package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	ran   chan struct{}
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{fail: map[string]bool{}, ran: make(chan struct{}, 16)}
}

func (r *recordingExecutor) Execute(_ context.Context, e Event) error {
	r.mu.Lock()
	r.calls = append(r.calls, e.DeviceID+"."+e.Method)
	fail := r.fail[e.DeviceID]
	r.mu.Unlock()
	r.ran <- struct{}{}
	if fail {
		return errors.New("device offline")
	}
	return nil
}

func (r *recordingExecutor) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
}

func TestSequence_RunsInOrder(t *testing.T) {
	exec := newRecordingExecutor()
	exec.fail["projector"] = true

	s := New(exec)
	s.Start(context.Background())
	defer s.Stop()

	err := s.Sequence(context.Background(),
		Event{DeviceID: "switch", Method: "route"},
		Event{SleepMS: 5},
		Event{DeviceID: "projector", Method: "powerOn"},
		Event{DeviceID: "screen", Method: "lower"},
	)
	if err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}
	exec.wait(t, 3)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	want := []string{"switch.route", "projector.powerOn", "screen.lower"}
	if diff := cmp.Diff(want, exec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSequence_NotRunning(t *testing.T) {
	s := New(newRecordingExecutor())
	err := s.Sequence(context.Background(), Event{DeviceID: "switch", Method: "route"})
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Sequence() error = %v, want ErrNotRunning", err)
	}
}

func TestSequence_InvalidEvent(t *testing.T) {
	s := New(newRecordingExecutor())
	s.Start(context.Background())
	defer s.Stop()

	tests := []Event{
		{DeviceID: "switch"},
		{},
		{SleepMS: -1},
	}
	for _, e := range tests {
		if err := s.Sequence(context.Background(), e); err == nil {
			t.Errorf("Sequence(%+v) error = nil, want validation error", e)
		}
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	s := New(newRecordingExecutor())
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
