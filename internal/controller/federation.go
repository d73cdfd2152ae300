package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/avx-core/internal/naming"
	"github.com/nerrad567/avx-core/internal/remote"
	"github.com/nerrad567/avx-core/internal/version"
)

// SlaveDialer connects to the controller registered under controllerID and
// returns it along with its version. Version checking is the dialer's job:
// an incompatible controller yields a *version.MismatchError.
type SlaveDialer func(ctx context.Context, controllerID string) (Slave, string, error)

// NamingDialer returns a SlaveDialer that resolves names through names and
// checks versions against localVersion.
func NamingDialer(names naming.Service, localVersion string, httpClient *http.Client) SlaveDialer {
	return func(ctx context.Context, controllerID string) (Slave, string, error) {
		c, v, err := remote.Dial(ctx, names, controllerID, localVersion, httpClient)
		if err != nil {
			return nil, v, err
		}
		return c, v, nil
	}
}

// SlaveLink is an accepted slave and the version it reported when added.
// Links are never re-validated.
type SlaveLink struct {
	ControllerID string    `json:"controller_id"`
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	AddedAt      time.Time `json:"added_at"`

	slave Slave
}

// Slave returns the link's delegate.
func (l *SlaveLink) Slave() Slave { return l.slave }

// Federation is the ordered set of slaves.
type Federation struct {
	dial    SlaveDialer
	timeout time.Duration

	logger   Logger
	auditor  Auditor
	onRemove func(owner string)

	mu    sync.RWMutex
	links []*SlaveLink
}

// NewFederation creates an empty federation.
// timeout bounds each dial; zero means the caller's context alone.
func NewFederation(dial SlaveDialer, timeout time.Duration) *Federation {
	return &Federation{
		dial:    dial,
		timeout: timeout,
		logger:  noopLogger{},
		auditor: noopAuditor{},
	}
}

// SetLogger sets the logger for the federation.
func (f *Federation) SetLogger(logger Logger) {
	f.logger = logger
}

// SetAuditor sets where federation changes are recorded.
func (f *Federation) SetAuditor(a Auditor) {
	f.auditor = a
}

// OnRemove sets a callback run with the slave's name after RemoveSlave.
func (f *Federation) OnRemove(fn func(owner string)) {
	f.onRemove = fn
}

// AddSlave dials controllerID and, if it is reachable and compatible,
// appends it to the slave list.
//
// Failures are logged here. Callers loading a document keep going.
//
// Returns:
//   - error: ErrSlaveUnreachable (wrapped), *version.MismatchError,
//     ErrDuplicateSlave, or nil on success
func (f *Federation) AddSlave(ctx context.Context, controllerID string) error {
	if f.has(controllerID) {
		return fmt.Errorf("%w: %s", ErrDuplicateSlave, controllerID)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	slave, remoteVersion, err := f.dial(ctx, controllerID)
	if err != nil {
		var mismatch *version.MismatchError
		if errors.As(err, &mismatch) {
			f.logger.Error("slave version incompatible",
				"controller_id", controllerID,
				"remote_version", mismatch.Remote,
				"local_version", mismatch.Local,
			)
			f.auditor.Record(ctx, ActionSlaveRejected, "slave", controllerID,
				map[string]any{"remote_version": mismatch.Remote, "local_version": mismatch.Local})
			return err
		}

		err = fmt.Errorf("%w: %s: %w", ErrSlaveUnreachable, controllerID, err)
		f.logger.Error("could not connect to slave", "controller_id", controllerID, "error", err)
		f.auditor.Record(ctx, ActionSlaveRejected, "slave", controllerID,
			map[string]any{"error": err.Error()})
		return err
	}

	link := &SlaveLink{
		ControllerID: controllerID,
		Name:         slave.Name(),
		Version:      remoteVersion,
		AddedAt:      time.Now().UTC(),
		slave:        slave,
	}

	f.mu.Lock()
	for _, l := range f.links {
		if l.ControllerID == controllerID {
			f.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateSlave, controllerID)
		}
	}
	f.links = append(f.links, link)
	count := len(f.links)
	f.mu.Unlock()

	f.logger.Info("slave added",
		"controller_id", controllerID,
		"version", remoteVersion,
		"slaves", count,
	)
	f.auditor.Record(ctx, ActionSlaveAdded, "slave", controllerID,
		map[string]any{"version": remoteVersion, "name": link.Name})
	return nil
}

func (f *Federation) has(controllerID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range f.links {
		if l.ControllerID == controllerID {
			return true
		}
	}
	return false
}

// RemoveSlave drops the link for controllerID. It reports whether a link was
// removed.
func (f *Federation) RemoveSlave(ctx context.Context, controllerID string) bool {
	f.mu.Lock()
	var removed *SlaveLink
	for i, l := range f.links {
		if l.ControllerID == controllerID {
			removed = l
			f.links = append(f.links[:i], f.links[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if removed == nil {
		return false
	}

	if f.onRemove != nil {
		f.onRemove(removed.Name)
	}
	f.logger.Info("slave removed", "controller_id", controllerID)
	f.auditor.Record(ctx, ActionSlaveRemoved, "slave", controllerID, nil)
	return true
}

// Slaves returns the delegates in the order they were added.
func (f *Federation) Slaves() []Slave {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Slave, len(f.links))
	for i, l := range f.links {
		out[i] = l.slave
	}
	return out
}

// Links returns copies of the slave links in the order they were added.
func (f *Federation) Links() []SlaveLink {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]SlaveLink, len(f.links))
	for i, l := range f.links {
		out[i] = *l
	}
	return out
}
