package audit

import (
	"context"
	"time"
)

// writeTimeout bounds a single audit write.
const writeTimeout = 2 * time.Second

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder stamps entries with the controller name and writes them to a
// Repository. Write failures are logged and otherwise ignored.
type Recorder struct {
	repo       Repository
	controller func() string
	logger     Logger
}

// NewRecorder creates a recorder. controller is called on every write so
// a controller ID set after startup is picked up.
func NewRecorder(repo Repository, controller func() string) *Recorder {
	return &Recorder{repo: repo, controller: controller, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Record writes one entry.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID string, details map[string]any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := r.repo.Create(ctx, &Log{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Controller: r.controller(),
		Details:    details,
	})
	if err != nil {
		r.logger.Warn("audit write failed", "action", action, "entity_id", entityID, "error", err)
	}
}
