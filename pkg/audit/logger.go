package audit

import (
	"context"

	"github.com/camberhq/camber/pkg/contextkeys"
)

// Recorder records audit events. Record is best effort: implementations must
// not fail the calling operation when the event cannot be persisted.
type Recorder interface {
	// Record persists one event. Failures are escalated out of band
	// (logged and counted), never returned.
	Record(ctx context.Context, event *Event)

	// List returns events matching the filter, newest first
	List(ctx context.Context, filter ListFilter) ([]*Event, error)
}

// NoopRecorder discards all events. Used in tests and tooling that runs
// without an audit trail.
type NoopRecorder struct{}

func (NoopRecorder) Record(ctx context.Context, event *Event) {}

func (NoopRecorder) RecordContextSwitch(ctx context.Context, organizationID int64, associationID *int64, actorID *int64, actorType string) {
}

func (NoopRecorder) List(ctx context.Context, filter ListFilter) ([]*Event, error) {
	return nil, nil
}

// WithRecorder places a recorder in the context
func WithRecorder(ctx context.Context, recorder Recorder) context.Context {
	return contextkeys.WithAuditRecorder(ctx, recorder)
}

// FromContext returns the recorder from the context, or a NoopRecorder when
// none is set
func FromContext(ctx context.Context) Recorder {
	if recorder, ok := ctx.Value(contextkeys.AuditRecorderKey).(Recorder); ok {
		return recorder
	}
	return NoopRecorder{}
}
