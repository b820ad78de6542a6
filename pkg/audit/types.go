package audit

import (
	"encoding/json"
	"time"
)

// ActorType classifies who performed an audited action
type ActorType string

const (
	ActorTypeUser   ActorType = "USER"   // Organization member or association principal
	ActorTypeStaff  ActorType = "STAFF"  // Platform staff
	ActorTypeSystem ActorType = "SYSTEM" // Background jobs, migrations
)

// Context-switch and data actions. Data actions follow the
// "data.<resource>.<verb>" convention.
const (
	ActionContextSwitch = "context.switch"
)

// DataAction builds a data-family action name for a resource and verb
func DataAction(resource, verb string) string {
	return "data." + resource + "." + verb
}

// Event is a single audit trail entry. PreviousState and NewState hold
// before/after snapshots for data events; both are nil for context-switch
// events, which carry the switched-to scope in the tenant columns instead.
type Event struct {
	ID             int64           `json:"id"`
	EventID        string          `json:"event_id"` // UUID, assigned at record time
	OrganizationID int64           `json:"organization_id"`
	AssociationID  *int64          `json:"association_id,omitempty"`
	ActorID        *int64          `json:"actor_id,omitempty"` // nil for SYSTEM actors
	ActorType      ActorType       `json:"actor_type"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resource_type,omitempty"`
	ResourceID     string          `json:"resource_id,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	PreviousState  json.RawMessage `json:"previous_state,omitempty"`
	NewState       json.RawMessage `json:"new_state,omitempty"`
	PerformedAt    time.Time       `json:"performed_at"`
}

// Family returns the event family: "context" or "data"
func (e *Event) Family() string {
	if e.Action == ActionContextSwitch {
		return "context"
	}
	return "data"
}

// Snapshot marshals a record into a state snapshot. A nil record yields a
// nil snapshot, used for the previous state of creates and the new state of
// deletes.
func Snapshot(record interface{}) (json.RawMessage, error) {
	if record == nil {
		return nil, nil
	}
	return json.Marshal(record)
}

// ListFilter narrows an audit event listing. OrganizationID is always set by
// the caller from the tenant context; the rest are optional.
type ListFilter struct {
	OrganizationID int64
	AssociationID  *int64
	ActorID        *int64
	ActorType      *ActorType
	Action         string
	ResourceType   string
	ResourceID     string
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
}
