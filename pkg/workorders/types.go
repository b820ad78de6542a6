package workorders

import "time"

// Status is the work order lifecycle state
type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// terminal reports whether no further transitions are allowed
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// WorkOrder is one maintenance request. Work orders always belong to an
// association; there are no organization-wide work orders.
type WorkOrder struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	AssociationID  int64      `json:"association_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status"`
	ProviderID     *int64     `json:"provider_id,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// ScopeOrg implements tenancy.Row
func (w *WorkOrder) ScopeOrg() int64 { return w.OrganizationID }

// ScopeAssociation implements tenancy.Row
func (w *WorkOrder) ScopeAssociation() *int64 { return &w.AssociationID }
