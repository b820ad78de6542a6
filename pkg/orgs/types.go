package orgs

import "time"

// Organization represents a management company, the outer tenancy tier
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Association represents a community managed by an organization, the inner
// tenancy tier. IsPseudo marks the one synthetic association per organization
// that files the management company's own records.
type Association struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	IsPseudo       bool      `json:"is_pseudo"`
	UnitCount      int       `json:"unit_count"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AssociationMember links a user to an association they belong to. External
// principals (board members, owners, providers) may only act within
// associations where a verified membership row exists.
type AssociationMember struct {
	ID            int64      `json:"id"`
	AssociationID int64      `json:"association_id"`
	UserID        int64      `json:"user_id"`
	UnitNumber    string     `json:"unit_number,omitempty"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsVerified reports whether the membership has been verified
func (m *AssociationMember) IsVerified() bool {
	return m.VerifiedAt != nil
}
