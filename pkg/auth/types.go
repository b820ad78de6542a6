package auth

import "time"

// User represents a user account
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email,omitempty"`
	FullName    string     `json:"full_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Role represents organization-level roles
type Role string

const (
	RoleOrgAdmin    Role = "org_admin"    // Management-company administrator
	RoleOrgManager  Role = "org_manager"  // Community manager (org staff)
	RoleBoardMember Role = "board_member" // External association board member
	RoleOwner       Role = "owner"        // Property owner / resident
	RoleProvider    Role = "provider"     // Service provider (vendor)
)

// IsOrgStaff reports whether the role belongs to management-company staff.
// Staff roles carry the association-tier bypass in the tenant predicates;
// external roles never do.
func (r Role) IsOrgStaff() bool {
	return r == RoleOrgAdmin || r == RoleOrgManager
}

// Pillar represents a platform-staff access area
type Pillar string

const (
	PillarCAM       Pillar = "cam"       // Community association management
	PillarConcierge Pillar = "concierge" // Concierge services
	PillarDispatch  Pillar = "dispatch"  // Service-provider dispatch
)

// StaffRole represents a platform staff role
type StaffRole string

const (
	StaffRoleSupport StaffRole = "support"
	StaffRoleOps     StaffRole = "ops"
	StaffRoleAdmin   StaffRole = "admin"
)

// StaffRecord holds platform-staff facts for a principal
type StaffRecord struct {
	ID      int64       `json:"id"`
	UserID  int64       `json:"user_id"`
	Roles   []StaffRole `json:"roles"`
	Pillars []Pillar    `json:"pillars"`
}

// HasPillar checks pillar access
func (s *StaffRecord) HasPillar(p Pillar) bool {
	for _, pillar := range s.Pillars {
		if pillar == p {
			return true
		}
	}
	return false
}

// OrgMembership represents a principal's membership in one organization
type OrgMembership struct {
	OrganizationID int64     `json:"organization_id"`
	Role           Role      `json:"role"`
	IsDefault      bool      `json:"is_default"`
	JoinedAt       time.Time `json:"joined_at"`
}

// APIToken represents an API token
type APIToken struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TokenHash    string     `json:"-"` // Never expose hash
	TokenPrefix  string     `json:"token_prefix"`
	Name         string     `json:"name"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Principal is the acting identity for a request. Resolved once per request
// from the token; immutable afterwards.
type Principal struct {
	User        *User           `json:"user"`
	Memberships []OrgMembership `json:"memberships"`
	Staff       *StaffRecord    `json:"staff,omitempty"`
	Token       *APIToken       `json:"-"`
}

// IsPlatformStaff reports whether the principal has a platform staff record
func (p *Principal) IsPlatformStaff() bool {
	return p.Staff != nil && len(p.Staff.Roles) > 0
}

// MembershipFor returns the principal's membership in the given organization,
// or nil when none exists
func (p *Principal) MembershipFor(organizationID int64) *OrgMembership {
	for i := range p.Memberships {
		if p.Memberships[i].OrganizationID == organizationID {
			return &p.Memberships[i]
		}
	}
	return nil
}

// DefaultOrganization returns the principal's default organization id, or
// the only membership's organization when no explicit default is set.
// Returns 0 when the principal has no memberships.
func (p *Principal) DefaultOrganization() int64 {
	for _, m := range p.Memberships {
		if m.IsDefault {
			return m.OrganizationID
		}
	}
	if len(p.Memberships) == 1 {
		return p.Memberships[0].OrganizationID
	}
	return 0
}

// IsOrgStaff reports whether the principal is management-company staff for
// the given organization. Platform staff count as org staff everywhere their
// pillar access applies; membership roles decide for everyone else.
func (p *Principal) IsOrgStaff(organizationID int64) bool {
	if p.IsPlatformStaff() {
		return true
	}
	if m := p.MembershipFor(organizationID); m != nil {
		return m.Role.IsOrgStaff()
	}
	return false
}
