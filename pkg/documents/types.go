package documents

import "time"

// Category classifies a document
type Category string

const (
	CategoryBudget  Category = "budget"
	CategoryBylaws  Category = "bylaws"
	CategoryMinutes Category = "minutes"
	CategoryNotice  Category = "notice"
	CategoryOther   Category = "other"
)

// Valid reports whether the category is known
func (c Category) Valid() bool {
	switch c {
	case CategoryBudget, CategoryBylaws, CategoryMinutes, CategoryNotice, CategoryOther:
		return true
	}
	return false
}

// Document is one filed document. AssociationID nil means the document is
// visible across the whole organization.
type Document struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	AssociationID  *int64    `json:"association_id,omitempty"`
	Title          string    `json:"title"`
	Category       Category  `json:"category"`
	StoragePath    string    `json:"storage_path,omitempty"`
	CreatedBy      *int64    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ScopeOrg implements tenancy.Row
func (d *Document) ScopeOrg() int64 { return d.OrganizationID }

// ScopeAssociation implements tenancy.Row
func (d *Document) ScopeAssociation() *int64 { return d.AssociationID }

// ListFilter narrows a document listing within the caller's visible scope
type ListFilter struct {
	Category      Category
	AssociationID *int64
	Limit         int
	Offset        int
}
