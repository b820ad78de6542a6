package tenancy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/camberhq/camber/pkg/observability"
)

// OwnershipRef is the only shape the bootstrap lookup returns. Nothing else
// about the item is reachable through this path.
type OwnershipRef struct {
	ItemType       string `json:"item_type"`
	ItemID         int64  `json:"item_id"`
	OrganizationID int64  `json:"organization_id"`
}

// BootstrapLookup resolves which organization owns an item before any tenant
// context exists, e.g. when a deep link arrives and the right organization
// must be selected first.
//
// It reads only the item_ownership mapping, an unpoliced table whose three
// columns are its entire schema, so this path cannot be grown into a side
// door around the tenant predicates.
type BootstrapLookup struct {
	db      *sql.DB
	metrics *observability.Metrics
	tables  map[string]string // item type -> table name
}

// NewBootstrapLookup creates a bootstrap lookup over the given table specs
func NewBootstrapLookup(db *sql.DB, metrics *observability.Metrics, tables []TableSpec) *BootstrapLookup {
	registered := make(map[string]string, len(tables))
	for _, t := range tables {
		itemType := t.ItemType
		if itemType == "" {
			itemType = t.Name
		}
		registered[itemType] = t.Name
	}
	return &BootstrapLookup{db: db, metrics: metrics, tables: registered}
}

// Resolve returns the ownership reference for an item, or an error when the
// item type is unregistered or the item does not exist
func (b *BootstrapLookup) Resolve(ctx context.Context, itemType string, itemID int64) (*OwnershipRef, error) {
	if _, ok := b.tables[itemType]; !ok {
		return nil, fmt.Errorf("unknown item type %q", itemType)
	}

	if b.metrics != nil {
		b.metrics.BootstrapLookupsTotal.WithLabelValues(itemType).Inc()
	}

	var organizationID int64
	err := b.db.QueryRowContext(ctx, `
		SELECT organization_id FROM item_ownership
		WHERE item_type = $1 AND item_id = $2
	`, itemType, itemID).Scan(&organizationID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("ownership lookup failed: %w", err)
	}

	return &OwnershipRef{
		ItemType:       itemType,
		ItemID:         itemID,
		OrganizationID: organizationID,
	}, nil
}
