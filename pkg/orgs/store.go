package orgs

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides database operations for organizations and associations.
//
// These are platform tables read during context resolution, before any tenant
// context exists, so the store runs outside the tenant session machinery.
type Store struct {
	db *sql.DB
}

// NewStore creates a new orgs store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateOrganization creates an organization together with its
// pseudo-association in a single transaction
func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, is_active, created_at, updated_at)
		VALUES ($1, $2, true, NOW(), NOW())
		RETURNING id, is_active, created_at, updated_at
	`, org.Name, org.Slug).Scan(&org.ID, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO associations (organization_id, name, is_pseudo, is_active, created_at, updated_at)
		VALUES ($1, $2, true, true, NOW(), NOW())
	`, org.ID, org.Name+" (internal)")
	if err != nil {
		return fmt.Errorf("failed to create pseudo association: %w", err)
	}

	return tx.Commit()
}

// GetOrganization retrieves an organization by ID
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	var org Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`, slug).Scan(&org.ID, &org.Name, &org.Slug, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return &org, nil
}

// CreateAssociation creates a real association under an organization
func (s *Store) CreateAssociation(ctx context.Context, assoc *Association) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO associations (organization_id, name, is_pseudo, unit_count, is_active, created_at, updated_at)
		VALUES ($1, $2, false, $3, true, NOW(), NOW())
		RETURNING id, is_active, created_at, updated_at
	`, assoc.OrganizationID, assoc.Name, assoc.UnitCount).
		Scan(&assoc.ID, &assoc.IsActive, &assoc.CreatedAt, &assoc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create association: %w", err)
	}
	return nil
}

// GetAssociation retrieves an association by ID
func (s *Store) GetAssociation(ctx context.Context, id int64) (*Association, error) {
	var assoc Association
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, is_pseudo, unit_count, is_active, created_at, updated_at
		FROM associations
		WHERE id = $1
	`, id).Scan(&assoc.ID, &assoc.OrganizationID, &assoc.Name, &assoc.IsPseudo,
		&assoc.UnitCount, &assoc.IsActive, &assoc.CreatedAt, &assoc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("association not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get association: %w", err)
	}
	return &assoc, nil
}

// ListAssociations lists all associations for an organization
func (s *Store) ListAssociations(ctx context.Context, organizationID int64) ([]Association, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, is_pseudo, unit_count, is_active, created_at, updated_at
		FROM associations
		WHERE organization_id = $1
		ORDER BY is_pseudo DESC, name
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	defer rows.Close()

	var associations []Association
	for rows.Next() {
		var assoc Association
		if err := rows.Scan(&assoc.ID, &assoc.OrganizationID, &assoc.Name, &assoc.IsPseudo,
			&assoc.UnitCount, &assoc.IsActive, &assoc.CreatedAt, &assoc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		associations = append(associations, assoc)
	}
	return associations, rows.Err()
}

// GetPseudoAssociation returns the organization's pseudo-association
func (s *Store) GetPseudoAssociation(ctx context.Context, organizationID int64) (*Association, error) {
	var assoc Association
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, is_pseudo, unit_count, is_active, created_at, updated_at
		FROM associations
		WHERE organization_id = $1 AND is_pseudo = true
	`, organizationID).Scan(&assoc.ID, &assoc.OrganizationID, &assoc.Name, &assoc.IsPseudo,
		&assoc.UnitCount, &assoc.IsActive, &assoc.CreatedAt, &assoc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pseudo association missing for organization %d", organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pseudo association: %w", err)
	}
	return &assoc, nil
}

// EnsurePseudoAssociation creates the pseudo-association for an organization
// if it is missing. Safe to call repeatedly; used when backfilling
// organizations created before pseudo-associations existed.
func (s *Store) EnsurePseudoAssociation(ctx context.Context, organizationID int64) (*Association, error) {
	existing, err := s.GetPseudoAssociation(ctx, organizationID)
	if err == nil {
		return existing, nil
	}

	org, err := s.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var assoc Association
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO associations (organization_id, name, is_pseudo, is_active, created_at, updated_at)
		VALUES ($1, $2, true, true, NOW(), NOW())
		ON CONFLICT (organization_id) WHERE is_pseudo DO NOTHING
		RETURNING id, organization_id, name, is_pseudo, unit_count, is_active, created_at, updated_at
	`, organizationID, org.Name+" (internal)").
		Scan(&assoc.ID, &assoc.OrganizationID, &assoc.Name, &assoc.IsPseudo,
			&assoc.UnitCount, &assoc.IsActive, &assoc.CreatedAt, &assoc.UpdatedAt)
	if err == sql.ErrNoRows {
		// Lost the race; the winner's row is now visible
		return s.GetPseudoAssociation(ctx, organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure pseudo association: %w", err)
	}
	return &assoc, nil
}

// AssociationBelongsToOrg reports whether the association exists and belongs
// to the given organization
func (s *Store) AssociationBelongsToOrg(ctx context.Context, associationID, organizationID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM associations WHERE id = $1 AND organization_id = $2
		)
	`, associationID, organizationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check association ownership: %w", err)
	}
	return exists, nil
}

// AddAssociationMember records a user's membership in an association
func (s *Store) AddAssociationMember(ctx context.Context, member *AssociationMember) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO association_members (association_id, user_id, unit_number, verified_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, member.AssociationID, member.UserID, member.UnitNumber, member.VerifiedAt).
		Scan(&member.ID, &member.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add association member: %w", err)
	}
	return nil
}

// VerifyAssociationMember marks a membership as verified
func (s *Store) VerifyAssociationMember(ctx context.Context, associationID, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE association_members
		SET verified_at = NOW()
		WHERE association_id = $1 AND user_id = $2 AND verified_at IS NULL
	`, associationID, userID)
	if err != nil {
		return fmt.Errorf("failed to verify membership: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("membership not found or already verified")
	}
	return nil
}

// IsVerifiedMember reports whether the user holds a verified membership in
// the association. This is the gate external principals must pass before an
// association scope is accepted for them.
func (s *Store) IsVerifiedMember(ctx context.Context, associationID, userID int64) (bool, error) {
	var verified bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM association_members
			WHERE association_id = $1 AND user_id = $2 AND verified_at IS NOT NULL
		)
	`, associationID, userID).Scan(&verified)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return verified, nil
}
