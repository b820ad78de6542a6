package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camberhq/camber/pkg/audit"
	"github.com/camberhq/camber/pkg/tenancy"
)

// ErrNotFound covers both absent and invisible documents. Row-level security
// filters out rows the caller may not see, so the two cases are identical on
// purpose.
var ErrNotFound = errors.New("document not found")

// ErrInvalidCategory rejects unknown document categories
var ErrInvalidCategory = errors.New("invalid document category")

const tableName = "documents"

// TableSpec registers the documents table with the tenancy policy generator
func TableSpec() tenancy.TableSpec {
	return tenancy.TableSpec{Name: tableName, Scope: tenancy.ScopeTiered, ItemType: "document"}
}

// Store provides tenant-scoped document operations. Every method runs inside
// a tenant transaction; the predicate engine pre-flights writes before the
// database policies see them.
type Store struct {
	sessions *tenancy.SessionManager
	engine   *tenancy.Engine
	recorder audit.Recorder
}

// NewStore creates a document store
func NewStore(sessions *tenancy.SessionManager, engine *tenancy.Engine, recorder audit.Recorder) *Store {
	return &Store{sessions: sessions, engine: engine, recorder: recorder}
}

// Create files a new document in the caller's scope
func (s *Store) Create(ctx context.Context, doc *Document) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	doc.OrganizationID = tc.OrganizationID
	if doc.AssociationID == nil {
		doc.AssociationID = tc.AssociationID
	}
	doc.CreatedBy = tc.ActorID

	if !doc.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, doc.Category)
	}
	if err := s.engine.CheckInsert(ctx, tc, tableName, tenancy.ScopeTiered, doc); err != nil {
		return err
	}

	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO documents (organization_id, association_id, title, category, storage_path, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`, doc.OrganizationID, doc.AssociationID, doc.Title, doc.Category, doc.StoragePath, doc.CreatedBy).
			Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	s.recordChange(ctx, tc, "create", doc.ID, nil, doc)
	return nil
}

// Get returns one document the caller may see
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	err := s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		return scanDocument(tx.QueryRowContext(ctx, `
			SELECT id, organization_id, association_id, title, category, storage_path, created_by, created_at, updated_at
			FROM documents
			WHERE id = $1
		`, id), &doc)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// List returns visible documents matching the filter, newest first
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	query := `
		SELECT id, organization_id, association_id, title, category, storage_path, created_by, created_at, updated_at
		FROM documents
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filter.Category)
		argCount++
	}
	if filter.AssociationID != nil {
		query += fmt.Sprintf(" AND association_id = $%d", argCount)
		args = append(args, *filter.AssociationID)
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	var docs []Document
	err := s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var doc Document
			if err := scanDocumentRows(rows, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Update changes a document's title, category or storage path
func (s *Store) Update(ctx context.Context, id int64, title string, category Category, storagePath string) (*Document, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	var before, after Document
	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		err := scanDocument(tx.QueryRowContext(ctx, `
			SELECT id, organization_id, association_id, title, category, storage_path, created_by, created_at, updated_at
			FROM documents
			WHERE id = $1
			FOR UPDATE
		`, id), &before)
		if err != nil {
			return err
		}

		// The read policy may have admitted this row through an
		// assignment; writes must not
		if err := s.engine.Authorize(ctx, tc, tableName, "update", tenancy.ScopeTiered, &before); err != nil {
			return err
		}

		after = before
		after.Title = title
		after.Category = category
		after.StoragePath = storagePath
		return tx.QueryRowContext(ctx, `
			UPDATE documents
			SET title = $2, category = $3, storage_path = $4, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`, id, title, category, storagePath).Scan(&after.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) || tenancy.IsDenied(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	s.recordChange(ctx, tc, "update", id, &before, &after)
	return &after, nil
}

// Delete removes a document
func (s *Store) Delete(ctx context.Context, id int64) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}

	var before Document
	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		err := scanDocument(tx.QueryRowContext(ctx, `
			SELECT id, organization_id, association_id, title, category, storage_path, created_by, created_at, updated_at
			FROM documents
			WHERE id = $1
			FOR UPDATE
		`, id), &before)
		if err != nil {
			return err
		}

		if err := s.engine.Authorize(ctx, tc, tableName, "delete", tenancy.ScopeTiered, &before); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) || tenancy.IsDenied(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	s.recordChange(ctx, tc, "delete", id, &before, nil)
	return nil
}

func (s *Store) recordChange(ctx context.Context, tc *tenancy.Context, verb string, id int64, before, after *Document) {
	var previousState, newState json.RawMessage
	if before != nil {
		previousState, _ = audit.Snapshot(before)
	}
	if after != nil {
		newState, _ = audit.Snapshot(after)
	}

	assocID := tc.AssociationID
	if after != nil {
		assocID = after.AssociationID
	} else if before != nil {
		assocID = before.AssociationID
	}

	s.recorder.Record(ctx, &audit.Event{
		OrganizationID: tc.OrganizationID,
		AssociationID:  assocID,
		ActorID:        tc.ActorID,
		ActorType:      audit.ActorType(tc.ActorType),
		Action:         audit.DataAction("document", verb),
		ResourceType:   "document",
		ResourceID:     fmt.Sprintf("%d", id),
		PreviousState:  previousState,
		NewState:       newState,
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, doc *Document) error {
	return row.Scan(&doc.ID, &doc.OrganizationID, &doc.AssociationID,
		&doc.Title, &doc.Category, &doc.StoragePath,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
}

func scanDocumentRows(rows *sql.Rows, doc *Document) error {
	return scanDocument(rows, doc)
}
