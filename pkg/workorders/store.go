package workorders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/camberhq/camber/pkg/audit"
	"github.com/camberhq/camber/pkg/tenancy"
)

// ErrNotFound covers absent and invisible work orders alike
var ErrNotFound = errors.New("work order not found")

// ErrClosed rejects transitions on completed or cancelled orders
var ErrClosed = errors.New("work order is closed")

const (
	tableName = "work_orders"
	// assignmentSource tags access assignments materialized by this package
	assignmentSource = "work_order"
)

// TableSpec registers the work_orders table with the tenancy policy generator
func TableSpec() tenancy.TableSpec {
	return tenancy.TableSpec{Name: tableName, Scope: tenancy.ScopeTiered, ItemType: "work_order"}
}

// Store provides tenant-scoped work order operations
type Store struct {
	sessions    *tenancy.SessionManager
	engine      *tenancy.Engine
	assignments *tenancy.AssignmentStore
	recorder    audit.Recorder
}

// NewStore creates a work order store
func NewStore(sessions *tenancy.SessionManager, engine *tenancy.Engine, assignments *tenancy.AssignmentStore, recorder audit.Recorder) *Store {
	return &Store{
		sessions:    sessions,
		engine:      engine,
		assignments: assignments,
		recorder:    recorder,
	}
}

// Create opens a new work order in the caller's scope
func (s *Store) Create(ctx context.Context, order *WorkOrder) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	order.OrganizationID = tc.OrganizationID
	if order.AssociationID == 0 && tc.AssociationID != nil {
		order.AssociationID = *tc.AssociationID
	}
	if order.AssociationID == 0 {
		return fmt.Errorf("work orders require an association")
	}
	order.Status = StatusOpen
	order.CreatedBy = tc.ActorID

	if err := s.engine.CheckInsert(ctx, tc, tableName, tenancy.ScopeTiered, order); err != nil {
		return err
	}

	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO work_orders (organization_id, association_id, title, description, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING id, created_at, updated_at
		`, order.OrganizationID, order.AssociationID, order.Title, order.Description, order.Status, order.CreatedBy).
			Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("failed to create work order: %w", err)
	}

	s.recordChange(ctx, tc, "create", order.ID, order.AssociationID, nil, order)
	return nil
}

// Get returns one work order the caller may see
func (s *Store) Get(ctx context.Context, id int64) (*WorkOrder, error) {
	var order WorkOrder
	err := s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		return scanOrder(tx.QueryRowContext(ctx, selectByID, id), &order)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}
	return &order, nil
}

// List returns visible work orders, optionally narrowed by status, newest
// first. An asserted association narrows the listing for staff and members
// alike.
func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]WorkOrder, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, association_id, title, description, status, provider_id, created_by, created_at, updated_at, closed_at
		FROM work_orders
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, status)
		argCount++
	}
	if tc.AssociationID != nil {
		query += fmt.Sprintf(" AND association_id = $%d", argCount)
		args = append(args, *tc.AssociationID)
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, offset)
	}

	var orders []WorkOrder
	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var order WorkOrder
			if err := scanOrder(rows, &order); err != nil {
				return err
			}
			orders = append(orders, order)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list work orders: %w", err)
	}
	return orders, nil
}

// Assign hands the order to a provider and materializes the provider's
// access assignment into the order's association. The assignment is written
// after the order commits so a failed transition never grants visibility.
func (s *Store) Assign(ctx context.Context, id, providerID int64) (*WorkOrder, error) {
	order, err := s.transition(ctx, id, StatusAssigned, func(order *WorkOrder) error {
		order.ProviderID = &providerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.assignments.Grant(ctx, order.OrganizationID, order.AssociationID, providerID, assignmentSource, order.ID); err != nil {
		return nil, fmt.Errorf("failed to materialize assignment: %w", err)
	}
	return order, nil
}

// Start marks an assigned order in progress
func (s *Store) Start(ctx context.Context, id int64) (*WorkOrder, error) {
	return s.transition(ctx, id, StatusInProgress, func(order *WorkOrder) error {
		if order.ProviderID == nil {
			return fmt.Errorf("work order has no provider")
		}
		return nil
	})
}

// Complete closes the order and revokes the provider's materialized
// assignment
func (s *Store) Complete(ctx context.Context, id int64) (*WorkOrder, error) {
	return s.close(ctx, id, StatusCompleted)
}

// Cancel cancels the order and revokes the provider's materialized
// assignment
func (s *Store) Cancel(ctx context.Context, id int64) (*WorkOrder, error) {
	return s.close(ctx, id, StatusCancelled)
}

func (s *Store) close(ctx context.Context, id int64, status Status) (*WorkOrder, error) {
	order, err := s.transition(ctx, id, status, nil)
	if err != nil {
		return nil, err
	}

	if order.ProviderID != nil {
		if err := s.assignments.Revoke(ctx, order.AssociationID, *order.ProviderID, assignmentSource, order.ID); err != nil {
			return nil, fmt.Errorf("failed to revoke assignment: %w", err)
		}
	}
	return order, nil
}

// transition loads the order for update, authorizes the write, applies the
// mutation and records the audit event
func (s *Store) transition(ctx context.Context, id int64, status Status, mutate func(*WorkOrder) error) (*WorkOrder, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	var before, after WorkOrder
	err = s.sessions.RunInTx(ctx, func(tx *sql.Tx) error {
		err := scanOrder(tx.QueryRowContext(ctx, selectByID+" FOR UPDATE", id), &before)
		if err != nil {
			return err
		}

		if err := s.engine.Authorize(ctx, tc, tableName, "update", tenancy.ScopeTiered, &before); err != nil {
			return err
		}
		if before.Status.terminal() {
			return ErrClosed
		}

		after = before
		after.Status = status
		if mutate != nil {
			if err := mutate(&after); err != nil {
				return err
			}
		}

		closedAt := "NULL"
		if status.terminal() {
			closedAt = "NOW()"
		}
		return tx.QueryRowContext(ctx, fmt.Sprintf(`
			UPDATE work_orders
			SET status = $2, provider_id = $3, updated_at = NOW(), closed_at = %s
			WHERE id = $1
			RETURNING updated_at, closed_at
		`, closedAt), id, after.Status, after.ProviderID).Scan(&after.UpdatedAt, &after.ClosedAt)
	})
	if errors.Is(err, sql.ErrNoRows) || tenancy.IsDenied(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.recordChange(ctx, tc, string(status), id, after.AssociationID, &before, &after)
	return &after, nil
}

func (s *Store) recordChange(ctx context.Context, tc *tenancy.Context, verb string, id, associationID int64, before, after *WorkOrder) {
	var previousState, newState json.RawMessage
	if before != nil {
		previousState, _ = audit.Snapshot(before)
	}
	if after != nil {
		newState, _ = audit.Snapshot(after)
	}

	s.recorder.Record(ctx, &audit.Event{
		OrganizationID: tc.OrganizationID,
		AssociationID:  &associationID,
		ActorID:        tc.ActorID,
		ActorType:      audit.ActorType(tc.ActorType),
		Action:         audit.DataAction("work_order", verb),
		ResourceType:   "work_order",
		ResourceID:     fmt.Sprintf("%d", id),
		PreviousState:  previousState,
		NewState:       newState,
	})
}

const selectByID = `
	SELECT id, organization_id, association_id, title, description, status, provider_id, created_by, created_at, updated_at, closed_at
	FROM work_orders
	WHERE id = $1`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner, order *WorkOrder) error {
	return row.Scan(&order.ID, &order.OrganizationID, &order.AssociationID,
		&order.Title, &order.Description, &order.Status, &order.ProviderID,
		&order.CreatedBy, &order.CreatedAt, &order.UpdatedAt, &order.ClosedAt)
}
