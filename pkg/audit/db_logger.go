package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/camberhq/camber/pkg/contextkeys"
	"github.com/camberhq/camber/pkg/observability"
)

// DBRecorder persists audit events to PostgreSQL
type DBRecorder struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewDBRecorder creates a database-backed audit recorder
func NewDBRecorder(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBRecorder{db: db, logger: logger, metrics: metrics}, nil
}

// Record persists one event. On failure the business operation proceeds: the
// failure is logged at error level and counted, never propagated.
func (r *DBRecorder) Record(ctx context.Context, event *Event) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.PerformedAt.IsZero() {
		event.PerformedAt = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}

	if err := r.insert(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.AuditEmitFailuresTotal.Inc()
		}
		if r.logger != nil {
			r.logger.WithError(err).
				WithField("action", event.Action).
				WithField("organization_id", event.OrganizationID).
				Error("failed to persist audit event")
		}
		return
	}

	if r.metrics != nil {
		r.metrics.AuditEventsTotal.WithLabelValues(event.Family()).Inc()
	}
}

// insert writes the event inside its own transaction. The recorder runs on
// the shared pool, not inside the caller's asserted transaction, so the
// insert policy would see no organization there; the event's own
// organization is asserted first. A separate transaction also keeps audit
// failures from ever rolling back the operation being described.
func (r *DBRecorder) insert(ctx context.Context, event *Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if err := assertOrganization(ctx, tx, event.OrganizationID); err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			event_id, organization_id, association_id,
			actor_id, actor_type, action,
			resource_type, resource_id, request_id,
			previous_state, new_state, performed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		event.EventID, event.OrganizationID, event.AssociationID,
		event.ActorID, event.ActorType, event.Action,
		event.ResourceType, event.ResourceID, event.RequestID,
		[]byte(event.PreviousState), []byte(event.NewState), event.PerformedAt,
	).Scan(&event.ID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// assertOrganization scopes the transaction to one organization for the
// audit policies. set_config with is_local=true never outlives the
// transaction.
func assertOrganization(ctx context.Context, tx *sql.Tx, organizationID int64) error {
	_, err := tx.ExecContext(ctx,
		"SELECT set_config('camber.org_id', $1, true)",
		strconv.FormatInt(organizationID, 10))
	if err != nil {
		return fmt.Errorf("failed to assert audit scope: %w", err)
	}
	return nil
}

// RecordContextSwitch records one context-switch event. Called for every
// tenant context assertion, including reassertions of an unchanged scope.
func (r *DBRecorder) RecordContextSwitch(ctx context.Context, organizationID int64, associationID *int64, actorID *int64, actorType string) {
	r.Record(ctx, &Event{
		OrganizationID: organizationID,
		AssociationID:  associationID,
		ActorID:        actorID,
		ActorType:      ActorType(actorType),
		Action:         ActionContextSwitch,
	})
}

// List returns events matching the filter, newest first. OrganizationID is
// mandatory; listings never span organizations.
func (r *DBRecorder) List(ctx context.Context, filter ListFilter) ([]*Event, error) {
	if filter.OrganizationID == 0 {
		return nil, fmt.Errorf("organization id is required")
	}

	query := `
		SELECT id, event_id, organization_id, association_id,
			actor_id, actor_type, action,
			resource_type, resource_id, request_id,
			previous_state, new_state, performed_at
		FROM audit_events
		WHERE organization_id = $1
	`
	args := []interface{}{filter.OrganizationID}
	argCount := 2

	if filter.AssociationID != nil {
		query += fmt.Sprintf(" AND association_id = $%d", argCount)
		args = append(args, *filter.AssociationID)
		argCount++
	}
	if filter.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}
	if filter.ActorType != nil {
		query += fmt.Sprintf(" AND actor_type = $%d", argCount)
		args = append(args, string(*filter.ActorType))
		argCount++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, filter.Action)
		argCount++
	}
	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, filter.ResourceType)
		argCount++
	}
	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND performed_at >= $%d", argCount)
		args = append(args, *filter.Since)
		argCount++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND performed_at <= $%d", argCount)
		args = append(args, *filter.Until)
		argCount++
	}

	query += " ORDER BY performed_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if err := assertOrganization(ctx, tx, filter.OrganizationID); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		var event Event
		var previousState, newState []byte
		err := rows.Scan(
			&event.ID, &event.EventID, &event.OrganizationID, &event.AssociationID,
			&event.ActorID, &event.ActorType, &event.Action,
			&event.ResourceType, &event.ResourceID, &event.RequestID,
			&previousState, &newState, &event.PerformedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.PreviousState = previousState
		event.NewState = newState
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}
