package tenancy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/camberhq/camber/pkg/observability"
)

const assignmentCacheTTL = 5 * time.Minute

// AssignmentStore materializes access assignments: edges granting an actor
// read visibility into an association they are not a member of, typically a
// service provider with an active work order there. The edges live in an
// indexed junction table so the read policies can test them with one EXISTS,
// with a Redis cache in front for the hot path.
type AssignmentStore struct {
	db      *sql.DB
	cache   *redis.Client // nil disables caching
	metrics *observability.Metrics
}

// NewAssignmentStore creates an assignment store
func NewAssignmentStore(db *sql.DB, cache *redis.Client, metrics *observability.Metrics) *AssignmentStore {
	return &AssignmentStore{db: db, cache: cache, metrics: metrics}
}

func assignmentCacheKey(userID, associationID int64) string {
	return fmt.Sprintf("camber:assignment:%d:%d", userID, associationID)
}

// HasAssignment reports whether the user holds an active assignment into the
// association
func (s *AssignmentStore) HasAssignment(ctx context.Context, userID, associationID int64) (bool, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, assignmentCacheKey(userID, associationID)).Result()
		if err == nil {
			if s.metrics != nil {
				s.metrics.AssignmentCacheHits.Inc()
			}
			return cached == "1", nil
		}
		// Cache errors other than a miss fall through to the database
		if s.metrics != nil {
			s.metrics.AssignmentCacheMisses.Inc()
		}
	}

	var active bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM access_assignments
			WHERE user_id = $1 AND association_id = $2 AND is_active
		)
	`, userID, associationID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}

	if s.cache != nil {
		value := "0"
		if active {
			value = "1"
		}
		s.cache.Set(ctx, assignmentCacheKey(userID, associationID), value, assignmentCacheTTL)
	}

	return active, nil
}

// Grant records an active assignment. sourceType and sourceID identify what
// produced the edge so it can be revoked when the source closes. Idempotent
// per source.
func (s *AssignmentStore) Grant(ctx context.Context, organizationID, associationID, userID int64, sourceType string, sourceID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_assignments (organization_id, association_id, user_id, source_type, source_id, is_active, granted_at)
		VALUES ($1, $2, $3, $4, $5, true, NOW())
		ON CONFLICT (user_id, association_id, source_type, source_id)
		DO UPDATE SET is_active = true, revoked_at = NULL, granted_at = NOW()
	`, organizationID, associationID, userID, sourceType, sourceID)
	if err != nil {
		return fmt.Errorf("failed to grant assignment: %w", err)
	}

	s.invalidate(ctx, userID, associationID)
	return nil
}

// Revoke deactivates the assignment produced by one source. Other active
// sources keep the edge alive in HasAssignment through their own rows.
func (s *AssignmentStore) Revoke(ctx context.Context, associationID, userID int64, sourceType string, sourceID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE access_assignments
		SET is_active = false, revoked_at = NOW()
		WHERE user_id = $1 AND association_id = $2 AND source_type = $3 AND source_id = $4 AND is_active
	`, userID, associationID, sourceType, sourceID)
	if err != nil {
		return fmt.Errorf("failed to revoke assignment: %w", err)
	}

	s.invalidate(ctx, userID, associationID)
	return nil
}

func (s *AssignmentStore) invalidate(ctx context.Context, userID, associationID int64) {
	if s.cache != nil {
		s.cache.Del(ctx, assignmentCacheKey(userID, associationID))
	}
}
