package tenancy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/camberhq/camber/pkg/auth"
	"github.com/camberhq/camber/pkg/observability"
	"github.com/camberhq/camber/pkg/orgs"
)

const (
	// OrgHeader selects the organization scope for a request
	OrgHeader = "X-Org-Id"
	// AssocHeader selects the association scope within the organization
	AssocHeader = "X-Assoc-Id"

	membershipCacheSize = 8192
	membershipCacheTTL  = 5 * time.Minute
)

// Pipeline resolves and validates the tenant context for every request and
// fails closed: no handler behind it runs without a validated context in the
// request context. Resolution order is principal, organization, association.
type Pipeline struct {
	orgs    *orgs.Store
	logger  *observability.Logger
	metrics *observability.Metrics

	// verified-membership results, keyed by "userID:assocID"
	membershipCache *expirable.LRU[string, bool]
}

// NewPipeline creates a tenant context pipeline
func NewPipeline(orgsStore *orgs.Store, logger *observability.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		orgs:            orgsStore,
		logger:          logger,
		metrics:         metrics,
		membershipCache: expirable.NewLRU[string, bool](membershipCacheSize, nil, membershipCacheTTL),
	}
}

// Middleware validates the tenant scope and installs the tenant context.
// Denials are reported as not-found so probing requests learn nothing about
// what exists in other tenants.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.GetPrincipal(r)
		if principal == nil {
			p.fail(w, "no_principal", http.StatusUnauthorized, "authentication required")
			return
		}

		organizationID, err := p.resolveOrganization(r, principal)
		if err != nil {
			p.fail(w, "no_organization", http.StatusBadRequest, err.Error())
			return
		}

		isPlatformStaff := principal.IsPlatformStaff()
		membership := principal.MembershipFor(organizationID)
		if membership == nil && !isPlatformStaff {
			p.fail(w, "foreign_organization", http.StatusNotFound, "not found")
			return
		}

		associationID, err := p.resolveAssociation(r, organizationID)
		if err != nil {
			p.fail(w, "invalid_association", http.StatusNotFound, "not found")
			return
		}

		isOrgStaff := principal.IsOrgStaff(organizationID)
		if !isOrgStaff {
			// External principals act within exactly one verified
			// association; there is no org-wide scope for them.
			if associationID == nil {
				p.fail(w, "association_required", http.StatusBadRequest, "association scope required")
				return
			}
			verified, err := p.isVerifiedMember(r, *associationID, principal.User.ID)
			if err != nil {
				p.fail(w, "membership_check_failed", http.StatusInternalServerError, "internal error")
				return
			}
			if !verified {
				p.fail(w, "unverified_membership", http.StatusNotFound, "not found")
				return
			}
		}

		actorType := ActorTypeUser
		if isPlatformStaff {
			actorType = ActorTypeStaff
		}
		tc := &Context{
			OrganizationID: organizationID,
			AssociationID:  associationID,
			IsOrgStaff:     isOrgStaff,
			ActorID:        &principal.User.ID,
			ActorType:      actorType,
		}
		if err := tc.Validate(); err != nil {
			p.fail(w, "invalid_context", http.StatusBadRequest, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func (p *Pipeline) resolveOrganization(r *http.Request, principal *auth.Principal) (int64, error) {
	raw := r.Header.Get(OrgHeader)
	if raw == "" {
		raw = mux.Vars(r)["org_id"]
	}
	if raw != "" {
		organizationID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || organizationID <= 0 {
			return 0, fmt.Errorf("invalid organization id")
		}
		return organizationID, nil
	}

	if organizationID := principal.DefaultOrganization(); organizationID > 0 {
		return organizationID, nil
	}
	return 0, fmt.Errorf("organization scope required")
}

func (p *Pipeline) resolveAssociation(r *http.Request, organizationID int64) (*int64, error) {
	raw := r.Header.Get(AssocHeader)
	if raw == "" {
		raw = mux.Vars(r)["assoc_id"]
	}
	if raw == "" {
		return nil, nil
	}

	associationID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || associationID <= 0 {
		return nil, fmt.Errorf("invalid association id")
	}

	belongs, err := p.orgs.AssociationBelongsToOrg(r.Context(), associationID, organizationID)
	if err != nil {
		return nil, err
	}
	if !belongs {
		return nil, fmt.Errorf("association not in organization")
	}
	return &associationID, nil
}

func (p *Pipeline) isVerifiedMember(r *http.Request, associationID, userID int64) (bool, error) {
	key := strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(associationID, 10)
	if verified, ok := p.membershipCache.Get(key); ok {
		return verified, nil
	}

	verified, err := p.orgs.IsVerifiedMember(r.Context(), associationID, userID)
	if err != nil {
		return false, err
	}
	p.membershipCache.Add(key, verified)
	return verified, nil
}

func (p *Pipeline) fail(w http.ResponseWriter, reason string, status int, message string) {
	if p.metrics != nil {
		p.metrics.ContextFailuresTotal.WithLabelValues(reason).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
