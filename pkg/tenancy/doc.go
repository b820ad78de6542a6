// Package tenancy enforces row-level tenant isolation.
//
// Every tenant-scoped database access runs inside a transaction whose first
// statement asserts the tenant context as transaction-local session settings
// (camber.org_id, camber.assoc_id, camber.is_org_staff, camber.actor_id).
// The assertion is unconditional: pooled connections retain session state
// between checkouts, so skipping it when the context "looks unchanged" would
// let one tenant's settings leak into another tenant's transaction.
//
// PostgreSQL row-level security policies generated by this package consume
// those settings. The Go-side predicate engine mirrors the policies so writes
// can be rejected before they reach the database and so the rules are unit
// testable without a server.
//
// Absence of context is a deny-all state. No code path falls back to a
// platform-wide view when the context is missing.
package tenancy
