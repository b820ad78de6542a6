// Package storage provides database and cache connections for the Camber
// platform.
//
// PostgreSQL is the system of record and the enforcement point for tenant
// isolation: row-level-security policies evaluated against transaction-local
// session settings. Connections are pooled, which is exactly why tenant
// context must be re-asserted at the start of every transaction (see
// pkg/tenancy). Redis backs the assignment-bypass cache only; it is never
// consulted for an authorization decision without a database fallback.
package storage
