// Package auth provides API token authentication and the Principal model for
// the Camber platform.
//
// A Principal is the acting identity for one request: the user, their
// organization memberships with roles, an optional platform-staff record with
// a role set and pillar access, and the derived IsPlatformStaff fact. It is
// resolved once per request by the Bearer-token middleware and is immutable
// for the request's duration. Authorization decisions are NOT made here;
// they belong to the tenant predicates in pkg/tenancy. The Principal only
// supplies the facts those predicates consume.
//
// Tokens are opaque: camber_<base64url(32 random bytes)>, stored as SHA-256
// hashes, identified by an 8-character prefix for display.
package auth
