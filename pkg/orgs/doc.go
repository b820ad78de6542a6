// Package orgs manages the two tenancy tiers: organizations (management
// companies) and their associations (HOAs and condo communities).
//
// Every organization carries exactly one pseudo-association, created in the
// same transaction as the organization itself. Records belonging to the
// management company rather than any real community are filed under the
// pseudo-association, so the tiered visibility rules apply uniformly and
// no table needs a special "no association" carve-out.
package orgs
