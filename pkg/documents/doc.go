// Package documents manages association documents: budgets, bylaws, meeting
// minutes and notices. Documents are tiered-scoped: a document filed under an
// association is visible to that community, a document with no association is
// visible organization-wide.
package documents
