// Package audit provides the append-only audit trail.
//
// Two event families are recorded: context-switch events, one per tenant
// context switch whether or not the value changed, and data events with
// before/after snapshots for state changes to tenant-scoped records.
//
// Recording a data event must never roll back the business operation it
// describes: DBRecorder.Record swallows insert failures, logs them, and
// increments camber_audit_emit_failures_total so the gap is visible.
// The audit_events table is append-only: updates are blocked by trigger and
// deletes happen only through the retention job.
package audit
