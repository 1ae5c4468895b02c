// Package reconcile applies provider delivery callbacks and email events
// to outbound messages, email recipients and campaign rollups.
//
// Every event is applied inside one transaction that locks the target row.
// Statuses only move forward, so replayed or reordered events are no-ops.
// Counters are adjusted with atomic increments, and job and campaign
// finalization is recomputed in the same transaction that changed a
// recipient.
package reconcile
