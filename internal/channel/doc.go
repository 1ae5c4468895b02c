// Package channel implements the outbound senders, one per supported
// channel. Senders validate the destination before any network call,
// never touch persisted state and report outcomes in two ways:
//
//   - Result{Success: false} for a permanent provider rejection
//   - a non-nil error for a transient transport problem (timeout, 5xx, 429)
//     that the caller may retry
package channel
