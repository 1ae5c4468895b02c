// Package dispatch sends single outbound messages.
//
// A Worker consumes dispatch tasks and runs the ordered pre-send checks
// (contact active, destination present, per-minute throttle, suppression,
// credentials) before handing the message to its channel sender. Failed
// checks end the message in FAILED; transient sender errors are returned
// to the queue runner, which retries on a fixed delay until the policy
// is exhausted.
//
// A Service creates messages, enqueues them and handles operator retries.
package dispatch
