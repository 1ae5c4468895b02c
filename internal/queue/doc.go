// Package queue is the asynchronous task queue that drives the dispatch
// worker and the email job engine.
//
// A Broker delivers tasks at least once. The Runner routes each task to its
// handler and applies the handler's bounded retry Policy: a failed task is
// re-enqueued with a fixed delay until MaxRetries is reached, then the
// policy's OnExhausted hook runs once. Brokers exist for Redis (sorted-set
// delay queue), SQS and AMQP.
package queue
