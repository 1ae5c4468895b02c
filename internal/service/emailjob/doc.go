// Package emailjob runs batch email jobs.
//
// Create partitions the contact pool once into recipients and exclusions.
// Run sends to queued recipients in fixed-size batches with a pause
// between batches, persisting statuses and counters after every batch, and
// finalizes the job (and its campaign) when no recipient is left queued.
// RetryFailed re-queues only failed recipients and runs the same loop.
package emailjob
