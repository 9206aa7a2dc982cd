// Package enrich embeds chunks and keeps them current with the persisted
// embedding target.
//
// Every worker shares one routine, Processor.RunCycle, which reads the target,
// requeues failed chunks that have attempts left, atomically claims a batch,
// embeds it and commits each chunk independently. Claims are stored state, so
// any number of workers in any number of processes can run side by side.
//
// Two worker shapes are provided. Inline workers look only at recent chunks
// and keep latency low for new uploads. Backfill workers scan the whole table
// and pick up chunks left stale by a version bump.
package enrich
