// Package ingestion turns ingestion events into documents and chunks.
//
// A Parser claims batches of events from the event log and handles each one
// on a worker pool:
//   - created events fetch the item from the blob store, extract its text,
//     split it into overlapping windows and commit the document, its chunks
//     and the event completion in one transaction
//   - deleted events soft-delete the item's active document
//
// Failures are recorded on the event rather than returned. A failing or
// panicking event never affects the others in its batch.
package ingestion
