// Package worker holds the scheduling building blocks shared by the parser
// and the enrichment workers: a polling Loop, bounded exponential retry and
// a ProgressTracker for foreground drains.
package worker
