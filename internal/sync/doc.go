// Package sync implements the index synchronization pipeline.
//
// A sync downloads the repository's index archive, extracts it into a
// staging directory, parses the raw index, persists the minimized form and
// finally swaps the in-memory directory:
//
//	Idle → Downloading → Extracting → Parsing → Complete | Failed
//
// Progress is reported through a ProgressObserver. OnProgressUpdate fires at
// the start of each stage and OnProgressFinished fires exactly once per run.
// A failure in any stage leaves both the persisted index and the in-memory
// directory exactly as they were.
//
// Only one sync runs at a time per Manager, and the cache root is guarded by
// a file lock so separate processes sharing it cannot interleave writes.
//
// The coordinator subpackage runs the Manager on a schedule and persists
// sync status between runs.
package sync
