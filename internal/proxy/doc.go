// Package proxy generates low-resolution proxy renditions of source videos
// in the background.
//
// A Generator owns three pieces:
//
//   - a registry mapping each fingerprint (source path, resolution and
//     rounded frame rate) to a Record
//   - a priority queue of pending Requests, highest priority first and
//     first-come among equals
//   - a single worker goroutine that pops jobs and runs ffmpeg
//
// The registry and the queue have separate locks and no code path holds
// both. Request inserts the pending record before queueing the job, so a
// concurrent duplicate always finds the record and becomes a no-op.
//
// While ffmpeg runs, a reader goroutine parses its diagnostic stream for
// the input duration and the current encode position and publishes the
// ratio as progress, capped at 0.99. Only the worker marks a record ready,
// after the process exits cleanly and its output is non-empty. ffmpeg
// writes to a .part file that is renamed into place on success.
//
// Records never leave a terminal state on their own. A failed proxy stays
// failed until Cleanup removes it; requesting it again is a no-op.
//
// The proxy directory is guarded by a file lock so two processes cannot
// share it. Finished jobs can be journaled through the Journal interface.
package proxy
