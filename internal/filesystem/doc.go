/*
Package filesystem provides the handful of filesystem operations the proxy
pipeline performs on its output files, wrapped with retry logic for NFS stale
file handle errors.

Proxy caches are commonly placed on network storage shared with an editing
workstation. A file that another host just rewrote can briefly report ESTALE
(errno 116); these helpers retry such errors with exponential backoff and pass
every other error straight through.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}

	if err := filesystem.RenameWithRetry(partial, final, filesystem.DefaultRetryConfig()); err != nil {
	    return err
	}

# Metrics

Operation durations, errors, retries and stale-handle counts are reported
through the Observer set with SetObserver. The metrics package provides the
Prometheus-backed implementation; with no observer set nothing is recorded.
*/
package filesystem
