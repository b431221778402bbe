// Package streaming serves finished proxy files to remote editors.
//
// [ServeFile] wraps http.ServeContent, so Range, If-Modified-Since and HEAD
// requests behave as they do for http.FileServer. Writes are split into
// chunks and each chunk gets a fresh write deadline through
// http.ResponseController; a client that stops reading is dropped after
// Config.WriteTimeout rather than pinning a connection. Middleware that
// wraps the ResponseWriter must implement Unwrap for the deadline to reach
// the connection.
//
// Files are opened through the filesystem package so stale NFS handles are
// retried like every other proxy file access.
package streaming
