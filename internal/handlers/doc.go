// Package handlers provides the HTTP control API for the proxy generator
// and the frame cache.
//
// Proxy routes live under /api/proxies: request a proxy, look one up, fetch
// its path or the file itself once ready, read totals, trigger cleanup and
// list past job outcomes from the journal. Frame routes live under /api/frames and serve
// PNG previews, warm a time range and drop cached frames. Preloads are
// refused with 503 while the memory monitor reports pressure.
//
// Sources are always passed as the "source" query parameter since they are
// absolute paths. Settings not named in a request fall back to the
// configured defaults.
package handlers
