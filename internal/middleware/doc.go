// Package middleware provides HTTP middleware for the proxy service API.
//
// It includes:
//   - Request logging in W3C Extended Log Format through the "http" component logger
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON responses
package middleware
