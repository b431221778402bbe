// Command proxyctl drives a running media proxy server over its HTTP API.
//
// Usage:
//
//	proxyctl [--server URL] [--json] <command>
//
// Commands:
//
//	request <source>   Queue a proxy (--width, --height, --fps, --quality, --priority)
//	status <source>    Show the proxy of a source at the given settings
//	list               List proxies (--status to filter)
//	stats              Proxy and frame cache totals
//	cleanup            Remove old proxies (--max-age, server default otherwise)
//	history [source]   Finished jobs from the journal (--limit)
//	download <source>  Save a ready proxy file (--output, - for stdout)
//	watch              Refresh the proxy list (--interval, --count)
//	frames stats       Frame cache occupancy
//	frames clear       Drop cached frames of one source or all of them
//	frames preload     Warm a time range of a source (--start, --end, --fps)
//
// Settings flags left unset use the server's configured defaults.
//
// Environment:
//
//	PROXYCTL_SERVER - Base URL of the server (default: http://localhost:8080)
package main
