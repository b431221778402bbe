/*
Package workers sizes the frame preload pool.

runtime.NumCPU reports the host's CPUs even inside a container with a CPU
limit, while GOMAXPROCS follows the limit (Go 1.19+). Count and ForIO derive
worker counts from GOMAXPROCS:

	// Frame preloading waits on one ffmpeg process per worker.
	n := workers.ForIO(4)

Operators can pin the count with PRELOAD_WORKERS:

	env:
	- name: PRELOAD_WORKERS
	  value: "2"

The override is still capped by the caller's limit.
*/
package workers
