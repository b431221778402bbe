// Package framecache remembers recently decoded video frames so that
// scrubbing back and forth over a timeline does not decode the same picture
// twice.
//
// Frames are keyed by source and by time rounded to the nearest tenth of a
// second. A lookup that misses the exact key falls back to the closest
// frame of the same source when one lies within half a second, which keeps
// playback smooth while a precise frame is still being decoded.
//
// When the cache grows past its capacity the least recently accessed fifth
// of it is dropped. Fallback hits do not count as accesses, so a frame that
// is only ever served as an approximation ages out first.
//
// # Reader
//
// Reader composes a Cache with a Decoder: FrameAt answers from the cache
// and decodes on a miss, and Preload warms a time range using a small pool
// of concurrent decodes sized by the workers package.
package framecache
