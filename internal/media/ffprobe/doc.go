// Package ffprobe inspects media files with ffprobe's JSON output.
//
// Inspect runs a single probe. Prober wraps it for the HTTP preview endpoint:
// concurrent requests for the same file share one ffprobe process and the
// result is cached until the file changes.
package ffprobe
