// Package separation runs Spleeter over the job's audio and locates the
// vocals stem among its outputs.
package separation
