// Package extraction implements the first pipeline stage for video uploads:
// ffmpeg strips the video stream and writes 16-bit PCM WAV audio that
// separation can consume.
package extraction
