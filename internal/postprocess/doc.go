// Package postprocess turns the raw vocals stem into the deliverable MP3:
// an equalizer pass, optional EBU R128 loudness normalization, and LAME
// encoding.
package postprocess
