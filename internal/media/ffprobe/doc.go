// Package ffprobe inspects media inputs with ffprobe's JSON output.
//
// Inspect runs the binary and decodes streams and container metadata into a
// Result; the helper methods answer the questions the conversion pipeline asks
// before segmenting (does the input carry audio, how long is it, how many
// segments will it split into).
package ffprobe
