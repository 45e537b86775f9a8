package decodecmd

import (
	"strings"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
)

// FromConfig materializes a Builder from a domain-level stream.Config.
//
// It encodes CLI policy for the decoder:
//
//	ffmpeg -rtsp_transport tcp -i <url> -r <fps> -c:v mjpeg
//	       -vf scale=<w>:<h> -q:v <quality> -f image2pipe -
//
// Ordering is stable to minimize operational surprises when diffing commands,
// and follows ffmpeg's positional rules: input options precede -i, output
// options follow it, the "-" pipe sentinel is last.
//
//   - Transport is pinned to TCP so lossy UDP delivery can't corrupt the
//     JPEG byte stream we scan downstream.
//   - image2pipe emits raw concatenated JPEGs on stdout with no container
//     framing; frame boundaries are recovered by the mjpeg splitter.
//
// NOTE: This function does *not* validate domain fields; it encodes them.
// Validation belongs in the domain layer.
func FromConfig(cfg *stream.Config) *Builder {
	return NewBuilder(DefaultBinary).
		WithStringFlag("-rtsp_transport", "tcp").
		WithStringFlag("-i", cfg.URL).
		WithIntFlag("-r", cfg.FPS).
		WithStringFlag("-c:v", "mjpeg").
		WithStringFlag("-vf", ScaleFilter(cfg.Resolution)).
		WithStringFlag("-q:v", cfg.Quality).
		WithStringFlag("-f", "image2pipe").
		WithString("-")
}

// BuildArgv constructs the canonical decoder argv from a stream.Config.
// Pure convenience over FromConfig(cfg).BuildArgv().
func BuildArgv(cfg *stream.Config) []string {
	return FromConfig(cfg).BuildArgv()
}

// BuildString constructs the canonical shell-quoted decoder command string.
// Pure convenience over FromConfig(cfg).BuildString().
func BuildString(cfg *stream.Config) string {
	return FromConfig(cfg).BuildString()
}

// ScaleFilter converts a registry resolution ("640x480") into an ffmpeg
// scale filter expression ("scale=640:480"). The filter grammar wants a
// colon separator between width and height.
func ScaleFilter(resolution string) string {
	return "scale=" + strings.Replace(resolution, "x", ":", 1)
}
