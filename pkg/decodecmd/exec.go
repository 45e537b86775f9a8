package decodecmd

import (
	"os/exec"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
)

// BuildCommand returns a prepared, unstarted *exec.Cmd for the decoder.
//
// bin overrides argv[0] when non-empty (e.g. an absolute ffmpeg path from
// server configuration). The caller owns stdio wiring, process attributes
// and lifecycle; this package only encodes the invocation.
func BuildCommand(bin string, cfg *stream.Config) *exec.Cmd {
	argv := FromConfig(cfg).BuildArgv()
	if bin == "" {
		bin = argv[0]
	}
	return exec.Command(bin, argv[1:]...)
}
