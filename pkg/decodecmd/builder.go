// Package decodecmd builds canonical CLI invocations for the ffmpeg decoder.
//
// Design:
//
//   - This layer is a pure "command construction" module: no execution, no I/O.
//     It normalizes CLI emission semantics and returns one of three canonical
//     projections of the same intent: argv (process argument vector), a shell-
//     quoted command string (for logging), or a prepared *exec.Cmd (unstarted;
//     caller configures stdio/env/cwd).
//
// Emission policy is deterministic and explicit:
//
//   - Flags are emitted in ffmpeg's required order: input options before -i,
//     output options after it, the "-" pipe sentinel last.
//   - argv[0] is always the binary name, mirroring POSIX/Go norms.
//
// API ergonomics:
//
//   - High-level conveniences: BuildArgv/BuildString/BuildCommand accept a
//     domain-level *stream.Config.
//   - Lower-level fluent Builder for composability and testing.
//   - This package deliberately owns CLI shape (flags/ordering/quoting) and
//     nothing else. Process lifecycle belongs in a higher layer.
//
// Usage:
//
//	argv := decodecmd.BuildArgv(cfg)    // []string{ "ffmpeg", "-rtsp_transport", ... }
//	s    := decodecmd.BuildString(cfg)  // "'ffmpeg' '-rtsp_transport' 'tcp' ..."
//	cmd  := decodecmd.BuildCommand(cfg) // *exec.Cmd (not started)
package decodecmd

import (
	"strconv"
	"strings"
)

// DefaultBinary is argv[0] when no explicit decoder path is configured.
const DefaultBinary = "ffmpeg"

// Builder constructs argv and shell-safe command strings for the decoder.
//
// The Builder implements a fluent API; it is NOT concurrency-safe.
// Callers should treat a Builder as single-use, short-lived value objects.
//
// Invariants:
//   - argv[0] is always the binary name.
//   - All With* methods are deterministic and order-preserving.
//   - BuildArgv returns a defensive copy.
type Builder struct {
	args []string // argv including binary name at index 0
}

// NewBuilder returns a Builder pre-seeded with the given binary name.
// An empty bin falls back to DefaultBinary.
func NewBuilder(bin string) *Builder {
	if bin == "" {
		bin = DefaultBinary
	}
	return &Builder{args: []string{bin}}
}

// WithStringFlag appends a flag with a string value if non-empty.
// Empty string is considered invalid and skipped to avoid surprising empties.
func (b *Builder) WithStringFlag(flag, val string) *Builder {
	if val != "" {
		b.args = append(b.args, flag, val)
	}
	return b
}

// WithIntFlag appends a flag with a base-10 int value (always emitted).
func (b *Builder) WithIntFlag(flag string, val int) *Builder {
	b.args = append(b.args, flag, strconv.Itoa(val))
	return b
}

// WithString appends a positional string argument if non-empty.
// Used for sentinels/positionals like the trailing pipe marker.
func (b *Builder) WithString(arg string) *Builder {
	if arg != "" {
		b.args = append(b.args, arg)
	}
	return b
}

// BuildArgv returns a defensive copy of the constructed argument vector.
//
// The first element (argv[0]) is always the binary name. This mirrors
// POSIX/C main() and Go's exec.Command conventions and allows round-tripping
// to process APIs.
func (b *Builder) BuildArgv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// BuildString returns a single shell-quoted command string.
//
// Quoting strategy:
//   - Single-quote wrapping with inner single quotes escaped.
//   - This is safe for POSIX shells and log lines meant to be copy-pasted.
func (b *Builder) BuildString() string {
	quoted := make([]string, len(b.args))
	for i, a := range b.args {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shQuote returns a POSIX-safe single-quoted token.
//
// Empty strings become "''" to preserve round-trippability. This matches
// traditional /bin/sh semantics and prevents whitespace/glob expansion.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
