// Package decoder owns the lifecycle of external ffmpeg decode processes.
//
// One Session maps to one viewer connection: the process is started when the
// viewer arrives and killed the moment the viewer goes away. Sessions are
// never shared; two viewers of the same source get two processes.
package decoder

import (
	"context"
	"errors"
	"fmt"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/camfeed/camfeed-server/pkg/decodecmd"
	"go.uber.org/zap"
)

// ErrLaunch reports that the decoder process could not be started (binary
// missing, permission denied, fork failure). No session exists after it.
var ErrLaunch = errors.New("decoder launch failed")

// Manager launches decode sessions.
//
// Side-effect contract: every successful StartSession spawns one OS process;
// the caller must guarantee exactly one matching Terminate, on every exit
// path, or the process leaks.
type Manager struct {
	log *zap.Logger
	bin string // decoder binary path; empty means "ffmpeg" from $PATH
}

// NewManager constructs a Manager. bin overrides the decoder binary path
// when non-empty.
func NewManager(log *zap.Logger, bin string) *Manager {
	return &Manager{
		log: log.Named("decoder"),
		bin: bin,
	}
}

// StartSession launches one decoder process for the given source snapshot
// and returns a live Session exposing its stdout.
//
// ctx bounds only the launch itself, not the session lifetime; a running
// session ends exclusively via Terminate or process exit.
func (m *Manager) StartSession(ctx context.Context, cfg *stream.Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	cmd := decodecmd.BuildCommand(m.bin, cfg)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("%w: stderr pipe: %v", ErrLaunch, err)
	}

	setProcAttrs(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	log := m.log.With(
		zap.Int64("stream_id", cfg.ID),
		zap.Int("pid", cmd.Process.Pid),
	)
	log.Info("decode session started", zap.String("cmd", decodecmd.BuildString(cfg)))

	s := newSession(log, cmd, stdout, stderr)
	go s.drainStderr()
	return s, nil
}
