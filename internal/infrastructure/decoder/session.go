package decoder

import (
	"bufio"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Session is one running decoder process bound to one viewer connection.
//
// Exclusively owned by its creator for the duration of one request. Output
// is the raw MJPEG byte stream on the process's stdout.
type Session struct {
	log    *zap.Logger
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	// Closed once the stderr drain finished; reaping waits for it so Wait
	// doesn't yank the pipe out from under the scanner.
	stderrDone chan struct{}

	// Closed after the process has been reaped.
	done chan struct{}

	terminated atomic.Bool
	termOnce   sync.Once
}

func newSession(log *zap.Logger, cmd *exec.Cmd, stdout, stderr io.ReadCloser) *Session {
	return &Session{
		log:        log,
		cmd:        cmd,
		stdout:     stdout,
		stderr:     stderr,
		stderrDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Output exposes the decoder's stdout byte stream. Reads return io.EOF once
// the process exits or is terminated.
func (s *Session) Output() io.Reader { return s.stdout }

// PID returns the decoder's OS process ID.
func (s *Session) PID() int { return s.cmd.Process.Pid }

// Done is closed after the process has exited and been reaped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Terminated reports whether Terminate has been invoked.
func (s *Session) Terminated() bool { return s.terminated.Load() }

// Terminate kills the decoder process group immediately and releases the
// handle. No grace period: a hung decoder must not be able to stall client
// disconnect handling. Idempotent; terminating twice is a no-op.
func (s *Session) Terminate() {
	s.termOnce.Do(func() {
		s.terminated.Store(true)

		if err := killGroup(s.cmd.Process.Pid); err != nil {
			// Usually the process already exited on its own.
			s.log.Debug("kill decoder", zap.Error(err))
		}

		go func() {
			<-s.stderrDone
			if err := s.cmd.Wait(); err != nil {
				// Expected: we killed it. Logged for the unexpected cases.
				s.log.Debug("decoder exited", zap.Error(err))
			} else {
				s.log.Debug("decoder exited cleanly")
			}
			close(s.done)
		}()
	})
}

// drainStderr consumes the decoder's diagnostics so the child can't block on
// a full pipe. Lines surface at debug level only; stderr chatter is not part
// of the stream contract.
func (s *Session) drainStderr() {
	defer close(s.stderrDone)

	sc := bufio.NewScanner(s.stderr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		s.log.Debug("decoder stderr", zap.String("line", sc.Text()))
	}
	if err := sc.Err(); err != nil {
		s.log.Debug("stderr scanner ended", zap.Error(err))
	}
}
