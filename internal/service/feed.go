package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/camfeed/camfeed-server/internal/infrastructure/decoder"
	"github.com/camfeed/camfeed-server/internal/metrics"
	"github.com/camfeed/camfeed-server/internal/mjpeg"
	"go.uber.org/zap"
)

// FeedContentType is the response content type for the MJPEG feed. Browsers
// render multipart/x-mixed-replace bodies as a live image that updates with
// every part.
const FeedContentType = "multipart/x-mixed-replace; boundary=" + feedBoundary

const feedBoundary = "frame"

var (
	partHeader  = []byte("--" + feedBoundary + "\r\nContent-Type: image/jpeg\r\n\r\n")
	partTrailer = []byte("\r\n")
)

// Registry is the read-only capability the feed pipeline needs from the
// stream registry. Injected so tests can substitute a fake without any
// process-wide state.
type Registry interface {
	GetByID(ctx context.Context, id int64) (*stream.Config, error)
}

// DecodeSession is the slice of a decode session the feed consumes.
type DecodeSession interface {
	Output() io.Reader
	Terminate()
}

// Launcher starts decode sessions. Every successful StartSession must be
// balanced by exactly one Terminate on the returned session.
type Launcher interface {
	StartSession(ctx context.Context, cfg *stream.Config) (DecodeSession, error)
}

// DecoderLauncher adapts a *decoder.Manager to the Launcher capability.
func DecoderLauncher(m *decoder.Manager) Launcher {
	return decoderLauncher{m}
}

type decoderLauncher struct{ m *decoder.Manager }

func (l decoderLauncher) StartSession(ctx context.Context, cfg *stream.Config) (DecodeSession, error) {
	s, err := l.m.StartSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// -----------------------------------------------------------------------------
// FeedService
// -----------------------------------------------------------------------------
//
// Runtime model
//   • One independent goroutine per viewer connection (the HTTP handler's).
//   • Each viewer owns exactly one DecodeSession and one splitter buffer;
//     no state is shared across viewers except the viewer counters.
//   • All per-viewer errors stay local to that viewer.
//
// Teardown contract
//   • Exactly one Terminate per opened feed, on every exit path: client
//     disconnect, decoder EOF, read error, write error. A leaked decode
//     process per disconnect is the failure mode this service exists to
//     prevent.

// FeedService opens decode sessions and pumps extracted frames into viewer
// connections as multipart chunks.
type FeedService struct {
	log      *zap.Logger
	registry Registry
	launcher Launcher
	metrics  *metrics.Metrics

	mu      sync.Mutex
	viewers map[int64]int // stream ID → live viewer count
}

// NewFeedService wires the feed pipeline's collaborators.
func NewFeedService(log *zap.Logger, registry Registry, launcher Launcher, m *metrics.Metrics) *FeedService {
	return &FeedService{
		log:      log.Named("feed"),
		registry: registry,
		launcher: launcher,
		metrics:  m,
		viewers:  make(map[int64]int),
	}
}

// ViewerCount returns the number of live viewers for one stream.
func (s *FeedService) ViewerCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers[id]
}

// ViewerCounts returns a snapshot of live viewer counts per stream ID.
func (s *FeedService) ViewerCounts() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int, len(s.viewers))
	for id, n := range s.viewers {
		out[id] = n
	}
	return out
}

func (s *FeedService) addViewer(id int64) {
	s.mu.Lock()
	s.viewers[id]++
	s.mu.Unlock()
	s.metrics.RecordViewerStart()
}

func (s *FeedService) removeViewer(id int64, started time.Time) {
	s.mu.Lock()
	if s.viewers[id]--; s.viewers[id] <= 0 {
		delete(s.viewers, id)
	}
	s.mu.Unlock()
	s.metrics.RecordViewerStop(time.Since(started).Seconds())
}

// Feed is one open viewer session: a started decode process plus the
// splitter bound to its output. Not restartable; a reconnect opens a new
// Feed. The owner must call Serve (which guarantees teardown) or Close.
type Feed struct {
	svc      *FeedService
	log      *zap.Logger
	session  DecodeSession
	splitter *mjpeg.Splitter
	streamID int64
	started  time.Time

	termOnce sync.Once
}

// OpenFeed resolves the stream configuration and starts a decode session.
//
// Failure modes, all before any response byte exists:
//   - repo.ErrStreamNotFound (via the registry) when the ID is unknown —
//     no process is spawned;
//   - decoder.ErrLaunch when the decoder cannot start — no session remains.
func (s *FeedService) OpenFeed(ctx context.Context, id int64) (*Feed, error) {
	cfg, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve stream %d: %w", id, err)
	}

	session, err := s.launcher.StartSession(ctx, cfg)
	if err != nil {
		s.metrics.DecoderLaunchErrors.Inc()
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.metrics.DecoderLaunches.Inc()

	f := &Feed{
		svc:      s,
		log:      s.log.With(zap.Int64("stream_id", id)),
		session:  session,
		splitter: mjpeg.NewSplitter(session.Output()),
		streamID: id,
		started:  time.Now(),
	}
	s.addViewer(id)
	return f, nil
}

// Serve pumps frames into w until the viewer disconnects, the decoder's
// output ends, or an error occurs, then tears the session down. Frames are
// written strictly in decode order, one multipart chunk each, flushed
// per frame when w supports http.Flusher.
//
// A nil return covers the expected endings (disconnect, end of stream); a
// non-nil return reports a mid-stream pipeline failure.
func (f *Feed) Serve(ctx context.Context, w io.Writer) error {
	defer f.Close()

	// Client disconnect must unblock a splitter read that is waiting on
	// decoder output: killing the process closes its stdout, which ends the
	// blocked read. The watcher is released on return.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-watchDone:
		}
	}()

	flusher, _ := w.(http.Flusher)

	for {
		frame, err := f.splitter.NextFrame()
		if err != nil {
			if ctx.Err() != nil {
				// The read ended because we killed the decoder on
				// disconnect; expected, not a pipeline fault.
				f.svc.metrics.RecordFeedEnd("disconnect")
				return nil
			}
			if errors.Is(err, io.EOF) {
				f.svc.metrics.RecordFeedEnd("eof")
				f.log.Debug("decoder output ended")
				return nil
			}
			f.svc.metrics.RecordFeedEnd("read_error")
			return fmt.Errorf("next frame: %w", err)
		}

		if err := writePart(w, frame); err != nil {
			// Client gone mid-write: expected event, ends the sequence.
			f.svc.metrics.RecordFeedEnd("write_error")
			f.log.Debug("viewer write failed", zap.Error(err))
			return nil
		}
		if flusher != nil {
			flusher.Flush()
		}
		f.svc.metrics.RecordFrame(len(frame))
	}
}

// Close terminates the decode session and releases the viewer slot.
// Idempotent; Serve calls it on every exit path, so callers only need it
// when abandoning a Feed without serving.
func (f *Feed) Close() {
	f.termOnce.Do(func() {
		f.session.Terminate()
		f.svc.removeViewer(f.streamID, f.started)
	})
}

// writePart frames one JPEG as a multipart chunk:
//
//	--frame\r\nContent-Type: image/jpeg\r\n\r\n<frame-bytes>\r\n
func writePart(w io.Writer, frame []byte) error {
	if _, err := w.Write(partHeader); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write(partTrailer)
	return err
}
