package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"github.com/camfeed/camfeed-server/internal/infrastructure/decoder"
	"github.com/camfeed/camfeed-server/internal/metrics"
	"github.com/camfeed/camfeed-server/internal/repo"
)

func jpegFrame(payload ...byte) []byte {
	f := []byte{0xFF, 0xD8}
	f = append(f, payload...)
	return append(f, 0xFF, 0xD9)
}

type fakeRegistry struct {
	cfgs map[int64]*stream.Config
}

func (r *fakeRegistry) GetByID(_ context.Context, id int64) (*stream.Config, error) {
	cfg, ok := r.cfgs[id]
	if !ok {
		return nil, repo.ErrStreamNotFound
	}
	return cfg, nil
}

type fakeSession struct {
	out        io.Reader
	terminates atomic.Int32
	onTerm     func()
}

func (s *fakeSession) Output() io.Reader { return s.out }
func (s *fakeSession) Terminate() {
	s.terminates.Add(1)
	if s.onTerm != nil {
		s.onTerm()
	}
}

type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches atomic.Int32
}

func (l *fakeLauncher) StartSession(_ context.Context, _ *stream.Config) (DecodeSession, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.launches.Add(1)
	return l.session, nil
}

func testFeedService(registry Registry, launcher Launcher) *FeedService {
	m := metrics.New(prometheus.NewRegistry())
	return NewFeedService(zap.NewNop(), registry, launcher, m)
}

func oneStreamRegistry(id int64) *fakeRegistry {
	return &fakeRegistry{cfgs: map[int64]*stream.Config{
		id: {ID: id, URL: "rtsp://cam.local/live", Quality: "5", Resolution: "640x480", FPS: 15},
	}}
}

func TestOpenFeedUnknownStream(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{out: bytes.NewReader(nil)}}
	svc := testFeedService(&fakeRegistry{cfgs: map[int64]*stream.Config{}}, launcher)

	_, err := svc.OpenFeed(context.Background(), 42)
	if !errors.Is(err, repo.ErrStreamNotFound) {
		t.Fatalf("error = %v, want ErrStreamNotFound", err)
	}
	if n := launcher.launches.Load(); n != 0 {
		t.Fatalf("launches = %d, want 0 for unknown stream", n)
	}
	if n := svc.ViewerCount(42); n != 0 {
		t.Fatalf("ViewerCount = %d, want 0", n)
	}
}

func TestOpenFeedLaunchError(t *testing.T) {
	launcher := &fakeLauncher{err: fmt.Errorf("spawn ffmpeg: %w", decoder.ErrLaunch)}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	_, err := svc.OpenFeed(context.Background(), 1)
	if !errors.Is(err, decoder.ErrLaunch) {
		t.Fatalf("error = %v, want ErrLaunch", err)
	}
	if n := svc.ViewerCount(1); n != 0 {
		t.Fatalf("ViewerCount = %d, want 0 after failed launch", n)
	}
}

func TestServeStreamsFramesUntilEOF(t *testing.T) {
	f1 := jpegFrame('a')
	f2 := jpegFrame('b', 'b')
	session := &fakeSession{out: bytes.NewReader(append(append([]byte{}, f1...), f2...))}
	launcher := &fakeLauncher{session: session}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	feed, err := svc.OpenFeed(context.Background(), 1)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}
	if n := svc.ViewerCount(1); n != 1 {
		t.Fatalf("ViewerCount = %d during feed, want 1", n)
	}

	var buf bytes.Buffer
	if err := feed.Serve(context.Background(), &buf); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	want := string(partHeader) + string(f1) + "\r\n" +
		string(partHeader) + string(f2) + "\r\n"
	if got := buf.String(); got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
	if n := session.terminates.Load(); n != 1 {
		t.Fatalf("terminates = %d, want 1", n)
	}
	if n := svc.ViewerCount(1); n != 0 {
		t.Fatalf("ViewerCount = %d after feed, want 0", n)
	}
}

func TestServeClientDisconnect(t *testing.T) {
	pr, pw := io.Pipe()
	session := &fakeSession{out: pr}
	// Killing the decoder closes its stdout; the fake mirrors that so the
	// blocked splitter read returns.
	session.onTerm = func() { pw.CloseWithError(io.EOF) }
	launcher := &fakeLauncher{session: session}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	feed, err := svc.OpenFeed(context.Background(), 1)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	served := make(chan error, 1)
	go func() { served <- feed.Serve(ctx, &buf) }()

	// Pipe writes return only once the splitter has consumed the bytes, so
	// after the third write all three frames are in flight or delivered.
	for i := 0; i < 3; i++ {
		if _, err := pw.Write(jpegFrame(byte(i))); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve() error = %v, want nil on disconnect", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after disconnect")
	}

	if n := session.terminates.Load(); n != 1 {
		t.Fatalf("terminates = %d, want exactly 1", n)
	}
	if got := strings.Count(buf.String(), string(partHeader)); got != 3 {
		t.Fatalf("parts written = %d, want 3", got)
	}
	if n := svc.ViewerCount(1); n != 0 {
		t.Fatalf("ViewerCount = %d after disconnect, want 0", n)
	}
}

type erringReader struct {
	data []byte
	err  error
	done bool
}

func (r *erringReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, r.err
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestServeReadError(t *testing.T) {
	readErr := errors.New("decoder pipe broke")
	session := &fakeSession{out: &erringReader{data: jpegFrame('x'), err: readErr}}
	launcher := &fakeLauncher{session: session}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	feed, err := svc.OpenFeed(context.Background(), 1)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}

	var buf bytes.Buffer
	err = feed.Serve(context.Background(), &buf)
	if !errors.Is(err, readErr) {
		t.Fatalf("Serve() error = %v, want wrapped read error", err)
	}
	if got := strings.Count(buf.String(), string(partHeader)); got != 1 {
		t.Fatalf("parts written before error = %d, want 1", got)
	}
	if n := session.terminates.Load(); n != 1 {
		t.Fatalf("terminates = %d, want 1", n)
	}
}

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("connection reset")
}

func TestServeWriteError(t *testing.T) {
	session := &fakeSession{out: bytes.NewReader(jpegFrame('x'))}
	launcher := &fakeLauncher{session: session}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	feed, err := svc.OpenFeed(context.Background(), 1)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}

	w := &failingWriter{}
	if err := feed.Serve(context.Background(), w); err != nil {
		t.Fatalf("Serve() error = %v, want nil when the viewer is gone", err)
	}
	if n := session.terminates.Load(); n != 1 {
		t.Fatalf("terminates = %d, want 1", n)
	}
}

func TestFeedCloseIsIdempotent(t *testing.T) {
	session := &fakeSession{out: bytes.NewReader(nil)}
	launcher := &fakeLauncher{session: session}
	svc := testFeedService(oneStreamRegistry(1), launcher)

	feed, err := svc.OpenFeed(context.Background(), 1)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}

	feed.Close()
	feed.Close()
	if n := session.terminates.Load(); n != 1 {
		t.Fatalf("terminates = %d, want 1", n)
	}
	if n := svc.ViewerCount(1); n != 0 {
		t.Fatalf("ViewerCount = %d, want 0 (not negative)", n)
	}
}

func TestViewerCounts(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{out: bytes.NewReader(nil)}}
	svc := testFeedService(oneStreamRegistry(7), launcher)

	f1, err := svc.OpenFeed(context.Background(), 7)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}
	f2, err := svc.OpenFeed(context.Background(), 7)
	if err != nil {
		t.Fatalf("OpenFeed() error = %v", err)
	}

	if n := svc.ViewerCount(7); n != 2 {
		t.Fatalf("ViewerCount = %d, want 2", n)
	}
	if counts := svc.ViewerCounts(); counts[7] != 2 {
		t.Fatalf("ViewerCounts()[7] = %d, want 2", counts[7])
	}

	f1.Close()
	if n := svc.ViewerCount(7); n != 1 {
		t.Fatalf("ViewerCount = %d after one close, want 1", n)
	}
	f2.Close()
	if n := svc.ViewerCount(7); n != 0 {
		t.Fatalf("ViewerCount = %d after both close, want 0", n)
	}
}
