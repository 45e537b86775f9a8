package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/camfeed/camfeed-server/internal/domain/stream"
	"go.uber.org/zap"
)

// StreamLister is the registry capability the status snapshot needs.
type StreamLister interface {
	GetAll(ctx context.Context) ([]*stream.Config, error)
}

type StatusOptions struct {
	// TTL controls how long we serve the in-memory snapshot.
	// 150–400ms works well for ~1.5s UI polling; default 250ms.
	TTL time.Duration
	// RefreshTimeout bounds Redis work for a single refresh.
	// Keep this ≤ your handler budget; default 300ms.
	RefreshTimeout time.Duration
	// Allow serving stale on refresh error (graceful degrade).
	AllowStaleOnError bool
}

func (o *StatusOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 250 * time.Millisecond
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = 300 * time.Millisecond
	}
}

// StreamStatus is one row of the status view: a registered stream plus its
// live viewing state.
type StreamStatus struct {
	stream.Config
	Viewers int  `json:"viewers"`
	Live    bool `json:"live"`
}

// StatusResult lets the handler set headers/telemetry.
type StatusResult struct {
	Data        []StreamStatus
	CacheHit    bool
	GeneratedAt time.Time // snapshot timestamp
}

// StatusService assembles a cached per-stream status snapshot: registry
// contents joined with live viewer counts from the feed service.
type StatusService struct {
	log    *zap.Logger
	lister StreamLister
	feeds  *FeedService

	mu      sync.RWMutex
	cache   []StreamStatus
	expires time.Time
	genAt   time.Time

	opts StatusOptions
	now  func() time.Time

	sg singleflight.Group
}

// NewStatusService wires the registry and cache policy.
// Reuse a single instance per process (handlers call Get()).
func NewStatusService(log *zap.Logger, lister StreamLister, feeds *FeedService, opts StatusOptions) *StatusService {
	log = log.Named("status_service")
	opts.setDefaults()

	return &StatusService{
		log:    log,
		lister: lister,
		feeds:  feeds,
		opts:   opts,
		now:    time.Now,
	}
}

// Get returns the cached snapshot or refreshes it when expired.
// Multiple concurrent refreshes are coalesced.
func (s *StatusService) Get(ctx context.Context) (StatusResult, error) {
	// Fast path: fresh cache
	s.mu.RLock()
	if s.cache != nil && s.now().Before(s.expires) {
		out := cloneStatuses(s.cache)
		genAt := s.genAt
		s.mu.RUnlock()
		return StatusResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
	}
	s.mu.RUnlock()

	// Slow path: singleflight refresh
	v, err, _ := s.sg.Do("status-refresh", func() (any, error) {
		// Double-check freshness after we won the flight
		s.mu.RLock()
		if s.cache != nil && s.now().Before(s.expires) {
			out := cloneStatuses(s.cache)
			genAt := s.genAt
			s.mu.RUnlock()
			return StatusResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
		}
		s.mu.RUnlock()

		ctx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
		defer cancel()

		start := s.now()
		data, err := s.refresh(ctx)
		if err != nil {
			// Refresh failed: optionally serve stale, else propagate error
			if s.opts.AllowStaleOnError {
				s.mu.RLock()
				if s.cache != nil {
					out := cloneStatuses(s.cache)
					genAt := s.genAt
					s.mu.RUnlock()
					s.log.Warn("status refresh failed; serving stale", zap.Error(err))
					return StatusResult{Data: out, CacheHit: true, GeneratedAt: genAt}, nil
				}
				s.mu.RUnlock()
			}
			return nil, err
		}

		// Publish new snapshot
		s.mu.Lock()
		s.cache = data
		s.expires = s.now().Add(s.opts.TTL)
		s.genAt = start
		s.mu.Unlock()

		return StatusResult{Data: cloneStatuses(data), CacheHit: false, GeneratedAt: start}, nil
	})
	if err != nil {
		return StatusResult{}, err
	}
	return v.(StatusResult), nil
}

func (s *StatusService) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.expires = time.Time{}
	s.genAt = time.Time{}
	s.mu.Unlock()
}

// refresh joins registry contents with live viewer counts.
func (s *StatusService) refresh(ctx context.Context) ([]StreamStatus, error) {
	cfgs, err := s.lister.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	viewers := s.feeds.ViewerCounts()

	out := make([]StreamStatus, 0, len(cfgs))
	for _, cfg := range cfgs {
		n := viewers[cfg.ID]
		out = append(out, StreamStatus{
			Config:  *cfg,
			Viewers: n,
			Live:    n > 0,
		})
	}
	// SMEMBERS order is arbitrary; keep the view stable.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneStatuses(in []StreamStatus) []StreamStatus {
	if len(in) == 0 {
		return nil
	}
	out := make([]StreamStatus, len(in))
	copy(out, in)
	return out
}
