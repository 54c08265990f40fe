package player

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"media-streamer/internal/logging"
)

// FetchFunc downloads one segment by name. The preloader only cares
// about success or failure; the client decides where bytes land.
type FetchFunc func(ctx context.Context, segment string) error

// behindWindow is how many segments behind the play position tracking
// is retained before being discarded.
const behindWindow = 2

// Preloader speculatively fetches upcoming segments so playback never
// waits on the network for a segment the server already produced.
// Prefetch is strictly best-effort: failures are logged and forgotten,
// and the same segment is never fetched twice while tracked.
type Preloader struct {
	fetch    FetchFunc
	sem      *semaphore.Weighted
	ahead    int
	parallel int64

	mu      sync.Mutex
	fetched map[int]bool // segment index -> fetch attempted
}

// NewPreloader builds a preloader fetching up to ahead segments past the
// play position, with at most parallel concurrent downloads.
func NewPreloader(fetch FetchFunc, ahead, parallel int) *Preloader {
	if ahead < 1 {
		ahead = 1
	}
	if parallel < 1 {
		parallel = 1
	}
	return &Preloader{
		fetch:    fetch,
		sem:      semaphore.NewWeighted(int64(parallel)),
		ahead:    ahead,
		parallel: int64(parallel),
		fetched:  make(map[int]bool),
	}
}

// Advance tells the preloader where playback is. It prunes tracking for
// segments well behind pos and kicks off fetches for the next window of
// segments, bounded by the concurrency limit. segments is the full
// ordered segment list known so far.
func (p *Preloader) Advance(ctx context.Context, segments []string, pos int) {
	p.mu.Lock()
	for idx := range p.fetched {
		if idx < pos-behindWindow {
			delete(p.fetched, idx)
		}
	}

	var launch []int
	for idx := pos + 1; idx <= pos+p.ahead && idx < len(segments); idx++ {
		if !p.fetched[idx] {
			p.fetched[idx] = true
			launch = append(launch, idx)
		}
	}
	p.mu.Unlock()

	for i, idx := range launch {
		if !p.sem.TryAcquire(1) {
			// At the concurrency cap. Everything not yet launched goes
			// back to untracked so the next Advance retries it.
			for _, rest := range launch[i:] {
				p.forget(rest)
			}
			return
		}

		go func(idx int, name string) {
			defer p.sem.Release(1)
			if err := p.fetch(ctx, name); err != nil {
				logging.Debug("Preload of %s failed: %v", name, err)
				p.forget(idx)
			}
		}(idx, segments[idx])
	}
}

// Wait blocks until all in-flight prefetches finish or ctx expires.
// Acquiring the full semaphore weight drains all in-flight work.
func (p *Preloader) Wait(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, p.parallel); err != nil {
		return err
	}
	p.sem.Release(p.parallel)
	return nil
}

func (p *Preloader) forget(idx int) {
	p.mu.Lock()
	delete(p.fetched, idx)
	p.mu.Unlock()
}

// Tracked returns how many segment indexes are currently tracked. Test
// and stats hook.
func (p *Preloader) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fetched)
}
