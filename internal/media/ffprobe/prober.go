package ffprobe

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// InspectFunc matches Inspect so tests can substitute the probe.
type InspectFunc func(ctx context.Context, binary, path string) (Result, error)

type cacheEntry struct {
	modTime time.Time
	size    int64
	result  Result
}

// Prober collapses concurrent probes of one file and caches results keyed
// by path, size, and modification time.
type Prober struct {
	binary  string
	inspect InspectFunc
	group   singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewProber returns a Prober running binary. A nil inspect uses Inspect.
func NewProber(binary string, inspect InspectFunc) *Prober {
	if inspect == nil {
		inspect = Inspect
	}
	return &Prober{binary: binary, inspect: inspect, cache: make(map[string]cacheEntry)}
}

// Probe returns metadata for path.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", path, err)
	}

	p.mu.Lock()
	entry, ok := p.cache[path]
	p.mu.Unlock()
	if ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		return entry.result, nil
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	v, err, _ := p.group.Do(key, func() (any, error) {
		result, err := p.inspect(ctx, p.binary, path)
		if err != nil {
			return Result{}, err
		}
		p.mu.Lock()
		p.cache[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), result: result}
		p.mu.Unlock()
		return result, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}
