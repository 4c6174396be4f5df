package lazyfile

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rpcpool/lazy-remote-file/metrics"
	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
	"github.com/rpcpool/lazy-remote-file/telemetry"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Factory builds the configuration of the file identified by key.
type Factory func(key string) (Config, error)

// DefaultFactory treats every key as the locator of a single resource.
func DefaultFactory(chunkSize int) Factory {
	return func(key string) (Config, error) {
		return Config{
			RangeMapper:      rangemapper.Identity(key),
			RequestChunkSize: chunkSize,
			LogPageReads:     true,
		}, nil
	}
}

// Registry memoizes one File per key for its lifetime.
type Registry struct {
	mu      sync.Mutex
	factory Factory
	files   map[string]*File
	closed  bool
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		files:   make(map[string]*File),
	}
}

// Open returns the handle for key, creating it on first use.
func (r *Registry) Open(key string) (*File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if f, ok := r.files[key]; ok {
		return f, nil
	}
	cfg, err := r.factory(key)
	if err != nil {
		return nil, fmt.Errorf("failed to configure file %s: %w", Fingerprint(key), err)
	}
	if cfg.Name == "" {
		cfg.Name = Fingerprint(key)
	}
	f, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", cfg.Name, err)
	}
	r.files[key] = f
	metrics.OpenFiles.Inc()
	klog.V(3).Infof("[registry] opened file %s", cfg.Name)
	return f, nil
}

// Length returns the length of the file identified by key.
func (r *Registry) Length(ctx context.Context, key string) (int64, error) {
	f, err := r.Open(key)
	if err != nil {
		return 0, err
	}
	return f.Length(ctx)
}

// ReadBytes returns the bytes [start, end) of the file identified by key,
// truncated at the end of the file.
func (r *Registry) ReadBytes(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: invalid range [%d, %d)", ErrRangeViolation, start, end)
	}
	f, err := r.Open(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	n, err := f.CopyInto(ctx, buf, 0, len(buf), start)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// CopyInto copies length bytes of the file identified by key, starting at
// start, into dst[dstOffset:]. See File.CopyInto.
func (r *Registry) CopyInto(ctx context.Context, key string, dst []byte, dstOffset int, length int, start int64) (int, error) {
	f, err := r.Open(key)
	if err != nil {
		return 0, err
	}
	return f.CopyInto(ctx, dst, dstOffset, length, start)
}

// Preload opens and probes the given keys, at most concurrency at a time.
// It returns the first failure.
func (r *Registry) Preload(ctx context.Context, concurrency int, keys ...string) error {
	wg, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		wg.SetLimit(concurrency)
	}
	for _, key := range keys {
		key := key
		wg.Go(func() error {
			return telemetry.TraceExecutionTime(ctx, "lazyfile.Preload", func(ctx context.Context) error {
				f, err := r.Open(key)
				if err != nil {
					return err
				}
				length, err := f.Length(ctx)
				if err != nil {
					return err
				}
				klog.V(3).Infof("[registry] preloaded %s (%s)", f.Name(), humanize.IBytes(uint64(length)))
				return nil
			})
		})
	}
	return wg.Wait()
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Stats returns a snapshot of every open handle, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	files := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		files = append(files, f)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(files))
	for _, f := range files {
		out = append(out, f.Stats())
	}
	slices.SortFunc(out, func(a, b Stats) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Close drops every handle. Later calls fail with ErrRegistryClosed;
// handles already returned keep working.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	metrics.OpenFiles.Sub(float64(len(r.files)))
	r.files = nil
	return nil
}
