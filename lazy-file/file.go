package lazyfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/dustin/go-humanize"
	"github.com/rpcpool/lazy-remote-file/metrics"
	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
	"github.com/rpcpool/lazy-remote-file/remote"
	"k8s.io/klog/v2"
)

// File is a lazily fetched, read-only remote file.
// Every operation on a File is serialized, so there is at most one fetch in
// flight per handle.
type File struct {
	mu sync.Mutex

	name      string
	mapper    rangemapper.Mapper
	fetcher   *remote.Fetcher
	client    *http.Client
	chunkSize int64
	maxSpeed  int64
	observer  Observer

	probed   bool
	probeErr error
	length   int64
	caps     *remote.Capabilities

	heads  *readHeads
	chunks chunkStore

	logPageReads bool
	pageReads    []PageRead
	lastGet      int64
}

// New returns a handle for the file described by cfg. Nothing is fetched
// until the first call that needs the length.
func New(cfg Config) (*File, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = Fingerprint(cfg.RangeMapper(0, 0).Locator)
	}
	f := &File{
		name:         name,
		mapper:       cfg.RangeMapper,
		fetcher:      remote.NewFetcher(cfg.Client, cfg.RangeMapper, name, cfg.Retries),
		chunkSize:    int64(cfg.RequestChunkSize),
		maxSpeed:     cfg.maxSpeed(),
		observer:     cfg.Observer,
		client:       cfg.Client,
		length:       cfg.FileLength,
		heads:        newReadHeads(cfg.MaxReadHeads, cfg.maxSpeed()),
		chunks:       newChunkStore(cfg.MaxCachedChunks),
		logPageReads: cfg.LogPageReads,
		lastGet:      -1,
	}
	return f, nil
}

// Name returns the identifier used for the file in logs and metrics.
func (f *File) Name() string {
	return f.name
}

// Length returns the length of the file, probing the remote on first use.
func (f *File) Length(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureProbed(ctx); err != nil {
		return 0, err
	}
	return f.length, nil
}

// ChunkSize returns the cache granularity. Like Length, it requires a
// successful probe.
func (f *File) ChunkSize(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureProbed(ctx); err != nil {
		return 0, err
	}
	return int(f.chunkSize), nil
}

// Capabilities returns what the probe learned about the remote resource,
// probing on first use.
func (f *File) Capabilities(ctx context.Context) (remote.Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureProbed(ctx); err != nil {
		return remote.Capabilities{}, err
	}
	return *f.caps, nil
}

func (f *File) ensureProbed(ctx context.Context) error {
	if f.probed {
		return f.probeErr
	}
	locator := f.mapper(0, 0).Locator
	caps, err := remote.Probe(ctx, f.client, locator)
	if err != nil {
		if ctx.Err() != nil {
			// not the remote's fault; try again next time.
			return err
		}
		f.probed = true
		f.probeErr = err
		klog.Errorf("[file %s] probe failed: %v", f.name, err)
		return err
	}
	f.probed = true
	f.caps = caps
	if f.length == 0 {
		f.length = caps.Length
	}
	klog.V(2).Infof(
		"[file %s] length %s, chunk size %s, max speed %d chunks",
		f.name,
		humanize.IBytes(uint64(f.length)),
		humanize.IBytes(uint64(f.chunkSize)),
		f.maxSpeed,
	)
	return nil
}

// CopyInto copies length bytes of the file starting at start into
// dst[dstOffset:]. It returns the number of bytes copied, which is less than
// length only when the read reaches the end of the file. A start at or past
// the end of the file copies nothing.
func (f *File) CopyInto(ctx context.Context, dst []byte, dstOffset int, length int, start int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureProbed(ctx); err != nil {
		return 0, err
	}
	if dstOffset < 0 || length < 0 || start < 0 {
		return 0, fmt.Errorf("%w: negative argument (dstOffset=%d, length=%d, start=%d)", ErrRangeViolation, dstOffset, length, start)
	}
	if start >= f.length {
		return 0, nil
	}
	if remaining := f.length - start; int64(length) > remaining {
		length = int(remaining)
	}
	if dstOffset+length > len(dst) {
		return 0, fmt.Errorf("%w: %d bytes at offset %d don't fit a buffer of %d", ErrRangeViolation, length, dstOffset, len(dst))
	}

	copied := 0
	for copied < length {
		pos := start + int64(copied)
		idx := pos / f.chunkSize
		chunk, err := f.getChunk(ctx, idx)
		if err != nil {
			return copied, err
		}
		inChunk := pos - idx*f.chunkSize
		if inChunk >= int64(len(chunk)) {
			return copied, fmt.Errorf("%w: chunk %d holds %d bytes, want offset %d", ErrInvariantViolation, idx, len(chunk), inChunk)
		}
		n := copy(dst[dstOffset+copied:dstOffset+length], chunk[inChunk:])
		copied += n
	}
	return copied, nil
}

// ReadAt implements io.ReaderAt.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	return f.readAt(context.Background(), p, off)
}

// ReaderAt returns an io.ReaderAt whose reads are bound to ctx.
func (f *File) ReaderAt(ctx context.Context) io.ReaderAt {
	return &contextReaderAt{ctx: ctx, file: f}
}

type contextReaderAt struct {
	ctx  context.Context
	file *File
}

func (r *contextReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return r.file.readAt(r.ctx, p, off)
}

func (f *File) readAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := f.CopyInto(ctx, p, 0, len(p), off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// getChunk returns chunk idx, fetching it (and the chunks its read head
// prefetches) on a miss.
func (f *File) getChunk(ctx context.Context, idx int64) ([]byte, error) {
	chunk, wasCached := f.chunks.get(idx)
	var prefetch int64
	if wasCached {
		metrics.ChunkLookupsTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.ChunkLookupsTotal.WithLabelValues("miss").Inc()
		head, event := f.heads.move(idx)
		metrics.ReadHeadEventsTotal.WithLabelValues(event.String()).Inc()
		if err := f.fetchChunks(ctx, head.StartChunk, head.Speed); err != nil {
			return nil, err
		}
		var ok bool
		chunk, ok = f.chunks.get(idx)
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d missing after fetch", ErrInvariantViolation, idx)
		}
		prefetch = head.Speed - 1
	}

	read := PageRead{
		Page:      idx,
		WasCached: wasCached,
		Prefetch:  prefetch,
		Reason:    reasonFrom(ctx),
	}
	f.observer.ObservePage(read)
	if f.logPageReads && f.lastGet != idx {
		f.pageReads = append(f.pageReads, read)
	}
	f.lastGet = idx
	return chunk, nil
}

// fetchChunks fetches count chunks starting at chunk start and stores them.
func (f *File) fetchChunks(ctx context.Context, start int64, count int64) error {
	startByte := start * f.chunkSize
	endByte := min((start+count)*f.chunkSize-1, f.length-1)
	if startByte < 0 || startByte > endByte || endByte > f.length-1 {
		return fmt.Errorf("%w: cannot fetch [%d, %d] of a %d byte file", ErrRangeViolation, startByte, endByte, f.length)
	}
	klog.V(4).Infof(
		"[file %s] fetching %d chunks from #%d (%s)",
		f.name,
		count,
		start,
		humanize.IBytes(uint64(endByte-startByte+1)),
	)
	buf, err := f.fetcher.Fetch(ctx, startByte, endByte, f.length)
	if err != nil {
		return err
	}
	if want := endByte - startByte + 1; int64(len(buf)) != want {
		return fmt.Errorf(
			"%w: short response for [%d, %d]: got %d bytes, want %d",
			remote.ErrTransport,
			startByte,
			endByte,
			len(buf),
			want,
		)
	}
	for off, idx := int64(0), start; off < int64(len(buf)); off, idx = off+f.chunkSize, idx+1 {
		end := min(off+f.chunkSize, int64(len(buf)))
		f.chunks.put(idx, bytes.Clone(buf[off:end]))
	}
	return nil
}

// Stats returns a snapshot of the handle.
func (f *File) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Name:         f.name,
		Probed:       f.probed && f.probeErr == nil,
		Length:       f.length,
		ChunkSize:    int(f.chunkSize),
		CachedChunks: f.chunks.len(),
		CachedBytes:  f.chunks.sizeBytes(),
		FetchedBytes: f.fetcher.FetchedBytes(),
		Requests:     f.fetcher.Requests(),
		ReadHeads:    f.heads.snapshot(),
	}
}

// CachedChunks returns the indices of the chunks currently held.
func (f *File) CachedChunks() *roaring.Bitmap {
	f.mu.Lock()
	defer f.mu.Unlock()
	bm := roaring.New()
	for _, idx := range f.chunks.indices() {
		bm.Add(uint32(idx))
	}
	return bm
}

// ReadHeads returns the read heads, most recently used first.
func (f *File) ReadHeads() []ReadHead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads.snapshot()
}

// PageReads returns the recorded page reads. It is empty unless the handle
// was created with LogPageReads.
func (f *File) PageReads() []PageRead {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PageRead, len(f.pageReads))
	copy(out, f.pageReads)
	return out
}
