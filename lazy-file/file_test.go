package lazyfile

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
	"github.com/rpcpool/lazy-remote-file/remote"
	"github.com/stretchr/testify/require"
)

func randomContent(seed int64, size int) []byte {
	buf := make([]byte, size)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

// testServer serves content with byte-range support and records the
// requests it gets.
type testServer struct {
	*httptest.Server
	mu     sync.Mutex
	heads  int
	ranges []string
}

func newTestServer(t *testing.T, content []byte) *testServer {
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		if r.Method == http.MethodHead {
			ts.heads++
		} else {
			ts.ranges = append(ts.ranges, r.Header.Get("Range"))
		}
		ts.mu.Unlock()
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) probes() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.heads
}

func (ts *testServer) gets() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.ranges...)
}

func openTestFile(t *testing.T, locator string, chunkSize int, modify ...func(*Config)) *File {
	cfg := Config{
		RangeMapper:      rangemapper.Identity(locator),
		RequestChunkSize: chunkSize,
		LogPageReads:     true,
	}
	for _, fn := range modify {
		fn(&cfg)
	}
	f, err := New(cfg)
	require.NoError(t, err)
	return f
}

func readRange(t *testing.T, f *File, start int64, length int) []byte {
	buf := make([]byte, length)
	n, err := f.CopyInto(context.Background(), buf, 0, length, start)
	require.NoError(t, err)
	return buf[:n]
}

func TestConcreteScenario(t *testing.T) {
	content := randomContent(1, 10000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 4096)

	require.Equal(t, content[0:4096], readRange(t, f, 0, 4096))
	require.Equal(t, content[4096:8192], readRange(t, f, 4096, 4096))
	last := readRange(t, f, 8192, 1808)
	require.Len(t, last, 1808)
	require.Equal(t, content[8192:], last)

	require.Equal(t, 1, srv.probes())
	require.Equal(t, []string{"bytes=0-4095", "bytes=4096-9999"}, srv.gets())

	stats := f.Stats()
	require.Equal(t, int64(10000), stats.Length)
	require.Equal(t, 4096, stats.ChunkSize)
	require.Equal(t, int64(2), stats.Requests)
	require.Equal(t, int64(10000), stats.FetchedBytes)
	require.Equal(t, 3, stats.CachedChunks)
	require.Equal(t, int64(10000), stats.CachedBytes)
	require.Equal(t, []ReadHead{{StartChunk: 1, Speed: 2}}, stats.ReadHeads)

	require.Equal(t, []PageRead{
		{Page: 0, WasCached: false, Prefetch: 0},
		{Page: 1, WasCached: false, Prefetch: 1},
		{Page: 2, WasCached: true, Prefetch: 0},
	}, f.PageReads())
	require.Equal(t, []uint32{0, 1, 2}, f.CachedChunks().ToArray())
}

func TestLengthIsProbedOnce(t *testing.T) {
	content := randomContent(2, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		length, err := f.Length(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(5000), length)
		chunkSize, err := f.ChunkSize(ctx)
		require.NoError(t, err)
		require.Equal(t, 1024, chunkSize)
	}
	caps, err := f.Capabilities(ctx)
	require.NoError(t, err)
	require.True(t, caps.AcceptRanges)
	require.Equal(t, 1, srv.probes())
	require.Empty(t, srv.gets())
}

func TestReadPastEnd(t *testing.T) {
	content := randomContent(3, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024)

	buf := make([]byte, 10)
	for _, start := range []int64{5000, 5001, 1 << 40} {
		n, err := f.CopyInto(context.Background(), buf, 0, len(buf), start)
		require.NoError(t, err)
		require.Zero(t, n)
	}
	require.Empty(t, srv.gets())
	require.Empty(t, f.PageReads())
}

func TestReadClampedToEnd(t *testing.T) {
	content := randomContent(4, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024)

	buf := make([]byte, 100)
	n, err := f.CopyInto(context.Background(), buf, 0, len(buf), 4950)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	require.Equal(t, content[4950:], buf[:50])
}

func TestSameChunkFetchedOnce(t *testing.T) {
	content := randomContent(5, 20000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 4096)

	require.Equal(t, content[10000:10100], readRange(t, f, 10000, 100))
	require.Equal(t, content[8192:8200], readRange(t, f, 8192, 8))
	require.Equal(t, content[12000:12288], readRange(t, f, 12000, 288))

	require.Equal(t, []string{"bytes=8192-12287"}, srv.gets())
	// consecutive reads of one chunk are logged once.
	require.Equal(t, []PageRead{{Page: 2, WasCached: false, Prefetch: 0}}, f.PageReads())
}

func TestSequentialReadsAccelerate(t *testing.T) {
	const chunkSize = 4096
	content := randomContent(6, 10*chunkSize)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, chunkSize)

	var speeds []int64
	for chunk := int64(0); chunk < 4; chunk++ {
		got := readRange(t, f, chunk*chunkSize, chunkSize)
		require.Equal(t, content[chunk*chunkSize:(chunk+1)*chunkSize], got)
		speeds = append(speeds, f.ReadHeads()[0].Speed)
	}
	require.Equal(t, []int64{1, 2, 2, 4}, speeds)
	require.Equal(t, []string{
		"bytes=0-4095",
		"bytes=4096-12287",
		"bytes=12288-28671",
	}, srv.gets())
	require.Less(t, len(srv.gets()), 4)

	// the rest of the file comes in one clipped request.
	rest := readRange(t, f, 4*chunkSize, 6*chunkSize)
	require.Equal(t, content[4*chunkSize:], rest)
	require.Equal(t, "bytes=28672-40959", srv.gets()[3])
	require.Len(t, srv.gets(), 4)
}

func TestSpeedCeiling(t *testing.T) {
	const chunkSize = 4096
	content := randomContent(7, 16*chunkSize)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, chunkSize, func(c *Config) {
		c.MaxReadSpeed = 4 * chunkSize
	})

	got := readRange(t, f, 0, len(content))
	require.Equal(t, content, got)
	require.Equal(t, []string{
		"bytes=0-4095",
		"bytes=4096-12287",
		"bytes=12288-28671",
		"bytes=28672-45055",
		"bytes=45056-61439",
		"bytes=61440-65535",
	}, srv.gets())
	require.Equal(t, int64(4), f.ReadHeads()[0].Speed)
}

func TestReadHeadEviction(t *testing.T) {
	const chunkSize = 1024
	content := randomContent(8, 64*chunkSize)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, chunkSize)

	for _, chunk := range []int64{0, 10, 20, 30} {
		readRange(t, f, chunk*chunkSize, 1)
	}
	require.Equal(t, []ReadHead{
		{StartChunk: 30, Speed: 1},
		{StartChunk: 20, Speed: 1},
		{StartChunk: 10, Speed: 1},
	}, f.ReadHeads())

	// chunk 1 was in the evicted head's window.
	require.Equal(t, content[chunkSize:chunkSize+1], readRange(t, f, chunkSize, 1))
	require.Equal(t, ReadHead{StartChunk: 1, Speed: 1}, f.ReadHeads()[0])
	require.Equal(t, "bytes=1024-2047", srv.gets()[4])
}

func TestProbeFailureIsRemembered(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"gzip": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Set("Content-Length", "1000")
		},
		"missing length": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Accept-Ranges", "bytes")
		},
		"not found": http.NotFound,
	} {
		t.Run(name, func(t *testing.T) {
			var mu sync.Mutex
			requests := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				requests++
				mu.Unlock()
				handler(w, r)
			}))
			defer srv.Close()

			f := openTestFile(t, srv.URL, 1024)
			ctx := context.Background()
			buf := make([]byte, 100)
			for i := 0; i < 3; i++ {
				_, err := f.Length(ctx)
				require.ErrorIs(t, err, remote.ErrProbe)
				_, err = f.ChunkSize(ctx)
				require.ErrorIs(t, err, remote.ErrProbe)
				n, err := f.CopyInto(ctx, buf, 0, len(buf), 0)
				require.ErrorIs(t, err, remote.ErrProbe)
				require.Zero(t, n)
			}
			mu.Lock()
			require.Equal(t, 1, requests)
			mu.Unlock()
			require.False(t, f.Stats().Probed)
		})
	}
}

func TestCopyIntoBounds(t *testing.T) {
	content := randomContent(9, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024)
	ctx := context.Background()

	buf := make([]byte, 100)
	_, err := f.CopyInto(ctx, buf, 50, 100, 0)
	require.ErrorIs(t, err, ErrRangeViolation)
	_, err = f.CopyInto(ctx, buf, 0, 10, -1)
	require.ErrorIs(t, err, ErrRangeViolation)
	_, err = f.CopyInto(ctx, buf, -1, 10, 0)
	require.ErrorIs(t, err, ErrRangeViolation)
	require.Empty(t, srv.gets())

	n, err := f.CopyInto(ctx, buf, 90, 10, 1020)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, content[1020:1030], buf[90:])
	require.Equal(t, make([]byte, 90), buf[:90])
}

func TestTransportErrors(t *testing.T) {
	content := randomContent(10, 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := openTestFile(t, srv.URL, 1024)
	buf := make([]byte, 10)
	_, err := f.CopyInto(context.Background(), buf, 0, len(buf), 0)
	require.ErrorIs(t, err, remote.ErrTransport)
	var transportErr *remote.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, http.StatusServiceUnavailable, transportErr.Status)
	require.Zero(t, f.Stats().CachedChunks)
}

func TestShortResponse(t *testing.T) {
	content := randomContent(11, 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// advertises more than it serves.
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		if r.Method == http.MethodGet {
			w.Write(content[:100])
		}
	}))
	defer srv.Close()

	f := openTestFile(t, srv.URL, 1024)
	buf := make([]byte, 10)
	_, err := f.CopyInto(context.Background(), buf, 0, len(buf), 0)
	require.ErrorIs(t, err, remote.ErrTransport)
	require.Zero(t, f.Stats().CachedChunks)
}

func TestPreconfiguredLengthWins(t *testing.T) {
	content := randomContent(12, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024, func(c *Config) {
		c.FileLength = 3000
	})

	length, err := f.Length(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3000), length)
	require.Equal(t, 1, srv.probes())

	buf := make([]byte, 100)
	n, err := f.CopyInto(context.Background(), buf, 0, len(buf), 2950)
	require.NoError(t, err)
	require.Equal(t, 50, n)
	require.Equal(t, content[2950:3000], buf[:n])
}

func TestShardedFile(t *testing.T) {
	content := randomContent(13, 10000)
	header := []byte("HEADER")
	first := newTestServer(t, content[:6000])
	second := newTestServer(t, append(append([]byte{}, header...), content[6000:]...))
	mapper, total, err := rangemapper.Sharded([]rangemapper.Piece{
		{Locator: first.URL, Size: 6000},
		{Locator: second.URL, Size: 4000, Offset: int64(len(header))},
	})
	require.NoError(t, err)

	f, err := New(Config{
		RangeMapper:      mapper,
		FileLength:       total,
		RequestChunkSize: 4096,
	})
	require.NoError(t, err)

	got := readRange(t, f, 0, int(total))
	require.Equal(t, content, got)
	require.Equal(t, 1, first.probes())
	require.Zero(t, second.probes())
	require.Equal(t, []string{"bytes=0-4095", "bytes=4096-5999"}, first.gets())
	require.Equal(t, []string{"bytes=6-4005"}, second.gets())
}

func TestObserver(t *testing.T) {
	content := randomContent(14, 5000)
	srv := newTestServer(t, content)
	var seen []PageRead
	f := openTestFile(t, srv.URL, 1024, func(c *Config) {
		c.Observer = ObserverFunc(func(p PageRead) {
			seen = append(seen, p)
		})
	})

	ctx := WithReason(context.Background(), "btree lookup")
	buf := make([]byte, 10)
	for _, start := range []int64{0, 10, 1024} {
		_, err := f.CopyInto(ctx, buf, 0, len(buf), start)
		require.NoError(t, err)
	}

	require.Equal(t, []PageRead{
		{Page: 0, WasCached: false, Prefetch: 0, Reason: "btree lookup"},
		{Page: 0, WasCached: true, Prefetch: 0, Reason: "btree lookup"},
		{Page: 1, WasCached: false, Prefetch: 1, Reason: "btree lookup"},
	}, seen)
	require.Len(t, f.PageReads(), 2)
}

func TestPageReadsDisabled(t *testing.T) {
	content := randomContent(15, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024, func(c *Config) {
		c.LogPageReads = false
	})
	readRange(t, f, 0, 5000)
	require.Empty(t, f.PageReads())
}

func TestReaderAt(t *testing.T) {
	content := randomContent(16, 12345)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 512)

	got, err := io.ReadAll(io.NewSectionReader(f, 0, int64(len(content))))
	require.NoError(t, err)
	require.Equal(t, content, got)

	buf := make([]byte, 100)
	n, err := f.ReadAt(buf, 12300)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 45, n)
	require.Equal(t, content[12300:], buf[:n])
}

func TestBoundedCache(t *testing.T) {
	const chunkSize = 1024
	content := randomContent(17, 32*chunkSize)
	srv := newTestServer(t, content)

	_, err := New(Config{
		RangeMapper:      rangemapper.Identity(srv.URL),
		RequestChunkSize: chunkSize,
		MaxReadSpeed:     4 * chunkSize,
		MaxCachedChunks:  3,
	})
	require.Error(t, err)

	f := openTestFile(t, srv.URL, chunkSize, func(c *Config) {
		c.MaxReadSpeed = 4 * chunkSize
		c.MaxCachedChunks = 4
	})
	for pass := 0; pass < 2; pass++ {
		for chunk := int64(0); chunk < 32; chunk++ {
			got := readRange(t, f, chunk*chunkSize, chunkSize)
			require.Equal(t, content[chunk*chunkSize:(chunk+1)*chunkSize], got)
			require.LessOrEqual(t, f.Stats().CachedChunks, 4)
		}
	}
	require.LessOrEqual(t, f.CachedChunks().GetCardinality(), uint64(4))
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{RequestChunkSize: 4096})
	require.Error(t, err)
	_, err = New(Config{RangeMapper: rangemapper.Identity("http://example.com/file"), RequestChunkSize: 0})
	require.Error(t, err)
	_, err = New(Config{RangeMapper: rangemapper.Identity("http://example.com/file"), RequestChunkSize: 4096, MaxReadHeads: -1})
	require.Error(t, err)
}

func TestRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		size := 1 + rng.Intn(60000)
		chunkSize := 1 + rng.Intn(5000)
		content := randomContent(int64(100+i), size)
		srv := newTestServer(t, content)
		f := openTestFile(t, srv.URL, chunkSize, func(c *Config) {
			c.MaxReadHeads = 1 + rng.Intn(4)
		})

		for j := 0; j < 200; j++ {
			start := rng.Int63n(int64(size) + 10)
			length := rng.Intn(3 * chunkSize)
			dstOffset := rng.Intn(16)
			dst := make([]byte, dstOffset+length)
			n, err := f.CopyInto(context.Background(), dst, dstOffset, length, start)
			require.NoError(t, err)
			if start >= int64(size) {
				require.Zero(t, n)
				continue
			}
			want := content[start:min(start+int64(length), int64(size))]
			require.Equal(t, len(want), n, "size %d chunk %d start %d length %d", size, chunkSize, start, length)
			require.Equal(t, want, dst[dstOffset:dstOffset+n])
		}
	}
}

func TestReaderAtCanceled(t *testing.T) {
	content := randomContent(18, 5000)
	srv := newTestServer(t, content)
	f := openTestFile(t, srv.URL, 1024)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ReaderAt(ctx).ReadAt(make([]byte, 10), 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, srv.gets())

	// a canceled probe is not remembered.
	got := make([]byte, 10)
	_, err = f.ReaderAt(context.Background()).ReadAt(got, 100)
	require.NoError(t, err)
	require.Equal(t, content[100:110], got)
}
