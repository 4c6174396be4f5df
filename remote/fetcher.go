package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rpcpool/lazy-remote-file/metrics"
	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
	"github.com/rpcpool/lazy-remote-file/telemetry"
	"k8s.io/klog/v2"
)

// Fetcher retrieves inclusive byte ranges of a logical file over HTTP.
// It is safe for concurrent use, but the file handle never overlaps fetches.
type Fetcher struct {
	client  *http.Client
	mapper  rangemapper.Mapper
	name    string
	retries int

	fetchedBytes atomic.Int64
	requests     atomic.Int64
}

// NewFetcher returns a Fetcher resolving ranges with mapper.
// name identifies the file in logs and metrics.
// retries is the number of extra attempts made when no response is received
// at all; HTTP status failures are never retried.
func NewFetcher(client *http.Client, mapper rangemapper.Mapper, name string, retries int) *Fetcher {
	if client == nil {
		client = DefaultClient()
	}
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		client:  client,
		mapper:  mapper,
		name:    name,
		retries: retries,
	}
}

// FetchedBytes returns the number of bytes received so far.
func (f *Fetcher) FetchedBytes() int64 {
	return f.fetchedBytes.Load()
}

// Requests returns the number of range requests sent so far.
func (f *Fetcher) Requests() int64 {
	return f.requests.Load()
}

// Fetch retrieves the inclusive logical range [from, to] of a file of the given
// length. The result covers the whole range, or less only when a resource
// ends early. Ranges crossing resource boundaries are split into one request
// per resource.
func (f *Fetcher) Fetch(ctx context.Context, from, to int64, length int64) ([]byte, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range (%d, %d) or no bytes requested", from, to)
	}
	buf := make([]byte, 0, to-from+1)
	for pos := from; pos <= to; {
		target := f.mapper(pos, to)
		if target.ToByte < target.FromByte || target.Len() > to-pos+1 {
			return nil, fmt.Errorf("range mapper returned invalid target %+v for [%d, %d]", target, pos, to)
		}
		whole := pos == 0 && to == length-1 && target.FromByte == 0 && target.ToByte == length-1
		data, err := f.fetchTarget(ctx, target, whole)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
		pos += int64(len(data))
		if int64(len(data)) < target.Len() {
			// the resource ended early.
			break
		}
	}
	return buf, nil
}

// fetchTarget performs one GET for target. When whole is true the Range
// header is omitted, since some servers reject ranges covering 100% of the
// content.
func (f *Fetcher) fetchTarget(ctx context.Context, target rangemapper.Target, whole bool) ([]byte, error) {
	klog.V(3).Infof(
		"[fetch %s] %s of size %s @ %s",
		f.name,
		target.Locator,
		humanize.IBytes(uint64(target.Len())),
		humanize.IBytes(uint64(target.FromByte)),
	)

	ctx, span := telemetry.StartRemoteIOSpan(ctx, http.MethodGet, target.Locator, target.FromByte, target.ToByte)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Locator, nil)
	if err != nil {
		return nil, &TransportError{Locator: target.Locator, Reason: "invalid request", Err: err}
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("Accept-Encoding", "identity")
	if !whole {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", target.FromByte, target.ToByte))
	}

	f.requests.Add(1)
	started := time.Now()
	var resp *http.Response
	err = retryExpotentialBackoff(
		ctx,
		100*time.Millisecond,
		f.retries+1,
		func() error {
			resp, err = f.client.Do(req)
			code := "error"
			if err == nil {
				code = strconv.Itoa(resp.StatusCode)
			}
			metrics.RemoteFileHttpRequestsTotal.WithLabelValues(http.MethodGet, code).Inc()
			return err
		})
	metrics.RemoteFileFetchLatencyHistogram.WithLabelValues(http.MethodGet).Observe(time.Since(started).Seconds())
	if err != nil {
		telemetry.RecordError(span, err, "GET failed")
		return nil, &TransportError{Locator: target.Locator, Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		err := &TransportError{Locator: target.Locator, Status: resp.StatusCode}
		telemetry.RecordError(span, err, "unexpected status")
		return nil, err
	}
	if encoding := contentEncoding(resp.Header); encoding != "" {
		err := &TransportError{Locator: target.Locator, Status: resp.StatusCode, Reason: "unexpected " + encoding + " transport encoding"}
		telemetry.RecordError(span, err, "compressed transport")
		return nil, err
	}

	if resp.StatusCode == http.StatusOK && !whole && target.FromByte > 0 {
		// The server ignored the Range header and sends the whole resource;
		// skip what comes before the wanted range.
		klog.V(2).Infof("[fetch %s] %s ignored the range header, skipping %d bytes", f.name, target.Locator, target.FromByte)
		if _, err := io.CopyN(io.Discard, resp.Body, target.FromByte); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			telemetry.RecordError(span, err, "skip failed")
			return nil, &TransportError{Locator: target.Locator, Status: resp.StatusCode, Reason: "reading body", Err: err}
		}
	}

	data := make([]byte, target.Len())
	n, err := io.ReadFull(resp.Body, data)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		telemetry.RecordError(span, err, "read failed")
		return nil, &TransportError{Locator: target.Locator, Status: resp.StatusCode, Reason: "reading body", Err: err}
	}
	data = data[:n]

	f.fetchedBytes.Add(int64(n))
	metrics.RemoteFileFetchedBytesTotal.WithLabelValues(f.name).Add(float64(n))
	return data, nil
}

func retryExpotentialBackoff(
	ctx context.Context,
	startDuration time.Duration,
	maxAttempts int,
	fn func() error,
) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startDuration):
			startDuration *= 2
		}
	}
	if maxAttempts > 1 {
		return fmt.Errorf("failed after %d attempts; last error: %w", maxAttempts, err)
	}
	return err
}
