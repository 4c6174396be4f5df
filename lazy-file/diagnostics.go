package lazyfile

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// PageRead describes one chunk access.
type PageRead struct {
	Page      int64  `json:"pageno"`
	WasCached bool   `json:"wasCached"`
	Prefetch  int64  `json:"prefetch"`
	Reason    string `json:"reason,omitempty"`
}

// Observer is notified of every chunk access.
type Observer interface {
	ObservePage(PageRead)
}

// NopObserver ignores all accesses.
type NopObserver struct{}

func (NopObserver) ObservePage(PageRead) {}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(PageRead)

func (f ObserverFunc) ObservePage(p PageRead) { f(p) }

type reasonKey struct{}

// WithReason tags the reads done with ctx, for page read diagnostics.
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

func reasonFrom(ctx context.Context) string {
	reason, _ := ctx.Value(reasonKey{}).(string)
	return reason
}

// Fingerprint returns a short stable identifier for a resource key, used in
// logs and metrics instead of the key itself (which may be a signed URL).
func Fingerprint(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Stats is a snapshot of a file handle.
type Stats struct {
	Name         string     `json:"name"`
	Probed       bool       `json:"probed"`
	Length       int64      `json:"length"`
	ChunkSize    int        `json:"chunkSize"`
	CachedChunks int        `json:"cachedChunks"`
	CachedBytes  int64      `json:"cachedBytes"`
	FetchedBytes int64      `json:"fetchedBytes"`
	Requests     int64      `json:"requests"`
	ReadHeads    []ReadHead `json:"readHeads"`
}
