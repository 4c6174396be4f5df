package lazyfile

import (
	"github.com/jellydator/ttlcache/v3"
	"github.com/tidwall/hashmap"
)

// chunkStore maps a chunk index to its owned buffer.
// A stored chunk is never mutated; presence is tested with the boolean,
// never with the buffer length.
type chunkStore interface {
	get(idx int64) ([]byte, bool)
	// put stores chunk unless idx is already present (first writer wins).
	put(idx int64, chunk []byte)
	len() int
	indices() []int64
	// sizeBytes returns the number of cached bytes.
	sizeBytes() int64
}

func newChunkStore(maxChunks int) chunkStore {
	if maxChunks > 0 {
		return newLRUChunkStore(maxChunks)
	}
	return &mapChunkStore{}
}

// mapChunkStore grows monotonically and never evicts.
type mapChunkStore struct {
	chunks hashmap.Map[int64, []byte]
	bytes  int64
}

func (s *mapChunkStore) get(idx int64) ([]byte, bool) {
	return s.chunks.Get(idx)
}

func (s *mapChunkStore) put(idx int64, chunk []byte) {
	if _, ok := s.chunks.Get(idx); ok {
		return
	}
	s.chunks.Set(idx, chunk)
	s.bytes += int64(len(chunk))
}

func (s *mapChunkStore) len() int {
	return s.chunks.Len()
}

func (s *mapChunkStore) indices() []int64 {
	out := make([]int64, 0, s.chunks.Len())
	s.chunks.Scan(func(idx int64, _ []byte) bool {
		out = append(out, idx)
		return true
	})
	return out
}

func (s *mapChunkStore) sizeBytes() int64 {
	return s.bytes
}

// lruChunkStore keeps at most a fixed number of chunks, dropping the least
// recently used one when full.
type lruChunkStore struct {
	cache *ttlcache.Cache[int64, []byte]
}

func newLRUChunkStore(maxChunks int) *lruChunkStore {
	return &lruChunkStore{
		cache: ttlcache.New[int64, []byte](
			ttlcache.WithCapacity[int64, []byte](uint64(maxChunks)),
			ttlcache.WithDisableTouchOnHit[int64, []byte](),
		),
	}
}

func (s *lruChunkStore) get(idx int64) ([]byte, bool) {
	item := s.cache.Get(idx)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (s *lruChunkStore) put(idx int64, chunk []byte) {
	if s.cache.Get(idx, ttlcache.WithDisableTouchOnHit[int64, []byte]()) != nil {
		return
	}
	s.cache.Set(idx, chunk, ttlcache.NoTTL)
}

func (s *lruChunkStore) len() int {
	return s.cache.Len()
}

func (s *lruChunkStore) indices() []int64 {
	items := s.cache.Items()
	out := make([]int64, 0, len(items))
	for idx := range items {
		out = append(out, idx)
	}
	return out
}

func (s *lruChunkStore) sizeBytes() int64 {
	var total int64
	for _, item := range s.cache.Items() {
		total += int64(len(item.Value()))
	}
	return total
}
