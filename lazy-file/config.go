package lazyfile

import (
	"errors"
	"fmt"
	"net/http"

	rangemapper "github.com/rpcpool/lazy-remote-file/range-mapper"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
)

const (
	DefaultMaxReadHeads = 3
	DefaultMaxReadSpeed = 5 * MiB
)

// Config configures one file handle.
type Config struct {
	// RangeMapper maps a logical range to a remote resource. Required.
	RangeMapper rangemapper.Mapper
	// FileLength is the length of the file, if known beforehand.
	// It must be set when RangeMapper spans several resources; the probe
	// still runs to check the capabilities of the first resource.
	FileLength int64
	// RequestChunkSize is the cache granularity in bytes. It should match
	// the consumer's page size. Required.
	RequestChunkSize int
	// MaxReadHeads is the number of sequential access streams tracked.
	// Default: 3.
	MaxReadHeads int
	// MaxReadSpeed caps the size of one fetch for sequential access, in bytes.
	// Default: 5 MiB.
	MaxReadSpeed int64
	// LogPageReads records every page read in memory (see File.PageReads).
	LogPageReads bool
	// MaxCachedChunks bounds the chunk cache; the least recently used chunks
	// are dropped beyond it. 0 means unbounded. When set it must hold at least
	// MaxReadSpeed worth of chunks.
	MaxCachedChunks int
	// Observer is called on every chunk access. Optional.
	Observer Observer
	// Client is the HTTP client used for remote requests. Optional.
	Client *http.Client
	// Retries is the number of extra attempts for requests that get no response.
	Retries int
	// Name identifies the file in logs and metrics. Defaults to a fingerprint
	// of the probe locator.
	Name string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxReadHeads == 0 {
		out.MaxReadHeads = DefaultMaxReadHeads
	}
	if out.MaxReadSpeed == 0 {
		out.MaxReadSpeed = DefaultMaxReadSpeed
	}
	if out.Observer == nil {
		out.Observer = NopObserver{}
	}
	return out
}

// maxSpeed returns the read-head speed ceiling in chunks.
func (c *Config) maxSpeed() int64 {
	chunkSize := int64(c.RequestChunkSize)
	speed := (c.MaxReadSpeed + chunkSize/2) / chunkSize
	if speed < 1 {
		speed = 1
	}
	return speed
}

func (c *Config) validate() error {
	if c.RangeMapper == nil {
		return errors.New("range mapper is required")
	}
	if c.RequestChunkSize <= 0 {
		return fmt.Errorf("request chunk size must be positive, got %d", c.RequestChunkSize)
	}
	if c.FileLength < 0 {
		return fmt.Errorf("file length must not be negative, got %d", c.FileLength)
	}
	if c.MaxReadHeads < 1 {
		return fmt.Errorf("max read heads must be at least 1, got %d", c.MaxReadHeads)
	}
	if c.MaxReadSpeed < 0 {
		return fmt.Errorf("max read speed must not be negative, got %d", c.MaxReadSpeed)
	}
	if c.MaxCachedChunks < 0 {
		return fmt.Errorf("max cached chunks must not be negative, got %d", c.MaxCachedChunks)
	}
	if c.MaxCachedChunks > 0 && int64(c.MaxCachedChunks) < c.maxSpeed() {
		return fmt.Errorf(
			"max cached chunks (%d) must hold at least one full-speed fetch (%d chunks)",
			c.MaxCachedChunks,
			c.maxSpeed(),
		)
	}
	return nil
}
