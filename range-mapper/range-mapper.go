package rangemapper

import (
	"errors"
	"fmt"
)

// Target is where a logical byte range must be requested from.
// FromByte and ToByte are inclusive offsets inside the resource named by Locator.
type Target struct {
	Locator  string
	FromByte int64
	ToByte   int64
}

// Len returns the number of bytes covered by the target.
func (t Target) Len() int64 {
	return t.ToByte - t.FromByte + 1
}

// Mapper maps the inclusive logical range [fromByte, toByte] to a concrete resource.
// It must be pure: the same input always yields the same Target.
// The degenerate range (0, 0) is used to locate the resource to probe.
//
// A Mapper may return a Target that covers fewer bytes than requested
// (e.g. when the range crosses a piece boundary). Callers must then map the
// remainder again.
type Mapper func(fromByte, toByte int64) Target

// Identity returns a Mapper for a file that lives in a single resource.
func Identity(locator string) Mapper {
	return func(fromByte, toByte int64) Target {
		return Target{
			Locator:  locator,
			FromByte: fromByte,
			ToByte:   toByte,
		}
	}
}

// Piece is one physical resource holding a contiguous part of the logical file.
type Piece struct {
	Locator string `yaml:"locator"`
	// Size is the number of bytes of the logical file held by this piece.
	Size int64 `yaml:"size"`
	// Offset is the number of bytes to skip inside the resource (e.g. a header).
	Offset int64 `yaml:"offset"`
}

// Sharded returns a Mapper for a logical file that is laid out back to back
// across the given pieces, and the total logical length.
func Sharded(pieces []Piece) (Mapper, int64, error) {
	if len(pieces) == 0 {
		return nil, 0, errors.New("no pieces")
	}
	offsets := make([]int64, len(pieces))
	var total int64
	for i, p := range pieces {
		if p.Locator == "" {
			return nil, 0, fmt.Errorf("piece %d has no locator", i)
		}
		if p.Size <= 0 {
			return nil, 0, fmt.Errorf("piece %d (%s) has invalid size %d", i, p.Locator, p.Size)
		}
		if p.Offset < 0 {
			return nil, 0, fmt.Errorf("piece %d (%s) has negative offset %d", i, p.Locator, p.Offset)
		}
		offsets[i] = total
		total += p.Size
	}
	// copy, so that later changes to the caller's slice don't leak into the mapper.
	layout := make([]Piece, len(pieces))
	copy(layout, pieces)

	mapper := func(fromByte, toByte int64) Target {
		i := pieceIndex(offsets, fromByte)
		p := layout[i]
		pieceEnd := offsets[i] + p.Size - 1
		if toByte > pieceEnd {
			toByte = pieceEnd
		}
		return Target{
			Locator:  p.Locator,
			FromByte: fromByte - offsets[i] + p.Offset,
			ToByte:   toByte - offsets[i] + p.Offset,
		}
	}
	return mapper, total, nil
}

// pieceIndex returns the index of the piece holding the given logical offset.
// Offsets past the end map to the last piece.
func pieceIndex(offsets []int64, off int64) int {
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if offsets[mid] <= off {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
