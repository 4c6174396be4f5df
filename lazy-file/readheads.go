package lazyfile

// ReadHead is a guess that reads continue sequentially from StartChunk,
// Speed chunks at a time.
type ReadHead struct {
	StartChunk int64
	Speed      int64
}

// next returns the first chunk of the head's next fetch and the speed it
// would be fetched at.
func (h ReadHead) next(maxSpeed int64) (start int64, speed int64) {
	return h.StartChunk + h.Speed, min(maxSpeed, h.Speed*2)
}

type headEvent int

const (
	headAdvanced headEvent = iota
	headCreated
	headCreatedWithEviction
)

func (e headEvent) String() string {
	switch e {
	case headAdvanced:
		return "advance"
	case headCreated:
		return "new"
	case headCreatedWithEviction:
		return "evict"
	default:
		return "unknown"
	}
}

// readHeads is a small most-recently-used-first list of read heads.
type readHeads struct {
	heads    []ReadHead
	max      int
	maxSpeed int64
}

func newReadHeads(max int, maxSpeed int64) *readHeads {
	return &readHeads{
		heads:    make([]ReadHead, 0, max+1),
		max:      max,
		maxSpeed: maxSpeed,
	}
}

// move picks the head that should serve a miss on chunk wanted, advancing
// it (doubling its speed) when wanted falls in its next fetch window, or
// starting a new head at speed 1 otherwise. The returned head describes the
// fetch to perform.
func (r *readHeads) move(wanted int64) (ReadHead, headEvent) {
	for i, head := range r.heads {
		start, speed := head.next(r.maxSpeed)
		if wanted < start || wanted >= start+speed {
			continue
		}
		head = ReadHead{StartChunk: start, Speed: speed}
		// move to front
		copy(r.heads[1:i+1], r.heads[:i])
		r.heads[0] = head
		return head, headAdvanced
	}

	head := ReadHead{StartChunk: wanted, Speed: 1}
	r.heads = append(r.heads, ReadHead{})
	copy(r.heads[1:], r.heads[:len(r.heads)-1])
	r.heads[0] = head

	event := headCreated
	if len(r.heads) > r.max {
		r.heads = r.heads[:r.max]
		event = headCreatedWithEviction
	}
	return head, event
}

// snapshot returns a copy of the heads, most recently used first.
func (r *readHeads) snapshot() []ReadHead {
	out := make([]ReadHead, len(r.heads))
	copy(out, r.heads)
	return out
}
