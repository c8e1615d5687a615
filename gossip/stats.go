package gossip

import (
	"cmp"
	"slices"
	"sync"
)

// StatsProvider returns the local traffic counters sent along with the
// filter. It is called once per send tick and must not block.
type StatsProvider interface {
	LocalStats() []LinkStat
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() []LinkStat

func (f StatsFunc) LocalStats() []LinkStat { return f() }

type link struct{ src, dst uint32 }

// Counters is a StatsProvider accumulating byte counts per switch pair.
type Counters struct {
	mu    sync.Mutex
	links map[link]uint64
}

func NewCounters() *Counters {
	return &Counters{links: make(map[link]uint64)}
}

// Add counts n bytes sent from src to dst.
func (c *Counters) Add(src, dst uint32, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[link{src, dst}] += n
}

// LocalStats returns at most MaxStatEntries links, the busiest first.
func (c *Counters) LocalStats() []LinkStat {
	c.mu.Lock()
	s := make([]LinkStat, 0, len(c.links))
	for l, n := range c.links {
		s = append(s, LinkStat{Src: l.src, Dst: l.dst, Bytes: n})
	}
	c.mu.Unlock()

	slices.SortFunc(s, func(a, b LinkStat) int {
		if d := cmp.Compare(b.Bytes, a.Bytes); d != 0 {
			return d
		}

		if d := cmp.Compare(a.Src, b.Src); d != 0 {
			return d
		}

		return cmp.Compare(a.Dst, b.Dst)
	})

	if len(s) > MaxStatEntries {
		s = s[:MaxStatEntries]
	}

	return s
}
