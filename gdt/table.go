package gdt

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/lcswitch/bfgossip/bloom"
)

const (
	DefaultMaxFilters = 32
	DefaultRemotePort = 0

	// AutoID asks AddFilter to pick the next available id.
	AutoID int64 = -1
)

var (
	ErrCapacity    = errors.New("group directory table is full")
	ErrDuplicateID = errors.New("filter id already present")
	ErrNotFound    = errors.New("filter not found")
	ErrClosed      = errors.New("group directory table closed")
	ErrInvalidID   = errors.New("invalid filter id")
)

// ChangeResult tells the outcome of a merge.
type ChangeResult int

const (
	Unchanged ChangeResult = iota
	Updated
	Inserted
)

func (r ChangeResult) String() string {
	switch r {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Inserted:
		return "inserted"
	default:
		return fmt.Sprintf("ChangeResult(%d)", int(r))
	}
}

// Changed reports whether the merge mutated the table, meaning the filter
// has to be pushed towards the datapath.
func (r ChangeResult) Changed() bool { return r == Updated || r == Inserted }

// Options configure a Table.
type Options struct {

	// GroupID is the gossip group the table belongs to.
	GroupID uint32

	// MaxFilters bounds the number of entries. Defaults to
	// DefaultMaxFilters.
	MaxFilters int

	// RemotePort is the forwarding port assigned to every filter merged
	// from a peer.
	RemotePort uint16

	// HashFuncs is the number of hash functions of the filters created
	// by AddFilter. Defaults to bloom.DefaultHashFuncs.
	HashFuncs uint32
}

// Table is the group directory table: one Bloom filter per switch of a
// gossip group, guarded by a single lock. Filters passed in are copied and
// filters returned are copies, entries never leave the table.
type Table struct {
	mu      sync.Mutex
	options Options
	entries []*bloom.Filter
	closed  bool
}

// New creates an empty table.
func New(o Options) *Table {
	if o.MaxFilters <= 0 {
		o.MaxFilters = DefaultMaxFilters
	}

	if o.HashFuncs == 0 {
		o.HashFuncs = bloom.DefaultHashFuncs
	}

	return &Table{
		options: o,
		entries: make([]*bloom.Filter, 0, o.MaxFilters),
	}
}

func (t *Table) GroupID() uint32    { return t.options.GroupID }
func (t *Table) RemotePort() uint16 { return t.options.RemotePort }
func (t *Table) MaxFilters() int    { return t.options.MaxFilters }

func (t *Table) find(id uint32) int {
	for i, f := range t.entries {
		if f.ID() == id {
			return i
		}
	}

	return -1
}

func (t *Table) nextID() uint32 {
	id := uint32(len(t.entries))
	for t.find(id) >= 0 {
		id++
	}

	return id
}

func (t *Table) appendEntry(f *bloom.Filter) error {
	if len(t.entries) >= t.options.MaxFilters {
		return fmt.Errorf("%w: %d entries, cannot add id %d", ErrCapacity, len(t.entries), f.ID())
	}

	t.entries = append(t.entries, f)
	return nil
}

// AddFilter creates an empty filter with the given id and appends it. With
// AutoID, the lowest unused id starting at the number of entries is taken.
func (t *Table) AddFilter(id int64, port uint16, bitLength uint32) (*bloom.Filter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	var fid uint32
	switch {
	case id < 0:
		fid = t.nextID()
	case id > int64(^uint32(0)):
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	default:
		fid = uint32(id)
		if t.find(fid) >= 0 {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, fid)
		}
	}

	f, err := bloom.New(fid, bitLength, port, t.options.HashFuncs)
	if err != nil {
		return nil, err
	}

	if err := t.appendEntry(f); err != nil {
		return nil, err
	}

	return f.Clone(), nil
}

// InsertFilter appends a deep copy of f. The caller keeps ownership of f.
func (t *Table) InsertFilter(f *bloom.Filter) (*bloom.Filter, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil filter", ErrInvalidID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	if t.find(f.ID()) >= 0 {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateID, f.ID())
	}

	c := f.Clone()
	if err := t.appendEntry(c); err != nil {
		return nil, err
	}

	return c.Clone(), nil
}

// FindFilter returns a copy of the entry with id.
func (t *Table) FindFilter(id uint32) (*bloom.Filter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.find(id); i >= 0 {
		return t.entries[i].Clone(), true
	}

	return nil, false
}

// UpdateFilter merges a candidate received from a peer. The port of the
// candidate is set to the remote port before it is compared with the
// stored entry, so after the call the candidate is exactly what the table
// holds for its id.
func (t *Table) UpdateFilter(candidate *bloom.Filter) (ChangeResult, error) {
	if candidate == nil {
		return Unchanged, fmt.Errorf("%w: nil filter", ErrInvalidID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return Unchanged, ErrClosed
	}

	candidate.SetPort(t.options.RemotePort)

	i := t.find(candidate.ID())
	if i < 0 {
		if err := t.appendEntry(candidate.Clone()); err != nil {
			return Unchanged, err
		}

		return Inserted, nil
	}

	if t.entries[i].Equal(candidate) {
		return Unchanged, nil
	}

	t.entries[i].CopyFrom(candidate)
	return Updated, nil
}

// AddKey adds key to the entry with id.
func (t *Table) AddKey(id uint32, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	i := t.find(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	t.entries[i].Add(key)
	return nil
}

// Check returns a copy of the first entry, in insertion order, that may
// contain key.
func (t *Table) Check(key string) (*bloom.Filter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range t.entries {
		if f.Check(key) {
			return f.Clone(), true
		}
	}

	return nil, false
}

// Matches returns the ids of all entries that may contain key.
func (t *Table) Matches(key string) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []uint32
	for _, f := range t.entries {
		if f.Check(key) {
			ids = append(ids, f.ID())
		}
	}

	return ids
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// IDs returns the entry ids in insertion order.
func (t *Table) IDs() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint32, len(t.entries))
	for i, f := range t.entries {
		ids[i] = f.ID()
	}

	return ids
}

// Snapshot returns copies of all entries in insertion order.
func (t *Table) Snapshot() []*bloom.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := make([]*bloom.Filter, len(t.entries))
	for i, f := range t.entries {
		s[i] = f.Clone()
	}

	return s
}

// Close destroys all entries. Mutations on a closed table fail with
// ErrClosed, lookups find nothing. Close can be called more than once.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, f := range t.entries {
		f.Destroy()
	}

	t.entries = slices.Delete(t.entries, 0, len(t.entries))
	t.closed = true
}
