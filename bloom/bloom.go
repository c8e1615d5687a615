package bloom

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
)

const (
	// DefaultBitLength is the bit length used for switch filters unless
	// configured otherwise.
	DefaultBitLength = 1024

	// MaxBitLength is the largest supported bit length. It equals the
	// capacity of the bit array in the gossip wire format.
	MaxBitLength = 1024

	// MaxBytes is the storage size of a filter with MaxBitLength bits.
	MaxBytes = MaxBitLength / 8

	// DefaultHashFuncs is the number of hash functions bound to switch
	// filters unless configured otherwise.
	DefaultHashFuncs = 2
)

var (
	ErrBitLength = errors.New("invalid bloom filter bit length")
	ErrHashFuncs = errors.New("invalid number of bloom filter hash functions")
	ErrBits      = errors.New("bit array does not match the filter size")
)

// Filter is a Bloom filter owned by a single switch.
type Filter struct {
	id        uint32
	bitLength uint32
	port      uint16
	bits      []byte
	funcs     []HashFunc
}

// ByteLen returns the number of bytes needed to store bitLength bits.
func ByteLen(bitLength uint32) int {
	return int((bitLength + 7) / 8)
}

// New creates an empty filter. It binds the first hashFuncs functions of
// HashFamilies, in order.
func New(id, bitLength uint32, port uint16, hashFuncs uint32) (*Filter, error) {
	if bitLength == 0 || bitLength > MaxBitLength {
		return nil, fmt.Errorf("%w: %d", ErrBitLength, bitLength)
	}

	if hashFuncs == 0 || hashFuncs > uint32(len(HashFamilies)) {
		return nil, fmt.Errorf("%w: %d", ErrHashFuncs, hashFuncs)
	}

	funcs := make([]HashFunc, hashFuncs)
	copy(funcs, HashFamilies)
	return &Filter{
		id:        id,
		bitLength: bitLength,
		port:      port,
		bits:      make([]byte, ByteLen(bitLength)),
		funcs:     funcs,
	}, nil
}

func (f *Filter) ID() uint32        { return f.id }
func (f *Filter) BitLength() uint32 { return f.bitLength }
func (f *Filter) Port() uint16      { return f.port }
func (f *Filter) HashFuncs() uint32 { return uint32(len(f.funcs)) }

// SetPort assigns the forwarding port associated with the filter.
func (f *Filter) SetPort(p uint16) { f.port = p }

// Bytes returns a copy of the bit array.
func (f *Filter) Bytes() []byte {
	if f == nil {
		return nil
	}

	return bytes.Clone(f.bits)
}

// SetBits replaces the bit array. The length of b must match the storage
// size of the filter.
func (f *Filter) SetBits(b []byte) error {
	if f == nil || f.bits == nil {
		return ErrBits
	}

	if len(b) != len(f.bits) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBits, len(b), len(f.bits))
	}

	copy(f.bits, b)
	return nil
}

func (f *Filter) index(h HashFunc, key string) uint32 {
	return h(key) % f.bitLength
}

// Add sets the bits of key. Adding a key more than once has no further
// effect.
func (f *Filter) Add(key string) {
	if f == nil || f.bits == nil {
		return
	}

	for _, h := range f.funcs {
		i := f.index(h, key)
		f.bits[i/8] |= 1 << (i % 8)
	}
}

// Check reports whether key may have been added. It returns true only
// when all bits of the key are set.
func (f *Filter) Check(key string) bool {
	if f == nil || f.bits == nil {
		return false
	}

	for _, h := range f.funcs {
		i := f.index(h, key)
		if f.bits[i/8]&(1<<(i%8)) == 0 {
			return false
		}
	}

	return true
}

// PopCount returns the number of set bits.
func (f *Filter) PopCount() int {
	if f == nil {
		return 0
	}

	var n int
	for _, b := range f.bits {
		n += bits.OnesCount8(b)
	}

	return n
}

// Clone returns a deep copy of the filter.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}

	c := *f
	c.bits = bytes.Clone(f.bits)
	c.funcs = append([]HashFunc(nil), f.funcs...)
	return &c
}

// Equal compares the complete state of two filters: id, bit length, port,
// bit array and the number of hash functions.
func (f *Filter) Equal(o *Filter) bool {
	if f == nil || o == nil {
		return f == o
	}

	return f.id == o.id &&
		f.bitLength == o.bitLength &&
		f.port == o.port &&
		len(f.funcs) == len(o.funcs) &&
		bytes.Equal(f.bits, o.bits)
}

// CopyFrom overwrites the full state of f with the state of o.
func (f *Filter) CopyFrom(o *Filter) {
	f.id = o.id
	f.bitLength = o.bitLength
	f.port = o.port
	f.bits = bytes.Clone(o.bits)
	f.funcs = append(f.funcs[:0], o.funcs...)
}

// Destroy releases the storage of the filter. The filter must not be used
// afterwards, Add and Check treat it as empty.
func (f *Filter) Destroy() {
	if f == nil {
		return
	}

	f.bits = nil
	f.funcs = nil
}

func (f *Filter) String() string {
	if f == nil {
		return "<nil>"
	}

	return fmt.Sprintf("bloom{id=%d len=%d port=%d funcs=%d set=%d}", f.id, f.bitLength, f.port, len(f.funcs), f.PopCount())
}
