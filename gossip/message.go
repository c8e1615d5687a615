package gossip

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lcswitch/bfgossip/bloom"
)

const (
	// MaxStatEntries is the capacity of the stats array of a message.
	MaxStatEntries = 8

	statEntrySize = 4 + 4 + 8

	offGroupID   = 0
	offFilterID  = 4
	offBitLength = 8
	offPort      = 12
	offBits      = 14
	offHashFuncs = offBits + bloom.MaxBytes
	offStatCount = offHashFuncs + 4
	offStats     = offStatCount + 4

	// MessageSize is the fixed size of a gossip datagram.
	MessageSize = offStats + MaxStatEntries*statEntrySize
)

var (
	ErrMessageSize   = errors.New("invalid gossip message size")
	ErrMessageFormat = errors.New("invalid gossip message")
)

// LinkStat counts the bytes sent from one switch to another.
type LinkStat struct {
	Src   uint32
	Dst   uint32
	Bytes uint64
}

// Message is the datagram a switch sends to its gossip group: its own
// filter and a few traffic counters.
type Message struct {
	GroupID uint32
	Filter  *bloom.Filter
	Stats   []LinkStat
}

// Encode serializes the message into a MessageSize long datagram. Numeric
// fields are in network byte order, the bit array is copied as is and
// zero padded to the wire capacity.
func (m *Message) Encode() ([]byte, error) {
	if m.Filter == nil {
		return nil, fmt.Errorf("%w: no filter", ErrMessageFormat)
	}

	if len(m.Stats) > MaxStatEntries {
		return nil, fmt.Errorf("%w: %d stat entries", ErrMessageFormat, len(m.Stats))
	}

	bits := m.Filter.Bytes()
	if len(bits) > bloom.MaxBytes {
		return nil, fmt.Errorf("%w: %d filter bytes", ErrMessageFormat, len(bits))
	}

	b := make([]byte, MessageSize)
	binary.BigEndian.PutUint32(b[offGroupID:], m.GroupID)
	binary.BigEndian.PutUint32(b[offFilterID:], m.Filter.ID())
	binary.BigEndian.PutUint32(b[offBitLength:], m.Filter.BitLength())
	binary.BigEndian.PutUint16(b[offPort:], m.Filter.Port())
	copy(b[offBits:offHashFuncs], bits)
	binary.BigEndian.PutUint32(b[offHashFuncs:], m.Filter.HashFuncs())
	binary.BigEndian.PutUint32(b[offStatCount:], uint32(len(m.Stats)))

	for i, s := range m.Stats {
		o := offStats + i*statEntrySize
		binary.BigEndian.PutUint32(b[o:], s.Src)
		binary.BigEndian.PutUint32(b[o+4:], s.Dst)
		binary.BigEndian.PutUint64(b[o+8:], s.Bytes)
	}

	return b, nil
}

// Decode parses a datagram. It fails with ErrMessageSize when the length
// is not MessageSize, and with ErrMessageFormat when the header describes
// a filter or a stats array that does not fit the wire capacity.
func Decode(b []byte) (*Message, error) {
	if len(b) != MessageSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMessageSize, len(b), MessageSize)
	}

	var (
		groupID   = binary.BigEndian.Uint32(b[offGroupID:])
		id        = binary.BigEndian.Uint32(b[offFilterID:])
		bitLength = binary.BigEndian.Uint32(b[offBitLength:])
		port      = binary.BigEndian.Uint16(b[offPort:])
		hashFuncs = binary.BigEndian.Uint32(b[offHashFuncs:])
		count     = binary.BigEndian.Uint32(b[offStatCount:])
	)

	if count > MaxStatEntries {
		return nil, fmt.Errorf("%w: %d stat entries", ErrMessageFormat, count)
	}

	f, err := bloom.New(id, bitLength, port, hashFuncs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessageFormat, err)
	}

	if err := f.SetBits(b[offBits : offBits+bloom.ByteLen(bitLength)]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMessageFormat, err)
	}

	m := &Message{GroupID: groupID, Filter: f}
	if count > 0 {
		m.Stats = make([]LinkStat, count)
	}

	for i := range m.Stats {
		o := offStats + i*statEntrySize
		m.Stats[i] = LinkStat{
			Src:   binary.BigEndian.Uint32(b[o:]),
			Dst:   binary.BigEndian.Uint32(b[o+4:]),
			Bytes: binary.BigEndian.Uint64(b[o+8:]),
		}
	}

	return m, nil
}
