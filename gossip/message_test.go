package gossip

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcswitch/bfgossip/bloom"
)

func testFilter(t *testing.T, id uint32, bitLength uint32, hashFuncs uint32, keys ...string) *bloom.Filter {
	t.Helper()
	f, err := bloom.New(id, bitLength, 3, hashFuncs)
	require.NoError(t, err)
	for _, k := range keys {
		f.Add(k)
	}

	return f
}

func TestMessageSize(t *testing.T) {
	assert.Equal(t, 278, MessageSize)
}

func TestMessageRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		name string
		msg  *Message
	}{{
		name: "full filter with stats",
		msg: &Message{
			GroupID: 5,
			Filter:  testFilter(t, 1, 1024, 2, "macA", "macB"),
			Stats: []LinkStat{
				{Src: 1, Dst: 2, Bytes: 1 << 40},
				{Src: 1, Dst: 3, Bytes: 17},
			},
		},
	}, {
		name: "short filter, single hash function",
		msg: &Message{
			GroupID: 0xfffffffe,
			Filter:  testFilter(t, 42, 100, 1, "00:16:3e:00:00:01"),
		},
	}, {
		name: "all stat entries",
		msg: &Message{
			GroupID: 1,
			Filter:  testFilter(t, 7, 8, 2, "x"),
			Stats:   make([]LinkStat, MaxStatEntries),
		},
	}} {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.msg.Encode()
			require.NoError(t, err)
			require.Len(t, b, MessageSize)

			got, err := Decode(b)
			require.NoError(t, err)

			assert.Equal(t, tt.msg.GroupID, got.GroupID)
			assert.True(t, tt.msg.Filter.Equal(got.Filter), "got %v, want %v", got.Filter, tt.msg.Filter)
			if d := cmp.Diff(tt.msg.Stats, got.Stats); d != "" {
				t.Errorf("stats differ (-want +got):\n%s", d)
			}
		})
	}
}

func TestMessageLayout(t *testing.T) {
	f := testFilter(t, 0x01020304, 16, 2)
	require.NoError(t, f.SetBits([]byte{0xaa, 0x55}))

	b, err := (&Message{
		GroupID: 0x0a0b0c0d,
		Filter:  f,
		Stats:   []LinkStat{{Src: 9, Dst: 10, Bytes: 11}},
	}).Encode()
	require.NoError(t, err)

	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0d}, b[0:4])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, b[4:8])
	assert.Equal(t, uint32(16), binary.BigEndian.Uint32(b[8:12]))
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(b[12:14]))
	assert.Equal(t, []byte{0xaa, 0x55, 0}, b[14:17])
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(b[142:146]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(b[146:150]))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(b[150:154]))
	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(b[154:158]))
	assert.Equal(t, uint64(11), binary.BigEndian.Uint64(b[158:166]))
}

func TestEncodeErrors(t *testing.T) {
	_, err := (&Message{}).Encode()
	assert.True(t, errors.Is(err, ErrMessageFormat))

	_, err = (&Message{
		Filter: testFilter(t, 1, 1024, 2),
		Stats:  make([]LinkStat, MaxStatEntries+1),
	}).Encode()
	assert.True(t, errors.Is(err, ErrMessageFormat))
}

func TestDecodeErrors(t *testing.T) {
	valid, err := (&Message{GroupID: 1, Filter: testFilter(t, 1, 1024, 2)}).Encode()
	require.NoError(t, err)

	patch := func(off int, v uint32) []byte {
		b := append([]byte(nil), valid...)
		binary.BigEndian.PutUint32(b[off:], v)
		return b
	}

	for _, tt := range []struct {
		name string
		b    []byte
		want error
	}{
		{"empty", nil, ErrMessageSize},
		{"short", valid[:MessageSize-1], ErrMessageSize},
		{"long", append(append([]byte(nil), valid...), 0), ErrMessageSize},
		{"zero bit length", patch(8, 0), ErrMessageFormat},
		{"bit length over capacity", patch(8, bloom.MaxBitLength+1), ErrMessageFormat},
		{"no hash functions", patch(142, 0), ErrMessageFormat},
		{"too many hash functions", patch(142, 3), ErrMessageFormat},
		{"too many stats", patch(146, MaxStatEntries+1), ErrMessageFormat},
	} {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.b)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
