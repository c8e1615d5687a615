package bloom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, tt := range []struct {
		name      string
		bitLength uint32
		hashFuncs uint32
		wantErr   error
		wantBytes int
	}{{
		name:      "default",
		bitLength: DefaultBitLength,
		hashFuncs: DefaultHashFuncs,
		wantBytes: 128,
	}, {
		name:      "single hash function",
		bitLength: 64,
		hashFuncs: 1,
		wantBytes: 8,
	}, {
		name:      "length not a multiple of eight",
		bitLength: 13,
		hashFuncs: 2,
		wantBytes: 2,
	}, {
		name:      "too many hash functions",
		bitLength: 1024,
		hashFuncs: 3,
		wantErr:   ErrHashFuncs,
	}, {
		name:      "no hash functions",
		bitLength: 1024,
		hashFuncs: 0,
		wantErr:   ErrHashFuncs,
	}, {
		name:      "zero length",
		bitLength: 0,
		hashFuncs: 2,
		wantErr:   ErrBitLength,
	}, {
		name:      "exceeds wire capacity",
		bitLength: MaxBitLength + 1,
		hashFuncs: 2,
		wantErr:   ErrBitLength,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(3, tt.bitLength, 5, tt.hashFuncs)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, f)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, uint32(3), f.ID())
			assert.Equal(t, uint16(5), f.Port())
			assert.Equal(t, tt.bitLength, f.BitLength())
			assert.Equal(t, tt.hashFuncs, f.HashFuncs())
			assert.Len(t, f.Bytes(), tt.wantBytes)
			assert.Zero(t, f.PopCount())
		})
	}
}

func TestNoFalseNegatives(t *testing.T) {
	for _, bitLength := range []uint32{8, 13, 256, 1024} {
		for hashFuncs := uint32(1); hashFuncs <= uint32(len(HashFamilies)); hashFuncs++ {
			t.Run(fmt.Sprintf("%d bits %d funcs", bitLength, hashFuncs), func(t *testing.T) {
				f, err := New(1, bitLength, 0, hashFuncs)
				require.NoError(t, err)

				var added []string
				for i := range 200 {
					k := fmt.Sprintf("00:16:3e:%02x:%02x:%02x", i, i*7%256, i*13%256)
					f.Add(k)
					added = append(added, k)

					for _, ak := range added {
						if !f.Check(ak) {
							t.Fatalf("false negative for %q after %d adds", ak, len(added))
						}
					}
				}
			})
		}
	}
}

func TestAddIdempotent(t *testing.T) {
	f, err := New(1, 1024, 0, 2)
	require.NoError(t, err)

	f.Add("macA")
	once := f.Bytes()
	f.Add("macA")
	assert.Equal(t, once, f.Bytes())
	assert.LessOrEqual(t, f.PopCount(), 2)
}

func TestCheckEmpty(t *testing.T) {
	f, err := New(1, 1024, 0, 2)
	require.NoError(t, err)

	assert.False(t, f.Check("macA"))
	assert.False(t, f.Check(""))
}

func TestNilFilter(t *testing.T) {
	var f *Filter
	assert.NotPanics(t, func() { f.Add("macA") })
	assert.False(t, f.Check("macA"))
	assert.Nil(t, f.Clone())
	assert.Zero(t, f.PopCount())
	assert.Equal(t, "<nil>", f.String())
}

func TestDestroy(t *testing.T) {
	f, err := New(1, 1024, 0, 2)
	require.NoError(t, err)

	f.Add("macA")
	f.Destroy()
	assert.False(t, f.Check("macA"))
	assert.NotPanics(t, func() { f.Add("macB") })
	assert.Zero(t, f.HashFuncs())
}

func TestBitLayout(t *testing.T) {
	f, err := New(1, 64, 0, 1)
	require.NoError(t, err)

	k := "a"
	i := SAXHash(k) % 64
	f.Add(k)

	b := f.Bytes()
	assert.Equal(t, byte(1<<(i%8)), b[i/8])
	assert.Equal(t, 1, f.PopCount())
}

func TestHashFunctions(t *testing.T) {
	assert.Equal(t, uint32(0), SAXHash(""))
	assert.Equal(t, uint32(0), SDBMHash(""))

	// single byte: both reduce to the byte value
	assert.Equal(t, uint32('a'), SAXHash("a"))
	assert.Equal(t, uint32('a'), SDBMHash("a"))

	assert.Equal(t, SAXHash("macA"), SAXHash("macA"))
	assert.NotEqual(t, SAXHash("ab"), SAXHash("ba"))
	assert.NotEqual(t, SDBMHash("ab"), SDBMHash("ba"))

	// embedded NUL bytes are part of the key
	assert.NotEqual(t, SDBMHash("a\x00b"), SDBMHash("a"))
}

func TestHashDistribution(t *testing.T) {
	const bitLength = 1024
	for name, h := range map[string]HashFunc{"sax": SAXHash, "sdbm": SDBMHash} {
		t.Run(name, func(t *testing.T) {
			seen := make(map[uint32]bool)
			for i := range 512 {
				seen[h(fmt.Sprintf("key-%d", i))%bitLength] = true
			}

			// 512 keys into 1024 buckets, a uniform hash fills roughly 400
			assert.Greater(t, len(seen), 250)
		})
	}
}

func TestCloneAndEqual(t *testing.T) {
	f, err := New(4, 1024, 2, 2)
	require.NoError(t, err)
	f.Add("macA")

	c := f.Clone()
	assert.True(t, f.Equal(c))

	c.Add("macB")
	assert.False(t, f.Equal(c))
	assert.False(t, f.Check("macB") && !f.Check("macA"))

	c = f.Clone()
	c.SetPort(9)
	assert.False(t, f.Equal(c))

	g, err := New(4, 1024, 2, 1)
	require.NoError(t, err)
	require.NoError(t, g.SetBits(f.Bytes()))
	assert.False(t, f.Equal(g), "hash function count is part of the state")

	assert.False(t, f.Equal(nil))
	assert.True(t, (*Filter)(nil).Equal(nil))
}

func TestCopyFrom(t *testing.T) {
	src, err := New(4, 512, 2, 1)
	require.NoError(t, err)
	src.Add("macA")

	dst, err := New(9, 1024, 7, 2)
	require.NoError(t, err)
	dst.CopyFrom(src)
	assert.True(t, dst.Equal(src))

	src.Add("macB")
	assert.False(t, dst.Equal(src))
}

func TestSetBits(t *testing.T) {
	f, err := New(1, 16, 0, 2)
	require.NoError(t, err)

	require.NoError(t, f.SetBits([]byte{0xff, 0x01}))
	assert.Equal(t, []byte{0xff, 0x01}, f.Bytes())
	assert.Equal(t, 9, f.PopCount())

	err = f.SetBits(make([]byte, 3))
	assert.True(t, errors.Is(err, ErrBits))

	b := f.Bytes()
	b[0] = 0
	assert.Equal(t, byte(0xff), f.Bytes()[0], "Bytes returns a copy")
}
