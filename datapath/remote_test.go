package datapath

import (
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	localIP = netip.MustParseAddr("10.0.0.1")
	peerIP  = netip.MustParseAddr("10.0.0.2")
)

func testFrame() []byte {
	f := make([]byte, 60)
	copy(f, []byte{
		0x02, 0, 0, 0, 0, 0xbb, // dst
		0x02, 0, 0, 0, 0, 0xaa, // src
		0x86, 0xdd,
	})

	for i := EthHeaderLen; i < len(f); i++ {
		f[i] = byte(i)
	}

	return f
}

func TestChecksum(t *testing.T) {
	h := []byte{
		0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
		0x00, 0x00, 0xc0, 0xa8, 0x00, 0x01, 0xc0, 0xa8, 0x00, 0xc7,
	}

	assert.Equal(t, uint16(0xb861), checksum(h))
	binary.BigEndian.PutUint16(h[10:], 0xb861)
	assert.Equal(t, uint16(0), checksum(h))
}

func TestParseProfile(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    Profile
		wantErr bool
	}{
		{"", ProfileIP, false},
		{"ip", ProfileIP, false},
		{"udp", ProfileUDP, false},
		{"gre", 0, true},
	} {
		p, err := ParseProfile(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrProfile))
			continue
		}

		require.NoError(t, err)
		assert.Equal(t, tt.want, p)
		if tt.in != "" {
			assert.Equal(t, tt.in, p.String())
		}
	}
}

func TestEncapsulateIP(t *testing.T) {
	frame := testFrame()
	p := NewPacket(frame)
	e := Encapsulator{LocalIP: localIP}
	require.NoError(t, e.Encapsulate(p, peerIP))

	b := p.Bytes()
	require.Len(t, b, len(frame)+36)
	assert.Equal(t, 36, ProfileIP.Overhead())

	assert.Equal(t, frame[:12], b[:12])
	assert.Equal(t, uint16(EtherTypeIPv4), binary.BigEndian.Uint16(b[12:]))

	ip := b[EthHeaderLen : EthHeaderLen+IPHeaderLen]
	assert.Equal(t, byte(0x45), ip[0])
	assert.Equal(t, uint16(IPHeaderLen+PadLen+len(frame)), binary.BigEndian.Uint16(ip[2:]))
	assert.Equal(t, []byte{0, 0, 0, 0}, ip[4:8])
	assert.Equal(t, byte(RemoteTTL), ip[8])
	assert.Equal(t, byte(ProtoRemote), ip[9])
	assert.Equal(t, []byte{10, 0, 0, 1}, ip[12:16])
	assert.Equal(t, []byte{10, 0, 0, 2}, ip[16:20])
	assert.Equal(t, uint16(0), checksum(ip))

	assert.Equal(t, []byte{0, 0}, b[34:36])
	assert.Equal(t, frame, b[36:])

	src, err := e.Decapsulate(p)
	require.NoError(t, err)
	assert.Equal(t, localIP, src)
	assert.Equal(t, frame, p.Bytes())
}

func TestEncapsulateUDP(t *testing.T) {
	frame := testFrame()
	p := NewPacket(frame)
	e := Encapsulator{LocalIP: localIP, Profile: ProfileUDP, UDPPort: 7000}
	require.NoError(t, e.Encapsulate(p, peerIP))

	b := p.Bytes()
	require.Len(t, b, len(frame)+42)

	ip := b[EthHeaderLen : EthHeaderLen+IPHeaderLen]
	assert.Equal(t, byte(ProtoUDP), ip[9])
	assert.Equal(t, uint16(IPHeaderLen+UDPHeaderLen+len(frame)), binary.BigEndian.Uint16(ip[2:]))

	udp := b[34:42]
	assert.Equal(t, uint16(7000), binary.BigEndian.Uint16(udp[0:]))
	assert.Equal(t, uint16(7000), binary.BigEndian.Uint16(udp[2:]))
	assert.Equal(t, uint16(UDPHeaderLen+len(frame)), binary.BigEndian.Uint16(udp[4:]))
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(udp[6:]))

	src, err := e.Decapsulate(p)
	require.NoError(t, err)
	assert.Equal(t, localIP, src)
	assert.Equal(t, frame, p.Bytes())
}

func TestEncapsulateErrors(t *testing.T) {
	e := Encapsulator{LocalIP: localIP}

	err := e.Encapsulate(NewPacket(testFrame()), netip.MustParseAddr("::1"))
	assert.True(t, errors.Is(err, ErrAddress))

	err = Encapsulator{}.Encapsulate(NewPacket(testFrame()), peerIP)
	assert.True(t, errors.Is(err, ErrAddress))

	err = e.Encapsulate(NewPacket(make([]byte, 10)), peerIP)
	assert.True(t, errors.Is(err, ErrShortPacket))
}

func TestDecapsulateErrors(t *testing.T) {
	encap := func(e Encapsulator) []byte {
		p := NewPacket(testFrame())
		require.NoError(t, e.Encapsulate(p, peerIP))
		return p.Bytes()
	}

	ipEncap := Encapsulator{LocalIP: localIP}
	udpEncap := Encapsulator{LocalIP: localIP, Profile: ProfileUDP}

	corrupt := encap(ipEncap)
	corrupt[EthHeaderLen+15] ^= 0xff

	notIP := encap(ipEncap)
	notIP[12] = 0x86

	otherPort := encap(Encapsulator{LocalIP: localIP, Profile: ProfileUDP, UDPPort: 1})

	for _, tt := range []struct {
		name  string
		encap Encapsulator
		b     []byte
		want  error
	}{
		{"short", ipEncap, make([]byte, 40), ErrShortPacket},
		{"not ipv4", ipEncap, notIP, ErrNotIPv4},
		{"plain frame", ipEncap, testFrame(), ErrNotIPv4},
		{"other profile", udpEncap, encap(ipEncap), ErrNotRemote},
		{"other udp port", udpEncap, otherPort, ErrNotRemote},
		{"checksum", ipEncap, corrupt, ErrChecksum},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.encap.Decapsulate(NewPacket(tt.b))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
