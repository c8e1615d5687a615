package datapath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Profile selects the outer header of the remote encapsulation.
type Profile int

const (
	// ProfileIP carries the frame in an IPv4 packet of protocol
	// ProtoRemote, after a 2 byte pad.
	ProfileIP Profile = iota

	// ProfileUDP carries the frame in a UDP datagram, for networks
	// that filter unknown IP protocols.
	ProfileUDP
)

const (
	EthHeaderLen  = 14
	IPHeaderLen   = 20
	PadLen        = 2
	UDPHeaderLen  = 8
	EtherTypeIPv4 = 0x0800

	// ProtoRemote is the IP protocol number of ProfileIP, from the range
	// reserved for experimentation.
	ProtoRemote = 253
	ProtoUDP    = 17

	RemoteTTL = 255

	DefaultUDPPort = 4790
)

var (
	ErrShortPacket = errors.New("packet too short")
	ErrNotIPv4     = errors.New("not an IPv4 packet")
	ErrNotRemote   = errors.New("not a remote encapsulated packet")
	ErrChecksum    = errors.New("invalid IP header checksum")
	ErrAddress     = errors.New("invalid address")
	ErrProfile     = errors.New("unknown encapsulation profile")
)

func (p Profile) String() string {
	switch p {
	case ProfileIP:
		return "ip"
	case ProfileUDP:
		return "udp"
	default:
		return "unknown"
	}
}

func ParseProfile(s string) (Profile, error) {
	switch s {
	case "ip", "":
		return ProfileIP, nil
	case "udp":
		return ProfileUDP, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrProfile, s)
	}
}

func (p Profile) proto() uint8 {
	if p == ProfileUDP {
		return ProtoUDP
	}

	return ProtoRemote
}

func (p Profile) innerLen() int {
	if p == ProfileUDP {
		return UDPHeaderLen
	}

	return PadLen
}

// Overhead returns the number of bytes added by the encapsulation.
func (p Profile) Overhead() int {
	return EthHeaderLen + IPHeaderLen + p.innerLen()
}

// Encapsulator wraps frames towards remote switches.
type Encapsulator struct {
	LocalIP netip.Addr
	Profile Profile

	// UDPPort is the source and destination port of ProfileUDP.
	// Defaults to DefaultUDPPort.
	UDPPort uint16
}

func (e Encapsulator) udpPort() uint16 {
	if e.UDPPort == 0 {
		return DefaultUDPPort
	}

	return e.UDPPort
}

// checksum is the internet checksum of RFC 1071.
func checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}

	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}

	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}

	return ^uint16(sum)
}

// Encapsulate prepends an outer Ethernet header, copied from the frame's
// own with the type set to IPv4, an IPv4 header from the local IP to dst,
// and the pad or UDP header of the profile.
func (e Encapsulator) Encapsulate(p *Packet, dst netip.Addr) error {
	if !e.LocalIP.Is4() || !dst.Is4() {
		return fmt.Errorf("%w: %v -> %v", ErrAddress, e.LocalIP, dst)
	}

	if p.Len() < EthHeaderLen {
		return fmt.Errorf("%w: %d bytes", ErrShortPacket, p.Len())
	}

	frameLen := p.Len()
	inner := p.Push(e.Profile.innerLen())
	if e.Profile == ProfileUDP {
		binary.BigEndian.PutUint16(inner[0:], e.udpPort())
		binary.BigEndian.PutUint16(inner[2:], e.udpPort())
		binary.BigEndian.PutUint16(inner[4:], uint16(UDPHeaderLen+frameLen))
	}

	ip := p.Push(IPHeaderLen)
	ip[0] = 4<<4 | IPHeaderLen/4
	binary.BigEndian.PutUint16(ip[2:], uint16(IPHeaderLen+len(inner)+frameLen))
	ip[8] = RemoteTTL
	ip[9] = e.Profile.proto()
	src, dstb := e.LocalIP.As4(), dst.As4()
	copy(ip[12:16], src[:])
	copy(ip[16:20], dstb[:])
	binary.BigEndian.PutUint16(ip[10:], checksum(ip))

	eth := p.Push(EthHeaderLen)
	copy(eth, p.Bytes()[e.Profile.Overhead():][:EthHeaderLen])
	binary.BigEndian.PutUint16(eth[12:], EtherTypeIPv4)
	return nil
}

// Decapsulate strips the headers added by Encapsulate with the same
// profile and returns the source IP of the outer header.
func (e Encapsulator) Decapsulate(p *Packet) (netip.Addr, error) {
	b := p.Bytes()
	if len(b) < e.Profile.Overhead()+EthHeaderLen {
		return netip.Addr{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}

	if binary.BigEndian.Uint16(b[12:]) != EtherTypeIPv4 {
		return netip.Addr{}, ErrNotIPv4
	}

	ip := b[EthHeaderLen : EthHeaderLen+IPHeaderLen]
	if ip[0] != 4<<4|IPHeaderLen/4 {
		return netip.Addr{}, fmt.Errorf("%w: version and length 0x%02x", ErrNotIPv4, ip[0])
	}

	if ip[9] != e.Profile.proto() {
		return netip.Addr{}, fmt.Errorf("%w: protocol %d", ErrNotRemote, ip[9])
	}

	if e.Profile == ProfileUDP {
		udp := b[EthHeaderLen+IPHeaderLen:]
		if binary.BigEndian.Uint16(udp[2:]) != e.udpPort() {
			return netip.Addr{}, fmt.Errorf("%w: udp port %d", ErrNotRemote, binary.BigEndian.Uint16(udp[2:]))
		}
	}

	if checksum(ip) != 0 {
		return netip.Addr{}, ErrChecksum
	}

	src := netip.AddrFrom4([4]byte(ip[12:16]))
	return src, p.Pull(e.Profile.Overhead())
}
