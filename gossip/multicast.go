package gossip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	DefaultPort = 9876
	DefaultTTL  = 1
	DefaultBase = "239.192.0.0"
)

var (
	ErrGroupAddress = errors.New("invalid multicast group address")

	adminScoped = netip.MustParsePrefix("239.0.0.0/8")
)

// GroupAddress derives the multicast address of a gossip group by adding
// the group id to base. When base is administratively scoped
// (239.0.0.0/8), the result has to stay inside that block.
func GroupAddress(base netip.Addr, groupID uint32) (netip.Addr, error) {
	if !base.Is4() || !base.IsMulticast() {
		return netip.Addr{}, fmt.Errorf("%w: base %v is not an IPv4 multicast address", ErrGroupAddress, base)
	}

	b := base.As4()
	v := binary.BigEndian.Uint32(b[:])
	sum := v + groupID
	if sum < v {
		return netip.Addr{}, fmt.Errorf("%w: group %d overflows base %v", ErrGroupAddress, groupID, base)
	}

	binary.BigEndian.PutUint32(b[:], sum)
	a := netip.AddrFrom4(b)
	if !a.IsMulticast() || adminScoped.Contains(base) && !adminScoped.Contains(a) {
		return netip.Addr{}, fmt.Errorf("%w: group %d leaves the scope of base %v", ErrGroupAddress, groupID, base)
	}

	return a, nil
}

// MulticastOptions configure the IP multicast transport.
type MulticastOptions struct {

	// Group is the multicast address of the gossip group, see
	// GroupAddress.
	Group netip.Addr

	// Port is the UDP port of the group. Defaults to DefaultPort.
	Port int

	// Interface is the name of the network interface used to join the
	// group and to send. The system default is used when empty.
	Interface string

	// TTL of the sent datagrams. Defaults to DefaultTTL, keeping the
	// gossip on the local link.
	TTL int

	// Loopback enables receiving the datagrams sent by the same host.
	Loopback bool
}

// MulticastTransport sends and receives gossip over UDP to an IP
// multicast group.
type MulticastTransport struct {
	options MulticastOptions
	group   *net.UDPAddr
	ifi     *net.Interface
}

func NewMulticastTransport(o MulticastOptions) (*MulticastTransport, error) {
	if !o.Group.Is4() || !o.Group.IsMulticast() {
		return nil, fmt.Errorf("%w: %v", ErrGroupAddress, o.Group)
	}

	if o.Port <= 0 {
		o.Port = DefaultPort
	}

	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}

	t := &MulticastTransport{
		options: o,
		group:   net.UDPAddrFromAddrPort(netip.AddrPortFrom(o.Group, uint16(o.Port))),
	}

	if o.Interface != "" {
		ifi, err := net.InterfaceByName(o.Interface)
		if err != nil {
			return nil, fmt.Errorf("multicast interface %s: %w", o.Interface, err)
		}

		t.ifi = ifi
	}

	return t, nil
}

// Group returns the UDP address of the gossip group.
func (t *MulticastTransport) Group() *net.UDPAddr { return t.group }

type multicastSender struct {
	conn *ipv4.PacketConn
	dst  net.Addr
}

func (s *multicastSender) Send(b []byte) error {
	_, err := s.conn.WriteTo(b, nil, s.dst)
	return err
}

func (s *multicastSender) Close() error { return s.conn.Close() }

// DialSender opens the outbound socket, sending to the group address.
func (t *MulticastTransport) DialSender(ctx context.Context) (SendConn, error) {
	var lc net.ListenConfig
	c, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(c)
	if err := t.setup(p); err != nil {
		p.Close()
		return nil, err
	}

	return &multicastSender{conn: p, dst: t.group}, nil
}

func (t *MulticastTransport) setup(p *ipv4.PacketConn) error {
	if err := p.SetMulticastTTL(t.options.TTL); err != nil {
		return fmt.Errorf("failed to set multicast TTL: %w", err)
	}

	if err := p.SetMulticastLoopback(t.options.Loopback); err != nil {
		return fmt.Errorf("failed to set multicast loopback: %w", err)
	}

	if t.ifi != nil {
		if err := p.SetMulticastInterface(t.ifi); err != nil {
			return fmt.Errorf("failed to set multicast interface: %w", err)
		}
	}

	return nil
}

type multicastReceiver struct {
	conn  *ipv4.PacketConn
	ifi   *net.Interface
	group net.Addr
	once  sync.Once
	err   error
}

func (r *multicastReceiver) ReadMessage(b []byte) (int, error) {
	n, _, _, err := r.conn.ReadFrom(b)
	return n, err
}

func (r *multicastReceiver) SetReadDeadline(t time.Time) error {
	return r.conn.SetReadDeadline(t)
}

// Close leaves the group and closes the socket. It can be called more
// than once, also concurrently with ReadMessage.
func (r *multicastReceiver) Close() error {
	r.once.Do(func() {
		lerr := r.conn.LeaveGroup(r.ifi, r.group)
		r.err = errors.Join(lerr, r.conn.Close())
	})

	return r.err
}

// ListenReceiver binds the group port on the wildcard address and joins
// the group.
func (t *MulticastTransport) ListenReceiver(ctx context.Context) (ReceiveConn, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	c, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", t.options.Port))
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(c)
	if err := p.JoinGroup(t.ifi, t.group); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to join multicast group %v: %w", t.group, err)
	}

	if err := p.SetMulticastLoopback(t.options.Loopback); err != nil {
		p.LeaveGroup(t.ifi, t.group)
		p.Close()
		return nil, fmt.Errorf("failed to set multicast loopback: %w", err)
	}

	return &multicastReceiver{conn: p, ifi: t.ifi, group: t.group}, nil
}
