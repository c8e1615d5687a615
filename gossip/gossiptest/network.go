// Package gossiptest provides an in-memory gossip network, delivering every
// sent datagram to every listening receiver, the sender's own included, the
// way IP multicast with loopback does.
package gossiptest

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/lcswitch/bfgossip/gossip"
)

const receiveBuffer = 64

var ErrWaitTimeout = errors.New("timeout")

type Network struct {
	mu        sync.Mutex
	receivers map[*receiver]struct{}
	sent      [][]byte
	sendErr   error
	changed   chan struct{}
}

func NewNetwork() *Network {
	return &Network{
		receivers: make(map[*receiver]struct{}),
		changed:   make(chan struct{}),
	}
}

// notify wakes up the waiters. It must be called with the lock held.
func (n *Network) notify() {
	close(n.changed)
	n.changed = make(chan struct{})
}

// Transport returns a transport attached to the network.
func (n *Network) Transport() *Transport {
	return &Transport{network: n}
}

// FailSends makes every following send fail with err, or succeed again
// when err is nil.
func (n *Network) FailSends(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// Inject delivers b to all receivers without recording it as sent.
func (n *Network) Inject(b []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliver(b)
}

func (n *Network) deliver(b []byte) {
	for r := range n.receivers {
		select {
		case r.incoming <- bytes.Clone(b):
		default:
		}
	}
}

func (n *Network) send(b []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}

	n.sent = append(n.sent, bytes.Clone(b))
	n.deliver(b)
	n.notify()
	return nil
}

// Sent returns copies of the datagrams sent so far.
func (n *Network) Sent() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := make([][]byte, len(n.sent))
	for i, b := range n.sent {
		s[i] = bytes.Clone(b)
	}

	return s
}

// Receivers returns the number of listening receivers.
func (n *Network) Receivers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.receivers)
}

func (n *Network) waitFor(cond func() bool, to time.Duration) error {
	timeout := time.After(to)
	for {
		n.mu.Lock()
		ok := cond()
		changed := n.changed
		n.mu.Unlock()

		if ok {
			return nil
		}

		select {
		case <-changed:
		case <-timeout:
			return ErrWaitTimeout
		}
	}
}

// WaitForSent waits until at least k datagrams were sent.
func (n *Network) WaitForSent(k int, to time.Duration) error {
	return n.waitFor(func() bool { return len(n.sent) >= k }, to)
}

// WaitForReceivers waits until exactly k receivers are listening.
func (n *Network) WaitForReceivers(k int, to time.Duration) error {
	return n.waitFor(func() bool { return len(n.receivers) == k }, to)
}

// Transport implements gossip.Transport on a Network.
type Transport struct {
	network *Network

	// DialErr and ListenErr, when set, make opening the connections
	// fail.
	DialErr   error
	ListenErr error
}

var _ gossip.Transport = (*Transport)(nil)

type sender struct{ network *Network }

func (s sender) Send(b []byte) error { return s.network.send(b) }
func (s sender) Close() error        { return nil }

func (t *Transport) DialSender(context.Context) (gossip.SendConn, error) {
	if t.DialErr != nil {
		return nil, t.DialErr
	}

	return sender{t.network}, nil
}

type receiver struct {
	network  *Network
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	deadline time.Time
}

func (t *Transport) ListenReceiver(context.Context) (gossip.ReceiveConn, error) {
	if t.ListenErr != nil {
		return nil, t.ListenErr
	}

	r := &receiver{
		network:  t.network,
		incoming: make(chan []byte, receiveBuffer),
		closed:   make(chan struct{}),
	}

	t.network.mu.Lock()
	t.network.receivers[r] = struct{}{}
	t.network.notify()
	t.network.mu.Unlock()
	return r, nil
}

func (r *receiver) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadline = t
	return nil
}

func (r *receiver) ReadMessage(b []byte) (int, error) {
	r.mu.Lock()
	d := r.deadline
	r.mu.Unlock()

	var timeout <-chan time.Time
	if !d.IsZero() {
		t := time.NewTimer(time.Until(d))
		defer t.Stop()
		timeout = t.C
	}

	select {
	case m := <-r.incoming:
		return copy(b, m), nil
	case <-timeout:
		return 0, os.ErrDeadlineExceeded
	case <-r.closed:
		return 0, net.ErrClosed
	}
}

func (r *receiver) Close() error {
	r.once.Do(func() {
		close(r.closed)
		r.network.mu.Lock()
		delete(r.network.receivers, r)
		r.network.notify()
		r.network.mu.Unlock()
	})

	return nil
}
