package gossip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/memberlist"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultMemberlistPort is the default bind port of the memberlist
	// transport.
	DefaultMemberlistPort = 9990

	// DefaultLeaveTimeout is the timeout to wait for responses for a
	// leave message sent by this instance to its peers.
	DefaultLeaveTimeout = 5 * time.Second

	// DefaultJoinTries is the number of attempts to join the known
	// members, with exponential backoff between them.
	DefaultJoinTries = 5

	defaultIncomingBuffer = 64
)

// MemberlistOptions configure the memberlist transport.
type MemberlistOptions struct {

	// Name of the local member, unique in the cluster. Defaults to the
	// hostname.
	Name string

	// BindAddr and BindPort of the memberlist listeners. With BindPort
	// 0, a free port is taken.
	BindAddr string
	BindPort int

	// Join lists host:port addresses of known members.
	Join []string

	// JoinTries defaults to DefaultJoinTries.
	JoinTries uint

	LeaveTimeout time.Duration

	// IncomingBuffer bounds the received messages not yet read by the
	// receive loop. Further messages are dropped.
	IncomingBuffer int
}

// mlDelegate is a memberlist delegate
type mlDelegate struct {
	incoming chan []byte
}

// NodeMeta implements a memberlist delegate
func (d *mlDelegate) NodeMeta(limit int) []byte { return nil }

// NotifyMsg implements a memberlist delegate. The buffer is reused by
// memberlist after the call, so it is copied.
func (d *mlDelegate) NotifyMsg(m []byte) {
	b := make([]byte, len(m))
	copy(b, m)

	// assuming a buffered channel, or the message is dropped
	select {
	case d.incoming <- b:
	default:
		log.Debug("MEMBERLIST: incoming buffer full, dropping message")
	}
}

// GetBroadcasts implements a memberlist delegate
func (d *mlDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements a memberlist delegate
func (d *mlDelegate) LocalState(bool) []byte { return nil }

// MergeRemoteState implements a memberlist delegate
func (d *mlDelegate) MergeRemoteState(buf []byte, join bool) {}

// MemberlistTransport carries the gossip over a hashicorp/memberlist
// cluster, for networks without IP multicast. A message is sent best
// effort, over UDP, to every other member.
type MemberlistTransport struct {
	mlist        *memberlist.Memberlist
	incoming     chan []byte
	leaveTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewMemberlistTransport creates the local member and joins the known
// members.
func NewMemberlistTransport(o MemberlistOptions) (*MemberlistTransport, error) {
	c := memberlist.DefaultLocalConfig()
	if o.Name != "" {
		c.Name = o.Name
	}

	if o.BindAddr != "" {
		c.BindAddr = o.BindAddr
		c.AdvertiseAddr = o.BindAddr
	}

	c.BindPort = o.BindPort
	c.AdvertisePort = o.BindPort

	if o.LeaveTimeout <= 0 {
		o.LeaveTimeout = DefaultLeaveTimeout
	}

	if o.JoinTries == 0 {
		o.JoinTries = DefaultJoinTries
	}

	if o.IncomingBuffer <= 0 {
		o.IncomingBuffer = defaultIncomingBuffer
	}

	incoming := make(chan []byte, o.IncomingBuffer)
	c.Delegate = &mlDelegate{incoming: incoming}
	c.LogOutput = log.StandardLogger().WriterLevel(log.DebugLevel)

	ml, err := memberlist.Create(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	if len(o.Join) > 0 {
		_, err := backoff.Retry(context.Background(), func() (int, error) {
			n, err := ml.Join(o.Join)
			if err != nil {
				log.Infof("MEMBERLIST: failed to join, retry with backoff: %v", err)
			}

			return n, err
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(o.JoinTries))
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("failed to join memberlist: %w", err)
		}
	}

	log.Infof("MEMBERLIST: %s joined %d members", c.Name, ml.NumMembers())
	return &MemberlistTransport{
		mlist:        ml,
		incoming:     incoming,
		leaveTimeout: o.LeaveTimeout,
	}, nil
}

// LocalAddr returns the advertised address of the local member.
func (t *MemberlistTransport) LocalAddr() string {
	n := t.mlist.LocalNode()
	return net.JoinHostPort(n.Addr.String(), fmt.Sprint(n.Port))
}

// Members returns the number of live members, including the local one.
func (t *MemberlistTransport) Members() int {
	return t.mlist.NumMembers()
}

type memberlistSender struct {
	mlist *memberlist.Memberlist
}

// Send sends b to all members but the local one. It returns the errors of
// the failed members, joined.
func (s *memberlistSender) Send(b []byte) error {
	local := s.mlist.LocalNode().Name

	var errs []error
	for _, n := range s.mlist.Members() {
		if n.Name == local {
			continue
		}

		if err := s.mlist.SendBestEffort(n, b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}

	return errors.Join(errs...)
}

func (s *memberlistSender) Close() error { return nil }

func (t *MemberlistTransport) DialSender(context.Context) (SendConn, error) {
	return &memberlistSender{mlist: t.mlist}, nil
}

type memberlistReceiver struct {
	incoming <-chan []byte
	mu       sync.Mutex
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func (r *memberlistReceiver) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadline = t
	return nil
}

func (r *memberlistReceiver) ReadMessage(b []byte) (int, error) {
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

func (r *memberlistReceiver) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

// ListenReceiver returns the messages sent by the other members. Only one
// receiver should read at a time.
func (t *MemberlistTransport) ListenReceiver(context.Context) (ReceiveConn, error) {
	return &memberlistReceiver{incoming: t.incoming, closed: make(chan struct{})}, nil
}

// Close leaves the cluster and shuts the local member down.
func (t *MemberlistTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.mlist.Leave(t.leaveTimeout); err != nil {
			log.Errorf("MEMBERLIST: failed to leave: %v", err)
		}

		t.closeErr = t.mlist.Shutdown()
	})

	return t.closeErr
}
