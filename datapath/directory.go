package datapath

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"go4.org/netipx"

	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/logging"
	"github.com/lcswitch/bfgossip/metrics"
)

var (
	ErrUnknownKey  = errors.New("key not found in any remote filter")
	ErrNoPeerIP    = errors.New("no address for switch")
	ErrUnknownPeer = errors.New("packet from unknown peer")
)

// Decision is the forwarding decision handed to the action engine for a
// remote destination.
type Decision struct {
	SwitchID uint32
	Port     uint16
	RemoteIP netip.Addr
}

type Options struct {

	// Peers maps switch ids to the IPv4 address frames are tunneled
	// to.
	Peers map[uint32]netip.Addr

	Encapsulator Encapsulator

	Log     logging.Logger
	Metrics metrics.Metrics
}

// Directory is the forwarding plane's copy of the remote filters. It
// receives the filters that changed the group directory table as a
// gossip relay target, and resolves destination keys to remote switches.
type Directory struct {
	mu      sync.RWMutex
	filters map[uint32]*bloom.Filter
	ids     []uint32

	peers   map[uint32]netip.Addr
	peerSet *netipx.IPSet
	encap   Encapsulator
	log     logging.Logger
	metrics metrics.Metrics
}

// NewDirectory creates an empty directory. It fails when a peer address
// is not IPv4.
func NewDirectory(o Options) (*Directory, error) {
	var b netipx.IPSetBuilder
	peers := make(map[uint32]netip.Addr, len(o.Peers))
	for id, ip := range o.Peers {
		if !ip.Is4() {
			return nil, fmt.Errorf("%w: switch %d: %v", ErrAddress, id, ip)
		}

		peers[id] = ip
		b.Add(ip)
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	return &Directory{
		filters: make(map[uint32]*bloom.Filter),
		peers:   peers,
		peerSet: set,
		encap:   o.Encapsulator,
		log:     o.Log.WithFields(map[string]any{"component": "datapath"}),
		metrics: o.Metrics,
	}, nil
}

// RelayFilterUpdate stores the filter of a remote switch, replacing the
// previous one.
func (d *Directory) RelayFilterUpdate(switchID uint32, f *bloom.Filter) {
	if f == nil {
		return
	}

	d.mu.Lock()
	if _, ok := d.filters[switchID]; !ok {
		i, _ := slices.BinarySearch(d.ids, switchID)
		d.ids = slices.Insert(d.ids, i, switchID)
	}

	d.filters[switchID] = f.Clone()
	n := len(d.ids)
	d.mu.Unlock()

	if _, ok := d.peers[switchID]; !ok {
		d.log.Warnf("no address configured for switch %d", switchID)
	}

	d.metrics.UpdateGauge(metrics.KeyDatapathEntries, float64(n))
}

// Len returns the number of remote filters.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ids)
}

// Filter returns a copy of the filter of a remote switch.
func (d *Directory) Filter(switchID uint32) (*bloom.Filter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.filters[switchID]
	return f.Clone(), ok
}

// Resolve finds the remote switch of key. When more filters match, the
// lowest switch id wins.
func (d *Directory) Resolve(key string) (Decision, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, id := range d.ids {
		f := d.filters[id]
		if !f.Check(key) {
			continue
		}

		ip, ok := d.peers[id]
		if !ok {
			return Decision{}, fmt.Errorf("%w %d", ErrNoPeerIP, id)
		}

		return Decision{SwitchID: id, Port: f.Port(), RemoteIP: ip}, nil
	}

	return Decision{}, ErrUnknownKey
}

// Forward resolves the destination key of a frame and encapsulates the
// frame towards the remote switch.
func (d *Directory) Forward(p *Packet, key string) (Decision, error) {
	dec, err := d.Resolve(key)
	if err != nil {
		d.metrics.IncCounter(metrics.KeyForwardMiss)
		return Decision{}, err
	}

	if err := d.encap.Encapsulate(p, dec.RemoteIP); err != nil {
		d.log.Errorf("failed to encapsulate frame for switch %d: %v", dec.SwitchID, err)
		return Decision{}, err
	}

	d.metrics.IncCounter(metrics.KeyForwardRemote)
	return dec, nil
}

// Receive decapsulates a frame tunneled by a peer. Frames from addresses
// not configured as peers are rejected.
func (d *Directory) Receive(p *Packet) (netip.Addr, error) {
	src, err := d.encap.Decapsulate(p)
	if err != nil {
		d.metrics.IncCounter(metrics.KeyDecapDrop)
		return netip.Addr{}, err
	}

	if !d.peerSet.Contains(src) {
		d.metrics.IncCounter(metrics.KeyDecapDrop)
		return src, fmt.Errorf("%w: %v", ErrUnknownPeer, src)
	}

	d.metrics.IncCounter(metrics.KeyDecapOK)
	return src, nil
}
