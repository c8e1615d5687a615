package gossip

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/logging"
	"github.com/lcswitch/bfgossip/metrics"
)

// Relay receives the filters that changed the directory, to push them
// into the forwarding plane. RelayFilterUpdate is called from the receive
// loop and takes ownership of f.
type Relay interface {
	RelayFilterUpdate(switchID uint32, f *bloom.Filter)
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(switchID uint32, f *bloom.Filter)

func (r RelayFunc) RelayFilterUpdate(switchID uint32, f *bloom.Filter) { r(switchID, f) }

// AsyncRelay hands updates over to a slower Relay. Pending updates are
// kept per switch, a newer filter replaces the one still waiting, so the
// target always gets the latest filter of every switch and the pending
// set never grows beyond the number of switches in the table.
type AsyncRelay struct {
	target  Relay
	mu      sync.Mutex
	pending map[uint32]*bloom.Filter
	wake    chan struct{}
	log     logging.Logger
	metrics metrics.Metrics
}

// NewAsyncRelay creates an AsyncRelay. Updates are forwarded to target
// only while Run is running.
func NewAsyncRelay(target Relay, l logging.Logger, m metrics.Metrics) *AsyncRelay {
	if l == nil {
		l = logging.New()
	}

	if m == nil {
		m = metrics.Default
	}

	return &AsyncRelay{
		target:  target,
		pending: make(map[uint32]*bloom.Filter),
		wake:    make(chan struct{}, 1),
		log:     l,
		metrics: m,
	}
}

// RelayFilterUpdate stores the update without blocking.
func (r *AsyncRelay) RelayFilterUpdate(switchID uint32, f *bloom.Filter) {
	r.mu.Lock()
	if _, ok := r.pending[switchID]; ok {
		r.metrics.IncCounter(metrics.KeyRelayCoalesced)
		r.log.Debugf("replacing pending update of switch %d", switchID)
	}

	r.pending[switchID] = f
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

type relayUpdate struct {
	switchID uint32
	filter   *bloom.Filter
}

func (r *AsyncRelay) take() []relayUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	updates := make([]relayUpdate, 0, len(r.pending))
	for _, id := range slices.Sorted(maps.Keys(r.pending)) {
		updates = append(updates, relayUpdate{id, r.pending[id]})
	}

	clear(r.pending)
	return updates
}

// Run forwards pending updates, in switch id order, until the context is
// done.
func (r *AsyncRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-r.wake:
			for _, u := range r.take() {
				r.target.RelayFilterUpdate(u.switchID, u.filter)
				r.metrics.IncCounter(metrics.KeyRelayed)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
