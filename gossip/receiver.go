package gossip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/gdt"
	"github.com/lcswitch/bfgossip/logging"
	"github.com/lcswitch/bfgossip/metrics"
)

const (
	// DefaultReceiveTimeout bounds a single blocking read, and so the
	// time the receive loop needs to notice that it should stop.
	DefaultReceiveTimeout = time.Second

	warnInterval = 10 * time.Second
)

var (
	ErrGroupMismatch = errors.New("gossip message of another group")
	ErrSelfEcho      = errors.New("gossip message of the local switch")
)

type ReceiverOptions struct {
	Transport Transport
	Table     *gdt.Table

	// LocalID is the id of the local switch. Messages carrying this id
	// are our own and are ignored.
	LocalID uint32

	// Relay is notified of every filter that changed the table.
	// Optional.
	Relay Relay

	// ReceiveTimeout defaults to DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	Log     logging.Logger
	Metrics metrics.Metrics
}

// Receiver merges the filters received from the gossip group into the
// table.
type Receiver struct {
	options ReceiverOptions
	log     logging.Logger
	metrics metrics.Metrics

	groupWarn    rate.Sometimes
	capacityWarn rate.Sometimes
}

func NewReceiver(o ReceiverOptions) *Receiver {
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = DefaultReceiveTimeout
	}

	if o.Relay == nil {
		o.Relay = RelayFunc(func(uint32, *bloom.Filter) {})
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	return &Receiver{
		options:      o,
		log:          o.Log.WithFields(map[string]any{"group": o.Table.GroupID(), "loop": "receiver"}),
		metrics:      o.Metrics,
		groupWarn:    rate.Sometimes{Interval: warnInterval},
		capacityWarn: rate.Sometimes{Interval: warnInterval},
	}
}

// Handle validates and merges a single datagram. The returned error tells
// why a datagram was dropped.
func (r *Receiver) Handle(b []byte) (gdt.ChangeResult, error) {
	m, err := Decode(b)
	if err != nil {
		r.log.Debugf("dropping malformed message: %v", err)
		r.metrics.IncCounter(metrics.KeyDropMalformed)
		return gdt.Unchanged, err
	}

	if m.GroupID != r.options.Table.GroupID() {
		r.groupWarn.Do(func() {
			r.log.Warnf("dropping message of switch %d for group %d", m.Filter.ID(), m.GroupID)
		})

		r.metrics.IncCounter(metrics.KeyDropGroup)
		return gdt.Unchanged, fmt.Errorf("%w: %d", ErrGroupMismatch, m.GroupID)
	}

	id := m.Filter.ID()
	if id == r.options.LocalID {
		r.log.Debug("ignoring own message")
		r.metrics.IncCounter(metrics.KeyDropEcho)
		return gdt.Unchanged, ErrSelfEcho
	}

	for _, s := range m.Stats {
		r.metrics.UpdateGauge(fmt.Sprintf(metrics.KeyLinkBytes, s.Src, s.Dst), float64(s.Bytes))
	}

	start := time.Now()
	result, err := r.options.Table.UpdateFilter(m.Filter)
	r.metrics.MeasureSince(metrics.KeyMerge, start)
	if err != nil {
		if errors.Is(err, gdt.ErrCapacity) {
			r.capacityWarn.Do(func() {
				r.log.Warnf("cannot merge filter of switch %d: %v", id, err)
			})

			r.metrics.IncCounter(metrics.KeyDropCapacity)
		} else {
			r.log.Errorf("failed to merge filter of switch %d: %v", id, err)
		}

		return gdt.Unchanged, err
	}

	r.metrics.IncCounter(fmt.Sprintf(metrics.KeyMergeResult, result))
	r.metrics.UpdateGauge(metrics.KeyEntries, float64(r.options.Table.Len()))

	if result.Changed() {
		r.log.Debugf("filter of switch %d %s", id, result)
		r.options.Relay.RelayFilterUpdate(id, m.Filter)
	}

	return result, nil
}

func (r *Receiver) pause(ctx context.Context) {
	t := time.NewTimer(r.options.ReceiveTimeout)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Run receives datagrams until the context is done. It fails only when
// the socket cannot be opened or the group cannot be joined. When the
// context is done, the socket is closed, which also interrupts a pending
// read.
func (r *Receiver) Run(ctx context.Context) error {
	conn, err := r.options.Transport.ListenReceiver(ctx)
	if err != nil {
		r.log.Errorf("failed to open gossip receiver: %v", err)
		return fmt.Errorf("failed to open gossip receiver: %w", err)
	}

	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r.log.Info("receiving")

	// one byte more than a message, to detect oversized datagrams
	buf := make([]byte, MessageSize+1)
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(r.options.ReceiveTimeout)); err != nil && ctx.Err() == nil {
			r.log.Errorf("failed to set read deadline: %v", err)
		}

		n, err := conn.ReadMessage(buf)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == nil:
			r.metrics.IncCounter(metrics.KeyReceiveOK)
			r.Handle(buf[:n])
		case isTimeout(err):
		case errors.Is(err, net.ErrClosed):
			return fmt.Errorf("gossip receiver closed: %w", err)
		default:
			r.log.Errorf("failed to receive gossip message: %v", err)
			r.metrics.IncCounter(metrics.KeyReceiveError)
			r.pause(ctx)
		}
	}

	return nil
}
