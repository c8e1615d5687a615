package gossip

import (
	"context"
	"fmt"
	"time"

	"github.com/lcswitch/bfgossip/gdt"
	"github.com/lcswitch/bfgossip/logging"
	"github.com/lcswitch/bfgossip/metrics"
)

// DefaultSendInterval is the time between two gossip sends.
const DefaultSendInterval = 50 * time.Second

type SenderOptions struct {
	Transport Transport
	Table     *gdt.Table

	// LocalID is the id of the filter sent, the one describing the local
	// switch.
	LocalID uint32

	// Interval between two sends. Defaults to DefaultSendInterval.
	Interval time.Duration

	// Stats provides the link counters sent along with the filter.
	// Optional.
	Stats StatsProvider

	Log     logging.Logger
	Metrics metrics.Metrics
}

// Sender periodically sends the local filter to the gossip group.
type Sender struct {
	options SenderOptions
	log     logging.Logger
	metrics metrics.Metrics
}

func NewSender(o SenderOptions) *Sender {
	if o.Interval <= 0 {
		o.Interval = DefaultSendInterval
	}

	if o.Stats == nil {
		o.Stats = StatsFunc(func() []LinkStat { return nil })
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}

	return &Sender{
		options: o,
		log:     o.Log.WithFields(map[string]any{"group": o.Table.GroupID(), "loop": "sender"}),
		metrics: o.Metrics,
	}
}

// Message builds the next message to send. It returns false when the table
// has no entry for the local switch.
func (s *Sender) Message() (*Message, bool) {
	f, ok := s.options.Table.FindFilter(s.options.LocalID)
	if !ok {
		return nil, false
	}

	stats := s.options.Stats.LocalStats()
	if len(stats) > MaxStatEntries {
		stats = stats[:MaxStatEntries]
	}

	return &Message{
		GroupID: s.options.Table.GroupID(),
		Filter:  f,
		Stats:   stats,
	}, true
}

func (s *Sender) send(conn SendConn) {
	m, ok := s.Message()
	if !ok {
		s.log.Debugf("no filter for local switch %d, skipping", s.options.LocalID)
		s.metrics.IncCounter(metrics.KeySendSkipped)
		return
	}

	b, err := m.Encode()
	if err != nil {
		s.log.Errorf("failed to encode gossip message: %v", err)
		s.metrics.IncCounter(metrics.KeySendError)
		return
	}

	if err := conn.Send(b); err != nil {
		s.log.Errorf("failed to send gossip message: %v", err)
		s.metrics.IncCounter(metrics.KeySendError)
		return
	}

	s.log.Debugf("sent filter of switch %d", s.options.LocalID)
	s.metrics.IncCounter(metrics.KeySendOK)
}

// Run sends the local filter right away and then once per interval, until
// the context is done. It fails only when the socket cannot be opened.
func (s *Sender) Run(ctx context.Context) error {
	conn, err := s.options.Transport.DialSender(ctx)
	if err != nil {
		s.log.Errorf("failed to open gossip sender: %v", err)
		return fmt.Errorf("failed to open gossip sender: %w", err)
	}

	defer conn.Close()

	ticker := time.NewTicker(s.options.Interval)
	defer ticker.Stop()

	s.log.Infof("sending every %v", s.options.Interval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.send(conn)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}
