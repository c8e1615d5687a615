package bfgossip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/datapath"
	"github.com/lcswitch/bfgossip/gdt"
	"github.com/lcswitch/bfgossip/gossip"
	"github.com/lcswitch/bfgossip/logging"
	"github.com/lcswitch/bfgossip/metrics"
)

const (
	TransportMulticast  = "multicast"
	TransportMemberlist = "memberlist"

	DefaultLocalPort       = 1
	DefaultSupportListener = ":9911"

	defaultShutdownTimeout = 5 * time.Second
)

var ErrTransport = errors.New("unknown transport")

// Options to start a switch node.
type Options struct {

	// LocalID identifies the local switch in its gossip group.
	LocalID uint32

	// GroupID of the gossip group.
	GroupID uint32

	// LocalPort is the forwarding port of the local filter. Defaults
	// to DefaultLocalPort.
	LocalPort uint16

	// LocalIP is the source address of the remote encapsulation.
	LocalIP netip.Addr

	// Peers maps the ids of the other switches to their addresses.
	Peers map[uint32]netip.Addr

	// LocalKeys are learned into the local filter at startup.
	LocalKeys []string

	// Transport is TransportMulticast or TransportMemberlist.
	// Defaults to TransportMulticast.
	Transport string

	// CustomTransport, when set, is used instead of the one selected
	// by Transport.
	CustomTransport gossip.Transport

	// MulticastBase is the multicast address of group 0. Defaults to
	// gossip.DefaultBase.
	MulticastBase netip.Addr

	// GossipPort is the UDP port of the multicast transport.
	GossipPort int

	MulticastInterface string
	MulticastTTL       int
	MulticastLoopback  bool

	MemberlistBindAddress string
	MemberlistBindPort    int
	MemberlistJoin        []string

	SendInterval   time.Duration
	ReceiveTimeout time.Duration

	// BitLength and HashFuncs of the local filter.
	BitLength uint32
	HashFuncs uint32

	MaxFilters int
	RemotePort uint16

	EncapProfile datapath.Profile
	EncapUDPPort uint16

	// SupportListener is the address of the /metrics and /gdt
	// endpoints. Empty disables the listener.
	SupportListener string

	// MetricsFlavours are "codahale", "prometheus" or both.
	MetricsFlavours []string

	MetricsPrefix        string
	EnableRuntimeMetrics bool

	// Metrics, when set, is used instead of a backend created from
	// MetricsFlavours.
	Metrics metrics.Metrics

	// ApplicationLogOutput is a file path, or empty for stderr.
	ApplicationLogOutput      string
	ApplicationLogLevel       log.Level
	ApplicationLogPrefix      string
	ApplicationLogJSONEnabled bool

	// Log, when set, is used by the node instead of the application
	// log.
	Log logging.Logger
}

func (o *Options) setDefaults() {
	if o.LocalPort == 0 {
		o.LocalPort = DefaultLocalPort
	}

	if o.Transport == "" {
		o.Transport = TransportMulticast
	}

	if !o.MulticastBase.IsValid() {
		o.MulticastBase = netip.MustParseAddr(gossip.DefaultBase)
	}

	if o.BitLength == 0 {
		o.BitLength = bloom.DefaultBitLength
	}

	if o.HashFuncs == 0 {
		o.HashFuncs = bloom.DefaultHashFuncs
	}

	if o.Log == nil {
		o.Log = logging.New()
	}

	if o.Metrics == nil {
		o.Metrics = metrics.Default
	}
}

func (o *Options) metricsKind() (metrics.Kind, error) {
	if len(o.MetricsFlavours) == 0 {
		return metrics.CodaHaleKind, nil
	}

	return metrics.ParseMetricsKind(strings.Join(o.MetricsFlavours, ","))
}

// Node is a switch taking part in a gossip group: its group directory
// table, the gossip loops and the datapath directory fed by them.
type Node struct {
	options   Options
	table     *gdt.Table
	stats     *gossip.Counters
	directory *datapath.Directory
	relay     *gossip.AsyncRelay
	sender    *gossip.Sender
	receiver  *gossip.Receiver
	closer    io.Closer
	log       logging.Logger
	metrics   metrics.Metrics
}

func createTransport(o Options) (gossip.Transport, io.Closer, error) {
	if o.CustomTransport != nil {
		return o.CustomTransport, nil, nil
	}

	switch o.Transport {
	case TransportMulticast:
		group, err := gossip.GroupAddress(o.MulticastBase, o.GroupID)
		if err != nil {
			return nil, nil, err
		}

		t, err := gossip.NewMulticastTransport(gossip.MulticastOptions{
			Group:     group,
			Port:      o.GossipPort,
			Interface: o.MulticastInterface,
			TTL:       o.MulticastTTL,
			Loopback:  o.MulticastLoopback,
		})

		return t, nil, err
	case TransportMemberlist:
		t, err := gossip.NewMemberlistTransport(gossip.MemberlistOptions{
			Name:     fmt.Sprintf("switch-%d-%d", o.GroupID, o.LocalID),
			BindAddr: o.MemberlistBindAddress,
			BindPort: o.MemberlistBindPort,
			Join:     o.MemberlistJoin,
		})
		if err != nil {
			return nil, nil, err
		}

		return t, t, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrTransport, o.Transport)
	}
}

// NewNode creates the table with the local filter, learns the local keys
// and opens the gossip transport.
func NewNode(o Options) (*Node, error) {
	o.setDefaults()

	table := gdt.New(gdt.Options{
		GroupID:    o.GroupID,
		MaxFilters: o.MaxFilters,
		RemotePort: o.RemotePort,
		HashFuncs:  o.HashFuncs,
	})

	if _, err := table.AddFilter(int64(o.LocalID), o.LocalPort, o.BitLength); err != nil {
		return nil, fmt.Errorf("failed to create local filter: %w", err)
	}

	for _, k := range o.LocalKeys {
		if err := table.AddKey(o.LocalID, k); err != nil {
			return nil, err
		}
	}

	l := o.Log.WithFields(map[string]any{"switch": o.LocalID})
	directory, err := datapath.NewDirectory(datapath.Options{
		Peers: o.Peers,
		Encapsulator: datapath.Encapsulator{
			LocalIP: o.LocalIP,
			Profile: o.EncapProfile,
			UDPPort: o.EncapUDPPort,
		},
		Log:     l,
		Metrics: o.Metrics,
	})
	if err != nil {
		return nil, err
	}

	transport, closer, err := createTransport(o)
	if err != nil {
		return nil, fmt.Errorf("failed to create gossip transport: %w", err)
	}

	relay := gossip.NewAsyncRelay(directory, l, o.Metrics)
	stats := gossip.NewCounters()
	return &Node{
		options:   o,
		table:     table,
		stats:     stats,
		directory: directory,
		relay:     relay,
		sender: gossip.NewSender(gossip.SenderOptions{
			Transport: transport,
			Table:     table,
			LocalID:   o.LocalID,
			Interval:  o.SendInterval,
			Stats:     stats,
			Log:       l,
			Metrics:   o.Metrics,
		}),
		receiver: gossip.NewReceiver(gossip.ReceiverOptions{
			Transport:      transport,
			Table:          table,
			LocalID:        o.LocalID,
			Relay:          relay,
			ReceiveTimeout: o.ReceiveTimeout,
			Log:            l,
			Metrics:        o.Metrics,
		}),
		closer:  closer,
		log:     l,
		metrics: o.Metrics,
	}, nil
}

func (n *Node) Table() *gdt.Table              { return n.table }
func (n *Node) Directory() *datapath.Directory { return n.directory }

// Learn adds a key, e.g. the MAC address of a local port, to the local
// filter. It is sent to the group with the next gossip round.
func (n *Node) Learn(key string) error {
	return n.table.AddKey(n.options.LocalID, key)
}

// CountTraffic records bytes sent to another switch, reported with the
// gossip messages.
func (n *Node) CountTraffic(dst uint32, bytes uint64) {
	n.stats.Add(n.options.LocalID, dst, bytes)
}

// Run runs the gossip loops, the datapath relay and the support listener
// until the context is done or one of them fails to start. The table is
// closed when Run returns.
func (n *Node) Run(ctx context.Context) error {
	defer n.table.Close()
	if n.closer != nil {
		defer n.closer.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.relay.Run(ctx) })
	g.Go(func() error { return n.receiver.Run(ctx) })
	g.Go(func() error { return n.sender.Run(ctx) })

	if n.options.SupportListener != "" {
		g.Go(func() error { return n.serveSupport(ctx) })
	}

	n.log.Infof("switch %d joined group %d", n.options.LocalID, n.options.GroupID)
	err := g.Wait()
	n.log.Infof("switch %d left group %d", n.options.LocalID, n.options.GroupID)
	return err
}

func initLog(o Options) error {
	var output io.Writer
	if o.ApplicationLogOutput != "" {
		f, err := os.OpenFile(o.ApplicationLogOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open application log: %w", err)
		}

		output = f
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      o.ApplicationLogPrefix,
		ApplicationLogOutput:      output,
		ApplicationLogLevel:       o.ApplicationLogLevel,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
	})

	return nil
}

// Run starts a node with the application log and metrics configured by
// the options, and runs it until SIGINT or SIGTERM.
func Run(o Options) error {
	if err := initLog(o); err != nil {
		return err
	}

	if o.Metrics == nil {
		kind, err := o.metricsKind()
		if err != nil {
			return err
		}

		o.Metrics = metrics.NewMetrics(metrics.Options{
			Format:               kind,
			Prefix:               o.MetricsPrefix,
			EnableRuntimeMetrics: o.EnableRuntimeMetrics,
		})
	}

	n, err := NewNode(o)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return n.Run(ctx)
}
