package config

import (
	"flag"
	"fmt"
	"math"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	log "github.com/sirupsen/logrus"

	"github.com/lcswitch/bfgossip"
	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/datapath"
	"github.com/lcswitch/bfgossip/gdt"
	"github.com/lcswitch/bfgossip/gossip"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	PrintVersion bool `yaml:"version"`

	// switch identity:
	LocalID       uint       `yaml:"local-id"`
	GroupID       uint       `yaml:"group-id"`
	LocalPort     uint       `yaml:"local-port"`
	LocalIPString string     `yaml:"local-ip"`
	Peers         *peerFlags `yaml:"peer"`
	LocalKeys     multiFlag  `yaml:"local-keys"`

	// gossip:
	Transport           string        `yaml:"transport"`
	MulticastBaseString string        `yaml:"multicast-base"`
	GossipPort          int           `yaml:"gossip-port"`
	MulticastInterface  string        `yaml:"multicast-interface"`
	MulticastTTL        int           `yaml:"multicast-ttl"`
	MulticastLoopback   bool          `yaml:"multicast-loopback"`
	SendInterval        time.Duration `yaml:"send-interval"`
	ReceiveTimeout      time.Duration `yaml:"receive-timeout"`

	// memberlist:
	MemberlistBindAddress string    `yaml:"memberlist-bind-address"`
	MemberlistBindPort    int       `yaml:"memberlist-bind-port"`
	MemberlistJoin        *listFlag `yaml:"memberlist-join"`

	// filters and directory:
	BitLength  uint `yaml:"bit-length"`
	HashFuncs  uint `yaml:"hash-funcs"`
	MaxFilters int  `yaml:"max-filters"`
	RemotePort uint `yaml:"remote-port"`

	// datapath:
	EncapProfileString string `yaml:"encap-profile"`
	EncapUDPPort       uint   `yaml:"encap-udp-port"`

	// support and metrics:
	SupportListener      string    `yaml:"support-listener"`
	MetricsFlavour       *listFlag `yaml:"metrics-flavour"`
	MetricsPrefix        string    `yaml:"metrics-prefix"`
	EnableRuntimeMetrics bool      `yaml:"runtime-metrics"`

	// logging:
	ApplicationLog            string `yaml:"application-log"`
	ApplicationLogLevelString string `yaml:"application-log-level"`
	ApplicationLogPrefix      string `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool   `yaml:"application-log-json-enabled"`

	// parsed values:
	LocalIP             netip.Addr       `yaml:"-"`
	MulticastBase       netip.Addr       `yaml:"-"`
	EncapProfile        datapath.Profile `yaml:"-"`
	ApplicationLogLevel log.Level        `yaml:"-"`
}

const (
	defaultApplicationLogPrefix = "[APP]"
)

func NewConfig() *Config {
	cfg := new(Config)
	cfg.Peers = newPeerFlags()
	cfg.MemberlistJoin = commaListFlag()
	cfg.MetricsFlavour = commaListFlag("codahale", "prometheus")

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config-file", "", "if provided the flags will be loaded/overwritten by the values on the file (yaml)")

	// generic:
	flag.BoolVar(&cfg.PrintVersion, "version", false, "print bfgossipd version")

	// switch identity:
	flag.UintVar(&cfg.LocalID, "local-id", 0, "id of the local switch in its gossip group")
	flag.UintVar(&cfg.GroupID, "group-id", 0, "id of the gossip group, selects the multicast group address")
	flag.UintVar(&cfg.LocalPort, "local-port", bfgossip.DefaultLocalPort, "forwarding port stored in the local filter")
	flag.StringVar(&cfg.LocalIPString, "local-ip", "", "IPv4 source address of the remote encapsulation")
	flag.Var(cfg.Peers, "peer", "comma separated id=ip pairs, the IPv4 addresses of the other switches")
	flag.Var(&cfg.LocalKeys, "local-keys", "keys learned into the local filter at startup, can be repeated")

	// gossip:
	flag.StringVar(&cfg.Transport, "transport", bfgossip.TransportMulticast, "gossip transport, multicast or memberlist")
	flag.StringVar(&cfg.MulticastBaseString, "multicast-base", gossip.DefaultBase, "multicast address of group 0, group n gossips on base+n")
	flag.IntVar(&cfg.GossipPort, "gossip-port", gossip.DefaultPort, "UDP port of the multicast gossip")
	flag.StringVar(&cfg.MulticastInterface, "multicast-interface", "", "network interface joining the multicast group, empty for the system default")
	flag.IntVar(&cfg.MulticastTTL, "multicast-ttl", gossip.DefaultTTL, "TTL of the outgoing multicast gossip")
	flag.BoolVar(&cfg.MulticastLoopback, "multicast-loopback", false, "deliver the own multicast gossip to local receivers")
	flag.DurationVar(&cfg.SendInterval, "send-interval", gossip.DefaultSendInterval, "interval between two gossip messages")
	flag.DurationVar(&cfg.ReceiveTimeout, "receive-timeout", gossip.DefaultReceiveTimeout, "read deadline of the gossip receiver, bounds the shutdown delay")

	// memberlist:
	flag.StringVar(&cfg.MemberlistBindAddress, "memberlist-bind-address", "", "bind address of the memberlist transport")
	flag.IntVar(&cfg.MemberlistBindPort, "memberlist-bind-port", gossip.DefaultMemberlistPort, "bind port of the memberlist transport")
	flag.Var(cfg.MemberlistJoin, "memberlist-join", "comma separated host:port addresses of known memberlist members")

	// filters and directory:
	flag.UintVar(&cfg.BitLength, "bit-length", bloom.DefaultBitLength, "bit length of the local bloom filter")
	flag.UintVar(&cfg.HashFuncs, "hash-funcs", bloom.DefaultHashFuncs, "number of bloom filter hash functions of the group")
	flag.IntVar(&cfg.MaxFilters, "max-filters", gdt.DefaultMaxFilters, "maximum number of filters in the group directory table")
	flag.UintVar(&cfg.RemotePort, "remote-port", gdt.DefaultRemotePort, "forwarding port assigned to the filters of the other switches")

	// datapath:
	flag.StringVar(&cfg.EncapProfileString, "encap-profile", datapath.ProfileIP.String(), "remote encapsulation, ip or udp")
	flag.UintVar(&cfg.EncapUDPPort, "encap-udp-port", datapath.DefaultUDPPort, "UDP port of the udp encapsulation profile")

	// support and metrics:
	flag.StringVar(&cfg.SupportListener, "support-listener", bfgossip.DefaultSupportListener, "network address used for exposing the /metrics and /gdt endpoints, empty disables it")
	flag.Var(cfg.MetricsFlavour, "metrics-flavour", "Metrics flavour is used to change the exposed metrics format. Supported metric formats: 'codahale' and 'prometheus', you can select both of them")
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "bfgossip.", "allows setting a custom path prefix for the codahale metrics")
	flag.BoolVar(&cfg.EnableRuntimeMetrics, "runtime-metrics", true, "enables reporting the Go runtime statistics")

	// logging:
	flag.StringVar(&cfg.ApplicationLog, "application-log", "", "output file for the application log. When not set, /dev/stderr is used")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", "INFO", "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", defaultApplicationLogPrefix, "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")

	cfg.Flags = flag
	return cfg
}

func parseMulticastBase(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid multicast-base: %w", err)
	}

	if !a.Is4() || !a.IsMulticast() {
		return netip.Addr{}, fmt.Errorf("invalid multicast-base: %s is not an IPv4 multicast address", a)
	}

	return a, nil
}

func parseLocalIP(s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}

	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid local-ip: %w", err)
	}

	if !a.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid local-ip: %s is not IPv4", a)
	}

	return a, nil
}

func checkUint32(name string, v uint) error {
	if v > math.MaxUint32 {
		return fmt.Errorf("invalid %s: %d", name, v)
	}

	return nil
}

func checkPort(name string, v uint) error {
	if v > math.MaxUint16 {
		return fmt.Errorf("invalid %s: %d", name, v)
	}

	return nil
}

func validate(c *Config) error {
	_, err := log.ParseLevel(c.ApplicationLogLevelString)
	if err != nil {
		return err
	}

	switch c.Transport {
	case bfgossip.TransportMulticast, bfgossip.TransportMemberlist:
	default:
		return fmt.Errorf("invalid transport: %s", c.Transport)
	}

	if _, err := datapath.ParseProfile(c.EncapProfileString); err != nil {
		return err
	}

	if c.HashFuncs == 0 || c.HashFuncs > uint(len(bloom.HashFamilies)) {
		return fmt.Errorf("invalid hash-funcs: %d, supported are 1 to %d", c.HashFuncs, len(bloom.HashFamilies))
	}

	if c.BitLength == 0 || c.BitLength > bloom.MaxBitLength {
		return fmt.Errorf("invalid bit-length: %d, supported are 1 to %d", c.BitLength, bloom.MaxBitLength)
	}

	if c.MaxFilters <= 0 {
		return fmt.Errorf("invalid max-filters: %d", c.MaxFilters)
	}

	if _, err := parseMulticastBase(c.MulticastBaseString); err != nil {
		return err
	}

	if _, err := parseLocalIP(c.LocalIPString); err != nil {
		return err
	}

	for _, check := range []error{
		checkUint32("local-id", c.LocalID),
		checkUint32("group-id", c.GroupID),
		checkPort("local-port", c.LocalPort),
		checkPort("remote-port", c.RemotePort),
		checkPort("encap-udp-port", c.EncapUDPPort),
	} {
		if check != nil {
			return check
		}
	}

	return nil
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		yamlFile, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("invalid config file: %w", err)
		}

		err = yaml.Unmarshal(yamlFile, c)
		if err != nil {
			return fmt.Errorf("unmarshalling config file error: %w", err)
		}

		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	c.EncapProfile, _ = datapath.ParseProfile(c.EncapProfileString)
	c.MulticastBase, _ = parseMulticastBase(c.MulticastBaseString)
	c.LocalIP, _ = parseLocalIP(c.LocalIPString)
	return nil
}

func (c *Config) ToOptions() bfgossip.Options {
	var peers map[uint32]netip.Addr
	if c.Peers != nil {
		peers = c.Peers.values
	}

	var join, flavours []string
	if c.MemberlistJoin != nil {
		join = c.MemberlistJoin.values
	}

	if c.MetricsFlavour != nil {
		flavours = c.MetricsFlavour.values
	}

	return bfgossip.Options{
		LocalID:   uint32(c.LocalID),
		GroupID:   uint32(c.GroupID),
		LocalPort: uint16(c.LocalPort),
		LocalIP:   c.LocalIP,
		Peers:     peers,
		LocalKeys: c.LocalKeys,

		Transport:          c.Transport,
		MulticastBase:      c.MulticastBase,
		GossipPort:         c.GossipPort,
		MulticastInterface: c.MulticastInterface,
		MulticastTTL:       c.MulticastTTL,
		MulticastLoopback:  c.MulticastLoopback,
		SendInterval:       c.SendInterval,
		ReceiveTimeout:     c.ReceiveTimeout,

		MemberlistBindAddress: c.MemberlistBindAddress,
		MemberlistBindPort:    c.MemberlistBindPort,
		MemberlistJoin:        join,

		BitLength:  uint32(c.BitLength),
		HashFuncs:  uint32(c.HashFuncs),
		MaxFilters: c.MaxFilters,
		RemotePort: uint16(c.RemotePort),

		EncapProfile: c.EncapProfile,
		EncapUDPPort: uint16(c.EncapUDPPort),

		SupportListener:      c.SupportListener,
		MetricsFlavours:      flavours,
		MetricsPrefix:        c.MetricsPrefix,
		EnableRuntimeMetrics: c.EnableRuntimeMetrics,

		ApplicationLogOutput:      c.ApplicationLog,
		ApplicationLogLevel:       c.ApplicationLogLevel,
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
	}
}
