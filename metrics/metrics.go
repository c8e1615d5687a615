package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind selects the metrics backend.
type Kind int

const (
	UnknownKind  Kind = 0
	CodaHaleKind Kind = 1 << iota
	PrometheusKind
	AllKind = CodaHaleKind | PrometheusKind
)

func (k Kind) String() string {
	switch k {
	case CodaHaleKind:
		return "codahale"
	case PrometheusKind:
		return "prometheus"
	case AllKind:
		return "all"
	default:
		return "unknown"
	}
}

// ParseMetricsKind parses a comma separated list of flavours, e.g.
// "codahale,prometheus".
func ParseMetricsKind(s string) (Kind, error) {
	var k Kind
	for _, f := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "codahale":
			k |= CodaHaleKind
		case "prometheus":
			k |= PrometheusKind
		case "":
		default:
			return UnknownKind, fmt.Errorf("invalid metrics flavour: %q", f)
		}
	}

	if k == UnknownKind {
		return UnknownKind, fmt.Errorf("no metrics flavour in %q", s)
	}

	return k, nil
}

// Keys of the gossip metrics.
const (
	KeySendOK          = "gossip.send.ok"
	KeySendError       = "gossip.send.error"
	KeySendSkipped     = "gossip.send.skipped"
	KeyReceiveOK       = "gossip.receive.ok"
	KeyReceiveError    = "gossip.receive.error"
	KeyDropMalformed   = "gossip.drop.malformed"
	KeyDropGroup       = "gossip.drop.group"
	KeyDropEcho        = "gossip.drop.echo"
	KeyDropCapacity    = "gossip.drop.capacity"
	KeyMerge           = "gossip.merge"
	KeyMergeResult     = "gdt.merge.%s"
	KeyEntries         = "gdt.entries"
	KeyRelayCoalesced  = "relay.coalesced"
	KeyRelayed         = "relay.ok"
	KeyLinkBytes       = "link.%d.%d.bytes"
	KeyDatapathEntries = "datapath.entries"
	KeyForwardRemote   = "datapath.forward.remote"
	KeyForwardMiss     = "datapath.forward.miss"
	KeyDecapOK         = "datapath.decap.ok"
	KeyDecapDrop       = "datapath.decap.drop"
)

// Metrics is the interface of the metrics backends. Keys are dot
// separated, the Prometheus backend uses them as the value of the key
// label.
type Metrics interface {
	MeasureSince(key string, start time.Time)
	IncCounter(key string)
	IncCounterBy(key string, value int64)
	UpdateGauge(key string, value float64)
	RegisterHandler(path string, handler *http.ServeMux)
}

// Options for initializing metrics collection.
type Options struct {

	// the metrics exposing format
	Format Kind

	// Common prefix for the keys of the different
	// collected metrics. For Prometheus it is used as the
	// namespace, without the trailing dot.
	Prefix string

	// If set, Go runtime metrics are collected in addition to
	// the gossip metrics.
	EnableRuntimeMetrics bool

	// Use exponentially decaying samples for the CodaHale
	// timers instead of uniform ones.
	UseExpDecaySample bool

	// HistogramBuckets of the Prometheus timers, in seconds.
	// Defaults to prometheus.DefBuckets.
	HistogramBuckets []float64

	// PrometheusRegistry to register the collectors on. A new
	// registry is created when nil.
	PrometheusRegistry *prometheus.Registry
}

// NewMetrics creates a backend for the configured format, defaulting to
// CodaHale.
func NewMetrics(o Options) Metrics {
	switch o.Format {
	case PrometheusKind:
		return NewPrometheus(o)
	case AllKind:
		return NewAll(o)
	default:
		return NewCodaHale(o)
	}
}

// Default is the metrics backend used when none is configured. It keeps
// no values.
var Default Metrics = NewVoid()
