package datapath

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcswitch/bfgossip/bloom"
	"github.com/lcswitch/bfgossip/logging/loggingtest"
	"github.com/lcswitch/bfgossip/metrics"
	"github.com/lcswitch/bfgossip/metrics/metricstest"
)

const waitTimeout = time.Second

func remoteFilter(t *testing.T, id uint32, keys ...string) *bloom.Filter {
	t.Helper()
	f, err := bloom.New(id, bloom.DefaultBitLength, 0, bloom.DefaultHashFuncs)
	require.NoError(t, err)
	for _, k := range keys {
		f.Add(k)
	}

	return f
}

func newDirectory(t *testing.T, m metrics.Metrics) *Directory {
	t.Helper()
	d, err := NewDirectory(Options{
		Peers: map[uint32]netip.Addr{
			2: peerIP,
			3: netip.MustParseAddr("10.0.0.3"),
		},
		Encapsulator: Encapsulator{LocalIP: localIP},
		Metrics:      m,
	})
	require.NoError(t, err)
	return d
}

func TestNewDirectoryInvalidPeer(t *testing.T) {
	_, err := NewDirectory(Options{Peers: map[uint32]netip.Addr{2: netip.MustParseAddr("fe80::1")}})
	assert.True(t, errors.Is(err, ErrAddress))
}

func TestDirectoryResolve(t *testing.T) {
	m := &metricstest.MockMetrics{}
	d := newDirectory(t, m)

	_, err := d.Resolve("macA")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	d.RelayFilterUpdate(3, remoteFilter(t, 3, "macA", "macB"))
	d.RelayFilterUpdate(2, remoteFilter(t, 2, "macA"))
	d.RelayFilterUpdate(4, nil)

	assert.Equal(t, 2, d.Len())
	g, _ := m.Gauge(metrics.KeyDatapathEntries)
	assert.Equal(t, float64(2), g)

	dec, err := d.Resolve("macA")
	require.NoError(t, err)
	assert.Equal(t, Decision{SwitchID: 2, RemoteIP: peerIP}, dec)

	dec, err = d.Resolve("macB")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), dec.SwitchID)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), dec.RemoteIP)

	_, err = d.Resolve("unknown")
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestDirectoryKeepsCopies(t *testing.T) {
	d := newDirectory(t, nil)
	f := remoteFilter(t, 2, "macA")
	d.RelayFilterUpdate(2, f)

	f.Add("macB")
	_, err := d.Resolve("macB")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	c, ok := d.Filter(2)
	require.True(t, ok)
	c.Add("macC")
	_, err = d.Resolve("macC")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	// replaced by the update
	d.RelayFilterUpdate(2, remoteFilter(t, 2, "macB"))
	assert.Equal(t, 1, d.Len())
	_, err = d.Resolve("macA")
	assert.True(t, errors.Is(err, ErrUnknownKey))
	_, err = d.Resolve("macB")
	assert.NoError(t, err)
}

func TestDirectoryNoPeerAddress(t *testing.T) {
	l := loggingtest.New()
	defer l.Close()

	d, err := NewDirectory(Options{Log: l})
	require.NoError(t, err)

	d.RelayFilterUpdate(5, remoteFilter(t, 5, "macA"))
	require.NoError(t, l.WaitFor("no address configured for switch 5", waitTimeout))

	_, err = d.Resolve("macA")
	assert.True(t, errors.Is(err, ErrNoPeerIP))
}

func TestDirectoryForwardAndReceive(t *testing.T) {
	m := &metricstest.MockMetrics{}
	sender := newDirectory(t, m)
	sender.RelayFilterUpdate(2, remoteFilter(t, 2, "02:00:00:00:00:bb"))

	frame := testFrame()
	p := NewPacket(frame)
	dec, err := sender.Forward(p, "02:00:00:00:00:bb")
	require.NoError(t, err)
	assert.Equal(t, peerIP, dec.RemoteIP)
	assert.Equal(t, len(frame)+ProfileIP.Overhead(), p.Len())

	_, err = sender.Forward(NewPacket(testFrame()), "02:00:00:00:00:cc")
	assert.True(t, errors.Is(err, ErrUnknownKey))

	c, _ := m.Counter(metrics.KeyForwardRemote)
	assert.Equal(t, int64(1), c)
	c, _ = m.Counter(metrics.KeyForwardMiss)
	assert.Equal(t, int64(1), c)

	receiver, err := NewDirectory(Options{
		Peers:        map[uint32]netip.Addr{1: localIP},
		Encapsulator: Encapsulator{LocalIP: peerIP},
		Metrics:      m,
	})
	require.NoError(t, err)

	src, err := receiver.Receive(p)
	require.NoError(t, err)
	assert.Equal(t, localIP, src)
	assert.Equal(t, frame, p.Bytes())

	// the sender does not know itself as a peer
	p = NewPacket(frame)
	_, err = sender.Forward(p, "02:00:00:00:00:bb")
	require.NoError(t, err)
	_, err = sender.Receive(p)
	assert.True(t, errors.Is(err, ErrUnknownPeer))

	_, err = receiver.Receive(NewPacket(frame))
	assert.True(t, errors.Is(err, ErrNotIPv4))

	c, _ = m.Counter(metrics.KeyDecapOK)
	assert.Equal(t, int64(1), c)
	c, _ = m.Counter(metrics.KeyDecapDrop)
	assert.Equal(t, int64(2), c)
}
