package metrics_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcswitch/bfgossip/metrics"
)

func TestParseMetricsKind(t *testing.T) {
	for _, tt := range []struct {
		in      string
		want    metrics.Kind
		wantErr bool
	}{
		{in: "codahale", want: metrics.CodaHaleKind},
		{in: "Prometheus", want: metrics.PrometheusKind},
		{in: "codahale,prometheus", want: metrics.AllKind},
		{in: "prometheus, codahale", want: metrics.AllKind},
		{in: "", wantErr: true},
		{in: "statsd", wantErr: true},
	} {
		t.Run(tt.in, func(t *testing.T) {
			k, err := metrics.ParseMetricsKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}

	assert.Equal(t, "all", metrics.AllKind.String())
}

func serve(t *testing.T, m metrics.Metrics, accept string) (int, string) {
	t.Helper()
	mux := http.NewServeMux()
	m.RegisterHandler("/metrics", mux)

	req := httptest.NewRequest("GET", "/metrics", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	b, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestPrometheusMetrics(t *testing.T) {
	p := metrics.NewPrometheus(metrics.Options{})
	p.IncCounter(metrics.KeySendOK)
	p.IncCounterBy(metrics.KeySendOK, 2)
	p.UpdateGauge(metrics.KeyEntries, 4)
	p.MeasureSince(metrics.KeyMerge, time.Now().Add(-3*time.Millisecond))

	code, body := serve(t, p, "")
	require.Equal(t, http.StatusOK, code)

	for _, exp := range []string{
		`bfgossip_custom_total{key="gossip.send.ok"} 3`,
		`bfgossip_custom_gauges{key="gdt.entries"} 4`,
		`bfgossip_custom_duration_seconds_count{key="gossip.merge"} 1`,
	} {
		assert.Contains(t, body, exp)
	}
}

func TestPrometheusPrefix(t *testing.T) {
	p := metrics.NewPrometheus(metrics.Options{Prefix: "switch-a."})
	p.IncCounter(metrics.KeyDropEcho)

	_, body := serve(t, p, "")
	assert.Contains(t, body, `switch_a_custom_total{key="gossip.drop.echo"} 1`)
}

func TestCodaHaleMetrics(t *testing.T) {
	c := metrics.NewCodaHale(metrics.Options{})
	c.IncCounter(metrics.KeyReceiveOK)
	c.IncCounterBy(metrics.KeyReceiveOK, 4)
	c.UpdateGauge(metrics.KeyEntries, 2)
	c.MeasureSince(metrics.KeyMerge, time.Now())

	code, body := serve(t, c, "")
	require.Equal(t, http.StatusOK, code)

	var got map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &got))

	assert.Equal(t, float64(5), got["counters"][metrics.KeyReceiveOK]["count"])
	assert.Equal(t, float64(2), got["gauges"][metrics.KeyEntries]["value"])
	assert.Equal(t, float64(1), got["timers"][metrics.KeyMerge]["count"])
}

func TestCodaHaleSingleKey(t *testing.T) {
	c := metrics.NewCodaHale(metrics.Options{})
	c.IncCounter(metrics.KeySendOK)
	c.IncCounter(metrics.KeyReceiveOK)

	mux := http.NewServeMux()
	c.RegisterHandler("/metrics/", mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics/gossip.send", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), metrics.KeySendOK)
	assert.NotContains(t, rec.Body.String(), metrics.KeyReceiveOK)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics/nothing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("POST", "/metrics/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAllMetrics(t *testing.T) {
	a := metrics.NewAll(metrics.Options{})
	a.IncCounter(metrics.KeyRelayCoalesced)

	_, body := serve(t, a, "text/plain")
	assert.Contains(t, body, `bfgossip_custom_total{key="relay.coalesced"} 1`)

	_, body = serve(t, a, "application/json")
	assert.True(t, strings.HasPrefix(body, "{"))
	assert.Contains(t, body, `"counters"`)
}

func TestNewMetrics(t *testing.T) {
	assert.IsType(t, &metrics.CodaHale{}, metrics.NewMetrics(metrics.Options{}))
	assert.IsType(t, &metrics.Prometheus{}, metrics.NewMetrics(metrics.Options{Format: metrics.PrometheusKind}))
	assert.IsType(t, &metrics.All{}, metrics.NewMetrics(metrics.Options{Format: metrics.AllKind}))
}

func TestVoid(t *testing.T) {
	v := metrics.NewVoid()
	assert.NotPanics(t, func() {
		v.IncCounter(metrics.KeySendOK)
		v.UpdateGauge(metrics.KeyEntries, 1)
		v.MeasureSince(metrics.KeyMerge, time.Now())
	})
}
