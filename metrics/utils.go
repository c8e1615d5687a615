package metrics

import (
	"strings"

	metrics "github.com/rcrowley/go-metrics"
)

func newUniformSample() metrics.Sample {
	return metrics.NewUniformSample(defaultUniformReservoirSize)
}

func newExpDecaySample() metrics.Sample {
	return metrics.NewExpDecaySample(defaultExpDecayReservoirSize, defaultExpDecayAlpha)
}

func createTimer(sample metrics.Sample) metrics.Timer {
	return metrics.NewCustomTimer(metrics.NewHistogram(sample), metrics.NewMeter())
}

func namespaceOf(prefix string) string {
	if prefix == "" {
		return promNamespace
	}

	ns := strings.TrimSuffix(prefix, ".")
	return strings.NewReplacer(".", "_", "-", "_").Replace(ns)
}
