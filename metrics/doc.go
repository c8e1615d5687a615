/*
Package metrics implements collection of the gossip and directory metrics.

Two formats are supported, selected with Options.Format: the Go
implementation of the Coda Hale metrics library,

https://github.com/rcrowley/go-metrics

exposed as JSON grouped by metric family, and Prometheus, exposed in the
Prometheus text format. With AllKind both are collected, and the handler
picks the format by the Accept header.

Components report through the Metrics interface with dot separated keys,
see the Key* constants. In Prometheus the key becomes the value of the
"key" label of the custom counter, gauge and histogram vectors:

	bfgossip_custom_total{key="gossip.send.ok"} 12

The handler is registered on the support listener of the node, when one
is configured.
*/
package metrics
