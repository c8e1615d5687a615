/*
Package bfgossip runs a switch node that shares its forwarding knowledge
with the other switches of its group, in the form of bloom filters.

Every switch keeps the identities it has learned locally, typically MAC
addresses, in a bloom filter of its own. It gossips this filter
periodically to the other switches of the group, and collects the filters
received from them in a group directory table. When a switch has to
forward a frame for an identity that it doesn't know locally, it looks the
identity up in the filters of the other switches, and tunnels the frame to
the switch that claims it.

# Groups

Switches are grouped by a numeric group id. With the default multicast
transport, every group gossips on its own IPv4 multicast address,
calculated as the configured base address plus the group id. Messages of
other groups that reach a switch anyway are dropped. Alternatively, the
memberlist transport can be used where IP multicast is not available. In
this case the group members find each other by joining a set of known
members.

# Gossip

The gossip sender of a node sends the local filter right at startup, and
then once every send interval. The message carries the group id, the
filter and a few byte counters of the busiest links of the switch. The
gossip receiver merges the received filters into the group directory
table: a filter of a switch not seen before is inserted, a changed filter
replaces the stored one, and an identical filter is ignored. The filters
of the other switches are stored with the remote port, marking that the
identities behind them are reached through a tunnel.

Inserted and updated filters are handed over asynchronously to the
datapath directory, which resolves identities to forwarding decisions, and
encapsulates the frames sent to other switches in an outer Ethernet and
IPv4 header.

# Running

The bfgossipd command starts a node from flags or a yaml file. A minimal
configuration needs the id of the local switch, its group, and the
addresses of the other switches:

	bfgossipd -local-id 1 -group-id 5 -local-ip 10.0.0.1 -peer 2=10.0.0.2,3=10.0.0.3

Nodes can be embedded, too:

	n, err := bfgossip.NewNode(bfgossip.Options{
		LocalID: 1,
		GroupID: 5,
		LocalIP: netip.MustParseAddr("10.0.0.1"),
		Peers: map[uint32]netip.Addr{
			2: netip.MustParseAddr("10.0.0.2"),
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	go n.Run(ctx)
	n.Learn("02:00:00:00:00:01")

# Support endpoints

When the support listener is enabled, the node serves its metrics on
/metrics, and a read-only dump of the group directory table on /gdt.
*/
package bfgossip
