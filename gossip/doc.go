/*
Package gossip disseminates the Bloom filters of a switch group.

Every switch runs two loops per group. The Sender periodically takes the
local switch's filter from the group directory table and sends it, with a
few link counters, to the group. The Receiver reads the messages of the
other switches, merges them into the table and hands every filter that
changed the table to a Relay, which pushes it towards the datapath.

Delivery is best effort. Lost messages are repaired by the next send,
duplicates and reordering are harmless because merging an unchanged
filter has no effect.

# Wire format

A message is a fixed size datagram of MessageSize bytes, numeric fields in
network byte order:

	group id        u32
	filter id       u32
	bit length      u32
	port            u16
	bits            [128]byte
	hash functions  u32
	stat count      u32
	stats           [8]{src u32, dst u32, bytes u64}

# Transports

MulticastTransport sends UDP datagrams to an IP multicast group, derived
from a base address and the group id with GroupAddress.
MemberlistTransport sends the same datagrams to the members of a
hashicorp/memberlist cluster, for networks where multicast is not
available.

# Shutdown

Both loops stop when their context is done. The receiver closes its
socket at that moment, and in addition never blocks longer than the
receive timeout in a single read.
*/
package gossip
