/*
Package datapath is the forwarding plane side of the group directory.

The Directory keeps a copy of every remote switch filter pushed by the
gossip receiver, and resolves a destination key, typically a MAC address,
to the switch that announced it and the IP address of that switch. Frames
for remote destinations are then tunneled to the switch with the remote
encapsulation:

	ethernet  14 bytes, addresses copied from the frame, type IPv4
	ipv4      20 bytes, TTL 255, protocol 253 (ip) or 17 (udp)
	pad/udp   2 zero bytes (ip) or an 8 byte UDP header (udp)
	frame

Packets are copy-on-write buffers: headers are pushed into private storage
only, frames shared with other packets are never modified.
*/
package datapath
