/*
Package gdt implements the group directory table, the per group collection
of Bloom filters, one for each switch taking part in the gossip.

The table is bounded, MaxFilters entries at most, and keeps the ids unique.
All access goes through a single lock covering the whole table, so a merge
compares and replaces a complete entry atomically with respect to the
gossip sender reading the local filter.

# Merging

UpdateFilter is the merge operation used by the gossip receiver. The
candidate's port is rewritten to the remote port first, then compared byte
for byte with the stored entry:

	Unchanged  identical state, nothing happens
	Updated    the stored entry is replaced by the candidate
	Inserted   no entry existed, the candidate is appended

Only Updated and Inserted need to be relayed to the datapath, which keeps
periodic gossip of unchanged filters from reaching the forwarding plane.
*/
package gdt
