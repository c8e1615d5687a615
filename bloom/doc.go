/*
Package bloom implements the fixed size Bloom filter that a switch uses to
describe which MAC or flow identities live behind it.

A filter is a bit array of a fixed bit length plus an ordered list of hash
functions taken from a small fixed family (SAX and SDBM). Adding a key sets
one bit per hash function, checking a key tests the same bits. False
positives are possible, false negatives are not: a filter only ever grows,
except when it is replaced as a whole.

The bit length is bounded by MaxBitLength, the capacity of the bit array in
the gossip wire message. Storage is always derived from the bit length given
at creation time.

Filters have no locking of their own. Inside a switch they are owned by a
group directory table, which serializes every access.
*/
package bloom
