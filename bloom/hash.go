package bloom

// HashFunc maps a key to a 32 bit hash value.
type HashFunc func(key string) uint32

// HashFamilies lists the available hash functions in the order in which
// they are bound to a filter. A filter with n hash functions uses the
// first n entries.
var HashFamilies = []HashFunc{SAXHash, SDBMHash}

// SAXHash is the shift-add-xor string hash.
func SAXHash(key string) uint32 {
	var h uint32
	for i := 0; i < len(key); i++ {
		h ^= (h << 5) + (h >> 2) + uint32(key[i])
	}

	return h
}

// SDBMHash is the multiplicative hash known from the sdbm database
// library.
func SDBMHash(key string) uint32 {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = uint32(key[i]) + (h << 6) + (h << 16) - h
	}

	return h
}
