package lshforest

import (
	"encoding/binary"
	"sort"
)

// bandKey serializes r words of sig starting at start into a byte string,
// each word big-endian. Lexicographic comparison of keys is then equivalent
// to elementwise unsigned comparison of the words, and a key built with a
// smaller r is a prefix of the full key. The byte order is part of the
// persistence format and must not change.
func bandKey(sig []uint32, start, r uint32) string {
	buf := make([]byte, 4*r)
	for i := uint32(0); i < r; i++ {
		binary.BigEndian.PutUint32(buf[i*4:], sig[start+i])
	}
	return string(buf)
}

// lowerBound returns the smallest position in keys whose first len(prefix)
// bytes compare >= prefix. All keys are at least len(prefix) bytes long.
func lowerBound(keys []string, prefix string) int {
	n := len(prefix)
	return sort.Search(len(keys), func(i int) bool {
		return keys[i][:n] >= prefix
	})
}
