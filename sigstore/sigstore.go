// Package sigstore persists fixed-width uint32 signatures keyed by their
// insertion ID, either in memory or in an append-only binary file with
// fixed-stride random reads. Records are packed little-endian words; record
// id lives at byte offset id*dims*4.
package sigstore

import (
	"encoding/binary"
	"fmt"
)

// Store is an append-only signature container. IDs must be assigned
// sequentially starting at 0; Put with a non-sequential ID is rejected.
type Store interface {
	// Put appends the signature under id, which must equal Len().
	Put(id uint32, sig []uint32) error
	// PutBatch appends the signatures under firstID, firstID+1, ...;
	// firstID must equal Len().
	PutBatch(firstID uint32, sigs [][]uint32) error
	// Get returns the signature stored under id.
	Get(id uint32) ([]uint32, error)
	// Reader opens a bulk random-access session. The returned Reader is
	// safe for concurrent Get calls; the store must not be mutated while
	// a Reader is open.
	Reader() (Reader, error)
	// Len returns the number of stored signatures.
	Len() int
	// Clear drops all stored signatures. A file-backed store truncates
	// its backing file.
	Clear() error
	// Snapshot returns the raw stored words (Len()*dims, little-endian
	// record order) when the payload is held in memory, or nil when the
	// records live in a backing file.
	Snapshot() []uint32
}

// Reader is a bulk random-access session over a Store.
type Reader interface {
	Get(id uint32) ([]uint32, error)
	Close() error
}

func appendWords(dst []byte, sig []uint32) []byte {
	for _, w := range sig {
		dst = binary.LittleEndian.AppendUint32(dst, w)
	}
	return dst
}

func decodeWords(buf []byte, out []uint32) {
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
}

func checkWidth(dims uint32, sig []uint32) error {
	if uint32(len(sig)) != dims {
		return fmt.Errorf("sigstore: signature has %d words, store holds %d-word records", len(sig), dims)
	}
	return nil
}

func checkSequential(next uint32, id uint32) error {
	if id != next {
		return fmt.Errorf("sigstore: non-sequential id %d, next is %d", id, next)
	}
	return nil
}
