// Package indexmeta is the small key-value metadata block embedded in
// index dump headers. Keys and values are length-prefixed byte strings,
// each at most 255 bytes, at most 255 pairs.
package indexmeta

import (
	"bytes"
	"fmt"
	"io"

	bin "github.com/gagliardetto/binary"
)

const (
	MaxNumPairs  = 255
	MaxKeySize   = 255
	MaxValueSize = 255
)

// Well-known keys.
const (
	KeyKind      = "kind"
	KeyCreatedBy = "created-by"
)

type Pair struct {
	Key   []byte
	Value []byte
}

type Meta struct {
	Pairs []Pair
}

// Add appends a key-value pair. Duplicate keys are allowed; Get returns
// the first.
func (m *Meta) Add(key string, value []byte) error {
	if len(m.Pairs) >= MaxNumPairs {
		return fmt.Errorf("indexmeta: pair count exceeds max %d", MaxNumPairs)
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("indexmeta: key size %d exceeds max %d", len(key), MaxKeySize)
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("indexmeta: value size %d exceeds max %d", len(value), MaxValueSize)
	}
	m.Pairs = append(m.Pairs, Pair{Key: []byte(key), Value: value})
	return nil
}

// AddString is Add with a string value.
func (m *Meta) AddString(key, value string) error {
	return m.Add(key, []byte(value))
}

// Get returns the value of the first pair with the given key.
func (m Meta) Get(key string) ([]byte, bool) {
	for _, p := range m.Pairs {
		if string(p.Key) == key {
			return p.Value, true
		}
	}
	return nil, false
}

// GetString is Get with the value as a string.
func (m Meta) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	return string(v), ok
}

// AssertKind checks that the KeyKind entry equals want.
func (m Meta) AssertKind(want string) error {
	got, ok := m.GetString(KeyKind)
	if !ok {
		return fmt.Errorf("indexmeta: missing %q entry", KeyKind)
	}
	if got != want {
		return fmt.Errorf("indexmeta: kind is %q, expected %q", got, want)
	}
	return nil
}

func (m Meta) MarshalBinary() ([]byte, error) {
	if len(m.Pairs) > MaxNumPairs {
		return nil, fmt.Errorf("indexmeta: pair count %d exceeds max %d", len(m.Pairs), MaxNumPairs)
	}
	var buf bytes.Buffer
	buf.WriteByte(byte(len(m.Pairs)))
	for i, p := range m.Pairs {
		if len(p.Key) > MaxKeySize {
			return nil, fmt.Errorf("indexmeta: key %d size %d exceeds max %d", i, len(p.Key), MaxKeySize)
		}
		if len(p.Value) > MaxValueSize {
			return nil, fmt.Errorf("indexmeta: value %d size %d exceeds max %d", i, len(p.Value), MaxValueSize)
		}
		buf.WriteByte(byte(len(p.Key)))
		buf.Write(p.Key)
		buf.WriteByte(byte(len(p.Value)))
		buf.Write(p.Value)
	}
	return buf.Bytes(), nil
}

// Decoder is the subset of the binary decoder the unmarshaler needs.
type Decoder interface {
	io.ByteReader
	io.Reader
}

func (m *Meta) UnmarshalWithDecoder(decoder Decoder) error {
	numPairs, err := decoder.ReadByte()
	if err != nil {
		return fmt.Errorf("indexmeta: failed to read pair count: %w", err)
	}
	for i := 0; i < int(numPairs); i++ {
		var p Pair
		keyLen, err := decoder.ReadByte()
		if err != nil {
			return fmt.Errorf("indexmeta: failed to read key length %d: %w", i, err)
		}
		p.Key = make([]byte, keyLen)
		if _, err := io.ReadFull(decoder, p.Key); err != nil {
			return fmt.Errorf("indexmeta: failed to read key %d: %w", i, err)
		}
		valueLen, err := decoder.ReadByte()
		if err != nil {
			return fmt.Errorf("indexmeta: failed to read value length %d: %w", i, err)
		}
		p.Value = make([]byte, valueLen)
		if _, err := io.ReadFull(decoder, p.Value); err != nil {
			return fmt.Errorf("indexmeta: failed to read value %d: %w", i, err)
		}
		m.Pairs = append(m.Pairs, p)
	}
	return nil
}

func (m *Meta) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return m.UnmarshalWithDecoder(bin.NewBorshDecoder(b))
}
