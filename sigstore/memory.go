package sigstore

import "fmt"

// Memory keeps all records in one contiguous word slice.
type Memory struct {
	dims  uint32
	words []uint32
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store for dims-wide signatures.
func NewMemory(dims uint32) *Memory {
	return &Memory{dims: dims}
}

func (m *Memory) Len() int {
	return len(m.words) / int(m.dims)
}

func (m *Memory) Put(id uint32, sig []uint32) error {
	if err := checkWidth(m.dims, sig); err != nil {
		return err
	}
	if err := checkSequential(uint32(m.Len()), id); err != nil {
		return err
	}
	m.words = append(m.words, sig...)
	return nil
}

func (m *Memory) PutBatch(firstID uint32, sigs [][]uint32) error {
	if err := checkSequential(uint32(m.Len()), firstID); err != nil {
		return err
	}
	for _, sig := range sigs {
		if err := checkWidth(m.dims, sig); err != nil {
			return err
		}
		m.words = append(m.words, sig...)
	}
	return nil
}

func (m *Memory) Get(id uint32) ([]uint32, error) {
	if int(id) >= m.Len() {
		return nil, fmt.Errorf("sigstore: id %d out of range, store holds %d records", id, m.Len())
	}
	out := make([]uint32, m.dims)
	copy(out, m.words[id*m.dims:])
	return out, nil
}

func (m *Memory) Reader() (Reader, error) {
	return memReader{m}, nil
}

func (m *Memory) Clear() error {
	m.words = nil
	return nil
}

func (m *Memory) Snapshot() []uint32 {
	return m.words
}

type memReader struct {
	m *Memory
}

func (r memReader) Get(id uint32) ([]uint32, error) { return r.m.Get(id) }

func (r memReader) Close() error { return nil }
