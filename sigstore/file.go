package sigstore

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/exp/mmap"
	"k8s.io/klog/v2"
)

// File appends records to a backing file and reads them back at
// id*dims*4. The file is opened and closed per operation; Reader opens a
// single memory-mapped session for bulk access. Single-process access is
// assumed.
type File struct {
	dims  uint32
	path  string
	count uint32
}

var _ Store = (*File)(nil)

// NewFile opens (or creates) the backing file at path. An existing file
// must contain a whole number of dims-wide records; its records are
// adopted, so a store can be reattached to a previously written file.
func NewFile(dims uint32, path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sigstore: failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return nil, err
	}
	stride := int64(dims) * 4
	if info.Size()%stride != 0 {
		return nil, fmt.Errorf("sigstore: %s holds %d bytes, not a multiple of the %d-byte record size", path, info.Size(), stride)
	}
	s := &File{dims: dims, path: path, count: uint32(info.Size() / stride)}
	if s.count > 0 {
		klog.V(2).Infof("sigstore: reattached %s with %d records", path, s.count)
	}
	return s, nil
}

// Path returns the backing file path.
func (s *File) Path() string { return s.path }

func (s *File) Len() int { return int(s.count) }

func (s *File) Put(id uint32, sig []uint32) error {
	if err := checkWidth(s.dims, sig); err != nil {
		return err
	}
	if err := checkSequential(s.count, id); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(appendWords(make([]byte, 0, len(sig)*4), sig)); err != nil {
		f.Close()
		return fmt.Errorf("sigstore: failed to append record %d: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *File) PutBatch(firstID uint32, sigs [][]uint32) error {
	if err := checkSequential(s.count, firstID); err != nil {
		return err
	}
	for _, sig := range sigs {
		if err := checkWidth(s.dims, sig); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(f, 1<<20)
	buf := make([]byte, 0, s.dims*4)
	for _, sig := range sigs {
		if _, err := w.Write(appendWords(buf[:0], sig)); err != nil {
			f.Close()
			return fmt.Errorf("sigstore: failed to append batch at %d: %w", firstID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.count += uint32(len(sigs))
	return nil
}

func (s *File) Get(id uint32) ([]uint32, error) {
	if id >= s.count {
		return nil, fmt.Errorf("sigstore: id %d out of range, store holds %d records", id, s.count)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, s.dims*4)
	if _, err := f.ReadAt(buf, int64(id)*int64(s.dims)*4); err != nil {
		return nil, fmt.Errorf("sigstore: failed to read record %d: %w", id, err)
	}
	out := make([]uint32, s.dims)
	decodeWords(buf, out)
	return out, nil
}

// Reader memory-maps the backing file for the session, so bulk scans avoid
// a file open per record.
func (s *File) Reader() (Reader, error) {
	r, err := mmap.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("sigstore: failed to mmap %s: %w", s.path, err)
	}
	return &fileReader{dims: s.dims, count: s.count, r: r}, nil
}

func (s *File) Clear() error {
	if err := os.Truncate(s.path, 0); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.count = 0
	return nil
}

// Snapshot returns nil: the records live in the backing file, not in the
// dump payload.
func (s *File) Snapshot() []uint32 { return nil }

type fileReader struct {
	dims  uint32
	count uint32
	r     *mmap.ReaderAt
}

func (r *fileReader) Get(id uint32) ([]uint32, error) {
	if id >= r.count {
		return nil, fmt.Errorf("sigstore: id %d out of range, store holds %d records", id, r.count)
	}
	buf := make([]byte, r.dims*4)
	if _, err := r.r.ReadAt(buf, int64(id)*int64(r.dims)*4); err != nil {
		return nil, fmt.Errorf("sigstore: failed to read record %d: %w", id, err)
	}
	out := make([]uint32, r.dims)
	decodeWords(buf, out)
	return out, nil
}

func (r *fileReader) Close() error { return r.r.Close() }
