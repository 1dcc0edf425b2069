// Package sigio reads and writes raw signature streams: consecutive
// dims-wide records of packed little-endian uint32 words, the same layout
// the file-backed signature store uses on disk.
package sigio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	kib = 1024
	mib = 1024 * kib
)

// DefaultChunkSize is the read buffer size; signature streams are consumed
// strictly sequentially, so a large buffer keeps syscall counts low.
const DefaultChunkSize = 4 * mib

// RecordReader yields consecutive dims-wide records from a byte stream.
type RecordReader struct {
	dims   uint32
	buffer *bufio.Reader
	raw    []byte
	closer io.Closer
}

// NewRecordReader wraps r. If r is an io.Closer it is closed by Close.
func NewRecordReader(r io.Reader, dims uint32) *RecordReader {
	rr := &RecordReader{
		dims:   dims,
		buffer: bufio.NewReaderSize(r, DefaultChunkSize),
		raw:    make([]byte, dims*4),
	}
	if c, ok := r.(io.Closer); ok {
		rr.closer = c
	}
	return rr
}

// OpenRecords opens the file at path for record reading.
func OpenRecords(path string, dims uint32) (*RecordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewRecordReader(file, dims), nil
}

// Next returns the next record, or io.EOF at a clean end of stream. A
// stream that ends mid-record returns io.ErrUnexpectedEOF.
func (r *RecordReader) Next() ([]uint32, error) {
	if _, err := io.ReadFull(r.buffer, r.raw); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("sigio: failed to read record: %w", err)
	}
	out := make([]uint32, r.dims)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(r.raw[i*4:])
	}
	return out, nil
}

func (r *RecordReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll reads every record in the file at path.
func ReadAll(path string, dims uint32) ([][]uint32, error) {
	rr, err := OpenRecords(path, dims)
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	var out [][]uint32
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// RecordWriter emits dims-wide records to a byte stream.
type RecordWriter struct {
	dims   uint32
	buffer *bufio.Writer
	raw    []byte
	closer io.Closer
}

// NewRecordWriter wraps w. If w is an io.Closer it is closed by Close.
func NewRecordWriter(w io.Writer, dims uint32) *RecordWriter {
	rw := &RecordWriter{
		dims:   dims,
		buffer: bufio.NewWriterSize(w, DefaultChunkSize),
		raw:    make([]byte, dims*4),
	}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	return rw
}

// CreateRecords creates (or truncates) the file at path for record writing.
func CreateRecords(path string, dims uint32) (*RecordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewRecordWriter(file, dims), nil
}

// Write emits one record.
func (w *RecordWriter) Write(sig []uint32) error {
	if uint32(len(sig)) != w.dims {
		return fmt.Errorf("sigio: record has %d words, writer emits %d-word records", len(sig), w.dims)
	}
	for i, word := range sig {
		binary.LittleEndian.PutUint32(w.raw[i*4:], word)
	}
	if _, err := w.buffer.Write(w.raw); err != nil {
		return fmt.Errorf("sigio: failed to write record: %w", err)
	}
	return nil
}

func (w *RecordWriter) Flush() error {
	return w.buffer.Flush()
}

func (w *RecordWriter) Close() error {
	if err := w.buffer.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
