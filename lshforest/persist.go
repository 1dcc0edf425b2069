package lshforest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	bin "github.com/gagliardetto/binary"
	"k8s.io/klog/v2"

	"github.com/rpcpool/lshforest/indexmeta"
	"github.com/rpcpool/lshforest/sigstore"
)

var _Magic = [8]byte{'l', 's', 'h', 'f', 'o', 'r', 's', 't'}

// Magic returns the dump file magic.
func Magic() [8]byte { return _Magic }

const Version = uint64(1)

// Kind tags the dump in its metadata block.
const Kind = "lsh-forest"

const writeBufSize = 1 << 20

// Store writes a self-describing binary dump of the forest to path: a
// length-prefixed header (magic, version, metadata, parameters), the
// per-band hash tables with their ranges, the in-memory signature payload,
// and a trailing xxhash64 of everything before it. The dump is written to
// path+".tmp" and renamed into place. Sorted prefix indexes are not
// persisted; Restore rebuilds them.
func (f *Forest) Store(path string) error {
	header, err := f.buildHeader()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	defer func() {
		if file != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	bufw := bufio.NewWriterSize(file, writeBufSize)
	hasher := xxhash.New()
	enc := bin.NewBorshEncoder(io.MultiWriter(bufw, hasher))

	if err := enc.WriteUint32(uint32(len(header)), binary.LittleEndian); err != nil {
		return err
	}
	if _, err := enc.Write(header); err != nil {
		return err
	}
	if err := f.writeBody(enc); err != nil {
		return err
	}

	// The checksum covers every byte before it and is not part of the
	// hashed stream itself.
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], hasher.Sum64())
	if _, err := bufw.Write(sum[:]); err != nil {
		return err
	}
	if err := bufw.Flush(); err != nil {
		return fmt.Errorf("failed to flush dump: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync dump: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	file = nil
	return os.Rename(tmp, path)
}

func (f *Forest) buildHeader() ([]byte, error) {
	meta := indexmeta.Meta{}
	if err := meta.AddString(indexmeta.KeyKind, Kind); err != nil {
		return nil, err
	}
	metaBuf, err := meta.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if _, err := enc.Write(_Magic[:]); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(Version, binary.LittleEndian); err != nil {
		return nil, err
	}
	if _, err := enc.Write(metaBuf); err != nil {
		return nil, err
	}
	for _, v := range []uint32{f.bands, f.dims, f.bandWidth} {
		if err := enc.WriteUint32(v, binary.LittleEndian); err != nil {
			return nil, err
		}
	}
	if _, err := enc.Write([]byte{boolByte(f.store != nil), boolByte(f.clean)}); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(f.size, binary.LittleEndian); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Forest) writeBody(enc *bin.Encoder) error {
	for band := range f.tables {
		if err := enc.WriteUint32(f.ranges[band].start, binary.LittleEndian); err != nil {
			return err
		}
		if err := enc.WriteUint32(f.ranges[band].end, binary.LittleEndian); err != nil {
			return err
		}
		table := f.tables[band]
		if err := enc.WriteUint32(uint32(table.Len()), binary.LittleEndian); err != nil {
			return err
		}
		// Keys are written in sorted order so dumps of equal forests are
		// byte-identical.
		keys := table.Keys()
		sort.Strings(keys)
		for _, key := range keys {
			ids, _ := table.Get(key)
			if err := enc.WriteUint32(uint32(len(key)), binary.LittleEndian); err != nil {
				return err
			}
			if _, err := enc.Write([]byte(key)); err != nil {
				return err
			}
			if err := enc.WriteUint32(uint32(len(ids)), binary.LittleEndian); err != nil {
				return err
			}
			for _, id := range ids {
				if err := enc.WriteUint32(id, binary.LittleEndian); err != nil {
					return err
				}
			}
		}
	}

	var words []uint32
	if f.store != nil {
		words = f.store.Snapshot()
	}
	count := uint32(0)
	if f.dims > 0 {
		count = uint32(len(words)) / f.dims
	}
	if err := enc.WriteUint32(count, binary.LittleEndian); err != nil {
		return err
	}
	for _, w := range words {
		if err := enc.WriteUint32(w, binary.LittleEndian); err != nil {
			return err
		}
	}
	return nil
}

// Restore clears the forest and loads the dump at path, adopting its
// parameters and contents, then rebuilds the sorted prefix indexes. After
// a successful restore the forest is clean.
//
// The dump carries the signature payload only when it was written by a
// forest with an in-memory store; a file-backed forest keeps its records
// in the backing file, which must still be present when restoring.
func (f *Forest) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dump: %w", err)
	}
	if len(data) < 4+8 {
		return fmt.Errorf("dump is truncated: %d bytes", len(data))
	}
	payload, trailer := data[:len(data)-8], data[len(data)-8:]
	if got, want := xxhash.Sum64(payload), binary.LittleEndian.Uint64(trailer); got != want {
		return fmt.Errorf("dump checksum mismatch: computed %x, stored %x", got, want)
	}

	// Reset the in-memory structure only; a file-backed store keeps its
	// records in the backing file, which the dump may rely on.
	f.size = 0
	f.clean = false

	dec := bin.NewBorshDecoder(payload)
	headerSize, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	_ = headerSize

	hdr, err := readHeader(dec)
	if err != nil {
		return err
	}
	f.dims = hdr.Dims
	f.bands = hdr.Bands
	f.bandWidth = hdr.BandWidth
	f.alloc()

	for band := uint32(0); band < f.bands; band++ {
		start, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return fmt.Errorf("failed to read band %d range: %w", band, err)
		}
		end, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return fmt.Errorf("failed to read band %d range: %w", band, err)
		}
		f.ranges[band] = bandRange{start: start, end: end}
		numKeys, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return fmt.Errorf("failed to read band %d key count: %w", band, err)
		}
		for k := uint32(0); k < numKeys; k++ {
			keyLen, err := dec.ReadUint32(bin.LE)
			if err != nil {
				return err
			}
			keyBuf, err := dec.ReadNBytes(int(keyLen))
			if err != nil {
				return fmt.Errorf("failed to read band %d key %d: %w", band, k, err)
			}
			numIDs, err := dec.ReadUint32(bin.LE)
			if err != nil {
				return err
			}
			ids := make([]uint32, numIDs)
			for j := range ids {
				if ids[j], err = dec.ReadUint32(bin.LE); err != nil {
					return fmt.Errorf("failed to read band %d bucket %d: %w", band, k, err)
				}
			}
			f.tables[band].Set(string(keyBuf), ids)
		}
	}

	if err := f.restoreStore(dec, hdr); err != nil {
		return err
	}
	f.size = hdr.Size
	f.Index()
	return nil
}

func (f *Forest) restoreStore(dec *bin.Decoder, hdr *DumpInfo) error {
	count, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read signature payload count: %w", err)
	}
	if !hdr.Stored {
		f.store = nil
		if count != 0 {
			return fmt.Errorf("dump has %d signature records but no store flag", count)
		}
		return nil
	}
	switch {
	case f.store == nil:
		f.store = sigstore.NewMemory(f.dims)
	default:
		if _, ok := f.store.(*sigstore.Memory); ok {
			// Recreate rather than clear: the dump's width wins.
			f.store = sigstore.NewMemory(f.dims)
		} else if count > 0 {
			// The dump carries the full payload; drop whatever the
			// backing file holds so IDs line up from zero again.
			if err := f.store.Clear(); err != nil {
				return err
			}
		}
	}
	for id := uint32(0); id < count; id++ {
		sig := make([]uint32, f.dims)
		for j := range sig {
			if sig[j], err = dec.ReadUint32(bin.LE); err != nil {
				return fmt.Errorf("failed to read signature record %d: %w", id, err)
			}
		}
		if err := f.store.Put(id, sig); err != nil {
			return err
		}
	}
	if count == 0 && hdr.Size > 0 && f.store.Len() < int(hdr.Size) {
		klog.Warningf("lshforest: dump holds no signature payload and the store has %d of %d records; by-ID operations will fail", f.store.Len(), hdr.Size)
	}
	return nil
}

// DumpInfo is the decoded dump header.
type DumpInfo struct {
	Dims      uint32
	Bands     uint32
	BandWidth uint32
	Size      uint32
	Stored    bool
	Clean     bool
	Meta      indexmeta.Meta
	FileSize  int64
}

func readHeader(dec *bin.Decoder) (*DumpInfo, error) {
	magicBuf := make([]byte, len(_Magic))
	if _, err := dec.Read(magicBuf); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(magicBuf, _Magic[:]) {
		return nil, fmt.Errorf("invalid magic: %x", magicBuf)
	}
	version, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported dump version %d, expected %d", version, Version)
	}
	info := &DumpInfo{}
	if err := info.Meta.UnmarshalWithDecoder(dec); err != nil {
		return nil, err
	}
	if err := info.Meta.AssertKind(Kind); err != nil {
		return nil, err
	}
	if info.Bands, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, err
	}
	if info.Dims, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, err
	}
	if info.BandWidth, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, err
	}
	if info.Dims == 0 || info.Bands == 0 || info.Bands > info.Dims {
		return nil, fmt.Errorf("dump has invalid parameters: dims=%d bands=%d", info.Dims, info.Bands)
	}
	storedByte, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	cleanByte, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	info.Stored = storedByte != 0
	info.Clean = cleanByte != 0
	if info.Size, err = dec.ReadUint32(bin.LE); err != nil {
		return nil, err
	}
	return info, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Open constructs a forest by restoring the dump at path.
func Open(path string) (*Forest, error) {
	f := &Forest{}
	if err := f.Restore(path); err != nil {
		return nil, err
	}
	return f, nil
}

// Inspect decodes and returns the dump header at path, verifying the
// trailing checksum.
func Inspect(path string) (*DumpInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4+8 {
		return nil, fmt.Errorf("dump is truncated: %d bytes", len(data))
	}
	payload, trailer := data[:len(data)-8], data[len(data)-8:]
	if got, want := xxhash.Sum64(payload), binary.LittleEndian.Uint64(trailer); got != want {
		return nil, fmt.Errorf("dump checksum mismatch: computed %x, stored %x", got, want)
	}
	dec := bin.NewBorshDecoder(payload)
	if _, err := dec.ReadUint32(bin.LE); err != nil {
		return nil, err
	}
	info, err := readHeader(dec)
	if err != nil {
		return nil, err
	}
	info.FileSize = int64(len(data))
	return info, nil
}
