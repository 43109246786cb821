package pck

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// rawRecord describes one hand-encoded directory record.
type rawRecord struct {
	path     string
	offset   uint64
	size     uint64
	checksum []byte
	flags    uint32
}

// rawTableEnd returns absolute offset right after header and records.
func rawTableEnd(p Profile, records []rawRecord) uint64 {
	end := uint64(p.HeaderSize())
	for _, rec := range records {
		end += uint64(p.recordSize(rec.path))
	}

	return end
}

// encodeRawPack builds pack bytes field by field; payload is appended after the table.
func encodeRawPack(p Profile, engine EngineVersion, flags uint32, records []rawRecord, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(p.Magic[:])
	le := func(v uint32) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}

	le(p.FormatVersion)
	le(engine.Major)
	le(engine.Minor)
	le(engine.Patch)
	le(flags)
	if p.HasAlignment {
		le(p.DefaultAlignment)
	}
	le(uint32(len(records)))

	for _, rec := range records {
		stored := p.encodedPathLen(rec.path)
		le(uint32(stored))
		buf.WriteString(rec.path)
		buf.Write(make([]byte, stored-len(rec.path)))
		_ = binary.Write(&buf, binary.LittleEndian, rec.offset)
		_ = binary.Write(&buf, binary.LittleEndian, rec.size)
		sum := make([]byte, p.Hash.Size())
		copy(sum, rec.checksum)
		buf.Write(sum)
		le(rec.flags)
	}

	buf.Write(payload)
	return buf.Bytes()
}

// writeRawPack stores pack bytes in a temp dir and returns the path.
func writeRawPack(t *testing.T, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "raw.pck")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

// TestOpen_ManualPack verifies the reader parses a hand-built single-entry pack.
func TestOpen_ManualPack(t *testing.T) {
	t.Parallel()

	for _, p := range Profiles() {
		t.Run(p.Name, func(t *testing.T) {
			t.Parallel()

			payload := []byte("hello")
			records := []rawRecord{{path: "a.txt", size: uint64(len(payload)), checksum: p.Hash.Sum(payload)}}
			records[0].offset = rawTableEnd(p, records)
			path := writeRawPack(t, encodeRawPack(p, EngineVersion{Major: p.EngineMajor, Minor: 1}, 0, records, payload))

			r, err := Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer func() { _ = r.Close() }()

			if r.Profile().Name != p.Name {
				t.Fatalf("profile=%s, want %s", r.Profile().Name, p.Name)
			}
			if got := r.Header().Engine; got != (EngineVersion{Major: p.EngineMajor, Minor: 1}) {
				t.Fatalf("engine=%s", got)
			}

			entries := r.Entries()
			if len(entries) != 1 || entries[0].Path != "a.txt" || entries[0].Size != 5 {
				t.Fatalf("entries=%+v", entries)
			}

			data, err := r.ReadEntry("a.txt")
			if err != nil {
				t.Fatalf("ReadEntry: %v", err)
			}
			if string(data) != "hello" {
				t.Fatalf("data=%q", data)
			}
		})
	}
}

func TestOpen_HeaderErrors(t *testing.T) {
	t.Parallel()

	godot3 := profiles[0]
	godot4 := profiles[1]
	valid := encodeRawPack(godot4, EngineVersion{Major: 4}, 0, nil, nil)

	badAlignment := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(badAlignment[24:], 3)

	unknownVersion := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(unknownVersion[4:], 9)

	hugeCount := encodeRawPack(godot3, EngineVersion{Major: 3}, 0, nil, nil)
	binary.LittleEndian.PutUint32(hugeCount[24:], 1000)

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: ErrTruncatedFile},
		{name: "magic prefix", data: []byte("GD"), want: ErrTruncatedFile},
		{name: "bad magic", data: []byte("PK\x03\x04 not a pack at all......"), want: ErrCorruptHeader},
		{name: "short garbage", data: []byte("xy"), want: ErrCorruptHeader},
		{name: "no format version", data: []byte("GDPC\x01"), want: ErrTruncatedFile},
		{name: "unknown format version", data: unknownVersion, want: ErrUnsupportedVersion},
		{name: "cut header", data: valid[:20], want: ErrTruncatedFile},
		{name: "bad alignment", data: badAlignment, want: ErrCorruptHeader},
		{name: "count exceeds file", data: hugeCount, want: ErrCorruptHeader},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Open(writeRawPack(t, tc.data))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Open error=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestOpen_TableErrors(t *testing.T) {
	t.Parallel()

	p := profiles[0]
	payload := []byte("0123456789")

	twoRecords := func(firstOff, firstSize, secondOff, secondSize uint64, secondPath string) []byte {
		records := []rawRecord{
			{path: "a.txt", offset: firstOff, size: firstSize},
			{path: secondPath, offset: secondOff, size: secondSize},
		}
		return encodeRawPack(p, EngineVersion{Major: 3}, 0, records, payload)
	}
	base := rawTableEnd(p, []rawRecord{{path: "a.txt"}, {path: "b.txt"}})

	truncatedRecord := twoRecords(base, 5, base+5, 5, "b.txt")
	truncatedRecord = truncatedRecord[:p.HeaderSize()+p.recordSize("a.txt")+40]

	zeroPathLen := encodeRawPack(p, EngineVersion{Major: 3}, 0, []rawRecord{{path: "a", offset: 0, size: 0}}, payload)
	binary.LittleEndian.PutUint32(zeroPathLen[p.HeaderSize():], 0)

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "duplicate path", data: twoRecords(base, 5, base+5, 5, "a.txt"), want: ErrCorruptHeader},
		{name: "overlap", data: twoRecords(base, 5, base+4, 5, "b.txt"), want: ErrCorruptHeader},
		{name: "decreasing offsets", data: twoRecords(base+5, 5, base, 5, "b.txt"), want: ErrCorruptHeader},
		{name: "offset inside table", data: twoRecords(8, 5, base+5, 5, "b.txt"), want: ErrCorruptHeader},
		{name: "range overflow", data: twoRecords(base, 5, ^uint64(0)-1, 5, "b.txt"), want: ErrCorruptHeader},
		{name: "record cut", data: truncatedRecord, want: ErrTruncatedFile},
		{name: "zero path length", data: zeroPathLen, want: ErrCorruptHeader},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Open(writeRawPack(t, tc.data))
			if !errors.Is(err, tc.want) {
				t.Fatalf("Open error=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestOpen_PaddedPathTrimmed(t *testing.T) {
	t.Parallel()

	p := profiles[1]
	records := []rawRecord{{path: "ab.txt", size: 0}}
	records[0].offset = rawTableEnd(p, records)
	data := encodeRawPack(p, EngineVersion{Major: 4}, 0, records, nil)

	// "ab.txt" is 6 bytes, stored as 8 with two NULs.
	if got := binary.LittleEndian.Uint32(data[p.HeaderSize():]); got != 8 {
		t.Fatalf("stored path length=%d, want 8", got)
	}

	r, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data)), ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	if _, ok := r.Entry("ab.txt"); !ok {
		t.Fatalf("entry ab.txt not found, entries=%+v", r.Entries())
	}
}

func TestOpen_AlignedOffsets(t *testing.T) {
	t.Parallel()

	p := profiles[1]
	payload := []byte("aligned")
	packAt := func(offset uint64, alignment uint32) []byte {
		records := []rawRecord{{path: "a.txt", offset: offset, size: uint64(len(payload)), checksum: p.Hash.Sum(payload)}}
		pad := make([]byte, offset-rawTableEnd(p, records))
		data := encodeRawPack(p, EngineVersion{Major: 4}, 0, records, append(pad, payload...))
		binary.LittleEndian.PutUint32(data[24:], alignment)
		return data
	}

	// header 32 + one record 64 puts the table end on a 32-byte boundary
	tableEnd := rawTableEnd(p, []rawRecord{{path: "a.txt"}})
	if tableEnd%32 != 0 {
		t.Fatalf("table end %d is not 32-aligned", tableEnd)
	}

	testCases := []struct {
		name      string
		offset    uint64
		alignment uint32
		want      error
	}{
		{name: "at table end", offset: tableEnd, alignment: 32},
		{name: "padded", offset: tableEnd + 32, alignment: 32},
		{name: "unaligned", offset: tableEnd + 4, alignment: 32, want: ErrCorruptHeader},
		{name: "before aligned header end", offset: tableEnd, alignment: 1 << 20, want: ErrCorruptHeader},
		{name: "unaligned with small alignment", offset: tableEnd + 2, alignment: 4, want: ErrCorruptHeader},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			data := packAt(tc.offset, tc.alignment)
			r, err := NewReaderFromReaderAt(bytes.NewReader(data), int64(len(data)), ReaderOptions{VerifyChecksums: true})
			if tc.want != nil {
				if !errors.Is(err, tc.want) {
					t.Fatalf("open error=%v, want %v", err, tc.want)
				}
				return
			}

			if err != nil {
				t.Fatalf("open: %v", err)
			}
			got, err := r.ReadEntry("a.txt")
			if err != nil || string(got) != "aligned" {
				t.Fatalf("ReadEntry=%q err=%v", got, err)
			}
		})
	}
}
