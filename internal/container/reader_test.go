package container

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/flate"
)

type fixtureEntry struct {
	name    string
	content string
	method  uint16
}

// buildZip writes entries with the standard library writer so the reader is
// tested against an independent producer.
func buildZip(t *testing.T, entries ...fixtureEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := fw.Write([]byte(e.content)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readAllEntries(t *testing.T, data []byte) (map[string]string, []string, error) {
	t.Helper()
	got := make(map[string]string)
	var order []string
	err := Walk(bytes.NewReader(data), nil, func(e *Entry, content []byte) error {
		got[e.Name] = string(content)
		order = append(order, e.Name)
		return nil
	})
	return got, order, err
}

func TestReader_deflatedEntriesInPhysicalOrder(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "xl/worksheets/sheet2.xml", content: "<b/>", method: zip.Deflate},
		fixtureEntry{name: "xl/worksheets/sheet1.xml", content: "<a/>", method: zip.Deflate},
		fixtureEntry{name: "[Content_Types].xml", content: strings.Repeat("types ", 500), method: zip.Deflate},
	)
	got, order, err := readAllEntries(t, data)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := []string{"xl/worksheets/sheet2.xml", "xl/worksheets/sheet1.xml", "[Content_Types].xml"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
	if got["xl/worksheets/sheet1.xml"] != "<a/>" {
		t.Errorf("sheet1 = %q", got["xl/worksheets/sheet1.xml"])
	}
	if got["[Content_Types].xml"] != strings.Repeat("types ", 500) {
		t.Errorf("content types entry has %d bytes", len(got["[Content_Types].xml"]))
	}
}

func TestReader_storedEntriesWithDataDescriptor(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "a.xml", content: "hello stored", method: zip.Store},
		fixtureEntry{name: "empty.xml", content: "", method: zip.Store},
		fixtureEntry{name: "b.xml", content: "after", method: zip.Deflate},
	)
	got, order, err := readAllEntries(t, data)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("entries = %v", order)
	}
	if got["a.xml"] != "hello stored" || got["empty.xml"] != "" || got["b.xml"] != "after" {
		t.Errorf("got %v", got)
	}
}

func TestReader_skipsDirectories(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "word/", method: zip.Store},
		fixtureEntry{name: "word/document.xml", content: "<w:document/>", method: zip.Deflate},
	)
	_, order, err := readAllEntries(t, data)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(order) != 1 || order[0] != "word/document.xml" {
		t.Errorf("order = %v", order)
	}
}

func TestReader_emptyArchive(t *testing.T) {
	data := buildZip(t)
	_, order, err := readAllEntries(t, data)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("order = %v", order)
	}
}

func TestReader_withoutCentralDirectory(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "one.xml", content: "1", method: zip.Deflate},
		fixtureEntry{name: "two.xml", content: "2", method: zip.Deflate},
	)
	cd := bytes.Index(data, []byte("PK\x01\x02"))
	if cd < 0 {
		t.Fatal("central directory not found in fixture")
	}
	got, _, err := readAllEntries(t, data[:cd])
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if got["one.xml"] != "1" || got["two.xml"] != "2" {
		t.Errorf("got %v", got)
	}
}

func TestReader_notAZip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"plain text", []byte("not a zip archive at all")},
		{"empty", nil},
		{"short", []byte("PK")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readAllEntries(t, tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsFormatError(err) {
				t.Errorf("error %v is not a FormatError", err)
			}
		})
	}
}

func TestReader_truncatedMidEntry(t *testing.T) {
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	for _, method := range []uint16{zip.Store, zip.Deflate} {
		data := buildZip(t, fixtureEntry{name: "word/document.xml", content: content, method: method})
		cut := data[:len(data)/2]
		_, _, err := readAllEntries(t, cut)
		if err == nil {
			t.Fatalf("method %d: expected error for truncated archive", method)
		}
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("method %d: error %v is not a FormatError", method, err)
		}
		if fe.Entry != "word/document.xml" {
			t.Errorf("method %d: entry = %q", method, fe.Entry)
		}
	}
}

func TestReader_checksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.CreateRaw(&zip.FileHeader{
		Name:               "bad.xml",
		Method:             zip.Store,
		CRC32:              0xdeadbeef,
		CompressedSize64:   5,
		UncompressedSize64: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("hello"))
	_ = w.Close()

	_, _, err = readAllEntries(t, buf.Bytes())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if fe.Reason != "checksum mismatch" {
		t.Errorf("reason = %q", fe.Reason)
	}
}

func TestReader_nextSkipsUnreadContent(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "big.bin", content: strings.Repeat("x", 64<<10), method: zip.Deflate},
		fixtureEntry{name: "small.xml", content: "<s/>", method: zip.Deflate},
	)
	zr := NewReader(bytes.NewReader(data))
	defer zr.Close()

	e, err := zr.Next()
	if err != nil || e.Name != "big.bin" {
		t.Fatalf("first Next = %v, %v", e, err)
	}
	part := make([]byte, 10)
	if _, err := io.ReadFull(zr, part); err != nil {
		t.Fatal(err)
	}
	e, err = zr.Next()
	if err != nil || e.Name != "small.xml" {
		t.Fatalf("second Next = %v, %v", e, err)
	}
	content, err := io.ReadAll(zr)
	if err != nil || string(content) != "<s/>" {
		t.Fatalf("content = %q, %v", content, err)
	}
	if e.Size != 4 {
		t.Errorf("size from data descriptor = %d, want 4", e.Size)
	}
	if _, err := zr.Next(); err != io.EOF {
		t.Errorf("final Next error = %v, want io.EOF", err)
	}
}

func TestWalk_matchAndStop(t *testing.T) {
	data := buildZip(t,
		fixtureEntry{name: "docProps/core.xml", content: "core", method: zip.Deflate},
		fixtureEntry{name: "word/document.xml", content: "doc", method: zip.Deflate},
		fixtureEntry{name: "word/styles.xml", content: "styles", method: zip.Deflate},
	)
	var seen []string
	err := Walk(bytes.NewReader(data),
		func(name string) bool { return strings.HasPrefix(name, "word/") },
		func(e *Entry, content []byte) error {
			seen = append(seen, e.Name+"="+string(content))
			return ErrStop
		})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != 1 || seen[0] != "word/document.xml=doc" {
		t.Errorf("seen = %v", seen)
	}
}

func TestWalk_callbackErrorIsReturned(t *testing.T) {
	data := buildZip(t, fixtureEntry{name: "a", content: "a", method: zip.Deflate})
	boom := errors.New("boom")
	err := Walk(bytes.NewReader(data), nil, func(*Entry, []byte) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

// rawEntry is a local file record assembled by hand, for layouts the standard
// library writer never produces.
type rawEntry struct {
	name         string
	flags        uint16
	method       uint16
	crc          uint32
	csize, usize uint32
	extra        []byte
	data         []byte
	descriptor   []byte
}

func (r rawEntry) bytes() []byte {
	var b bytes.Buffer
	le := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }
	le(uint32(sigLocalFile))
	le(uint16(45))
	le(r.flags)
	le(r.method)
	le(uint32(0)) // dos time and date
	le(r.crc)
	le(r.csize)
	le(r.usize)
	le(uint16(len(r.name)))
	le(uint16(len(r.extra)))
	b.WriteString(r.name)
	b.Write(r.extra)
	b.Write(r.data)
	b.Write(r.descriptor)
	return b.Bytes()
}

func zip64Extra(usize, csize uint64) []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint16(b[0:], zip64ExtraID)
	binary.LittleEndian.PutUint16(b[2:], 16)
	binary.LittleEndian.PutUint64(b[4:], usize)
	binary.LittleEndian.PutUint64(b[12:], csize)
	return b
}

// descriptor encodes a data descriptor; sizes are 8 bytes wide when wide is set.
func descriptor(signed, wide bool, crc uint32, csize, usize uint64) []byte {
	var b bytes.Buffer
	le := func(v any) { _ = binary.Write(&b, binary.LittleEndian, v) }
	if signed {
		le(uint32(sigDataDescriptor))
	}
	le(crc)
	if wide {
		le(csize)
		le(usize)
	} else {
		le(uint32(csize))
		le(uint32(usize))
	}
	return b.Bytes()
}

func deflate(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReader_handBuiltLayouts(t *testing.T) {
	const content = "<w:t>zip64 body</w:t>"
	crc := crc32.ChecksumIEEE([]byte(content))
	packed := deflate(t, content)
	n, pn := uint64(len(content)), uint64(len(packed))

	tests := []struct {
		name  string
		entry rawEntry
	}{
		{"zip64 sizes in extra, stored", rawEntry{
			method: Store, crc: crc, csize: uint32Max, usize: uint32Max,
			extra: zip64Extra(n, n), data: []byte(content),
		}},
		{"zip64 sizes in extra, deflated", rawEntry{
			method: Deflate, crc: crc, csize: uint32Max, usize: uint32Max,
			extra: zip64Extra(n, pn), data: packed,
		}},
		{"zip64 signed descriptor, deflated", rawEntry{
			flags: flagDataDescriptor, method: Deflate,
			extra: zip64Extra(0, 0), data: packed,
			descriptor: descriptor(true, true, crc, pn, n),
		}},
		{"zip64 unsigned descriptor, deflated", rawEntry{
			flags: flagDataDescriptor, method: Deflate,
			extra: zip64Extra(0, 0), data: packed,
			descriptor: descriptor(false, true, crc, pn, n),
		}},
		{"unsigned descriptor, deflated", rawEntry{
			flags: flagDataDescriptor, method: Deflate, data: packed,
			descriptor: descriptor(false, false, crc, pn, n),
		}},
		{"unsigned descriptor, stored", rawEntry{
			flags: flagDataDescriptor, method: Store, data: []byte(content),
			descriptor: descriptor(false, false, crc, n, n),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := tt.entry
			first.name = "word/document.xml"
			next := rawEntry{name: "after.xml", method: Store, crc: crc32.ChecksumIEEE([]byte("<a/>")), csize: 4, usize: 4, data: []byte("<a/>")}
			data := append(first.bytes(), next.bytes()...)

			zr := NewReader(bytes.NewReader(data))
			defer zr.Close()
			e, err := zr.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			got, err := io.ReadAll(zr)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != content {
				t.Errorf("content = %q", got)
			}
			if e.Size != n || e.CRC32 != crc {
				t.Errorf("entry size %d crc %08x, want %d %08x", e.Size, e.CRC32, n, crc)
			}
			e, err = zr.Next()
			if err != nil || e.Name != "after.xml" {
				t.Fatalf("second Next = %v, %v", e, err)
			}
			if got, _ := io.ReadAll(zr); string(got) != "<a/>" {
				t.Errorf("second entry = %q", got)
			}
			if _, err := zr.Next(); err != io.EOF {
				t.Errorf("final Next error = %v, want io.EOF", err)
			}
		})
	}
}

func TestReader_zip64DescriptorSizeMismatch(t *testing.T) {
	const content = "payload"
	packed := deflate(t, content)
	entry := rawEntry{
		name: "x.xml", flags: flagDataDescriptor, method: Deflate,
		extra: zip64Extra(0, 0), data: packed,
		descriptor: descriptor(true, true, crc32.ChecksumIEEE([]byte(content)), uint64(len(packed))+1, uint64(len(content))),
	}
	_, _, err := readAllEntries(t, entry.bytes())
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if fe.Reason != "compressed size mismatch" {
		t.Errorf("reason = %q", fe.Reason)
	}
}

func TestReader_maxEntrySize(t *testing.T) {
	big := strings.Repeat("a", 4096)
	crc := crc32.ChecksumIEEE([]byte(big))
	known := rawEntry{name: "big.xml", method: Store, crc: crc, csize: 4096, usize: 4096, data: []byte(big)}

	tests := []struct {
		name    string
		data    []byte
		limit   int64
		match   func(string) bool
		wantErr bool
	}{
		{"deflated over limit", buildZip(t, fixtureEntry{name: "big.xml", content: big, method: zip.Deflate}), 1024, nil, true},
		{"stored with descriptor over limit", buildZip(t, fixtureEntry{name: "big.xml", content: big, method: zip.Store}), 1024, nil, true},
		{"stored with known size over limit", known.bytes(), 1024, nil, true},
		{"skipped entry still counted", buildZip(t,
			fixtureEntry{name: "big.xml", content: big, method: zip.Deflate},
			fixtureEntry{name: "small.xml", content: "s", method: zip.Deflate},
		), 1024, func(name string) bool { return name == "small.xml" }, true},
		{"exactly at limit", buildZip(t, fixtureEntry{name: "big.xml", content: big, method: zip.Deflate}), 4096, nil, false},
		{"no limit", buildZip(t, fixtureEntry{name: "big.xml", content: big, method: zip.Store}), 0, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Walk(bytes.NewReader(tt.data), tt.match, func(*Entry, []byte) error { return nil }, WithMaxEntrySize(tt.limit))
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Walk: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrEntryTooLarge) {
				t.Fatalf("err = %v, want ErrEntryTooLarge", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) || fe.Entry != "big.xml" {
				t.Errorf("error %v should be a FormatError for big.xml", err)
			}
		})
	}
}
