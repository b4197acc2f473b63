// Package container reads and writes the ZIP packages that hold Office Open XML parts.
//
// The Reader walks local file headers front to back and never consults the
// central directory, so it works on any io.Reader (uploads, pipes) without
// buffering the whole archive.
package container

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

const (
	sigLocalFile      = 0x04034b50
	sigCentralDir     = 0x02014b50
	sigEndCentralDir  = 0x06054b50
	sigZip64EndDir    = 0x06064b50
	sigDataDescriptor = 0x08074b50

	localHeaderLen = 26 // fixed part after the signature
	zip64ExtraID   = 0x0001
	uint32Max      = 0xffffffff
)

// Compression methods understood by the Reader.
const (
	Store   uint16 = 0
	Deflate uint16 = 8
)

const (
	flagEncrypted      = 0x1
	flagDataDescriptor = 0x8
)

// Entry describes one file inside a package.
type Entry struct {
	Name           string
	Method         uint16
	Flags          uint16
	CRC32          uint32
	CompressedSize uint64
	Size           uint64
	Modified       time.Time

	zip64 bool
}

// IsDir reports whether the entry is a directory marker.
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.Name, "/") }

func (e *Entry) hasDataDescriptor() bool { return e.Flags&flagDataDescriptor != 0 }

// Reader is a forward-only reader over the entries of a ZIP stream.
// Call Next to advance to an entry, then Read to consume its content.
type Reader struct {
	src *countingReader

	cur      *Entry
	body     io.Reader     // decompressed content of cur
	limited  *io.LimitedReader
	inflater io.ReadCloser // reused across deflated entries
	crc      hash.Hash32
	produced uint64
	dataAt   int64 // offset of cur's first compressed byte
	entryEOF bool

	descriptorRead bool

	maxEntrySize int64 // 0 means unlimited

	records int // local headers seen, including directories
	err     error
	closed  bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxEntrySize bounds the decompressed size of every entry, including
// entries that are only skipped. An entry growing past n fails with a
// *FormatError wrapping ErrEntryTooLarge. n <= 0 means no limit.
func WithMaxEntrySize(n int64) ReaderOption {
	return func(z *Reader) { z.maxEntrySize = n }
}

// NewReader returns a Reader consuming r. The Reader does not close r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	z := &Reader{src: &countingReader{r: bufio.NewReader(r)}, crc: crc32.NewIEEE()}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Next advances to the next non-directory entry, discarding whatever is left
// of the current one. It returns io.EOF once the entries are exhausted.
func (z *Reader) Next() (*Entry, error) {
	if z.err != nil {
		return nil, z.err
	}
	if z.closed {
		return nil, errors.New("container: reader closed")
	}
	for {
		if z.cur != nil {
			if err := z.skipRest(); err != nil {
				return nil, z.fail(err)
			}
		}
		e, err := z.readHeader()
		if err != nil {
			return nil, z.fail(err)
		}
		if err := z.open(e); err != nil {
			return nil, z.fail(err)
		}
		if e.IsDir() {
			continue
		}
		return e, nil
	}
}

// Read reads decompressed content of the current entry. At the end of the
// entry the checksum and sizes are verified before io.EOF is returned.
func (z *Reader) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.cur == nil || z.entryEOF {
		return 0, io.EOF
	}
	n, err := z.body.Read(p)
	if n > 0 {
		z.crc.Write(p[:n])
		z.produced += uint64(n)
		if z.exceedsLimit(z.produced) {
			return n, z.fail(z.tooLarge())
		}
	}
	if err == nil {
		return n, nil
	}
	if err != io.EOF {
		return n, z.fail(z.errorf("corrupt entry data", err))
	}
	if verr := z.finish(); verr != nil {
		return n, z.fail(verr)
	}
	return n, io.EOF
}

// Close releases the decompressor. The underlying stream is left open.
func (z *Reader) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	z.cur = nil
	if z.inflater != nil {
		return z.inflater.Close()
	}
	return nil
}

func (z *Reader) exceedsLimit(size uint64) bool {
	return z.maxEntrySize > 0 && size > uint64(z.maxEntrySize)
}

func (z *Reader) tooLarge() *FormatError {
	return z.errorf(fmt.Sprintf("decompressed size over %d bytes", z.maxEntrySize), ErrEntryTooLarge)
}

func (z *Reader) fail(err error) error {
	if z.err == nil {
		z.err = err
	}
	return err
}

func (z *Reader) errorf(reason string, cause error) *FormatError {
	fe := &FormatError{Offset: z.src.n, Reason: reason, Err: cause}
	if z.cur != nil {
		fe.Entry = z.cur.Name
	}
	return fe
}

func (z *Reader) readHeader() (*Entry, error) {
	z.cur = nil
	var sig [4]byte
	_, err := io.ReadFull(z.src, sig[:])
	switch {
	case err == io.EOF && z.records > 0:
		// Stream ends on a record boundary without a central directory.
		return nil, io.EOF
	case err == io.EOF:
		return nil, z.errorf("not a zip archive: empty input", nil)
	case err != nil:
		return nil, z.errorf("truncated signature", readCause(err))
	}

	switch binary.LittleEndian.Uint32(sig[:]) {
	case sigLocalFile:
	case sigCentralDir, sigEndCentralDir, sigZip64EndDir:
		return nil, io.EOF
	default:
		if z.records == 0 {
			return nil, z.errorf("not a zip archive", nil)
		}
		return nil, z.errorf("unexpected record signature", nil)
	}

	var hdr [localHeaderLen]byte
	if _, err := io.ReadFull(z.src, hdr[:]); err != nil {
		return nil, z.errorf("truncated local header", readCause(err))
	}
	b := readBuf(hdr[:])
	b.uint16() // version needed
	e := &Entry{Flags: b.uint16(), Method: b.uint16()}
	modTime, modDate := b.uint16(), b.uint16()
	e.CRC32 = b.uint32()
	e.CompressedSize = uint64(b.uint32())
	e.Size = uint64(b.uint32())
	nameLen, extraLen := int(b.uint16()), int(b.uint16())

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(z.src, name); err != nil {
		return nil, z.errorf("truncated entry name", readCause(err))
	}
	e.Name = string(name)
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(z.src, extra); err != nil {
		return nil, z.errorf("truncated extra field", readCause(err))
	}
	e.Modified = msDosTimeToTime(modDate, modTime)
	parseZip64Extra(e, extra)
	z.records++
	return e, nil
}

// open prepares the body reader for e.
func (z *Reader) open(e *Entry) error {
	z.cur = e
	z.entryEOF = false
	z.produced = 0
	z.crc.Reset()
	z.dataAt = z.src.n
	z.limited = nil
	z.descriptorRead = false

	if e.Flags&flagEncrypted != 0 {
		return z.errorf("encrypted entries are not supported", nil)
	}
	sizeKnown := !e.hasDataDescriptor() || e.CompressedSize != 0
	if !e.hasDataDescriptor() && z.exceedsLimit(e.Size) {
		return z.tooLarge()
	}
	var src io.Reader = z.src
	if sizeKnown {
		z.limited = &io.LimitedReader{R: z.src, N: int64(e.CompressedSize)}
		src = z.limited
	}

	switch e.Method {
	case Store:
		if !sizeKnown {
			content, err := z.scanStored(e)
			if err != nil {
				return err
			}
			z.body = bytes.NewReader(content)
			return nil
		}
		z.body = src
	case Deflate:
		if z.inflater == nil {
			z.inflater = flate.NewReader(src)
		} else if err := z.inflater.(flate.Resetter).Reset(src, nil); err != nil {
			return z.errorf("reset inflater", err)
		}
		z.body = z.inflater
	default:
		return z.errorf("unsupported compression method", nil)
	}
	return nil
}

// finish runs once the body reports io.EOF and checks sizes and checksum.
func (z *Reader) finish() error {
	e := z.cur
	z.entryEOF = true

	if z.limited != nil && z.limited.N > 0 {
		if e.Method == Store {
			return z.errorf("truncated entry data", io.ErrUnexpectedEOF)
		}
		// Deflate ended before the declared compressed size; drop the slack.
		if _, err := io.Copy(io.Discard, z.limited); err != nil {
			return z.errorf("truncated entry data", readCause(err))
		}
		if z.limited.N > 0 {
			return z.errorf("truncated entry data", io.ErrUnexpectedEOF)
		}
	}
	compressed := uint64(z.src.n - z.dataAt)

	if e.hasDataDescriptor() && !z.descriptorRead {
		if err := z.readDataDescriptor(e, compressed); err != nil {
			return err
		}
	}
	if z.produced != e.Size {
		if z.produced < e.Size && e.Method == Store {
			return z.errorf("truncated entry data", io.ErrUnexpectedEOF)
		}
		return z.errorf("uncompressed size mismatch", nil)
	}
	if z.crc.Sum32() != e.CRC32 {
		return z.errorf("checksum mismatch", nil)
	}
	return nil
}

func (z *Reader) readDataDescriptor(e *Entry, compressed uint64) error {
	sizeLen := 4
	if e.zip64 {
		sizeLen = 8
	}
	var first [4]byte
	if _, err := io.ReadFull(z.src, first[:]); err != nil {
		return z.errorf("truncated data descriptor", readCause(err))
	}
	crc := binary.LittleEndian.Uint32(first[:])
	if crc == sigDataDescriptor {
		if _, err := io.ReadFull(z.src, first[:]); err != nil {
			return z.errorf("truncated data descriptor", readCause(err))
		}
		crc = binary.LittleEndian.Uint32(first[:])
	}
	sizes := make([]byte, 2*sizeLen)
	if _, err := io.ReadFull(z.src, sizes); err != nil {
		return z.errorf("truncated data descriptor", readCause(err))
	}
	b := readBuf(sizes)
	var csize, usize uint64
	if e.zip64 {
		csize, usize = b.uint64(), b.uint64()
	} else {
		csize, usize = uint64(b.uint32()), uint64(b.uint32())
	}
	if csize != compressed {
		return z.errorf("compressed size mismatch", nil)
	}
	e.CRC32, e.CompressedSize, e.Size = crc, csize, usize
	return nil
}

// scanStored reads a stored entry whose sizes only appear in the trailing data
// descriptor. The content ends where a descriptor, signed or not, matches both
// the length read so far and its checksum.
func (z *Reader) scanStored(e *Entry) ([]byte, error) {
	const (
		signedLen   = 16
		unsignedLen = 12
	)
	var buf []byte
	for {
		c, err := z.src.ReadByte()
		if err != nil {
			return nil, z.errorf("truncated stored entry", readCause(err))
		}
		buf = append(buf, c)
		if len(buf) > signedLen && z.exceedsLimit(uint64(len(buf)-signedLen)) {
			return nil, z.tooLarge()
		}
		if len(buf) >= signedLen {
			tail := readBuf(buf[len(buf)-signedLen:])
			if tail.uint32() == sigDataDescriptor && z.storedDescriptor(e, buf[:len(buf)-signedLen], tail) {
				return buf[:len(buf)-signedLen], nil
			}
		}
		if len(buf) >= unsignedLen {
			tail := readBuf(buf[len(buf)-unsignedLen:])
			if z.storedDescriptor(e, buf[:len(buf)-unsignedLen], tail) {
				return buf[:len(buf)-unsignedLen], nil
			}
		}
	}
}

// storedDescriptor reports whether desc (crc, compressed and uncompressed
// size) describes content, and records it on e if so.
func (z *Reader) storedDescriptor(e *Entry, content []byte, desc readBuf) bool {
	crc, csize, usize := desc.uint32(), uint64(desc.uint32()), uint64(desc.uint32())
	n := uint64(len(content))
	if csize != n || usize != n || crc32.ChecksumIEEE(content) != crc {
		return false
	}
	e.CRC32, e.CompressedSize, e.Size = crc, csize, usize
	z.descriptorRead = true
	return true
}

// skipRest drains the current entry so the stream is positioned at the next header.
func (z *Reader) skipRest() error {
	if z.entryEOF {
		return nil
	}
	if _, err := io.Copy(io.Discard, z); err != nil {
		return err
	}
	return nil
}

// Walk calls fn for every non-directory entry whose name satisfies match (nil
// matches everything), passing the entry's full content. Non-matching entries
// are skipped without being buffered. Returning ErrStop from fn ends the walk
// cleanly; any other error is returned as is.
func Walk(r io.Reader, match func(name string) bool, fn func(e *Entry, content []byte) error, opts ...ReaderOption) error {
	zr := NewReader(r, opts...)
	defer zr.Close()
	for {
		e, err := zr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if match != nil && !match(e.Name) {
			continue
		}
		content, err := io.ReadAll(zr)
		if err != nil {
			return err
		}
		if err := fn(e, content); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

func parseZip64Extra(e *Entry, extra []byte) {
	for len(extra) >= 4 {
		b := readBuf(extra)
		id, size := b.uint16(), int(b.uint16())
		extra = extra[4:]
		if size > len(extra) {
			return
		}
		field := readBuf(extra[:size])
		extra = extra[size:]
		if id != zip64ExtraID {
			continue
		}
		e.zip64 = true
		if e.Size == uint32Max && len(field) >= 8 {
			e.Size = field.uint64()
		}
		if e.CompressedSize == uint32Max && len(field) >= 8 {
			e.CompressedSize = field.uint64()
		}
	}
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	if dosDate == 0 && dosTime == 0 {
		return time.Time{}
	}
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}

type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

// countingReader tracks the input offset. It implements io.ByteReader so the
// inflater consumes exactly the compressed bytes and nothing past them.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// readCause keeps a failure of the underlying stream visible to errors.Is and
// errors.As; running out of input is reported as io.ErrUnexpectedEOF.
func readCause(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
