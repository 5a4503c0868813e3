// Package bytebuf implements a growable byte buffer with read and write
// cursors. TCP record reassembly in internal/rpcconn collects fragment
// payloads in a Buffer; the XDR codec and the protocol clients work on
// bytes.Buffer and io.Reader instead.
package bytebuf

import (
	"fmt"
	"io"
)

// Buffer is a growable byte array with independent read and write cursors,
// used the way a bytes.Buffer plus a bytes.Reader would be used together
// — except both cursors live on the same backing array so a
// packet can be partially sent, partially decoded, and reused without
// reallocating.
type Buffer struct {
	data []byte
	size int // number of valid bytes (<= cap(data))
	rpos int // read cursor
	wpos int // write cursor (partial-send progress)
}

// New returns an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

// FromBytes wraps an existing slice as a Buffer, ready for reading.
// The slice is taken by reference, not copied.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b, size: len(b)}
}

// Size returns the number of valid (appended) bytes.
func (b *Buffer) Size() int { return b.size }

// Capacity returns the current backing array capacity.
func (b *Buffer) Capacity() int { return cap(b.data) }

// Bytes returns the valid portion of the backing array. The caller must not
// retain it across a subsequent mutating call, since growth may reallocate.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// Clear resets size and both cursors without releasing the backing array.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
	b.size = 0
	b.rpos = 0
	b.wpos = 0
}

// ReadCursor returns the current read-cursor offset.
func (b *Buffer) ReadCursor() int { return b.rpos }

// WriteCursor returns the current write-cursor (partial-send progress) offset.
func (b *Buffer) WriteCursor() int { return b.wpos }

// SeekRead moves the read cursor to an absolute offset within [0, size].
func (b *Buffer) SeekRead(offset int) error {
	if offset < 0 || offset > b.size {
		return fmt.Errorf("bytebuf: seek_ptr offset %d out of range [0,%d]", offset, b.size)
	}
	b.rpos = offset
	return nil
}

// ResetWriteCursor rewinds the partial-send write cursor to zero so a packet
// already queued for sending can be resent from the start (e.g. after a
// reconnect).
func (b *Buffer) ResetWriteCursor() { b.wpos = 0 }

// Reserve grows the backing array so at least `extra` more bytes can be
// appended without a further reallocation. Growth is geometric: the new
// capacity is at least double the old one, or double the requested size,
// whichever is larger.
func (b *Buffer) Reserve(extra int) {
	needed := b.size + extra
	if needed <= cap(b.data) {
		return
	}
	newCap := cap(b.data) * 2
	if newCap < needed*2 {
		newCap = needed * 2
	}
	if newCap < needed {
		newCap = needed
	}
	grown := make([]byte, b.size, newCap)
	copy(grown, b.data[:b.size])
	b.data = grown
}

// Append grows the buffer and copies p onto the end, advancing size.
func (b *Buffer) Append(p []byte) {
	b.Reserve(len(p))
	b.data = b.data[:b.size+len(p)]
	copy(b.data[b.size:], p)
	b.size += len(p)
}

// ReadAt copies length bytes starting at offset. It fails if the requested
// range exceeds the backing capacity, mirroring the bounds rule that reads
// may reach into reserved-but-unwritten space only up to capacity.
func (b *Buffer) ReadAt(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > cap(b.data) {
		return nil, fmt.Errorf("bytebuf: read_at(%d,%d) exceeds capacity %d", offset, length, cap(b.data))
	}
	out := make([]byte, length)
	copy(out, b.data[offset:offset+length])
	return out, nil
}

// WriteAt overwrites length bytes of already-appended data starting at
// offset. It fails if the write would extend past the current size, since
// write_at only mutates data that has already been appended.
func (b *Buffer) WriteAt(offset int, data []byte, length int) error {
	if offset < 0 || length < 0 || offset+length > b.size {
		return fmt.Errorf("bytebuf: write_at(%d,%d) exceeds size %d", offset, length, b.size)
	}
	copy(b.data[offset:offset+length], data[:length])
	return nil
}

// Read implements io.Reader over the read cursor, advancing it and
// satisfying the xdr package's decode helpers which take an io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.rpos >= b.size {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.rpos:b.size])
	b.rpos += n
	return n, nil
}

// Write implements io.Writer, appending to the buffer so the xdr package's
// encode helpers (which take a *bytes.Buffer-like Writer) can target a
// Buffer directly.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Remaining returns the number of unread bytes between the read cursor and
// the end of valid data.
func (b *Buffer) Remaining() int { return b.size - b.rpos }
