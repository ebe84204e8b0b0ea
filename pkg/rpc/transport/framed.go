package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize caps the declared length of an incoming frame. A peer
// announcing a larger frame is treated as misbehaving rather than allowed
// to drive an arbitrary allocation.
const MaxFrameSize = 16 * 1024 * 1024

// Framed delimits message boundaries on a base transport without adding
// any security semantics. Each message is a 4-byte big-endian length
// followed by the payload. Writes accumulate until Flush emits one frame;
// reads consume one incoming frame at a time.
type Framed struct {
	base Transport
	wbuf bytes.Buffer
	rbuf bytes.Reader
}

// NewFramed wraps base with message framing.
func NewFramed(base Transport) *Framed {
	return &Framed{base: base}
}

// Open opens the base transport.
func (f *Framed) Open() error {
	return f.base.Open()
}

// IsOpen reports whether the base transport is open.
func (f *Framed) IsOpen() bool {
	return f.base.IsOpen()
}

func (f *Framed) Read(p []byte) (int, error) {
	if f.rbuf.Len() == 0 {
		if err := f.readFrame(); err != nil {
			return 0, err
		}
	}
	return f.rbuf.Read(p)
}

func (f *Framed) readFrame() error {
	var header [4]byte
	if _, err := io.ReadFull(f.base, header[:]); err != nil {
		return err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(f.base, payload); err != nil {
		return fmt.Errorf("transport: short frame read: %w", err)
	}

	f.rbuf.Reset(payload)
	return nil
}

func (f *Framed) Write(p []byte) (int, error) {
	return f.wbuf.Write(p)
}

// Flush emits all buffered writes as a single frame.
func (f *Framed) Flush() error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(f.wbuf.Len()))

	if _, err := f.base.Write(header[:]); err != nil {
		return err
	}
	if _, err := f.base.Write(f.wbuf.Bytes()); err != nil {
		return err
	}
	f.wbuf.Reset()

	return f.base.Flush()
}

// Close closes the base transport.
func (f *Framed) Close() error {
	return f.base.Close()
}

// FramedFactory wraps every connection with message framing only. This is
// the server-side strategy when authentication is disabled.
type FramedFactory struct{}

// NewFramedFactory creates a factory producing framed transports.
func NewFramedFactory() *FramedFactory {
	return &FramedFactory{}
}

// Wrap applies message framing to base.
func (*FramedFactory) Wrap(base Transport) (Transport, error) {
	return NewFramed(base), nil
}
