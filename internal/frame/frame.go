// Package frame implements the length-prefixed binary framing used on the
// worker's socket: every frame is a u32 big-endian length followed by
// exactly that many payload bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/procbridge/coworker/internal/bytesize"
	"github.com/procbridge/coworker/pkg/bufpool"
)

const headerSize = 4

// ErrPeerGone classifies a broken pipe or connection reset encountered
// while writing a frame. The peer may simply have disconnected after
// sending a cancellation; this is expected and must not be logged as an
// error.
var ErrPeerGone = errors.New("frame: peer gone")

// ErrFrameTooLarge is returned by ReadFrame when a frame's declared length
// exceeds the configured ceiling.
var ErrFrameTooLarge = errors.New("frame: frame too large")

// ErrShortRead classifies a premature EOF while reading a frame header or
// body — a protocol-framing error distinct from the clean "no more
// frames" EOF that occurs only before any header byte has been read.
var ErrShortRead = errors.New("frame: short read")

// Conn wraps a net.Conn with framed read/write and an optional maximum
// frame size. A zero-value MaxSize means unlimited, matching spec's "no
// maximum frame size in the protocol" default.
type Conn struct {
	nc      net.Conn
	MaxSize bytesize.ByteSize
	pool    *bufpool.Pool
}

// New wraps nc for framed I/O. pool may be nil, in which case the package
// global buffer pool is used.
func New(nc net.Conn, maxSize bytesize.ByteSize, pool *bufpool.Pool) *Conn {
	return &Conn{nc: nc, MaxSize: maxSize, pool: pool}
}

// ReadFrame reads one frame's payload. io.EOF is returned when the
// connection is closed cleanly before any header byte is read ("no more
// frames"); any other truncation is wrapped in ErrShortRead, a
// protocol-framing error.
func (c *Conn) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.nc, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Join(ErrShortRead, err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if c.MaxSize > 0 && bytesize.ByteSize(length) > c.MaxSize {
		return nil, ErrFrameTooLarge
	}

	buf := c.get(int(length))
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		c.put(buf)
		return nil, errors.Join(ErrShortRead, err)
	}
	return buf, nil
}

// WriteFrame writes payload as one frame: a 4-byte big-endian length
// header followed by the payload, each written to completion. A broken
// pipe or connection reset is reported as ErrPeerGone.
func (c *Conn) WriteFrame(payload []byte) error {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if err := c.writeAll(header[:]); err != nil {
		return err
	}
	return c.writeAll(payload)
}

func (c *Conn) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := c.nc.Write(b)
		if err != nil {
			if isPeerGone(err) {
				return ErrPeerGone
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

// Close closes the underlying connection. It unblocks any goroutine
// currently parked in ReadFrame on the same Conn.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Release returns a buffer previously returned by ReadFrame to the pool.
// Callers that decode the frame payload into a Go value and no longer
// need the raw bytes should call this to reduce allocation under
// sustained request load.
func (c *Conn) Release(buf []byte) {
	c.put(buf)
}

func (c *Conn) get(size int) []byte {
	if c.pool != nil {
		return c.pool.Get(size)
	}
	return bufpool.Get(size)
}

func (c *Conn) put(buf []byte) {
	if c.pool != nil {
		c.pool.Put(buf)
		return
	}
	bufpool.Put(buf)
}

func isPeerGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
