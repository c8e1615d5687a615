package datapath

import "fmt"

const defaultHeadroom = 64

// Packet is a frame buffer with copy-on-write semantics. Packets created
// by NewPacket or Clone share their storage until one of them is
// mutated; every mutating method calls EnsureWritable first.
type Packet struct {
	buf    []byte
	off    int
	shared bool
}

// NewPacket wraps b without copying it. b must not be modified by the
// caller afterwards.
func NewPacket(b []byte) *Packet {
	return &Packet{buf: b, shared: true}
}

// Bytes returns the frame. The returned slice must not be modified, use
// EnsureWritable and Data for that.
func (p *Packet) Bytes() []byte { return p.buf[p.off:] }

func (p *Packet) Len() int { return len(p.buf) - p.off }

// Clone returns a packet sharing the storage of p.
func (p *Packet) Clone() *Packet {
	p.shared = true
	return &Packet{buf: p.buf, off: p.off, shared: true}
}

// Shared tells whether the storage may be referenced by another packet.
func (p *Packet) Shared() bool { return p.shared }

// EnsureWritable copies the frame into private storage with at least
// headroom free bytes in front of it, unless it is private and has enough
// headroom already.
func (p *Packet) EnsureWritable(headroom int) {
	if !p.shared && p.off >= headroom {
		return
	}

	if headroom < defaultHeadroom {
		headroom = defaultHeadroom
	}

	b := make([]byte, headroom+p.Len())
	copy(b[headroom:], p.Bytes())
	p.buf, p.off, p.shared = b, headroom, false
}

// Data returns the writable frame.
func (p *Packet) Data() []byte {
	p.EnsureWritable(0)
	return p.buf[p.off:]
}

// Push prepends n zero bytes and returns them.
func (p *Packet) Push(n int) []byte {
	p.EnsureWritable(n)
	p.off -= n
	h := p.buf[p.off : p.off+n]
	clear(h)
	return h
}

// Pull removes n bytes from the front of the frame. The storage is not
// written, so it doesn't need to be private.
func (p *Packet) Pull(n int) error {
	if n > p.Len() {
		return fmt.Errorf("%w: cannot pull %d of %d bytes", ErrShortPacket, n, p.Len())
	}

	p.off += n
	return nil
}
