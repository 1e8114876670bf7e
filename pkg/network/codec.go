package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/kestrelnet/kestrel/pkg/crypto"
	"github.com/kestrelnet/kestrel/pkg/protocol"
)

var (
	ErrHandshakeNotEstablished = errors.New("handshake not established")
	ErrFrameTooLarge           = errors.New("frame too large")
)

// Frame flags.
const flagEncrypted byte = 0x01

const frameHeaderSize = 3 // u16 body length + u8 flags

// FrameCodec moves envelopes across a byte stream. Framing is a 2-byte
// big-endian body length and a flag byte, then the envelope body. When a
// direction's session cipher is armed, the body is sealed; the length
// prefix and flag byte stay in the clear.
//
// The ciphers are armed from the reader goroutine (handshake handlers)
// and read from both loops, hence the atomic pointers.
type FrameCodec struct {
	reg  *protocol.Registry
	seal atomic.Pointer[crypto.SessionCipher] // outbound
	open atomic.Pointer[crypto.SessionCipher] // inbound
}

// NewFrameCodec creates a codec bound to a schema registry.
func NewFrameCodec(reg *protocol.Registry) *FrameCodec {
	return &FrameCodec{reg: reg}
}

// ArmInbound installs the cipher for decoding received frames.
func (c *FrameCodec) ArmInbound(cipher *crypto.SessionCipher) {
	c.open.Store(cipher)
}

// ArmOutbound installs the cipher for sealing written frames. Every
// frame written afterwards is encrypted.
func (c *FrameCodec) ArmOutbound(cipher *crypto.SessionCipher) {
	c.seal.Store(cipher)
}

// WriteEnvelope encodes and frames one envelope onto w.
func (c *FrameCodec) WriteEnvelope(w io.Writer, env *protocol.Envelope) error {
	body, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	var flags byte
	if cipher := c.seal.Load(); cipher != nil {
		body, err = cipher.Seal(body)
		if err != nil {
			return err
		}
		flags |= flagEncrypted
	}

	if len(body) > math.MaxUint16 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	frame := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint16(frame[0:2], uint16(len(body)))
	frame[2] = flags
	copy(frame[frameHeaderSize:], body)

	_, err = w.Write(frame)
	return err
}

// ReadEnvelope reads and decodes one envelope from r. An encrypted frame
// arriving before the inbound cipher is armed fails with
// ErrHandshakeNotEstablished.
func (c *FrameCodec) ReadEnvelope(r io.Reader) (*protocol.Envelope, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	bodyLen := int(binary.BigEndian.Uint16(hdr[0:2]))
	flags := hdr[2]

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	if flags&flagEncrypted != 0 {
		cipher := c.open.Load()
		if cipher == nil {
			return nil, ErrHandshakeNotEstablished
		}
		var err error
		body, err = cipher.Open(body)
		if err != nil {
			return nil, err
		}
	}

	return protocol.Decode(c.reg, body)
}
