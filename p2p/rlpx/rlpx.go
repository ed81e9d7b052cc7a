package rlpx

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"io"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// Conn is an RLPx network connection: the raw TCP (or net.Conn-compatible)
// socket plus, once DialHandshake or AcceptHandshake has run, the derived
// frame cipher state. Conn forwards Close, the address getters and the
// deadline setters to the socket, but it has no Read/Write methods and
// does not implement net.Conn; messages go through ReadMsg and WriteMsg.
type Conn struct {
	conn   net.Conn
	frame  *frameState
	remote *ecdsa.PublicKey
}

// NewConn wraps an already-connected socket. DialHandshake or
// AcceptHandshake must be called before ReadMsg/WriteMsg are used.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// DialHandshake performs the initiator side of the RLPx handshake over an
// already-connected socket, identifying this node with prv and expecting
// remotePub as the listener's static identity.
func (c *Conn) DialHandshake(prv *ecdsa.PrivateKey, remotePub *ecdsa.PublicKey) error {
	s, err := InitiatorHandshake(c.conn, prv, remotePub)
	if err != nil {
		return err
	}
	c.frame, err = newFrameState(s)
	c.remote = remotePub
	return err
}

// AcceptHandshake performs the receiver side of the RLPx handshake,
// identifying this node with prv. It returns the dialer's recovered
// static public key.
func (c *Conn) AcceptHandshake(prv *ecdsa.PrivateKey) (*ecdsa.PublicKey, error) {
	s, remotePub, err := ReceiverHandshake(c.conn, prv)
	if err != nil {
		return nil, err
	}
	c.frame, err = newFrameState(s)
	if err != nil {
		return nil, err
	}
	c.remote = remotePub
	return remotePub, nil
}

// RemotePublicKey returns the peer's static identity key, valid only
// after a successful handshake.
func (c *Conn) RemotePublicKey() *ecdsa.PublicKey { return c.remote }

var errHandshakeNotDone = errors.New("rlpx: handshake not completed")

// ReadMsg reads one framed message: its 64-bit message code and
// RLP-encoded payload.
func (c *Conn) ReadMsg() (code uint64, data []byte, err error) {
	if c.frame == nil {
		return 0, nil, errHandshakeNotDone
	}
	return c.frame.ReadFrame(c.conn)
}

// WriteMsg writes one framed message.
func (c *Conn) WriteMsg(code uint64, data []byte) error {
	if c.frame == nil {
		return errHandshakeNotDone
	}
	return c.frame.WriteFrame(c.conn, code, data)
}

func (c *Conn) Close() error                       { return c.conn.Close() }
func (c *Conn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error   { return c.conn.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error  { return c.conn.SetWriteDeadline(t) }

// encodeFrameBody lays out a frame body as the RLP encoding of the message
// code immediately followed by the already-RLP-encoded payload, per the
// RLPx spec's "frame-data = msg-id || msg-data" rule (concatenation, not
// a further list wrapping).
func encodeFrameBody(code uint64, payload []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rlp.Encode(buf, code); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// decodeFrameBody parses the leading RLP-encoded message code by hand:
// the code is always small enough to fit the single-byte or short-string
// RLP integer forms, so a full rlp.Stream isn't needed just to find where
// it ends within the concatenated frame body.
func decodeFrameBody(body []byte) (code uint64, payload []byte, err error) {
	if len(body) == 0 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	b0 := body[0]
	switch {
	case b0 < 0x80:
		return uint64(b0), body[1:], nil
	case b0 < 0xb8:
		n := int(b0 - 0x80)
		if len(body) < 1+n {
			return 0, nil, io.ErrUnexpectedEOF
		}
		var v uint64
		for _, b := range body[1 : 1+n] {
			v = v<<8 | uint64(b)
		}
		return v, body[1+n:], nil
	default:
		return 0, nil, errors.New("rlpx: message code field too large")
	}
}
