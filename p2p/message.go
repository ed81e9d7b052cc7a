package p2p

import (
	"bytes"
	"errors"
	"io"
)

// Reserved message codes of the base wire protocol, sent outside any
// capability's offset range. Base protocol length is 16, so the first
// capability is assigned offset 16.
const (
	handshakeMsg  = 0x00
	discMsg       = 0x01
	pingMsg       = 0x02
	pongMsg       = 0x03
	baseProtocolLength = uint64(16)
)

// Msg is a P2P message, transferred as a single frame over a Conn.
type Msg struct {
	Code    uint64
	Size    uint32
	Payload []byte
}

// Decode parses the RLP content of the message into val.
func (msg Msg) Decode(val interface{}) error {
	return decodeRLP(bytes.NewReader(msg.Payload), val)
}

// MsgReader is implemented by anything that can deliver P2P messages one
// at a time, such as a single capability's slice of a Peer's connection.
type MsgReader interface {
	ReadMsg() (Msg, error)
}

// MsgWriter is implemented by anything that can send one P2P message.
type MsgWriter interface {
	WriteMsg(Msg) error
}

// MsgReadWriter provides reading and writing of P2P messages.
type MsgReadWriter interface {
	MsgReader
	MsgWriter
}

// Send writes an RLP-encoded message with the given code.
func Send(w MsgWriter, msgcode uint64, data interface{}) error {
	payload, err := encodeRLP(data)
	if err != nil {
		return err
	}
	return w.WriteMsg(Msg{Code: msgcode, Size: uint32(len(payload)), Payload: payload})
}

// SendItems writes an RLP list message built from the given items.
func SendItems(w MsgWriter, msgcode uint64, elems ...interface{}) error {
	return Send(w, msgcode, elems)
}

// protoRW implements MsgReadWriter scoped to one negotiated capability: it
// offsets outgoing codes by the capability's assigned base and, on the
// receive side, is fed decoded messages by the Peer's central dispatch
// loop through a channel rather than reading the wire itself (only one
// goroutine — the dispatch loop — may read frames off the shared Conn).
type protoRW struct {
	Protocol
	in     chan Msg
	offset uint64
	w      MsgWriter
	closed <-chan struct{}
}

func (rw *protoRW) WriteMsg(msg Msg) error {
	if msg.Code >= rw.Length {
		return errInvalidMsgCode
	}
	msg.Code += rw.offset
	return rw.w.WriteMsg(msg)
}

func (rw *protoRW) ReadMsg() (Msg, error) {
	select {
	case msg := <-rw.in:
		return msg, nil
	case <-rw.closed:
		return Msg{}, io.EOF
	}
}

var errInvalidMsgCode = errors.New("message code out of range for protocol")
