package p2p

import (
	"io"
	"sync"
)

// MsgPipe creates a pair of in-memory, pipe-connected MsgReadWriters for
// unit-testing a Protocol's Run handler without a real socket or RLPx
// handshake — one end plays "us", the other "the remote peer".
func MsgPipe() (*MsgPipeRW, *MsgPipeRW) {
	c1 := make(chan Msg)
	c2 := make(chan Msg)
	closing := make(chan struct{})
	once := new(sync.Once)
	return &MsgPipeRW{c1, c2, closing, once}, &MsgPipeRW{c2, c1, closing, once}
}

// MsgPipeRW is one end of a pipe returned by MsgPipe.
type MsgPipeRW struct {
	w       chan<- Msg
	r       <-chan Msg
	closing chan struct{}
	once    *sync.Once
}

func (p *MsgPipeRW) WriteMsg(msg Msg) error {
	select {
	case p.w <- msg:
		return nil
	case <-p.closing:
		return io.ErrClosedPipe
	}
}

func (p *MsgPipeRW) ReadMsg() (Msg, error) {
	select {
	case msg := <-p.r:
		return msg, nil
	case <-p.closing:
		return Msg{}, io.ErrClosedPipe
	}
}

// Close unblocks any pending read or write on either end of the pipe.
func (p *MsgPipeRW) Close() error {
	p.once.Do(func() { close(p.closing) })
	return nil
}
