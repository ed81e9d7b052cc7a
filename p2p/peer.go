package p2p

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"

	"github.com/execore/execore/log"
	"github.com/execore/execore/p2p/rlpx"
)

// DiscReason is a canonical RLPx disconnect reason, sent as the single
// payload element of a DISCONNECT message.
type DiscReason uint

const (
	DiscRequested DiscReason = iota
	DiscNetworkError
	DiscProtocolError
	DiscUselessPeer
	DiscTooManyPeers
	DiscAlreadyConnected
	DiscIncompatibleVersion
	DiscInvalidIdentity
	DiscQuitting
	DiscUnexpectedIdentity
	DiscSelf
	DiscReadTimeout
	_ // 0x0c..0x0f reserved
	_
	_
	_
	DiscSubprotocolError = 0x10
)

var discReasonStrings = map[DiscReason]string{
	DiscRequested:           "disconnect requested",
	DiscNetworkError:        "network error",
	DiscProtocolError:       "breach of protocol",
	DiscUselessPeer:         "useless peer",
	DiscTooManyPeers:        "too many peers",
	DiscAlreadyConnected:    "already connected",
	DiscIncompatibleVersion: "incompatible p2p protocol version",
	DiscInvalidIdentity:     "invalid node identity",
	DiscQuitting:            "client quitting",
	DiscUnexpectedIdentity:  "unexpected identity",
	DiscSelf:                "connected to self",
	DiscReadTimeout:         "read timeout",
	DiscSubprotocolError:    "subprotocol error",
}

func (d DiscReason) Error() string { return d.String() }
func (d DiscReason) String() string {
	if s, ok := discReasonStrings[d]; ok {
		return s
	}
	return fmt.Sprintf("unknown disconnect reason %d", uint(d))
}

// hello is the HELLO handshake payload: 5 RLP list items.
type hello struct {
	Version    uint
	Name       string
	Caps       []cap
	ListenPort uint
	ID         []byte

	Rest []rlp.RawValue `rlp:"tail"`
}

// pingPongVersion is the minimum negotiated base-protocol version at
// which PING/PONG payloads are snappy-compressed.
const pingPongVersion = 5

const pingInterval = 15 * time.Second

// Peer represents a connected, handshaked remote node: the RLPx session
// underneath it, the capabilities negotiated over it, and the running
// sub-protocol handlers reading and writing through per-capability
// protoRWs.
type Peer struct {
	rlpxConn *rlpx.Conn
	localID  *ecdsa.PrivateKey
	node     *enode.Node

	baseProtocolVersion uint
	caps                []cap
	running             map[string]*protoRW

	log log.Logger

	wg       sync.WaitGroup
	closed   chan struct{}
	closeOnce sync.Once
	disc     chan DiscReason

	pingRecv chan struct{}
}

// NewPeer wraps an already RLPx-handshaked connection and runs the HELLO
// exchange and capability negotiation against ourCaps.
func NewPeer(conn *rlpx.Conn, localID *ecdsa.PrivateKey, ourProtocols []Protocol, ourName string, logger log.Logger) (*Peer, []Protocol, error) {
	p := &Peer{
		rlpxConn: conn,
		localID:  localID,
		closed:   make(chan struct{}),
		disc:     make(chan DiscReason, 1),
		pingRecv: make(chan struct{}, 1),
		log:      logger,
	}
	remoteHello, err := p.doHelloHandshake(ourProtocols, ourName)
	if err != nil {
		return nil, nil, err
	}
	matched := negotiateProtocols(ourProtocols, remoteHello.Caps)
	if len(matched) == 0 {
		p.Disconnect(DiscUselessPeer)
		return nil, nil, errors.New("p2p: no matching capabilities")
	}
	p.baseProtocolVersion = remoteHello.Version
	return p, matched, nil
}

func (p *Peer) doHelloHandshake(ourProtocols []Protocol, ourName string) (*hello, error) {
	ourCaps := capsOf(ourProtocols)
	our := &hello{Version: baseProtocolVersion, Name: ourName, Caps: ourCaps}
	if p.localID != nil {
		our.ID = crypto.FromECDSAPub(&p.localID.PublicKey)[1:]
	}
	payload, err := encodeRLP(our)
	if err != nil {
		return nil, err
	}
	writeErr := make(chan error, 1)
	go func() { writeErr <- p.rlpxConn.WriteMsg(handshakeMsg, payload) }()

	code, data, err := p.rlpxConn.ReadMsg()
	if err != nil {
		return nil, err
	}
	if err := <-writeErr; err != nil {
		return nil, err
	}
	if code != handshakeMsg {
		p.Disconnect(DiscProtocolError)
		return nil, fmt.Errorf("p2p: expected HELLO, got code %d", code)
	}
	var remoteHello hello
	if err := decodeRLP(bytes.NewReader(data), &remoteHello); err != nil {
		p.Disconnect(DiscProtocolError)
		return nil, err
	}
	return &remoteHello, nil
}

const baseProtocolVersion = 5

func capsOf(protos []Protocol) []cap {
	caps := make([]cap, len(protos))
	for i, pr := range protos {
		caps[i] = cap{Name: pr.Name, Version: pr.Version}
	}
	return caps
}

// negotiateProtocols intersects ours and theirs by (name, version),
// keeping the highest shared version per name, then assigns increasing
// message-code offsets starting at baseProtocolLength in lexicographic
// order of capability name.
func negotiateProtocols(ours []Protocol, theirs []cap) []Protocol {
	bestVersion := make(map[string]uint)
	for _, c := range theirs {
		for _, our := range ours {
			if our.Name == c.Name && our.Version == c.Version {
				if c.Version > bestVersion[c.Name] {
					bestVersion[c.Name] = c.Version
				}
			}
		}
	}
	var names []string
	for name := range bestVersion {
		names = append(names, name)
	}
	sort.Strings(names)

	var matched []Protocol
	for _, name := range names {
		for _, our := range ours {
			if our.Name == name && our.Version == bestVersion[name] {
				matched = append(matched, our)
				break
			}
		}
	}
	return matched
}

// Run starts the negotiated protocol handlers and the central dispatch
// loop, blocking until the connection ends (local disconnect, remote
// disconnect, or transport error).
func (p *Peer) Run(matched []Protocol) DiscReason {
	offset := baseProtocolLength
	p.running = make(map[string]*protoRW, len(matched))
	for _, proto := range matched {
		rw := &protoRW{Protocol: proto, in: make(chan Msg, 16), offset: offset, w: writerFunc(p.writeFrame), closed: p.closed}
		p.running[proto.Name] = rw
		offset += proto.Length

		p.wg.Add(1)
		go func(proto Protocol, rw *protoRW) {
			defer p.wg.Done()
			if err := proto.Run(p, rw); err != nil {
				p.log.Debug("subprotocol exited", "proto", proto.Name, "err", err)
				p.Disconnect(DiscSubprotocolError)
			}
		}(proto, rw)
	}

	pingTimer := time.NewTimer(pingInterval)
	defer pingTimer.Stop()
	var pingTimeout *time.Timer
	readErr := make(chan error, 1)
	go p.readLoop(readErr)

	var reason DiscReason
loop:
	for {
		select {
		case err := <-readErr:
			if err != nil {
				reason = DiscNetworkError
			}
			break loop
		case reason = <-p.disc:
			break loop
		case <-pingTimer.C:
			p.sendPing()
			pingTimeout = time.AfterFunc(pingInterval/2, func() {
				select {
				case p.disc <- DiscReadTimeout:
				default:
				}
			})
			pingTimer.Reset(pingInterval)
		case <-p.pingRecv:
			if pingTimeout != nil {
				pingTimeout.Stop()
			}
		}
	}

	p.closeOnce.Do(func() { close(p.closed) })
	p.wg.Wait()
	return reason
}

func (p *Peer) writeFrame(code uint64, data []byte) error {
	if p.baseProtocolVersion >= pingPongVersion && code != handshakeMsg {
		data = snappy.Encode(nil, data)
	}
	return p.rlpxConn.WriteMsg(code, data)
}

type writerFunc func(code uint64, data []byte) error

func (f writerFunc) WriteMsg(msg Msg) error { return f(msg.Code, msg.Payload) }

// readLoop owns the only Read of the underlying rlpx.Conn: it demuxes
// each frame by code, handling DISCONNECT/PING/PONG itself and routing
// every other code to the capability it belongs to; a code outside every
// capability (HELLO's included) ends the loop with an error.
func (p *Peer) readLoop(errc chan<- error) {
	for {
		code, data, err := p.rlpxConn.ReadMsg()
		if err != nil {
			errc <- err
			return
		}
		if err := p.dispatch(code, data); err != nil {
			errc <- err
			return
		}
	}
}

func (p *Peer) dispatch(code uint64, data []byte) error {
	switch code {
	case discMsg:
		return p.handleDisconnect(data)
	case pingMsg:
		p.pingRecv <- struct{}{}
		return p.sendPong()
	case pongMsg:
		select {
		case p.pingRecv <- struct{}{}:
		default:
		}
		return nil
	default:
		return p.routeToCapability(code, data)
	}
}

func (p *Peer) routeToCapability(code uint64, data []byte) error {
	var names []string
	for name := range p.running {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rw := p.running[name]
		if code >= rw.offset && code < rw.offset+rw.Length {
			payload := data
			if p.baseProtocolVersion >= pingPongVersion {
				if dec, err := snappy.Decode(nil, data); err == nil {
					payload = dec
				}
			}
			select {
			case rw.in <- Msg{Code: code - rw.offset, Size: uint32(len(payload)), Payload: payload}:
			case <-p.closed:
			}
			return nil
		}
	}
	return fmt.Errorf("p2p: message code %d outside any negotiated capability", code)
}

// handleDisconnect implements the documented snappy-fallback workaround:
// a DISCONNECT frame may arrive before the peer has learned this side's
// negotiated version (pre-handshake) or after (post-handshake,
// potentially compressed), so it tries to decode the payload as plain
// RLP first and, if that fails, retries after snappy-decompressing it —
// preserved as a hotfix rather than "cleaned up", per the design note.
func (p *Peer) handleDisconnect(data []byte) error {
	var reason [1]DiscReason
	if err := decodeRLP(bytes.NewReader(data), &reason); err != nil {
		if dec, derr := snappy.Decode(nil, data); derr == nil {
			if err2 := decodeRLP(bytes.NewReader(dec), &reason); err2 == nil {
				return reason[0]
			}
		}
		return DiscProtocolError
	}
	return reason[0]
}

func (p *Peer) sendPing() error {
	payload := []byte{0xc0} // empty RLP list
	if p.baseProtocolVersion >= pingPongVersion {
		payload = snappy.Encode(nil, payload)
	}
	return p.rlpxConn.WriteMsg(pingMsg, payload)
}

func (p *Peer) sendPong() error {
	payload := []byte{0xc0}
	if p.baseProtocolVersion >= pingPongVersion {
		payload = snappy.Encode(nil, payload)
	}
	return p.rlpxConn.WriteMsg(pongMsg, payload)
}

// Disconnect sends a DISCONNECT message (best effort) and schedules the
// session to end; the 2s grace period gives the remote side time to
// drain the reason before the socket closes.
func (p *Peer) Disconnect(reason DiscReason) {
	select {
	case p.disc <- reason:
	default:
	}
	go func() {
		payload, _ := encodeRLPList(reason)
		_ = p.rlpxConn.WriteMsg(discMsg, payload)
		time.AfterFunc(2*time.Second, func() { p.rlpxConn.Close() })
	}()
}

func (p *Peer) ID() enode.ID {
	if p.rlpxConn.RemotePublicKey() == nil {
		return enode.ID{}
	}
	return enode.PubkeyToIDV4(p.rlpxConn.RemotePublicKey())
}

func (p *Peer) RemoteAddr() net.Addr { return p.rlpxConn.RemoteAddr() }
