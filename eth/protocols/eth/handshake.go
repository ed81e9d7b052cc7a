package eth

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"

	"github.com/execore/execore/p2p"
)

const handshakeTimeout = 5 * time.Second

var (
	errNoStatusMsg             = errors.New("first message was not STATUS")
	errExtraStatusMsg          = errors.New("extra STATUS message")
	errProtocolVersionMismatch = errors.New("protocol version mismatch")
	errNetworkIDMismatch       = errors.New("network ID mismatch")
	errGenesisMismatch         = errors.New("genesis mismatch")
	errForkIDRejected          = errors.New("fork ID rejected")
)

// Handshake executes the STATUS message exchange that must immediately
// follow HELLO on every eth connection: both sides send their view of the
// network before either will accept any other message, so a peer on the
// wrong chain, network, or fork schedule is rejected up front instead of
// after wasting bandwidth on pooled-transaction traffic.
func (p *Peer) Handshake(networkID uint64, td *big.Int, head, genesis common.Hash, forkID forkid.ID, forkFilter forkid.Filter) error {
	errc := make(chan error, 2)
	var status StatusPacket

	go func() {
		errc <- p2p.Send(p.rw, StatusMsg, &StatusPacket{
			ProtocolVersion: uint32(p.version),
			NetworkID:       networkID,
			TD:              td,
			Head:            head,
			Genesis:         genesis,
			ForkID:          forkID,
		})
	}()
	go func() {
		errc <- p.readStatus(&status, networkID, genesis, forkFilter)
	}()

	timeout := time.NewTimer(handshakeTimeout)
	defer timeout.Stop()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			if err != nil {
				return err
			}
		case <-timeout.C:
			return p2p.DiscReadTimeout
		}
	}
	return nil
}

func (p *Peer) readStatus(status *StatusPacket, networkID uint64, genesis common.Hash, forkFilter forkid.Filter) error {
	msg, err := p.rw.ReadMsg()
	if err != nil {
		return err
	}
	if msg.Code != StatusMsg {
		return fmt.Errorf("%w: first msg has code %x (!= %x)", errNoStatusMsg, msg.Code, StatusMsg)
	}
	if err := msg.Decode(status); err != nil {
		return fmt.Errorf("%w: %v", errNoStatusMsg, err)
	}
	if status.NetworkID != networkID {
		return fmt.Errorf("%w: %d (!= %d)", errNetworkIDMismatch, status.NetworkID, networkID)
	}
	if uint(status.ProtocolVersion) != p.version {
		return fmt.Errorf("%w: %d (!= %d)", errProtocolVersionMismatch, status.ProtocolVersion, p.version)
	}
	if status.Genesis != genesis {
		return fmt.Errorf("%w: %x (!= %x)", errGenesisMismatch, status.Genesis, genesis)
	}
	if forkFilter != nil {
		if err := forkFilter(status.ForkID); err != nil {
			return fmt.Errorf("%w: %v", errForkIDRejected, err)
		}
	}
	return nil
}
