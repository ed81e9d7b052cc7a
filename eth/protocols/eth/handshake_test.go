package eth

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/stretchr/testify/require"

	"github.com/execore/execore/p2p"
)

func pipePeers(t *testing.T, version uint) (*Peer, *Peer) {
	t.Helper()
	app, net := p2p.MsgPipe()
	t.Cleanup(func() { app.Close(); net.Close() })
	return NewPeer(version, "local", app, nil), NewPeer(version, "remote", net, nil)
}

func TestHandshakeSucceedsOnMatchingStatus(t *testing.T) {
	local, remote := pipePeers(t, ETH68)
	genesis := common.HexToHash("0x1")
	head := common.HexToHash("0x2")
	td := big.NewInt(100)

	errc := make(chan error, 2)
	go func() { errc <- local.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()
	go func() { errc <- remote.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()

	require.NoError(t, <-errc)
	require.NoError(t, <-errc)
}

func TestHandshakeRejectsNetworkIDMismatch(t *testing.T) {
	local, remote := pipePeers(t, ETH68)
	genesis := common.HexToHash("0x1")
	head := common.HexToHash("0x2")
	td := big.NewInt(100)

	errc := make(chan error, 2)
	go func() { errc <- local.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()
	go func() { errc <- remote.Handshake(2, td, head, genesis, forkid.ID{}, nil) }()

	first, second := <-errc, <-errc
	require.True(t, errors.Is(first, errNetworkIDMismatch) || errors.Is(second, errNetworkIDMismatch))
}

func TestHandshakeRejectsGenesisMismatch(t *testing.T) {
	local, remote := pipePeers(t, ETH68)
	td := big.NewInt(100)
	head := common.HexToHash("0x2")

	errc := make(chan error, 2)
	go func() { errc <- local.Handshake(1, td, head, common.HexToHash("0x1"), forkid.ID{}, nil) }()
	go func() { errc <- remote.Handshake(1, td, head, common.HexToHash("0x2"), forkid.ID{}, nil) }()

	first, second := <-errc, <-errc
	require.True(t, errors.Is(first, errGenesisMismatch) || errors.Is(second, errGenesisMismatch))
}

func TestHandshakeRejectsProtocolVersionMismatch(t *testing.T) {
	app, net := p2p.MsgPipe()
	defer app.Close()
	defer net.Close()
	local := NewPeer(ETH67, "local", app, nil)
	remote := NewPeer(ETH68, "remote", net, nil)

	genesis := common.HexToHash("0x1")
	head := common.HexToHash("0x2")
	td := big.NewInt(100)

	errc := make(chan error, 2)
	go func() { errc <- local.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()
	go func() { errc <- remote.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()

	first, second := <-errc, <-errc
	require.True(t, errors.Is(first, errProtocolVersionMismatch) || errors.Is(second, errProtocolVersionMismatch))
}

func TestHandshakeRejectsForkID(t *testing.T) {
	local, remote := pipePeers(t, ETH68)
	genesis := common.HexToHash("0x1")
	head := common.HexToHash("0x2")
	td := big.NewInt(100)

	rejecting := func(forkid.ID) error { return errForkIDRejected }

	errc := make(chan error, 2)
	go func() { errc <- local.Handshake(1, td, head, genesis, forkid.ID{}, rejecting) }()
	go func() { errc <- remote.Handshake(1, td, head, genesis, forkid.ID{}, nil) }()

	first, second := <-errc, <-errc
	require.True(t, errors.Is(first, errForkIDRejected) || errors.Is(second, errForkIDRejected))
}
