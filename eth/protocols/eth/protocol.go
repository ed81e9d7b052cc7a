// Package eth implements the eth sub-protocol surface the transaction pool
// needs: STATUS handshake, pooled-transaction announcement and retrieval.
// Block and receipt synchronization are out of scope.
package eth

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/forkid"
	"github.com/execore/execore/core/types"
)

// Protocol version numbers negotiated during the RLPx HELLO exchange.
const (
	ETH66 = 66
	ETH67 = 67
	ETH68 = 68
)

// ProtocolName is the official short name of the protocol used during
// capability negotiation.
const ProtocolName = "eth"

// ProtocolVersions lists the supported versions, newest first.
var ProtocolVersions = []uint{ETH68, ETH67, ETH66}

// protocolLengths is the number of message codes reserved per version.
var protocolLengths = map[uint]uint64{ETH68: 17, ETH67: 17, ETH66: 17}

const protocolMaxMsgSize = 10 * 1024 * 1024

// eth protocol message codes.
const (
	StatusMsg                     = 0x00
	NewBlockHashesMsg              = 0x01
	TransactionsMsg                = 0x02
	GetBlockHeadersMsg              = 0x03
	BlockHeadersMsg                 = 0x04
	GetBlockBodiesMsg               = 0x05
	BlockBodiesMsg                  = 0x06
	NewBlockMsg                     = 0x07
	NewPooledTransactionHashesMsg   = 0x08
	GetPooledTransactionsMsg        = 0x09
	PooledTransactionsMsg           = 0x0a
	GetReceiptsMsg                  = 0x0f
	ReceiptsMsg                     = 0x10
)

// StatusPacket is the payload of a STATUS message: the first message sent
// by both sides immediately after HELLO, used to verify the two peers
// speak a compatible, same-network, same-chain protocol before any
// transaction traffic is exchanged.
type StatusPacket struct {
	ProtocolVersion uint32
	NetworkID       uint64
	TD              *big.Int
	Head            common.Hash
	Genesis         common.Hash
	ForkID          forkid.ID
}

// NewPooledTransactionHashesPacket announces transaction hashes without
// their bodies, eth/68 adds the type and size arrays so the receiver can
// prioritize retrieval; eth/66-67 peers only populate Hashes.
type NewPooledTransactionHashesPacket struct {
	Types  []byte
	Sizes  []uint32
	Hashes []common.Hash
}

// GetPooledTransactionsPacket requests the bodies of previously announced
// hashes, correlated to its response by RequestId.
type GetPooledTransactionsPacket struct {
	RequestId uint64
	Hashes    []common.Hash
}

// PooledTransactionsPacket answers a GetPooledTransactionsPacket.
type PooledTransactionsPacket struct {
	RequestId    uint64
	Transactions []*types.Transaction
}

// TransactionsPacket is an unsolicited push of full transactions, used by
// eth/66 and earlier peers (or opportunistically by any peer) instead of
// the hash-then-fetch dance.
type TransactionsPacket []*types.Transaction
