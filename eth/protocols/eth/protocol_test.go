package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"
)

func TestNewPooledTransactionHashesPacketRLPRoundTrip(t *testing.T) {
	packet := &NewPooledTransactionHashesPacket{
		Hashes: []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2")},
	}
	enc, err := rlp.EncodeToBytes(packet)
	require.NoError(t, err)

	var decoded NewPooledTransactionHashesPacket
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	require.Equal(t, packet.Hashes, decoded.Hashes)
}

func TestGetPooledTransactionsPacketRLPRoundTrip(t *testing.T) {
	packet := &GetPooledTransactionsPacket{
		RequestId: 42,
		Hashes:    []common.Hash{common.HexToHash("0xaa")},
	}
	enc, err := rlp.EncodeToBytes(packet)
	require.NoError(t, err)

	var decoded GetPooledTransactionsPacket
	require.NoError(t, rlp.DecodeBytes(enc, &decoded))
	require.Equal(t, packet.RequestId, decoded.RequestId)
	require.Equal(t, packet.Hashes, decoded.Hashes)
}

func TestProtocolLengthsCoverDefinedMessageCodes(t *testing.T) {
	for _, version := range ProtocolVersions {
		length, ok := protocolLengths[version]
		require.True(t, ok)
		require.Greater(t, length, uint64(PooledTransactionsMsg))
	}
}
