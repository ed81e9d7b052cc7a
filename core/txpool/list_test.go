package txpool

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/execore/execore/core/types"
)

func TestLess(t *testing.T) {
	key, _ := crypto.GenerateKey()
	a := newTestEntry(t, key, 0, big.NewInt(10))
	b := newTestEntry(t, key, 1, big.NewInt(14))
	c := newTestEntry(t, key, 2, big.NewInt(1))

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}

func TestTxListOrdersByNonce(t *testing.T) {
	key, _ := crypto.GenerateKey()
	list := newTxList()

	entries := []*txEntry{
		newTestEntry(t, key, 3, big.NewInt(1)),
		newTestEntry(t, key, 1, big.NewInt(1)),
		newTestEntry(t, key, 2, big.NewInt(1)),
		newTestEntry(t, key, 0, big.NewInt(1)),
	}
	for _, e := range entries {
		require.Nil(t, list.Add(e))
	}
	require.Equal(t, 4, list.Len())

	lowest := list.LowestEntry()
	require.Equal(t, uint64(0), lowest.tx.Nonce())

	peeked := list.Peek(10)
	require.Len(t, peeked, 4)
	for i, tx := range peeked {
		require.Equal(t, uint64(i), tx.Nonce())
	}
}

func TestTxListAddSameNonceReturnsExisting(t *testing.T) {
	key, _ := crypto.GenerateKey()
	list := newTxList()

	first := newTestEntry(t, key, 0, big.NewInt(1))
	require.Nil(t, list.Add(first))

	second := newTestEntry(t, key, 0, big.NewInt(2))
	existing := list.Add(second)
	require.Same(t, first, existing)
	require.Equal(t, 1, list.Len(), "Add must not mutate the list on a same-nonce collision")
}

func TestTxListReplace(t *testing.T) {
	key, _ := crypto.GenerateKey()
	list := newTxList()

	low := newTestEntry(t, key, 0, big.NewInt(1))
	mid := newTestEntry(t, key, 1, big.NewInt(1))
	high := newTestEntry(t, key, 2, big.NewInt(1))
	list.Add(low)
	list.Add(mid)
	list.Add(high)

	replacement := newTestEntry(t, key, 1, big.NewInt(5))
	list.Replace(replacement)

	require.Equal(t, 3, list.Len())
	got := list.Get(1)
	require.Same(t, replacement, got)
	// position preserved: still sandwiched between low and high
	peeked := list.Peek(10)
	require.Equal(t, []uint64{0, 1, 2}, nonces(peeked))
	require.Equal(t, big.NewInt(5), peeked[1].GasPrice())
}

func TestTxListDelete(t *testing.T) {
	key, _ := crypto.GenerateKey()
	list := newTxList()
	for n := uint64(0); n < 4; n++ {
		list.Add(newTestEntry(t, key, n, big.NewInt(1)))
	}

	removed := list.Delete(func(e *txEntry) bool { return e.tx.Nonce() == 2 })
	require.NotNil(t, removed)
	require.Equal(t, uint64(2), removed.tx.Nonce())
	require.Equal(t, 3, list.Len())
	require.Equal(t, []uint64{0, 1, 3}, nonces(list.Peek(10)))

	require.Nil(t, list.Delete(func(e *txEntry) bool { return e.tx.Nonce() == 99 }))
}

func nonces(txs []*types.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Nonce()
	}
	return out
}

func newTestEntry(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, gasPrice *big.Int) *txEntry {
	t.Helper()
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: gasPrice,
	})
	signer := types.LatestSignerForChainID(big.NewInt(1))
	signed, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)
	return &txEntry{tx: signed, addedAt: time.Now()}
}
