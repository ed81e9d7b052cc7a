package txpool

import (
	"bytes"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/execore/execore/core/types"
)

// fakeState is a minimal StateView test double: every address defaults to
// nonce 0 and a very large balance unless explicitly overridden.
type fakeState struct {
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
}

func newFakeState() *fakeState {
	return &fakeState{nonces: make(map[common.Address]uint64), balances: make(map[common.Address]*big.Int)}
}

func (s *fakeState) GetNonce(addr common.Address) uint64 { return s.nonces[addr] }

func (s *fakeState) GetBalance(addr common.Address) *big.Int {
	if b, ok := s.balances[addr]; ok {
		return b
	}
	return big.NewInt(0).Lsh(big.NewInt(1), 128)
}

// fakePeer records every call the pool makes against it, so tests can assert
// on gossip and retrieval behavior without a real eth sub-protocol session.
type fakePeer struct {
	id string

	sentHashes  []common.Hash
	sentTxs     []*types.Transaction
	marked      map[common.Hash]bool
	requested   [][]common.Hash
	requestErrs map[int]error
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, marked: make(map[common.Hash]bool)}
}

func (p *fakePeer) ID() string                         { return p.id }
func (p *fakePeer) KnownTransaction(h common.Hash) bool { return p.marked[h] }
func (p *fakePeer) MarkTransaction(h common.Hash)       { p.marked[h] = true }
func (p *fakePeer) AsyncSendTransactions(txs []*types.Transaction) {
	p.sentTxs = append(p.sentTxs, txs...)
}
func (p *fakePeer) AsyncSendPooledTransactionHashes(hashes []common.Hash) {
	p.sentHashes = append(p.sentHashes, hashes...)
}
func (p *fakePeer) RequestTxs(id uint64, hashes []common.Hash) error {
	p.requested = append(p.requested, hashes)
	return p.requestErrs[len(p.requested)-1]
}

type fakePeerPool struct{ peers []Peer }

func (pp *fakePeerPool) Peers() []Peer { return pp.peers }

func newTestPool(t *testing.T, state StateView) (*TxPool, *ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	signer := types.LatestSignerForChainID(big.NewInt(1))
	p := New(DefaultConfig(), state, signer)
	p.UpdateHead(&types.Header{GasLimit: 30_000_000, BaseFee: big.NewInt(1)})
	require.True(t, p.Open())
	return p, key, addr
}

func makeTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, gasPrice *big.Int, data []byte) *types.Transaction {
	t.Helper()
	to := common.HexToAddress("0x0000000000000000000000000000000000000042")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	return signed
}

func TestAddAcceptsValidTransaction(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	tx := makeTx(t, key, 0, big.NewInt(5), nil)
	require.NoError(t, p.Add(tx))

	pending, senders := p.Stats()
	require.Equal(t, 1, pending)
	require.Equal(t, 1, senders)
	require.Equal(t, tx.Hash(), p.Get(tx.Hash()).Hash())
}

func TestAddRejectsUnsigned(t *testing.T) {
	p, _, _ := newTestPool(t, newFakeState())
	to := common.HexToAddress("0x0000000000000000000000000000000000000042")
	tx := types.NewTx(&types.LegacyTx{Nonce: 0, To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1)})
	require.ErrorIs(t, p.Add(tx), ErrNotSigned)
}

func TestAddRejectsOverPerSenderLimit(t *testing.T) {
	state := newFakeState()
	p, key, _ := newTestPool(t, state)
	p.config.MaxPerSender = 2

	require.NoError(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)))
	require.NoError(t, p.Add(makeTx(t, key, 1, big.NewInt(1), nil)))
	require.ErrorIs(t, p.Add(makeTx(t, key, 2, big.NewInt(1), nil)), ErrAccountLimitExceeded)
}

func TestAddRejectsOverPoolLimit(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	p.config.MaxPoolSize = 1
	require.NoError(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)))

	key2, _ := crypto.GenerateKey()
	require.ErrorIs(t, p.Add(makeTx(t, key2, 0, big.NewInt(1), nil)), ErrTxPoolOverflow)
}

func TestAddRejectsDuplicateHash(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	tx := makeTx(t, key, 0, big.NewInt(1), nil)
	require.NoError(t, p.Add(tx))
	require.ErrorIs(t, p.Add(tx), ErrAlreadyKnown)
}

func TestAddRejectsOversizedData(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	p.config.MaxDataBytes = 4
	tx := makeTx(t, key, 0, big.NewInt(1), []byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, p.Add(tx), ErrOversizedData)
}

func TestAddRejectsNonceTooLow(t *testing.T) {
	state := newFakeState()
	p, key, addr := newTestPool(t, state)
	state.nonces[addr] = 5
	require.ErrorIs(t, p.Add(makeTx(t, key, 2, big.NewInt(1), nil)), ErrNonceTooLow)
}

func TestAddRejectsInsufficientFunds(t *testing.T) {
	state := newFakeState()
	p, key, addr := newTestPool(t, state)
	state.balances[addr] = big.NewInt(100)
	require.ErrorIs(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)), ErrInsufficientFunds)
}

func TestAddRejectsOverBlockGasLimit(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	p.UpdateHead(&types.Header{GasLimit: 1000, BaseFee: big.NewInt(1)})
	require.ErrorIs(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)), ErrGasLimit)
}

func TestAddRejectsUnderMinGasPrice(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	p.config.MinGasPrice = big.NewInt(10)
	require.ErrorIs(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)), ErrUnderpriced)
}

func TestReplaceByFee(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	require.NoError(t, p.Add(makeTx(t, key, 0, big.NewInt(100), nil)))

	// below the 10% bump threshold
	require.ErrorIs(t, p.Add(makeTx(t, key, 0, big.NewInt(109), nil)), ErrReplaceUnderpriced)

	// exactly at the threshold succeeds and supersedes the original
	replacement := makeTx(t, key, 0, big.NewInt(110), nil)
	require.NoError(t, p.Add(replacement))

	pending, _ := p.Stats()
	require.Equal(t, 1, pending)
	require.Equal(t, replacement.Hash(), p.Get(replacement.Hash()).Hash())
}

func TestRemoveNewBlockTxs(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	tx0 := makeTx(t, key, 0, big.NewInt(1), nil)
	tx1 := makeTx(t, key, 1, big.NewInt(1), nil)
	require.NoError(t, p.Add(tx0))
	require.NoError(t, p.Add(tx1))

	p.RemoveNewBlockTxs([][]*types.Transaction{{tx0}})

	pending, senders := p.Stats()
	require.Equal(t, 1, pending)
	require.Equal(t, 1, senders)
	require.Nil(t, p.Get(tx0.Hash()))
	require.NotNil(t, p.Get(tx1.Hash()))

	p.RemoveNewBlockTxs([][]*types.Transaction{{tx1}})
	pending, senders = p.Stats()
	require.Equal(t, 0, pending)
	require.Equal(t, 0, senders, "an emptied sender must be dropped from bySender")
}

func TestCleanupSweepsAgedEntries(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	p.config.PooledStorageTimeLimit = time.Millisecond
	p.config.HandledCleanupTimeLimit = time.Millisecond

	tx := makeTx(t, key, 0, big.NewInt(1), nil)
	require.NoError(t, p.Add(tx))

	time.Sleep(5 * time.Millisecond)
	p.Cleanup()

	pending, senders := p.Stats()
	require.Equal(t, 0, pending)
	require.Equal(t, 0, senders)
	require.Nil(t, p.Get(tx.Hash()))

	p.mu.RLock()
	_, handled := p.handled[tx.Hash()]
	p.mu.RUnlock()
	require.False(t, handled)
}

func TestLifecycleOpenStartStopClose(t *testing.T) {
	state := newFakeState()
	p := New(DefaultConfig(), state, types.LatestSignerForChainID(big.NewInt(1)))

	require.True(t, p.Open())
	require.False(t, p.Open(), "Open must be idempotent")

	p.Start()
	p.Start() // no-op, must not panic or double-spawn

	key, _ := crypto.GenerateKey()
	require.NoError(t, p.Add(makeTx(t, key, 0, big.NewInt(1), nil)))

	p.Stop()
	p.Close()

	pending, senders := p.Stats()
	require.Equal(t, 0, pending)
	require.Equal(t, 0, senders)
	require.True(t, p.Open(), "Close must allow reopening")
}

func TestGetOrderedTransactionsOrdersByPriceThenSenderThenNonce(t *testing.T) {
	p, keyA, addrA := newTestPool(t, newFakeState())
	keyB, _ := crypto.GenerateKey()
	addrB := crypto.PubkeyToAddress(keyB.PublicKey)

	// Give both senders' head transactions the same effective price, so the
	// result depends entirely on the address tie-break.
	aTx0 := makeTx(t, keyA, 0, big.NewInt(10), nil)
	aTx1 := makeTx(t, keyA, 1, big.NewInt(10), nil)
	bTx0 := makeTx(t, keyB, 0, big.NewInt(10), nil)

	require.NoError(t, p.Add(aTx0))
	require.NoError(t, p.Add(aTx1))
	require.NoError(t, p.Add(bTx0))

	ordered := p.GetOrderedTransactions(big.NewInt(1))
	require.Len(t, ordered, 3)

	// sender A's two transactions must stay in nonce order relative to
	// each other no matter which sender wins the price tie first.
	positions := make(map[common.Hash]int, 3)
	for i, tx := range ordered {
		positions[tx.Hash()] = i
	}
	require.Less(t, positions[aTx0.Hash()], positions[aTx1.Hash()])

	// whichever sender has the lower address wins the price tie and is
	// picked as a head before the other sender's tied-price head.
	firstHead := aTx0
	if bytes.Compare(addrB.Bytes(), addrA.Bytes()) < 0 {
		firstHead = bTx0
	}
	require.Equal(t, 0, positions[firstHead.Hash()])
}

func TestBroadcastSkipsPeersAlreadyKnowingTheHash(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	peerA := newFakePeer("A")
	peerB := newFakePeer("B")
	p.SetPeerPool(&fakePeerPool{peers: []Peer{peerA, peerB}})

	tx := makeTx(t, key, 0, big.NewInt(1), nil)
	p.markKnown(peerA.id, tx.Hash())

	require.NoError(t, p.Add(tx))

	require.Empty(t, peerA.sentHashes)
	require.Equal(t, []common.Hash{tx.Hash()}, peerB.sentHashes)
}

func TestHandleAnnouncedTxHashesFiltersHandledAndKnown(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	peer := newFakePeer("A")

	tx := makeTx(t, key, 0, big.NewInt(1), nil)
	require.NoError(t, p.Add(tx))

	alreadyKnownHash := common.HexToHash("0xdead")
	p.markKnown(peer.id, alreadyKnownHash)

	newHash := common.HexToHash("0xbeef")

	err := p.HandleAnnouncedTxHashes([]common.Hash{tx.Hash(), alreadyKnownHash, newHash}, peer)
	require.NoError(t, err)

	require.Len(t, peer.requested, 1)
	require.Equal(t, []common.Hash{newHash}, peer.requested[0])

	// every announced hash, including already-filtered ones, is marked.
	require.True(t, peer.marked[tx.Hash()])
	require.True(t, peer.marked[alreadyKnownHash])
	require.True(t, peer.marked[newHash])
}

func TestHandleAnnouncedTxHashesIsIdempotent(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	peer := newFakePeer("A")
	tx := makeTx(t, key, 0, big.NewInt(1), nil)

	require.NoError(t, p.HandleAnnouncedTxHashes([]common.Hash{tx.Hash()}, peer))
	require.Len(t, peer.requested, 1)

	// a second announcement of the same hash must not trigger a second fetch.
	require.NoError(t, p.HandleAnnouncedTxHashes([]common.Hash{tx.Hash()}, peer))
	require.Len(t, peer.requested, 1)
}

func TestHandleAnnouncedTxHashesRespectsRetrievalLimit(t *testing.T) {
	p, _, _ := newTestPool(t, newFakeState())
	p.config.TxRetrievalLimit = 2
	peer := newFakePeer("A")

	hashes := []common.Hash{common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")}
	require.NoError(t, p.HandleAnnouncedTxHashes(hashes, peer))

	require.Len(t, peer.requested, 2)
	require.Len(t, peer.requested[0], 2)
	require.Len(t, peer.requested[1], 1)
}

func TestHandlePooledTransactionsRunsAcceptanceAndMarksKnown(t *testing.T) {
	p, key, _ := newTestPool(t, newFakeState())
	peer := newFakePeer("A")

	tx := makeTx(t, key, 0, big.NewInt(1), nil)
	errs := p.HandlePooledTransactions([]*types.Transaction{tx}, peer)

	require.Len(t, errs, 1)
	require.NoError(t, errs[0])
	require.NotNil(t, p.Get(tx.Hash()))
	require.True(t, peer.marked[tx.Hash()])
	require.True(t, p.isKnown(peer.id, tx.Hash()))
}
