package eth

import (
	"errors"
	"fmt"

	"github.com/execore/execore/core/types"
)

var (
	errMsgTooLarge    = errors.New("message too large")
	errDecode         = errors.New("invalid message")
	errInvalidMsgCode = errors.New("invalid message code")
)

// Handler processes one already-handshaked Peer until it disconnects.
type Handler func(peer *Peer) error

// Backend is the set of capabilities the eth sub-protocol needs from
// whatever embeds it: running a peer's lifecycle and handling its
// decoded application messages.
type Backend interface {
	// TxPool retrieves the backend's transaction pool.
	TxPool() TxPool
	// RunPeer is invoked when a peer joins; it should block for the
	// duration of the connection, typically by calling handler(peer).
	RunPeer(peer *Peer, handler Handler) error
	// AcceptTxs reports whether this node is ready to accept pooled
	// transaction traffic (e.g. false while still syncing).
	AcceptTxs() bool
	// Handle is called for every decoded application-level packet that
	// Handle (the package-level dispatcher) does not itself resolve.
	Handle(peer *Peer, packet Packet) error
}

// Packet is any decoded eth message payload passed to Backend.Handle.
type Packet interface{}

// Handle is the per-peer message loop: it reads frames off peer's
// MsgReadWriter, decodes the ones this package understands, and either
// answers them directly (GetPooledTransactions) or forwards the decoded
// packet to the backend (Transactions, NewPooledTransactionHashes,
// PooledTransactions).
func Handle(backend Backend, peer *Peer) error {
	for {
		if err := handleMessage(backend, peer); err != nil {
			return err
		}
	}
}

func handleMessage(backend Backend, peer *Peer) error {
	msg, err := peer.rw.ReadMsg()
	if err != nil {
		return err
	}
	if msg.Size > protocolMaxMsgSize {
		return fmt.Errorf("%w: %v > %v", errMsgTooLarge, msg.Size, protocolMaxMsgSize)
	}

	switch msg.Code {
	case NewPooledTransactionHashesMsg:
		var ann NewPooledTransactionHashesPacket
		if err := msg.Decode(&ann); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		for _, hash := range ann.Hashes {
			peer.MarkTransaction(hash)
		}
		if !backend.AcceptTxs() {
			return nil
		}
		return backend.Handle(peer, &ann)

	case GetPooledTransactionsMsg:
		var req GetPooledTransactionsPacket
		if err := msg.Decode(&req); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		return handleGetPooledTransactions(backend, peer, &req)

	case TransactionsMsg:
		var txs TransactionsPacket
		if err := msg.Decode(&txs); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		for _, tx := range txs {
			if tx == nil {
				return fmt.Errorf("%w: nil transaction", errDecode)
			}
			peer.MarkTransaction(tx.Hash())
		}
		if !backend.AcceptTxs() {
			return nil
		}
		return backend.Handle(peer, &txs)

	case PooledTransactionsMsg:
		var resp PooledTransactionsPacket
		if err := msg.Decode(&resp); err != nil {
			return fmt.Errorf("%w: %v", errDecode, err)
		}
		for _, tx := range resp.Transactions {
			if tx == nil {
				return fmt.Errorf("%w: nil transaction", errDecode)
			}
			peer.MarkTransaction(tx.Hash())
		}
		return backend.Handle(peer, &resp)

	default:
		return fmt.Errorf("%w: %x", errInvalidMsgCode, msg.Code)
	}
}

// handleGetPooledTransactions answers a retrieval request directly out of
// the pool without involving the backend's dispatch path, mirroring how a
// read-only lookup needs no admission-pipeline pass.
func handleGetPooledTransactions(backend Backend, peer *Peer, req *GetPooledTransactionsPacket) error {
	pool := backend.TxPool()
	txs := make([]*types.Transaction, 0, len(req.Hashes))
	var size uint64
	for _, hash := range req.Hashes {
		if tx := pool.Get(hash); tx != nil {
			txs = append(txs, tx)
			size += tx.Size()
			if size >= softResponseLimit {
				break
			}
		}
	}
	return peer.SendPooledTransactionsRLP(req.RequestId, txs)
}

// softResponseLimit bounds the size of a single PooledTransactions reply so
// one greedy request can't pin an unbounded amount of memory and bandwidth.
const softResponseLimit = 2 * 1024 * 1024
