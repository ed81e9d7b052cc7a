package types

import (
	"bytes"
	"errors"
	"io"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// errShortTypedTx is returned when decoding a typed-transaction envelope
// whose body is missing entirely.
var errShortTypedTx = errors.New("typed transaction too short")

// errInvalidTxType is returned for an EIP-2718 type byte this package does
// not know how to decode.
var errInvalidTxType = errors.New("transaction type not supported")

// Transaction is the envelope around one of the three TxData shapes
// (LegacyTx, AccessListTx, DynamicFeeTx). It caches its hash and signer
// recovery the way the teacher's own Transaction does, since both are
// expensive (Keccak256 over the RLP encoding, secp256k1 recovery) and are
// looked up repeatedly once a transaction sits in the pool.
type Transaction struct {
	inner TxData
	time  time.Time

	hash atomic.Pointer[common.Hash]
	size atomic.Uint64
	from atomic.Pointer[sigCache]
}

type sigCache struct {
	signer Signer
	from   common.Address
}

// NewTx creates a new transaction from the given TxData.
func NewTx(inner TxData) *Transaction {
	tx := new(Transaction)
	tx.setDecoded(inner.copy(), 0)
	return tx
}

func (tx *Transaction) setDecoded(inner TxData, size uint64) {
	tx.inner = inner
	tx.time = time.Now()
	if size > 0 {
		tx.size.Store(size)
	}
}

// Type returns the EIP-2718 transaction type.
func (tx *Transaction) Type() byte { return tx.inner.txType() }

func (tx *Transaction) ChainId() *big.Int      { return tx.inner.chainID() }
func (tx *Transaction) Data() []byte           { return tx.inner.data() }
func (tx *Transaction) AccessList() AccessList { return tx.inner.accessList() }
func (tx *Transaction) Gas() uint64            { return tx.inner.gas() }
func (tx *Transaction) GasPrice() *big.Int     { return new(big.Int).Set(tx.inner.gasPrice()) }
func (tx *Transaction) GasTipCap() *big.Int    { return new(big.Int).Set(tx.inner.gasTipCap()) }
func (tx *Transaction) GasFeeCap() *big.Int    { return new(big.Int).Set(tx.inner.gasFeeCap()) }
func (tx *Transaction) Value() *big.Int        { return new(big.Int).Set(tx.inner.value()) }
func (tx *Transaction) Nonce() uint64          { return tx.inner.nonce() }
func (tx *Transaction) To() *common.Address    { return copyAddressPtr(tx.inner.to()) }
func (tx *Transaction) Time() time.Time        { return tx.time }

// Cost returns the maximum amount of wei the sender must own for this
// transaction to execute: value plus the gas allowance at its price cap.
func (tx *Transaction) Cost() *big.Int {
	total := new(big.Int).Mul(tx.inner.gasFeeCap(), new(big.Int).SetUint64(tx.inner.gas()))
	total.Add(total, tx.inner.value())
	return total
}

// GasPriceCmp compares the two transactions' max fee cap.
func (tx *Transaction) GasPriceCmp(other *Transaction) int {
	return tx.inner.gasFeeCap().Cmp(other.inner.gasFeeCap())
}

// UpfrontCost returns the balance a sender must hold for this transaction to
// be admissible against a block with the given base fee: the gas allowance
// at the price it will actually pay, plus the value transferred. Unlike
// Cost (which bounds by the fee cap regardless of the prevailing base fee),
// this is the figure the pool's admission pipeline checks against
// account.balance.
func (tx *Transaction) UpfrontCost(baseFee *big.Int) *big.Int {
	price := tx.EffectiveGasPriceValue(baseFee)
	total := new(big.Int).Mul(price, new(big.Int).SetUint64(tx.inner.gas()))
	total.Add(total, tx.inner.value())
	return total
}

// EffectiveGasTip returns the effective miner tip for this transaction
// given a base fee, or an error if the fee cap is below the base fee (the
// transaction cannot pay for inclusion in that block).
func (tx *Transaction) EffectiveGasTip(baseFee *big.Int) (*big.Int, error) {
	if baseFee == nil {
		return tx.GasTipCap(), nil
	}
	var (
		feeCap = tx.GasFeeCap()
		tip    = tx.GasTipCap()
	)
	if feeCap.Cmp(baseFee) < 0 {
		return nil, ErrFeeCapTooLow
	}
	gasFeeCapMinusBaseFee := new(big.Int).Sub(feeCap, baseFee)
	if gasFeeCapMinusBaseFee.Cmp(tip) < 0 {
		return gasFeeCapMinusBaseFee, nil
	}
	return tip, nil
}

// ErrFeeCapTooLow is returned by EffectiveGasTip when a transaction's fee
// cap cannot cover the block's base fee.
var ErrFeeCapTooLow = errors.New("max fee per gas less than block base fee")

// EffectiveGasPriceValue returns the price this transaction actually pays
// per unit of gas for a block with the given base fee.
func (tx *Transaction) EffectiveGasPriceValue(baseFee *big.Int) *big.Int {
	return tx.inner.effectiveGasPrice(new(big.Int), baseFee)
}

// RawSignatureValues returns the V, R, S signature values of the
// transaction. The return values should not be modified by the caller.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.inner.rawSignatureValues()
}

// Hash returns the transaction hash, which uniquely identifies it across
// the network: Keccak256 over the typed RLP encoding (or the bare legacy
// RLP encoding for LegacyTx).
func (tx *Transaction) Hash() common.Hash {
	if hash := tx.hash.Load(); hash != nil {
		return *hash
	}
	var h common.Hash
	if tx.Type() == LegacyTxType {
		h = rlpHash(tx.inner)
	} else {
		h = prefixedRlpHash(tx.Type(), tx.inner)
	}
	tx.hash.Store(&h)
	return h
}

// Size returns the true RLP-encoded storage size of the transaction,
// cached after the first calculation.
func (tx *Transaction) Size() uint64 {
	if size := tx.size.Load(); size > 0 {
		return size
	}
	buf := new(bytes.Buffer)
	var err error
	if tx.Type() == LegacyTxType {
		err = rlp.Encode(buf, tx.inner)
	} else {
		err = tx.encodeTyped(buf)
	}
	if err != nil {
		return 0
	}
	size := uint64(buf.Len())
	tx.size.Store(size)
	return size
}

// MarshalBinary returns the canonical encoding of the transaction,
// matching the eth wire format used by GetPooledTransactions responses.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	if tx.Type() == LegacyTxType {
		return rlp.EncodeToBytes(tx.inner)
	}
	var buf bytes.Buffer
	if err := tx.encodeTyped(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (tx *Transaction) encodeTyped(w *bytes.Buffer) error {
	w.WriteByte(tx.Type())
	return rlp.Encode(w, tx.inner)
}

// EncodeRLP implements rlp.Encoder. For non-legacy transactions the typed
// envelope (type byte followed by the RLP list) is itself wrapped in an
// RLP string, per EIP-2718, so that it can sit inside a list of mixed
// transaction types (a block body, a PooledTransactions response).
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	if tx.Type() == LegacyTxType {
		return rlp.Encode(w, tx.inner)
	}
	buf := new(bytes.Buffer)
	if err := tx.encodeTyped(buf); err != nil {
		return err
	}
	return rlp.Encode(w, buf.Bytes())
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	kind, size, err := s.Kind()
	if err != nil {
		return err
	}
	switch kind {
	case rlp.List:
		var inner LegacyTx
		if err := s.Decode(&inner); err != nil {
			return err
		}
		tx.setDecoded(&inner, rlp.ListSize(size))
		return nil
	case rlp.String:
		b, err := s.Bytes()
		if err != nil {
			return err
		}
		inner, err := decodeTyped(b)
		if err != nil {
			return err
		}
		tx.setDecoded(inner, uint64(len(b)))
		return nil
	default:
		return rlp.ErrExpectedList
	}
}

// UnmarshalBinary decodes the canonical wire encoding (the same format
// MarshalBinary produces) into tx.
func (tx *Transaction) UnmarshalBinary(b []byte) error {
	if len(b) > 0 && b[0] > 0x7f {
		var inner LegacyTx
		if err := rlp.DecodeBytes(b, &inner); err != nil {
			return err
		}
		tx.setDecoded(&inner, uint64(len(b)))
		return nil
	}
	inner, err := decodeTyped(b)
	if err != nil {
		return err
	}
	tx.setDecoded(inner, uint64(len(b)))
	return nil
}

func decodeTyped(b []byte) (TxData, error) {
	if len(b) <= 1 {
		return nil, errShortTypedTx
	}
	var inner TxData
	switch b[0] {
	case AccessListTxType:
		inner = new(AccessListTx)
	case DynamicFeeTxType:
		inner = new(DynamicFeeTx)
	default:
		return nil, errInvalidTxType
	}
	err := rlp.DecodeBytes(b[1:], inner)
	return inner, err
}

func rlpHash(x interface{}) (h common.Hash) {
	b, err := rlp.EncodeToBytes(x)
	if err != nil {
		panic(err)
	}
	return common.BytesToHash(crypto.Keccak256(b))
}

func prefixedRlpHash(prefix byte, x interface{}) (h common.Hash) {
	buf := new(bytes.Buffer)
	buf.WriteByte(prefix)
	if err := rlp.Encode(buf, x); err != nil {
		panic(err)
	}
	return common.BytesToHash(crypto.Keccak256(buf.Bytes()))
}

// Transactions is a slice of transactions, as used by the pool and the eth
// sub-protocol; TxDifference and HashesOf operate on it.
type Transactions []*Transaction

// TxDifference returns the transactions in a that are not in b.
func TxDifference(a, b Transactions) Transactions {
	keep := make(Transactions, 0, len(a))
	remove := make(map[common.Hash]struct{}, len(b))
	for _, tx := range b {
		remove[tx.Hash()] = struct{}{}
	}
	for _, tx := range a {
		if _, ok := remove[tx.Hash()]; !ok {
			keep = append(keep, tx)
		}
	}
	return keep
}

// HashesOf returns the hash of every transaction, preserving order.
func HashesOf(txs Transactions) []common.Hash {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}
