package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction type identifiers matching the EIP-2718 typed-transaction
// envelope. LegacyTxType transactions are never wrapped in the envelope.
const (
	LegacyTxType = iota
	AccessListTxType
	DynamicFeeTxType
)

// TxData is the underlying data of a transaction. Three concrete shapes
// implement it: LegacyTx, AccessListTx and DynamicFeeTx. Each carries its own
// signature values so that a Transaction can be built directly from a
// decoded envelope without a separate signature side-table.
type TxData interface {
	txType() byte
	copy() TxData

	chainID() *big.Int
	accessList() AccessList
	data() []byte
	gas() uint64
	gasPrice() *big.Int
	gasTipCap() *big.Int
	gasFeeCap() *big.Int
	value() *big.Int
	nonce() uint64
	to() *common.Address

	rawSignatureValues() (v, r, s *big.Int)
	setSignatureValues(chainID, v, r, s *big.Int)

	// effectiveGasPrice computes the gas price paid by the transaction,
	// given a block base fee. dst is a scratch big.Int the caller owns.
	effectiveGasPrice(dst *big.Int, baseFee *big.Int) *big.Int
}

// AccessTuple is the element type of an access list: an address plus the
// storage slots within it the transaction declares it will touch.
type AccessTuple struct {
	Address     common.Address `json:"address"     gencodec:"required"`
	StorageKeys []common.Hash  `json:"storageKeys"  gencodec:"required"`
}

// AccessList is an EIP-2930 access list, pre-declaring storage slots a
// transaction will read or write so the EVM can charge the cheaper "warm"
// access cost on first touch instead of the "cold" one.
type AccessList []AccessTuple

// StorageKeys returns the total number of storage keys across the list,
// used by the intrinsic-gas calculation (each key costs its own fee).
func (al AccessList) StorageKeys() int {
	var sum int
	for _, tuple := range al {
		sum += len(tuple.StorageKeys)
	}
	return sum
}

func copyAddressPtr(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}
