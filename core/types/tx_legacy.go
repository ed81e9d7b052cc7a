package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LegacyTx is the pre-EIP-2718 transaction shape: nonce, gasPrice, gasLimit,
// an optional recipient, value, data and an (v, r, s) signature over the
// whole thing per EIP-155.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

// NewTransaction creates an unsigned legacy transaction, matching the
// constructor the rest of the ecosystem calls this with.
func NewTransaction(nonce uint64, to common.Address, amount *big.Int, gasLimit uint64, gasPrice *big.Int, data []byte) *Transaction {
	return NewTx(&LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
}

func (tx *LegacyTx) copy() TxData {
	cpy := &LegacyTx{
		Nonce: tx.Nonce,
		To:    copyAddressPtr(tx.To),
		Data:  common.CopyBytes(tx.Data),
		Gas:   tx.Gas,
		// signature/value fields below are zero initially and filled in
		Value:    new(big.Int),
		GasPrice: new(big.Int),
		V:        new(big.Int),
		R:        new(big.Int),
		S:        new(big.Int),
	}
	if tx.Value != nil {
		cpy.Value.Set(tx.Value)
	}
	if tx.GasPrice != nil {
		cpy.GasPrice.Set(tx.GasPrice)
	}
	if tx.V != nil {
		cpy.V.Set(tx.V)
	}
	if tx.R != nil {
		cpy.R.Set(tx.R)
	}
	if tx.S != nil {
		cpy.S.Set(tx.S)
	}
	return cpy
}

func (tx *LegacyTx) txType() byte              { return LegacyTxType }
func (tx *LegacyTx) chainID() *big.Int         { return deriveChainID(tx.V) }
func (tx *LegacyTx) accessList() AccessList    { return nil }
func (tx *LegacyTx) data() []byte              { return tx.Data }
func (tx *LegacyTx) gas() uint64               { return tx.Gas }
func (tx *LegacyTx) gasPrice() *big.Int        { return tx.GasPrice }
func (tx *LegacyTx) gasTipCap() *big.Int       { return tx.GasPrice }
func (tx *LegacyTx) gasFeeCap() *big.Int       { return tx.GasPrice }
func (tx *LegacyTx) value() *big.Int           { return tx.Value }
func (tx *LegacyTx) nonce() uint64             { return tx.Nonce }
func (tx *LegacyTx) to() *common.Address       { return tx.To }

func (tx *LegacyTx) rawSignatureValues() (v, r, s *big.Int) {
	return tx.V, tx.R, tx.S
}

func (tx *LegacyTx) setSignatureValues(chainID, v, r, s *big.Int) {
	tx.V, tx.R, tx.S = v, r, s
}

func (tx *LegacyTx) effectiveGasPrice(dst *big.Int, baseFee *big.Int) *big.Int {
	return dst.Set(tx.GasPrice)
}

// deriveChainID recovers the chain ID encoded into an EIP-155 V value. A V
// of 27/28 indicates a pre-EIP-155 transaction with no replay protection.
func deriveChainID(v *big.Int) *big.Int {
	if v.BitLen() <= 64 {
		vu := v.Uint64()
		if vu == 27 || vu == 28 {
			return new(big.Int)
		}
		return new(big.Int).SetUint64((vu - 35) / 2)
	}
	v = new(big.Int).Sub(v, big.NewInt(35))
	return v.Div(v, big.NewInt(2))
}
