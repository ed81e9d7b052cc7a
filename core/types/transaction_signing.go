package types

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

// ErrInvalidChainID is returned when signing or recovering a typed
// transaction whose chain ID does not match the signer's.
var ErrInvalidChainID = errors.New("invalid chain id for signer")

// ErrInvalidSig is returned when a transaction's (v, r, s) values are not a
// valid secp256k1 signature.
var ErrInvalidSig = errors.New("invalid transaction v, r, s values")

// Signer captures the transaction hashing and V-encoding rules that differ
// across the three shapes: the pre-EIP-155 legacy format, EIP-155's
// chain-bound legacy format, and the EIP-2718 typed formats' 0/1 parity
// bit. A pool or peer session picks one Signer for the chain it runs on and
// uses it for every Sender() lookup and every SignTx call.
type Signer interface {
	// Sender returns the sender address of the transaction.
	Sender(tx *Transaction) (common.Address, error)
	// SignatureValues returns the raw R, S, V values corresponding to the
	// given signature produces by secp256k1 over Hash(tx).
	SignatureValues(tx *Transaction, sig []byte) (r, s, v *big.Int, err error)
	// Hash returns the hash to be signed.
	Hash(tx *Transaction) common.Hash
	// ChainID returns the chain ID this signer is bound to, or nil for the
	// chain-agnostic legacy (Homestead/Frontier) signer.
	ChainID() *big.Int
	Equal(Signer) bool
}

// LatestSignerForChainID returns the most permissive signer (accepts
// legacy, EIP-2930 and EIP-1559 transactions) for a given chain.
func LatestSignerForChainID(chainID *big.Int) Signer {
	return londonSigner{chainID: chainID}
}

// LatestSigner is the config-driven convenience the pool and its tests use:
// this package only ever speaks the single, most-permissive signer variant,
// so "latest for this chain" and "latest for this chain ID" coincide.
func LatestSigner(config *params.ChainConfig) Signer {
	return LatestSignerForChainID(config.ChainID)
}

type londonSigner struct{ chainID *big.Int }

func (s londonSigner) ChainID() *big.Int { return s.chainID }

func (s londonSigner) Equal(s2 Signer) bool {
	other, ok := s2.(londonSigner)
	return ok && other.chainID.Cmp(s.chainID) == 0
}

func (s londonSigner) Hash(tx *Transaction) common.Hash {
	if tx.Type() == LegacyTxType {
		return rlpHash([]interface{}{
			tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(),
			s.chainID, uint(0), uint(0),
		})
	}
	return prefixedRlpHash(tx.Type(), []interface{}{
		s.chainID,
		tx.Nonce(),
		tx.GasTipCap(),
		tx.GasFeeCap(),
		tx.Gas(),
		tx.To(),
		tx.Value(),
		tx.Data(),
		tx.AccessList(),
	})
}

func (s londonSigner) SignatureValues(tx *Transaction, sig []byte) (r, s2, v *big.Int, err error) {
	r, s2, yParity := decodeSignature(sig)
	if tx.Type() == LegacyTxType {
		v = big.NewInt(int64(yParity) + 35)
		chainIDMul := new(big.Int).Mul(s.chainID, big.NewInt(2))
		v.Add(v, chainIDMul)
		return r, s2, v, nil
	}
	return r, s2, big.NewInt(int64(yParity)), nil
}

func (s londonSigner) Sender(tx *Transaction) (common.Address, error) {
	v, r, sVal := tx.RawSignatureValues()
	var yParity byte
	if tx.Type() == LegacyTxType {
		if chainID := deriveChainID(v); s.chainID.Sign() != 0 && chainID.Cmp(s.chainID) != 0 {
			return common.Address{}, ErrInvalidChainID
		}
		yParity = byte(new(big.Int).Sub(v, new(big.Int).Add(new(big.Int).Mul(s.chainID, big.NewInt(2)), big.NewInt(35))).Uint64())
	} else {
		if tx.ChainId().Cmp(s.chainID) != 0 {
			return common.Address{}, ErrInvalidChainID
		}
		yParity = byte(v.Uint64())
	}
	return recoverPlain(s.Hash(tx), r, sVal, yParity)
}

func decodeSignature(sig []byte) (r, s *big.Int, v byte) {
	if len(sig) != 65 {
		panic(fmt.Sprintf("wrong size for signature: got %d, want 65", len(sig)))
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = sig[64]
	return r, s, v
}

func recoverPlain(sighash common.Hash, r, s *big.Int, v byte) (common.Address, error) {
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrInvalidSig
	}
	sig := make([]byte, 65)
	rBytes, sBytes := r.Bytes(), s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = v
	pub, err := crypto.SigToPub(sighash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignTx signs the transaction using the given signer and private key.
func SignTx(tx *Transaction, s Signer, prv *ecdsa.PrivateKey) (*Transaction, error) {
	h := s.Hash(tx)
	sig, err := crypto.Sign(h[:], prv)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(s, sig)
}

// WithSignature returns a new transaction with the given signature applied.
// The supplied signature must have the [R || S || V] format where V is 0
// or 1.
func (tx *Transaction) WithSignature(signer Signer, sig []byte) (*Transaction, error) {
	r, s, v, err := signer.SignatureValues(tx, sig)
	if err != nil {
		return nil, err
	}
	cpy := tx.inner.copy()
	cpy.setSignatureValues(signer.ChainID(), v, r, s)
	return NewTx(cpy), nil
}

// Sender recovers the sender address of a transaction using the given
// signer, consulting the transaction's own signature cache first.
func Sender(signer Signer, tx *Transaction) (common.Address, error) {
	if sc := tx.from.Load(); sc != nil && sc.signer.Equal(signer) {
		return sc.from, nil
	}
	addr, err := signer.Sender(tx)
	if err != nil {
		return common.Address{}, err
	}
	tx.from.Store(&sigCache{signer: signer, from: addr})
	return addr, nil
}
