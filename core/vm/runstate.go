package vm

import (
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// EEI (Ethereum Environment Interface) is the capability a RunState
// borrows to answer the account/storage questions dynamic gas handlers
// need without owning any state itself: account existence/emptiness for
// the CALL new-account surcharge, and storage before/after values for the
// SSTORE hardfork dispatch. Access-list membership is not part of this
// capability — it is local, per-call bookkeeping RunState owns directly.
type EEI interface {
	AccountExists(addr common.Address) bool
	Empty(addr common.Address) bool

	GetState(addr common.Address, slot common.Hash) common.Hash
	GetCommittedState(addr common.Address, slot common.Hash) common.Hash

	AddRefund(gas uint64)
	SubRefund(gas uint64)
}

// HardforkParams carries the subset of chain configuration a gas handler
// needs to pick the right rule variant. It is derived once per block and
// then reused for every message call and opcode within it.
type HardforkParams struct {
	ChainID *big.Int

	IsEIP150         bool // Tangerine Whistle: 63/64 call-gas forwarding
	IsEIP158         bool // Spurious Dragon: empty-account CALL surcharge rule
	IsConstantinople bool
	IsIstanbul       bool // EIP-1884 repricing + EIP-2200 SSTORE
	IsBerlin         bool // EIP-2929 access lists
	IsLondon         bool
}

// HardforkParamsForBlock derives HardforkParams from a chain configuration
// and a block number, mirroring the teacher's convention of gating
// instruction availability by (config, blockNumber) rather than pre-baked
// per-fork rule sets.
func HardforkParamsForBlock(cfg *params.ChainConfig, blockNumber *big.Int) HardforkParams {
	return HardforkParams{
		ChainID:          cfg.ChainID,
		IsEIP150:         isBlockForked(cfg.EIP150Block, blockNumber),
		IsEIP158:         isBlockForked(cfg.EIP158Block, blockNumber),
		IsConstantinople: isBlockForked(cfg.ConstantinopleBlock, blockNumber),
		IsIstanbul:       isBlockForked(cfg.IstanbulBlock, blockNumber),
		IsBerlin:         isBlockForked(cfg.BerlinBlock, blockNumber),
		IsLondon:         isBlockForked(cfg.LondonBlock, blockNumber),
	}
}

func isBlockForked(forkBlock, head *big.Int) bool {
	if forkBlock == nil || head == nil {
		return false
	}
	return forkBlock.Cmp(head) <= 0
}

// RunState is the minimal per-call context dynamic gas handlers read and
// (for memory expansion and access-list bookkeeping) mutate. It carries no
// opcode-execution machinery of its own; that lives one layer up, in
// whatever drives the interpreter loop.
type RunState struct {
	// Address is the account executing this message call; SLOAD/SSTORE
	// always act on its own storage, never a stack operand.
	Address common.Address

	Stack []uint256.Int

	Memory          *Memory
	MemoryWordCount uint64

	ReturnDataSize uint64

	AccessedAddresses mapset.Set[common.Address]
	AccessedStorage   map[common.Address]mapset.Set[common.Hash]

	// IsStatic marks a read-only call context (entered via STATICCALL, or
	// inherited by every call it makes in turn). Gas handlers for the
	// state-mutating opcodes must reject the operation outright when this
	// is set, rather than merely pricing it.
	IsStatic bool

	// Authorized is the address a prior AUTH in this call authorized
	// AUTHCALL to act on behalf of, or nil if none has. Signature
	// verification itself is opcode-execution's concern; the gas layer
	// only needs to know whether AUTHCALL's precondition is satisfied.
	Authorized *common.Address

	EEI EEI
}

// NewRunState builds an empty RunState for a fresh message call.
func NewRunState(addr common.Address, eei EEI) *RunState {
	return &RunState{
		Address:           addr,
		Memory:            NewMemory(),
		AccessedAddresses: mapset.NewThreadUnsafeSet[common.Address](),
		AccessedStorage:   make(map[common.Address]mapset.Set[common.Hash]),
		EEI:               eei,
	}
}

// back returns the n-th item from the top of the stack without popping it;
// gas handlers only ever peek at operands, the actual pop/push dance
// belongs to opcode execution.
func (rs *RunState) back(n int) *uint256.Int {
	return &rs.Stack[len(rs.Stack)-1-n]
}

// AddressInAccessList reports whether addr has already been charged the
// cold-access surcharge in this message call.
func (rs *RunState) AddressInAccessList(addr common.Address) bool {
	return rs.AccessedAddresses.Contains(addr)
}

// SlotInAccessList reports address and (address, slot) membership
// together. The gas handlers in this package use only the slot answer.
func (rs *RunState) SlotInAccessList(addr common.Address, slot common.Hash) (addressPresent, slotPresent bool) {
	addressPresent = rs.AddressInAccessList(addr)
	if slots, ok := rs.AccessedStorage[addr]; ok {
		slotPresent = slots.Contains(slot)
	}
	return addressPresent, slotPresent
}

// AddAddressToAccessList records addr as touched, so subsequent accesses
// in this call are priced at the warm rate.
func (rs *RunState) AddAddressToAccessList(addr common.Address) {
	rs.AccessedAddresses.Add(addr)
}

// AddSlotToAccessList records (addr, slot) as touched, implicitly warming
// the address too — mirrors how touching a storage slot always implies
// the owning account was touched.
func (rs *RunState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	rs.AddAddressToAccessList(addr)
	slots, ok := rs.AccessedStorage[addr]
	if !ok {
		slots = mapset.NewThreadUnsafeSet[common.Hash]()
		rs.AccessedStorage[addr] = slots
	}
	slots.Add(slot)
}
