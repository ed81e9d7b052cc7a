package vm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// pushStack appends operands top-of-stack-last, so back(0) is the last
// value passed, matching how gas handlers read their operands.
func pushStack(rs *RunState, values ...*uint256.Int) {
	for _, v := range values {
		rs.Stack = append(rs.Stack, *v)
	}
}

func addrWord(addr common.Address) *uint256.Int {
	var v uint256.Int
	v.SetBytes(addr.Bytes())
	return &v
}

func u64(n uint64) *uint256.Int { return new(uint256.Int).SetUint64(n) }

func TestGasSStoreOpRejectsStaticCall(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	rs.IsStatic = true
	pushStack(rs, u64(1), u64(1)) // slot, newValue (back(0)=newValue per push order here is irrelevant to the guard)
	_, err := gasSStoreOp(rs, HardforkParams{}, 100000, 0)
	if !errors.Is(err, ErrStaticStateChange) {
		t.Fatalf("expected ErrStaticStateChange, got %v", err)
	}
}

func TestGasLogRejectsStaticCall(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	rs.IsStatic = true
	pushStack(rs, u64(0), u64(0))
	_, err := gasLog(0)(rs, HardforkParams{}, 100000, 0)
	if !errors.Is(err, ErrStaticStateChange) {
		t.Fatalf("expected ErrStaticStateChange, got %v", err)
	}
}

func TestGasCallRejectsValueTransferDuringStaticCall(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	rs.IsStatic = true
	// stack order: ..., addr(back1), value(back2), ...
	pushStack(rs, u64(0), u64(0), u64(1), addrWord(testAddr), u64(0))
	_, err := gasCall(rs, HardforkParams{}, 100000, 0)
	if !errors.Is(err, ErrStaticStateChange) {
		t.Fatalf("expected ErrStaticStateChange, got %v", err)
	}
}

func TestGasAuthCallRequiresPriorAuth(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	pushStack(rs, u64(0), u64(0), u64(0), u64(0), addrWord(testAddr), u64(0))
	_, err := gasAuthCall(rs, HardforkParams{}, 100000, 0)
	if !errors.Is(err, ErrAuthNotSet) {
		t.Fatalf("expected ErrAuthNotSet, got %v", err)
	}
}

func TestGasAuthCallRejectsNonZeroValueExt(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	authority := testAddr
	rs.Authorized = &authority
	pushStack(rs, u64(0), u64(0), u64(1), u64(0), addrWord(testAddr), u64(0))
	_, err := gasAuthCall(rs, HardforkParams{}, 100000, 0)
	if !errors.Is(err, ErrAuthCallValueExt) {
		t.Fatalf("expected ErrAuthCallValueExt, got %v", err)
	}
}

func TestGasAuthCallSucceedsWithPriorAuthAndZeroValueExt(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	authority := testAddr
	rs.Authorized = &authority
	pushStack(rs, u64(0), u64(0), u64(0), u64(0), addrWord(testAddr), u64(0))
	gas, err := gasAuthCall(rs, HardforkParams{}, 100000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas != coldAccountAccess {
		t.Errorf("first touch should be cold: got %d, want %d", gas, coldAccountAccess)
	}
}

func TestGasSLoadDispatchesByHardfork(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	pushStack(rs, u64(1))
	gas, err := gasSLoad(rs, HardforkParams{}, 100000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas != sloadGasFrontier {
		t.Errorf("got %d, want %d", gas, sloadGasFrontier)
	}

	rs2 := NewRunState(testAddr, newFakeEEI())
	pushStack(rs2, u64(1))
	gas2, err := gasSLoad(rs2, HardforkParams{IsBerlin: true}, 100000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas2 != coldSload {
		t.Errorf("Berlin first touch: got %d, want %d", gas2, coldSload)
	}
}

func TestNewJumpTableGatesDelegateCallAtHomestead(t *testing.T) {
	jt := newJumpTable(&params.ChainConfig{HomesteadBlock: big.NewInt(1)}, big.NewInt(0))
	if jt[DELEGATECALL].valid {
		t.Errorf("DELEGATECALL should not be valid before Homestead")
	}
	if !jt[SSTORE].valid || jt[SSTORE].dynamicGas == nil {
		t.Errorf("SSTORE should always be valid with a dynamic gas handler wired")
	}
}
