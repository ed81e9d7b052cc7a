package vm

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// fakeEEI is a minimal EEI backed by plain maps, enough to drive the
// SSTORE dispatch tests below without a real state database.
type fakeEEI struct {
	committed map[common.Hash]common.Hash
	current   map[common.Hash]common.Hash
	refund    uint64
}

func newFakeEEI() *fakeEEI {
	return &fakeEEI{committed: make(map[common.Hash]common.Hash), current: make(map[common.Hash]common.Hash)}
}

func (f *fakeEEI) AccountExists(common.Address) bool { return true }
func (f *fakeEEI) Empty(common.Address) bool         { return false }

func (f *fakeEEI) GetState(addr common.Address, slot common.Hash) common.Hash {
	return f.current[slot]
}

func (f *fakeEEI) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	return f.committed[slot]
}

func (f *fakeEEI) AddRefund(gas uint64) { f.refund += gas }
func (f *fakeEEI) SubRefund(gas uint64) { f.refund -= gas }

var testSlot = common.HexToHash("0x1")
var testAddr = common.HexToAddress("0xaa")

func TestGasSStoreLegacySettingAZeroSlotChargesSetGas(t *testing.T) {
	eei := newFakeEEI()
	rs := NewRunState(testAddr, eei)
	gas, err := gasSStoreLegacy(rs, testAddr, testSlot, common.HexToHash("0x1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas != sstoreSetGas {
		t.Errorf("got %d, want %d", gas, sstoreSetGas)
	}
}

func TestGasSStoreLegacyClearingRefunds(t *testing.T) {
	eei := newFakeEEI()
	eei.current[testSlot] = common.HexToHash("0x1")
	rs := NewRunState(testAddr, eei)
	gas, err := gasSStoreLegacy(rs, testAddr, testSlot, common.Hash{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas != sstoreClearGas {
		t.Errorf("got %d, want %d", gas, sstoreClearGas)
	}
	if eei.refund != sstoreClearRefund {
		t.Errorf("refund = %d, want %d", eei.refund, sstoreClearRefund)
	}
}

func TestGasSStoreEIP1283NoopIsCheap(t *testing.T) {
	eei := newFakeEEI()
	eei.committed[testSlot] = common.HexToHash("0x1")
	eei.current[testSlot] = common.HexToHash("0x1")
	rs := NewRunState(testAddr, eei)
	gas, err := gasSStoreEIP1283(rs, testAddr, testSlot, common.HexToHash("0x1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gas != sstoreNoopGas {
		t.Errorf("got %d, want %d", gas, sstoreNoopGas)
	}
}

func TestGasSStoreEIP2200RejectsBelowSentry(t *testing.T) {
	eei := newFakeEEI()
	rs := NewRunState(testAddr, eei)
	_, err := gasSStoreEIP2200(rs, sstoreSentryGas, testAddr, testSlot, common.HexToHash("0x1"), sstoreClearRefund)
	if !errors.Is(err, errReentrancySentry) {
		t.Fatalf("expected sentry rejection, got %v", err)
	}
	if !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("sentry rejection should also satisfy the generic out-of-gas sentinel, got %v", err)
	}
	var gasErr *GasError
	if !errors.As(err, &gasErr) {
		t.Fatalf("expected a *GasError, got %T", err)
	}
	if gasErr.Op != "SSTORE" || gasErr.Available != sstoreSentryGas {
		t.Errorf("GasError = %+v, want Op=SSTORE Available=%d", gasErr, sstoreSentryGas)
	}
	wantMsg := "gas error in SSTORE: required 2301, available 2300"
	if gasErr.Error() != wantMsg {
		t.Errorf("Error() = %q, want %q", gasErr.Error(), wantMsg)
	}
}

func TestGasSStoreEIP2929ChargesColdSurchargeOnce(t *testing.T) {
	eei := newFakeEEI()
	rs := NewRunState(testAddr, eei)

	first, err := gasSStoreEIP2929(rs, 10000, testAddr, testSlot, common.HexToHash("0x1"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first < coldSload {
		t.Errorf("first touch should include the cold surcharge: got %d", first)
	}

	second, err := gasSStoreEIP2929(rs, 10000, testAddr, testSlot, common.HexToHash("0x1"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second >= first {
		t.Errorf("second touch should be warm and cheaper: first=%d second=%d", first, second)
	}
}

func TestGasSStoreDispatchesByHardfork(t *testing.T) {
	eei := newFakeEEI()
	rs := NewRunState(testAddr, eei)

	legacy, err := gasSStore(rs, 100000, testAddr, testSlot, common.HexToHash("0x1"), HardforkParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if legacy != sstoreSetGas {
		t.Errorf("pre-Constantinople dispatch: got %d, want %d", legacy, sstoreSetGas)
	}

	berlin, err := gasSStore(rs, 100000, testAddr, testSlot, common.HexToHash("0x2"), HardforkParams{IsBerlin: true, IsIstanbul: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if berlin == 0 {
		t.Errorf("Berlin dispatch should charge something")
	}
}

func TestAccessAddressGasWarmsOnFirstTouch(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	if got := accessAddressGas(rs, testAddr); got != coldAccountAccess {
		t.Errorf("first touch: got %d, want %d", got, coldAccountAccess)
	}
	if got := accessAddressGas(rs, testAddr); got != warmStorageRead {
		t.Errorf("second touch: got %d, want %d", got, warmStorageRead)
	}
}

func TestAccessSlotGasImpliesAddressWarm(t *testing.T) {
	rs := NewRunState(testAddr, newFakeEEI())
	accessSlotGas(rs, testAddr, testSlot)
	if !rs.AddressInAccessList(testAddr) {
		t.Errorf("touching a slot should warm its address")
	}
}
