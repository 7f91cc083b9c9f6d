package chain

import (
	"errors"
	"math/big"
	"testing"

	"donation-backend/internal/registry"
)

const (
	deposit = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	other   = "0x0000000000000000000000000000000000000001"
)

func ethNetwork(t *testing.T) *registry.NetworkInfo {
	t.Helper()
	network, err := registry.Default.Network("ethereum")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return network
}

func nativeExpectation(amount int64, startBlock uint64) Expectation {
	return Expectation{
		DepositAddress: deposit,
		StartBlock:     startBlock,
		AmountRaw:      big.NewInt(amount),
	}
}

func nativeFacts(recipient string, amount int64, height uint64) *TxFacts {
	return &TxFacts{
		NetworkID:   "ethereum",
		TxHash:      "0xabc",
		BlockHeight: height,
		Outputs: []TxOutput{
			{Recipient: recipient, AmountRaw: big.NewInt(amount)},
		},
	}
}

func TestEvaluateHappyPath(t *testing.T) {
	network := ethNetwork(t)
	eval, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 1000, 105), 120)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Confirmations != 15 {
		t.Errorf("confirmations = %d, want 15", eval.Confirmations)
	}
	if !eval.Ready {
		t.Error("15 confirmations should meet the 12-block threshold")
	}
}

func TestEvaluateBelowThreshold(t *testing.T) {
	network := ethNetwork(t)
	eval, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 1000, 118), 120)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Ready {
		t.Errorf("%d confirmations should not be ready", eval.Confirmations)
	}
	if eval.Confirmations != 2 {
		t.Errorf("confirmations = %d, want 2", eval.Confirmations)
	}
}

func TestEvaluateRecipientCaseInsensitiveOnEVM(t *testing.T) {
	network := ethNetwork(t)
	facts := nativeFacts("0x742D35CC6634C0532925A3B844BC454E4438F44E", 1000, 105)
	if _, err := Evaluate(network, nativeExpectation(1000, 100), facts, 120); err != nil {
		t.Errorf("checksum-cased recipient rejected: %v", err)
	}
}

func TestEvaluateWrongRecipient(t *testing.T) {
	network := ethNetwork(t)
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(other, 1000, 105), 120)
	if !errors.Is(err, ErrWrongRecipient) {
		t.Errorf("expected ErrWrongRecipient, got %v", err)
	}
}

func TestEvaluateReplayGuard(t *testing.T) {
	network := ethNetwork(t)
	// mined before the intent existed, amount matches perfectly
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 1000, 99), 120)
	if !errors.Is(err, ErrReplayRejected) {
		t.Errorf("expected ErrReplayRejected, got %v", err)
	}
}

func TestEvaluateReplayBeforeAmount(t *testing.T) {
	network := ethNetwork(t)
	// pre-start AND wrong amount: the replay guard must win
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 555, 50), 120)
	if !errors.Is(err, ErrReplayRejected) {
		t.Errorf("expected ErrReplayRejected to take precedence, got %v", err)
	}
}

func TestEvaluateRecipientBeforeReplay(t *testing.T) {
	network := ethNetwork(t)
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(other, 1000, 50), 120)
	if !errors.Is(err, ErrWrongRecipient) {
		t.Errorf("expected ErrWrongRecipient first, got %v", err)
	}
}

func TestEvaluateAssetMismatch(t *testing.T) {
	network := ethNetwork(t)
	facts := &TxFacts{
		NetworkID:   "ethereum",
		TxHash:      "0xabc",
		BlockHeight: 105,
		Outputs: []TxOutput{
			{Recipient: deposit, AssetRef: "0xdac17f958d2ee523a2206206994597c13d831ec7", AmountRaw: big.NewInt(1000)},
		},
	}
	// expectation wants native ETH, tx delivered USDT
	_, err := Evaluate(network, nativeExpectation(1000, 100), facts, 120)
	if !errors.Is(err, ErrAssetMismatch) {
		t.Errorf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestEvaluateAmountMismatch(t *testing.T) {
	network := ethNetwork(t)
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 999, 105), 120)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestEvaluateExactMatchOnly(t *testing.T) {
	network := ethNetwork(t)
	// one raw unit over is still a mismatch: no tolerance band
	_, err := Evaluate(network, nativeExpectation(1000, 100), nativeFacts(deposit, 1001, 105), 120)
	if !errors.Is(err, ErrAmountMismatch) {
		t.Errorf("expected ErrAmountMismatch for off-by-one, got %v", err)
	}
}

func TestEvaluateReverted(t *testing.T) {
	network := ethNetwork(t)
	facts := nativeFacts(deposit, 1000, 105)
	facts.Reverted = true
	_, err := Evaluate(network, nativeExpectation(1000, 100), facts, 120)
	if !errors.Is(err, ErrOnChainFailure) {
		t.Errorf("expected ErrOnChainFailure, got %v", err)
	}
}

func TestEvaluateMultiOutputUTXO(t *testing.T) {
	network, err := registry.Default.Network("bitcoin")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	// change output plus the payment output; the matching one wins
	facts := &TxFacts{
		NetworkID:   "bitcoin",
		TxHash:      "deadbeef",
		BlockHeight: 800000,
		Outputs: []TxOutput{
			{Recipient: "bc1qchange", AmountRaw: big.NewInt(7777)},
			{Recipient: "bc1qdeposit", AmountRaw: big.NewInt(2100000)},
		},
	}
	exp := Expectation{
		DepositAddress: "bc1qdeposit",
		StartBlock:     799990,
		AmountRaw:      big.NewInt(2100000),
	}
	eval, err := Evaluate(network, exp, facts, 800003)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Output.AmountRaw.Int64() != 2100000 {
		t.Errorf("matched wrong output: %s", eval.Output.AmountRaw)
	}
	if !eval.Ready {
		t.Error("3 confirmations should meet the bitcoin threshold")
	}
}

func TestBackoffPolicy(t *testing.T) {
	p := BackoffPolicy{BaseDelay: 1, MaxDelay: 8, Multiplier: 2, MaxAttempts: 4}
	if p.Delay(0) != 1 || p.Delay(1) != 2 || p.Delay(2) != 4 || p.Delay(5) != 8 {
		t.Errorf("unexpected delays: %v %v %v %v", p.Delay(0), p.Delay(1), p.Delay(2), p.Delay(5))
	}
	if p.Exhausted(3) {
		t.Error("attempt 3 should be allowed with MaxAttempts 4")
	}
	if !p.Exhausted(4) {
		t.Error("attempt 4 should be exhausted with MaxAttempts 4")
	}
}
