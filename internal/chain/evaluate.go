package chain

import (
	"fmt"
	"math/big"
	"strings"

	"donation-backend/internal/registry"
)

// Expectation what an intent demands of a candidate transaction
type Expectation struct {
	DepositAddress string
	StartBlock     uint64   // replay guard
	AssetRef       string   // expected contract/mint; empty for native
	AmountRaw      *big.Int // exact nonced amount
}

// Evaluation outcome of a successful check sequence
type Evaluation struct {
	Output        TxOutput
	Confirmations uint64
	Ready         bool // confirmations at/above the network threshold
}

// Evaluate runs the ordered business-rule checks of a candidate transaction
// against an intent's expectation. Pure: all I/O (fetching facts and the chain
// head) happens before this call.
//
// The order is fixed: recipient, replay guard, asset, amount, liveness. The
// replay guard runs before asset/amount so a pre-startBlock transaction is
// rejected deterministically even when it would also match on amount.
func Evaluate(network *registry.NetworkInfo, exp Expectation, facts *TxFacts, head uint64) (*Evaluation, error) {
	matched := outputsTo(network.Family, facts.Outputs, exp.DepositAddress)
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: tx %s", ErrWrongRecipient, facts.TxHash)
	}

	if facts.BlockHeight < exp.StartBlock {
		return nil, fmt.Errorf("%w: mined at %d, intent starts at %d", ErrReplayRejected, facts.BlockHeight, exp.StartBlock)
	}

	assetMatched := matched[:0]
	for _, out := range matched {
		if sameAssetRef(network.Family, out.AssetRef, exp.AssetRef) {
			assetMatched = append(assetMatched, out)
		}
	}
	if len(assetMatched) == 0 {
		return nil, fmt.Errorf("%w: tx %s", ErrAssetMismatch, facts.TxHash)
	}

	var hit *TxOutput
	for i := range assetMatched {
		if assetMatched[i].AmountRaw != nil && assetMatched[i].AmountRaw.Cmp(exp.AmountRaw) == 0 {
			hit = &assetMatched[i]
			break
		}
	}
	if hit == nil {
		return nil, fmt.Errorf("%w: expected %s", ErrAmountMismatch, exp.AmountRaw)
	}

	if facts.Reverted {
		return nil, fmt.Errorf("%w: tx %s", ErrOnChainFailure, facts.TxHash)
	}

	// confirmations are chain head minus the tx's block height; a tx in the
	// head block has zero
	var confirmations uint64
	if head > facts.BlockHeight {
		confirmations = head - facts.BlockHeight
	}
	return &Evaluation{
		Output:        *hit,
		Confirmations: confirmations,
		Ready:         confirmations >= network.ConfirmationsRequired,
	}, nil
}

// outputsTo filters outputs addressed to the deposit address. EVM addresses
// compare case-insensitively; base58 families are case-sensitive.
func outputsTo(family registry.ChainFamily, outputs []TxOutput, deposit string) []TxOutput {
	var matched []TxOutput
	for _, out := range outputs {
		if sameAddress(family, out.Recipient, deposit) {
			matched = append(matched, out)
		}
	}
	return matched
}

func sameAddress(family registry.ChainFamily, a, b string) bool {
	if family == registry.FamilyEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func sameAssetRef(family registry.ChainFamily, a, b string) bool {
	if family == registry.FamilyEVM {
		return strings.EqualFold(a, b)
	}
	return a == b
}
