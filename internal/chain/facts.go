package chain

import (
	"context"
	"math/big"

	"donation-backend/internal/registry"
)

// TxOutput one value transfer carried by a transaction. EVM and Solana
// transactions normalize to a single output; UTXO transactions carry one
// entry per spendable output.
type TxOutput struct {
	Recipient string   // receiving address, family-canonical form
	AssetRef  string   // token contract / SPL mint; empty for the native asset
	AmountRaw *big.Int // native integer units
}

// TxFacts normalized chain truth about one transaction. Every family-specific
// raw payload (EvmTxFacts, UtxoTxFacts, SolanaTxFacts in the clients package)
// is reduced to this shape before any business rule runs.
type TxFacts struct {
	NetworkID   string
	TxHash      string
	Sender      string // empty where the family does not expose a single sender
	Outputs     []TxOutput
	BlockHeight uint64
	Reverted    bool // mined but failed on-chain
}

// Client fetches chain facts for one network family. Implementations must
// return ErrTransactionNotFound / ErrRPCUnavailable (wrapped) for the
// corresponding conditions so callers can classify retryability.
type Client interface {
	// TransactionFacts fetches and normalizes facts for a canonical tx hash
	TransactionFacts(ctx context.Context, network *registry.NetworkInfo, txHash string) (*TxFacts, error)
	// ChainHead returns the current best block height / slot
	ChainHead(ctx context.Context, network *registry.NetworkInfo) (uint64, error)
}

// ClientSet resolves the client for a network's family
type ClientSet map[registry.ChainFamily]Client

// For returns the client registered for the family, or nil
func (s ClientSet) For(family registry.ChainFamily) Client {
	return s[family]
}
