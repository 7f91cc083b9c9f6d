package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"donation-backend/internal/chain"
	"donation-backend/internal/config"
	"donation-backend/internal/registry"
)

// erc20TransferTopic keccak256("Transfer(address,address,uint256)")
var erc20TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EVMClient chain facts client for EVM-family networks
type EVMClient struct {
	mu    sync.Mutex
	conns map[string]*ethclient.Client
}

// NewEVMClient creates a new EVM chain facts client
func NewEVMClient() *EVMClient {
	return &EVMClient{
		conns: make(map[string]*ethclient.Client),
	}
}

// conn returns (dialing lazily) the client for a network
func (c *EVMClient) conn(networkID string) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.conns[networkID]; ok {
		return client, nil
	}

	netCfg, err := config.GetNetworkConfig(networkID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}
	if len(netCfg.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("%w: no RPC endpoint configured for %s", chain.ErrRPCUnavailable, networkID)
	}

	var lastErr error
	for _, endpoint := range netCfg.RPCEndpoints {
		client, err := ethclient.Dial(endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		c.conns[networkID] = client
		return client, nil
	}
	return nil, fmt.Errorf("%w: dial %s: %v", chain.ErrRPCUnavailable, networkID, lastErr)
}

// TransactionFacts fetches and normalizes EVM transaction facts. The native
// value transfer and every ERC-20 Transfer log in the receipt become outputs,
// so token payments to the deposit address are visible regardless of which
// contract emitted them.
func (c *EVMClient) TransactionFacts(ctx context.Context, network *registry.NetworkInfo, txHash string) (*chain.TxFacts, error) {
	client, err := c.conn(network.ID)
	if err != nil {
		return nil, err
	}

	hash := common.HexToHash(txHash)
	tx, isPending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s on %s", chain.ErrTransactionNotFound, txHash, network.ID)
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}
	if isPending {
		// not yet mined: no block height means no replay-guard decision yet
		return nil, fmt.Errorf("%w: %s still pending", chain.ErrTransactionNotFound, txHash)
	}

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: receipt for %s", chain.ErrTransactionNotFound, txHash)
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}

	facts := &chain.TxFacts{
		NetworkID:   network.ID,
		TxHash:      txHash,
		BlockHeight: receipt.BlockNumber.Uint64(),
		Reverted:    receipt.Status == types.ReceiptStatusFailed,
	}

	if sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		facts.Sender = strings.ToLower(sender.Hex())
	}

	if tx.To() != nil && tx.Value() != nil && tx.Value().Sign() > 0 {
		facts.Outputs = append(facts.Outputs, chain.TxOutput{
			Recipient: strings.ToLower(tx.To().Hex()),
			AmountRaw: new(big.Int).Set(tx.Value()),
		})
	}

	for _, lg := range receipt.Logs {
		if len(lg.Topics) != 3 || lg.Topics[0] != erc20TransferTopic {
			continue
		}
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		facts.Outputs = append(facts.Outputs, chain.TxOutput{
			Recipient: strings.ToLower(to.Hex()),
			AssetRef:  strings.ToLower(lg.Address.Hex()),
			AmountRaw: new(big.Int).SetBytes(lg.Data),
		})
	}

	return facts, nil
}

// ChainHead returns the current best block number
func (c *EVMClient) ChainHead(ctx context.Context, network *registry.NetworkInfo) (uint64, error) {
	client, err := c.conn(network.ID)
	if err != nil {
		return 0, err
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}
	return head, nil
}
