package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"donation-backend/internal/chain"
	"donation-backend/internal/config"
	"donation-backend/internal/registry"
)

// UTXOClient chain facts client for Bitcoin-family networks. Talks to a
// bitcoind/litecoind node over JSON-RPC in HTTP POST mode.
type UTXOClient struct {
	mu    sync.Mutex
	conns map[string]*rpcclient.Client
}

// NewUTXOClient creates a new UTXO chain facts client
func NewUTXOClient() *UTXOClient {
	return &UTXOClient{
		conns: make(map[string]*rpcclient.Client),
	}
}

func (c *UTXOClient) conn(networkID string) (*rpcclient.Client, error) {
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

	host := netCfg.RPCEndpoints[0]
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         netCfg.RPCUser,
		Pass:         netCfg.RPCPassword,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", chain.ErrRPCUnavailable, networkID, err)
	}

	c.conns[networkID] = client
	return client, nil
}

// TransactionFacts fetches and normalizes UTXO transaction facts. Every
// output with a decodable address becomes a TxOutput; only native value
// exists in this family so AssetRef stays empty.
func (c *UTXOClient) TransactionFacts(ctx context.Context, network *registry.NetworkInfo, txHash string) (*chain.TxFacts, error) {
	client, err := c.conn(network.ID)
	if err != nil {
		return nil, err
	}

	hash, err := chainhash.NewHashFromStr(txHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrInvalidHashFormat, err)
	}

	res, err := client.GetRawTransactionVerbose(hash)
	if err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCNoTxInfo {
			return nil, fmt.Errorf("%w: %s on %s", chain.ErrTransactionNotFound, txHash, network.ID)
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}

	if res.BlockHash == "" {
		// mempool only: no height yet, retry after it mines
		return nil, fmt.Errorf("%w: %s not yet mined", chain.ErrTransactionNotFound, txHash)
	}

	blockHash, err := chainhash.NewHashFromStr(res.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("%w: bad block hash %s", chain.ErrRPCUnavailable, res.BlockHash)
	}
	block, err := client.GetBlockVerbose(blockHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}

	facts := &chain.TxFacts{
		NetworkID:   network.ID,
		TxHash:      txHash,
		BlockHeight: uint64(block.Height),
	}

	for _, vout := range res.Vout {
		for _, addr := range voutAddresses(vout) {
			amt, err := btcutil.NewAmount(vout.Value)
			if err != nil {
				continue
			}
			facts.Outputs = append(facts.Outputs, chain.TxOutput{
				Recipient: addr,
				AmountRaw: big.NewInt(int64(amt)),
			})
		}
	}

	return facts, nil
}

// voutAddresses handles both the modern single-address field and the
// deprecated list older nodes still return
func voutAddresses(vout btcjson.Vout) []string {
	if vout.ScriptPubKey.Address != "" {
		return []string{vout.ScriptPubKey.Address}
	}
	return vout.ScriptPubKey.Addresses
}

// ChainHead returns the current best block height
func (c *UTXOClient) ChainHead(ctx context.Context, network *registry.NetworkInfo) (uint64, error) {
	client, err := c.conn(network.ID)
	if err != nil {
		return 0, err
	}
	count, err := client.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}
	return uint64(count), nil
}
