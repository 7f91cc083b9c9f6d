package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"donation-backend/internal/chain"
	"donation-backend/internal/config"
	"donation-backend/internal/registry"
)

// SolanaClient chain facts client for Solana. Uses the JSON-RPC HTTP API
// directly; getTransaction with jsonParsed encoding carries everything we
// need (balance deltas, token balances, slot, status).
type SolanaClient struct {
	httpClient *http.Client
}

// NewSolanaClient creates a new Solana chain facts client
func NewSolanaClient() *SolanaClient {
	return &SolanaClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type solanaRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type solanaRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type solanaTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount string `json:"amount"`
	} `json:"uiTokenAmount"`
}

type solanaTransactionResult struct {
	Slot uint64 `json:"slot"`
	Meta struct {
		Err               interface{}          `json:"err"`
		PreBalances       []uint64             `json:"preBalances"`
		PostBalances      []uint64             `json:"postBalances"`
		PreTokenBalances  []solanaTokenBalance `json:"preTokenBalances"`
		PostTokenBalances []solanaTokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
				Signer bool   `json:"signer"`
			} `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

func (c *SolanaClient) call(ctx context.Context, networkID, method string, params []interface{}, result interface{}) error {
	netCfg, err := config.GetNetworkConfig(networkID)
	if err != nil {
		return fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}
	if len(netCfg.RPCEndpoints) == 0 {
		return fmt.Errorf("%w: no RPC endpoint configured for %s", chain.ErrRPCUnavailable, networkID)
	}

	body, err := json.Marshal(solanaRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chain.ErrRPCUnavailable, err)
	}

	var lastErr error
	for _, endpoint := range netCfg.RPCEndpoints {
		req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var envelope struct {
			Result json.RawMessage `json:"result"`
			Error  *solanaRPCError `json:"error"`
		}
		err = json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if envelope.Error != nil {
			lastErr = fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
			continue
		}
		if string(envelope.Result) == "null" {
			return chain.ErrTransactionNotFound
		}
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %s: %v", chain.ErrRPCUnavailable, method, lastErr)
}

// TransactionFacts fetches and normalizes Solana transaction facts. Positive
// lamport deltas become native outputs; positive token balance deltas become
// SPL outputs attributed to the owning wallet.
func (c *SolanaClient) TransactionFacts(ctx context.Context, network *registry.NetworkInfo, txHash string) (*chain.TxFacts, error) {
	var result solanaTransactionResult
	err := c.call(ctx, network.ID, "getTransaction", []interface{}{
		txHash,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}, &result)
	if err != nil {
		if err == chain.ErrTransactionNotFound {
			return nil, fmt.Errorf("%w: %s on %s", chain.ErrTransactionNotFound, txHash, network.ID)
		}
		return nil, err
	}

	facts := &chain.TxFacts{
		NetworkID:   network.ID,
		TxHash:      txHash,
		BlockHeight: result.Slot,
		Reverted:    result.Meta.Err != nil,
	}

	keys := result.Transaction.Message.AccountKeys
	if len(keys) > 0 {
		facts.Sender = keys[0].Pubkey
	}

	for i, key := range keys {
		if i >= len(result.Meta.PreBalances) || i >= len(result.Meta.PostBalances) {
			break
		}
		pre := result.Meta.PreBalances[i]
		post := result.Meta.PostBalances[i]
		if post > pre {
			facts.Outputs = append(facts.Outputs, chain.TxOutput{
				Recipient: key.Pubkey,
				AmountRaw: new(big.Int).SetUint64(post - pre),
			})
		}
	}

	preByIndex := make(map[int]*big.Int)
	for _, tb := range result.Meta.PreTokenBalances {
		if amt, ok := new(big.Int).SetString(tb.UITokenAmount.Amount, 10); ok {
			preByIndex[tb.AccountIndex] = amt
		}
	}
	for _, tb := range result.Meta.PostTokenBalances {
		post, ok := new(big.Int).SetString(tb.UITokenAmount.Amount, 10)
		if !ok {
			continue
		}
		pre := preByIndex[tb.AccountIndex]
		if pre == nil {
			pre = big.NewInt(0)
		}
		delta := new(big.Int).Sub(post, pre)
		if delta.Sign() > 0 {
			facts.Outputs = append(facts.Outputs, chain.TxOutput{
				Recipient: tb.Owner,
				AssetRef:  tb.Mint,
				AmountRaw: delta,
			})
		}
	}

	return facts, nil
}

// ChainHead returns the current confirmed slot
func (c *SolanaClient) ChainHead(ctx context.Context, network *registry.NetworkInfo) (uint64, error) {
	var slot uint64
	err := c.call(ctx, network.ID, "getSlot", []interface{}{
		map[string]interface{}{"commitment": "confirmed"},
	}, &slot)
	if err != nil {
		return 0, err
	}
	return slot, nil
}
