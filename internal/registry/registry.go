package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
)

// ChainFamily blockchain family classification
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilyUTXO   ChainFamily = "utxo"
	FamilySolana ChainFamily = "solana"
)

// NetworkInfo static per-network configuration
type NetworkInfo struct {
	ID                    string      `json:"id"`
	Family                ChainFamily `json:"family"`
	Name                  string      `json:"name"`
	NativeSymbol          string      `json:"native_symbol"`
	NativeDecimals        uint8       `json:"native_decimals"`
	ConfirmationsRequired uint64      `json:"confirmations_required"`
	URIScheme             string      `json:"uri_scheme"` // payment URI prefix; empty for EVM (plain address)
	ExplorerBaseURL       string      `json:"explorer_base_url"`
	AddressParams         *chaincfg.Params
}

// AssetInfo static per-asset configuration
type AssetInfo struct {
	ID          string `json:"id"`
	NetworkID   string `json:"network_id"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	ContractRef string `json:"contract_ref"` // token contract / SPL mint; empty for native asset
}

// IsNative reports whether the asset is the network's native coin
func (a AssetInfo) IsNative() bool {
	return a.ContractRef == ""
}

// ltcParams address parameters for Litecoin mainnet. btcd's chaincfg only
// ships Bitcoin networks; Litecoin differs in the network magic, the version
// bytes and the bech32 human-readable part.
var ltcParams = chaincfg.Params{
	Name:             "litecoin",
	Net:              wire.BitcoinNet(0xdbb6c0fb),
	PubKeyHashAddrID: 0x30,
	ScriptHashAddrID: 0x32,
	PrivateKeyID:     0xb0,
	Bech32HRPSegwit:  "ltc",
	HDPrivateKeyID:   [4]byte{0x01, 0x9d, 0x9c, 0xfe},
	HDPublicKeyID:    [4]byte{0x01, 0x9d, 0xa4, 0x62},
}

// Registry static asset/network catalog. Pure lookup, no state.
type Registry struct {
	networks map[string]*NetworkInfo
	assets   map[string]*AssetInfo
}

// Default the process-wide registry, built at init
var Default *Registry

func init() {
	// btcutil.DecodeAddress only recognizes bech32 prefixes of registered
	// networks; without this, ltc1 addresses never decode
	if err := chaincfg.Register(&ltcParams); err != nil {
		panic(err)
	}
	Default = New()
}

// New builds the catalog of supported networks and assets
func New() *Registry {
	r := &Registry{
		networks: make(map[string]*NetworkInfo),
		assets:   make(map[string]*AssetInfo),
	}

	networks := []*NetworkInfo{
		{
			ID:                    "ethereum",
			Family:                FamilyEVM,
			Name:                  "Ethereum",
			NativeSymbol:          "ETH",
			NativeDecimals:        18,
			ConfirmationsRequired: 12,
			ExplorerBaseURL:       "https://etherscan.io",
		},
		{
			ID:                    "polygon",
			Family:                FamilyEVM,
			Name:                  "Polygon",
			NativeSymbol:          "POL",
			NativeDecimals:        18,
			ConfirmationsRequired: 30,
			ExplorerBaseURL:       "https://polygonscan.com",
		},
		{
			ID:                    "bitcoin",
			Family:                FamilyUTXO,
			Name:                  "Bitcoin",
			NativeSymbol:          "BTC",
			NativeDecimals:        8,
			ConfirmationsRequired: 3,
			URIScheme:             "bitcoin",
			ExplorerBaseURL:       "https://mempool.space",
			AddressParams:         &chaincfg.MainNetParams,
		},
		{
			ID:                    "litecoin",
			Family:                FamilyUTXO,
			Name:                  "Litecoin",
			NativeSymbol:          "LTC",
			NativeDecimals:        8,
			ConfirmationsRequired: 6,
			URIScheme:             "litecoin",
			ExplorerBaseURL:       "https://litecoinspace.org",
			AddressParams:         &ltcParams,
		},
		{
			ID:                    "solana",
			Family:                FamilySolana,
			Name:                  "Solana",
			NativeSymbol:          "SOL",
			NativeDecimals:        9,
			ConfirmationsRequired: 32,
			URIScheme:             "solana",
			ExplorerBaseURL:       "https://solscan.io",
		},
	}

	assets := []*AssetInfo{
		{ID: "eth", NetworkID: "ethereum", Symbol: "ETH", Decimals: 18},
		{ID: "usdt-eth", NetworkID: "ethereum", Symbol: "USDT", Decimals: 6, ContractRef: "0xdac17f958d2ee523a2206206994597c13d831ec7"},
		{ID: "usdc-eth", NetworkID: "ethereum", Symbol: "USDC", Decimals: 6, ContractRef: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		{ID: "pol", NetworkID: "polygon", Symbol: "POL", Decimals: 18},
		{ID: "usdt-polygon", NetworkID: "polygon", Symbol: "USDT", Decimals: 6, ContractRef: "0xc2132d05d31c914a87c6611c10748aeb04b58e8f"},
		{ID: "btc", NetworkID: "bitcoin", Symbol: "BTC", Decimals: 8},
		{ID: "ltc", NetworkID: "litecoin", Symbol: "LTC", Decimals: 8},
		{ID: "sol", NetworkID: "solana", Symbol: "SOL", Decimals: 9},
		{ID: "usdc-sol", NetworkID: "solana", Symbol: "USDC", Decimals: 6, ContractRef: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
	}

	for _, n := range networks {
		r.networks[n.ID] = n
	}
	for _, a := range assets {
		r.assets[a.ID] = a
	}
	return r
}

// Network looks up a network by id
func (r *Registry) Network(networkID string) (*NetworkInfo, error) {
	info, ok := r.networks[strings.ToLower(networkID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkID)
	}
	return info, nil
}

// Asset looks up an asset by id
func (r *Registry) Asset(assetID string) (*AssetInfo, error) {
	info, ok := r.assets[strings.ToLower(assetID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, assetID)
	}
	return info, nil
}

// AssetOnNetwork looks up an asset and checks it belongs to the given network
func (r *Registry) AssetOnNetwork(assetID, networkID string) (*AssetInfo, *NetworkInfo, error) {
	asset, err := r.Asset(assetID)
	if err != nil {
		return nil, nil, err
	}
	network, err := r.Network(networkID)
	if err != nil {
		return nil, nil, err
	}
	if asset.NetworkID != network.ID {
		return nil, nil, fmt.Errorf("%w: asset %s is not on network %s", ErrUnknownAsset, assetID, networkID)
	}
	return asset, network, nil
}

// Networks returns all registered networks
func (r *Registry) Networks() []*NetworkInfo {
	out := make([]*NetworkInfo, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	return out
}

// ValidateAddress checks that an address is well-formed for the network.
// UTXO networks decode against the network's own parameters, so a Bitcoin
// bc1 address is rejected for Litecoin and vice versa.
func (r *Registry) ValidateAddress(networkID, address string) error {
	network, err := r.Network(networkID)
	if err != nil {
		return err
	}
	switch network.Family {
	case FamilyEVM:
		if !common.IsHexAddress(address) {
			return fmt.Errorf("invalid %s address: %s", network.Name, address)
		}
	case FamilyUTXO:
		addr, err := btcutil.DecodeAddress(address, network.AddressParams)
		if err != nil {
			return fmt.Errorf("invalid %s address %s: %w", network.Name, address, err)
		}
		// DecodeAddress accepts any registered network's encoding; membership
		// is a separate check
		if !addr.IsForNet(network.AddressParams) {
			return fmt.Errorf("invalid %s address %s: wrong network", network.Name, address)
		}
	case FamilySolana:
		if len(address) < 32 || len(address) > 44 {
			return fmt.Errorf("invalid Solana address: %s", address)
		}
	}
	return nil
}

// PaymentURI builds the chain-specific QR payload for a deposit.
// UTXO networks use their own BIP-21 scheme (litecoin: must never fall back to
// bitcoin:), Solana uses a solana: URI, EVM wallets scan the plain address.
func (r *Registry) PaymentURI(network *NetworkInfo, asset *AssetInfo, address, amountDecimal string) string {
	switch network.Family {
	case FamilyUTXO:
		return fmt.Sprintf("%s:%s?amount=%s", network.URIScheme, address, url.QueryEscape(amountDecimal))
	case FamilySolana:
		uri := fmt.Sprintf("%s:%s?amount=%s", network.URIScheme, address, url.QueryEscape(amountDecimal))
		if !asset.IsNative() {
			uri += "&spl-token=" + asset.ContractRef
		}
		return uri
	default:
		return address
	}
}

// ExplorerTxURL returns the block explorer link for a transaction
func (r *Registry) ExplorerTxURL(network *NetworkInfo, txHash string) string {
	return network.ExplorerBaseURL + "/tx/" + txHash
}
