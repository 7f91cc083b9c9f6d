package registry

import (
	"errors"
	"strings"
	"testing"
)

func TestUnknownLookups(t *testing.T) {
	r := New()
	if _, err := r.Network("dogecoin"); !errors.Is(err, ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}
	if _, err := r.Asset("doge"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
	if _, _, err := r.AssetOnNetwork("btc", "ethereum"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset for btc on ethereum, got %v", err)
	}
}

func TestAssetOnNetwork(t *testing.T) {
	r := New()
	asset, network, err := r.AssetOnNetwork("usdt-eth", "ethereum")
	if err != nil {
		t.Fatalf("AssetOnNetwork: %v", err)
	}
	if asset.IsNative() {
		t.Error("usdt-eth should not be native")
	}
	if network.Family != FamilyEVM {
		t.Errorf("ethereum family = %s, want evm", network.Family)
	}
}

func TestValidateAddressEVM(t *testing.T) {
	r := New()
	if err := r.ValidateAddress("ethereum", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	if err := r.ValidateAddress("ethereum", "0x1234"); err == nil {
		t.Error("truncated address accepted")
	}
}

func TestValidateAddressUTXOFamilyIsolation(t *testing.T) {
	r := New()
	// BIP-173 test vector, valid on Bitcoin mainnet
	btcAddr := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	if err := r.ValidateAddress("bitcoin", btcAddr); err != nil {
		t.Errorf("valid bitcoin address rejected: %v", err)
	}
	// the same address must not pass as a Litecoin address
	if err := r.ValidateAddress("litecoin", btcAddr); err == nil {
		t.Error("bitcoin bc1 address accepted for litecoin")
	}

	// witness v0 address with the ltc HRP: valid on Litecoin, nowhere else
	ltcAddr := "ltc1qqqqsyqcyq5rqwzqfpg9scrgwpugpzysn3s44dy"
	if err := r.ValidateAddress("litecoin", ltcAddr); err != nil {
		t.Errorf("valid litecoin address rejected: %v", err)
	}
	if err := r.ValidateAddress("bitcoin", ltcAddr); err == nil {
		t.Error("litecoin ltc1 address accepted for bitcoin")
	}
}

func TestPaymentURISchemes(t *testing.T) {
	r := New()

	ltcNet, _ := r.Network("litecoin")
	ltcAsset, _ := r.Asset("ltc")
	uri := r.PaymentURI(ltcNet, ltcAsset, "ltc1qexampleaddress", "1.05")
	if !strings.HasPrefix(uri, "litecoin:") {
		t.Errorf("litecoin URI %q must use the litecoin: scheme", uri)
	}
	if strings.HasPrefix(uri, "bitcoin:") {
		t.Errorf("litecoin URI %q fell back to bitcoin:", uri)
	}

	solNet, _ := r.Network("solana")
	usdcSol, _ := r.Asset("usdc-sol")
	uri = r.PaymentURI(solNet, usdcSol, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "10")
	if !strings.HasPrefix(uri, "solana:") {
		t.Errorf("solana URI %q must use the solana: scheme", uri)
	}
	if !strings.Contains(uri, "spl-token="+usdcSol.ContractRef) {
		t.Errorf("SPL token URI %q missing spl-token parameter", uri)
	}

	ethNet, _ := r.Network("ethereum")
	ethAsset, _ := r.Asset("eth")
	if uri := r.PaymentURI(ethNet, ethAsset, "0xabc", "1"); uri != "0xabc" {
		t.Errorf("EVM payment URI should be the plain address, got %q", uri)
	}
}

func TestExplorerTxURL(t *testing.T) {
	r := New()
	ethNet, _ := r.Network("ethereum")
	url := r.ExplorerTxURL(ethNet, "0xdeadbeef")
	if url != "https://etherscan.io/tx/0xdeadbeef" {
		t.Errorf("unexpected explorer URL %q", url)
	}
}
