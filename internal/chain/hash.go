package chain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"

	"donation-backend/internal/registry"
)

var hex64Pattern = regexp.MustCompile("^[0-9a-f]{64}$")

// NormalizeTxHash canonicalizes a user-supplied transaction hash for the
// network family. Arbitrary casing and optional 0x prefix are accepted; the
// canonical form is what every (network, txHash) key is stored under.
//
//	EVM:    0x + 64 lowercase hex chars
//	UTXO:   64 lowercase hex chars, no prefix
//	Solana: base58 signature, at least 32 chars
func NormalizeTxHash(family registry.ChainFamily, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty hash", ErrInvalidHashFormat)
	}

	switch family {
	case registry.FamilyEVM:
		h := strings.ToLower(strings.TrimPrefix(strings.ToLower(raw), "0x"))
		if !hex64Pattern.MatchString(h) {
			return "", fmt.Errorf("%w: %q is not a 64-char hex hash", ErrInvalidHashFormat, raw)
		}
		return "0x" + h, nil

	case registry.FamilyUTXO:
		h := strings.ToLower(strings.TrimPrefix(strings.ToLower(raw), "0x"))
		if !hex64Pattern.MatchString(h) {
			return "", fmt.Errorf("%w: %q is not a 64-char hex txid", ErrInvalidHashFormat, raw)
		}
		return h, nil

	case registry.FamilySolana:
		if len(raw) < 32 || len(raw) > 90 {
			return "", fmt.Errorf("%w: signature length %d out of range", ErrInvalidHashFormat, len(raw))
		}
		if len(base58.Decode(raw)) == 0 {
			return "", fmt.Errorf("%w: %q is not valid base58", ErrInvalidHashFormat, raw)
		}
		return raw, nil

	default:
		return "", fmt.Errorf("%w: unsupported chain family %q", ErrInvalidHashFormat, family)
	}
}
