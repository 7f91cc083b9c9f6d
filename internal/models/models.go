package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentStatus payment intent lifecycle state
type IntentStatus string

const (
	IntentStatusCreated    IntentStatus = "created"    // intent persisted, waiting for a candidate transaction
	IntentStatusDetecting  IntentStatus = "detecting"  // candidate tx hash named but not yet validated
	IntentStatusConfirming IntentStatus = "confirming" // matched tx below confirmation threshold
	IntentStatusConfirmed  IntentStatus = "confirmed"  // terminal: ledger entry written
	IntentStatusExpired    IntentStatus = "expired"    // terminal: no claimed tx before expiry
	IntentStatusFailed     IntentStatus = "failed"     // terminal: claimed tx reverted on-chain
	IntentStatusMismatch   IntentStatus = "mismatch"   // terminal: correct address+asset, wrong amount (needs review)
)

// IsTerminal reports whether the status permits no further transitions
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentStatusConfirmed, IntentStatusExpired, IntentStatusFailed, IntentStatusMismatch:
		return true
	}
	return false
}

// TxRecordStatus chain transaction record observation state
type TxRecordStatus string

const (
	TxRecordStatusSeen       TxRecordStatus = "seen"
	TxRecordStatusConfirming TxRecordStatus = "confirming"
	TxRecordStatusConfirmed  TxRecordStatus = "confirmed"
)

// PaymentIntent one pledge to pay a specific asset amount on a specific network.
// Expectation fields (campaign, network, asset, amounts, deposit address,
// start block, expiry) are immutable after creation; only status and detected
// transaction facts change, and never after a terminal status is reached.
type PaymentIntent struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	CampaignID string `json:"campaign_id" gorm:"size:36;not null;index"`

	NetworkID     string `json:"network_id" gorm:"size:32;not null"`
	AssetID       string `json:"asset_id" gorm:"size:32;not null"`
	AmountDecimal string `json:"amount_decimal" gorm:"size:64;not null"` // donor-visible decimal string (nonced)
	AmountRaw     string `json:"amount_raw" gorm:"size:78;not null"`     // expected raw integer in native units, nonce in lowest digits
	AmountNonce   uint64 `json:"amount_nonce" gorm:"not null"`

	DepositAddress string `json:"deposit_address" gorm:"size:128;not null;index:idx_intent_deposit"`
	StartBlock     uint64 `json:"start_block" gorm:"not null"` // replay guard: txs mined before this cannot satisfy the intent

	Status        IntentStatus `json:"status" gorm:"size:16;not null;index"`
	TxHash        *string      `json:"tx_hash" gorm:"size:128"` // candidate transaction, once named
	Confirmations uint64       `json:"confirmations"`
	LastScanned   uint64       `json:"last_scanned"` // watcher cursor: last block height inspected
	DonationID    *string      `json:"donation_id" gorm:"size:36"`
	RejectReason  string       `json:"reject_reason,omitempty" gorm:"size:255"` // audit metadata for terminal flagged states

	DonorID   *string   `json:"donor_id" gorm:"size:64"` // nullable: anonymous donations
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChainTransactionRecord normalized facts about one transaction on one network.
// The unique (network_id, tx_hash) index is the idempotency boundary: at most
// one record per key, claimed by at most one intent, never re-pointed.
type ChainTransactionRecord struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	NetworkID string `json:"network_id" gorm:"size:32;not null;uniqueIndex:uk_txrecord_network_hash"`
	TxHash    string `json:"tx_hash" gorm:"size:128;not null;uniqueIndex:uk_txrecord_network_hash"`

	Sender        string         `json:"sender" gorm:"size:128"`
	Recipient     string         `json:"recipient" gorm:"size:128;not null"`
	AssetID       string         `json:"asset_id" gorm:"size:32;not null"`
	AmountRaw     string         `json:"amount_raw" gorm:"size:78;not null"`
	Decimals      uint8          `json:"decimals"`
	BlockHeight   uint64         `json:"block_height"`
	Confirmations uint64         `json:"confirmations"` // monotonically increasing
	Status        TxRecordStatus `json:"status" gorm:"size:16;not null"`
	IntentID      *string        `json:"intent_id" gorm:"size:36;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DonationLedgerEntry the committed financial fact, written exactly once per
// confirmed intent. Append-only: rows are never mutated after creation, and the
// fiat valuation is a snapshot taken at commit time, never recomputed.
type DonationLedgerEntry struct {
	ID         string `json:"donation_id" gorm:"primaryKey;size:36"`
	CampaignID string `json:"campaign_id" gorm:"size:36;not null;index"`
	IntentID   string `json:"intent_id" gorm:"size:36;not null"`

	NetworkID     string `json:"network_id" gorm:"size:32;not null;uniqueIndex:uk_ledger_network_hash"`
	TxHash        string `json:"tx_hash" gorm:"size:128;not null;uniqueIndex:uk_ledger_network_hash"`
	AssetID       string `json:"asset_id" gorm:"size:32;not null"`
	AmountRaw     string `json:"amount_raw" gorm:"size:78;not null"`
	AmountDecimal string `json:"amount_decimal" gorm:"size:64;not null"`

	FiatCurrency string          `json:"fiat_currency" gorm:"size:8;not null"`
	FiatValue    decimal.Decimal `json:"fiat_value" gorm:"type:numeric(24,8);not null"` // valuation snapshot at confirmation time

	DonorID   *string   `json:"donor_id" gorm:"size:64"`
	CreatedAt time.Time `json:"created_at"`
}

// Campaign fundraising campaign with running totals maintained by the committer
type Campaign struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	Title         string          `json:"title" gorm:"size:255;not null"`
	FiatCurrency  string          `json:"fiat_currency" gorm:"size:8;not null"`
	TotalRaised   decimal.Decimal `json:"total_raised" gorm:"type:numeric(24,8);not null;default:0"` // sum of ledger snapshots
	DonationCount uint64          `json:"donation_count" gorm:"not null;default:0"`
	IsActive      bool            `json:"is_active" gorm:"default:true"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AssetPriceSnapshot latest fiat quote per asset, refreshed by the price service
type AssetPriceSnapshot struct {
	ID           uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	AssetID      string          `json:"asset_id" gorm:"size:32;not null;uniqueIndex:uk_price_asset_currency"`
	FiatCurrency string          `json:"fiat_currency" gorm:"size:8;not null;uniqueIndex:uk_price_asset_currency"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(24,8);not null"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
