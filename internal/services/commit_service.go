package services

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"donation-backend/internal/amount"
	"donation-backend/internal/metrics"
	"donation-backend/internal/models"
	"donation-backend/internal/repository"
)

// CommitService turns a fully verified intent into a donation ledger entry.
// All atomicity lives in the reconciliation repository; this layer adds the
// fiat valuation snapshot, metrics and the status push.
type CommitService struct {
	recon  repository.ReconciliationRepository
	prices *PriceService
	push   *PushService
}

// NewCommitService creates a new commit service
func NewCommitService(recon repository.ReconciliationRepository, prices *PriceService, push *PushService) *CommitService {
	return &CommitService{
		recon:  recon,
		prices: prices,
		push:   push,
	}
}

// RecordObservation persists the sighting of a matched transaction that is
// still below its network's confirmation threshold
func (s *CommitService) RecordObservation(ctx context.Context, record *models.ChainTransactionRecord) error {
	return s.recon.RecordObservation(ctx, record)
}

// Commit writes the ledger entry for a verified intent. Idempotent on the
// (network, tx hash) key: a duplicate call reports AlreadyRecorded instead of
// writing a second entry.
func (s *CommitService) Commit(ctx context.Context, intent *models.PaymentIntent, record *models.ChainTransactionRecord, decimals uint8) (*repository.CommitResult, error) {
	raw, err := amount.ParseRaw(record.AmountRaw)
	if err != nil {
		return nil, fmt.Errorf("commit intent %s: %w", intent.ID, err)
	}
	amountDecimal := amount.FromNative(raw, decimals)

	// valuation snapshot: whatever the cache holds right now is what the
	// ledger keeps forever
	fiatValue := decimal.Zero
	price, err := s.prices.Quote(intent.AssetID)
	if err != nil {
		log.Printf("⚠️ No fiat quote for %s, committing donation with zero valuation: %v", intent.AssetID, err)
	} else {
		fiatValue = price.Mul(decimal.NewFromBigInt(raw, -int32(decimals)))
	}

	result, err := s.recon.CommitConfirmed(ctx, &repository.CommitParams{
		Intent:        intent,
		Record:        record,
		AmountDecimal: amountDecimal,
		FiatCurrency:  s.prices.FiatCurrency(),
		FiatValue:     fiatValue,
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyRecorded {
		metrics.DuplicateCommitsTotal.Inc()
		return result, nil
	}

	metrics.DonationsCommittedTotal.WithLabelValues(record.NetworkID).Inc()
	log.Printf("💰 Donation %s committed: intent %s, tx %s on %s, %s %s (%s %s)",
		result.DonationID, intent.ID, record.TxHash, record.NetworkID,
		amountDecimal, intent.AssetID, fiatValue, s.prices.FiatCurrency())

	s.push.Broadcast(&IntentStatusEvent{
		IntentID:      intent.ID,
		Status:        string(models.IntentStatusConfirmed),
		TxHash:        record.TxHash,
		Confirmations: record.Confirmations,
		DonationID:    result.DonationID,
	})

	return result, nil
}
