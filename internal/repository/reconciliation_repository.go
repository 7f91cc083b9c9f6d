package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"donation-backend/internal/chain"
	"donation-backend/internal/models"
)

// CommitParams everything the committer needs to turn a verified intent into
// a ledger entry in one atomic unit
type CommitParams struct {
	Intent        *models.PaymentIntent
	Record        *models.ChainTransactionRecord
	AmountDecimal string
	FiatCurrency  string
	FiatValue     decimal.Decimal
}

// CommitResult outcome of a commit attempt
type CommitResult struct {
	DonationID      string
	AlreadyRecorded bool
}

// ReconciliationRepository the exactly-once commit boundary. CommitConfirmed
// claims the (network_id, tx_hash) key, flips the intent to confirmed, writes
// the ledger entry and bumps campaign totals inside a single transaction.
type ReconciliationRepository interface {
	CommitConfirmed(ctx context.Context, params *CommitParams) (*CommitResult, error)
	// RecordObservation upserts the record for a matched transaction still
	// below the confirmation threshold; counts only move up and a confirmed
	// record is never downgraded
	RecordObservation(ctx context.Context, record *models.ChainTransactionRecord) error
	FindTxRecord(ctx context.Context, networkID, txHash string) (*models.ChainTransactionRecord, error)
	FindLedgerByTx(ctx context.Context, networkID, txHash string) (*models.DonationLedgerEntry, error)
	GetLedgerEntry(ctx context.Context, donationID string) (*models.DonationLedgerEntry, error)
	ListLedgerByCampaign(ctx context.Context, campaignID string, limit int) ([]models.DonationLedgerEntry, error)
}

type gormReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository creates a gorm-backed reconciliation repository
func NewReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &gormReconciliationRepository{db: db}
}

func (r *gormReconciliationRepository) CommitConfirmed(ctx context.Context, params *CommitParams) (*CommitResult, error) {
	result := &CommitResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		intent := params.Intent
		record := params.Record
		record.IntentID = &intent.ID
		record.Status = models.TxRecordStatusConfirmed

		// claim the idempotency key; a conflict means someone recorded this
		// transaction first
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "network_id"}, {Name: "tx_hash"}},
			DoNothing: true,
		}).Create(record)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var existing models.ChainTransactionRecord
			if err := tx.Where("network_id = ? AND tx_hash = ?", record.NetworkID, record.TxHash).
				First(&existing).Error; err != nil {
				return err
			}
			if existing.IntentID == nil || *existing.IntentID != intent.ID {
				// claimed by a different intent: surface the existing donation
				var ledger models.DonationLedgerEntry
				if err := tx.Where("network_id = ? AND tx_hash = ?", record.NetworkID, record.TxHash).
					First(&ledger).Error; err == nil {
					result.DonationID = ledger.ID
				} else if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				result.AlreadyRecorded = true
				return nil
			}
			// our own claim from an earlier observation or attempt: finalize it
			if err := tx.Model(&models.ChainTransactionRecord{}).
				Where("network_id = ? AND tx_hash = ?", record.NetworkID, record.TxHash).
				Updates(map[string]interface{}{
					"status":        models.TxRecordStatusConfirmed,
					"confirmations": record.Confirmations,
				}).Error; err != nil {
				return err
			}
		}

		var current models.PaymentIntent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", intent.ID).First(&current).Error; err != nil {
			return err
		}

		switch current.Status {
		case models.IntentStatusConfirmed:
			if current.DonationID != nil {
				result.DonationID = *current.DonationID
			}
			result.AlreadyRecorded = true
			return nil
		case models.IntentStatusFailed, models.IntentStatusMismatch:
			return fmt.Errorf("%w: intent %s is %s", chain.ErrAlreadyTerminal, intent.ID, current.Status)
		}
		// expired intents with an in-flight verified tx still commit: the money
		// moved, the ledger must say so

		donationID := uuid.New().String()
		entry := &models.DonationLedgerEntry{
			ID:            donationID,
			CampaignID:    intent.CampaignID,
			IntentID:      intent.ID,
			NetworkID:     record.NetworkID,
			TxHash:        record.TxHash,
			AssetID:       intent.AssetID,
			AmountRaw:     record.AmountRaw,
			AmountDecimal: params.AmountDecimal,
			FiatCurrency:  params.FiatCurrency,
			FiatValue:     params.FiatValue,
			DonorID:       intent.DonorID,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.PaymentIntent{}).
			Where("id = ?", intent.ID).
			Updates(map[string]interface{}{
				"status":        models.IntentStatusConfirmed,
				"tx_hash":       record.TxHash,
				"confirmations": record.Confirmations,
				"donation_id":   donationID,
			}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Campaign{}).
			Where("id = ?", intent.CampaignID).
			Updates(map[string]interface{}{
				"total_raised":   gorm.Expr("total_raised + ?", params.FiatValue),
				"donation_count": gorm.Expr("donation_count + 1"),
			}).Error; err != nil {
			return err
		}

		result.DonationID = donationID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *gormReconciliationRepository) RecordObservation(ctx context.Context, record *models.ChainTransactionRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "network_id"}, {Name: "tx_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"block_height":  gorm.Expr("excluded.block_height"),
			"confirmations": gorm.Expr("GREATEST(chain_transaction_records.confirmations, excluded.confirmations)"),
			"status": gorm.Expr("CASE WHEN chain_transaction_records.status = ? THEN chain_transaction_records.status ELSE excluded.status END",
				models.TxRecordStatusConfirmed),
		}),
	}).Create(record).Error
}

func (r *gormReconciliationRepository) FindTxRecord(ctx context.Context, networkID, txHash string) (*models.ChainTransactionRecord, error) {
	var record models.ChainTransactionRecord
	err := r.db.WithContext(ctx).Where("network_id = ? AND tx_hash = ?", networkID, txHash).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormReconciliationRepository) FindLedgerByTx(ctx context.Context, networkID, txHash string) (*models.DonationLedgerEntry, error) {
	var entry models.DonationLedgerEntry
	err := r.db.WithContext(ctx).Where("network_id = ? AND tx_hash = ?", networkID, txHash).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormReconciliationRepository) GetLedgerEntry(ctx context.Context, donationID string) (*models.DonationLedgerEntry, error) {
	var entry models.DonationLedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", donationID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormReconciliationRepository) ListLedgerByCampaign(ctx context.Context, campaignID string, limit int) ([]models.DonationLedgerEntry, error) {
	var entries []models.DonationLedgerEntry
	q := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}
