package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"donation-backend/internal/chain"
	"donation-backend/internal/models"
)

// MemoryStore in-memory implementation of the repository interfaces, mostly
// for testing. One mutex guards everything so the commit path keeps the same
// atomicity the database transaction gives the gorm implementation.
type MemoryStore struct {
	mu         sync.Mutex
	intents    map[string]*models.PaymentIntent
	records    map[string]*models.ChainTransactionRecord // network|hash
	ledger     map[string]*models.DonationLedgerEntry
	ledgerByTx map[string]string // network|hash -> donation id
	campaigns  map[string]*models.Campaign
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:    make(map[string]*models.PaymentIntent),
		records:    make(map[string]*models.ChainTransactionRecord),
		ledger:     make(map[string]*models.DonationLedgerEntry),
		ledgerByTx: make(map[string]string),
		campaigns:  make(map[string]*models.Campaign),
	}
}

func txKey(networkID, txHash string) string {
	return networkID + "|" + txHash
}

func (s *MemoryStore) Create(ctx context.Context, intent *models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *intent
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.intents[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *intent
	return &cp, nil
}

func (s *MemoryStore) FindOpenByDeposit(ctx context.Context, networkID, depositAddress string) ([]models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentIntent
	for _, intent := range s.intents {
		if intent.NetworkID == networkID && intent.DepositAddress == depositAddress && !intent.Status.IsTerminal() {
			out = append(out, *intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status models.IntentStatus, limit int) ([]models.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentIntent
	for _, intent := range s.intents {
		if intent.Status == status {
			out = append(out, *intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if intent.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	intent.Status = to
	applyIntentUpdates(intent, updates)
	intent.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired int64
	for _, intent := range s.intents {
		if limit > 0 && expired >= int64(limit) {
			break
		}
		if (intent.Status == models.IntentStatusCreated || intent.Status == models.IntentStatusDetecting) &&
			!intent.ExpiresAt.After(now) {
			intent.Status = models.IntentStatusExpired
			intent.RejectReason = "expired before a matching transaction was confirmed"
			intent.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func applyIntentUpdates(intent *models.PaymentIntent, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "tx_hash":
			switch val := v.(type) {
			case string:
				intent.TxHash = &val
			case *string:
				intent.TxHash = val
			}
		case "confirmations":
			if val, ok := v.(uint64); ok {
				intent.Confirmations = val
			}
		case "last_scanned":
			if val, ok := v.(uint64); ok {
				intent.LastScanned = val
			}
		case "reject_reason":
			if val, ok := v.(string); ok {
				intent.RejectReason = val
			}
		case "donation_id":
			switch val := v.(type) {
			case string:
				intent.DonationID = &val
			case *string:
				intent.DonationID = val
			}
		}
	}
}

func (s *MemoryStore) CommitConfirmed(ctx context.Context, params *CommitParams) (*CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[params.Intent.ID]
	if !ok {
		return nil, ErrNotFound
	}
	record := *params.Record
	record.IntentID = &intent.ID
	record.Status = models.TxRecordStatusConfirmed
	key := txKey(record.NetworkID, record.TxHash)

	if existing, ok := s.records[key]; ok {
		if existing.IntentID == nil || *existing.IntentID != intent.ID {
			result := &CommitResult{AlreadyRecorded: true}
			if donationID, ok := s.ledgerByTx[key]; ok {
				result.DonationID = donationID
			}
			return result, nil
		}
		// our own claim from an earlier observation or attempt: finalize it
		existing.Status = models.TxRecordStatusConfirmed
		existing.Confirmations = record.Confirmations
		existing.UpdatedAt = time.Now()
	} else {
		s.records[key] = &record
	}

	switch intent.Status {
	case models.IntentStatusConfirmed:
		result := &CommitResult{AlreadyRecorded: true}
		if intent.DonationID != nil {
			result.DonationID = *intent.DonationID
		}
		return result, nil
	case models.IntentStatusFailed, models.IntentStatusMismatch:
		return nil, fmt.Errorf("%w: intent %s is %s", chain.ErrAlreadyTerminal, intent.ID, intent.Status)
	}

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
		CreatedAt:     time.Now(),
	}
	s.ledger[donationID] = entry
	s.ledgerByTx[key] = donationID

	intent.Status = models.IntentStatusConfirmed
	intent.TxHash = &record.TxHash
	intent.Confirmations = record.Confirmations
	intent.DonationID = &donationID
	intent.UpdatedAt = time.Now()

	if campaign, ok := s.campaigns[intent.CampaignID]; ok {
		campaign.TotalRaised = campaign.TotalRaised.Add(params.FiatValue)
		campaign.DonationCount++
		campaign.UpdatedAt = time.Now()
	}

	return &CommitResult{DonationID: donationID}, nil
}

func (s *MemoryStore) RecordObservation(ctx context.Context, record *models.ChainTransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txKey(record.NetworkID, record.TxHash)
	existing, ok := s.records[key]
	if !ok {
		cp := *record
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		s.records[key] = &cp
		return nil
	}
	existing.BlockHeight = record.BlockHeight
	if record.Confirmations > existing.Confirmations {
		existing.Confirmations = record.Confirmations
	}
	if existing.Status != models.TxRecordStatusConfirmed {
		existing.Status = record.Status
	}
	if existing.IntentID == nil {
		existing.IntentID = record.IntentID
	}
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) FindTxRecord(ctx context.Context, networkID, txHash string) (*models.ChainTransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[txKey(networkID, txHash)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *MemoryStore) FindLedgerByTx(ctx context.Context, networkID, txHash string) (*models.DonationLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	donationID, ok := s.ledgerByTx[txKey(networkID, txHash)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.ledger[donationID]
	return &cp, nil
}

func (s *MemoryStore) GetLedgerEntry(ctx context.Context, donationID string) (*models.DonationLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.ledger[donationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) ListLedgerByCampaign(ctx context.Context, campaignID string, limit int) ([]models.DonationLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DonationLedgerEntry
	for _, entry := range s.ledger {
		if entry.CampaignID == campaignID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateCampaign(ctx context.Context, campaign *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *campaign
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.campaigns[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *campaign
	return &cp, nil
}

// memoryCampaignRepository adapts MemoryStore to CampaignRepository
type memoryCampaignRepository struct {
	store *MemoryStore
}

// NewMemoryCampaignRepository wraps a MemoryStore as a CampaignRepository
func NewMemoryCampaignRepository(store *MemoryStore) CampaignRepository {
	return &memoryCampaignRepository{store: store}
}

func (r *memoryCampaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	return r.store.CreateCampaign(ctx, campaign)
}

func (r *memoryCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	return r.store.GetCampaign(ctx, id)
}

func (r *memoryCampaignRepository) List(ctx context.Context, activeOnly bool) ([]models.Campaign, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []models.Campaign
	for _, campaign := range r.store.campaigns {
		if activeOnly && !campaign.IsActive {
			continue
		}
		out = append(out, *campaign)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryCampaignRepository) SetActive(ctx context.Context, id string, active bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	campaign, ok := r.store.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	campaign.IsActive = active
	campaign.UpdatedAt = time.Now()
	return nil
}

var _ IntentRepository = (*MemoryStore)(nil)
var _ ReconciliationRepository = (*MemoryStore)(nil)
