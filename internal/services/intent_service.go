package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"donation-backend/internal/amount"
	"donation-backend/internal/chain"
	"donation-backend/internal/config"
	"donation-backend/internal/models"
	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
)

// ErrCampaignInactive returned when creating an intent against a closed campaign
var ErrCampaignInactive = errors.New("campaign is not active")

// defaultNonceWidth decimal digits replaced when the config leaves it unset
const defaultNonceWidth = 4

// AddressProvider yields the deposit address donors pay into for a network.
// The config-backed implementation serves a static address per network; an
// HD-wallet derivation provider can slot in without touching the service.
type AddressProvider interface {
	DepositAddress(networkID string) (string, error)
}

// ConfigAddressProvider reads deposit addresses from the loaded configuration
type ConfigAddressProvider struct{}

func (ConfigAddressProvider) DepositAddress(networkID string) (string, error) {
	netCfg, err := config.GetNetworkConfig(networkID)
	if err != nil {
		return "", err
	}
	if netCfg.DepositAddress == "" {
		return "", fmt.Errorf("no deposit address configured for %s", networkID)
	}
	return netCfg.DepositAddress, nil
}

// CreateIntentRequest donor-facing intent creation input
type CreateIntentRequest struct {
	CampaignID string  `json:"campaign_id" binding:"required"`
	NetworkID  string  `json:"network_id" binding:"required"`
	AssetID    string  `json:"asset_id" binding:"required"`
	Amount     string  `json:"amount" binding:"required"` // decimal string in asset units
	DonorID    *string `json:"donor_id"`
}

// IntentView intent plus the derived payment artifacts
type IntentView struct {
	Intent      *models.PaymentIntent `json:"intent"`
	PaymentURI  string                `json:"payment_uri"`
	ExplorerURL string                `json:"explorer_url,omitempty"` // set once a tx is named
}

// IntentService creates and reads payment intents
type IntentService struct {
	intents   repository.IntentRepository
	campaigns repository.CampaignRepository
	addresses AddressProvider
	clients   chain.ClientSet
	registry  *registry.Registry
}

// NewIntentService creates a new intent service
func NewIntentService(
	intents repository.IntentRepository,
	campaigns repository.CampaignRepository,
	addresses AddressProvider,
	clients chain.ClientSet,
	reg *registry.Registry,
) *IntentService {
	return &IntentService{
		intents:   intents,
		campaigns: campaigns,
		addresses: addresses,
		clients:   clients,
		registry:  reg,
	}
}

// Create validates the pledge, derives the nonced expected amount, snapshots
// the chain head as the replay-guard start block and persists the intent in
// status created.
func (s *IntentService) Create(ctx context.Context, req *CreateIntentRequest) (*IntentView, error) {
	campaign, err := s.campaigns.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrCampaignInactive, campaign.ID)
	}

	asset, network, err := s.registry.AssetOnNetwork(req.AssetID, req.NetworkID)
	if err != nil {
		return nil, err
	}

	expected, err := amount.ToNative(req.Amount, asset.Decimals)
	if err != nil {
		return nil, err
	}
	if expected.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", amount.ErrMalformedAmount)
	}

	nonceWidth := config.AppConfig.Intent.NonceWidth
	if nonceWidth <= 0 {
		nonceWidth = defaultNonceWidth
	}
	nonced, nonce, err := amount.WithNonce(expected, nonceWidth)
	if err != nil {
		return nil, err
	}

	deposit, err := s.addresses.DepositAddress(network.ID)
	if err != nil {
		return nil, err
	}
	if err := s.registry.ValidateAddress(network.ID, deposit); err != nil {
		return nil, err
	}

	client := s.clients.For(network.Family)
	if client == nil {
		return nil, fmt.Errorf("%w: no client for family %s", chain.ErrRPCUnavailable, network.Family)
	}
	// the start block must be pinned before the donor can see the address;
	// without it the replay guard has no floor
	startBlock, err := client.ChainHead(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("pin start block: %w", err)
	}

	now := time.Now()
	amountDecimal := amount.FromNative(nonced, asset.Decimals)
	intent := &models.PaymentIntent{
		ID:             uuid.New().String(),
		CampaignID:     campaign.ID,
		NetworkID:      network.ID,
		AssetID:        asset.ID,
		AmountDecimal:  amountDecimal,
		AmountRaw:      nonced.String(),
		AmountNonce:    nonce,
		DepositAddress: deposit,
		StartBlock:     startBlock,
		Status:         models.IntentStatusCreated,
		DonorID:        req.DonorID,
		ExpiresAt:      now.Add(config.AppConfig.Intent.TTL()),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("persist intent: %w", err)
	}

	log.Printf("✅ Intent %s created: %s %s on %s, start block %d",
		intent.ID, amountDecimal, asset.Symbol, network.ID, startBlock)

	return s.view(intent, network, asset), nil
}

// Get returns an intent with its payment artifacts
func (s *IntentService) Get(ctx context.Context, id string) (*IntentView, error) {
	intent, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	asset, network, err := s.registry.AssetOnNetwork(intent.AssetID, intent.NetworkID)
	if err != nil {
		return nil, err
	}
	return s.view(intent, network, asset), nil
}

func (s *IntentService) view(intent *models.PaymentIntent, network *registry.NetworkInfo, asset *registry.AssetInfo) *IntentView {
	view := &IntentView{
		Intent:     intent,
		PaymentURI: s.registry.PaymentURI(network, asset, intent.DepositAddress, intent.AmountDecimal),
	}
	if intent.TxHash != nil {
		view.ExplorerURL = s.registry.ExplorerTxURL(network, *intent.TxHash)
	}
	return view
}
