package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"donation-backend/internal/amount"
	"donation-backend/internal/chain"
	"donation-backend/internal/metrics"
	"donation-backend/internal/models"
	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
)

// VerifyState outcome class of one verification attempt
type VerifyState string

const (
	VerifyStatePending         VerifyState = "pending"          // chain facts not available yet, retry later
	VerifyStateConfirming      VerifyState = "confirming"       // matched, below the confirmation threshold
	VerifyStateConfirmed       VerifyState = "confirmed"        // matched and committed to the ledger
	VerifyStateAlreadyRecorded VerifyState = "already_recorded" // this tx already produced a ledger entry
	VerifyStateRejected        VerifyState = "rejected"         // failed a business-rule check
)

// VerifyResult what a verification attempt reports back to the caller
type VerifyResult struct {
	State         VerifyState `json:"state"`
	Reason        string      `json:"reason,omitempty"`
	TxHash        string      `json:"tx_hash"`
	Confirmations uint64      `json:"confirmations"`
	Required      uint64      `json:"confirmations_required"`
	DonationID    string      `json:"donation_id,omitempty"`
}

// VerifyService checks a candidate transaction against an intent's
// expectation using chain truth. One entry point serves both the donor's
// manual hash submission and the passive watcher feed.
type VerifyService struct {
	intents   repository.IntentRepository
	clients   chain.ClientSet
	registry  *registry.Registry
	committer *CommitService
	push      *PushService
}

// NewVerifyService creates a new verify service
func NewVerifyService(
	intents repository.IntentRepository,
	clients chain.ClientSet,
	reg *registry.Registry,
	committer *CommitService,
	push *PushService,
) *VerifyService {
	return &VerifyService{
		intents:   intents,
		clients:   clients,
		registry:  reg,
		committer: committer,
		push:      push,
	}
}

// Verify runs the full check sequence for one (intent, tx hash) pair.
// Transient chain conditions come back as state pending without touching the
// intent; structural rejections leave the intent in detecting so the donor
// can submit a corrected hash.
func (s *VerifyService) Verify(ctx context.Context, intentID, rawHash string) (*VerifyResult, error) {
	started := time.Now()

	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	asset, network, err := s.registry.AssetOnNetwork(intent.AssetID, intent.NetworkID)
	if err != nil {
		return nil, err
	}

	defer func() {
		metrics.VerificationDuration.WithLabelValues(network.ID).Observe(time.Since(started).Seconds())
	}()

	txHash, err := chain.NormalizeTxHash(network.Family, rawHash)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(network.ID, "invalid_hash").Inc()
		return nil, err
	}

	switch intent.Status {
	case models.IntentStatusConfirmed:
		result := &VerifyResult{
			State:         VerifyStateAlreadyRecorded,
			TxHash:        txHash,
			Confirmations: intent.Confirmations,
			Required:      network.ConfirmationsRequired,
		}
		if intent.DonationID != nil {
			result.DonationID = *intent.DonationID
		}
		metrics.VerificationsTotal.WithLabelValues(network.ID, "already_recorded").Inc()
		return result, nil
	case models.IntentStatusExpired, models.IntentStatusFailed, models.IntentStatusMismatch:
		// a payment in flight when the sweeper ran is absorbed at commit time,
		// not by starting a fresh verification against a dead intent
		metrics.VerificationsTotal.WithLabelValues(network.ID, "terminal").Inc()
		return nil, fmt.Errorf("%w: intent %s is %s", chain.ErrAlreadyTerminal, intent.ID, intent.Status)
	}

	if intent.Status == models.IntentStatusCreated {
		if ok, err := s.intents.TransitionStatus(ctx, intent.ID,
			[]models.IntentStatus{models.IntentStatusCreated},
			models.IntentStatusDetecting,
			map[string]interface{}{"tx_hash": txHash}); err != nil {
			return nil, err
		} else if ok {
			s.push.Broadcast(&IntentStatusEvent{
				IntentID: intent.ID,
				Status:   string(models.IntentStatusDetecting),
				TxHash:   txHash,
			})
		}
	}

	client := s.clients.For(network.Family)
	if client == nil {
		return nil, fmt.Errorf("%w: no client for family %s", chain.ErrRPCUnavailable, network.Family)
	}

	facts, err := client.TransactionFacts(ctx, network, txHash)
	if err != nil {
		if chain.IsTransient(err) {
			metrics.VerificationsTotal.WithLabelValues(network.ID, "pending").Inc()
			return &VerifyResult{
				State:    VerifyStatePending,
				Reason:   err.Error(),
				TxHash:   txHash,
				Required: network.ConfirmationsRequired,
			}, nil
		}
		return nil, err
	}

	head, err := client.ChainHead(ctx, network)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(network.ID, "pending").Inc()
		return &VerifyResult{
			State:    VerifyStatePending,
			Reason:   err.Error(),
			TxHash:   txHash,
			Required: network.ConfirmationsRequired,
		}, nil
	}

	expected, err := amount.ParseRaw(intent.AmountRaw)
	if err != nil {
		return nil, fmt.Errorf("intent %s: %w", intent.ID, err)
	}

	eval, err := chain.Evaluate(network, chain.Expectation{
		DepositAddress: intent.DepositAddress,
		StartBlock:     intent.StartBlock,
		AssetRef:       asset.ContractRef,
		AmountRaw:      expected,
	}, facts, head)
	if err != nil {
		return s.handleRejection(ctx, intent, network, txHash, err)
	}

	record := &models.ChainTransactionRecord{
		NetworkID:     network.ID,
		TxHash:        txHash,
		Sender:        facts.Sender,
		Recipient:     eval.Output.Recipient,
		AssetID:       asset.ID,
		AmountRaw:     eval.Output.AmountRaw.String(),
		Decimals:      asset.Decimals,
		BlockHeight:   facts.BlockHeight,
		Confirmations: eval.Confirmations,
		Status:        models.TxRecordStatusConfirming,
	}

	if !eval.Ready {
		record.IntentID = &intent.ID
		if eval.Confirmations == 0 {
			record.Status = models.TxRecordStatusSeen
		}
		if err := s.committer.RecordObservation(ctx, record); err != nil {
			return nil, err
		}
		if _, err := s.intents.TransitionStatus(ctx, intent.ID,
			[]models.IntentStatus{models.IntentStatusCreated, models.IntentStatusDetecting, models.IntentStatusConfirming},
			models.IntentStatusConfirming,
			map[string]interface{}{
				"tx_hash":       txHash,
				"confirmations": eval.Confirmations,
			}); err != nil {
			return nil, err
		}
		s.push.Broadcast(&IntentStatusEvent{
			IntentID:      intent.ID,
			Status:        string(models.IntentStatusConfirming),
			TxHash:        txHash,
			Confirmations: eval.Confirmations,
			Required:      network.ConfirmationsRequired,
		})
		metrics.VerificationsTotal.WithLabelValues(network.ID, "confirming").Inc()
		return &VerifyResult{
			State:         VerifyStateConfirming,
			TxHash:        txHash,
			Confirmations: eval.Confirmations,
			Required:      network.ConfirmationsRequired,
		}, nil
	}

	commit, err := s.committer.Commit(ctx, intent, record, asset.Decimals)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		TxHash:        txHash,
		Confirmations: eval.Confirmations,
		Required:      network.ConfirmationsRequired,
		DonationID:    commit.DonationID,
	}
	if commit.AlreadyRecorded {
		result.State = VerifyStateAlreadyRecorded
		metrics.VerificationsTotal.WithLabelValues(network.ID, "already_recorded").Inc()
	} else {
		result.State = VerifyStateConfirmed
		metrics.VerificationsTotal.WithLabelValues(network.ID, "confirmed").Inc()
	}
	return result, nil
}

// handleRejection maps an evaluation error to the intent's fate. Structural
// rejections (wrong recipient, replay, wrong asset) leave the intent open;
// amount mismatch and on-chain failure are terminal.
func (s *VerifyService) handleRejection(ctx context.Context, intent *models.PaymentIntent, network *registry.NetworkInfo, txHash string, evalErr error) (*VerifyResult, error) {
	reason := rejectReason(evalErr)
	metrics.VerificationsTotal.WithLabelValues(network.ID, reason).Inc()

	switch {
	case chain.IsStructural(evalErr):
		// the named tx does not pay this intent; the intent itself stays open
		return &VerifyResult{
			State:    VerifyStateRejected,
			Reason:   reason,
			TxHash:   txHash,
			Required: network.ConfirmationsRequired,
		}, nil

	case errors.Is(evalErr, chain.ErrAmountMismatch):
		return s.terminate(ctx, intent, models.IntentStatusMismatch, txHash, reason, evalErr)

	case errors.Is(evalErr, chain.ErrOnChainFailure):
		return s.terminate(ctx, intent, models.IntentStatusFailed, txHash, reason, evalErr)
	}

	return nil, evalErr
}

func (s *VerifyService) terminate(ctx context.Context, intent *models.PaymentIntent, to models.IntentStatus, txHash, reason string, evalErr error) (*VerifyResult, error) {
	ok, err := s.intents.TransitionStatus(ctx, intent.ID,
		[]models.IntentStatus{models.IntentStatusCreated, models.IntentStatusDetecting, models.IntentStatusConfirming},
		to,
		map[string]interface{}{
			"tx_hash":       txHash,
			"reject_reason": evalErr.Error(),
		})
	if err != nil {
		return nil, err
	}
	if ok {
		log.Printf("⚠️ Intent %s -> %s: %v", intent.ID, to, evalErr)
		s.push.Broadcast(&IntentStatusEvent{
			IntentID: intent.ID,
			Status:   string(to),
			TxHash:   txHash,
			Reason:   reason,
		})
	}
	return &VerifyResult{
		State:  VerifyStateRejected,
		Reason: reason,
		TxHash: txHash,
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, chain.ErrWrongRecipient):
		return "wrong_recipient"
	case errors.Is(err, chain.ErrReplayRejected):
		return "replay_rejected"
	case errors.Is(err, chain.ErrAssetMismatch):
		return "asset_mismatch"
	case errors.Is(err, chain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, chain.ErrOnChainFailure):
		return "onchain_failure"
	}
	return "rejected"
}
