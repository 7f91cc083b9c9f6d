package services

import (
	"context"
	"log"
	"time"

	"donation-backend/internal/chain"
	"donation-backend/internal/clients"
	"donation-backend/internal/config"
	"donation-backend/internal/models"
	"donation-backend/internal/repository"
)

// WatcherService consumes passive watcher observations from the NATS feed
// and drives them through the same verifier the manual path uses. An
// observation is only a hint that an address was touched; the verifier still
// fetches chain truth before anything changes state.
type WatcherService struct {
	nats     *clients.NATSClient
	intents  repository.IntentRepository
	verifier *VerifyService
	backoff  chain.BackoffPolicy
}

// NewWatcherService creates a new watcher service. A nil NATS client leaves
// the service inert; manual verification still works.
func NewWatcherService(natsClient *clients.NATSClient, intents repository.IntentRepository, verifier *VerifyService) *WatcherService {
	return &WatcherService{
		nats:     natsClient,
		intents:  intents,
		verifier: verifier,
		backoff:  chain.DefaultBackoff,
	}
}

// Start subscribes to the observation subject of every enabled network
func (s *WatcherService) Start() error {
	if s.nats == nil {
		return nil
	}
	for networkID, netCfg := range config.AppConfig.Networks {
		if !netCfg.Enabled {
			continue
		}
		if err := s.nats.SubscribeObservations(networkID, s.handleObservation); err != nil {
			return err
		}
	}
	return nil
}

// handleObservation matches the observed address to open intents and
// verifies the sighted transaction against each of them. An observation that
// pays one intent rejects cleanly against the rest, so every candidate gets
// a look.
func (s *WatcherService) handleObservation(obs *clients.TxObservation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		intents, err := s.intents.FindOpenByDeposit(ctx, obs.NetworkID, obs.Address)
		if err != nil {
			log.Printf("⚠️ Watcher lookup failed for %s on %s: %v", obs.Address, obs.NetworkID, err)
			return
		}
		if len(intents) == 0 {
			return
		}

		for _, intent := range intents {
			s.verifyWithRetry(ctx, intent, obs)
		}
	}()
}

func (s *WatcherService) verifyWithRetry(ctx context.Context, intent models.PaymentIntent, obs *clients.TxObservation) {
	for attempt := 0; ; attempt++ {
		result, err := s.verifier.Verify(ctx, intent.ID, obs.TxHash)
		if err != nil {
			log.Printf("⚠️ Watcher verification failed for intent %s, tx %s: %v", intent.ID, obs.TxHash, err)
			return
		}

		if obs.BlockHeight > intent.LastScanned {
			_, _ = s.intents.TransitionStatus(ctx, intent.ID,
				[]models.IntentStatus{intent.Status},
				intent.Status,
				map[string]interface{}{"last_scanned": obs.BlockHeight})
		}

		if result.State != VerifyStatePending {
			return
		}
		if s.backoff.Exhausted(attempt) {
			log.Printf("ℹ️ Watcher gave up on tx %s for intent %s after %d attempts", obs.TxHash, intent.ID, attempt+1)
			return
		}

		select {
		case <-time.After(s.backoff.Delay(attempt)):
		case <-ctx.Done():
			return
		}
	}
}
