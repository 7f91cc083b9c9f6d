package services

import (
	"context"
	"log"
	"time"

	"donation-backend/internal/config"
	"donation-backend/internal/metrics"
	"donation-backend/internal/repository"
)

// SweeperService background loop expiring overdue intents. Only created and
// detecting intents expire; confirming intents have a matched transaction and
// are left for the verifier to finish.
type SweeperService struct {
	intents  repository.IntentRepository
	interval time.Duration
	batch    int
	stopChan chan struct{}
	running  bool
}

// NewSweeperService creates a new expiry sweeper
func NewSweeperService(intents repository.IntentRepository) *SweeperService {
	cfg := config.AppConfig.Sweeper
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.BatchLimit
	if batch <= 0 {
		batch = 500
	}
	return &SweeperService{
		intents:  intents,
		interval: interval,
		batch:    batch,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop
func (s *SweeperService) Start() {
	if s.running {
		return
	}
	s.running = true

	go func() {
		log.Printf("🚀 Expiry sweeper started (every %v, batch %d)", s.interval, s.batch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.SweepOnce(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Stop halts the sweep loop
func (s *SweeperService) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	log.Println("🛑 Expiry sweeper stopped")
}

// SweepOnce expires one batch of overdue intents
func (s *SweeperService) SweepOnce(ctx context.Context) {
	expired, err := s.intents.ExpireDue(ctx, time.Now(), s.batch)
	if err != nil {
		log.Printf("⚠️ Expiry sweep failed: %v", err)
		return
	}
	if expired > 0 {
		metrics.IntentsExpiredTotal.Add(float64(expired))
		log.Printf("🧹 Expired %d overdue intents", expired)
	}
}
