package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"donation-backend/internal/config"
	"donation-backend/internal/metrics"
	"donation-backend/internal/models"
)

// ErrNoQuote returned when no fiat quote is available for an asset
var ErrNoQuote = errors.New("no fiat quote available")

// PriceService keeps fiat quotes for supported assets. The in-memory cache is
// seeded from the configured static quotes and refreshed in the background
// from the quote endpoint; the committer reads whatever is cached at commit
// time and never revalues afterwards.
type PriceService struct {
	db         *gorm.DB // nil in tests; snapshots are then skipped
	httpClient *http.Client

	mu     sync.RWMutex
	quotes map[string]decimal.Decimal

	fiatCurrency string
	quoteURL     string
	interval     time.Duration

	stopChan chan struct{}
	running  bool
}

// NewPriceService creates a price service seeded from configuration
func NewPriceService(db *gorm.DB) *PriceService {
	cfg := config.AppConfig.Pricing
	currency := cfg.FiatCurrency
	if currency == "" {
		currency = "USD"
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s := &PriceService{
		db:           db,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		quotes:       make(map[string]decimal.Decimal),
		fiatCurrency: currency,
		quoteURL:     cfg.QuoteURL,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}

	for assetID, priceStr := range cfg.StaticQuotes {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			log.Printf("⚠️ Ignoring malformed static quote for %s: %q", assetID, priceStr)
			continue
		}
		s.quotes[assetID] = price
	}

	return s
}

// FiatCurrency returns the currency quotes are denominated in
func (s *PriceService) FiatCurrency() string {
	return s.fiatCurrency
}

// Quote returns the cached fiat price for one unit of the asset
func (s *PriceService) Quote(assetID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.quotes[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", ErrNoQuote, assetID, s.fiatCurrency)
	}
	return price, nil
}

// SetQuote overrides the cached price for an asset
func (s *PriceService) SetQuote(assetID string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[assetID] = price
}

// Start launches the background refresh loop. No-op when no quote endpoint
// is configured; the static quotes then serve for the process lifetime.
func (s *PriceService) Start() {
	if s.running || s.quoteURL == "" {
		return
	}
	s.running = true

	go func() {
		log.Printf("🚀 Price refresh started (every %v from %s)", s.interval, s.quoteURL)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.refreshOnce()
		for {
			select {
			case <-ticker.C:
				s.refreshOnce()
			case <-s.stopChan:
				return
			}
		}
	}()
}

func (s *PriceService) refreshOnce() {
	if _, err := s.Refresh(); err != nil {
		metrics.PriceUpdateErrors.Inc()
		log.Printf("⚠️ Price refresh failed: %v", err)
	}
}

// Stop halts the refresh loop
func (s *PriceService) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	log.Println("🛑 Price refresh stopped")
}

// Refresh fetches quotes from the configured endpoint once and returns how
// many were updated. The endpoint returns {"assetId": "price", ...} in the
// configured currency.
func (s *PriceService) Refresh() (int, error) {
	if s.quoteURL == "" {
		return 0, errors.New("no quote endpoint configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", s.quoteURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote endpoint returned HTTP %d", resp.StatusCode)
	}

	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}

	updated := 0
	for assetID, priceStr := range payload {
		price, err := decimal.NewFromString(priceStr)
		if err != nil || price.Sign() <= 0 {
			continue
		}
		s.SetQuote(assetID, price)
		s.persistSnapshot(ctx, assetID, price)
		updated++
	}
	log.Printf("💱 Price refresh: %d quotes updated", updated)
	return updated, nil
}

func (s *PriceService) persistSnapshot(ctx context.Context, assetID string, price decimal.Decimal) {
	if s.db == nil {
		return
	}
	snapshot := &models.AssetPriceSnapshot{
		AssetID:      assetID,
		FiatCurrency: s.fiatCurrency,
		Price:        price,
		UpdatedAt:    time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset_id"}, {Name: "fiat_currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "updated_at"}),
	}).Create(snapshot).Error
	if err != nil {
		log.Printf("⚠️ Failed to persist price snapshot for %s: %v", assetID, err)
	}
}
