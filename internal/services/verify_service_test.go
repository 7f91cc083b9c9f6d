package services_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"donation-backend/internal/amount"
	"donation-backend/internal/chain"
	"donation-backend/internal/config"
	"donation-backend/internal/models"
	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
	"donation-backend/internal/services"
)

const testDeposit = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

type fakeChainClient struct {
	mu    sync.Mutex
	head  uint64
	facts map[string]*chain.TxFacts
}

func (f *fakeChainClient) TransactionFacts(ctx context.Context, network *registry.NetworkInfo, txHash string) (*chain.TxFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	facts, ok := f.facts[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrTransactionNotFound, txHash)
	}
	return facts, nil
}

func (f *fakeChainClient) ChainHead(ctx context.Context, network *registry.NetworkInfo) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChainClient) setHead(h uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = h
}

func (f *fakeChainClient) setFacts(txHash string, facts *chain.TxFacts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facts[txHash] = facts
}

type staticAddressProvider string

func (p staticAddressProvider) DepositAddress(networkID string) (string, error) {
	return string(p), nil
}

type testEnv struct {
	store     *repository.MemoryStore
	campaigns repository.CampaignRepository
	client    *fakeChainClient
	intents   *services.IntentService
	verifier  *services.VerifyService
	committer *services.CommitService
	sweeper   *services.SweeperService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	config.AppConfig = &config.Config{
		Intent: config.IntentConfig{TTLMinutes: 30, NonceWidth: 4},
		Pricing: config.PricingConfig{
			FiatCurrency: "USD",
			StaticQuotes: map[string]string{"eth": "2000"},
		},
		Sweeper: config.SweeperConfig{IntervalSeconds: 60, BatchLimit: 100},
	}

	store := repository.NewMemoryStore()
	campaigns := repository.NewMemoryCampaignRepository(store)
	client := &fakeChainClient{head: 100, facts: make(map[string]*chain.TxFacts)}
	clientSet := chain.ClientSet{registry.FamilyEVM: client}

	push := services.NewPushService()
	prices := services.NewPriceService(nil)
	committer := services.NewCommitService(store, prices, push)
	verifier := services.NewVerifyService(store, clientSet, registry.Default, committer, push)
	intents := services.NewIntentService(store, campaigns, staticAddressProvider(testDeposit), clientSet, registry.Default)
	sweeper := services.NewSweeperService(store)

	if err := campaigns.Create(context.Background(), &models.Campaign{
		ID:           "camp-1",
		Title:        "Test Campaign",
		FiatCurrency: "USD",
		IsActive:     true,
	}); err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	return &testEnv{
		store:     store,
		campaigns: campaigns,
		client:    client,
		intents:   intents,
		verifier:  verifier,
		committer: committer,
		sweeper:   sweeper,
	}
}

func (e *testEnv) createIntent(t *testing.T) *models.PaymentIntent {
	t.Helper()
	view, err := e.intents.Create(context.Background(), &services.CreateIntentRequest{
		CampaignID: "camp-1",
		NetworkID:  "ethereum",
		AssetID:    "eth",
		Amount:     "1.5",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return view.Intent
}

func matchingFacts(t *testing.T, intent *models.PaymentIntent, txHash string, height uint64) *chain.TxFacts {
	t.Helper()
	raw, err := amount.ParseRaw(intent.AmountRaw)
	if err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	return &chain.TxFacts{
		NetworkID:   intent.NetworkID,
		TxHash:      txHash,
		Sender:      "0x0000000000000000000000000000000000000009",
		BlockHeight: height,
		Outputs: []chain.TxOutput{
			{Recipient: testDeposit, AmountRaw: raw},
		},
	}
}

const txA = "0xabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcdabcd"

func TestVerifyConfirmsAndCommits(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	env.client.setFacts(txA, matchingFacts(t, intent, txA, 101))
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateConfirmed {
		t.Fatalf("state = %s, want confirmed (%s)", result.State, result.Reason)
	}
	if result.DonationID == "" {
		t.Fatal("confirmed result missing donation id")
	}

	entry, err := env.store.FindLedgerByTx(context.Background(), "ethereum", txA)
	if err != nil {
		t.Fatalf("ledger entry missing: %v", err)
	}
	if entry.IntentID != intent.ID {
		t.Errorf("ledger intent = %s, want %s", entry.IntentID, intent.ID)
	}
	if entry.FiatCurrency != "USD" || !entry.FiatValue.IsPositive() {
		t.Errorf("fiat snapshot not recorded: %s %s", entry.FiatValue, entry.FiatCurrency)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusConfirmed {
		t.Errorf("intent status = %s, want confirmed", stored.Status)
	}

	campaign, _ := env.campaigns.GetByID(context.Background(), "camp-1")
	if campaign.DonationCount != 1 {
		t.Errorf("donation count = %d, want 1", campaign.DonationCount)
	}
	if !campaign.TotalRaised.IsPositive() {
		t.Errorf("total raised = %s, want positive", campaign.TotalRaised)
	}
}

func TestVerifySameTxTwiceWritesOneEntry(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)
	env.client.setFacts(txA, matchingFacts(t, intent, txA, 101))
	env.client.setHead(120)

	first, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	second, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if second.State != services.VerifyStateAlreadyRecorded {
		t.Errorf("second state = %s, want already_recorded", second.State)
	}
	if second.DonationID != first.DonationID {
		t.Errorf("donation ids differ: %s vs %s", second.DonationID, first.DonationID)
	}

	campaign, _ := env.campaigns.GetByID(context.Background(), "camp-1")
	if campaign.DonationCount != 1 {
		t.Errorf("donation count = %d, want exactly 1", campaign.DonationCount)
	}
}

func TestConcurrentVerifyCommitsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)
	env.client.setFacts(txA, matchingFacts(t, intent, txA, 101))
	env.client.setHead(120)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.verifier.Verify(context.Background(), intent.ID, txA)
		}()
	}
	wg.Wait()

	campaign, _ := env.campaigns.GetByID(context.Background(), "camp-1")
	if campaign.DonationCount != 1 {
		t.Errorf("donation count = %d after concurrent verifies, want 1", campaign.DonationCount)
	}
}

func TestVerifyWrongRecipientLeavesIntentOpen(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	facts := matchingFacts(t, intent, txA, 101)
	facts.Outputs[0].Recipient = "0x0000000000000000000000000000000000000002"
	env.client.setFacts(txA, facts)
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateRejected || result.Reason != "wrong_recipient" {
		t.Errorf("got %s/%s, want rejected/wrong_recipient", result.State, result.Reason)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusDetecting {
		t.Errorf("intent status = %s, want detecting (still open for a corrected hash)", stored.Status)
	}
}

func TestVerifyReplayRejected(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	// mined before the intent's start block
	env.client.setFacts(txA, matchingFacts(t, intent, txA, intent.StartBlock-1))
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateRejected || result.Reason != "replay_rejected" {
		t.Errorf("got %s/%s, want rejected/replay_rejected", result.State, result.Reason)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status.IsTerminal() {
		t.Errorf("replay rejection must not terminate the intent, got %s", stored.Status)
	}
}

func TestVerifyAmountMismatchIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	facts := matchingFacts(t, intent, txA, 101)
	facts.Outputs[0].AmountRaw = new(big.Int).Add(facts.Outputs[0].AmountRaw, big.NewInt(1))
	env.client.setFacts(txA, facts)
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateRejected || result.Reason != "amount_mismatch" {
		t.Errorf("got %s/%s, want rejected/amount_mismatch", result.State, result.Reason)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusMismatch {
		t.Fatalf("intent status = %s, want mismatch", stored.Status)
	}

	// terminal flagged states refuse further verification
	if _, err := env.verifier.Verify(context.Background(), intent.ID, txA); !errors.Is(err, chain.ErrAlreadyTerminal) {
		t.Errorf("expected ErrAlreadyTerminal after mismatch, got %v", err)
	}
}

func TestVerifyRevertedTxFailsIntent(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	facts := matchingFacts(t, intent, txA, 101)
	facts.Reverted = true
	env.client.setFacts(txA, facts)
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Reason != "onchain_failure" {
		t.Errorf("reason = %s, want onchain_failure", result.Reason)
	}
	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusFailed {
		t.Errorf("intent status = %s, want failed", stored.Status)
	}
}

func TestVerifyUnknownTxIsPending(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)
	env.client.setHead(120)

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStatePending {
		t.Errorf("state = %s, want pending for an unseen tx", result.State)
	}
	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusDetecting {
		t.Errorf("intent status = %s, want detecting while pending", stored.Status)
	}
}

func TestVerifyConfirmingThenConfirmed(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)
	env.client.setFacts(txA, matchingFacts(t, intent, txA, 101))
	env.client.setHead(105) // 4 confirmations, threshold is 12

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateConfirming {
		t.Fatalf("state = %s, want confirming", result.State)
	}
	if result.Confirmations != 4 {
		t.Errorf("confirmations = %d, want 4", result.Confirmations)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusConfirming {
		t.Errorf("intent status = %s, want confirming", stored.Status)
	}

	// the sighting is already on record while still below the threshold
	record, err := env.store.FindTxRecord(context.Background(), "ethereum", txA)
	if err != nil {
		t.Fatalf("observation record missing: %v", err)
	}
	if record.Status != models.TxRecordStatusConfirming {
		t.Errorf("record status = %s, want confirming", record.Status)
	}
	if record.Confirmations != 4 {
		t.Errorf("record confirmations = %d, want 4", record.Confirmations)
	}

	env.client.setHead(120)
	result, err = env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if result.State != services.VerifyStateConfirmed {
		t.Errorf("state = %s, want confirmed once the threshold is met", result.State)
	}

	record, err = env.store.FindTxRecord(context.Background(), "ethereum", txA)
	if err != nil {
		t.Fatalf("record missing after commit: %v", err)
	}
	if record.Status != models.TxRecordStatusConfirmed {
		t.Errorf("record status = %s, want confirmed", record.Status)
	}
	if record.Confirmations != 19 {
		t.Errorf("record confirmations = %d, want 19", record.Confirmations)
	}
}

func TestVerifySameBlockSightingIsSeen(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)
	env.client.setFacts(txA, matchingFacts(t, intent, txA, 105))
	env.client.setHead(105) // tx sits in the head block

	result, err := env.verifier.Verify(context.Background(), intent.ID, txA)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.State != services.VerifyStateConfirming {
		t.Fatalf("state = %s, want confirming", result.State)
	}
	if result.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0 in the head block", result.Confirmations)
	}

	record, err := env.store.FindTxRecord(context.Background(), "ethereum", txA)
	if err != nil {
		t.Fatalf("observation record missing: %v", err)
	}
	if record.Status != models.TxRecordStatusSeen {
		t.Errorf("record status = %s, want seen at zero confirmations", record.Status)
	}
}

func TestVerifyInvalidHash(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	if _, err := env.verifier.Verify(context.Background(), intent.ID, "not-a-hash"); !errors.Is(err, chain.ErrInvalidHashFormat) {
		t.Errorf("expected ErrInvalidHashFormat, got %v", err)
	}
	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusCreated {
		t.Errorf("malformed input must not change state, got %s", stored.Status)
	}
}

func TestSweeperExpiresOnlyUnmatchedIntents(t *testing.T) {
	env := newTestEnv(t)

	overdue := &models.PaymentIntent{
		ID:             "overdue-1",
		CampaignID:     "camp-1",
		NetworkID:      "ethereum",
		AssetID:        "eth",
		AmountRaw:      "1500000000000000000",
		AmountDecimal:  "1.5",
		DepositAddress: testDeposit,
		Status:         models.IntentStatusCreated,
		ExpiresAt:      time.Now().Add(-time.Minute),
	}
	confirming := &models.PaymentIntent{
		ID:             "confirming-1",
		CampaignID:     "camp-1",
		NetworkID:      "ethereum",
		AssetID:        "eth",
		AmountRaw:      "1500000000000000000",
		AmountDecimal:  "1.5",
		DepositAddress: testDeposit,
		Status:         models.IntentStatusConfirming,
		ExpiresAt:      time.Now().Add(-time.Minute),
	}
	for _, intent := range []*models.PaymentIntent{overdue, confirming} {
		if err := env.store.Create(context.Background(), intent); err != nil {
			t.Fatalf("seed intent: %v", err)
		}
	}

	env.sweeper.SweepOnce(context.Background())

	got, _ := env.store.GetByID(context.Background(), "overdue-1")
	if got.Status != models.IntentStatusExpired {
		t.Errorf("overdue created intent = %s, want expired", got.Status)
	}
	got, _ = env.store.GetByID(context.Background(), "confirming-1")
	if got.Status != models.IntentStatusConfirming {
		t.Errorf("confirming intent = %s, must never expire", got.Status)
	}
}

func TestVerifyRefusesExpiredIntent(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	ok, err := env.store.TransitionStatus(context.Background(), intent.ID,
		[]models.IntentStatus{models.IntentStatusCreated}, models.IntentStatusExpired, nil)
	if err != nil || !ok {
		t.Fatalf("force expire: %v %v", ok, err)
	}

	// a wrong-amount tx against a dead intent must not resurrect it as mismatch
	facts := matchingFacts(t, intent, txA, 101)
	facts.Outputs[0].AmountRaw = new(big.Int).Add(facts.Outputs[0].AmountRaw, big.NewInt(1))
	env.client.setFacts(txA, facts)
	env.client.setHead(120)

	if _, err := env.verifier.Verify(context.Background(), intent.ID, txA); !errors.Is(err, chain.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal for an expired intent, got %v", err)
	}

	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusExpired {
		t.Errorf("intent status = %s, expired is final", stored.Status)
	}
}

func TestSweeperRaceStillCommitsInFlightPayment(t *testing.T) {
	env := newTestEnv(t)
	intent := env.createIntent(t)

	// the sweeper expired the intent after verification had already matched
	// the tx; the commit itself must still land
	ok, err := env.store.TransitionStatus(context.Background(), intent.ID,
		[]models.IntentStatus{models.IntentStatusCreated}, models.IntentStatusExpired, nil)
	if err != nil || !ok {
		t.Fatalf("force expire: %v %v", ok, err)
	}

	record := &models.ChainTransactionRecord{
		NetworkID:     "ethereum",
		TxHash:        txA,
		Recipient:     testDeposit,
		AssetID:       "eth",
		AmountRaw:     intent.AmountRaw,
		Decimals:      18,
		BlockHeight:   101,
		Confirmations: 19,
	}
	stored, _ := env.store.GetByID(context.Background(), intent.ID)
	result, err := env.committer.Commit(context.Background(), stored, record, 18)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.AlreadyRecorded || result.DonationID == "" {
		t.Fatalf("commit did not produce a fresh donation: %+v", result)
	}

	if _, err := env.store.FindLedgerByTx(context.Background(), "ethereum", txA); err != nil {
		t.Errorf("ledger entry missing for in-flight payment: %v", err)
	}
	stored, _ = env.store.GetByID(context.Background(), intent.ID)
	if stored.Status != models.IntentStatusConfirmed {
		t.Errorf("intent status = %s, want confirmed", stored.Status)
	}
}

func TestCreateIntentNoncesAmount(t *testing.T) {
	env := newTestEnv(t)
	a := env.createIntent(t)
	b := env.createIntent(t)

	if a.AmountRaw == "" || a.AmountRaw == b.AmountRaw {
		t.Errorf("two intents for the same amount should expect distinct raw amounts: %s vs %s", a.AmountRaw, b.AmountRaw)
	}
	if a.StartBlock != 100 {
		t.Errorf("start block = %d, want chain head at creation", a.StartBlock)
	}
	if !strings.HasPrefix(a.AmountDecimal, "1.5") {
		t.Errorf("nonce must only touch the low digits: %s", a.AmountDecimal)
	}
}
