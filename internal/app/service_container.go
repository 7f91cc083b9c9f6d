package app

import (
	"log"
	"sync"

	"donation-backend/internal/chain"
	"donation-backend/internal/clients"
	"donation-backend/internal/db"
	"donation-backend/internal/handlers"
	"donation-backend/internal/registry"
	"donation-backend/internal/repository"
	"donation-backend/internal/services"
)

// ServiceContainer wires repositories, clients and services together once
// and hands out the shared instances
type ServiceContainer struct {
	mu sync.Mutex

	intentRepo   repository.IntentRepository
	campaignRepo repository.CampaignRepository
	reconRepo    repository.ReconciliationRepository

	chainClients chain.ClientSet
	natsClient   *clients.NATSClient

	pushService    *services.PushService
	priceService   *services.PriceService
	intentService  *services.IntentService
	verifyService  *services.VerifyService
	commitService  *services.CommitService
	sweeperService *services.SweeperService
	watcherService *services.WatcherService

	intentHandler   *handlers.IntentHandler
	campaignHandler *handlers.CampaignHandler
	wsHandler       *handlers.WSHandler
	metaHandler     *handlers.MetaHandler
	adminHandler    *handlers.AdminHandler
}

var (
	container *ServiceContainer
	once      sync.Once
)

// GetContainer returns the process-wide service container
func GetContainer() *ServiceContainer {
	once.Do(func() {
		container = buildContainer()
	})
	return container
}

func buildContainer() *ServiceContainer {
	c := &ServiceContainer{}

	c.intentRepo = repository.NewIntentRepository(db.DB)
	c.campaignRepo = repository.NewCampaignRepository(db.DB)
	c.reconRepo = repository.NewReconciliationRepository(db.DB)

	c.chainClients = chain.ClientSet{
		registry.FamilyEVM:    clients.NewEVMClient(),
		registry.FamilyUTXO:   clients.NewUTXOClient(),
		registry.FamilySolana: clients.NewSolanaClient(),
	}

	natsClient, err := clients.NewNATSClient()
	if err != nil {
		log.Fatalf("NATS connection failed: %v", err)
	}
	c.natsClient = natsClient

	c.pushService = services.NewPushService()
	c.priceService = services.NewPriceService(db.DB)
	c.commitService = services.NewCommitService(c.reconRepo, c.priceService, c.pushService)
	c.verifyService = services.NewVerifyService(c.intentRepo, c.chainClients, registry.Default, c.commitService, c.pushService)
	c.intentService = services.NewIntentService(c.intentRepo, c.campaignRepo, services.ConfigAddressProvider{}, c.chainClients, registry.Default)
	c.sweeperService = services.NewSweeperService(c.intentRepo)
	c.watcherService = services.NewWatcherService(c.natsClient, c.intentRepo, c.verifyService)

	c.intentHandler = handlers.NewIntentHandler(c.intentService, c.verifyService)
	c.campaignHandler = handlers.NewCampaignHandler(c.campaignRepo, c.reconRepo)
	c.wsHandler = handlers.NewWSHandler(c.intentService, c.pushService)
	c.metaHandler = handlers.NewMetaHandler(registry.Default, c.reconRepo)
	c.adminHandler = handlers.NewAdminHandler(c.intentRepo, c.sweeperService, c.priceService)

	return c
}

// StartBackground launches the long-running services
func (c *ServiceContainer) StartBackground() {
	c.priceService.Start()
	c.sweeperService.Start()
	if err := c.watcherService.Start(); err != nil {
		log.Printf("⚠️ Watcher feed unavailable: %v", err)
	}
}

// Shutdown stops background services and closes external connections
func (c *ServiceContainer) Shutdown() {
	c.sweeperService.Stop()
	c.priceService.Stop()
	c.natsClient.Close()
}

func (c *ServiceContainer) IntentHandler() *handlers.IntentHandler     { return c.intentHandler }
func (c *ServiceContainer) CampaignHandler() *handlers.CampaignHandler { return c.campaignHandler }
func (c *ServiceContainer) WSHandler() *handlers.WSHandler             { return c.wsHandler }
func (c *ServiceContainer) MetaHandler() *handlers.MetaHandler         { return c.metaHandler }
func (c *ServiceContainer) AdminHandler() *handlers.AdminHandler       { return c.adminHandler }
