package main

import (
	"log"

	"github.com/shopspring/decimal"

	"tablestack/config"
	"tablestack/internal/database"
	"tablestack/internal/logger"
	"tablestack/internal/messaging"
	"tablestack/internal/pos/catalog"
	"tablestack/internal/pos/inventory"
	"tablestack/internal/pos/kitchen"
	"tablestack/internal/pos/payment"
	"tablestack/internal/pos/pricing"
	"tablestack/internal/pos/store"
	"tablestack/internal/pos/tables"
	"tablestack/internal/server"
	"tablestack/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	appLog := logger.New("pos-core")

	utils.SetSecret(cfg.Auth.JWTSecret)

	redisClient := config.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	taxRate, err := decimal.NewFromString(cfg.Site.TaxRate)
	if err != nil {
		log.Fatalf("Invalid TAX_RATE: %v", err)
	}
	poolRate, err := decimal.NewFromString(cfg.Site.TipPoolRate)
	if err != nil {
		log.Fatalf("Invalid TIP_POOL_RATE: %v", err)
	}

	amqpConn, err := messaging.New(cfg.AMQP.URL, cfg.AMQP.Stations, appLog)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer amqpConn.Close()
	publisher := messaging.NewPublisher(amqpConn, appLog)

	cat := catalog.NewGORM(db)
	kitchenRouter := kitchen.NewRouter(db, publisher, appLog)

	var poolPolicy payment.PoolPolicy = payment.NoPooling{}
	if poolRate.IsPositive() {
		poolPolicy = payment.FlatRatePool{Rate: poolRate}
	}

	posStore := store.New(store.Deps{
		Repo:               store.NewGORMRepository(db),
		Sequence:           store.NewRedisSequencer(redisClient, cfg.Site.Code),
		Pricer:             pricing.New(taxRate),
		Catalog:            cat,
		Ledger:             inventory.New(db, cat),
		Notifier:           kitchenRouter,
		Processor:          payment.NewProcessor(payment.SimulatedGateway{}),
		Tips:               payment.NewAllocator(poolPolicy),
		Tables:             tables.New(db),
		Cache:              redisClient,
		Log:                appLog,
		VoidReasonRequired: cfg.Site.VoidReasonRequired,
	})

	r := server.New(db, posStore, kitchenRouter)

	log.Printf("Starting POS core on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
