package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"datanexus-marketplace/internal/client"
	"datanexus-marketplace/internal/config"
	"datanexus-marketplace/internal/crypto"
	"datanexus-marketplace/internal/repository"
	"datanexus-marketplace/internal/server"
	"datanexus-marketplace/internal/service"
	"datanexus-marketplace/pkg/logger"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment.Name, cfg.Log.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	masterKey, err := cfg.MasterKey()
	if err != nil {
		log.Fatal("master key", zap.Error(err))
	}
	envelope, err := crypto.NewEnvelope(masterKey)
	if err != nil {
		log.Fatal("init envelope crypto", zap.Error(err))
	}

	db, err := client.InitSqliteClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}

	chainClient := client.NewChainClient(cfg.Chain.RPCURL)
	facilitatorClient := client.NewFacilitatorClient(cfg.Facilitator.BaseURL)
	storageClient := client.NewStorageClient(cfg.Storage.GatewayURL)

	productRepo := repository.NewProductRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	disputeRepo := repository.NewDisputeRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	chainRecordRepo := repository.NewChainRecordRepository(db)

	verifier := service.NewPaymentVerifier(chainClient, facilitatorClient,
		cfg.Chain.EscrowProgramID, cfg.Chain.Network, log)
	accessService := service.NewAccessService(productRepo, orderRepo, escrowRepo)
	productService := service.NewProductService(productRepo, orderRepo, accessService, envelope, storageClient, log)
	orderService := service.NewOrderService(db, verifier, orderRepo, productRepo,
		cfg.Chain.Network, cfg.Facilitator.Recipient, log)
	escrowService := service.NewEscrowService(db, verifier, escrowRepo, proposalRepo, requestRepo,
		cfg.Chain.PlatformWallet, log)
	requestService := service.NewRequestService(requestRepo, proposalRepo)
	syncService := service.NewChainSyncService(chainRecordRepo, storageClient, chainClient, log)
	disputeService := service.NewDisputeService(db, verifier, disputeRepo, refundRepo, orderRepo, syncService,
		cfg.Chain.PlatformWallet, log)

	srv := server.NewServer(cfg.JWTSecret,
		productService, accessService, orderService,
		escrowService, requestService, disputeService, syncService)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", zap.String("addr", serverAddr))
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Info("signal received, starting graceful shutdown")

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error", zap.Error(err))
	}
}
