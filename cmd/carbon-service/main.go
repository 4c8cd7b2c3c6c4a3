package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nurpe/carbon-credits/internal/auth"
	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/db"
	"github.com/nurpe/carbon-credits/internal/excel"
	httphandler "github.com/nurpe/carbon-credits/internal/http"
	"github.com/nurpe/carbon-credits/internal/http/middleware"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/ledger/evm"
	"github.com/nurpe/carbon-credits/internal/logger"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/oracle"
	"github.com/nurpe/carbon-credits/internal/pdf"
	"github.com/nurpe/carbon-credits/internal/repository"
	"github.com/nurpe/carbon-credits/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ledgerClient, err := evm.Dial(dialCtx, evm.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		PrivateKey:      cfg.Ledger.PrivateKey,
		ChainID:         cfg.Ledger.ChainID,
		StartBlock:      cfg.Ledger.StartBlock,
		ReceiptTimeout:  cfg.Ledger.ReceiptTimeout,
	})
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect ledger")
	}
	defer ledgerClient.Close()
	session := ledger.NewSession(ledgerClient, ledgerClient.From())

	predictor, err := oracle.New(cfg.Oracle.URL, cfg.Oracle.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init oracle client")
	}
	store := media.New(cfg.Media.APIURL, cfg.Media.MaxUploadBytes)
	submissions := repository.NewSubmissionRepository(database)

	claimService := service.NewClaimService(store, predictor, submissions, pdf.NewGenerator(), cfg, log)
	requestService := service.NewRequestService(excel.NewGenerator(), cfg, log)
	directoryService := service.NewDirectoryService(store, cfg, log)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(claimService, requestService, directoryService, session, cfg.Media.MaxUploadBytes, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.CORSOrigins)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", addr).
		Str("account", session.Address.Hex()).
		Msg("starting carbon credits service")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
