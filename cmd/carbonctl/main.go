package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nurpe/carbon-credits/internal/config"
	"github.com/nurpe/carbon-credits/internal/excel"
	"github.com/nurpe/carbon-credits/internal/ledger"
	"github.com/nurpe/carbon-credits/internal/ledger/evm"
	"github.com/nurpe/carbon-credits/internal/logger"
	"github.com/nurpe/carbon-credits/internal/media"
	"github.com/nurpe/carbon-credits/internal/service"
)

var verbose bool

// app holds what a single command invocation needs. Only commands that read
// the claim journal open the database, so DB_DSN and JWT_ACCESS_SECRET are
// not required otherwise.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	client  *evm.Client
	session *ledger.Session
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment)
	if !verbose {
		log = log.Level(zerolog.WarnLevel)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, err := evm.Dial(dialCtx, evm.Config{
		RPCURL:          cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		PrivateKey:      cfg.Ledger.PrivateKey,
		ChainID:         cfg.Ledger.ChainID,
		StartBlock:      cfg.Ledger.StartBlock,
		ReceiptTimeout:  cfg.Ledger.ReceiptTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     log,
		client:  client,
		session: ledger.NewSession(client, client.From()),
	}, nil
}

func (a *app) Close() {
	a.client.Close()
}

func (a *app) requests() *service.RequestService {
	return service.NewRequestService(excel.NewGenerator(), a.cfg, a.log)
}

func (a *app) directory() *service.DirectoryService {
	return service.NewDirectoryService(media.New(a.cfg.Media.APIURL, a.cfg.Media.MaxUploadBytes), a.cfg, a.log)
}

var rootCmd = &cobra.Command{
	Use:           "carbonctl",
	Short:         "Operate the carbon credit ledger from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level")
	rootCmd.AddCommand(organizationsCmd, requestsCmd, claimsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
