package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ark-network/watchtower/internal/config"
	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/monitor"
	"github.com/ark-network/watchtower/internal/core/notification"
	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/ark-network/watchtower/internal/core/supervisor"
	esploraclient "github.com/ark-network/watchtower/internal/infrastructure/chainclient/esplora"
	"github.com/ark-network/watchtower/internal/infrastructure/commitment"
	sqlitedb "github.com/ark-network/watchtower/internal/infrastructure/db/sqlite"
	expopush "github.com/ark-network/watchtower/internal/infrastructure/push/expo"
	httpinterface "github.com/ark-network/watchtower/internal/interface/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := cli.NewApp()
	app.Name = "watchtower"
	app.Version = version
	app.Usage = "Bitcoin vault watchtower"
	app.Flags = config.Flags
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("watchtower exited with error")
	}
}

// network records the store opened for each enabled network in run, so
// it can be closed on shutdown.
type network struct {
	id    domain.NetworkID
	store ports.Store
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DbFolder, 0o755); err != nil {
		return fmt.Errorf("create db folder: %w", err)
	}

	sender := expopush.New()
	sup := supervisor.New()
	httpNetworks := make(map[domain.NetworkID]httpinterface.NetworkServices)
	var networks []network

	for _, netCfg := range cfg.Networks {
		netLog := log.WithField("network", netCfg.ID)

		dbPath := filepath.Join(cfg.DbFolder, "watchtower."+string(netCfg.ID)+".sqlite")
		store, err := sqlitedb.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("open store for %s: %w", netCfg.ID, err)
		}

		chain := esploraclient.New(string(netCfg.ID), netCfg.BaseURL)
		verifier := commitment.New(store, chain)
		scheduler := notification.New(string(netCfg.ID), store, verifier, sender)
		mon := monitor.New(string(netCfg.ID), chain, store, verifier, scheduler)

		sup.Register(string(netCfg.ID), mon, netCfg.Interval)
		networks = append(networks, network{id: netCfg.ID, store: store})

		httpNetworks[netCfg.ID] = httpinterface.NetworkServices{
			Store:           store,
			Verifier:        verifier,
			DbFolder:        cfg.DbFolder,
			WithCommitments: cfg.WithCommitments,
		}

		netLog.Info("network enabled")
	}

	srv := httpinterface.New(httpNetworks)
	if err := srv.Listen(cfg.Port); err != nil {
		return err
	}
	log.WithField("addr", srv.Addr()).Info("http server listening")

	go func() {
		if err := srv.Serve(); err != nil {
			log.WithError(err).Error("http server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx)

	log.Info("watchtower started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	<-sigChan

	log.Info("shutting down")
	cancel()
	sup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}

	for _, n := range networks {
		if err := n.store.Close(); err != nil {
			log.WithError(err).WithField("network", n.id).Warn("closing store")
		}
	}

	return nil
}
