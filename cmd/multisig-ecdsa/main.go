package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/39george/multisig-ecdsa/api"
	"github.com/39george/multisig-ecdsa/internal/ceremony"
	"github.com/39george/multisig-ecdsa/internal/config"
	"github.com/39george/multisig-ecdsa/internal/keys"
	"github.com/39george/multisig-ecdsa/internal/logger"
	"github.com/39george/multisig-ecdsa/internal/session"
	"github.com/39george/multisig-ecdsa/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.json"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load config %s: %v", cfgPath, err)
	}
	if err := logger.InitLogger(cfg.Logger); err != nil {
		logger.Log.Fatalf("Failed to init logger: %v", err)
	}

	var archive ceremony.Archiver
	if cfg.Database.Host != "" {
		storage.InitDB(cfg.Database)
		archive = storage.NewArchive(storage.DB)
	} else {
		logger.Log.Info("No database configured, running memory-only.")
	}

	ring, err := keys.NewKeyring(cfg.Signer.Mnemonic, cfg.Signer.Passphrase)
	if err != nil {
		logger.Log.Fatalf("Failed to build keyring: %v", err)
	}
	defer ring.Close()

	registry := session.NewRegistry()
	svc := ceremony.NewService(registry, archive, time.Duration(cfg.Session.DefaultTTLSeconds)*time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.RunSweeper(ctx,
		time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Session.RetentionSeconds)*time.Second)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: api.SetupRouter(svc, ring),
	}

	go func() {
		<-ctx.Done()
		logger.Log.Info("Terminate signal received, shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Errorf("Shutdown error: %v", err)
		}
	}()

	logger.Log.Infof("Listening on %s", cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalf("Server error: %v", err)
	}
}
