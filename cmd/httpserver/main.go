package main

import (
	"context"
	"crypto/x509"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/genui/attested-trace-backend/appattest"
	"github.com/genui/attested-trace-backend/cmd/flags"
	"github.com/genui/attested-trace-backend/httpserver"
	"github.com/genui/attested-trace-backend/ingest"
	"github.com/genui/attested-trace-backend/secrets"
	"github.com/genui/attested-trace-backend/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags = append([]cli.Flag{
	flags.ListenAddrFlag,
	flags.AppIDFlag,
	flags.ProductionFlag,
	flags.TrustAnchorFlag,
	flags.MasterSecretFlag,
	flags.ChallengeTTLFlag,
	flags.StorageURIFlag,
	flags.LogPrefixFlag,
	flags.SharePrefixFlag,
	flags.MaxBodyBytesFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "attested-trace-backend",
		Usage: "Serve the attestation-gated trace ingestion API",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			masterSecretSource := cCtx.String(flags.MasterSecretFlag.Name)
			if masterSecretSource == "" {
				logger.Error("master-secret is required")
				return errors.New("master-secret is required")
			}

			resolveCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			masterSecret, err := secrets.Resolve(resolveCtx, masterSecretSource, logger)
			if err != nil {
				logger.Error("Failed to resolve master secret", "err", err)
				return err
			}

			issuer, err := appattest.NewIssuer(masterSecret, cCtx.Duration(flags.ChallengeTTLFlag.Name), logger)
			if err != nil {
				logger.Error("Failed to create challenge issuer", "err", err)
				return err
			}

			trustAnchor, err := loadTrustAnchor(cCtx.String(flags.TrustAnchorFlag.Name))
			if err != nil {
				logger.Error("Failed to load trust anchor", "err", err)
				return err
			}

			appID := cCtx.String(flags.AppIDFlag.Name)
			production := cCtx.Bool(flags.ProductionFlag.Name)
			verifier, err := appattest.NewVerifier(trustAnchor, appID, production, logger)
			if err != nil {
				logger.Error("Failed to create attestation verifier", "err", err)
				return err
			}
			logger.Info("Attestation verifier configured", "app_id", appID, "production", production)

			storageURI := cCtx.String(flags.StorageURIFlag.Name)
			store, err := storage.BackendFor(storageURI, logger)
			if err != nil {
				logger.Error("Failed to create storage backend", "err", err)
				return err
			}
			if !store.Available(cCtx.Context) {
				logger.Warn("Storage backend not reachable at startup", "backend", store.Name())
			}

			writer := ingest.NewWriter(store,
				cCtx.String(flags.LogPrefixFlag.Name),
				cCtx.String(flags.SharePrefixFlag.Name),
				logger)

			handler := httpserver.NewHandler(issuer, verifier, writer,
				cCtx.Int64(flags.MaxBodyBytesFlag.Name), logger)

			cfg := flags.ConfigureServer(cCtx, logger)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server", "listen_addr", cfg.ListenAddr, "backend", store.Name())
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadTrustAnchor reads the attestation root from the given file, falling
// back to the embedded Apple App Attest root when no path is configured.
func loadTrustAnchor(path string) (*x509.Certificate, error) {
	if path == "" {
		return appattest.DefaultTrustAnchor()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return appattest.ParseTrustAnchor(data)
}
