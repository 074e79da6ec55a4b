package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/shardvault/api/nodeapi"
	"github.com/ruteri/shardvault/cmd/flags"
	"github.com/ruteri/shardvault/cryptoutils"
	"github.com/ruteri/shardvault/httpserver"
	"github.com/ruteri/shardvault/interfaces"
	"github.com/ruteri/shardvault/nodestore"
	"github.com/ruteri/shardvault/tokens"
	"github.com/urfave/cli/v2"
)

var NodeServiceLogFlag = flags.LogServiceFlagFn("devnode")

var NodeListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8181",
	Usage: "address to listen on for the node API",
}
var NodeIdentityFlag = &cli.StringFlag{
	Name:     "did",
	Required: true,
	Usage:    "node identity; only tokens addressed to it are accepted",
}
var NodeTrustedIssuersFlag = &cli.StringSliceFlag{
	Name:     "trusted-issuer",
	Required: true,
	Usage:    "organization DID (did:nil:<pubkey hex>) allowed to issue tokens, repeatable",
}
var NodeStorageFlag = &cli.StringFlag{
	Name:  "storage",
	Value: "memory://",
	Usage: "record backend: memory://, file:///path, s3://[KEY:SECRET@]bucket/prefix?region=... or ipfs://host:port/mfs/root",
}
var NodeSchemaFlag = &cli.StringFlag{
	Name:  "schema",
	Usage: "if set, register a collection with this id and no JSON schema on startup",
}
var NodeLeewayFlag = &cli.DurationFlag{
	Name:  "token-leeway",
	Value: 5 * time.Second,
	Usage: "clock skew tolerated when checking token expiry",
}

func main() {
	app := &cli.App{
		Name:  "shardvault-devnode",
		Usage: "Serve a development storage node",
		Flags: append([]cli.Flag{NodeListenAddrFlag, NodeIdentityFlag, NodeTrustedIssuersFlag, NodeStorageFlag, NodeSchemaFlag, NodeLeewayFlag, NodeServiceLogFlag}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(NodeListenAddrFlag.Name)
			identity := cCtx.String(NodeIdentityFlag.Name)
			storageURI := cCtx.String(NodeStorageFlag.Name)

			logger := flags.SetupLogger(cCtx).With("node", identity)

			trusted := make(map[string]*ecdsa.PublicKey)
			for _, did := range cCtx.StringSlice(NodeTrustedIssuersFlag.Name) {
				pub, err := cryptoutils.PublicKeyFromDID(did)
				if err != nil {
					logger.Error("Invalid trusted issuer", "did", did, "err", err)
					return fmt.Errorf("%w: trusted issuer %s: %v", interfaces.ErrConfig, did, err)
				}
				trusted[did] = pub
			}

			backend, err := nodestore.NewFactory(logger).BackendFor(storageURI)
			if err != nil {
				logger.Error("Failed to create storage backend", "err", err)
				return err
			}
			if !backend.Available(cCtx.Context) {
				logger.Warn("Storage backend is not available yet", "location", backend.LocationURI())
			}
			logger.Info("Using storage backend", "name", backend.Name(), "location", backend.LocationURI())

			store := nodestore.NewStore(backend, logger)
			if schemaID := cCtx.String(NodeSchemaFlag.Name); schemaID != "" {
				err := store.CreateSchema(cCtx.Context, interfaces.Schema{ID: schemaID, Name: schemaID, Keys: []string{"_id"}})
				switch {
				case err == nil:
					logger.Info("Registered collection", slog.String("schema", schemaID))
				case errors.Is(err, nodestore.ErrSchemaExists):
				default:
					logger.Error("Failed to register collection", "err", err)
					return err
				}
			}

			verifier := tokens.NewVerifier(identity, trusted, tokens.WithLeeway(cCtx.Duration(NodeLeewayFlag.Name)))

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr, nil), nodeapi.NewHandler(store, verifier, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Node is running, press Ctrl+C to stop")
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
