package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/shardvault/api/credentials"
	"github.com/ruteri/shardvault/cmd/flags"
	"github.com/ruteri/shardvault/cmd/storecommon"
	"github.com/ruteri/shardvault/common"
	"github.com/ruteri/shardvault/httpserver"
	"github.com/ruteri/shardvault/metrics"
	"github.com/urfave/cli/v2"
)

var GatewayServiceLogFlag = flags.LogServiceFlagFn("gateway")

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "shardvault-gateway",
		Usage: "Serve the credential API backed by secret-shared storage nodes",
		Flags: append(append([]cli.Flag{ListenAddrFlag, GatewayServiceLogFlag}, flags.ClusterFlags...), flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String(ListenAddrFlag.Name)

			logger := flags.SetupLogger(cCtx)

			cfg, err := storecommon.LoadConfig(cCtx)
			if err != nil {
				logger.Error("Failed to load configuration", "err", err)
				return err
			}

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			cluster, err := storecommon.Open(cfg, logger, metricsSrv.Recorder())
			if err != nil {
				logger.Error("Failed to open cluster", "err", err)
				return err
			}
			defer cluster.Close()

			logger.Info("Cluster ready", "schema", cluster.Store.SchemaID(), "nodes", len(cluster.Store.Nodes()))

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr, metricsSrv), credentials.NewHandler(cluster.Store, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			// Wait for termination signal
			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
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
