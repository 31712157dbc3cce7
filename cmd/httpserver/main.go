package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/credential-registry-client/cmd/flags"
	"github.com/ruteri/credential-registry-client/httpserver"
)

var listenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

func main() {
	app := &cli.App{
		Name:  "credential-registry-server",
		Usage: "Serve the credential registry client operations as a local JSON API",
		Flags: append(append(append([]cli.Flag{listenAddrFlag, flags.LogServiceFlagFn("credential-registry-server")},
			flags.LogFlags...), flags.ServerFlags...), flags.ClientFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			client, err := flags.SetupClient(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up client", "err", err)
				return err
			}
			defer client.Close()

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(listenAddrFlag.Name))
			server, err := httpserver.New(cfg, httpserver.NewHandler(client.App, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

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
