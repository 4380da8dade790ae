package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/config"
	"github.com/travigo/vehiclehistory/pkg/query"
	"github.com/travigo/vehiclehistory/pkg/store/backend"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Provides the vehicle position query API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnvironment()
					if err != nil {
						return err
					}

					s, err := backend.Open(c.Context, cfg)
					if err != nil {
						return err
					}
					defer s.Close(context.Background())

					webApp := NewApp(query.NewService(s))

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals
						log.Info().Msg("Shutting down web api")
						webApp.Shutdown()
					}()

					log.Info().Str("listen", c.String("listen")).Msg("Starting web api")

					return webApp.Listen(c.String("listen"))
				},
			},
		},
	}
}
