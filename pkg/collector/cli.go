package collector

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/config"
	"github.com/travigo/vehiclehistory/pkg/store/backend"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "collector",
		Usage: "Polls the upstream source for vehicle positions and stores them",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the poll and retention loops until interrupted",
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnvironment()
					if err != nil {
						return err
					}
					cfg.Log()

					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()

					collector, cleanup, err := New(ctx, cfg)
					defer cleanup()
					if err != nil {
						return err
					}

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
					defer signal.Stop(signals)

					go func() {
						<-signals // wait for signal
						log.Info().Msg("Shutting down collector")
						cancel()

						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					collector.Run(ctx)

					return nil
				},
			},
			{
				Name:  "fetch",
				Usage: "fetch and normalize one cycle of positions and print them without storing",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "number of records to print",
						Value: 10,
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.LoadFromEnvironment()
					if err != nil {
						return err
					}

					upstreamClient, cleanup, err := NewUpstream(c.Context, cfg)
					if err != nil {
						return err
					}
					defer cleanup()

					n, err := NewNormalizer(cfg)
					if err != nil {
						return err
					}

					raws, err := upstreamClient.Fetch(c.Context, cfg.RouteTypes)
					if err != nil {
						log.Warn().Err(err).Msg("Upstream fetch partially failed")
					}

					records, rejects := n.NormalizeAll(raws)
					duplicates := deduplicate(&records)

					limit := c.Int("limit")
					if limit > len(records) || limit < 0 {
						limit = len(records)
					}
					pretty.Println(records[:limit])

					log.Info().
						Int("fetched", len(raws)).
						Int("records", len(records)).
						Int("duplicates", duplicates).
						Interface("rejected", rejects).
						Msg("Fetch complete")

					return nil
				},
			},
			{
				Name:  "prune",
				Usage: "run a single retention cycle",
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

					_, err = NewRetention(s, cfg).PruneOnce(c.Context)
					return err
				},
			},
		},
	}
}
