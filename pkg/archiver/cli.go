package archiver

import (
	"context"
	"time"

	"github.com/travigo/vehiclehistory/pkg/config"
	"github.com/travigo/vehiclehistory/pkg/query"
	"github.com/travigo/vehiclehistory/pkg/store/backend"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "Export a window of vehicle history to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "output-directory",
				Usage: "Directory to write the archive to",
				Value: ".",
			},
			&cli.Float64Flag{
				Name:  "hours",
				Usage: "How many hours of history to export",
				Value: query.DefaultHistoryWindow.Hours(),
			},
			&cli.StringFlag{
				Name:  "vehicle-id",
				Usage: "Only export this vehicle",
			},
			&cli.StringFlag{
				Name:  "route-id",
				Usage: "Only export this route",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of positions to export",
				Value: query.DefaultHistoryLimit,
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

			archiver := &Archiver{
				Query:           query.NewService(s),
				OutputDirectory: c.String("output-directory"),
				Window:          time.Duration(c.Float64("hours") * float64(time.Hour)),
				VehicleID:       c.String("vehicle-id"),
				RouteID:         c.String("route-id"),
				Limit:           c.Int("limit"),
			}

			_, _, err = archiver.Perform(c.Context)
			return err
		},
	}
}
