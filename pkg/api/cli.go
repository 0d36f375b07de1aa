package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/railwatch/railwatch/pkg/config"
	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/elastic_client"
	"github.com/railwatch/railwatch/pkg/events"
	"github.com/railwatch/railwatch/pkg/notify"
	"github.com/railwatch/railwatch/pkg/redis_client"
	"github.com/railwatch/railwatch/pkg/routeapi"
	"github.com/railwatch/railwatch/pkg/scheduler"
	"github.com/railwatch/railwatch/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Provides the ride notification scheduler",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the ride scheduler and its API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load("")
					if err != nil {
						return err
					}
					if err := cfg.Validate(); err != nil {
						return err
					}

					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}
					if err := elastic_client.Connect(); err != nil {
						return err
					}

					pushManager := &notify.PushManager{}
					if err := pushManager.Setup(); err != nil {
						return err
					}

					publisher, err := events.NewPublisher(cfg.EventQueue)
					if err != nil {
						return err
					}

					rideStore := store.NewRideStore()
					routeClient := routeapi.NewClient(cfg.StatusCacheTTL)

					rideScheduler := scheduler.NewRideScheduler(rideStore, routeClient, pushManager, publisher, cfg)

					// Startup barrier: every persisted ride gets its poller
					// back before any new registration is accepted.
					if err := rideScheduler.ScheduleExisting(context.Background()); err != nil {
						return err
					}

					log.Info().
						Str("event", "server.startup").
						Str("listen", c.String("listen")).
						Int("rides", rideScheduler.Registry().Len()).
						Msg("Starting RailWatch scheduler")

					webApp := SetupServer(rideScheduler)

					listenErr := make(chan error, 1)
					go func() {
						listenErr <- webApp.Listen(c.String("listen"))
					}()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT)
					defer signal.Stop(signals)

					select {
					case err := <-listenErr:
						return err
					case <-signals: // wait for signal
					}

					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					rideScheduler.StopAll()

					return webApp.Shutdown()
				},
			},
		},
	}
}
