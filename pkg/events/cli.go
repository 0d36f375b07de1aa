package events

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/railwatch/railwatch/pkg/config"
	"github.com/railwatch/railwatch/pkg/consumer"
	"github.com/railwatch/railwatch/pkg/database"
	"github.com/railwatch/railwatch/pkg/redis_client"
	"github.com/railwatch/railwatch/pkg/ride"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Provides the ride events runner",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run events server",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load("")
					if err != nil {
						return err
					}

					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					redisConsumer := consumer.RedisConsumer{
						QueueName:       cfg.EventQueue,
						NumberConsumers: 5,
						BatchSize:       20,
						Timeout:         2 * time.Second,
						Consumer:        NewRideEventsBatchConsumer(),
					}
					redisConsumer.Setup()

					signals := make(chan os.Signal, 1)
					signal.Notify(signals, syscall.SIGINT)
					defer signal.Stop(signals)

					<-signals // wait for signal
					go func() {
						<-signals // hard exit on second signal (in case shutdown gets stuck)
						os.Exit(1)
					}()

					<-redis_client.QueueConnection.StopAllConsuming() // wait for all Consume() calls to finish

					return nil
				},
			},
			{
				Name:  "test-event",
				Usage: "generate a test event",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load("")
					if err != nil {
						return err
					}

					if err := redis_client.Connect(); err != nil {
						return err
					}

					publisher, err := NewPublisher(cfg.EventQueue)
					if err != nil {
						return err
					}

					publisher.Publish(ride.EventTypeDelayNotified, map[string]interface{}{
						"Ride":           "TEST:RIDE",
						"NotificationID": "DELAY:10:PLATFORM:4",
					})

					return nil
				},
			},
		},
	}
}
