package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/airbusgeo/alos2-ingester/ingest"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"go.uber.org/zap"
)

type config struct {
	EnvFile        string
	JobQueue       string
	EventQueue     string
	MaxTries       int
	TerminationAPI string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.EnvFile, "env", ".env", "environment file (optional)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the queue for ingest jobs (pgqueue or pubsub subscription). Default: ALOS2_JOB_SUBSCRIPTION")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for job results (pgqueue or pubsub topic). Default: ALOS2_JOB_EVENT_TOPIC")
	flag.IntVar(&config.MaxTries, "max-tries", ingest.DefaultMaxTries, "number of tries of a job before it is considered as failed")
	flag.StringVar(&config.TerminationAPI, "termination-api", ":9000", "address of the termination_cost endpoint (empty to disable)")
	flag.Parse()

	if config.MaxTries <= 0 {
		return nil, fmt.Errorf("max-tries must be positive")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	cfg, err := ingest.LoadConfig(config.EnvFile)
	if err != nil {
		return err
	}
	if config.JobQueue == "" {
		config.JobQueue = cfg.Jobs.Subscription
	}
	if config.EventQueue == "" {
		config.EventQueue = cfg.Jobs.EventTopic
	}
	if config.JobQueue == "" {
		return fmt.Errorf("missing configuration for messaging.JobConsumer")
	}

	jobConsumer, stopConsumer, err := cfg.NewConsumer(ctx, config.JobQueue)
	if err != nil {
		return err
	}
	defer stopConsumer()

	d, closeDriver, err := cfg.NewDriver(ctx)
	if err != nil {
		return err
	}
	defer closeDriver()
	if d.WorkDir, err = filepath.Abs(d.WorkDir); err != nil {
		return err
	}

	if config.EventQueue != "" {
		eventPublisher, stopPublisher, err := cfg.NewPublisher(ctx, config.EventQueue)
		if err != nil {
			return err
		}
		defer stopPublisher()
		d.Events = eventPublisher
	}

	worker := &ingest.Worker{Driver: d, MaxTries: config.MaxTries}
	if config.TerminationAPI != "" {
		go func() {
			http.HandleFunc("/termination_cost", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "%d", worker.TerminationCost())
			})
			if err := http.ListenAndServe(config.TerminationAPI, nil); err != nil {
				log.Logger(ctx).Warn("termination_cost endpoint", zap.Error(err))
			}
		}()
	}

	log.Logger(ctx).Sugar().Debugf("ingester starts pulling on %s, pushing results on %q", config.JobQueue, config.EventQueue)
	for {
		err := jobConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			return worker.Process(ctx, msg)
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}
