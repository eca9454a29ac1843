package main

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/autoscaler"
	rc "github.com/airbusgeo/geocube/interface/autoscaler/k8s"
	"github.com/airbusgeo/geocube/interface/autoscaler/qbas"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"go.uber.org/zap"
)

// runAutoscaler scales the ingester replication controller on the size of the job queue.
// The ingesters expose their termination cost on :9000.
func runAutoscaler(ctx context.Context, project string, config autoscalerConfig) error {
	if config.IngesterRC == "" {
		return fmt.Errorf("missing ingester replication controller")
	}
	ictx := log.WithFields(ctx, zap.String("rc", config.IngesterRC), zap.String("queue", config.JobQueue))

	controller, err := rc.New(config.IngesterRC, config.Namespace)
	if err != nil {
		return fmt.Errorf("rc.new: %w", err)
	}
	controller.AllowEviction = false
	controller.CostPath = "/termination_cost"
	controller.CostPort = 9000

	queue, err := pubsub.NewConsumer(project, config.JobQueue)
	if err != nil {
		return fmt.Errorf("pubsub.new: %w", err)
	}

	cfg := qbas.Config{
		Ratio:        1,
		MinRatio:     1,
		MaxInstances: config.MaxIngesterInstances,
		MinInstances: 0,
		MaxStep:      2,
	}
	as := autoscaler.New(queue, controller, cfg, log.Logger(ictx))
	log.Logger(ictx).Sugar().Infof("starting autoscaler")
	go as.Run(ictx, 30*time.Second)
	return nil
}
