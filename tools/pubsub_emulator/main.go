package main

import (
	"context"
	"flag"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// queues of the ingestion: the ingesters pull the jobs and push their results on the events topic
var queues = []string{"alos2-ingest-jobs", "alos2-ingest-events"}

func main() {
	ctx := context.Background()

	projectID := flag.String("project", "alos2-emulator", "emulator project")
	host := flag.String("host", "localhost:8085", "address of the emulator")
	ackDeadline := flag.Duration("ack-deadline", 10*time.Second, "ack deadline of the subscriptions")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *host)

	log.Logger(ctx).Sugar().Infof("new client for project %s", *projectID)
	client, err := pubsub.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal("pubsub.NewClient", zap.Error(err))
	}
	defer client.Close()

	for _, name := range queues {
		log.Logger(ctx).Info("create topic: " + name)
		topic, err := client.CreateTopic(ctx, name)
		if err != nil {
			if status.Code(err) != codes.AlreadyExists {
				log.Fatal("pubsub.CreateTopic", zap.Error(err))
			}
			topic = client.Topic(name)
		}

		log.Logger(ctx).Info("create subscription: " + name)
		if _, err = client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: *ackDeadline,
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			log.Fatal("pubsub.CreateSubscription", zap.Error(err))
		}
	}

	log.Logger(ctx).Info("done")
}
