package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/database/pg"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/workflow"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

type autoscalerConfig struct {
	Namespace            string
	JobQueue             string
	IngesterRC           string
	MaxIngesterInstances int64
}

type config struct {
	AppPort          string
	DbConnection     string
	PgqDbConnection  string
	PsProject        string
	EventQueue       string
	JobQueue         string
	BearerAuth       string
	AutoscalerConfig autoscalerConfig
}

func newAppConfig() (*config, error) {
	appPort := flag.String("port", "8080", "workflow port ot use")
	dbConnection := flag.String("dbConnection", "", "database connection")
	pgqConnection := flag.String("pgq-connection", "", "enable pgq messaging system with a connection to the database")
	psProject := flag.String("psProject", "", "pubsub subscription project (gcp only/not required in local usage)")
	eventQueue := flag.String("event-queue", "", "name of the queue of the ingest results (pgqueue or pubsub subscription)")
	jobQueue := flag.String("job-queue", "", "name of the queue of the ingest jobs (pgqueue or pubsub topic)")
	bearerAuth := flag.String("bearer-auth", "", "bearer authentication token (optional)")

	namespace := flag.String("namespace", "", "namespace (autoscaler)")
	ingesterRC := flag.String("ingester-rc", "", "ingester replication controller name (autoscaler)")
	maxIngesterInstances := flag.Int64("max-ingester", 10, "Max ingester instances (autoscaler)")
	flag.Parse()

	if *appPort == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if *dbConnection == "" {
		return nil, fmt.Errorf("missing dbConnection config flag")
	}
	return &config{
		AppPort:         *appPort,
		DbConnection:    *dbConnection,
		PgqDbConnection: *pgqConnection,
		PsProject:       *psProject,
		EventQueue:      *eventQueue,
		JobQueue:        *jobQueue,
		BearerAuth:      *bearerAuth,
		AutoscalerConfig: autoscalerConfig{
			Namespace:            *namespace,
			JobQueue:             *jobQueue,
			IngesterRC:           *ingesterRC,
			MaxIngesterInstances: *maxIngesterInstances,
		},
	}, nil
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

	// Connection to database
	db, err := pg.New(ctx, config.DbConnection)
	if err != nil {
		return fmt.Errorf("pg.New: %w", err)
	}

	// Messaging service
	var jobPublisher messaging.Publisher
	var eventConsumer messaging.Consumer
	var logMessaging string
	{
		if config.PgqDbConnection != "" {
			sqldb, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
			if err != nil {
				return fmt.Errorf("MessagingService: %w", err)
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", config.EventQueue)
				consumer := pgqueue.NewConsumer(sqldb, config.EventQueue)
				defer consumer.Stop()
				eventConsumer = consumer
			}
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pushing jobs on pgqueue:%s", config.JobQueue)
				jobPublisher = pgqueue.NewPublisher(w, config.JobQueue, pgqueue.WithMaxRetries(5))
			}
		} else {
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on %s/%s", config.PsProject, config.EventQueue)
				if eventConsumer, err = pubsub.NewConsumer(config.PsProject, config.EventQueue); err != nil {
					return fmt.Errorf("pubsub.new: %w", err)
				}
			}
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pushing jobs on %s/%s", config.PsProject, config.JobQueue)
				publisher, err := pubsub.NewPublisher(ctx, config.PsProject, config.JobQueue)
				if err != nil {
					return fmt.Errorf("pubsub.NewPublisher(Jobs): %w", err)
				}
				defer publisher.Stop()
				jobPublisher = publisher
			}

			// Autoscaler of the ingesters
			if err = runAutoscaler(ctx, config.PsProject, config.AutoscalerConfig); err != nil {
				log.Logger(ctx).Warn("not running autoscaler", zap.Error(err))
			}
		}
	}
	if eventConsumer == nil {
		return fmt.Errorf("missing configuration for messaging.EventConsumer")
	}
	if jobPublisher == nil {
		return fmt.Errorf("missing configuration for messaging.JobPublisher")
	}

	// Create Workflow Server
	wf := workflow.NewWorkflow(db, jobPublisher)
	router := wf.NewHandler()
	if config.BearerAuth != "" {
		router = workflow.BearerAuthenticate(config.BearerAuth)(router)
	}
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(router),
	}
	go func() {
		if err := s.ListenAndServe(); err != nil {
			log.Logger(ctx).Error(err.Error())
		}
	}()

	log.Logger(ctx).Debug("workflow starts" + logMessaging)
	for {
		err := eventConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			if msg.TryCount > 30 {
				return fmt.Errorf("bailing out after too many retries")
			}
			result := common.Result{}
			if err := json.Unmarshal(msg.Data, &result); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			} else if result.JobID == "" {
				return fmt.Errorf("invalid payload: missing job id")
			}
			if err := wf.ResultHandler(ctx, result); err != nil {
				return service.MakeTemporary(fmt.Errorf("failed to process result of %s: %w", result.JobID, err))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}
