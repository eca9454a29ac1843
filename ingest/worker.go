package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"go.uber.org/zap"
)

// DefaultMaxTries is the number of tries of a message before the job is considered as failed
const DefaultMaxTries = 15

// Worker processes the ingest jobs pulled from a queue
type Worker struct {
	Driver   *Driver
	MaxTries int

	mu         sync.Mutex
	jobStarted time.Time
}

// Process handles a message whose payload is a common.IngestJob.
// The message is retried if the returned error is temporary.
func (w *Worker) Process(ctx context.Context, msg *messaging.Message) error {
	w.setJobStarted(time.Now())
	defer w.setJobStarted(time.Time{})

	ctx = log.With(ctx, "msgID", msg.ID)
	log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)

	job := common.IngestJob{}
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if job.ID == "" {
		job.ID = msg.ID
	}

	maxTries := w.MaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	if msg.TryCount > maxTries {
		return fmt.Errorf("job %s: too many retries", job.ID)
	}

	var res common.Result
	var err error
	if msg.TryCount >= maxTries {
		res, err = w.Driver.RunLastTry(ctx, job)
	} else {
		res, err = w.Driver.Run(ctx, job)
	}
	switch {
	case err != nil && service.Temporary(err):
		log.Logger(ctx).Warn("job temporary failure", zap.Error(err))
		return err
	case err != nil:
		log.Logger(ctx).Warn("job failed", zap.Error(err))
		return err
	}
	log.Logger(ctx).Sugar().Infof("job %s: %s %v", res.JobID, res.Status, res.Datasets)
	return nil
}

// TerminationCost returns the number of milliseconds since the current job started, 0 if the worker is idle
func (w *Worker) TerminationCost() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jobStarted.IsZero() {
		return 0
	}
	return int(time.Since(w.jobStarted).Milliseconds())
}

func (w *Worker) setJobStarted(t time.Time) {
	w.mu.Lock()
	w.jobStarted = t
	w.mu.Unlock()
}
