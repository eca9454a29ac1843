package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/airbusgeo/alos2-ingester/common"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/google/uuid"
)

// Workflow manages the ingestions of the ledger: submission of the jobs on the job queue and
// update of their status with the results published by the ingesters
type Workflow struct {
	db.LedgerDBBackend
	dbmu     sync.Mutex
	jobQueue messaging.Publisher
}

func NewWorkflow(db db.LedgerDBBackend, jobQueue messaging.Publisher) *Workflow {
	return &Workflow{
		LedgerDBBackend: db,
		jobQueue:        jobQueue,
	}
}

// Submit records the job in the ledger and publishes it on the job queue. It returns the id of the ingestion.
func (wf *Workflow) Submit(ctx context.Context, job common.IngestJob) (string, error) {
	if job.ID == "" {
		job.ID = fmt.Sprintf("%s-%s", job.Source, uuid.New().String())
	}
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("Submit: %w", err)
	}
	err := db.UnitOfWork(ctx, wf, func(tx db.LedgerTxBackend) error {
		if err := tx.CreateIngestion(ctx, job); err != nil {
			return err
		}
		return wf.publish(ctx, job)
	})
	if err != nil {
		return "", fmt.Errorf("Submit.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("ingestion %s submitted", job.ID)
	return job.ID, nil
}

func (wf *Workflow) publish(ctx context.Context, job common.IngestJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := wf.jobQueue.Publish(ctx, b); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// RetryIngestion publishes again the job of an ingestion whose status is RETRY or FAILED (or any status but DONE if force)
// Returns true if the ingestion has been retried
func (wf *Workflow) RetryIngestion(ctx context.Context, id string, force bool) (bool, error) {
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	ing, err := wf.Ingestion(ctx, id)
	if err != nil {
		return false, fmt.Errorf("RetryIngestion: %w", err)
	}
	switch {
	case ing.Status == common.StatusRETRY, ing.Status == common.StatusFAILED:
	case force && ing.Status != common.StatusDONE:
	default:
		log.Logger(ctx).Sugar().Warnf("cannot retry ingestion %s with status %s", id, ing.Status)
		return false, nil
	}

	emptyMessage := ""
	err = db.UnitOfWork(ctx, wf, func(tx db.LedgerTxBackend) error {
		if err := tx.UpdateIngestion(ctx, id, common.StatusNEW, &emptyMessage); err != nil {
			return err
		}
		log.Logger(ctx).Sugar().Infof("retrying ingestion %s", id)
		return wf.publish(ctx, ing.Job)
	})
	if err != nil {
		return false, fmt.Errorf("RetryIngestion.%w", err)
	}
	return true, nil
}

// UpdateIngestionStatus updates the status of the ingestion.
// The status of an ingestion in a final state is only updated if force is true.
// Returns true if the status has been updated
func (wf *Workflow) UpdateIngestionStatus(ctx context.Context, id string, status common.Status, message *string, force bool) (bool, error) {
	lg := log.Logger(ctx).Sugar()
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	ing, err := wf.Ingestion(ctx, id)
	if err != nil {
		if errors.As(err, &db.ErrNotFound{}) {
			lg.Errorf("update: %v", err)
			return false, nil
		}
		return false, fmt.Errorf("UpdateIngestionStatus: %w", err)
	}
	if !force {
		if ing.Status.Final() {
			lg.Warnf("cannot update ingestion %s status %s->%s", id, ing.Status, status)
			return false, nil
		}
		if ing.Status == status && status != common.StatusRETRY {
			lg.Warnf("update ingestion %s: status already %s", id, status)
			return false, nil
		}
	}
	lg.Infof("update ingestion status %s: %s->%s", id, ing.Status, status)
	if err := wf.UpdateIngestion(ctx, id, status, message); err != nil {
		return false, fmt.Errorf("UpdateIngestionStatus: %w", err)
	}
	return true, nil
}

// ResultHandler updates the ledger with the result of an ingestion
func (wf *Workflow) ResultHandler(ctx context.Context, result common.Result) error {
	if _, err := wf.Ingestion(ctx, result.JobID); errors.As(err, &db.ErrNotFound{}) {
		// ingestion not submitted through the workflow
		log.Logger(ctx).Sugar().Warnf("result of an unknown ingestion: %s", result.JobID)
		return nil
	}
	if _, err := wf.UpdateIngestionStatus(ctx, result.JobID, result.Status, &result.Message, false); err != nil {
		return err
	}
	if !result.Status.Final() {
		return nil
	}
	for _, name := range result.Datasets {
		ds, err := wf.Dataset(ctx, name)
		if err == nil && ds.IngestionID == result.JobID {
			// already recorded by the ingester
			continue
		}
		if err != nil && !errors.As(err, &db.ErrNotFound{}) {
			return fmt.Errorf("ResultHandler: %w", err)
		}
		if err := wf.SetDataset(ctx, db.Dataset{Name: name, IngestionID: result.JobID, Status: result.Status}); err != nil {
			return fmt.Errorf("ResultHandler: %w", err)
		}
	}
	return nil
}
