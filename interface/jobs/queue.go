package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
)

// QueueSubmitter publishes the ingest jobs on a message queue (pgqueue, pubsub) consumed by the ingester
type QueueSubmitter struct {
	Publisher messaging.Publisher
	Source    common.Source
}

// NewQueueSubmitter creates a submitter publishing the jobs as common.IngestJob of the given source
func NewQueueSubmitter(publisher messaging.Publisher, source common.Source) *QueueSubmitter {
	return &QueueSubmitter{Publisher: publisher, Source: source}
}

// IngestJob converts the job to the payload of the ingester
func (q *QueueSubmitter) IngestJob(job Job) (common.IngestJob, error) {
	params := job.ParamsMap()
	str := func(name string) string {
		s, _ := params[name].(string)
		return s
	}
	ij := common.IngestJob{
		ID:     job.Name,
		Source: q.Source,
		Archive: common.Archive{
			URL:     str(common.ParamDownloadURL),
			OrderID: str(common.ParamOrderID),
			DataID:  str(common.ParamDataID),
		},
		PathNumber: str(common.ParamPathNumber),
		Directory:  str(common.ParamDirectory),
		Date:       str(common.ParamDate),
	}
	// with a data id, the eor id is only a metadata of the archive
	if ij.Archive.DataID == "" {
		ij.EORID = str(common.ParamEORID)
	}
	switch files := params[common.ParamFiles].(type) {
	case []string:
		ij.Files = files
	case []interface{}:
		for _, f := range files {
			if s, ok := f.(string); ok {
				ij.Files = append(ij.Files, s)
			}
		}
	}
	for _, k := range []string{common.ExtraEORID, common.ExtraEORDate, common.ExtraEORType, common.ExtraEORCountry, common.ExtraFileTitle} {
		if v := str(k); v != "" {
			if ij.Archive.Extra == nil {
				ij.Archive.Extra = map[string]string{}
			}
			ij.Archive.Extra[k] = v
		}
	}
	if err := ij.Validate(); err != nil {
		return ij, fmt.Errorf("QueueSubmitter: %w", err)
	}
	return ij, nil
}

// Submit implements Submitter
func (q *QueueSubmitter) Submit(ctx context.Context, job Job) (string, error) {
	ij, err := q.IngestJob(job)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ij)
	if err != nil {
		return "", fmt.Errorf("QueueSubmitter.Submit: %w", err)
	}
	if err := q.Publisher.Publish(ctx, b); err != nil {
		return "", fmt.Errorf("QueueSubmitter.Submit[%s]: %w", job.Name, err)
	}
	log.Logger(ctx).Sugar().Infof("job %s published", job.Name)
	return ij.ID, nil
}
