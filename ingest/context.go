package ingest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
)

// ContextFile is the file written by the job orchestrator in the working directory of the job
const ContextFile = "_context.json"

// JobContext is the content of _context.json
type JobContext struct {
	AUIG2Username     string `json:"auig2_username"`
	AUIG2Password     string `json:"auig2_password"` // encoded, see provider.DecodeContextPassword
	AUIG2OrderID      string `json:"auig2_orderid"`
	DownloadURL       string `json:"download_url"`
	EORID             string `json:"eor_id"`
	DataID            string `json:"data_id"`
	QueueEORID        string `json:"queue_eor_id"`
	PathNumberToCheck string `json:"path_number_to_check"`
	JobSpecification  struct {
		JobVersion string `json:"job-version"`
	} `json:"job_specification"`
}

// LoadContext reads the job context. A missing file returns an empty context.
func LoadContext(path string) (JobContext, error) {
	var jc JobContext
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return jc, nil
		}
		return jc, fmt.Errorf("LoadContext: %w", err)
	}
	if err := json.Unmarshal(b, &jc); err != nil {
		return jc, fmt.Errorf("LoadContext[%s]: %w", path, err)
	}
	return jc, nil
}

// AUIG2Credentials returns the credentials of the context, decoding the password
func (jc JobContext) AUIG2Credentials() provider.Credentials {
	return provider.Credentials{Username: jc.AUIG2Username, Password: provider.DecodeContextPassword(jc.AUIG2Password)}
}

// Complete fills the parameters of the job that are not defined with the ones of the context
func (jc JobContext) Complete(job *common.IngestJob) {
	switch job.Source {
	case common.SourceURL, common.SourceGPortal:
		if job.Archive.URL == "" {
			job.Archive.URL = jc.DownloadURL
		}
	case common.SourceAUIG2:
		if job.Archive.OrderID == "" {
			job.Archive.OrderID = jc.AUIG2OrderID
		}
	case common.SourceSentinelAsia:
		if job.EORID == "" && job.Archive.DataID == "" && job.Start == nil {
			job.EORID, job.Archive.DataID = jc.EORID, jc.DataID
		}
	}
	if job.PathNumber == "" {
		job.PathNumber = jc.PathNumberToCheck
	}
}
