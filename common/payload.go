package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Source of the products to ingest
type Source string

const (
	SourceURL          Source = "url"
	SourceAUIG2        Source = "auig2"
	SourceSentinelAsia Source = "sentinelasia"
	SourceGPortal      Source = "gportal"
	SourceMetadata     Source = "md"
)

// Sources returns all the supported sources
func Sources() []Source {
	return []Source{SourceURL, SourceAUIG2, SourceSentinelAsia, SourceGPortal, SourceMetadata}
}

// ParseSource returns the source from its name
func ParseSource(s string) (Source, error) {
	for _, src := range Sources() {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source: %s", s)
}

// Archive is a remote product that a provider is able to download
type Archive struct {
	// Name of the archive (filename or dataset name), used as local filename when the remote does not provide one
	Name string `json:"name"`
	// URL of the archive (direct link, GPortal link...)
	URL string `json:"url,omitempty"`
	// OrderID of an AUIG2 order
	OrderID string `json:"order_id,omitempty"`
	// DataID of a Sentinel-Asia file
	DataID string `json:"data_id,omitempty"`
	// Extra metadata attached to the products (e.g. eor_id, eor_date...)
	Extra map[string]string `json:"extra,omitempty"`
}

// IngestJob is the payload of a message sent to the ingester
type IngestJob struct {
	ID     string `json:"id"`
	Source Source `json:"source"`

	Archive Archive `json:"archive"`

	// Sentinel-Asia fan-out
	EORID string     `json:"eor_id,omitempty"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	// Metadata-only ingestion
	Directory string   `json:"directory,omitempty"`
	Date      string   `json:"date,omitempty"` // yymmdd, as in the image filenames
	Files     []string `json:"files,omitempty"`

	// PathNumber supplied by the user, checked against the track number
	PathNumber string `json:"path_number,omitempty"`
}

// Validate checks the consistency of the job parameters
func (j IngestJob) Validate() error {
	switch j.Source {
	case SourceURL, SourceGPortal:
		if j.Archive.URL == "" {
			return fmt.Errorf("%s job: missing url", j.Source)
		}
	case SourceAUIG2:
		if j.Archive.OrderID == "" {
			return fmt.Errorf("%s job: missing order id", j.Source)
		}
	case SourceSentinelAsia:
		if j.EORID != "" && j.Archive.DataID != "" {
			return fmt.Errorf("%s job: eor id and data id are mutually exclusive", j.Source)
		}
		if j.EORID == "" && j.Archive.DataID == "" && (j.Start == nil || j.End == nil) {
			return fmt.Errorf("%s job: one of eor id, data id or a date window is required", j.Source)
		}
	case SourceMetadata:
		if j.Directory == "" || j.Date == "" {
			return fmt.Errorf("%s job: missing directory or date", j.Source)
		}
	default:
		return fmt.Errorf("unknown source: %s", j.Source)
	}
	return nil
}

// Result of an ingest job, published on the event queue
type Result struct {
	JobID    string   `json:"job_id"`
	Status   Status   `json:"status"`
	Datasets []string `json:"datasets,omitempty"`
	Message  string   `json:"message"`
}

// Value implements the driver.Value interface
func (j IngestJob) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface.
func (j *IngestJob) Scan(value interface{}) error {
	if value == nil {
		*j = IngestJob{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &j)
}
