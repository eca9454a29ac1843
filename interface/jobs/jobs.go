package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
)

// DefaultPriority of the submitted jobs
const DefaultPriority = "5"

// jobNameDateLayout is the layout of the timestamp suffixing the name of the jobs
const jobNameDateLayout = "02_Jan_2006_15:04:05"

// Param of a job
type Param struct {
	Name  string      `json:"name"`
	From  string      `json:"from"`
	Value interface{} `json:"value"`
}

// Rule triggering the job
type Rule struct {
	RuleName string `json:"rule_name"`
	Queue    string `json:"queue"`
	Priority string `json:"priority"`
	Kwargs   string `json:"kwargs"`
}

// Job to be submitted to the job orchestrator
type Job struct {
	Name   string  `json:"name"`
	Spec   string  `json:"job_spec"` // <type>:<tag>
	Params []Param `json:"params"`
	Rule   Rule    `json:"rule"`
}

// NewJob creates a job of type jobType (e.g. job-ingest-alos2) and version tag, identified by id.
// params are sorted by name.
func NewJob(jobType, tag, id, queue string, params map[string]interface{}, now time.Time) Job {
	spec := jobType + ":" + tag
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	job := Job{
		Name: fmt.Sprintf("%s-%s-%s", spec, id, now.UTC().Format(jobNameDateLayout)),
		Spec: spec,
		Rule: Rule{
			RuleName: strings.TrimPrefix(jobType, "job-"),
			Queue:    queue,
			Priority: DefaultPriority,
			Kwargs:   "{}",
		},
	}
	for _, name := range names {
		job.Params = append(job.Params, Param{Name: name, From: "value", Value: params[name]})
	}
	return job
}

// ParamsMap returns the params as a map name:value
func (j Job) ParamsMap() map[string]interface{} {
	m := make(map[string]interface{}, len(j.Params))
	for _, p := range j.Params {
		m[p.Name] = p.Value
	}
	return m
}

// Submitter submits the jobs
type Submitter interface {
	// Submit the job and returns its id
	Submit(ctx context.Context, job Job) (string, error)
}

// IngestJobParams returns the parameters of the ingest job
func IngestJobParams(j common.IngestJob) map[string]interface{} {
	params := map[string]interface{}{}
	set := func(name string, value string) {
		if value != "" {
			params[name] = value
		}
	}
	set(common.ParamDownloadURL, j.Archive.URL)
	set(common.ParamOrderID, j.Archive.OrderID)
	set(common.ParamDataID, j.Archive.DataID)
	set(common.ParamEORID, j.EORID)
	set(common.ParamPathNumber, j.PathNumber)
	set(common.ParamDirectory, j.Directory)
	set(common.ParamDate, j.Date)
	if len(j.Files) > 0 {
		params[common.ParamFiles] = j.Files
	}
	if j.Start != nil {
		params[common.ParamStartTime] = j.Start.UTC().Format(time.RFC3339)
	}
	if j.End != nil {
		params[common.ParamEndTime] = j.End.UTC().Format(time.RFC3339)
	}
	for k, v := range j.Archive.Extra {
		set(k, v)
	}
	return params
}
