package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/jobs"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
)

// DefaultScrapeFolderRegexp matches the folders of the archive tree storing the ALOS2 raw files (.../Pxxx/Fxxxx...)
const DefaultScrapeFolderRegexp = `.*/P\d{3}/F\d{4}.*`

// l11ImageRegexp matches the L1.1 image files and extracts their acquisition date
var l11ImageRegexp = regexp.MustCompile(`IMG-[A-Z]{2}-ALOS2.{9}-(\d{6})-.{4}1\.1.*`)

// ScrapeTarget is a set of raw files of a directory acquired at the same date
type ScrapeTarget struct {
	Dir  string `csv:"directory"`
	Date string `csv:"date"`
}

// Name of the target, usable as a job name
func (t ScrapeTarget) Name() string {
	return strings.ReplaceAll(t.Dir+"/"+t.Date, "/", "_")
}

// IngestJob returns the metadata-only ingest job of the target
func (t ScrapeTarget) IngestJob() common.IngestJob {
	return common.IngestJob{Source: common.SourceMetadata, Directory: t.Dir, Date: t.Date}
}

// Scrape walks root and returns the (directory, date) of the L1.1 image files stored in folders matching folderRegexp
// (empty: any folder), sorted by directory and date
func Scrape(root, folderRegexp string) ([]ScrapeTarget, error) {
	if folderRegexp == "" {
		folderRegexp = ".*"
	}
	folderRe, err := regexp.Compile(folderRegexp)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("Scrape: %w", err))
	}
	var targets []ScrapeTarget
	err = filepath.WalkDir(root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() || !folderRe.MatchString(path) {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		dates := service.StringSet{}
		for _, e := range entries {
			if m := l11ImageRegexp.FindStringSubmatch(e.Name()); !e.IsDir() && m != nil {
				dates.Push(m[1])
			}
		}
		ds := dates.Slice()
		sort.Strings(ds)
		for _, date := range ds {
			targets = append(targets, ScrapeTarget{Dir: path, Date: date})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Scrape: %w", err)
	}
	return targets, nil
}

// ScrapeSubmitter submits a metadata-only ingest job per target
type ScrapeSubmitter struct {
	Submitter jobs.Submitter
	JobType   string
	JobTag    string
	JobQueue  string
	Now       func() time.Time
}

// Submit submits the targets and returns the ids of the submitted jobs.
// A failed submission does not stop the others.
func (s ScrapeSubmitter) Submit(ctx context.Context, targets []ScrapeTarget) ([]string, error) {
	jobType := s.JobType
	if jobType == "" {
		jobType = DefaultJobType
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var ids []string
	var err error
	for _, t := range targets {
		job := jobs.NewJob(jobType, s.JobTag, t.Name(), s.JobQueue, jobs.IngestJobParams(t.IngestJob()), now())
		id, e := s.Submitter.Submit(ctx, job)
		if e != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("%s: %w", t.Name(), e))
			continue
		}
		log.Logger(ctx).Sugar().Infof("submitting job for %s, date %s: %s", t.Dir, t.Date, id)
		ids = append(ids, id)
	}
	if err != nil {
		return ids, fmt.Errorf("ScrapeSubmitter.Submit: %w", err)
	}
	return ids, nil
}

// QsubSubmitter submits a PBS batch job per target:
// qsub <PBSFile> -v dir=<dir>,date=<date> -N <name>
type QsubSubmitter struct {
	Runner  toolbox.Runner
	PBSFile string
}

// Submit submits the targets. It stops at the first error.
func (s QsubSubmitter) Submit(ctx context.Context, targets []ScrapeTarget) error {
	for _, t := range targets {
		log.Logger(ctx).Sugar().Infof("submitting job for %s, date %s: %s", t.Dir, t.Date, t.Name())
		args := []string{s.PBSFile, "-v", fmt.Sprintf("dir=%s,date=%s", t.Dir, t.Date), "-N", t.Name()}
		if err := s.Runner.Run(ctx, "", "qsub", args...); err != nil {
			return fmt.Errorf("QsubSubmitter.Submit[%s]: %w", t.Name(), err)
		}
	}
	return nil
}
