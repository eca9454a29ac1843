package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/interface/catalog"
	db "github.com/airbusgeo/alos2-ingester/interface/database"
	"github.com/airbusgeo/alos2-ingester/interface/jobs"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultJobType is the type of the jobs submitted by the Sentinel-Asia fan-out
const DefaultJobType = "job-ingest-alos2"

// Productizer turns the downloaded archives into product directories
type Productizer interface {
	Ingest(ctx context.Context, workdir, downloadSource, pathNumber string) ([]*productize.Product, error)
	Base(ctx context.Context, name, rawDir string) (*productize.Product, error)
	WriteProduct(p *productize.Product) error
}

// FileSearcher searches the files of the Sentinel-Asia portal
type FileSearcher interface {
	Search(ctx context.Context, q provider.Query) ([]provider.FileParams, error)
}

// Driver downloads, productizes and exports the products of an ingest job
type Driver struct {
	Providers   map[common.Source]provider.ImageProvider
	Searcher    FileSearcher
	Productizer Productizer
	Exporters   []Exporter

	// Optional
	Catalog   catalog.DatasetCatalog
	Ledger    db.LedgerBackend
	Submitter jobs.Submitter
	Events    messaging.Publisher
	// Probe returns the names of the datasets of a remote archive without downloading it (see provider.ProbeDatasetNames)
	Probe func(ctx context.Context, link string) ([]string, error)

	WorkDir      string
	JobType      string
	JobTag       string
	JobQueue     string
	KeepProducts bool
	Now          func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run processes the job and returns its result.
// The status of the result is DONE, SKIPPED (all the datasets are already in the catalog), RETRY (temporary error) or FAILED.
func (d *Driver) Run(ctx context.Context, job common.IngestJob) (common.Result, error) {
	return d.run(ctx, job, false)
}

// RunLastTry processes the job as Run does, but a temporary error is final (FAILED).
func (d *Driver) RunLastTry(ctx context.Context, job common.IngestJob) (common.Result, error) {
	return d.run(ctx, job, true)
}

func (d *Driver) run(ctx context.Context, job common.IngestJob, lastTry bool) (res common.Result, err error) {
	if job.ID == "" {
		job.ID = fmt.Sprintf("%s-%s", job.Source, uuid.New().String())
	}
	ctx = log.With(ctx, "job", job.ID)
	res = common.Result{JobID: job.ID}

	if err := job.Validate(); err != nil {
		err = service.MakeFatal(fmt.Errorf("Driver.Run: %w", err))
		res.Status, res.Message = common.StatusFAILED, err.Error()
		return res, err
	}

	d.createIngestion(ctx, job)
	defer func() {
		if lastTry && err != nil && service.Temporary(err) {
			err = service.MakeFatal(fmt.Errorf("too many retries: %v", err))
		}
		switch {
		case err == nil:
		case service.Temporary(err):
			res.Status = common.StatusRETRY
		default:
			res.Status = common.StatusFAILED
		}
		if err != nil {
			res.Message = err.Error()
		}
		d.updateIngestion(ctx, job.ID, res.Status, res.Message)
		d.publishResult(ctx, res)
	}()

	var status common.Status
	switch {
	case job.Source == common.SourceSentinelAsia && job.Archive.DataID == "":
		status, err = d.fanOut(ctx, job)
	case job.Source == common.SourceSentinelAsia:
		res.Datasets, status, err = d.ingestSentinelAsia(ctx, job)
	case job.Source == common.SourceMetadata:
		res.Datasets, status, err = d.ingestMetadata(ctx, job)
	default:
		prov, e := d.provider(job.Source)
		if e != nil {
			return res, e
		}
		res.Datasets, status, err = d.downloadAndIngest(ctx, job, prov, job.Archive)
	}
	res.Status = status
	return res, err
}

func (d *Driver) provider(source common.Source) (provider.ImageProvider, error) {
	if prov, ok := d.Providers[source]; ok && prov != nil {
		return prov, nil
	}
	return nil, service.MakeFatal(fmt.Errorf("no provider configured for %s", source))
}

// fanOut submits one job per Sentinel-Asia file of an EOR or an observation date window
func (d *Driver) fanOut(ctx context.Context, job common.IngestJob) (common.Status, error) {
	if d.Searcher == nil || d.Submitter == nil {
		return common.StatusFAILED, service.MakeFatal(errors.New("Driver.fanOut: sentinel-asia searcher and job submitter are required"))
	}
	files, err := d.Searcher.Search(ctx, provider.Query{EORID: job.EORID, Start: job.Start, End: job.End})
	if err != nil {
		return common.StatusFAILED, fmt.Errorf("Driver.fanOut: %w", err)
	}
	if len(files) == 0 {
		log.Logger(ctx).Sugar().Warnf("no ALOS2 file found")
		return common.StatusDONE, nil
	}
	jobType := d.JobType
	if jobType == "" {
		jobType = DefaultJobType
	}
	for _, fp := range files {
		dataID := fp.DataID
		if dataID == "" {
			dataID = fp.DownloadURL[strings.LastIndex(fp.DownloadURL, "=")+1:]
		}
		sub := common.IngestJob{
			Source:     common.SourceSentinelAsia,
			Archive:    common.Archive{Name: fp.Filename, DataID: dataID, Extra: fp.Extra()},
			PathNumber: job.PathNumber,
		}
		j := jobs.NewJob(jobType, d.JobTag, dataID, d.JobQueue, jobs.IngestJobParams(sub), d.now())
		id, e := d.Submitter.Submit(ctx, j)
		if e != nil {
			err = service.MergeErrors(true, err, e)
			continue
		}
		log.Logger(ctx).Sugar().Infof("data %s (%s): job %s submitted", dataID, fp.Filename, id)
	}
	if err != nil {
		return common.StatusFAILED, fmt.Errorf("Driver.fanOut: %w", err)
	}
	return common.StatusDONE, nil
}

// ingestSentinelAsia downloads and ingests a single Sentinel-Asia file
func (d *Driver) ingestSentinelAsia(ctx context.Context, job common.IngestJob) ([]string, common.Status, error) {
	if d.Searcher == nil {
		return nil, common.StatusFAILED, service.MakeFatal(errors.New("Driver.ingestSentinelAsia: sentinel-asia searcher is required"))
	}
	prov, err := d.provider(common.SourceSentinelAsia)
	if err != nil {
		return nil, common.StatusFAILED, err
	}
	files, err := d.Searcher.Search(ctx, provider.Query{DataID: job.Archive.DataID})
	if err != nil {
		return nil, common.StatusFAILED, fmt.Errorf("Driver.ingestSentinelAsia: %w", err)
	}
	if len(files) == 0 {
		return nil, common.StatusFAILED, service.MakeFatal(fmt.Errorf("Driver.ingestSentinelAsia: data %s not found", job.Archive.DataID))
	}
	fp := files[0]
	if !strings.Contains(fp.Filename, ".zip") {
		return nil, common.StatusFAILED, service.MakeFatal(fmt.Errorf("unable to process data_id %s: file is not in zipped format (%s/%dB)", job.Archive.DataID, fp.Filename, fp.Filesize))
	}
	archive := fp.Archive()
	for k, v := range job.Archive.Extra {
		archive.Extra[k] = v
	}
	return d.downloadAndIngest(ctx, job, prov, archive)
}

// downloadAndIngest downloads the archive in a temporary workdir, productizes it and exports the products
func (d *Driver) downloadAndIngest(ctx context.Context, job common.IngestJob, prov provider.ImageProvider, archive common.Archive) ([]string, common.Status, error) {
	if names := d.probe(ctx, archive); len(names) > 0 && d.allInCatalog(ctx, names) {
		log.Logger(ctx).Sugar().Infof("%s already in the catalog: skipping download", strings.Join(names, ", "))
		return names, common.StatusSKIPPED, nil
	}

	workdir := filepath.Join(d.WorkDir, uuid.New().String())
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return nil, common.StatusRETRY, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	d.updateIngestion(ctx, job.ID, common.StatusDOWNLOADING, "")
	log.Logger(ctx).Sugar().Infof("downloading %s with %s", archiveID(archive), prov.Name())
	file, err := prov.Download(ctx, archive, workdir)
	if err != nil {
		return nil, common.StatusFAILED, fmt.Errorf("Driver.download[%s]: %w", prov.Name(), err)
	}
	log.Logger(ctx).Sugar().Infof("%s downloaded", file)

	d.updateIngestion(ctx, job.ID, common.StatusPRODUCTIZING, "")
	products, ingestErr := d.Productizer.Ingest(ctx, workdir, downloadSource(prov, archive), job.PathNumber)
	datasets, status, err := d.export(ctx, job.ID, products, archive.Extra)
	if ingestErr != nil {
		return datasets, common.StatusFAILED, fmt.Errorf("Driver.productize: %w", service.MergeErrors(true, ingestErr, err))
	}
	return datasets, status, err
}

// export publishes the products that are not already in the catalog
func (d *Driver) export(ctx context.Context, ingestionID string, products []*productize.Product, extra map[string]string) ([]string, common.Status, error) {
	var datasets []string
	var err error
	skipped := 0
	for _, p := range products {
		datasets = append(datasets, p.Name)
		status, location, e := d.exportProduct(ctx, p, extra)
		if e != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("Driver.export[%s]: %w", p.Name, e))
			status = common.StatusFAILED
		}
		if status == common.StatusSKIPPED {
			skipped++
		}
		d.setDataset(ctx, db.Dataset{Name: p.Name, IngestionID: ingestionID, Status: status, Location: location})
	}
	switch {
	case err != nil:
		return datasets, common.StatusFAILED, err
	case len(products) > 0 && skipped == len(products):
		return datasets, common.StatusSKIPPED, nil
	}
	return datasets, common.StatusDONE, nil
}

func (d *Driver) exportProduct(ctx context.Context, p *productize.Product, extra map[string]string) (common.Status, string, error) {
	ctx = log.With(ctx, "dataset", p.Name)
	if len(extra) > 0 {
		p.Metadata.SetExtra(extra)
		if err := d.Productizer.WriteProduct(p); err != nil {
			return common.StatusFAILED, "", err
		}
	}
	if d.Catalog != nil {
		exists, err := d.Catalog.Exists(ctx, p.Name)
		if err != nil {
			return common.StatusFAILED, "", err
		}
		if exists {
			log.Logger(ctx).Sugar().Infof("%s already in the catalog", p.Name)
			d.removeProduct(ctx, p)
			return common.StatusSKIPPED, "", nil
		}
	}
	location := p.Dir
	for _, e := range d.Exporters {
		loc, err := e.Export(ctx, p)
		if err != nil {
			return common.StatusFAILED, "", err
		}
		location = loc
	}
	if len(d.Exporters) > 0 {
		d.removeProduct(ctx, p)
	}
	log.Logger(ctx).Sugar().Infof("%s exported to %s", p.Name, location)
	return common.StatusDONE, location, nil
}

func (d *Driver) removeProduct(ctx context.Context, p *productize.Product) {
	if d.KeepProducts {
		return
	}
	if err := os.RemoveAll(p.Dir); err != nil {
		log.Logger(ctx).Sugar().Warnf("failed to remove %s: %v", p.Dir, err)
	}
}

// probe returns the datasets of a remote gs/s3 archive, nil if it cannot be probed
func (d *Driver) probe(ctx context.Context, archive common.Archive) []string {
	if d.Catalog == nil || d.Probe == nil || archive.URL == "" {
		return nil
	}
	u, err := url.Parse(archive.URL)
	if err != nil || (u.Scheme != "gs" && u.Scheme != "s3") || !strings.HasSuffix(u.Path, ".zip") {
		return nil
	}
	names, err := d.Probe(ctx, archive.URL)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("unable to probe %s: %v", archive.URL, err)
		return nil
	}
	return names
}

func (d *Driver) allInCatalog(ctx context.Context, names []string) bool {
	for _, name := range names {
		exists, err := d.Catalog.Exists(ctx, name)
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("catalog: %v", err)
			return false
		}
		if !exists {
			return false
		}
	}
	return true
}

func archiveID(archive common.Archive) string {
	for _, id := range []string{archive.OrderID, archive.DataID, archive.URL, archive.Name} {
		if id != "" {
			return id
		}
	}
	return "archive"
}

func downloadSource(prov provider.ImageProvider, archive common.Archive) string {
	if archive.URL != "" {
		return archive.URL
	}
	return prov.Name() + ":" + archiveID(archive)
}

func (d *Driver) createIngestion(ctx context.Context, job common.IngestJob) {
	if d.Ledger == nil {
		return
	}
	err := d.Ledger.CreateIngestion(ctx, job)
	var exists db.ErrAlreadyExists
	if err != nil && !errors.As(err, &exists) {
		log.Logger(ctx).Warn("ledger", zap.Error(err))
	}
}

func (d *Driver) updateIngestion(ctx context.Context, id string, status common.Status, message string) {
	if d.Ledger == nil {
		return
	}
	var msg *string
	if message != "" || status.Final() {
		msg = &message
	}
	if err := d.Ledger.UpdateIngestion(ctx, id, status, msg); err != nil {
		log.Logger(ctx).Warn("ledger", zap.Error(err))
	}
}

func (d *Driver) setDataset(ctx context.Context, ds db.Dataset) {
	if d.Ledger == nil {
		return
	}
	if err := d.Ledger.SetDataset(ctx, ds); err != nil {
		log.Logger(ctx).Warn("ledger", zap.Error(err))
	}
}

func (d *Driver) publishResult(ctx context.Context, res common.Result) {
	if d.Events == nil {
		return
	}
	b, err := json.Marshal(res)
	if err == nil {
		err = d.Events.Publish(ctx, b)
	}
	if err != nil {
		log.Logger(ctx).Warn("failed to publish the result", zap.Error(err))
	}
}
