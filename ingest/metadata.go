package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// MetadataSuffix is appended to the name of the datasets ingested without their rasters
const MetadataSuffix = "-md"

// ingestMetadata creates and exports the metadata of the raw files of job.Directory acquired at job.Date,
// without downloading nor processing the rasters
func (d *Driver) ingestMetadata(ctx context.Context, job common.IngestJob) ([]string, common.Status, error) {
	files, err := metadataFiles(job)
	if err != nil {
		return nil, common.StatusFAILED, fmt.Errorf("Driver.ingestMetadata: %w", err)
	}

	tmpDir := filepath.Join(d.WorkDir, fmt.Sprintf("tmp_%s_%d", job.Date, d.now().Unix()))
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return nil, common.StatusRETRY, service.MakeTemporary(fmt.Errorf("Driver.ingestMetadata: %w", err))
	}
	defer os.RemoveAll(tmpDir)
	for _, f := range files {
		if err := os.Symlink(f, filepath.Join(tmpDir, filepath.Base(f))); err != nil {
			return nil, common.StatusFAILED, fmt.Errorf("Driver.ingestMetadata: %w", err)
		}
	}

	name, err := common.DatasetNameFromDir(tmpDir)
	if err != nil {
		return nil, common.StatusFAILED, service.MakeFatal(fmt.Errorf("Driver.ingestMetadata: %w", err))
	}
	name += MetadataSuffix
	log.Logger(ctx).Sugar().Infof("creating metadata for %s", name)

	d.updateIngestion(ctx, job.ID, common.StatusPRODUCTIZING, "")
	p, err := d.Productizer.Base(ctx, name, tmpDir)
	if err != nil {
		return nil, common.StatusFAILED, fmt.Errorf("Driver.ingestMetadata: %w", err)
	}
	p.Metadata.GekkoArchiveFiles = files
	if err := d.Productizer.WriteProduct(p); err != nil {
		return nil, common.StatusFAILED, fmt.Errorf("Driver.ingestMetadata: %w", err)
	}
	return d.export(ctx, job.ID, []*productize.Product{p}, nil)
}

// metadataFiles returns the sorted list of the files of job.Directory: job.Files if provided, otherwise all the files containing job.Date
func metadataFiles(job common.IngestJob) ([]string, error) {
	var files []string
	if len(job.Files) > 0 {
		for _, f := range job.Files {
			if !filepath.IsAbs(f) {
				f = filepath.Join(job.Directory, f)
			}
			files = append(files, f)
		}
	} else {
		var err error
		if files, err = filepath.Glob(filepath.Join(job.Directory, "*"+job.Date+"*")); err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, service.MakeFatal(fmt.Errorf("no file of %s found in %s", job.Date, job.Directory))
	}
	for i, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		files[i] = abs
	}
	sort.Strings(files)
	return files, nil
}
