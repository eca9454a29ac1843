package productize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// FindRawDirs returns the sorted list of the directories of root containing ALOS2 image files
func FindRawDirs(root string) ([]string, error) {
	var dirs []string
	if err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && common.IsRawDir(path) {
			dirs = append(dirs, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("FindRawDirs: %w", err)
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Ingest extracts all the archives of workdir, then productizes all the raw directories found.
// If pathNumber is not empty, it must be equal to the track number of each dataset.
// A failure on a dataset does not stop the ingestion of the others: the first error is returned.
func (pz *Productizer) Ingest(ctx context.Context, workdir, downloadSource, pathNumber string) ([]*Product, error) {
	zips, err := service.GlobFiles(workdir, "*.zip")
	if err != nil {
		return nil, fmt.Errorf("Productizer.Ingest: %w", err)
	}
	for _, zip := range zips {
		if _, err := service.ExtractNested(ctx, zip); err != nil {
			return nil, fmt.Errorf("Productizer.Ingest: %w", err)
		}
	}

	rawDirs, err := FindRawDirs(workdir)
	if err != nil {
		return nil, fmt.Errorf("Productizer.Ingest: %w", err)
	}
	if len(rawDirs) == 0 {
		return nil, service.MakeFatal(fmt.Errorf("Productizer.Ingest: no ALOS2 product found in %s", workdir))
	}

	var products []*Product
	var firstErr error
	for _, rawDir := range rawDirs {
		p, err := pz.ingestRawDir(ctx, rawDir, downloadSource, pathNumber)
		if err != nil {
			log.Logger(ctx).Sugar().Errorf("failed to ingest %s: %v", rawDir, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		products = append(products, p)
	}

	zips, _ = service.GlobFiles(workdir, "*.zip")
	for _, zip := range zips {
		if err := os.Remove(zip); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to remove %s: %v", zip, err)
		}
	}
	if firstErr != nil {
		return products, fmt.Errorf("Productizer.Ingest: %w", firstErr)
	}
	return products, nil
}

func (pz *Productizer) ingestRawDir(ctx context.Context, rawDir, downloadSource, pathNumber string) (*Product, error) {
	name, err := common.DatasetNameFromDir(rawDir)
	if err != nil {
		return nil, service.MakeFatal(err)
	}
	log.Logger(ctx).Sugar().Infof("productizing %s from %s", name, rawDir)
	p, err := pz.Productize(ctx, name, rawDir, downloadSource)
	if err != nil {
		return nil, err
	}
	if pathNumber != "" {
		if err := common.CheckPathNumber(pathNumber, p.Metadata.TrackNumber); err != nil {
			return nil, service.MakeFatal(err)
		}
	}
	if err := pz.WriteProduct(p); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(rawDir); err != nil {
		log.Logger(ctx).Sugar().Warnf("failed to remove %s: %v", rawDir, err)
	}
	return p, nil
}
