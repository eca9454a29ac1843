package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
)

// Exporter publishes a product directory
type Exporter interface {
	// Export the product and returns its location
	Export(ctx context.Context, p *productize.Product) (string, error)
}

// StorageExporter uploads the product directory to an object storage (gs://, s3://, local)
type StorageExporter struct {
	Storage service.Storage
}

// Export implements Exporter
func (e StorageExporter) Export(ctx context.Context, p *productize.Product) (string, error) {
	uri, err := e.Storage.SaveProduct(ctx, p.Name, p.Dir)
	if err != nil {
		return "", fmt.Errorf("StorageExporter.Export: %w", err)
	}
	return uri, nil
}

// ScriptExporter ingests the product directory into the catalog with the HySDS ingestion script:
// <Script> <product directory> <DatasetsFile>
type ScriptExporter struct {
	Runner       toolbox.Runner
	Script       string
	DatasetsFile string
}

// Export implements Exporter
func (e ScriptExporter) Export(ctx context.Context, p *productize.Product) (string, error) {
	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return "", fmt.Errorf("ScriptExporter.Export: %w", err)
	}
	if err := e.Runner.Run(ctx, filepath.Dir(dir), expandHome(e.Script), dir, expandHome(e.DatasetsFile)); err != nil {
		return "", fmt.Errorf("ScriptExporter.Export: %w", err)
	}
	return p.Name, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
