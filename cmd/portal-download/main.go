package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/ingest"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

type config struct {
	Source  common.Source
	Archive common.Archive
	OutDir  string
	EnvFile string
}

func newAppConfig() (*config, error) {
	config := config{}
	var source string
	flag.StringVar(&source, "source", "", "portal (url, auig2, sentinelasia, gportal)")
	flag.StringVar(&config.Archive.URL, "url", "", "url of the archive (url and gportal sources)")
	flag.StringVar(&config.Archive.OrderID, "order-id", "", "AUIG2 order id (auig2 source)")
	flag.StringVar(&config.Archive.DataID, "data-id", "", "Sentinel-Asia data id (sentinelasia source)")
	flag.StringVar(&config.Archive.Name, "name", "", "name of the archive (optional)")
	flag.StringVar(&config.OutDir, "outdir", ".", "output directory")
	flag.StringVar(&config.EnvFile, "env", ".env", "environment file (optional)")
	flag.Parse()

	var err error
	if config.Source, err = common.ParseSource(source); err != nil {
		return nil, err
	}
	if config.Source == common.SourceMetadata {
		return nil, fmt.Errorf("nothing to download from source %s", config.Source)
	}
	if err := (common.IngestJob{Source: config.Source, Archive: config.Archive}).Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	cfg, err := ingest.LoadConfig(config.EnvFile)
	if err != nil {
		return err
	}
	providers, _, err := cfg.NewProviders(ctx)
	if err != nil {
		return err
	}
	prov := providers[config.Source]
	if err := os.MkdirAll(config.OutDir, 0755); err != nil {
		return err
	}

	// Portals do not always return the size of the archive: the bar displays the bytes written in outdir.
	bar := progressbar.DefaultBytes(-1, prov.Name())
	offset := dirSize(config.OutDir)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Set64(dirSize(config.OutDir) - offset)
			}
		}
	}()

	path, err := prov.Download(ctx, config.Archive, config.OutDir)
	close(done)
	bar.Set64(dirSize(config.OutDir) - offset)
	bar.Finish()
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, path)
	return nil
}

func dirSize(dir string) int64 {
	var size int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
