package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/ingest"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
	"go.uber.org/zap"
)

type config struct {
	Root         string
	FolderRegexp string
	ListingFile  string
	PBSFile      string
	DryRun       bool
	EnvFile      string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Root, "root", "", "root of the archive tree to scrape")
	flag.StringVar(&config.FolderRegexp, "folder-regexp", ingest.DefaultScrapeFolderRegexp, "regexp the folders of the raw files must match")
	flag.StringVar(&config.ListingFile, "listing", "", "write the list of the (directory, date) found in this csv file (optional)")
	flag.StringVar(&config.PBSFile, "pbs", "", "submit a PBS batch job per (directory, date) with qsub (optional, default: submit ingest jobs)")
	flag.BoolVar(&config.DryRun, "dry-run", false, "do not submit any job")
	flag.StringVar(&config.EnvFile, "env", ".env", "environment file (optional)")
	flag.Parse()

	if config.Root == "" {
		return nil, fmt.Errorf("missing root config flag")
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

	targets, err := ingest.Scrape(config.Root, config.FolderRegexp)
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("%d (directory, date) found in %s", len(targets), config.Root)
	if config.ListingFile != "" {
		if err := ingest.WriteCSV(config.ListingFile, targets); err != nil {
			return err
		}
	}
	if config.DryRun || len(targets) == 0 {
		return nil
	}

	if config.PBSFile != "" {
		return ingest.QsubSubmitter{Runner: toolbox.NewExecRunner(), PBSFile: config.PBSFile}.Submit(ctx, targets)
	}

	cfg, err := ingest.LoadConfig(config.EnvFile)
	if err != nil {
		return err
	}
	submitter, stop, err := cfg.NewSubmitter(ctx, common.SourceMetadata)
	if err != nil {
		return err
	}
	defer stop()
	if submitter == nil {
		return fmt.Errorf("missing configuration for the job submitter (mozart url or job topic)")
	}
	ids, err := ingest.ScrapeSubmitter{
		Submitter: submitter,
		JobTag:    cfg.Jobs.Tag,
		JobQueue:  cfg.Jobs.Queue,
	}.Submit(ctx, targets)
	log.Logger(ctx).Sugar().Infof("%d/%d jobs submitted", len(ids), len(targets))
	return err
}
