package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/ingest"
	"github.com/airbusgeo/alos2-ingester/interface/provider"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/araddon/dateparse"
	"go.uber.org/zap"
)

type config struct {
	Job         common.IngestJob
	ContextFile string
	EnvFile     string
	ErrorDir    string
}

func newAppConfig() (*config, error) {
	config := config{}
	var source, start, end, extra string
	flag.StringVar(&source, "source", "", "source of the archive (url, auig2, sentinelasia, gportal, md)")
	flag.StringVar(&config.Job.Archive.URL, "url", "", "url of the archive (url and gportal sources)")
	flag.StringVar(&config.Job.Archive.OrderID, "order-id", "", "AUIG2 order id (auig2 source)")
	flag.StringVar(&config.Job.Archive.DataID, "data-id", "", "Sentinel-Asia data id (sentinelasia source)")
	flag.StringVar(&config.Job.Archive.Name, "name", "", "name of the archive (optional)")
	flag.StringVar(&config.Job.EORID, "eor-id", "", "Sentinel-Asia EOR id: submit one job per file of the EOR (sentinelasia source)")
	flag.StringVar(&start, "start", "", "start of the observation window: submit one job per file observed in the window (sentinelasia source)")
	flag.StringVar(&end, "end", "", "end of the observation window (sentinelasia source)")
	flag.StringVar(&config.Job.Directory, "dir", "", "directory of the raw files (md source)")
	flag.StringVar(&config.Job.Date, "date", "", "date of the raw files, yymmdd (md source)")
	flag.StringVar(&config.Job.PathNumber, "path-number", "", "expected path number of the products (optional)")
	flag.StringVar(&extra, "extra", "", "json object of extra metadata added to the products (optional)")
	flag.StringVar(&config.ContextFile, "context", ingest.ContextFile, "job context, used for the parameters that are not defined")
	flag.StringVar(&config.EnvFile, "env", ".env", "environment file (optional)")
	flag.StringVar(&config.ErrorDir, "error-dir", ".", "directory of the error files")
	flag.Parse()

	var err error
	if source != "" {
		if config.Job.Source, err = common.ParseSource(source); err != nil {
			return nil, err
		}
	}
	if config.Job.Start, err = parseDate(start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if config.Job.End, err = parseDate(end); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &config.Job.Archive.Extra); err != nil {
			return nil, fmt.Errorf("extra: %w", err)
		}
	}
	return &config, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func main() {
	ctx := context.Background()
	config, err := newAppConfig()
	if err == nil {
		err = run(ctx, config)
	}
	if err != nil {
		errorDir := "."
		if config != nil {
			errorDir = config.ErrorDir
		}
		if e := service.WriteErrorFiles(errorDir, err); e != nil {
			log.Logger(ctx).Warn("unable to write the error files", zap.Error(e))
		}
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context, config *config) error {
	cfg, err := ingest.LoadConfig(config.EnvFile)
	if err != nil {
		return err
	}

	jc, err := ingest.LoadContext(config.ContextFile)
	if err != nil {
		return err
	}
	jc.Complete(&config.Job)

	d, closeDriver, err := cfg.NewDriver(ctx)
	if err != nil {
		return err
	}
	defer closeDriver()

	// Credentials of the job context take precedence
	if creds := jc.AUIG2Credentials(); creds.Username != "" {
		auig2 := provider.NewAUIG2ImageProvider(creds)
		auig2.Timeout = cfg.Portals.Timeout
		d.Providers[common.SourceAUIG2] = auig2
	}
	if d.WorkDir, err = filepath.Abs(d.WorkDir); err != nil {
		return err
	}

	res, err := d.Run(ctx, config.Job)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

// printResult writes the indented JSON of the result of the job
func printResult(w io.Writer, res interface{}) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("printResult: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
