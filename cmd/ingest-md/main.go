package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/ingest"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"go.uber.org/zap"
)

type config struct {
	Directory string
	Date      string
	Files     []string
	EnvFile   string
	ErrorDir  string
}

func newAppConfig() (*config, error) {
	config := config{}
	var files string
	flag.StringVar(&config.Directory, "dir", "", "directory of the raw files")
	flag.StringVar(&config.Date, "date", "", "date of the raw files to ingest, yymmdd as in the image filenames")
	flag.StringVar(&files, "files", "", "comma-separated list of the raw files (optional, default: the files of the directory matching the date)")
	flag.StringVar(&config.EnvFile, "env", ".env", "environment file (optional)")
	flag.StringVar(&config.ErrorDir, "error-dir", ".", "directory of the error files")
	flag.Parse()

	if config.Directory == "" {
		return nil, fmt.Errorf("missing dir config flag")
	}
	if config.Date == "" && files == "" {
		return nil, fmt.Errorf("missing date or files config flag")
	}
	if files != "" {
		config.Files = strings.Split(files, ",")
	}
	return &config, nil
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
	d, closeDriver, err := cfg.NewDriver(ctx)
	if err != nil {
		return err
	}
	defer closeDriver()
	if d.WorkDir, err = filepath.Abs(d.WorkDir); err != nil {
		return err
	}

	res, err := d.Run(ctx, common.IngestJob{
		Source:    common.SourceMetadata,
		Directory: config.Directory,
		Date:      config.Date,
		Files:     config.Files,
	})
	if err != nil {
		return err
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Fprintln(os.Stdout, string(b))
	return nil
}
