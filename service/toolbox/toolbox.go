package toolbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

// Runner runs a command line tool (gdal_translate, gdal2tiles.py...) with an explicit argument vector.
// The arguments are never interpreted by a shell.
type Runner interface {
	Run(ctx context.Context, workdir, name string, args ...string) error
}

var temporaryErrs = []string{
	"temporary failure",
	"timed out",
	"try again",
}

// NewFilter returns the log filter suited to the tool
func NewFilter(name string) log.ToolFilter {
	base := filepath.Base(name)
	if strings.HasSuffix(base, ".py") || strings.HasPrefix(base, "python") {
		return &log.PythonLogFilter{}
	}
	return &log.CmdLogFilter{}
}

// WrapError wraps the error with the last error logged by the tool.
// "FATAL ERROR:" makes it fatal, "TEMPORARY ERROR:" or a network failure makes it temporary.
func WrapError(filter log.ToolFilter, err error) error {
	if err == nil || filter == nil || filter.LastError() == "" {
		return err
	}
	lastError := filter.LastError()
	err = fmt.Errorf("%w (%v)", err, lastError)
	if strings.Contains(lastError, "FATAL ERROR:") {
		return service.MakeFatal(err)
	}
	if strings.Contains(lastError, "TEMPORARY ERROR:") {
		return service.MakeTemporary(err)
	}
	lower := strings.ToLower(lastError)
	for _, tmpErr := range temporaryErrs {
		if strings.Contains(lower, tmpErr) {
			return service.MakeTemporary(err)
		}
	}
	return err
}
