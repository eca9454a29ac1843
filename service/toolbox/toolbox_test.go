package toolbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
)

func TestExecRunner(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewExecRunner("ALOS2_TEST_VAR=hello")

	if err := r.Run(ctx, dir, "sh", "-c", `echo "$ALOS2_TEST_VAR" > out.txt`); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(b)) != "hello" {
		t.Errorf("expected hello, got %s", b)
	}

	// Arguments are never interpreted by a shell
	if err := r.Run(ctx, dir, "touch", "a file; rm -rf out.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a file; rm -rf out.txt")); err != nil {
		t.Error(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.txt")); err != nil {
		t.Error(err)
	}
}

func TestExecRunnerErrors(t *testing.T) {
	ctx := context.Background()
	r := NewExecRunner()

	err := r.Run(ctx, "", "sh", "-c", "echo 'ERROR 4: FATAL ERROR: corrupted file' >&2; exit 1")
	if err == nil || !service.Fatal(err) {
		t.Errorf("fatal error expected, got %v", err)
	} else if !strings.Contains(err.Error(), "corrupted file") {
		t.Errorf("last error expected in %v", err)
	}

	err = r.Run(ctx, "", "sh", "-c", "echo 'ERROR 1: TEMPORARY ERROR: no space left' >&2; exit 1")
	if err == nil || !service.Temporary(err) {
		t.Errorf("temporary error expected, got %v", err)
	}

	err = r.Run(ctx, "", "sh", "-c", "exit 2")
	if err == nil || service.Temporary(err) || service.Fatal(err) {
		t.Errorf("untagged error expected, got %v", err)
	}

	if err := r.Run(ctx, "", "/nonexistent/gdal_translate"); err == nil {
		t.Error("error expected")
	}
}

func TestExecRunnerCancel(t *testing.T) {
	ctx, cncl := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cncl()
	start := time.Now()
	err := NewExecRunner().Run(ctx, "", "sleep", "10")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline exceeded expected, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("process not killed")
	}
}

func TestNewFilter(t *testing.T) {
	if _, ok := NewFilter("/usr/bin/gdal2tiles.py").(*log.PythonLogFilter); !ok {
		t.Error("python filter expected")
	}
	if _, ok := NewFilter("python3").(*log.PythonLogFilter); !ok {
		t.Error("python filter expected")
	}
	if _, ok := NewFilter("gdal_translate").(*log.CmdLogFilter); !ok {
		t.Error("cmd filter expected")
	}
}

func TestWrapError(t *testing.T) {
	f := &log.PythonLogFilter{}
	if err := WrapError(f, nil); err != nil {
		t.Error("nil expected")
	}
	base := errors.New("exit status 1")
	if err := WrapError(f, base); err != base {
		t.Error("unchanged error expected")
	}
	f.Filter("urllib.error.URLError: <urlopen error [Errno -3] Temporary failure in name resolution>", 0)
	err := WrapError(f, base)
	if !service.Temporary(err) || !errors.Is(err, base) {
		t.Errorf("temporary error expected, got %v", err)
	}
}
