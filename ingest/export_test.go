package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
)

func TestStorageExporter(t *testing.T) {
	ctx := context.Background()
	p := &productize.Product{Name: testDatasetL15, Dir: filepath.Join(t.TempDir(), testDatasetL15)}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.MetadataFile(), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	distdir := t.TempDir()
	ss, err := service.NewStorageStrategy(ctx, distdir, 2)
	if err != nil {
		t.Fatal(err)
	}
	uri, err := StorageExporter{Storage: ss}.Export(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(uri) != testDatasetL15 {
		t.Errorf("unexpected uri: %s", uri)
	}
	if _, err := os.Stat(filepath.Join(distdir, testDatasetL15, testDatasetL15+".met.json")); err != nil {
		t.Errorf("metadata not exported: %v", err)
	}
}

func TestScriptExporter(t *testing.T) {
	runner := &qsubRunner{}
	dir := t.TempDir()
	p := &productize.Product{Name: testDatasetL15, Dir: filepath.Join(dir, testDatasetL15)}
	e := ScriptExporter{Runner: runner, Script: "/opt/hysds/scripts/ingest_dataset.py", DatasetsFile: "/opt/hysds/datasets.json"}
	location, err := e.Export(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if location != testDatasetL15 {
		t.Errorf("unexpected location: %s", location)
	}
	expected := [][]string{{"/opt/hysds/scripts/ingest_dataset.py", p.Dir, "/opt/hysds/datasets.json"}}
	if !reflect.DeepEqual(runner.calls, expected) {
		t.Errorf("expecting %v, got %v", expected, runner.calls)
	}

	runner.err = errors.New("exit status 1")
	if _, err := e.Export(context.Background(), p); err == nil {
		t.Error("expecting error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip(err)
	}
	for path, expected := range map[string]string{
		"~/hysds/datasets.json": filepath.Join(home, "hysds/datasets.json"),
		"/etc/datasets.json":    "/etc/datasets.json",
		"~user/datasets.json":   "~user/datasets.json",
	} {
		if actual := expandHome(path); actual != expected {
			t.Errorf("%s: expecting %s, got %s", path, expected, actual)
		}
	}
}
