package productize

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/godal"
)

func TestHullFromRows(t *testing.T) {
	// 5x4 raster, geotransform: origin (10, 50), pixel 0.1 x -0.1
	rows := [][]float64{
		{0, 0, 0, 0, 0},
		{0, 1, 1, 1, 0},
		{0, 1, 0, 1, 0},
		{0, 0, 1, 0, 0},
	}
	gt := [6]float64{10, 0.1, 0, 50, 0, -0.1}
	ring, err := hullFromRows(5, 4, gt, func(y int, row []float64) error {
		copy(row, rows[y])
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("ring is not closed")
	}
	// hull of (1,1) (3,1) (1,2) (3,2) (2,3): 5 vertices + closing point
	if len(ring) != 6 {
		t.Errorf("expected 6 points, got %v", ring)
	}
	for _, p := range ring {
		if p[0] < 10.1-1e-9 || p[0] > 10.3+1e-9 || p[1] > 49.9+1e-9 || p[1] < 49.7-1e-9 {
			t.Errorf("unexpected point %v", p)
		}
	}
}

func TestHullFromRowsEmpty(t *testing.T) {
	_, err := hullFromRows(3, 3, [6]float64{0, 1, 0, 0, 0, -1}, func(y int, row []float64) error {
		for i := range row {
			row[i] = 0
		}
		return nil
	})
	if !errors.Is(err, ErrEmptyFootprint) || !service.Fatal(err) {
		t.Errorf("fatal ErrEmptyFootprint expected, got %v", err)
	}

	readErr := errors.New("read error")
	if _, err := hullFromRows(3, 3, [6]float64{}, func(y int, row []float64) error { return readErr }); !errors.Is(err, readErr) {
		t.Errorf("read error expected, got %v", err)
	}
}

func TestThumbnailSize(t *testing.T) {
	for _, tc := range []struct {
		w, h, ew, eh int
	}{
		{1000, 500, 250, 125},
		{100, 400, 63, 250},
		{100, 100, 250, 250},
		{5000, 1, 250, 1},
	} {
		w, h := thumbnailSize(image.Rect(0, 0, tc.w, tc.h), 250)
		if w != tc.ew || h != tc.eh {
			t.Errorf("%dx%d: expected %dx%d, got %dx%d", tc.w, tc.h, tc.ew, tc.eh, w, h)
		}
	}
}

func createRaster(t *testing.T, path string, w, h int, valid image.Rectangle) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, w, h)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()
	if err := ds.SetGeoTransform([6]float64{139, 0.01, 0, 36, 0, -0.01}); err != nil {
		t.Fatal(err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		t.Fatal(err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, w*h)
	for y := valid.Min.Y; y < valid.Max.Y; y++ {
		for x := valid.Min.X; x < valid.Max.X; x++ {
			buf[y*w+x] = 200
		}
	}
	if err := ds.Bands()[0].Write(0, 0, buf, w, h); err != nil {
		t.Fatal(err)
	}
}

func TestConvexHullFootprinter(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "disp.tif")
	createRaster(t, raster, 100, 50, image.Rect(10, 10, 60, 40))

	ring, err := ConvexHullFootprinter{}.Footprint(context.Background(), raster)
	if err != nil {
		t.Fatal(err)
	}
	if len(ring) != 5 {
		t.Fatalf("expected a rectangle, got %v", ring)
	}
	for _, p := range ring {
		if p[0] < 139.08 || p[0] > 139.62 || p[1] < 35.58 || p[1] > 35.92 {
			t.Errorf("unexpected point %v", p)
		}
	}
}

func TestConvexHullFootprinterEmpty(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "zero.tif")
	createRaster(t, raster, 20, 20, image.Rectangle{})

	if _, err := (ConvexHullFootprinter{}).Footprint(context.Background(), raster); !errors.Is(err, ErrEmptyFootprint) {
		t.Errorf("ErrEmptyFootprint expected, got %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".*"))
	if len(matches) != 0 {
		t.Errorf("temporary files not removed: %v", matches)
	}
}

func TestWriteMaskEmpty(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "zero.tif")
	createRaster(t, raster, 20, 20, image.Rectangle{})
	err := writeMask(raster, filepath.Join(dir, "zero.vrt"), filepath.Join(dir, "mask.tif"))
	if !errors.Is(err, ErrEmptyFootprint) {
		t.Errorf("ErrEmptyFootprint expected, got %v", err)
	}
}

// polygonizeRunner writes a canned gdal_polygonize output
type polygonizeRunner struct {
	geojson string
	args    []string
}

func (r *polygonizeRunner) Run(ctx context.Context, workdir, name string, args ...string) error {
	if name != gdalPolygonize {
		return errors.New("unexpected command " + name)
	}
	r.args = args
	return os.WriteFile(args[len(args)-1], []byte(r.geojson), 0644)
}

func TestMaskPolygonizeFootprinter(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "disp.tif")
	createRaster(t, raster, 100, 50, image.Rect(10, 10, 60, 40))

	runner := &polygonizeRunner{geojson: `{"type": "FeatureCollection", "features": [
		{"type": "Feature", "properties": {"DN": 1}, "geometry": {"type": "Polygon", "coordinates": [
			[[139.1, 35.9], [139.3, 35.9], [139.6, 35.9], [139.6, 35.6], [139.1, 35.6], [139.1, 35.9]],
			[[139.2, 35.8], [139.3, 35.8], [139.3, 35.7], [139.2, 35.8]]]}},
		{"type": "Feature", "properties": {"DN": 1}, "geometry": {"type": "Polygon", "coordinates": [
			[[0, 0], [10, 0], [10, 10], [0, 10], [0, 0]]]}}]}`}

	ring, err := MaskPolygonizeFootprinter{Runner: runner}.Footprint(context.Background(), raster)
	if err != nil {
		t.Fatal(err)
	}
	if len(runner.args) < 3 || runner.args[1] != "-f" || runner.args[2] != "GeoJSON" {
		t.Errorf("unexpected gdal_polygonize arguments %v", runner.args)
	}
	if len(ring) != 5 || ring[0] != ring[4] {
		t.Fatalf("closed simplified rectangle expected, got %v", ring)
	}
	for _, p := range ring {
		if p[0] < 139.1 || p[0] > 139.6 || p[1] < 35.6 || p[1] > 35.9 {
			t.Errorf("point %v is not in the first feature", p)
		}
		if p == [2]float64{139.3, 35.9} {
			t.Errorf("collinear point %v not simplified", p)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, ".*"))
	if len(matches) != 0 {
		t.Errorf("temporary files not removed: %v", matches)
	}
}

func TestMaskPolygonizeFootprinterNoPolygon(t *testing.T) {
	dir := t.TempDir()
	raster := filepath.Join(dir, "disp.tif")
	createRaster(t, raster, 20, 20, image.Rect(5, 5, 15, 15))

	runner := &polygonizeRunner{geojson: `{"type": "FeatureCollection", "features": []}`}
	_, err := MaskPolygonizeFootprinter{Runner: runner}.Footprint(context.Background(), raster)
	if !service.Fatal(err) {
		t.Errorf("fatal error expected, got %v", err)
	}
}
