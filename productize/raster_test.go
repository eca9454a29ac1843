package productize_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/fogleman/gg"
)

func TestTilesRetry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := &fakeRunner{failZooms: map[int]bool{8: true, 7: true}}
	r := productize.Raster{Runner: runner}

	zmax, err := r.Tiles(ctx, filepath.Join(dir, "tiles", "HH"), filepath.Join(dir, "in_disp.tif"), 0, 8)
	if err != nil {
		t.Fatal(err)
	}
	if zmax != 6 {
		t.Errorf("expected max zoom 6, got %d", zmax)
	}
	calls := runner.commands("gdal2tiles.py")
	if len(calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(calls))
	}
	for i, z := range []string{"0-8", "0-7", "0-6"} {
		if calls[i][2] != z {
			t.Errorf("call %d: expected zoom %s, got %s", i, z, calls[i][2])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "tiles", "HH", "6")); err != nil {
		t.Error(err)
	}
}

func TestTilesExhausted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := &fakeRunner{failZooms: map[int]bool{3: true, 2: true, 1: true}}
	r := productize.Raster{Runner: runner}

	if _, err := r.Tiles(ctx, dir, filepath.Join(dir, "in.tif"), 0, 3); !errors.Is(err, productize.ErrTilesExhausted) {
		t.Errorf("ErrTilesExhausted expected, got %v", err)
	}
	// zmax == zmin: no attempt
	if _, err := r.Tiles(ctx, dir, filepath.Join(dir, "in.tif"), 4, 4); !errors.Is(err, productize.ErrTilesExhausted) {
		t.Errorf("ErrTilesExhausted expected, got %v", err)
	}
	if n := len(runner.commands("gdal2tiles.py")); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestTilesCancelled(t *testing.T) {
	ctx, cncl := context.WithCancel(context.Background())
	cncl()
	runner := &fakeRunner{failZooms: map[int]bool{8: true}}
	r := productize.Raster{Runner: runner}
	if _, err := r.Tiles(ctx, t.TempDir(), "in.tif", 0, 8); !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled expected, got %v", err)
	}
}

func TestDisplayAndBrowse(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	runner := &fakeRunner{}
	r := productize.Raster{Runner: runner}
	in := filepath.Join(dir, "IMG-HH-ALOS2236492900-180918-UBSR1.5GUA.tif")

	disp, err := r.Display(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if disp != filepath.Join(dir, "IMG-HH-ALOS2236492900-180918-UBSR1.5GUA_disp.tif") {
		t.Errorf("unexpected output %s", disp)
	}
	browse, small, err := r.Browse(ctx, disp)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(browse) != "IMG-HH-ALOS2236492900-180918-UBSR1.5GUA_disp.browse.png" ||
		filepath.Base(small) != "IMG-HH-ALOS2236492900-180918-UBSR1.5GUA_disp.browse_small.png" {
		t.Errorf("unexpected outputs %s %s", browse, small)
	}
	calls := runner.commands("gdal_translate")
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	expected := []string{"gdal_translate", "-of", "PNG", "-outsize", "10%", "10%", disp, browse}
	if len(calls[1]) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, calls[1])
	}
	for i := range expected {
		if calls[1][i] != expected[i] {
			t.Errorf("arg %d: expected %s, got %s", i, expected[i], calls[1][i])
		}
	}

	// Thumbnail keeps the aspect ratio (200x100 => 250x125)
	img, err := gg.LoadPNG(small)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 250 || img.Bounds().Dy() != 125 {
		t.Errorf("expected 250x125, got %v", img.Bounds())
	}
}

func TestBrowseWBD(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	r := productize.Raster{Runner: runner}
	if _, _, err := r.Browse(context.Background(), filepath.Join(dir, "ALOS2-WBD.jpg")); err != nil {
		t.Fatal(err)
	}
	calls := runner.commands("gdal_translate")
	if len(calls) != 1 || calls[0][4] != "100%" || calls[0][5] != "40%" {
		t.Errorf("unexpected call %v", calls)
	}
}
