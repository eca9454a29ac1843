package productize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
	"github.com/fogleman/gg"
)

// ErrTilesExhausted is returned when the tiling failed for every zoom level
var ErrTilesExhausted = errors.New("unable to generate tiles")

const (
	gdalTranslate = "gdal_translate"
	gdal2Tiles    = "gdal2tiles.py"

	smallBrowseSize = 250
)

// Raster drives the GDAL command-line tools
type Raster struct {
	Runner toolbox.Runner
}

func baseName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

// Display converts the amplitude image to a displayable 8-bit GeoTIFF (<base>_disp.tif)
func (r Raster) Display(ctx context.Context, in string) (string, error) {
	out := baseName(in) + "_disp.tif"
	if err := r.Runner.Run(ctx, filepath.Dir(in), gdalTranslate,
		"-of", "GTiff", "-ot", "Byte", "-scale", "0", "7500", "0", "255", "-a_nodata", "0", in, out); err != nil {
		return "", fmt.Errorf("Raster.Display: %w", err)
	}
	return out, nil
}

// Browse creates the browse image (<base>.browse.png) and its thumbnail (<base>.browse_small.png)
func (r Raster) Browse(ctx context.Context, in string) (browse, small string, err error) {
	browse = baseName(in) + ".browse.png"
	small = baseName(in) + ".browse_small.png"

	args := []string{"-of", "PNG"}
	name := filepath.Base(in)
	switch {
	case strings.Contains(name, "tif"):
		args = append(args, "-outsize", "10%", "10%")
	case strings.Contains(name, "WBD"):
		args = append(args, "-outsize", "100%", "40%")
	}
	args = append(args, in, browse)
	if err := r.Runner.Run(ctx, filepath.Dir(in), gdalTranslate, args...); err != nil {
		return "", "", fmt.Errorf("Raster.Browse: %w", err)
	}
	if err := Thumbnail(browse, small, smallBrowseSize); err != nil {
		return "", "", fmt.Errorf("Raster.Browse: %w", err)
	}
	return browse, small, nil
}

// Thumbnail resizes the image to fit in a size x size square, keeping its aspect ratio
func Thumbnail(in, out string, size int) error {
	img, err := gg.LoadImage(in)
	if err != nil {
		return service.MakeFatal(fmt.Errorf("Thumbnail: %w", err))
	}
	w, h := thumbnailSize(img.Bounds(), size)
	dc := gg.NewContext(w, h)
	dc.Scale(float64(w)/float64(img.Bounds().Dx()), float64(h)/float64(img.Bounds().Dy()))
	dc.DrawImage(img, -img.Bounds().Min.X, -img.Bounds().Min.Y)
	if err := dc.SavePNG(out); err != nil {
		return fmt.Errorf("Thumbnail: %w", err)
	}
	return nil
}

func thumbnailSize(b image.Rectangle, size int) (int, int) {
	if b.Dx() == 0 || b.Dy() == 0 {
		return 1, 1
	}
	ratio := math.Min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	w := int(math.Max(1, math.Round(float64(b.Dx())*ratio)))
	h := int(math.Max(1, math.Round(float64(b.Dy())*ratio)))
	return w, h
}

// Tiles generates the tiles of the image in outDir for the zoom levels [zmin, zmax].
// gdal2tiles may fail on the highest zoom levels: zmax is decremented until it succeeds (while zmax > zmin).
// It returns the maximum zoom level achieved or ErrTilesExhausted.
func (r Raster) Tiles(ctx context.Context, outDir, in string, zmin, zmax int) (int, error) {
	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return 0, fmt.Errorf("Raster.Tiles: %w", err)
	}
	for ; zmax > zmin; zmax-- {
		err := r.Runner.Run(ctx, filepath.Dir(in), gdal2Tiles,
			"-z", fmt.Sprintf("%d-%d", zmin, zmax), "-p", "mercator", "-a", "0,0,0", in, outDir)
		if err == nil {
			return zmax, nil
		}
		if ctx.Err() != nil {
			return 0, fmt.Errorf("Raster.Tiles: %w", ctx.Err())
		}
		log.Logger(ctx).Sugar().Warnf("failed to generate tiles of %s with zoom %d-%d: %v", in, zmin, zmax, err)
	}
	return 0, fmt.Errorf("Raster.Tiles[%s]: %w", in, ErrTilesExhausted)
}
