package productize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/geometry"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
	"github.com/airbusgeo/godal"
	"github.com/google/uuid"
)

// ErrEmptyFootprint is returned when the raster does not have any valid pixel
var ErrEmptyFootprint = errors.New("no valid pixel found in raster")

// Footprinter computes the footprint of a raster as a closed ring of [lon, lat] in EPSG:4326
type Footprinter interface {
	Footprint(ctx context.Context, raster string) ([][2]float64, error)
}

var warpSwitches = []string{"-t_srs", "EPSG:4326", "-dstnodata", "0", "-dstalpha"}

func init() {
	godal.RegisterAll()
}

// warp4326 creates a VRT of the raster reprojected in EPSG:4326
func warp4326(raster, vrt string) (*godal.Dataset, error) {
	src, err := godal.Open(raster)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("open %s: %w", raster, err))
	}
	defer src.Close()
	ds, err := src.Warp(vrt, warpSwitches, godal.VRT)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("warp %s: %w", raster, err))
	}
	return ds, nil
}

// tmpFile returns a unique path next to the raster
func tmpFile(raster, ext string) string {
	return filepath.Join(filepath.Dir(raster), "."+strings.TrimSuffix(filepath.Base(raster), filepath.Ext(raster))+"-"+uuid.New().String()+ext)
}

// ConvexHullFootprinter computes the convex hull of the valid pixels of the raster
type ConvexHullFootprinter struct{}

// Footprint implements Footprinter
func (ConvexHullFootprinter) Footprint(ctx context.Context, raster string) ([][2]float64, error) {
	vrt := tmpFile(raster, ".vrt")
	defer os.Remove(vrt)
	ds, err := warp4326(raster, vrt)
	if err != nil {
		return nil, fmt.Errorf("ConvexHullFootprinter: %w", err)
	}
	defer ds.Close()

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("ConvexHullFootprinter.GeoTransform: %w", err))
	}
	band := ds.Bands()[0]
	st := ds.Structure()
	log.Logger(ctx).Sugar().Debugf("computing footprint of %s (%dx%d)", raster, st.SizeX, st.SizeY)

	ring, err := hullFromRows(st.SizeX, st.SizeY, gt, func(y int, row []float64) error {
		return band.Read(0, y, row, st.SizeX, 1)
	})
	if err != nil {
		return nil, fmt.Errorf("ConvexHullFootprinter[%s]: %w", raster, err)
	}
	return ring, nil
}

// hullFromRows keeps the first and last valid pixel of each row and returns the convex hull of these points
func hullFromRows(width, height int, gt [6]float64, readRow func(y int, row []float64) error) ([][2]float64, error) {
	var points [][2]float64
	row := make([]float64, width)
	for y := 0; y < height; y++ {
		if err := readRow(y, row); err != nil {
			return nil, fmt.Errorf("read row %d: %w", y, err)
		}
		first, last := -1, -1
		for x, v := range row {
			if v != 0 {
				if first < 0 {
					first = x
				}
				last = x
			}
		}
		if first < 0 {
			continue
		}
		points = append(points, pixelToGeo(gt, first, y))
		if last != first {
			points = append(points, pixelToGeo(gt, last, y))
		}
	}
	if len(points) == 0 {
		return nil, service.MakeFatal(ErrEmptyFootprint)
	}
	ring, err := geometry.ConvexHull(points)
	if err != nil {
		return nil, service.MakeFatal(err)
	}
	return ring, nil
}

func pixelToGeo(gt [6]float64, px, py int) [2]float64 {
	return [2]float64{gt[0] + float64(px)*gt[1], gt[3] + float64(py)*gt[5]}
}

// MaskPolygonizeFootprinter polygonizes the mask of the valid pixels of the raster
// and simplifies the exterior ring of the first polygon
type MaskPolygonizeFootprinter struct {
	Runner    toolbox.Runner
	Tolerance float64 // in degrees (default: 0.001)
}

const gdalPolygonize = "gdal_polygonize.py"

// Footprint implements Footprinter
func (f MaskPolygonizeFootprinter) Footprint(ctx context.Context, raster string) ([][2]float64, error) {
	vrt, mask, geojson := tmpFile(raster, ".vrt"), tmpFile(raster, "_mask.tif"), tmpFile(raster, ".geojson")
	defer func() {
		for _, file := range []string{vrt, mask, geojson} {
			os.Remove(file)
		}
	}()

	if err := writeMask(raster, vrt, mask); err != nil {
		return nil, fmt.Errorf("MaskPolygonizeFootprinter: %w", err)
	}
	if err := f.Runner.Run(ctx, filepath.Dir(raster), gdalPolygonize, mask, "-f", "GeoJSON", geojson); err != nil {
		return nil, fmt.Errorf("MaskPolygonizeFootprinter: %w", err)
	}
	b, err := os.ReadFile(geojson)
	if err != nil {
		return nil, fmt.Errorf("MaskPolygonizeFootprinter: %w", err)
	}
	g, err := service.UnmarshalGeometry(b)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("MaskPolygonizeFootprinter: %w", err))
	}
	ring, err := geometry.FirstPolygon(g)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("MaskPolygonizeFootprinter: %w", err))
	}
	tolerance := f.Tolerance
	if tolerance == 0 {
		tolerance = 0.001
	}
	if ring, err = geometry.SimplifyRing(ring, tolerance); err != nil {
		return nil, service.MakeFatal(fmt.Errorf("MaskPolygonizeFootprinter: %w", err))
	}
	return ring, nil
}

// writeMask writes a 1-bit mask of the valid pixels of the raster (reprojected in EPSG:4326), 0 being nodata
func writeMask(raster, vrt, mask string) error {
	ds, err := warp4326(raster, vrt)
	if err != nil {
		return err
	}
	defer ds.Close()
	gt, err := ds.GeoTransform()
	if err != nil {
		return service.MakeFatal(fmt.Errorf("GeoTransform: %w", err))
	}
	st := ds.Structure()

	mds, err := godal.Create(godal.GTiff, mask, 1, godal.Byte, st.SizeX, st.SizeY, godal.CreationOption("NBITS=1", "COMPRESS=PACKBITS"))
	if err != nil {
		return fmt.Errorf("create mask: %w", err)
	}
	defer mds.Close()
	if err := mds.SetGeoTransform(gt); err != nil {
		return fmt.Errorf("mask.SetGeoTransform: %w", err)
	}
	if err := mds.SetProjection(ds.Projection()); err != nil {
		return fmt.Errorf("mask.SetProjection: %w", err)
	}
	mband := mds.Bands()[0]
	if err := mband.SetNoData(0); err != nil {
		return fmt.Errorf("mask.SetNoData: %w", err)
	}

	band := ds.Bands()[0]
	row := make([]float64, st.SizeX)
	maskRow := make([]byte, st.SizeX)
	valid := false
	for y := 0; y < st.SizeY; y++ {
		if err := band.Read(0, y, row, st.SizeX, 1); err != nil {
			return fmt.Errorf("read row %d: %w", y, err)
		}
		for x, v := range row {
			maskRow[x] = 0
			if v != 0 {
				maskRow[x] = 1
				valid = true
			}
		}
		if err := mband.Write(0, y, maskRow, st.SizeX, 1); err != nil {
			return fmt.Errorf("write row %d: %w", y, err)
		}
	}
	if !valid {
		return service.MakeFatal(ErrEmptyFootprint)
	}
	return nil
}
