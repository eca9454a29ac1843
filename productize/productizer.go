package productize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
)

// tifRegexp matches the GeoTIFF images of a L1.5/L2.1 product. The first group is the polarisation.
var tifRegexp = regexp.MustCompile(`^IMG-([A-Z]{2})-ALOS2.{27}\.tif$`)

// Config of the productizer
type Config struct {
	OutDir          string // default: current directory
	MinZoom         int
	MaxZoom         int // default: 8
	FootprintLevels []common.ProductLevel
	Settings        Settings
	Extractor       string // L1.1 metadata extractor
}

// DefaultConfig returns the default configuration of the productizer
func DefaultConfig() Config {
	return Config{
		OutDir:          ".",
		MinZoom:         0,
		MaxZoom:         8,
		FootprintLevels: []common.ProductLevel{common.LevelL21},
		Settings:        DefaultSettings(),
		Extractor:       "extract_alos2_md.py",
	}
}

// Product is a dataset being productized
type Product struct {
	Name     string
	Level    common.ProductLevel
	Dir      string
	Metadata *Metadata
	Dataset  *Dataset
	State    State
}

// MetadataFile returns the path of <name>.met.json
func (p *Product) MetadataFile() string {
	return filepath.Join(p.Dir, p.Name+".met.json")
}

// DatasetFile returns the path of <name>.dataset.json
func (p *Product) DatasetFile() string {
	return filepath.Join(p.Dir, p.Name+".dataset.json")
}

// ArchiveFile returns the path of <name>.zip
func (p *Product) ArchiveFile() string {
	return filepath.Join(p.Dir, p.Name+".zip")
}

// Productizer turns a raw ALOS2 directory into a product directory
type Productizer struct {
	Config      Config
	Assembler   *Assembler
	Raster      Raster
	Footprinter Footprinter
}

// NewProductizer creates a productizer running the tools with runner and computing footprints with the convex hull of the valid pixels
func NewProductizer(config Config, runner toolbox.Runner) *Productizer {
	if config.OutDir == "" {
		config.OutDir = "."
	}
	return &Productizer{
		Config:      config,
		Assembler:   &Assembler{Runner: runner, Extractor: config.Extractor},
		Raster:      Raster{Runner: runner},
		Footprinter: ConvexHullFootprinter{},
	}
}

func (pz *Productizer) footprintLevel(level common.ProductLevel) bool {
	for _, l := range pz.Config.FootprintLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Base builds the metadata and the dataset and creates the product directory
// name may be suffixed (e.g. "-md"): the level is decoded from its first 32 characters.
func (pz *Productizer) Base(ctx context.Context, name, rawDir string) (*Product, error) {
	dsName := name
	if len(dsName) > common.DatasetNameLength {
		dsName = dsName[:common.DatasetNameLength]
	}
	n, err := common.ParseDatasetName(dsName)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("Productizer.Base: %w", err))
	}
	// tools run in the raw directory: relative paths would be resolved there
	dir, err := filepath.Abs(filepath.Join(pz.Config.OutDir, name))
	if err != nil {
		return nil, fmt.Errorf("Productizer.Base: %w", err)
	}
	p := &Product{
		Name:  name,
		Level: n.ProductLevel(),
		Dir:   dir,
		State: StateNotStarted,
	}
	if p.Metadata, err = pz.Assembler.Build(ctx, rawDir, name, p.Level); err != nil {
		return nil, fmt.Errorf("Productizer.Base: %w", err)
	}
	p.Dataset = NewDataset(p.Metadata, p.Level, pz.Config.Settings)
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("Productizer.Base: %w", err)
	}
	p.State = StateMetadataBuilt
	return p, nil
}

// Productize creates the product directory of the raw directory:
// archive, browse images, tiles, footprint and metadata
func (pz *Productizer) Productize(ctx context.Context, name, rawDir, downloadSource string) (*Product, error) {
	ctx = log.With(ctx, "dataset", name)
	rawDir, err := filepath.Abs(rawDir)
	if err != nil {
		return nil, fmt.Errorf("Productizer.Productize: %w", err)
	}
	p, err := pz.Base(ctx, name, rawDir)
	if err != nil {
		return nil, fmt.Errorf("Productizer.Productize: %w", err)
	}
	if err := pz.assembleArchive(ctx, p, rawDir); err != nil {
		return p, fmt.Errorf("Productizer.Productize: %w", err)
	}
	if err := pz.postprocess(ctx, p, rawDir); err != nil {
		return p, fmt.Errorf("Productizer.Productize: %w", err)
	}
	if err := pz.moveBrowses(ctx, p, rawDir); err != nil {
		return p, fmt.Errorf("Productizer.Productize: %w", err)
	}
	p.Metadata.ArchiveFilename = filepath.Base(p.ArchiveFile())
	p.Metadata.DownloadSource = downloadSource
	p.State = StateFinalized
	return p, nil
}

// assembleArchive moves <rawDir>.zip or archives the content of rawDir in <name>.zip
func (pz *Productizer) assembleArchive(ctx context.Context, p *Product, rawDir string) error {
	rawZip := filepath.Clean(rawDir) + ".zip"
	if _, err := os.Stat(rawZip); err == nil {
		log.Logger(ctx).Sugar().Debugf("moving %s to %s", rawZip, p.ArchiveFile())
		if err := service.MoveFile(rawZip, p.ArchiveFile()); err != nil {
			return fmt.Errorf("assembleArchive: %w", err)
		}
	} else {
		log.Logger(ctx).Sugar().Debugf("archiving %s in %s", rawDir, p.ArchiveFile())
		if err := service.ZipDir(rawDir, p.ArchiveFile()); err != nil {
			return fmt.Errorf("assembleArchive: %w", err)
		}
	}
	p.State = StateArchiveAssembled
	return nil
}

func (pz *Productizer) postprocess(ctx context.Context, p *Product, rawDir string) error {
	if p.Level == common.LevelL11 {
		jpgs, err := service.GlobFiles(rawDir, "*.jpg")
		if err != nil {
			return fmt.Errorf("postprocess: %w", err)
		}
		for _, jpg := range jpgs {
			if _, _, err := pz.Raster.Browse(ctx, jpg); err != nil {
				return fmt.Errorf("postprocess: %w", err)
			}
		}
		p.State = StatePostprocessed
		return nil
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}
	var tifs []string
	for _, e := range entries {
		if !e.IsDir() && tifRegexp.MatchString(e.Name()) {
			tifs = append(tifs, e.Name())
		}
	}

	tiled, footprinted := false, false
	for _, tif := range tifs {
		layer := tifRegexp.FindStringSubmatch(tif)[1]
		disp, err := pz.Raster.Display(ctx, filepath.Join(rawDir, tif))
		if err != nil {
			return fmt.Errorf("postprocess: %w", err)
		}
		if !tiled {
			// only the first layer is tiled, even if no zoom level succeeded
			tiled = true
			zmax, err := pz.Raster.Tiles(ctx, filepath.Join(p.Dir, "tiles", layer), disp, pz.Config.MinZoom, pz.Config.MaxZoom)
			switch {
			case err == nil:
				p.Metadata.Tiles = true
				p.Metadata.TileLayers = append(p.Metadata.TileLayers, layer)
				p.Metadata.TileMaxZoom = append(p.Metadata.TileMaxZoom, zmax)
			case errors.Is(err, ErrTilesExhausted):
				log.Logger(ctx).Sugar().Warnf("no tiles for layer %s: %v", layer, err)
			default:
				return fmt.Errorf("postprocess: %w", err)
			}
		}
		if _, _, err := pz.Raster.Browse(ctx, disp); err != nil {
			return fmt.Errorf("postprocess: %w", err)
		}
		if !footprinted && pz.Footprinter != nil && pz.footprintLevel(p.Level) {
			ring, err := pz.Footprinter.Footprint(ctx, disp)
			if err != nil {
				return fmt.Errorf("postprocess: %w", err)
			}
			p.Metadata.Location = NewPolygon(ring)
			p.Dataset.Location = p.Metadata.Location
			footprinted = true
		}
	}
	p.State = StatePostprocessed
	return nil
}

func (pz *Productizer) moveBrowses(ctx context.Context, p *Product, rawDir string) error {
	browses, err := service.GlobFiles(rawDir, "*browse*.png")
	if err != nil {
		return fmt.Errorf("moveBrowses: %w", err)
	}
	for _, b := range browses {
		if err := service.MoveFile(b, filepath.Join(p.Dir, filepath.Base(b))); err != nil {
			return fmt.Errorf("moveBrowses: %w", err)
		}
	}
	log.Logger(ctx).Sugar().Debugf("%d browse images moved to %s", len(browses), p.Dir)
	p.State = StateBrowseMoved
	return nil
}

// WriteProduct writes <name>.met.json and <name>.dataset.json in the product directory
func (pz *Productizer) WriteProduct(p *Product) error {
	if err := service.WriteJSON(p.Metadata, p.MetadataFile()); err != nil {
		return fmt.Errorf("WriteProduct: %w", err)
	}
	if err := service.WriteJSON(p.Dataset, p.DatasetFile()); err != nil {
		return fmt.Errorf("WriteProduct: %w", err)
	}
	return nil
}
