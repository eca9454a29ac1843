package productize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
	"github.com/airbusgeo/alos2-ingester/service/geometry"
	"github.com/airbusgeo/alos2-ingester/service/log"
	"github.com/airbusgeo/alos2-ingester/service/toolbox"
)

// ErrUnrecognizedFormat is returned when the raw directory is neither a L1.1 product nor a product with a summary file
var ErrUnrecognizedFormat = errors.New("cannot recognise ALOS2 directory format")

const (
	datasetL11    = "ALOS2-L1.1_SLC"
	sourceJAXA    = "jaxa"
	extractorJSON = "alos2_md.json"
)

// Location is a GeoJSON polygon
type Location struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// NewPolygon creates a polygon from its exterior ring
func NewPolygon(ring [][2]float64) *Location {
	return &Location{Type: "Polygon", Coordinates: [][][2]float64{geometry.CloseRing(ring)}}
}

// Ring returns the exterior ring
func (l *Location) Ring() [][2]float64 {
	if l == nil || len(l.Coordinates) == 0 {
		return nil
	}
	return l.Coordinates[0]
}

// LocationFromGeoJSON decodes a geojson geometry (or feature, or collection) and keeps the largest polygon
func LocationFromGeoJSON(data []byte) (*Location, error) {
	g, err := service.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("LocationFromGeoJSON: %w", err)
	}
	ring, err := geometry.LargestPolygon(g)
	if err != nil {
		return nil, fmt.Errorf("LocationFromGeoJSON: %w", err)
	}
	return NewPolygon(ring), nil
}

// DFDN are the facets of the acquisition
type DFDN struct {
	AcquisitionMode string `json:"AcquistionMode"`
	LookSide        string `json:"LookSide"`
}

// Metadata of an ALOS2 product (<name>.met.json)
type Metadata struct {
	ProdName         string `json:"prod_name"`
	SpacecraftName   string `json:"spacecraftName"`
	Platform         string `json:"platform"`
	DatasetType      string `json:"dataset_type"`
	OrbitNumber      int    `json:"orbitNumber"`
	FrameID          int    `json:"frameID"`
	TrackNumber      int    `json:"trackNumber"`
	ProdDate         string `json:"prod_date"`
	DFDN             DFDN   `json:"dfdn"`
	LookDirection    string `json:"lookDirection"`
	Level            string `json:"level"`
	ProcessingOption string `json:"processingOption"`
	MapProjection    string `json:"mapProjection"`
	Direction        string `json:"direction"`

	ALOS2MD   map[string]interface{} `json:"alos2md,omitempty"`
	Dataset   string                 `json:"dataset,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Location  *Location              `json:"location,omitempty"`
	StartTime string                 `json:"starttime,omitempty"`
	EndTime   string                 `json:"endtime,omitempty"`

	Tiles       bool     `json:"tiles,omitempty"`
	TileLayers  []string `json:"tile_layers,omitempty"`
	TileMaxZoom []int    `json:"tile_max_zoom,omitempty"`

	ArchiveFilename   string   `json:"archive_filename,omitempty"`
	DownloadSource    string   `json:"download_source,omitempty"`
	GekkoArchiveFiles []string `json:"gekko_archive_files,omitempty"`

	EORID      string `json:"eor_id,omitempty"`
	EORDate    string `json:"eor_date,omitempty"`
	EORType    string `json:"eor_type,omitempty"`
	EORCountry string `json:"eor_country,omitempty"`
	FileTitle  string `json:"filetitle,omitempty"`
}

// SetExtra sets the fields provided by the portal (Sentinel-Asia)
func (md *Metadata) SetExtra(extra map[string]string) {
	for k, v := range extra {
		switch k {
		case common.ExtraEORID:
			md.EORID = v
		case common.ExtraEORDate:
			md.EORDate = v
		case common.ExtraEORType:
			md.EORType = v
		case common.ExtraEORCountry:
			md.EORCountry = v
		case common.ExtraFileTitle:
			md.FileTitle = v
		}
	}
}

// Dataset is the reduced projection of the metadata used for catalog indexing (<name>.dataset.json)
type Dataset struct {
	Version   string    `json:"version"`
	Label     string    `json:"label"`
	StartTime string    `json:"starttime"`
	EndTime   string    `json:"endtime"`
	Location  *Location `json:"location"`
}

// NewDataset derives the dataset from the metadata
func NewDataset(md *Metadata, level common.ProductLevel, settings Settings) *Dataset {
	return &Dataset{
		Version:   settings.Version(level),
		Label:     md.ProdName,
		StartTime: md.StartTime,
		EndTime:   md.EndTime,
		Location:  md.Location,
	}
}

// MetadataFromName seeds the metadata with the fields encoded in the name.
// name is a dataset name, possibly suffixed (e.g. "-md").
func MetadataFromName(name string) (*Metadata, error) {
	dsName := name
	if len(dsName) > common.DatasetNameLength {
		dsName = dsName[:common.DatasetNameLength]
	}
	n, err := common.ParseDatasetName(dsName)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("MetadataFromName: %w", err))
	}
	return &Metadata{
		ProdName:         name,
		SpacecraftName:   n.Platform,
		Platform:         n.Platform,
		DatasetType:      n.Platform,
		OrbitNumber:      n.Orbit,
		FrameID:          n.Frame,
		TrackNumber:      n.TrackNumber(),
		ProdDate:         n.Date.Format("2006-01-02"),
		DFDN:             DFDN{AcquisitionMode: n.Mode, LookSide: n.Look},
		LookDirection:    n.LookDirection(),
		Level:            "L" + n.Level,
		ProcessingOption: n.ProcessingOption,
		MapProjection:    n.MapProjection,
		Direction:        n.OrbitDirection(),
	}, nil
}

// Assembler builds the metadata of a raw product directory
type Assembler struct {
	Runner toolbox.Runner
	// Extractor is the L1.1 metadata extractor (extract_alos2_md.py)
	Extractor string
}

// Build the metadata from the name, then from the summary file (L1.5/L2.1) or from the extractor (L1.1)
func (a *Assembler) Build(ctx context.Context, rawDir, name string, level common.ProductLevel) (*Metadata, error) {
	md, err := MetadataFromName(name)
	if err != nil {
		return nil, fmt.Errorf("Assembler.Build: %w", err)
	}
	summaryFile := filepath.Join(rawDir, SummaryFileName)
	_, statErr := os.Stat(summaryFile)
	switch {
	case level != common.LevelL11 && statErr == nil:
		err = a.fromSummary(ctx, summaryFile, md)
	case level == common.LevelL11:
		err = a.fromExtractor(ctx, rawDir, md)
	default:
		err = service.MakeFatal(fmt.Errorf("%w: %s", ErrUnrecognizedFormat, rawDir))
	}
	if err != nil {
		return nil, fmt.Errorf("Assembler.Build[%s]: %w", name, err)
	}
	return md, nil
}

func (a *Assembler) fromSummary(ctx context.Context, summaryFile string, md *Metadata) error {
	log.Logger(ctx).Sugar().Debugf("extracting metadata from %s", summaryFile)
	summary, err := ReadSummary(summaryFile)
	if err != nil {
		return err
	}
	if md.Dataset, err = SummaryDatasetType(summary); err != nil {
		return err
	}
	if md.Location, err = SummaryLocation(summary); err != nil {
		return err
	}
	if md.StartTime, md.EndTime, err = SummaryTimes(summary); err != nil {
		return err
	}
	md.ALOS2MD = make(map[string]interface{}, len(summary))
	for k, v := range summary {
		md.ALOS2MD[k] = v
	}
	md.Source = sourceJAXA
	return nil
}

// extractorOutput is the output of the L1.1 extractor
// Depending on its version, the keys are geometry/start_time/stop_time or geojson_poly/sensingStart/sensingStop
type extractorOutput struct {
	Geometry     json.RawMessage `json:"geometry"`
	GeojsonPoly  [][][2]float64  `json:"geojson_poly"`
	StartTime    string          `json:"start_time"`
	StopTime     string          `json:"stop_time"`
	SensingStart string          `json:"sensingStart"`
	SensingStop  string          `json:"sensingStop"`
}

func (a *Assembler) fromExtractor(ctx context.Context, rawDir string, md *Metadata) error {
	if a.Runner == nil || a.Extractor == "" {
		return service.MakeFatal(fmt.Errorf("no metadata extractor configured for L1.1 products"))
	}
	output := filepath.Join(rawDir, extractorJSON)
	defer os.Remove(output)
	if err := a.Runner.Run(ctx, rawDir, a.Extractor, "--dir", rawDir, "--output", output); err != nil {
		return fmt.Errorf("extractor: %w", err)
	}

	b, err := os.ReadFile(output)
	if err != nil {
		return fmt.Errorf("extractor: %w", err)
	}
	var out extractorOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return service.MakeFatal(fmt.Errorf("extractor: %w", err))
	}
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return service.MakeFatal(fmt.Errorf("extractor: %w", err))
	}

	switch {
	case len(out.Geometry) > 0 && string(out.Geometry) != "null":
		if md.Location, err = LocationFromGeoJSON(out.Geometry); err != nil {
			return service.MakeFatal(fmt.Errorf("extractor: %w", err))
		}
	case len(out.GeojsonPoly) > 0:
		md.Location = NewPolygon(out.GeojsonPoly[0])
	default:
		return service.MakeFatal(fmt.Errorf("extractor: %w", ErrMissingKey{"geometry"}))
	}
	md.StartTime, md.EndTime = firstNonEmpty(out.StartTime, out.SensingStart), firstNonEmpty(out.StopTime, out.SensingStop)
	if md.StartTime == "" || md.EndTime == "" {
		return service.MakeFatal(fmt.Errorf("extractor: %w", ErrMissingKey{"start_time/stop_time"}))
	}
	md.ALOS2MD = raw
	md.Dataset = datasetL11
	md.Source = sourceJAXA
	return nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
