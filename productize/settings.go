package productize

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/service"
)

// Settings of the datasets
type Settings struct {
	SLCVersion     string `json:"ALOS2_SLC_VERSION"`
	GeoTIFFVersion string `json:"ALOS2_GEOTIFF_VERSION"`
}

// DefaultSettings are used when no settings file is provided
func DefaultSettings() Settings {
	return Settings{
		SLCVersion:     "v1.0",
		GeoTIFFVersion: "v1.0",
	}
}

// LoadSettings loads the settings file (settings.json). If it does not exist, the default settings are returned.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}
	if err := service.ReadJSON(path, &settings); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSettings(), nil
		}
		return settings, fmt.Errorf("LoadSettings: %w", err)
	}
	return settings, nil
}

// Version of the dataset according to the product level
func (s Settings) Version(level common.ProductLevel) string {
	if level == common.LevelL11 {
		return s.SLCVersion
	}
	return s.GeoTIFFVersion
}
