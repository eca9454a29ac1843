package common

//go:generate go run github.com/dmarkham/enumer -json -type ProductLevel -trimprefix Level

// ProductLevel is the processing level of an ALOS-2 product
type ProductLevel int

const (
	LevelUnknown ProductLevel = iota
	LevelL11                  // Single look complex, slant range (CEOS)
	LevelL15                  // Multi-look, map projected (GeoTIFF or CEOS)
	LevelL21                  // Orthorectified (GeoTIFF)
)

// ParseProductLevel returns the level from its code in the dataset name (e.g. "1.5")
func ParseProductLevel(code string) ProductLevel {
	switch code {
	case "1.1":
		return LevelL11
	case "1.5":
		return LevelL15
	case "2.1":
		return LevelL21
	}
	return LevelUnknown
}

// Code returns the level as encoded in the dataset name
func (l ProductLevel) Code() string {
	switch l {
	case LevelL11:
		return "1.1"
	case LevelL15:
		return "1.5"
	case LevelL21:
		return "2.1"
	}
	return ""
}
