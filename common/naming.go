package common

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DatasetNameLength is the length of an ALOS-2 dataset name
// ALOS2OOOOOFFFF-YYMMDD-MMMLlllPMD
const DatasetNameLength = 32

const platformALOS2 = "ALOS2"

var (
	// ImageFileRegexp extracts the dataset name from the name of an image file
	ImageFileRegexp = regexp.MustCompile(`IMG-[A-Z]{2}-(ALOS2.{27})`)
	// RawDirFileRegexp matches the image files that identify a raw product directory
	RawDirFileRegexp = regexp.MustCompile(`IMG-[A-Z]{2}-ALOS2.{5}(.{4}-\d{6})-.{4}`)
)

// ErrInvalidName is returned when a dataset name cannot be decoded
type ErrInvalidName struct {
	Name   string
	Reason string
}

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("invalid ALOS2 dataset name %q: %s", e.Name, e.Reason)
}

// DatasetName holds the fields encoded in the name of an ALOS-2 product
type DatasetName struct {
	Platform         string
	Orbit            int
	Frame            int
	Date             time.Time
	Mode             string
	Look             string // R: right, otherwise left
	Level            string // e.g. 1.1, 1.5, 2.1
	ProcessingOption string
	MapProjection    string
	Direction        string // A: ascending, otherwise descending
}

// ParseDatasetName decodes the fixed-offset fields of the dataset name
func ParseDatasetName(name string) (DatasetName, error) {
	if len(name) != DatasetNameLength {
		return DatasetName{}, ErrInvalidName{name, fmt.Sprintf("expected %d characters, got %d", DatasetNameLength, len(name))}
	}
	if name[0:5] != platformALOS2 {
		return DatasetName{}, ErrInvalidName{name, "platform must be " + platformALOS2}
	}
	if name[14] != '-' || name[21] != '-' {
		return DatasetName{}, ErrInvalidName{name, "separators not found"}
	}
	if !isDigits(name[5:10]) {
		return DatasetName{}, ErrInvalidName{name, "orbit is not a number"}
	}
	if !isDigits(name[10:14]) {
		return DatasetName{}, ErrInvalidName{name, "frame is not a number"}
	}
	orbit, _ := strconv.Atoi(name[5:10])
	frame, _ := strconv.Atoi(name[10:14])
	date, err := time.Parse("060102", name[15:21])
	if err != nil {
		return DatasetName{}, ErrInvalidName{name, "invalid date: " + err.Error()}
	}
	return DatasetName{
		Platform:         name[0:5],
		Orbit:            orbit,
		Frame:            frame,
		Date:             date,
		Mode:             name[22:25],
		Look:             name[25:26],
		Level:            name[26:29],
		ProcessingOption: name[29:30],
		MapProjection:    name[30:31],
		Direction:        name[31:32],
	}, nil
}

// isDigits is true if s only contains ASCII digits
func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// String encodes the dataset name
func (n DatasetName) String() string {
	return fmt.Sprintf("%s%05d%04d-%s-%s%s%s%s%s%s", n.Platform, n.Orbit, n.Frame, n.Date.Format("060102"),
		n.Mode, n.Look, n.Level, n.ProcessingOption, n.MapProjection, n.Direction)
}

// TrackNumber of the orbit (path)
func (n DatasetName) TrackNumber() int {
	return TrackNumber(n.Orbit)
}

// ProductLevel returns the processing level of the product
func (n DatasetName) ProductLevel() ProductLevel {
	return ParseProductLevel(n.Level)
}

// LookDirection returns right or left
func (n DatasetName) LookDirection() string {
	if n.Look == "R" {
		return "right"
	}
	return "left"
}

// OrbitDirection returns ascending or descending
func (n DatasetName) OrbitDirection() string {
	if n.Direction == "A" {
		return "ascending"
	}
	return "descending"
}

// Info returns the fields of the dataset name as a map that can be used with FormatBrackets
func (n DatasetName) Info() map[string]string {
	return map[string]string{
		"SCENE":             n.String(),
		"PLATFORM":          n.Platform,
		"ORBIT":             fmt.Sprintf("%05d", n.Orbit),
		"FRAME":             fmt.Sprintf("%04d", n.Frame),
		"TRACK":             fmt.Sprintf("%03d", n.TrackNumber()),
		"DATE":              n.Date.Format("20060102"),
		"YEAR":              n.Date.Format("2006"),
		"MONTH":             n.Date.Format("01"),
		"DAY":               n.Date.Format("02"),
		"MODE":              n.Mode,
		"LOOK":              n.Look,
		"LEVEL":             n.Level,
		"PROCESSING_OPTION": n.ProcessingOption,
		"MAP_PROJECTION":    n.MapProjection,
		"DIRECTION":         n.Direction,
	}
}

// Info decodes the dataset name and returns its fields as a map
func Info(name string) (map[string]string, error) {
	n, err := ParseDatasetName(name)
	if err != nil {
		return nil, err
	}
	return n.Info(), nil
}

// TrackNumber returns the path number of an orbit.
// This empirical formula fits all the L1.1 products.
func TrackNumber(orbit int) int {
	return (14*orbit + 24) % 207
}

// CheckPathNumber checks that the path number supplied by the user (possibly a float, e.g. "117.0")
// is equal to the track number
func CheckPathNumber(path string, track int) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(path), 64)
	if err != nil {
		return fmt.Errorf("CheckPathNumber: invalid path number %q", path)
	}
	if int(f) != track {
		return fmt.Errorf("CheckPathNumber: there might be an error in the formulation of path number: formulated path number: %d | manual input path number: %d", track, int(f))
	}
	return nil
}

// ExtractDatasetName returns the dataset name encoded in the name of an image file
func ExtractDatasetName(filename string) (string, error) {
	m := ImageFileRegexp.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return "", ErrInvalidName{filepath.Base(filename), "not an ALOS2 image file"}
	}
	return m[1], nil
}

// DatasetNameFromDir returns the dataset name of the first (sorted) image file of dir
func DatasetNameFromDir(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "IMG*"))
	if err != nil {
		return "", fmt.Errorf("DatasetNameFromDir: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("DatasetNameFromDir: unable to find any ALOS2 image files to process in %s", dir)
	}
	sort.Strings(files)
	return ExtractDatasetName(files[0])
}

// IsRawDir returns true if the directory contains an ALOS-2 image file
func IsRawDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && RawDirFileRegexp.MatchString(e.Name()) {
			return true
		}
	}
	return false
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys must be one of SCENE, PLATFORM, ORBIT, FRAME, TRACK, DATE(YEAR/MONTH/DAY), MODE, LOOK, LEVEL, PROCESSING_OPTION, MAP_PROJECTION, DIRECTION
 * or any key of the other maps (e.g. ORDER_ID)
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
