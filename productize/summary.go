package productize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/alos2-ingester/service"
)

// SummaryFileName is the name of the summary file delivered with L1.5/L2.1 products
const SummaryFileName = "summary.txt"

const (
	summaryDateLayout = "20060102 15:04:05"
	isoLayout         = "2006-01-02T15:04:05.000000"
)

// ErrMissingKey is returned when a required key is not found in the summary
type ErrMissingKey struct {
	Key string
}

func (e ErrMissingKey) Error() string {
	return fmt.Sprintf("missing key in summary: %s", e.Key)
}

// ErrSummaryFormat is returned when the summary cannot be parsed as key/value pairs
type ErrSummaryFormat struct {
	Line   int
	Reason string
}

func (e ErrSummaryFormat) Error() string {
	return fmt.Sprintf("summary format error (line %d): %s", e.Line, e.Reason)
}

// ParseSummary parses a summary file made of key=value (or key:value) lines.
// Quotes are removed, keys are lowercased, values are trimmed.
// Lines starting with # or ; are ignored and indented lines continue the previous value.
// A duplicate key or a line without delimiter is a format error.
func ParseSummary(r io.Reader) (map[string]string, error) {
	md := map[string]string{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lastKey, lastIndent := "", 0
	for nline := 1; scanner.Scan(); nline++ {
		line := strings.ReplaceAll(strings.TrimRight(scanner.Text(), " \t\r"), `"`, "")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			lastKey = ""
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if lastKey != "" && indent > lastIndent {
			if md[lastKey] == "" {
				md[lastKey] = trimmed
			} else {
				md[lastKey] += "\n" + trimmed
			}
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			// section header: the summary is flattened
			lastKey = ""
			continue
		}
		i := strings.IndexAny(trimmed, "=:")
		if i < 0 {
			return nil, service.MakeFatal(ErrSummaryFormat{nline, fmt.Sprintf("no delimiter in %q", trimmed)})
		}
		key := strings.ToLower(strings.TrimSpace(trimmed[:i]))
		if key == "" {
			return nil, service.MakeFatal(ErrSummaryFormat{nline, "empty key"})
		}
		if _, ok := md[key]; ok {
			return nil, service.MakeFatal(ErrSummaryFormat{nline, "duplicate key " + key})
		}
		md[key] = strings.TrimSpace(trimmed[i+1:])
		lastKey, lastIndent = key, indent
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ParseSummary: %w", err)
	}
	return md, nil
}

// ReadSummary parses the summary file
func ReadSummary(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadSummary: %w", err)
	}
	defer f.Close()
	md, err := ParseSummary(f)
	if err != nil {
		return nil, fmt.Errorf("ReadSummary[%s]: %w", path, err)
	}
	return md, nil
}

func summaryFloat(md map[string]string, key string) (float64, error) {
	v, ok := md[key]
	if !ok {
		return 0, service.MakeFatal(ErrMissingKey{key})
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, service.MakeFatal(fmt.Errorf("invalid value for %s: %w", key, err))
	}
	return f, nil
}

// SummaryLocation returns the polygon defined by the four corners of the image scene
// (lefttop, righttop, rightbottom, leftbottom) as a closed ring of 5 [lon, lat] points
func SummaryLocation(md map[string]string) (*Location, error) {
	var ring [][2]float64
	for _, corner := range []string{"lefttop", "righttop", "rightbottom", "leftbottom"} {
		lon, err := summaryFloat(md, "img_imagescene"+corner+"longitude")
		if err != nil {
			return nil, fmt.Errorf("SummaryLocation: %w", err)
		}
		lat, err := summaryFloat(md, "img_imagescene"+corner+"latitude")
		if err != nil {
			return nil, fmt.Errorf("SummaryLocation: %w", err)
		}
		ring = append(ring, [2]float64{lon, lat})
	}
	return NewPolygon(append(ring, ring[0])), nil
}

func summaryTime(md map[string]string, key string) (string, error) {
	v, ok := md[key]
	if !ok {
		return "", service.MakeFatal(ErrMissingKey{key})
	}
	t, err := time.Parse(summaryDateLayout, v)
	if err != nil {
		return "", service.MakeFatal(fmt.Errorf("invalid value for %s: %w", key, err))
	}
	return t.Format(isoLayout), nil
}

// SummaryTimes returns the start and end datetimes of the scene (YYYY-MM-DDTHH:MM:SS.ffffff)
func SummaryTimes(md map[string]string) (start, end string, err error) {
	if start, err = summaryTime(md, "img_scenestartdatetime"); err != nil {
		return "", "", fmt.Errorf("SummaryTimes: %w", err)
	}
	if end, err = summaryTime(md, "img_sceneenddatetime"); err != nil {
		return "", "", fmt.Errorf("SummaryTimes: %w", err)
	}
	return start, end, nil
}

// SummaryDatasetType returns ALOS2_GeoTIFF or ALOS2_CEOS according to the product format
func SummaryDatasetType(md map[string]string) (string, error) {
	format, ok := md["pdi_productformat"]
	if !ok {
		return "", service.MakeFatal(ErrMissingKey{"pdi_productformat"})
	}
	if strings.Contains(format, "TIFF") {
		return "ALOS2_GeoTIFF", nil
	}
	return "ALOS2_CEOS", nil
}
