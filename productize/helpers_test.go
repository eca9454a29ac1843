package productize_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// fakeRunner simulates the GDAL tools and the L1.1 metadata extractor
type fakeRunner struct {
	mu            sync.Mutex
	calls         [][]string
	failZooms     map[int]bool
	extractorJSON string
}

func (r *fakeRunner) Run(ctx context.Context, workdir, name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()

	// paths are resolved against the working directory of the command
	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(workdir, path)
	}
	switch filepath.Base(name) {
	case "gdal_translate":
		out := resolve(args[len(args)-1])
		if strings.HasSuffix(out, ".png") {
			return writePNG(out, 200, 100)
		}
		return os.WriteFile(out, []byte("tif"), 0644)
	case "gdal2tiles.py":
		var zmin, zmax int
		if _, err := fmt.Sscanf(args[1], "%d-%d", &zmin, &zmax); err != nil {
			return err
		}
		if r.failZooms[zmax] {
			return errors.New("exit status 1")
		}
		return os.MkdirAll(filepath.Join(resolve(args[len(args)-1]), strconv.Itoa(zmax)), 0755)
	case "extract_alos2_md.py":
		return os.WriteFile(resolve(args[3]), []byte(r.extractorJSON), 0644)
	}
	return fmt.Errorf("unexpected command %s", name)
}

func (r *fakeRunner) commands(name string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res [][]string
	for _, c := range r.calls {
		if c[0] == name {
			res = append(res, c)
		}
	}
	return res
}

func writePNG(path string, w, h int) error {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

const summaryL15 = `Scs_SceneID="ALOS2236492900-180918"
Pdi_ProductID="UBSR1.5GUA"
Pdi_ProductFormat="GEOTIFF"
Img_SceneCenterDateTime="20180918 03:21:50.289"
Img_SceneStartDateTime="20180918 03:21:45.123"
Img_SceneEndDateTime="20180918 03:21:55.456"
Img_ImageSceneLeftTopLatitude="35.817"
Img_ImageSceneLeftTopLongitude="139.123"
Img_ImageSceneRightTopLatitude="35.765"
Img_ImageSceneRightTopLongitude="139.890"
Img_ImageSceneRightBottomLatitude="35.102"
Img_ImageSceneRightBottomLongitude="139.801"
Img_ImageSceneLeftBottomLatitude="35.151"
Img_ImageSceneLeftBottomLongitude="139.040"
`

// writeRawDir creates a raw product directory with the given files
func writeRawDir(dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
