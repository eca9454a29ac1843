package productize_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/airbusgeo/alos2-ingester/common"
	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fixedFootprinter returns the same footprint for every raster
type fixedFootprinter struct {
	ring    [][2]float64
	rasters []string
}

func (f *fixedFootprinter) Footprint(ctx context.Context, raster string) ([][2]float64, error) {
	f.rasters = append(f.rasters, raster)
	return f.ring, nil
}

var _ = Describe("Productizer", func() {
	const (
		nameL15 = "ALOS2236492900-180918-UBSR1.5GUA"
		nameL21 = "ALOS2236492900-180918-UBSR2.1GUA"
		nameL11 = "ALOS2123450570-160731-FBDR1.1__D"
	)
	var (
		workdir, outdir string
		runner          *fakeRunner
		footprinter     *fixedFootprinter
		pz              *productize.Productizer
		product         *productize.Product
		err             error
	)
	settings := productize.Settings{SLCVersion: "v2.0", GeoTIFFVersion: "v1.1"}

	BeforeEach(func() {
		workdir, err = os.MkdirTemp("", "productize")
		Expect(err).NotTo(HaveOccurred())
		outdir = filepath.Join(workdir, "out")
		runner = &fakeRunner{failZooms: map[int]bool{8: true, 7: true}}
		footprinter = &fixedFootprinter{ring: [][2]float64{{139.2, 35.2}, {139.7, 35.2}, {139.7, 35.7}, {139.2, 35.7}}}
		config := productize.DefaultConfig()
		config.OutDir = outdir
		config.Settings = settings
		pz = productize.NewProductizer(config, runner)
		pz.Footprinter = footprinter
	})

	AfterEach(func() {
		os.RemoveAll(workdir)
	})

	readJSON := func(path string) map[string]interface{} {
		var v map[string]interface{}
		Expect(service.ReadJSON(path, &v)).To(Succeed())
		return v
	}

	Describe("productizing a L1.5 directory", func() {
		var rawDir string
		BeforeEach(func() {
			rawDir = filepath.Join(workdir, "raw")
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL15 + ".tif": "tif",
				"IMG-HV-" + nameL15 + ".tif": "tif",
				"summary.txt":                summaryL15,
			})).To(Succeed())
			product, err = pz.Productize(ctx, nameL15, rawDir, "auig2")
		})

		It("should be finalized", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(product.State).To(Equal(productize.StateFinalized))
			Expect(product.Level).To(Equal(common.LevelL15))
			Expect(product.Dir).To(Equal(filepath.Join(outdir, nameL15)))
		})

		It("should tile the first layer only, with the highest successful zoom", func() {
			Expect(product.Metadata.Tiles).To(BeTrue())
			Expect(product.Metadata.TileLayers).To(Equal([]string{"HH"}))
			Expect(product.Metadata.TileMaxZoom).To(Equal([]int{6}))
			Expect(runner.commands("gdal2tiles.py")).To(HaveLen(3))
			Expect(filepath.Join(product.Dir, "tiles", "HH", "6")).To(BeADirectory())
		})

		It("should create the archive and move the browse images", func() {
			Expect(product.ArchiveFile()).To(BeARegularFile())
			Expect(service.IsZip(product.ArchiveFile())).To(BeTrue())
			for _, pol := range []string{"HH", "HV"} {
				base := filepath.Join(product.Dir, "IMG-"+pol+"-"+nameL15+"_disp")
				Expect(base + ".browse.png").To(BeARegularFile())
				Expect(base + ".browse_small.png").To(BeARegularFile())
			}
			browses, _ := service.GlobFiles(rawDir, "*browse*.png")
			Expect(browses).To(BeEmpty())
			Expect(product.Metadata.ArchiveFilename).To(Equal(nameL15 + ".zip"))
			Expect(product.Metadata.DownloadSource).To(Equal("auig2"))
		})

		It("should build the metadata from the name and the summary", func() {
			md := product.Metadata
			Expect(md.ProdName).To(Equal(nameL15))
			Expect(md.Platform).To(Equal("ALOS2"))
			Expect(md.OrbitNumber).To(Equal(23649))
			Expect(md.FrameID).To(Equal(2900))
			Expect(md.TrackNumber).To(Equal(117))
			Expect(md.ProdDate).To(Equal("2018-09-18"))
			Expect(md.DFDN).To(Equal(productize.DFDN{AcquisitionMode: "UBS", LookSide: "R"}))
			Expect(md.LookDirection).To(Equal("right"))
			Expect(md.Level).To(Equal("L1.5"))
			Expect(md.Direction).To(Equal("ascending"))
			Expect(md.Dataset).To(Equal("ALOS2_GeoTIFF"))
			Expect(md.Source).To(Equal("jaxa"))
			Expect(md.StartTime).To(Equal("2018-09-18T03:21:45.123000"))
			Expect(md.EndTime).To(Equal("2018-09-18T03:21:55.456000"))
			Expect(md.Location.Ring()).To(HaveLen(5))
			Expect(md.Location.Ring()[0]).To(Equal([2]float64{139.123, 35.817}))
			Expect(md.ALOS2MD).To(HaveKeyWithValue("pdi_productformat", "GEOTIFF"))
			Expect(footprinter.rasters).To(BeEmpty())
		})

		It("should write consistent metadata and dataset documents", func() {
			Expect(pz.WriteProduct(product)).To(Succeed())
			met := readJSON(product.MetadataFile())
			ds := readJSON(product.DatasetFile())
			Expect(ds["version"]).To(Equal("v1.1"))
			Expect(ds["label"]).To(Equal(met["prod_name"]))
			Expect(ds["starttime"]).To(Equal(met["starttime"]))
			Expect(ds["endtime"]).To(Equal(met["endtime"]))
			Expect(ds["location"]).To(Equal(met["location"]))
			Expect(met["tile_layers"]).To(Equal([]interface{}{"HH"}))
			Expect(met["tile_max_zoom"]).To(Equal([]interface{}{6.0}))
			Expect(met["dfdn"]).To(HaveKeyWithValue("AcquistionMode", "UBS"))

			b, err := os.ReadFile(product.DatasetFile())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(ContainSubstring("\n  \"version\""))
		})
	})

	Describe("productizing when no zoom level can be tiled", func() {
		BeforeEach(func() {
			for z := 0; z <= 8; z++ {
				runner.failZooms[z] = true
			}
			rawDir := filepath.Join(workdir, "raw")
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL15 + ".tif": "tif",
				"IMG-HV-" + nameL15 + ".tif": "tif",
				"summary.txt":                summaryL15,
			})).To(Succeed())
			product, err = pz.Productize(ctx, nameL15, rawDir, "auig2")
		})

		It("should try to tile the first layer only", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(product.State).To(Equal(productize.StateFinalized))
			Expect(product.Metadata.Tiles).To(BeFalse())
			Expect(product.Metadata.TileLayers).To(BeEmpty())
			gdal2tiles := runner.commands("gdal2tiles.py")
			Expect(gdal2tiles).To(HaveLen(8))
			for _, c := range gdal2tiles {
				Expect(c[len(c)-1]).To(Equal(filepath.Join(product.Dir, "tiles", "HH")))
			}
		})
	})

	Describe("productizing with relative directories", func() {
		var rawDir string
		BeforeEach(func() {
			cwd, cwdErr := os.Getwd()
			Expect(cwdErr).NotTo(HaveOccurred())
			rawDir = filepath.Join(workdir, "raw")
			relOut, relErr := filepath.Rel(cwd, outdir)
			Expect(relErr).NotTo(HaveOccurred())
			relRaw, relErr := filepath.Rel(cwd, rawDir)
			Expect(relErr).NotTo(HaveOccurred())
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL15 + ".tif": "tif",
				"summary.txt":                summaryL15,
			})).To(Succeed())

			config := productize.DefaultConfig()
			config.OutDir = relOut
			config.Settings = settings
			pz = productize.NewProductizer(config, runner)
			product, err = pz.Productize(ctx, nameL15, relRaw, "auig2")
		})

		It("should write the tiles in the product directory", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Dir).To(Equal(filepath.Join(outdir, nameL15)))
			Expect(filepath.Join(product.Dir, "tiles", "HH", "6")).To(BeADirectory())
			Expect(product.Metadata.TileMaxZoom).To(Equal([]int{6}))
			tiles, _ := filepath.Glob(filepath.Join(rawDir, "*", nameL15, "tiles"))
			Expect(tiles).To(BeEmpty())
			Expect(filepath.Join(rawDir, filepath.Base(outdir))).NotTo(BeAnExistingFile())
		})
	})

	Describe("productizing a L2.1 directory", func() {
		BeforeEach(func() {
			rawDir := filepath.Join(workdir, "raw21")
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL21 + ".tif": "tif",
				"summary.txt":                summaryL15,
			})).To(Succeed())
			Expect(service.ZipDir(rawDir, rawDir+".zip")).To(Succeed())
			product, err = pz.Productize(ctx, nameL21, rawDir, "url")
		})

		It("should override the location with the footprint of the raster", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(footprinter.rasters).To(HaveLen(1))
			Expect(filepath.Base(footprinter.rasters[0])).To(Equal("IMG-HH-" + nameL21 + "_disp.tif"))
			ring := product.Metadata.Location.Ring()
			Expect(ring).To(HaveLen(5))
			Expect(ring[0]).To(Equal([2]float64{139.2, 35.2}))
			Expect(ring[4]).To(Equal(ring[0]))
			Expect(product.Dataset.Location).To(Equal(product.Metadata.Location))
		})

		It("should move the downloaded archive", func() {
			Expect(product.ArchiveFile()).To(BeARegularFile())
			Expect(filepath.Join(workdir, "raw21.zip")).NotTo(BeAnExistingFile())
		})
	})

	Describe("productizing a L1.1 directory", func() {
		BeforeEach(func() {
			runner.extractorJSON = `{
				"geometry": {"type": "Polygon", "coordinates": [[[10, 40], [11, 40], [11, 41], [10, 41], [10, 40]]]},
				"start_time": "2016-07-31T03:00:00.000000",
				"stop_time": "2016-07-31T03:00:10.000000",
				"squintAngle": 0.1
			}`
			rawDir := filepath.Join(workdir, "raw11")
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL11:       "ceos",
				"LED-" + nameL11:          "ceos",
				"BRS-" + nameL11 + ".jpg": "jpg",
			})).To(Succeed())
			product, err = pz.Productize(ctx, nameL11, rawDir, "sentinelasia")
		})

		It("should use the extractor", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(runner.commands("extract_alos2_md.py")).To(HaveLen(1))
			Expect(product.Metadata.Dataset).To(Equal("ALOS2-L1.1_SLC"))
			Expect(product.Metadata.StartTime).To(Equal("2016-07-31T03:00:00.000000"))
			Expect(product.Metadata.Location.Ring()).To(HaveLen(5))
			Expect(product.Metadata.ALOS2MD).To(HaveKey("squintAngle"))
			Expect(product.Dataset.Version).To(Equal("v2.0"))
			Expect(product.Metadata.Tiles).To(BeFalse())
		})

		It("should create the browse from the jpg", func() {
			Expect(filepath.Join(product.Dir, "BRS-"+nameL11+".browse.png")).To(BeARegularFile())
			Expect(filepath.Join(product.Dir, "BRS-"+nameL11+".browse_small.png")).To(BeARegularFile())
			Expect(runner.commands("gdal2tiles.py")).To(BeEmpty())
		})
	})

	Describe("productizing an unknown directory", func() {
		It("should fail", func() {
			rawDir := filepath.Join(workdir, "rawunknown")
			Expect(writeRawDir(rawDir, map[string]string{"IMG-HH-" + nameL15 + ".tif": "tif"})).To(Succeed())
			_, err = pz.Productize(ctx, nameL15, rawDir, "url")
			Expect(err).To(MatchError(ContainSubstring(productize.ErrUnrecognizedFormat.Error())))
			Expect(service.Fatal(err)).To(BeTrue())
		})
	})

	Describe("ingesting a working directory", func() {
		var products []*productize.Product
		var pathNumber string

		BeforeEach(func() {
			rawDir := filepath.Join(workdir, "0000123456_001001_ALOS2236492900-180918")
			Expect(writeRawDir(rawDir, map[string]string{
				"IMG-HH-" + nameL15 + ".tif": "tif",
				"summary.txt":                summaryL15,
			})).To(Succeed())
			Expect(service.ZipDir(rawDir, rawDir+".zip")).To(Succeed())
			Expect(os.RemoveAll(rawDir)).To(Succeed())
		})

		JustBeforeEach(func() {
			products, err = pz.Ingest(ctx, workdir, "auig2", pathNumber)
		})

		Context("with the right path number", func() {
			BeforeEach(func() {
				pathNumber = "117.0"
			})
			It("should productize the dataset and clean the working directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(products).To(HaveLen(1))
				Expect(products[0].MetadataFile()).To(BeARegularFile())
				Expect(products[0].DatasetFile()).To(BeARegularFile())
				Expect(products[0].ArchiveFile()).To(BeARegularFile())
				Expect(filepath.Join(workdir, "0000123456_001001_ALOS2236492900-180918")).NotTo(BeAnExistingFile())
				zips, _ := service.GlobFiles(workdir, "*.zip")
				Expect(zips).To(BeEmpty())
			})
		})

		Context("with a wrong path number", func() {
			BeforeEach(func() {
				pathNumber = "118"
			})
			It("should fail", func() {
				Expect(err).To(HaveOccurred())
				Expect(service.Fatal(err)).To(BeTrue())
				Expect(products).To(BeEmpty())
			})
		})
	})

	Describe("ingesting an empty directory", func() {
		It("should fail", func() {
			_, err = pz.Ingest(ctx, workdir, "url", "")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Settings", func() {
	It("should return the default settings when the file does not exist", func() {
		s, err := productize.LoadSettings(filepath.Join(os.TempDir(), "nonexistent", "settings.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal(productize.DefaultSettings()))
	})

	It("should load the versions", func() {
		dir, err := os.MkdirTemp("", "settings")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		f := filepath.Join(dir, "settings.json")
		Expect(os.WriteFile(f, []byte(`{"ALOS2_SLC_VERSION": "v3", "ALOS2_GEOTIFF_VERSION": "v4"}`), 0644)).To(Succeed())
		s, err := productize.LoadSettings(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Version(common.LevelL11)).To(Equal("v3"))
		Expect(s.Version(common.LevelL21)).To(Equal("v4"))
		b, _ := json.Marshal(s)
		Expect(string(b)).To(ContainSubstring("ALOS2_SLC_VERSION"))
	})
})
