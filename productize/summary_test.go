package productize_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/airbusgeo/alos2-ingester/productize"
	"github.com/airbusgeo/alos2-ingester/service"
)

func checkKeyValue(t *testing.T, md map[string]string, key, expected string) {
	t.Helper()
	if v, ok := md[key]; !ok {
		t.Errorf("missing key %s", key)
	} else if v != expected {
		t.Errorf("%s: expected %q, got %q", key, expected, v)
	}
}

func TestParseSummary(t *testing.T) {
	md, err := productize.ParseSummary(strings.NewReader(`# comment
; other comment
Pdi_ProductFormat="GEOTIFF"
Odi_Description : "multi
  line"

Img_SceneStartDateTime = "20180918 03:21:45.123"
Url=http://example.com/a=b
`))
	if err != nil {
		t.Fatal(err)
	}
	checkKeyValue(t, md, "pdi_productformat", "GEOTIFF")
	checkKeyValue(t, md, "odi_description", "multi\nline")
	checkKeyValue(t, md, "img_scenestartdatetime", "20180918 03:21:45.123")
	checkKeyValue(t, md, "url", "http://example.com/a=b")
	if len(md) != 4 {
		t.Errorf("expected 4 keys, got %d", len(md))
	}
}

func TestParseSummaryErrors(t *testing.T) {
	for _, s := range []string{
		"A=1\na=2\n",
		"A=1\nno delimiter\n",
		"=1\n",
	} {
		_, err := productize.ParseSummary(strings.NewReader(s))
		var ferr productize.ErrSummaryFormat
		if !errors.As(err, &ferr) || !service.Fatal(err) {
			t.Errorf("%q: fatal format error expected, got %v", s, err)
		}
	}
}

func TestSummaryLocation(t *testing.T) {
	md, err := productize.ParseSummary(strings.NewReader(summaryL15))
	if err != nil {
		t.Fatal(err)
	}
	loc, err := productize.SummaryLocation(md)
	if err != nil {
		t.Fatal(err)
	}
	ring := loc.Ring()
	if loc.Type != "Polygon" || len(ring) != 5 {
		t.Fatalf("closed ring of 5 points expected, got %v", loc)
	}
	if ring[0] != ring[4] {
		t.Error("ring is not closed")
	}
	expected := [][2]float64{{139.123, 35.817}, {139.890, 35.765}, {139.801, 35.102}, {139.040, 35.151}}
	for i, p := range expected {
		if ring[i] != p {
			t.Errorf("point %d: expected %v, got %v", i, p, ring[i])
		}
	}

	delete(md, "img_imagescenerightbottomlatitude")
	_, err = productize.SummaryLocation(md)
	var merr productize.ErrMissingKey
	if !errors.As(err, &merr) || merr.Key != "img_imagescenerightbottomlatitude" || !service.Fatal(err) {
		t.Errorf("missing key error expected, got %v", err)
	}

	md["img_imagescenerightbottomlatitude"] = "north"
	if _, err = productize.SummaryLocation(md); err == nil || !service.Fatal(err) {
		t.Errorf("fatal error expected, got %v", err)
	}
}

func TestSummaryTimes(t *testing.T) {
	md := map[string]string{
		"img_scenestartdatetime": "20180918 03:21:45.123",
		"img_sceneenddatetime":   "20180918 03:21:55",
	}
	start, end, err := productize.SummaryTimes(md)
	if err != nil {
		t.Fatal(err)
	}
	if start != "2018-09-18T03:21:45.123000" {
		t.Errorf("start: %s", start)
	}
	if end != "2018-09-18T03:21:55.000000" {
		t.Errorf("end: %s", end)
	}

	md["img_sceneenddatetime"] = "18/09/2018"
	if _, _, err := productize.SummaryTimes(md); err == nil {
		t.Error("error expected")
	}
	delete(md, "img_scenestartdatetime")
	if _, _, err := productize.SummaryTimes(md); !errors.As(err, &productize.ErrMissingKey{}) {
		t.Errorf("missing key error expected, got %v", err)
	}
}

func TestSummaryDatasetType(t *testing.T) {
	for format, expected := range map[string]string{"GEOTIFF": "ALOS2_GeoTIFF", "CEOS": "ALOS2_CEOS"} {
		dt, err := productize.SummaryDatasetType(map[string]string{"pdi_productformat": format})
		if err != nil || dt != expected {
			t.Errorf("%s: expected %s, got %s (%v)", format, expected, dt, err)
		}
	}
	if _, err := productize.SummaryDatasetType(map[string]string{}); err == nil {
		t.Error("error expected")
	}
}
