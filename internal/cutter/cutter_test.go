package cutter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/MeKo-Tech/geoconnector/internal/table"
	"github.com/paulmach/orb"
)

// fakeIO is an in-memory rasterio.IO double: Info is keyed by path, and
// CutWindow just records the call instead of touching the filesystem, so
// cutters can be unit tested without a GDAL/OGR runtime.
type fakeIO struct {
	infos    map[string]rasterio.Info
	cutCalls []fakeCutCall
}

type fakeCutCall struct {
	src, dst string
	win      rasterio.Window
}

func newFakeIO() *fakeIO {
	return &fakeIO{infos: map[string]rasterio.Info{}}
}

func (f *fakeIO) Info(path string) (rasterio.Info, error) {
	info, ok := f.infos[path]
	if !ok {
		return rasterio.Info{}, os.ErrNotExist
	}
	return info, nil
}

func (f *fakeIO) CutWindow(src, dst string, win rasterio.Window, bands []int) error {
	f.cutCalls = append(f.cutCalls, fakeCutCall{src: src, dst: dst, win: win})
	return os.WriteFile(dst, []byte("cut"), 0o644)
}

func (f *fakeIO) NewCategoricalLabel(path string, width, height int, transform [6]float64, epsg int) error {
	return os.WriteFile(path, []byte("label"), 0o644)
}

func (f *fakeIO) NewSoftLabel(path string, width, height, bandCount int, transform [6]float64, epsg int) error {
	return os.WriteFile(path, []byte("label"), 0o644)
}

func (f *fakeIO) BurnClass(path string, band int, burnValue float64, wkts []string, epsg int, allTouched bool) error {
	return nil
}

var _ rasterio.IO = (*fakeIO)(nil)

func testInfo(width, height int, epsg int) rasterio.Info {
	return rasterio.Info{
		Width:        width,
		Height:       height,
		Bands:        1,
		GeoTransform: [6]float64{0, 1, 0, float64(height), 0, -1},
		EPSG:         epsg,
		Bounds:       [4]float64{0, 0, float64(width), float64(height)},
	}
}

func TestGridCutterTilesEvenly(t *testing.T) {
	c, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	io := newFakeIO()
	srcPath := filepath.Join(c.RastersDir(), "scene.tif")
	io.infos[srcPath] = testInfo(100, 100, 4326)

	g := GridCutter{NewRasterSize: [2]int{50, 50}, IO: io}
	triples, err := g.Cut(c, "scene.tif", "")
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	if len(triples) != 4 {
		t.Fatalf("expected 4 tiles, got %d", len(triples))
	}
	for _, tr := range triples {
		if tr.Window.Rows != 50 || tr.Window.Cols != 50 {
			t.Errorf("expected 50x50 windows, got %+v", tr.Window)
		}
		if tr.Geometry.IsNull() {
			t.Errorf("expected a non-null footprint for %q", tr.Name)
		}
	}
}

func TestGridCutterRejectsNonPositiveDims(t *testing.T) {
	c, _ := connector.FromScratch(t.TempDir(), 4326)
	g := GridCutter{NewRasterSize: [2]int{0, 50}, IO: newFakeIO()}
	_, err := g.Cut(c, "scene.tif", "")
	if err == nil {
		t.Fatalf("expected an error for non-positive new raster size")
	}
}

func TestGridCutterTooSmallForGrid(t *testing.T) {
	c, _ := connector.FromScratch(t.TempDir(), 4326)
	io := newFakeIO()
	srcPath := filepath.Join(c.RastersDir(), "scene.tif")
	io.infos[srcPath] = testInfo(1, 1, 4326)

	g := GridCutter{NewRasterSize: [2]int{4, 4}, IO: io}
	_, err := g.Cut(c, "scene.tif", "")
	if err == nil {
		t.Fatalf("expected an error when the raster is too small for the grid")
	}
}

func TestBBoxCutterSameCRS(t *testing.T) {
	c, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	io := newFakeIO()
	srcPath := filepath.Join(c.RastersDir(), "scene.tif")
	io.infos[srcPath] = testInfo(100, 100, 4326)

	// Register the raster with orig_crs_epsg_code equal to the connector's
	// own CRS, so BBoxCutter's Reprojected calls short-circuit without
	// needing a GDAL/OGR runtime (geom.Geometry.Reprojected returns early
	// when source and destination EPSG already match).
	g := geom.New(orb.Polygon{{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}}, 4326)
	extra := c.NewRasterExtra(4326)
	if err := c.AppendRasterRows([]table.Row{{Key: "scene.tif", Geometry: g, Extra: extra}}); err != nil {
		t.Fatalf("AppendRasterRows: %v", err)
	}

	b := BBoxCutter{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20, Name: "clip.tif", IO: io}
	triples, err := b.Cut(c, "scene.tif", "")
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	if len(triples) != 1 || triples[0].Name != "clip.tif" {
		t.Fatalf("expected a single named output, got %v", triples)
	}
	if triples[0].Window.Rows <= 0 || triples[0].Window.Cols <= 0 {
		t.Errorf("expected a positive-sized window, got %+v", triples[0].Window)
	}
}

func TestApplyCutsEveryParallelDirectory(t *testing.T) {
	source, _ := connector.FromScratch(t.TempDir(), 4326)
	target, _ := connector.FromScratch(t.TempDir(), 4326)

	io := newFakeIO()
	rasterSrc := filepath.Join(source.RastersDir(), "scene.tif")
	labelSrc := filepath.Join(source.LabelsDir(), "scene.tif")
	io.infos[rasterSrc] = testInfo(100, 100, 4326)
	io.infos[labelSrc] = testInfo(100, 100, 4326)

	triples := []Triple{
		{Name: "scene_0_0.tif", Window: rasterio.Window{Row: 0, Col: 0, Rows: 50, Cols: 50}},
		{Name: "scene_0_1.tif", Window: rasterio.Window{Row: 0, Col: 50, Rows: 50, Cols: 50}},
	}

	names, err := Apply(source, target, io, "scene.tif", triples)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
	if len(io.cutCalls) != 4 {
		t.Fatalf("expected 4 cut calls (2 triples x 2 directories), got %d", len(io.cutCalls))
	}
	if _, err := os.Stat(filepath.Join(target.RastersDir(), "scene_0_0.tif")); err != nil {
		t.Errorf("expected cut raster file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target.LabelsDir(), "scene_0_1.tif")); err != nil {
		t.Errorf("expected cut label file to exist: %v", err)
	}
}

func TestApplySkipsSecondaryDirWhenSourceFileAbsent(t *testing.T) {
	source, _ := connector.FromScratch(t.TempDir(), 4326)
	target, _ := connector.FromScratch(t.TempDir(), 4326)

	io := newFakeIO()
	rasterSrc := filepath.Join(source.RastersDir(), "scene.tif")
	io.infos[rasterSrc] = testInfo(100, 100, 4326)
	// No label file registered for "scene.tif": the labels directory must
	// be skipped rather than failing the whole cut.

	triples := []Triple{{Name: "scene_0_0.tif", Window: rasterio.Window{Row: 0, Col: 0, Rows: 50, Cols: 50}}}
	names, err := Apply(source, target, io, "scene.tif", triples)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected 1 name, got %v", names)
	}
	if len(io.cutCalls) != 1 {
		t.Fatalf("expected only the rasters-directory cut call, got %d", len(io.cutCalls))
	}
}

func TestApplyFailsWhenPrimaryDirMissing(t *testing.T) {
	source, _ := connector.FromScratch(t.TempDir(), 4326)
	target, _ := connector.FromScratch(t.TempDir(), 4326)

	io := newFakeIO() // no Info registered at all

	triples := []Triple{{Name: "scene_0_0.tif", Window: rasterio.Window{Row: 0, Col: 0, Rows: 50, Cols: 50}}}
	_, err := Apply(source, target, io, "scene.tif", triples)
	if err == nil {
		t.Fatalf("expected an error when the primary raster file is missing")
	}
}
