// Package rasterio is the default implementation of the raster I/O codec
// the core deliberately keeps out of scope, reaching the filesystem only
// through its contracts. It is built on github.com/airbusgeo/godal, the
// GDAL CGO binding, giving cutters and label makers real windowed band
// I/O and CRS reprojection instead of a stub.
//
// Only axis-aligned rasters are supported by CutWindow: gdal_translate's
// "-srcwin" switch derives the output geotransform from the source
// transform automatically, which is correct for axis-aligned footprints
// but not for rotated ones; rotated-footprint resampling is left a
// documented gap (DESIGN.md).
package rasterio

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// Window is a pixel-space sub-rectangle of a source raster.
type Window struct {
	Row, Col, Rows, Cols int
}

// Info describes a raster file's structure as read off disk.
type Info struct {
	Width, Height int
	Bands         int
	GeoTransform  [6]float64
	WKT           string
	EPSG          int
	Bounds        [4]float64 // minX, minY, maxX, maxY in the raster's own CRS
}

// IO is the external raster codec contract. Cutters and label makers
// depend on this interface, not on godal directly, so alternative codecs
// (a test double, a non-GDAL decoder) can be substituted.
type IO interface {
	Info(path string) (Info, error)
	CutWindow(srcPath, dstPath string, win Window, bands []int) error
	NewCategoricalLabel(path string, width, height int, transform [6]float64, epsg int) error
	NewSoftLabel(path string, width, height, bandCount int, transform [6]float64, epsg int) error
	BurnClass(path string, band int, burnValue float64, wkts []string, epsg int, allTouched bool) error
}

// GDAL is the godal-backed IO implementation.
type GDAL struct{}

var _ IO = GDAL{}

func init() {
	godal.RegisterAll()
}

// Info opens path and reports its structure, geotransform, and CRS.
func (GDAL) Info(path string) (Info, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("rasterio: open %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return Info{}, fmt.Errorf("rasterio: geotransform %s: %w", path, err)
	}
	bounds, err := ds.Bounds()
	if err != nil {
		return Info{}, fmt.Errorf("rasterio: bounds %s: %w", path, err)
	}
	wkt := ds.Projection()
	epsg := 0
	if sr := ds.SpatialRef(); sr != nil {
		if code := sr.AuthorityCode("PROJCS"); code != "" {
			fmt.Sscanf(code, "%d", &epsg)
		}
		if epsg == 0 {
			if code := sr.AuthorityCode("GEOGCS"); code != "" {
				fmt.Sscanf(code, "%d", &epsg)
			}
		}
		sr.Close()
	}

	return Info{
		Width:        st.SizeX,
		Height:       st.SizeY,
		Bands:        len(ds.Bands()),
		GeoTransform: gt,
		WKT:          wkt,
		EPSG:         epsg,
		Bounds:       bounds,
	}, nil
}

// CutWindow extracts win from srcPath into a new GeoTIFF at dstPath, using
// gdal_translate's srcwin switch so GDAL derives the cropped geotransform
// for us. bands selects a band subset (1-indexed); nil means all bands.
func (GDAL) CutWindow(srcPath, dstPath string, win Window, bands []int) error {
	ds, err := godal.Open(srcPath)
	if err != nil {
		return fmt.Errorf("rasterio: open %s: %w", srcPath, err)
	}
	defer ds.Close()

	switches := []string{
		"-srcwin",
		fmt.Sprintf("%d", win.Col), fmt.Sprintf("%d", win.Row),
		fmt.Sprintf("%d", win.Cols), fmt.Sprintf("%d", win.Rows),
	}
	for _, b := range bands {
		switches = append(switches, "-b", fmt.Sprintf("%d", b))
	}

	out, err := ds.Translate(dstPath, switches, godal.GTiff)
	if err != nil {
		return fmt.Errorf("rasterio: cut window from %s into %s: %w", srcPath, dstPath, err)
	}
	defer out.Close()
	return nil
}

// NewCategoricalLabel creates a single-band uint8 GeoTIFF of the given size
// and geotransform, zero-initialized (0 = background), ready for per-class
// BurnClass calls.
func (g GDAL) NewCategoricalLabel(path string, width, height int, transform [6]float64, epsg int) error {
	return g.newLabel(path, width, height, 1, godal.Byte, transform, epsg)
}

// NewSoftLabel creates a multi-band float32 GeoTIFF (one band per class,
// plus an implicit background band when the caller asked for one) ready
// for per-class BurnClass calls.
func (g GDAL) NewSoftLabel(path string, width, height, bandCount int, transform [6]float64, epsg int) error {
	return g.newLabel(path, width, height, bandCount, godal.Float32, transform, epsg)
}

func (GDAL) newLabel(path string, width, height, bands int, dtype godal.DataType, transform [6]float64, epsg int) error {
	ds, err := godal.Create(godal.GTiff, path, bands, dtype, width, height)
	if err != nil {
		return fmt.Errorf("rasterio: create label %s: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(transform); err != nil {
		return fmt.Errorf("rasterio: set geotransform on %s: %w", path, err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("rasterio: spatial ref EPSG:%d: %w", epsg, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("rasterio: set spatial ref on %s: %w", path, err)
	}
	return nil
}

// BurnClass rasterizes wkts (already in the label's CRS) onto band of the
// dataset at path with the given constant burn value. Calling this once
// per class, in task-class order, implements the "later classes overwrite
// earlier ones" merge rule for free: each call opens the
// same file in update mode and paints over whatever was there.
func (GDAL) BurnClass(path string, band int, burnValue float64, wkts []string, epsg int, allTouched bool) error {
	if len(wkts) == 0 {
		return nil
	}
	ds, err := godal.Open(path, godal.Update)
	if err != nil {
		return fmt.Errorf("rasterio: open %s for update: %w", path, err)
	}
	defer ds.Close()

	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("rasterio: spatial ref EPSG:%d: %w", epsg, err)
	}
	defer sr.Close()

	opts := []godal.RasterizeGeometryOption{godal.Bands(band), godal.Values(burnValue)}
	if allTouched {
		opts = append(opts, godal.AllTouched())
	}

	for _, w := range wkts {
		g, err := godal.NewGeometryFromWKT(w, sr)
		if err != nil {
			return fmt.Errorf("rasterio: parse burn geometry: %w", err)
		}
		err = ds.RasterizeGeometry(g, opts...)
		g.Close()
		if err != nil {
			return fmt.Errorf("rasterio: rasterize geometry onto %s band %d: %w", path, band, err)
		}
	}
	return nil
}
