// Package cutter implements the single-raster cutter interface:
// pluggable strategies that turn one source raster into a set of child
// rasters, each described by a pixel window plus a new name. The shared
// window-application logic, walking a source raster's parallel data
// directories (rasters, labels, ...), enforcing that CRS and bounds agree
// across them, and skipping a directory when the source file is absent,
// lives in Apply as a shared contract; the three variants (grid,
// around-vector, bbox) only compute the list of windows.
package cutter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/paulmach/orb"
)

// Triple is one (window, child footprint, new name) emission, the unit of
// work a Cutter hands back to Apply and to the driver that invoked it.
type Triple struct {
	Name     string
	Window   rasterio.Window
	Geometry geom.Geometry
}

// Cutter emits the list of triples for one source raster, optionally
// scoped to a single target vector (the around-vector variants; grid
// ignores vectorName).
type Cutter interface {
	Cut(c *connector.Connector, rasterName, vectorName string) ([]Triple, error)
}

// Apply walks every parallel raster-data-directory pair between source and
// target (rasters, labels, ...), cutting each triple's window out of
// rasterName's file in the source directory (when present) into a new
// file of the same name in the matching target directory: for every
// directory pair (source_dir_k, target_dir_k), copy the window out of
// the source file into a new file. A cut always moves data from a
// source connector's tree into a (possibly different) target connector's
// tree, even when source and target happen to be the same Connector.
func Apply(source, target *connector.Connector, io rasterio.IO, rasterName string, triples []Triple) ([]string, error) {
	srcDirs := source.RasterDataDirs()
	dstDirs := target.RasterDataDirs()
	if len(srcDirs) != len(dstDirs) {
		return nil, fmt.Errorf("cutter: source and target connectors have different raster_data_dirs arity (%d vs %d)", len(srcDirs), len(dstDirs))
	}

	names := make([]string, 0, len(triples))
	for _, t := range triples {
		var refInfo *rasterio.Info
		for k := range srcDirs {
			srcPath := filepath.Join(srcDirs[k], rasterName)
			info, err := io.Info(srcPath)
			if err != nil {
				if k == 0 {
					return nil, fmt.Errorf("cutter: source raster %q missing in primary directory %s: %w", rasterName, srcDirs[k], err)
				}
				// Secondary directories (labels, ...) may legitimately lack
				// this source file yet: skip the directory pair when the
				// source file is absent and k > 0.
				continue
			}
			if refInfo == nil {
				refInfo = &info
			} else if info.EPSG != refInfo.EPSG || info.Bounds != refInfo.Bounds {
				return nil, geoerr.New(geoerr.InconsistentCutDirs,
					"raster %q disagrees between %s and %s", rasterName, srcDirs[0], srcDirs[k])
			}

			if err := os.MkdirAll(dstDirs[k], 0o755); err != nil {
				return nil, fmt.Errorf("cutter: create target directory %s: %w", dstDirs[k], err)
			}
			dstPath := filepath.Join(dstDirs[k], t.Name)
			if err := io.CutWindow(srcPath, dstPath, t.Window, nil); err != nil {
				return nil, fmt.Errorf("cutter: cut window for %q into %s: %w", t.Name, dstPath, err)
			}
		}
		names = append(names, t.Name)
	}
	return names, nil
}

func pixelToGeom(gt [6]float64, epsg int, minRow, minCol, rows, cols int) geom.Geometry {
	x0 := gt[0] + float64(minCol)*gt[1]
	x1 := gt[0] + float64(minCol+cols)*gt[1]
	y0 := gt[3] + float64(minRow)*gt[5]
	y1 := gt[3] + float64(minRow+rows)*gt[5]
	minX, maxX := x0, x1
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := y0, y1
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	ring := orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
	return geom.New(orb.Polygon{ring}, epsg)
}

// rowColOf converts a geographic point to fractional pixel row/col under
// geotransform gt (the standard GDAL affine convention).
func rowColOf(gt [6]float64, x, y float64) (row, col float64) {
	// Invert the (no-rotation) affine transform: x = gt0 + col*gt1, y = gt3 + row*gt5.
	col = (x - gt[0]) / gt[1]
	row = (y - gt[3]) / gt[5]
	return row, col
}

// ceilDiv returns ceil(a/b) for positive floats.
func ceilDiv(a, b float64) int {
	return int(math.Ceil(a / b))
}
