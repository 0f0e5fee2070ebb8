package cutter

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/paulmach/orb"
)

// BBoxCutter cuts a single, caller-supplied bounding box (in the
// connector's CRS) out of a source raster, rather than deriving the
// window from a vector or a grid.
type BBoxCutter struct {
	MinX, MinY, MaxX, MaxY float64
	Name                   string // exact name of the single produced child; empty: <stem>_bbox.tif
	IO                     rasterio.IO
}

var _ Cutter = BBoxCutter{}

// Cut ignores vectorName; the box is given directly.
func (b BBoxCutter) Cut(c *connector.Connector, rasterName, _ string) ([]Triple, error) {
	origEPSG, err := c.RasterOrigCRSEPSG(rasterName)
	if err != nil {
		return nil, err
	}
	srcPath := filepath.Join(c.RastersDir(), rasterName)
	info, err := b.IO.Info(srcPath)
	if err != nil {
		return nil, fmt.Errorf("cutter: bbox: inspect %q: %w", rasterName, err)
	}

	box := geom.New(orb.Polygon{{
		{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY}, {b.MinX, b.MinY},
	}}, c.CRSEPSG())
	boxInRasterCRS, err := box.Reprojected(origEPSG)
	if err != nil {
		return nil, fmt.Errorf("cutter: bbox: reproject box: %w", err)
	}
	bound := boxInRasterCRS.Bound()

	gt := info.GeoTransform
	rowA, colA := rowColOf(gt, bound.Min[0], bound.Min[1])
	rowB, colB := rowColOf(gt, bound.Max[0], bound.Max[1])
	minRow, maxRow := minF(rowA, rowB), maxF(rowA, rowB)
	minCol, maxCol := minF(colA, colB), maxF(colA, colB)

	win := rasterio.Window{
		Row:  clampInt(int(minRow), 0, info.Height),
		Col:  clampInt(int(minCol), 0, info.Width),
		Rows: clampInt(int(maxRow-minRow), 1, info.Height),
		Cols: clampInt(int(maxCol-minCol), 1, info.Width),
	}

	name := b.Name
	if name == "" {
		name = stemOf(rasterName, "") + "_bbox.tif"
	}

	childGeom := pixelToGeom(gt, origEPSG, win.Row, win.Col, win.Rows, win.Cols)
	outGeom, err := childGeom.Reprojected(c.CRSEPSG())
	if err != nil {
		return nil, fmt.Errorf("cutter: bbox: reproject child footprint: %w", err)
	}

	return []Triple{{Name: name, Window: win, Geometry: outGeom}}, nil
}
