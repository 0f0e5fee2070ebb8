package cutter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
)

// GridCutter tiles a source raster into a grid of fixed-size tiles aligned
// to its top-left corner. NewRasterSize is the pixel size of each tile
// (rows, cols); the number of tiles per dimension is derived by floor
// division of the source raster's dimensions, not supplied directly.
type GridCutter struct {
	NewRasterSize [2]int // rows, cols, in pixels
	IO            rasterio.IO
	Stem          string // defaults to the source raster name, extension stripped
}

var _ Cutter = GridCutter{}

func stemOf(name, override string) string {
	if override != "" {
		return override
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Cut ignores vectorName; the grid cutter tiles unconditionally.
func (g GridCutter) Cut(c *connector.Connector, rasterName, _ string) ([]Triple, error) {
	tileH, tileW := g.NewRasterSize[0], g.NewRasterSize[1]
	if tileH <= 0 || tileW <= 0 {
		return nil, fmt.Errorf("cutter: grid cutter requires a positive new raster size, got %dx%d", tileH, tileW)
	}
	srcPath := filepath.Join(c.RastersDir(), rasterName)
	info, err := g.IO.Info(srcPath)
	if err != nil {
		return nil, fmt.Errorf("cutter: grid: inspect %q: %w", rasterName, err)
	}

	cols := info.Width / tileW
	rows := info.Height / tileH
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("cutter: grid: raster %q (%dx%d) too small for %dx%d tiles", rasterName, info.Width, info.Height, tileH, tileW)
	}
	if info.Width%tileW != 0 || info.Height%tileH != 0 {
		c.Logger().Warn("cutter: grid: source dimensions not evenly divisible, trailing pixels dropped",
			"raster", rasterName, "width", info.Width, "height", info.Height, "tile_rows", tileH, "tile_cols", tileW)
	}

	stem := stemOf(rasterName, g.Stem)
	triples := make([]Triple, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			win := rasterio.Window{Row: row * tileH, Col: col * tileW, Rows: tileH, Cols: tileW}
			name := fmt.Sprintf("%s_%d_%d.tif", stem, row, col)
			triples = append(triples, Triple{
				Name:     name,
				Window:   win,
				Geometry: pixelToGeom(info.GeoTransform, info.EPSG, win.Row, win.Col, win.Rows, win.Cols),
			})
		}
	}
	return triples, nil
}
