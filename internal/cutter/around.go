package cutter

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
)

// Mode selects how an AroundVectorCutter positions its cutting grid
// relative to the target vector.
type Mode string

const (
	ModeRandom   Mode = "random"
	ModeCentered Mode = "centered"
	ModeVariable Mode = "variable"
)

// AroundVectorCutter cuts one or more windows around a single target
// vector, sized and positioned according to Mode. A cutter instance seeds
// its PRNG once (lazily, from RandomSeed) and reuses it across every Cut
// call for reproducibility: one cutter instance per logical run.
type AroundVectorCutter struct {
	Mode                     Mode
	NewRasterSize            [2]int // rows, cols; required for random/centered
	MinNewRasterSize         [2]int // rows, cols; required for variable
	ScalingFactor            float64
	RandomSeed               int64
	IO                       rasterio.IO
	Stem                     string

	rng *rand.Rand
}

var _ Cutter = (*AroundVectorCutter)(nil)

func (a *AroundVectorCutter) rand() *rand.Rand {
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(a.RandomSeed))
	}
	return a.rng
}

// Cut implements the around-vector algorithm for vector vectorName
// against source raster rasterName, assumed by the caller (driver or
// direct invocation) to already have a non-empty intersection.
func (a *AroundVectorCutter) Cut(c *connector.Connector, rasterName, vectorName string) ([]Triple, error) {
	if vectorName == "" {
		return nil, geoerr.New(geoerr.UnknownMode, "around-vector cutter requires a target vector")
	}
	vRow, ok := c.VectorsTable().Get(vectorName)
	if !ok {
		return nil, geoerr.New(geoerr.UnknownKey, "vector %q not found", vectorName)
	}

	origEPSG, err := c.RasterOrigCRSEPSG(rasterName)
	if err != nil {
		return nil, err
	}
	srcPath := filepath.Join(c.RastersDir(), rasterName)
	info, err := a.IO.Info(srcPath)
	if err != nil {
		return nil, fmt.Errorf("cutter: around-vector: inspect %q: %w", rasterName, err)
	}

	vGeom, err := vRow.Geometry.Reprojected(origEPSG)
	if err != nil {
		return nil, fmt.Errorf("cutter: around-vector: reproject vector %q: %w", vectorName, err)
	}

	footprint := pixelToGeom(info.GeoTransform, origEPSG, 0, 0, info.Height, info.Width)
	contained, err := footprint.Contains(vGeom)
	if err != nil {
		return nil, fmt.Errorf("cutter: around-vector: containment check: %w", err)
	}
	clipBound := vGeom.Bound()
	if !contained {
		// Step 1's "intersect with the footprint" only matters for the
		// pixel-space envelope computed next, so clamping the bounding
		// box to the footprint's bound is sufficient here.
		fb := footprint.Bound()
		clipBound.Min[0] = maxF(clipBound.Min[0], fb.Min[0])
		clipBound.Min[1] = maxF(clipBound.Min[1], fb.Min[1])
		clipBound.Max[0] = minF(clipBound.Max[0], fb.Max[0])
		clipBound.Max[1] = minF(clipBound.Max[1], fb.Max[1])
	}

	gt := info.GeoTransform
	rowA, colA := rowColOf(gt, clipBound.Min[0], clipBound.Min[1])
	rowB, colB := rowColOf(gt, clipBound.Max[0], clipBound.Max[1])
	minRow, maxRow := minF(rowA, rowB), maxF(rowA, rowB)
	minCol, maxCol := minF(colA, colB), maxF(colA, colB)

	var wRows, wCols int
	switch a.Mode {
	case ModeRandom, ModeCentered:
		wRows, wCols = a.NewRasterSize[0], a.NewRasterSize[1]
	case ModeVariable:
		wRows = maxInt(int(a.ScalingFactor*(maxRow-minRow)), a.MinNewRasterSize[0])
		wCols = maxInt(int(a.ScalingFactor*(maxCol-minCol)), a.MinNewRasterSize[1])
	default:
		return nil, geoerr.New(geoerr.UnknownMode, "around-vector cutter: unknown mode %q", a.Mode)
	}
	if wRows <= 0 || wCols <= 0 {
		return nil, fmt.Errorf("cutter: around-vector: non-positive window size %dx%d", wRows, wCols)
	}

	nR := ceilDiv(maxRow-minRow, float64(wRows))
	nC := ceilDiv(maxCol-minCol, float64(wCols))
	if nR < 1 {
		nR = 1
	}
	if nC < 1 {
		nC = 1
	}

	var rowOff, colOff int
	switch a.Mode {
	case ModeRandom:
		rowLo := maxInt(0, int(maxRow)-wRows*nR)
		rowHi := minInt(int(minRow), info.Height-wRows*nR)
		colLo := maxInt(0, int(maxCol)-wCols*nC)
		colHi := minInt(int(minCol), info.Width-wCols*nC)
		rowOff = uniformInt(a.rand(), rowLo, rowHi)
		colOff = uniformInt(a.rand(), colLo, colHi)
	case ModeCentered, ModeVariable:
		centRow := (minRow + maxRow) / 2
		centCol := (minCol + maxCol) / 2
		rowOff = int(centRow) - (wRows*nR)/2
		colOff = int(centCol) - (wCols*nC)/2
	}

	stem := stemOf(rasterName, a.Stem)
	triples := make([]Triple, 0, nR*nC)
	for i := 0; i < nR; i++ {
		for j := 0; j < nC; j++ {
			win := rasterio.Window{
				Row:  clampInt(rowOff+i*wRows, 0, info.Height-wRows),
				Col:  clampInt(colOff+j*wCols, 0, info.Width-wCols),
				Rows: wRows,
				Cols: wCols,
			}
			winGeom := pixelToGeom(gt, origEPSG, win.Row, win.Col, win.Rows, win.Cols)
			intersects, err := winGeom.Intersects(vGeom)
			if err != nil {
				return nil, fmt.Errorf("cutter: around-vector: window/vector intersect check: %w", err)
			}
			if !intersects {
				continue
			}

			name := stem + "_" + vectorName
			if nR > 1 || nC > 1 {
				name = fmt.Sprintf("%s_%d_%d", name, i, j)
			}
			name += ".tif"

			outGeom, err := winGeom.Reprojected(c.CRSEPSG())
			if err != nil {
				return nil, fmt.Errorf("cutter: around-vector: reproject child footprint: %w", err)
			}
			triples = append(triples, Triple{Name: name, Window: win, Geometry: outGeom})
		}
	}
	return triples, nil
}

func uniformInt(r *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
