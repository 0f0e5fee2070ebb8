package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/cutter"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/MeKo-Tech/geoconnector/internal/table"
	"github.com/MeKo-Tech/geoconnector/internal/worker"
)

// RasterDriver is the iterate-over-rasters instantiation of the
// dataset-derivation framework: for every source raster accepted by
// Filter, cut it into the target connector with Cutter, then fold the
// results back into the target's graph and tables in one bulk pass so
// the operation is atomic from the caller's point of view.
type RasterDriver struct {
	Name       string
	Cutter     cutter.Cutter
	Filter     RasterFilter
	LabelMaker connector.LabelMaker // optional
	IO         rasterio.IO
	Workers    int
	OnProgress worker.ProgressFunc
}

type rasterCutResult struct {
	source  string
	triples []cutter.Triple
	names   []string
}

// Run reads sourceDir read-only and grows (or creates) the connector at
// targetDir, persisting its own cut_rasters bookkeeping alongside the
// target connector; the Filter receives that set, so a filter such as
// RastersNotPreviouslyCutOnly makes a repeated Run skip rasters already
// processed by a driver of this Name.
func (d *RasterDriver) Run(ctx context.Context, sourceDir, targetDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := connector.FromDataDir(sourceDir, logger)
	if err != nil {
		return fmt.Errorf("raster driver %q: open source: %w", d.Name, err)
	}

	target, err := connector.FromDataDir(targetDir, logger)
	if err != nil {
		target, err = connector.FromScratch(targetDir, source.CRSEPSG(), connector.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("raster driver %q: create target: %w", d.Name, err)
		}
	}
	if target.CRSEPSG() != source.CRSEPSG() {
		return geoerr.New(geoerr.CrsMismatch, "raster driver %q: source CRS %d != target CRS %d", d.Name, source.CRSEPSG(), target.CRSEPSG())
	}

	addedVectors, err := mergeMissingVectors(source, target)
	if err != nil {
		return fmt.Errorf("raster driver %q: merge vectors: %w", d.Name, err)
	}

	stateFile := target.DriverStateFile(d.Name)
	state, err := loadRasterState(stateFile)
	if err != nil {
		return fmt.Errorf("raster driver %q: %w", d.Name, err)
	}

	preexisting := map[string]bool{}
	for _, r := range target.RastersTable().Keys() {
		preexisting[r] = true
	}

	var accepted []string
	for _, r := range source.RastersTable().Keys() {
		if d.Filter(r, target, source, state.CutRasters) {
			accepted = append(accepted, r)
		}
	}

	pool := worker.New(worker.Config{Workers: d.Workers, OnProgress: d.OnProgress})
	tasks := make([]worker.Func, len(accepted))
	for i, r := range accepted {
		r := r
		tasks[i] = func(ctx context.Context) (any, error) {
			triples, err := d.Cutter.Cut(source, r, "")
			if err != nil {
				return nil, fmt.Errorf("raster driver %q: cut %q: %w", d.Name, r, err)
			}
			names, err := cutter.Apply(source, target, d.IO, r, triples)
			if err != nil {
				return nil, fmt.Errorf("raster driver %q: apply %q: %w", d.Name, r, err)
			}
			return rasterCutResult{source: r, triples: triples, names: names}, nil
		}
	}
	results := pool.Run(ctx, tasks)

	var pending []table.Row
	for i, res := range results {
		if res.Err != nil {
			return res.Err
		}
		rc := res.Value.(rasterCutResult)
		state.CutRasters[accepted[i]] = true

		origEPSG, err := source.RasterOrigCRSEPSG(rc.source)
		if err != nil {
			return fmt.Errorf("raster driver %q: %w", d.Name, err)
		}
		for j, name := range rc.names {
			geometry := rc.triples[j].Geometry
			if err := target.AddRasterToGraphModifyVectors(name, geometry); err != nil {
				return fmt.Errorf("raster driver %q: link %q: %w", d.Name, name, err)
			}
			pending = append(pending, table.Row{Key: name, Geometry: geometry, Extra: target.NewRasterExtra(origEPSG)})
		}
	}

	if len(pending) > 0 {
		if err := target.AppendRasterRows(pending); err != nil {
			return fmt.Errorf("raster driver %q: append rows: %w", d.Name, err)
		}
	}

	if d.LabelMaker != nil && len(addedVectors) > 0 {
		affected := map[string]bool{}
		for _, v := range addedVectors {
			rasters, err := target.RastersIntersectingVector(v)
			if err != nil && !geoerr.Of(err, geoerr.UnknownVertex) {
				return fmt.Errorf("raster driver %q: %w", d.Name, err)
			}
			for _, r := range rasters {
				if preexisting[r] {
					affected[r] = true
				}
			}
		}
		if len(affected) > 0 {
			names := make([]string, 0, len(affected))
			for r := range affected {
				names = append(names, r)
			}
			sort.Strings(names)
			if err := d.LabelMaker.MakeLabels(target, names); err != nil {
				return fmt.Errorf("raster driver %q: recompute labels: %w", d.Name, err)
			}
		}
	}

	if err := target.Save(); err != nil {
		return fmt.Errorf("raster driver %q: save target: %w", d.Name, err)
	}
	return saveRasterState(stateFile, state)
}

// mergeMissingVectors copies every source vector absent from target into
// target, returning the names actually added.
func mergeMissingVectors(source, target *connector.Connector) ([]string, error) {
	existing := map[string]bool{}
	for _, v := range target.VectorsTable().Keys() {
		existing[v] = true
	}

	var rows []table.Row
	var added []string
	for _, v := range source.VectorsTable().Keys() {
		if existing[v] {
			continue
		}
		row, ok := source.VectorsTable().Get(v)
		if !ok {
			continue
		}
		rows = append(rows, row)
		added = append(added, v)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := target.AddToVectors(rows, nil); err != nil {
		return nil, err
	}
	return added, nil
}
