package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/cutter"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
	"github.com/MeKo-Tech/geoconnector/internal/table"
	"github.com/MeKo-Tech/geoconnector/internal/worker"
)

// VectorDriver is the iterate-over-vectors instantiation of the
// dataset-derivation framework: for every target vector
// accepted by Filter, Selector narrows the source rasters intersecting it
// down to the ones to cut this round, and Cutter (typically an
// around-vector cutter) produces the child tiles.
type VectorDriver struct {
	Name       string
	Cutter     cutter.Cutter
	Filter     VectorFilter
	Selector   RasterSelector
	LabelMaker connector.LabelMaker // optional
	IO         rasterio.IO
	Workers    int
	RandomSeed int64
	OnProgress worker.ProgressFunc
}

type vectorCutJob struct {
	vector    string
	rasterIDs []string
}

type vectorCutResult struct {
	vector  string
	rasters []string
	triples []cutter.Triple
	names   []string
}

// Run mirrors RasterDriver.Run's shape: read sourceDir, grow targetDir, in
// one bulk pass per invocation. Source vectors missing from the target
// are merged in first, as in RasterDriver.Run; the cuts then add rasters.
func (d *VectorDriver) Run(ctx context.Context, sourceDir, targetDir string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	source, err := connector.FromDataDir(sourceDir, logger)
	if err != nil {
		return fmt.Errorf("vector driver %q: open source: %w", d.Name, err)
	}

	target, err := connector.FromDataDir(targetDir, logger)
	if err != nil {
		target, err = connector.FromScratch(targetDir, source.CRSEPSG(), connector.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("vector driver %q: create target: %w", d.Name, err)
		}
	}
	if target.CRSEPSG() != source.CRSEPSG() {
		return geoerr.New(geoerr.CrsMismatch, "vector driver %q: source CRS %d != target CRS %d", d.Name, source.CRSEPSG(), target.CRSEPSG())
	}

	if _, err := mergeMissingVectors(source, target); err != nil {
		return fmt.Errorf("vector driver %q: merge vectors: %w", d.Name, err)
	}

	stateFile := target.DriverStateFile(d.Name)
	state, err := loadVectorState(stateFile)
	if err != nil {
		return fmt.Errorf("vector driver %q: %w", d.Name, err)
	}

	rng := rand.New(rand.NewSource(d.RandomSeed))

	var jobs []vectorCutJob
	for _, v := range target.VectorsTable().Keys() {
		if !d.Filter(v, target, source, state.CutRasters) {
			continue
		}
		candidates, err := source.RastersIntersectingVector(v)
		if err != nil {
			if geoerr.Of(err, geoerr.UnknownVertex) {
				continue
			}
			return fmt.Errorf("vector driver %q: %w", d.Name, err)
		}
		already := map[string]bool{}
		for _, r := range state.CutRasters[v] {
			already[r] = true
		}
		remaining := make([]string, 0, len(candidates))
		for _, r := range candidates {
			if !already[r] {
				remaining = append(remaining, r)
			}
		}
		chosen := d.Selector(v, remaining, target, source, state.CutRasters, rng)
		if len(chosen) == 0 {
			continue
		}
		jobs = append(jobs, vectorCutJob{vector: v, rasterIDs: chosen})
	}

	pool := worker.New(worker.Config{Workers: d.Workers, OnProgress: d.OnProgress})
	tasks := make([]worker.Func, 0, len(jobs))
	for _, j := range jobs {
		j := j
		for _, r := range j.rasterIDs {
			v, r := j.vector, r
			tasks = append(tasks, func(ctx context.Context) (any, error) {
				triples, err := d.Cutter.Cut(source, r, v)
				if err != nil {
					return nil, fmt.Errorf("vector driver %q: cut %q for %q: %w", d.Name, r, v, err)
				}
				names, err := cutter.Apply(source, target, d.IO, r, triples)
				if err != nil {
					return nil, fmt.Errorf("vector driver %q: apply %q for %q: %w", d.Name, r, v, err)
				}
				return vectorCutResult{vector: v, rasters: []string{r}, triples: triples, names: names}, nil
			})
		}
	}
	results := pool.Run(ctx, tasks)

	var pending []table.Row
	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
		rc := res.Value.(vectorCutResult)
		state.CutRasters[rc.vector] = append(state.CutRasters[rc.vector], rc.rasters...)

		origEPSG, err := source.RasterOrigCRSEPSG(rc.rasters[0])
		if err != nil {
			return fmt.Errorf("vector driver %q: %w", d.Name, err)
		}
		for j, name := range rc.names {
			geometry := rc.triples[j].Geometry
			if err := target.AddRasterToGraphModifyVectors(name, geometry); err != nil {
				return fmt.Errorf("vector driver %q: link %q: %w", d.Name, name, err)
			}
			pending = append(pending, table.Row{Key: name, Geometry: geometry, Extra: target.NewRasterExtra(origEPSG)})
		}
	}

	if len(pending) > 0 {
		if err := target.AppendRasterRows(pending); err != nil {
			return fmt.Errorf("vector driver %q: append rows: %w", d.Name, err)
		}
		if d.LabelMaker != nil {
			names := make([]string, 0, len(pending))
			for _, row := range pending {
				names = append(names, row.Key)
			}
			if err := d.LabelMaker.MakeLabels(target, names); err != nil {
				return fmt.Errorf("vector driver %q: make labels: %w", d.Name, err)
			}
		}
	}

	if err := target.Save(); err != nil {
		return fmt.Errorf("vector driver %q: save target: %w", d.Name, err)
	}
	return saveVectorState(stateFile, state)
}
