// Package connector implements the Connector: the catalog aggregate
// owning the vectors/rasters tables (internal/table), the bipartite spatial
// index (internal/graph), and the process-wide attribute bag, tying them
// together so every mutation keeps the tables and graph consistent with
// each other. The add/drop operations for vectors and rasters follow the
// same validate-reproject-link-append step ordering in both directions,
// collapsed into this one type rather than split across mixins.
package connector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/graph"
	"github.com/MeKo-Tech/geoconnector/internal/table"
)

const (
	rastersDirName    = "rasters"
	labelsDirName     = "labels"
	connectorDirName  = "connector"
	rastersFileName   = "rasters.geojson"
	vectorsFileName   = "vectors.geojson"
	graphFileName     = "graph.json"
	attrsFileName     = "attrs.json"
	vectorIndexName   = "vector_name"
	rasterIndexName   = "raster_name"
	origCRSColumn     = "orig_crs_epsg_code"
	vectorTypeColumn  = "type"
	probClassPrefix   = "prob_of_class_"
)

// LabelMaker is the label-maker contract a Connector calls into from add/drop
// operations. Implementations live in package labelmaker; the interface is
// declared here (the consumer) to avoid a connector<->labelmaker import
// cycle.
type LabelMaker interface {
	LabelType() string
	MakeLabels(c *Connector, rasterNames []string) error
	DeleteLabels(c *Connector, rasterNames []string) error
}

// Connector is the top-level aggregate: tables + graph + attrs, rooted at
// one on-disk data directory that it owns exclusively.
type Connector struct {
	dataDir string
	attrs   Attrs
	graph   *graph.Graph
	vectors *table.Table
	rasters *table.Table
	log     *slog.Logger
}

// Option configures a Connector at construction time.
type Option func(*Connector)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithTaskVectorClasses sets task_vector_classes and background_class,
// enforcing that the two stay disjoint.
func WithTaskVectorClasses(classes []string, background *string) Option {
	return func(c *Connector) {
		_ = c.attrs.SetTaskVectorClasses(classes, background)
	}
}

func requiredVectorColumns() []string { return nil }
func requiredRasterColumns() []string { return []string{origCRSColumn} }

// FromScratch creates a brand-new, empty Connector rooted at dataDir.
func FromScratch(dataDir string, crsEPSG int, opts ...Option) (*Connector, error) {
	c := &Connector{
		dataDir: dataDir,
		attrs:   newAttrs(crsEPSG),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.graph = graph.New(c.log)
	c.vectors = table.New(vectorIndexName, requiredVectorColumns(), c.log)
	c.rasters = table.New(rasterIndexName, requiredRasterColumns(), c.log)
	return c, nil
}

// FromDataDir rehydrates a Connector previously written by Save.
func FromDataDir(dataDir string, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	connDir := filepath.Join(dataDir, connectorDirName)

	attrs, err := loadAttrs(filepath.Join(connDir, attrsFileName))
	if err != nil {
		return nil, err
	}

	g, err := graph.Load(filepath.Join(connDir, graphFileName), logger)
	if err != nil {
		return nil, err
	}

	vectors, err := table.Load(filepath.Join(connDir, vectorsFileName), vectorIndexName, requiredVectorColumns(), attrs.CRSEPSGCode, logger)
	if err != nil {
		return nil, err
	}
	rasters, err := table.Load(filepath.Join(connDir, rastersFileName), rasterIndexName, requiredRasterColumns(), attrs.CRSEPSGCode, logger)
	if err != nil {
		return nil, err
	}

	return &Connector{
		dataDir: dataDir,
		attrs:   attrs,
		graph:   g,
		vectors: vectors,
		rasters: rasters,
		log:     logger,
	}, nil
}

// Save persists tables, graph, and attrs under dataDir/connector/.
func (c *Connector) Save() error {
	connDir := filepath.Join(c.dataDir, connectorDirName)
	if err := os.MkdirAll(connDir, 0o755); err != nil {
		return fmt.Errorf("connector: create connector dir: %w", err)
	}
	if err := c.rasters.Save(filepath.Join(connDir, rastersFileName)); err != nil {
		return err
	}
	if err := c.vectors.Save(filepath.Join(connDir, vectorsFileName)); err != nil {
		return err
	}
	if err := c.graph.Save(filepath.Join(connDir, graphFileName)); err != nil {
		return err
	}
	return saveAttrs(filepath.Join(connDir, attrsFileName), c.attrs)
}

// DataDir returns the root directory this Connector owns.
func (c *Connector) DataDir() string { return c.dataDir }

// RastersDir is where raster data files live, one per raster name.
func (c *Connector) RastersDir() string { return filepath.Join(c.dataDir, rastersDirName) }

// LabelsDir is where label files live, mirroring raster names.
func (c *Connector) LabelsDir() string { return filepath.Join(c.dataDir, labelsDirName) }

// RasterDataDirs lists every parallel per-raster directory the cutter must
// keep in sync: rasters first, then labels.
func (c *Connector) RasterDataDirs() []string {
	return []string{c.RastersDir(), c.LabelsDir()}
}

// DriverStateFile returns the path a derivation driver named name
// should read/write its own persisted state from.
func (c *Connector) DriverStateFile(name string) string {
	return filepath.Join(c.dataDir, connectorDirName, name+".json")
}

// CRSEPSG returns the connector's CRS.
func (c *Connector) CRSEPSG() int { return c.attrs.CRSEPSGCode }

// Attrs returns a copy of the attribute bag.
func (c *Connector) Attrs() Attrs { return c.attrs }

// SetLabelType records which label maker last regenerated labels.
func (c *Connector) SetLabelType(t string) { c.attrs.LabelType = t }

// SetTaskVectorClasses updates the connector's class list and background
// class after construction, enforcing disjointness between the two.
func (c *Connector) SetTaskVectorClasses(classes []string, background *string) error {
	return c.attrs.SetTaskVectorClasses(classes, background)
}

// Logger returns the connector's logger.
func (c *Connector) Logger() *slog.Logger { return c.log }

// VectorTypeColumnName returns the Extra column name carrying a vector's
// categorical class ("type"), as read by the categorical label maker and
// the class-combine converter.
func (c *Connector) VectorTypeColumnName() string { return vectorTypeColumn }

// ProbClassColumnName returns the Extra column name carrying a vector's
// per-class probability for class, as read/written by the soft-categorical
// label maker and converter.
func (c *Connector) ProbClassColumnName(class string) string { return probClassPrefix + class }

// ProbClassPrefix returns the column-name prefix used for soft-categorical
// probability columns, for callers that need to recognize such columns
// without knowing a specific class name in advance (the converter, when
// dropping columns for removed classes).
func (c *Connector) ProbClassPrefix() string { return probClassPrefix }

// Vectors / Rasters expose the underlying tables read-only to callers in
// other packages (cutters, label makers, drivers) that need row data.
func (c *Connector) VectorsTable() *table.Table { return c.vectors }
func (c *Connector) RastersTable() *table.Table { return c.rasters }

// AddToRasters validates, reprojects, and inserts newRasters, extending the
// spatial graph incrementally, then (if labelMaker is non-nil) requests
// labels for exactly the newly added raster names.
func (c *Connector) AddToRasters(newRasters []table.Row, labelMaker LabelMaker) error {
	rows := make([]table.Row, len(newRasters))
	for i, r := range newRasters {
		rows[i] = r
		if !r.Geometry.IsNull() && r.Geometry.EPSG != c.attrs.CRSEPSGCode {
			reproj, err := r.Geometry.Reprojected(c.attrs.CRSEPSGCode)
			if err != nil {
				return fmt.Errorf("connector: reproject raster %q: %w", r.Key, err)
			}
			rows[i].Geometry = reproj
		}
	}

	if err := c.rasters.Insert(rows); err != nil {
		return err
	}

	added := make([]string, 0, len(rows))
	for _, r := range rows {
		if err := c.graph.AddVertex(r.Key, graph.ColorRaster); err != nil {
			return err
		}
		if err := c.linkRasterToVectors(r.Key, r.Geometry); err != nil {
			return err
		}
		added = append(added, r.Key)
	}

	if labelMaker != nil {
		if err := labelMaker.MakeLabels(c, added); err != nil {
			return fmt.Errorf("connector: make labels for added rasters: %w", err)
		}
	}
	return nil
}

// linkRasterToVectors computes edges between raster r (with footprint
// rasterGeom) and every existing vector, incrementing raster_count on each
// newly contains-edged vector.
func (c *Connector) linkRasterToVectors(r string, rasterGeom geom.Geometry) error {
	for _, vKey := range c.vectors.Keys() {
		vRow, ok := c.vectors.Get(vKey)
		if !ok {
			continue
		}
		relation, err := geom.Relate(rasterGeom, vRow.Geometry)
		if err != nil {
			return fmt.Errorf("connector: relate raster %q to vector %q: %w", r, vKey, err)
		}
		if relation == geom.RelationNone {
			continue
		}
		if err := c.graph.AddEdge(vKey, graph.ColorVector, r, relation, true); err != nil {
			return err
		}
		if relation == geom.RelationContains {
			if err := c.bumpRasterCount(vKey, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Connector) bumpRasterCount(vKey string, delta int) error {
	row, ok := c.vectors.Get(vKey)
	if !ok {
		return geoerr.New(geoerr.UnknownKey, "vector %q not found", vKey)
	}
	count := 0
	if v, ok := row.Extra[c.attrs.RasterCountColName()]; ok {
		count = toInt(v)
	}
	return c.vectors.SetExtra(vKey, c.attrs.RasterCountColName(), count+delta)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// DropRasters removes the named rasters, decrementing raster_count on every
// vector they contained, then deletes each raster's vertex and (optionally)
// its on-disk files across every registered raster data directory.
func (c *Connector) DropRasters(names []string, removeFromDisk bool, labelMaker LabelMaker) error {
	c.rasters.Drop(names)

	for _, r := range names {
		contained, err := c.VectorsContainedInRaster(r)
		if err != nil && !geoerr.Of(err, geoerr.UnknownVertex) {
			return err
		}
		for _, v := range contained {
			if err := c.bumpRasterCount(v, -1); err != nil {
				return err
			}
		}
		if c.graph.HasVertex(r, graph.ColorRaster) {
			if err := c.graph.DeleteVertex(r, graph.ColorRaster, true); err != nil {
				return err
			}
		}
	}

	if removeFromDisk {
		for _, dir := range c.RasterDataDirs() {
			for _, r := range names {
				_ = os.Remove(filepath.Join(dir, r))
			}
		}
		if labelMaker != nil {
			if err := labelMaker.DeleteLabels(c, names); err != nil {
				return fmt.Errorf("connector: delete labels for dropped rasters: %w", err)
			}
		}
	}
	return nil
}

// AddToVectors validates, reprojects, zero-initializes raster_count, and
// inserts newVectors, extending the spatial graph incrementally, then (if
// labelMaker is non-nil) recomputes labels for every raster that now
// intersects a newly added vector.
func (c *Connector) AddToVectors(newVectors []table.Row, labelMaker LabelMaker) error {
	rows := make([]table.Row, len(newVectors))
	for i, r := range newVectors {
		rows[i] = r
		if !r.Geometry.IsNull() && r.Geometry.EPSG != c.attrs.CRSEPSGCode {
			reproj, err := r.Geometry.Reprojected(c.attrs.CRSEPSGCode)
			if err != nil {
				return fmt.Errorf("connector: reproject vector %q: %w", r.Key, err)
			}
			rows[i].Geometry = reproj
		}
		if rows[i].Extra == nil {
			rows[i].Extra = map[string]any{}
		}
		rows[i].Extra[c.attrs.RasterCountColName()] = 0
	}

	if err := c.vectors.Insert(rows); err != nil {
		return err
	}

	affectedRasters := map[string]bool{}
	for _, r := range rows {
		if err := c.graph.AddVertex(r.Key, graph.ColorVector); err != nil {
			return err
		}
		count := 0
		for _, rKey := range c.rasters.Keys() {
			rRow, ok := c.rasters.Get(rKey)
			if !ok {
				continue
			}
			relation, err := geom.Relate(rRow.Geometry, r.Geometry)
			if err != nil {
				return fmt.Errorf("connector: relate vector %q to raster %q: %w", r.Key, rKey, err)
			}
			if relation == geom.RelationNone {
				continue
			}
			if err := c.graph.AddEdge(r.Key, graph.ColorVector, rKey, relation, true); err != nil {
				return err
			}
			affectedRasters[rKey] = true
			if relation == geom.RelationContains {
				count++
			}
		}
		if count > 0 {
			if err := c.vectors.SetExtra(r.Key, c.attrs.RasterCountColName(), count); err != nil {
				return err
			}
		}
	}

	if labelMaker != nil && len(affectedRasters) > 0 {
		names := make([]string, 0, len(affectedRasters))
		for r := range affectedRasters {
			names = append(names, r)
		}
		if err := labelMaker.MakeLabels(c, names); err != nil {
			return fmt.Errorf("connector: recompute labels for affected rasters: %w", err)
		}
	}
	return nil
}

// DropVectors removes the named vectors, then regenerates labels for
// every raster that had intersected a dropped vector, using
// labelMaker != nil as the guard so a nil label maker is unambiguously
// "no relabeling requested" rather than a truthiness check on a bare bool.
func (c *Connector) DropVectors(names []string, labelMaker LabelMaker) error {
	affected := map[string]bool{}
	for _, v := range names {
		rasters, err := c.RastersIntersectingVector(v)
		if err != nil && !geoerr.Of(err, geoerr.UnknownVertex) {
			return err
		}
		for _, r := range rasters {
			affected[r] = true
		}
		if c.graph.HasVertex(v, graph.ColorVector) {
			if err := c.graph.DeleteVertex(v, graph.ColorVector, true); err != nil {
				return err
			}
		}
	}
	c.vectors.Drop(names)

	if labelMaker != nil && len(affected) > 0 {
		rasterNames := make([]string, 0, len(affected))
		for r := range affected {
			rasterNames = append(rasterNames, r)
		}
		if err := labelMaker.DeleteLabels(c, rasterNames); err != nil {
			return fmt.Errorf("connector: delete stale labels: %w", err)
		}
		if err := labelMaker.MakeLabels(c, rasterNames); err != nil {
			return fmt.Errorf("connector: regenerate labels after vector drop: %w", err)
		}
	}
	return nil
}

// AddRasterToGraphModifyVectors performs the raster-add edge computation
// (graph vertex + edges + raster_count bumps) without touching the rasters
// table, exported because a derivation driver (a separate package) calls
// it directly while appending raster rows in bulk at the end of its loop.
func (c *Connector) AddRasterToGraphModifyVectors(name string, footprint geom.Geometry) error {
	if err := c.graph.AddVertex(name, graph.ColorRaster); err != nil {
		return err
	}
	return c.linkRasterToVectors(name, footprint)
}

// RasterOrigCRSEPSG returns the CRS a raster's underlying file was
// originally captured in, as recorded in its orig_crs_epsg_code column at
// add time. Cutters need this to reproject vector geometries into the
// raster's native pixel grid before computing pixel-space envelopes.
func (c *Connector) RasterOrigCRSEPSG(name string) (int, error) {
	row, ok := c.rasters.Get(name)
	if !ok {
		return 0, geoerr.New(geoerr.UnknownKey, "raster %q not found", name)
	}
	v, ok := row.Extra[origCRSColumn]
	if !ok {
		return 0, geoerr.New(geoerr.SchemaMismatch, "raster %q missing %s column", name, origCRSColumn)
	}
	return toInt(v), nil
}

// NewRasterExtra builds the minimal Extra map a freshly cut raster row
// must carry so Insert's required-column check (origCRSColumn) passes.
// Derivation drivers use this when assembling child rows emitted by a cutter,
// propagating the source raster's original CRS to the cut tile.
func (c *Connector) NewRasterExtra(origEPSG int) map[string]any {
	return map[string]any{origCRSColumn: origEPSG}
}

// AppendRasterRows appends pre-validated rows (already linked into the
// graph by AddRasterToGraphModifyVectors) straight into the rasters table,
// bypassing the graph-linking half of AddToRasters. Used by derivation drivers.
func (c *Connector) AppendRasterRows(rows []table.Row) error {
	return c.rasters.Insert(rows)
}
