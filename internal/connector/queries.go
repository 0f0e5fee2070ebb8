package connector

import (
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/graph"
)

func containsFilter() *geom.Relation {
	r := geom.RelationContains
	return &r
}

func intersectsFilter() *geom.Relation {
	r := geom.RelationIntersects
	return &r
}

// RastersContainingVector returns the rasters whose footprint fully
// contains v.
func (c *Connector) RastersContainingVector(v string) ([]string, error) {
	return c.graph.Neighbors(v, graph.ColorVector, containsFilter())
}

// VectorsContainedInRaster returns the vectors fully contained in r.
func (c *Connector) VectorsContainedInRaster(r string) ([]string, error) {
	return c.graph.Neighbors(r, graph.ColorRaster, containsFilter())
}

// RastersIntersectingVector returns every raster intersecting v, whether
// by containment or partial intersection (the union of both edge labels).
func (c *Connector) RastersIntersectingVector(v string) ([]string, error) {
	contains, err := c.graph.Neighbors(v, graph.ColorVector, containsFilter())
	if err != nil {
		return nil, err
	}
	intersects, err := c.graph.Neighbors(v, graph.ColorVector, intersectsFilter())
	if err != nil {
		return nil, err
	}
	return union(contains, intersects), nil
}

// VectorsIntersectingRaster returns every vector intersecting r.
func (c *Connector) VectorsIntersectingRaster(r string) ([]string, error) {
	contains, err := c.graph.Neighbors(r, graph.ColorRaster, containsFilter())
	if err != nil {
		return nil, err
	}
	intersects, err := c.graph.Neighbors(r, graph.ColorRaster, intersectsFilter())
	if err != nil {
		return nil, err
	}
	return union(contains, intersects), nil
}

// IsVectorContainedInRaster reports whether raster r fully contains v.
func (c *Connector) IsVectorContainedInRaster(v, r string) (bool, error) {
	data, ok := c.graph.EdgeData(v, graph.ColorVector, r)
	if !ok {
		if !c.graph.HasVertex(v, graph.ColorVector) {
			return false, geoerr.New(geoerr.UnknownVertex, "vector %q not found", v)
		}
		if !c.graph.HasVertex(r, graph.ColorRaster) {
			return false, geoerr.New(geoerr.UnknownVertex, "raster %q not found", r)
		}
		return false, nil
	}
	return data == geom.RelationContains, nil
}

// DoesRasterIntersectVector reports whether r and v share any edge at all
// (contains or intersects).
func (c *Connector) DoesRasterIntersectVector(r, v string) (bool, error) {
	data, ok := c.graph.EdgeData(r, graph.ColorRaster, v)
	if !ok {
		if !c.graph.HasVertex(r, graph.ColorRaster) {
			return false, geoerr.New(geoerr.UnknownVertex, "raster %q not found", r)
		}
		if !c.graph.HasVertex(v, graph.ColorVector) {
			return false, geoerr.New(geoerr.UnknownVertex, "vector %q not found", v)
		}
		return false, nil
	}
	return data == geom.RelationContains || data == geom.RelationIntersects, nil
}

// RasterFootprint returns raster r's stored geometry.
func (c *Connector) RasterFootprint(r string) (geom.Geometry, error) {
	row, ok := c.rasters.Get(r)
	if !ok {
		return geom.Geometry{}, geoerr.New(geoerr.UnknownKey, "raster %q not found", r)
	}
	return row.Geometry, nil
}

// VectorGeometry returns vector v's stored geometry.
func (c *Connector) VectorGeometry(v string) (geom.Geometry, error) {
	row, ok := c.vectors.Get(v)
	if !ok {
		return geom.Geometry{}, geoerr.New(geoerr.UnknownKey, "vector %q not found", v)
	}
	return row.Geometry, nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
