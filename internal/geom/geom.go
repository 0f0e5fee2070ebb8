// Package geom is the CRS-tagged geometry kernel. It stores geometries
// in-memory as orb.Geometry values, the same representation used
// elsewhere in this stack for feature geometry and for table
// serialization via orb/geojson, and delegates the actual topological
// predicates (Contains, Intersects) and CRS reprojection to GDAL/OGR through
// github.com/airbusgeo/godal. Nothing in this package keeps a CGO handle
// alive longer than a single call: every predicate or reprojection builds
// short-lived godal.Geometry values from WKT and closes them before
// returning.
package geom

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Geometry is a polygonal or multipolygonal footprint tagged with the EPSG
// code of the CRS its coordinates are expressed in. The zero value is
// invalid; use New.
type Geometry struct {
	Geom orb.Geometry
	EPSG int
}

// New wraps g (expected to be an orb.Polygon or orb.MultiPolygon) with the
// CRS it is expressed in.
func New(g orb.Geometry, epsg int) Geometry {
	return Geometry{Geom: g, EPSG: epsg}
}

// IsNull reports whether g carries no geometry at all. A null geometry is
// never stored in a table row.
func (g Geometry) IsNull() bool {
	return g.Geom == nil
}

// IsPolygonal reports whether g is a Polygon or MultiPolygon, the only
// shapes the catalog accepts for rasters and vector features.
func (g Geometry) IsPolygonal() bool {
	switch g.Geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// WKT returns g's well-known-text representation, in its own CRS. Label
// makers and cutters use this to hand geometries to rasterio's
// godal-backed rasterizer, which only accepts WKT plus an explicit EPSG.
func (g Geometry) WKT() string {
	if g.Geom == nil {
		return ""
	}
	return wkt.MarshalString(g.Geom)
}

// Bound returns the axis-aligned bounding box of g in its own CRS.
func (g Geometry) Bound() orb.Bound {
	if g.Geom == nil {
		return orb.Bound{}
	}
	return g.Geom.Bound()
}

// openOGR materializes g as a short-lived OGR geometry for a predicate or
// reprojection call. The caller must Close() the returned geometry and
// spatial ref.
func openOGR(g Geometry) (*godal.Geometry, *godal.SpatialRef, error) {
	if g.Geom == nil {
		return nil, nil, fmt.Errorf("geom: nil geometry")
	}
	sr, err := godal.NewSpatialRefFromEPSG(g.EPSG)
	if err != nil {
		return nil, nil, fmt.Errorf("geom: spatial ref EPSG:%d: %w", g.EPSG, err)
	}
	og, err := godal.NewGeometryFromWKT(wkt.MarshalString(g.Geom), sr)
	if err != nil {
		sr.Close()
		return nil, nil, fmt.Errorf("geom: parse WKT: %w", err)
	}
	return og, sr, nil
}

// sameCRSPair opens both geometries, reprojecting b into a's CRS first if
// they differ, since OGR predicates require matching spatial references.
func sameCRSPair(a, b Geometry) (oa, ob *godal.Geometry, closeAll func(), err error) {
	if b.EPSG != a.EPSG {
		b, err = b.Reprojected(a.EPSG)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	var srA, srB *godal.SpatialRef
	oa, srA, err = openOGR(a)
	if err != nil {
		return nil, nil, nil, err
	}
	ob, srB, err = openOGR(b)
	if err != nil {
		oa.Close()
		srA.Close()
		return nil, nil, nil, err
	}
	return oa, ob, func() {
		oa.Close()
		ob.Close()
		srA.Close()
		srB.Close()
	}, nil
}

// Contains reports whether g fully contains other. Both geometries
// must be non-null; other is reprojected into g's CRS first if needed.
func (g Geometry) Contains(other Geometry) (bool, error) {
	oa, ob, closeAll, err := sameCRSPair(g, other)
	if err != nil {
		return false, err
	}
	defer closeAll()
	return oa.Contains(ob), nil
}

// Intersects reports whether g and other share any point.
func (g Geometry) Intersects(other Geometry) (bool, error) {
	oa, ob, closeAll, err := sameCRSPair(g, other)
	if err != nil {
		return false, err
	}
	defer closeAll()
	return oa.Intersects(ob)
}

// Relation classifies the pairwise relation used to label a graph edge.
type Relation string

const (
	RelationNone       Relation = ""
	RelationContains   Relation = "contains"
	RelationIntersects Relation = "intersects"
)

// Relate computes the single edge label (if any) between a raster footprint
// and a vector geometry: contains wins over intersects.
func Relate(footprint, feature Geometry) (Relation, error) {
	contains, err := footprint.Contains(feature)
	if err != nil {
		return RelationNone, err
	}
	if contains {
		return RelationContains, nil
	}
	intersects, err := footprint.Intersects(feature)
	if err != nil {
		return RelationNone, err
	}
	if intersects {
		return RelationIntersects, nil
	}
	return RelationNone, nil
}

// Reprojected returns g transformed into the CRS identified by toEPSG. If
// g is already in that CRS it is returned unchanged.
func (g Geometry) Reprojected(toEPSG int) (Geometry, error) {
	if g.Geom == nil {
		return g, fmt.Errorf("geom: reproject: nil geometry")
	}
	if g.EPSG == toEPSG {
		return g, nil
	}
	srcSR, err := godal.NewSpatialRefFromEPSG(g.EPSG)
	if err != nil {
		return Geometry{}, fmt.Errorf("geom: source spatial ref EPSG:%d: %w", g.EPSG, err)
	}
	defer srcSR.Close()
	dstSR, err := godal.NewSpatialRefFromEPSG(toEPSG)
	if err != nil {
		return Geometry{}, fmt.Errorf("geom: dest spatial ref EPSG:%d: %w", toEPSG, err)
	}
	defer dstSR.Close()

	og, err := godal.NewGeometryFromWKT(wkt.MarshalString(g.Geom), srcSR)
	if err != nil {
		return Geometry{}, fmt.Errorf("geom: parse WKT: %w", err)
	}
	defer og.Close()

	if err := og.Reproject(dstSR); err != nil {
		return Geometry{}, fmt.Errorf("geom: reproject EPSG:%d->EPSG:%d: %w", g.EPSG, toEPSG, err)
	}

	gj, err := og.GeoJSON()
	if err != nil {
		return Geometry{}, fmt.Errorf("geom: export reprojected GeoJSON: %w", err)
	}
	out, err := geojson.UnmarshalGeometry([]byte(gj))
	if err != nil {
		return Geometry{}, fmt.Errorf("geom: parse reprojected GeoJSON: %w", err)
	}
	return Geometry{Geom: out.Geometry, EPSG: toEPSG}, nil
}
