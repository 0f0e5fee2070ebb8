// Package driver implements the dataset-derivation framework: two
// instantiations, iterate-over-rasters and iterate-over-vectors, that
// share a raster cutter, a filter predicate, and (for the vector
// variant) a raster selector, applying them across a source connector to
// grow a target connector. The parallel fan-out and progress reporting
// reuse internal/worker, adapted from a channel-based worker pool.
package driver

import (
	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/table"
)

// RasterFilter decides whether a source raster should be cut this round.
// cutRasters is the driver's own previously-processed set.
type RasterFilter func(r string, target, source *connector.Connector, cutRasters map[string]bool) bool

// AlwaysTrueRaster accepts every raster.
func AlwaysTrueRaster() RasterFilter {
	return func(string, *connector.Connector, *connector.Connector, map[string]bool) bool { return true }
}

// RastersNotPreviouslyCutOnly accepts a raster only if the driver has not
// already cut it in a prior invocation.
func RastersNotPreviouslyCutOnly() RasterFilter {
	return func(r string, _, _ *connector.Connector, cutRasters map[string]bool) bool {
		return !cutRasters[r]
	}
}

// RasterRowCondition wraps an arbitrary row predicate, evaluated against
// either the target or the source rasters table depending on useSource.
func RasterRowCondition(pred func(table.Row) bool, useSource bool) RasterFilter {
	return func(r string, target, source *connector.Connector, _ map[string]bool) bool {
		c := target
		if useSource {
			c = source
		}
		row, ok := c.RastersTable().Get(r)
		if !ok {
			return false
		}
		return pred(row)
	}
}

// VectorFilter decides whether a target vector should be processed this
// round by the iterate-over-vectors driver.
type VectorFilter func(v string, target, source *connector.Connector, cutRasters map[string][]string) bool

// AlwaysTrueVector accepts every vector.
func AlwaysTrueVector() VectorFilter {
	return func(string, *connector.Connector, *connector.Connector, map[string][]string) bool { return true }
}

// IsVectorMissingRasters accepts a vector iff its current raster_count in
// the target is below targetCount.
func IsVectorMissingRasters(targetCount int) VectorFilter {
	return func(v string, target, _ *connector.Connector, _ map[string][]string) bool {
		row, ok := target.VectorsTable().Get(v)
		if !ok {
			return false
		}
		return asInt(row.Extra[target.Attrs().RasterCountColName()]) < targetCount
	}
}

// OnlyThisVector accepts exactly one named vector, ignoring all others.
func OnlyThisVector(name string) VectorFilter {
	return func(v string, _, _ *connector.Connector, _ map[string][]string) bool { return v == name }
}

// VectorRowCondition wraps an arbitrary row predicate over either the
// target or source vectors table.
func VectorRowCondition(pred func(table.Row) bool, useSource bool) VectorFilter {
	return func(v string, target, source *connector.Connector, _ map[string][]string) bool {
		c := target
		if useSource {
			c = source
		}
		row, ok := c.VectorsTable().Get(v)
		if !ok {
			return false
		}
		return pred(row)
	}
}

func asInt(v any) int {
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
