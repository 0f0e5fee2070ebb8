package labelmaker

import (
	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/table"
)

// SoftToCategorical converts an existing soft-categorical connector's
// vectors into categorical-style rows and inserts them into dst: for
// each vector, its categorical "type" is the argmax over its
// prob_of_class_<C> columns, ties broken in favor of the first class (in
// task_vector_classes order), a deterministic simplification chosen
// because a categorical "type" column must hold exactly one class name.
//
// Rasters are not touched; if labelMaker is non-nil, dst's labels for
// every raster intersecting a converted vector are regenerated through
// the normal AddToVectors path.
func SoftToCategorical(src, dst *connector.Connector, labelMaker connector.LabelMaker) error {
	if src.Attrs().LabelType != "soft-categorical" {
		return geoerr.New(geoerr.LabelTypeMismatch, "softToCategorical: source label_type is %q, want soft-categorical", src.Attrs().LabelType)
	}
	classes := src.Attrs().AllVectorClasses()
	if len(classes) == 0 {
		return geoerr.New(geoerr.SchemaMismatch, "softToCategorical: source has no task_vector_classes")
	}

	typeCol := dst.VectorTypeColumnName()
	rows := make([]table.Row, 0, src.VectorsTable().Len())

	for _, row := range src.VectorsTable().Rows() {
		best := classes[0]
		bestProb := -1.0
		for _, class := range classes {
			p, ok := toFloat(row.Extra[src.ProbClassColumnName(class)])
			if ok && p > bestProb {
				bestProb = p
				best = class
			}
		}

		extra := map[string]any{typeCol: best}
		prefix := src.ProbClassPrefix()
		for k, v := range row.Extra {
			if len(k) < len(prefix) || k[:len(prefix)] != prefix {
				extra[k] = v
			}
		}
		rows = append(rows, table.Row{Key: row.Key, Geometry: row.Geometry, Extra: extra})
	}

	return dst.AddToVectors(rows, labelMaker)
}
