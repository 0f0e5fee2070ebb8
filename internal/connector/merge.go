package connector

import "fmt"

// Merge unions two on-disk connectors of identical schema into a freshly
// created one at dataDir, without recomputing any spatial edges: since both
// inputs are already internally consistent and assumed to have disjoint
// raster/vector name sets, the tables and graphs are simply unioned. This
// is the non-recomputing counterpart of the vector-merge step a
// derivation driver performs in its setup phase, which also unions in
// table rows without touching edges already present in the target.
func Merge(dataDir string, a, b *Connector) (*Connector, error) {
	if a.CRSEPSG() != b.CRSEPSG() {
		return nil, fmt.Errorf("connector: merge: CRS mismatch (%d vs %d)", a.CRSEPSG(), b.CRSEPSG())
	}

	out, err := FromScratch(dataDir, a.CRSEPSG(), WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	out.attrs = a.attrs

	if err := out.rasters.Insert(a.rasters.Rows()); err != nil {
		return nil, fmt.Errorf("connector: merge: rasters from a: %w", err)
	}
	if err := out.rasters.Insert(b.rasters.Rows()); err != nil {
		return nil, fmt.Errorf("connector: merge: rasters from b: %w", err)
	}
	if err := out.vectors.Insert(a.vectors.Rows()); err != nil {
		return nil, fmt.Errorf("connector: merge: vectors from a: %w", err)
	}
	if err := out.vectors.Insert(b.vectors.Rows()); err != nil {
		return nil, fmt.Errorf("connector: merge: vectors from b: %w", err)
	}

	if err := out.graph.Merge(a.graph); err != nil {
		return nil, fmt.Errorf("connector: merge: graph from a: %w", err)
	}
	if err := out.graph.Merge(b.graph); err != nil {
		return nil, fmt.Errorf("connector: merge: graph from b: %w", err)
	}

	return out, nil
}
