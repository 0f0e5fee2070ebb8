package driver

import (
	"math/rand"
	"sort"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
)

// RasterSelector narrows a vector's candidate source rasters down to the
// ones actually chosen for cutting this round.
type RasterSelector func(v string, candidates []string, target, source *connector.Connector, cutRasters map[string][]string, rng *rand.Rand) []string

// RandomRasterSelector draws up to targetCount minus already-have rasters
// without replacement from candidates, where already-have is the vector's
// current target raster_count plus the number of source rasters the
// driver has already cut for it.
func RandomRasterSelector(targetCount int) RasterSelector {
	return func(v string, candidates []string, target, _ *connector.Connector, cutRasters map[string][]string, rng *rand.Rand) []string {
		already := 0
		if row, ok := target.VectorsTable().Get(v); ok {
			already = asInt(row.Extra[target.Attrs().RasterCountColName()])
		}
		already += len(cutRasters[v])

		need := targetCount - already
		if need <= 0 || len(candidates) == 0 {
			return nil
		}
		if need >= len(candidates) {
			out := append([]string(nil), candidates...)
			sort.Strings(out)
			return out
		}

		perm := rng.Perm(len(candidates))
		chosen := make([]string, 0, need)
		for _, idx := range perm[:need] {
			chosen = append(chosen, candidates[idx])
		}
		sort.Strings(chosen)
		return chosen
	}
}
