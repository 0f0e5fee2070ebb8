package driver

import (
	"encoding/json"
	"os"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
)

// rasterDriverState is the persisted state of a RasterDriver, written to
// <connector_dir>/<driver_name>.json.
type rasterDriverState struct {
	CutRasters map[string]bool `json:"cut_rasters"`
}

func loadRasterState(path string) (rasterDriverState, error) {
	st := rasterDriverState{CutRasters: map[string]bool{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "read driver state %s", path)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "parse driver state %s", path)
	}
	if st.CutRasters == nil {
		st.CutRasters = map[string]bool{}
	}
	return st, nil
}

func saveRasterState(path string, st rasterDriverState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return geoerr.Wrap(geoerr.NotSerializable, err, "marshal driver state")
	}
	return os.WriteFile(path, data, 0o644)
}

// vectorDriverState is the persisted state of a VectorDriver.
type vectorDriverState struct {
	CutRasters map[string][]string `json:"cut_rasters"`
}

func loadVectorState(path string) (vectorDriverState, error) {
	st := vectorDriverState{CutRasters: map[string][]string{}}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "read driver state %s", path)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "parse driver state %s", path)
	}
	if st.CutRasters == nil {
		st.CutRasters = map[string][]string{}
	}
	return st, nil
}

func saveVectorState(path string, st vectorDriverState) error {
	for v, rs := range st.CutRasters {
		st.CutRasters[v] = dedupeStrings(rs)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return geoerr.Wrap(geoerr.NotSerializable, err, "marshal driver state")
	}
	return os.WriteFile(path, data, 0o644)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
