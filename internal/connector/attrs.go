package connector

import (
	"encoding/json"
	"os"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
)

const (
	defaultRasterCountColName = "raster_count"
	defaultGeometryColName    = "geometry"
)

// Attrs is the process-wide attribute bag a Connector owns: the CRS, the
// task class list, the background class, column-name overrides, and the
// label type last written by a label maker, plus an arbitrary passthrough
// map for user extras.
type Attrs struct {
	CRSEPSGCode      int      `json:"crs_epsg_code"`
	TaskVectorClasses []string `json:"task_vector_classes,omitempty"`
	BackgroundClass  *string  `json:"background_class,omitempty"`
	RasterCountCol   string   `json:"raster_count_col_name,omitempty"`
	GeometryCol      string   `json:"geometry_col_name,omitempty"`
	LabelType        string   `json:"label_type,omitempty"`
	Extra            map[string]any `json:"-"`
}

// newAttrs returns the default attribute bag for from_scratch.
func newAttrs(crsEPSG int) Attrs {
	return Attrs{
		CRSEPSGCode:    crsEPSG,
		RasterCountCol: defaultRasterCountColName,
		GeometryCol:    defaultGeometryColName,
		Extra:          map[string]any{},
	}
}

// AllVectorClasses returns task_vector_classes plus background_class, if
// set (the two are required to be disjoint; this is the union used to
// validate a "type" column).
func (a Attrs) AllVectorClasses() []string {
	out := append([]string(nil), a.TaskVectorClasses...)
	if a.BackgroundClass != nil {
		out = append(out, *a.BackgroundClass)
	}
	return out
}

// RasterCountColName returns the configured raster_count column name,
// defaulting to "raster_count".
func (a Attrs) RasterCountColName() string {
	if a.RasterCountCol == "" {
		return defaultRasterCountColName
	}
	return a.RasterCountCol
}

// GeometryColName returns the configured geometry column name, defaulting
// to "geometry".
func (a Attrs) GeometryColName() string {
	if a.GeometryCol == "" {
		return defaultGeometryColName
	}
	return a.GeometryCol
}

// SetTaskVectorClasses validates that the task classes are disjoint from
// the background class before assigning.
func (a *Attrs) SetTaskVectorClasses(classes []string, background *string) error {
	set := map[string]bool{}
	for _, c := range classes {
		set[c] = true
	}
	if background != nil && set[*background] {
		return geoerr.New(geoerr.SchemaMismatch, "background class %q also present in task_vector_classes", *background)
	}
	a.TaskVectorClasses = append([]string(nil), classes...)
	a.BackgroundClass = background
	return nil
}

// marshalJSON produces the JSON shape of attrs.json: known keys flattened next to
// arbitrary user extras.
func (a Attrs) marshalJSON() ([]byte, error) {
	m := map[string]any{
		"crs_epsg_code":         a.CRSEPSGCode,
		"raster_count_col_name": a.RasterCountColName(),
		"geometry_col_name":     a.GeometryColName(),
	}
	if len(a.TaskVectorClasses) > 0 {
		m["task_vector_classes"] = a.TaskVectorClasses
	}
	if a.BackgroundClass != nil {
		m["background_class"] = *a.BackgroundClass
	}
	if a.LabelType != "" {
		m["label_type"] = a.LabelType
	}
	for k, v := range a.Extra {
		if _, reserved := m[k]; reserved {
			continue
		}
		m[k] = v
	}
	return json.MarshalIndent(m, "", "    ")
}

func saveAttrs(path string, a Attrs) error {
	data, err := a.marshalJSON()
	if err != nil {
		return geoerr.Wrap(geoerr.NotSerializable, err, "marshal attrs")
	}
	return os.WriteFile(path, data, 0o644)
}

var knownAttrKeys = map[string]bool{
	"crs_epsg_code": true, "raster_count_col_name": true, "geometry_col_name": true,
	"task_vector_classes": true, "background_class": true, "label_type": true,
}

func loadAttrs(path string) (Attrs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Attrs{}, geoerr.Wrap(geoerr.MissingAttrsFile, err, "read attrs file %s", path)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Attrs{}, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "parse attrs file %s", path)
	}

	a := Attrs{Extra: map[string]any{}}
	if v, ok := m["crs_epsg_code"].(float64); ok {
		a.CRSEPSGCode = int(v)
	}
	if v, ok := m["raster_count_col_name"].(string); ok {
		a.RasterCountCol = v
	}
	if v, ok := m["geometry_col_name"].(string); ok {
		a.GeometryCol = v
	}
	if v, ok := m["label_type"].(string); ok {
		a.LabelType = v
	}
	if v, ok := m["background_class"].(string); ok {
		a.BackgroundClass = &v
	}
	if v, ok := m["task_vector_classes"].([]any); ok {
		classes := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok {
				classes = append(classes, s)
			}
		}
		a.TaskVectorClasses = classes
	}
	for k, v := range m {
		if !knownAttrKeys[k] {
			a.Extra[k] = v
		}
	}
	return a, nil
}
