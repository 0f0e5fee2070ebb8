// Package table implements the two append-until-dropped tabular stores:
// vectors and rasters, keyed by stable string identifiers, carrying a
// geometry column plus a dynamically discovered set of user columns.
// Persistence is GeoJSON with a named index property: a FeatureCollection
// where the table IS the FeatureCollection, property-for-property, rather
// than an intermediate struct converted to one.
package table

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/paulmach/orb/geojson"
)

// Row is one table record: a geometry plus arbitrary named columns. Extra
// must not contain the index column or "geometry": those are handled
// separately.
type Row struct {
	Key      string
	Geometry geom.Geometry
	Extra    map[string]any
}

func (r Row) clone() Row {
	extra := make(map[string]any, len(r.Extra))
	for k, v := range r.Extra {
		extra[k] = v
	}
	return Row{Key: r.Key, Geometry: r.Geometry, Extra: extra}
}

// Table is a schema-checked, geometry-bearing append/drop store.
type Table struct {
	indexName string
	required  []string // required Extra columns beyond geometry/index
	columns   map[string]bool
	rows      map[string]Row
	order     []string
	log       *slog.Logger
}

// New creates an empty table. indexName is the GeoJSON property used as the
// stable key ("raster_name" or "vector_name"); required lists the Extra
// columns every insert must supply.
func New(indexName string, required []string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	cols := map[string]bool{}
	for _, c := range required {
		cols[c] = true
	}
	return &Table{
		indexName: indexName,
		required:  append([]string(nil), required...),
		columns:   cols,
		rows:      map[string]Row{},
		log:       logger,
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.order) }

// Keys returns row keys in insertion order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether key is present.
func (t *Table) Has(key string) bool {
	_, ok := t.rows[key]
	return ok
}

// Get returns a defensive copy of the row for key.
func (t *Table) Get(key string) (Row, bool) {
	r, ok := t.rows[key]
	if !ok {
		return Row{}, false
	}
	return r.clone(), true
}

// Columns returns the known Extra column names, sorted.
func (t *Table) Columns() []string {
	out := make([]string, 0, len(t.columns))
	for c := range t.columns {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Insert validates and appends new rows. It rejects duplicate keys within the input, keys already
// present in the table, and null geometries; missing required columns on
// the input are a hard SchemaMismatch, while columns present on one side
// only (extra-on-input or missing-on-input-but-known) are demoted to a
// logged warning and the table's column set is extended.
func (t *Table) Insert(rows []Row) error {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if seen[r.Key] {
			return geoerr.New(geoerr.DuplicateInput, "key %q repeated in input", r.Key)
		}
		seen[r.Key] = true
		if t.Has(r.Key) {
			return geoerr.New(geoerr.KeyConflict, "key %q already in table", r.Key)
		}
		if r.Geometry.IsNull() {
			return geoerr.New(geoerr.NullGeometry, "row %q has null geometry", r.Key)
		}
		for _, req := range t.required {
			if _, ok := r.Extra[req]; !ok {
				return geoerr.New(geoerr.SchemaMismatch, "row %q missing required column %q", r.Key, req)
			}
		}
	}

	// Column-set compatibility pass (warnings only).
	for _, r := range rows {
		for col := range r.Extra {
			if !t.columns[col] {
				t.log.Warn("table: new column introduced by insert", "table", t.indexName, "column", col)
				t.columns[col] = true
			}
		}
	}
	for col := range t.columns {
		for _, r := range rows {
			if _, ok := r.Extra[col]; !ok {
				t.log.Warn("table: insert missing known column, leaving nullable", "table", t.indexName, "column", col, "row", r.Key)
			}
		}
	}

	for _, r := range rows {
		t.rows[r.Key] = r.clone()
		t.order = append(t.order, r.Key)
	}
	return nil
}

// Drop removes the named keys and returns the removed rows (defensive
// copies), in the order given. Unknown keys are silently skipped, since
// callers may pass a possibly-stale name list.
func (t *Table) Drop(keys []string) []Row {
	dropped := make([]Row, 0, len(keys))
	toDrop := make(map[string]bool, len(keys))
	for _, k := range keys {
		if r, ok := t.rows[k]; ok {
			dropped = append(dropped, r.clone())
			toDrop[k] = true
			delete(t.rows, k)
		}
	}
	if len(toDrop) == 0 {
		return dropped
	}
	newOrder := make([]string, 0, len(t.order))
	for _, k := range t.order {
		if !toDrop[k] {
			newOrder = append(newOrder, k)
		}
	}
	t.order = newOrder
	return dropped
}

// SetExtra overwrites a single Extra column on an existing row, used only
// for the raster_count derived aggregate.
func (t *Table) SetExtra(key, column string, value any) error {
	r, ok := t.rows[key]
	if !ok {
		return geoerr.New(geoerr.UnknownKey, "key %q not found", key)
	}
	if r.Extra == nil {
		r.Extra = map[string]any{}
	}
	r.Extra[column] = value
	t.rows[key] = r
	t.columns[column] = true
	return nil
}

// toFeatureCollection builds the GeoJSON-on-disk shape: a standard
// FeatureCollection whose every feature carries the table's index property.
func (t *Table) toFeatureCollection() (*geojson.FeatureCollection, int, error) {
	fc := geojson.NewFeatureCollection()
	crsEPSG := 0
	for _, key := range t.order {
		r := t.rows[key]
		if crsEPSG == 0 {
			crsEPSG = r.Geometry.EPSG
		}
		f := geojson.NewFeature(r.Geometry.Geom)
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		f.Properties[t.indexName] = key
		for k, v := range r.Extra {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc, crsEPSG, nil
}

// Save serializes the table as indented GeoJSON.
func (t *Table) Save(path string) error {
	fc, _, err := t.toFeatureCollection()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return geoerr.Wrap(geoerr.NotSerializable, err, "marshal table %s", t.indexName)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a table previously written by Save, assuming every feature's
// geometry is already expressed in crsEPSG (tables only ever persist
// geometries in the connector's CRS).
func Load(path, indexName string, required []string, crsEPSG int, logger *slog.Logger) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "read table file %s", path)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "parse table file %s", path)
	}

	t := New(indexName, required, logger)
	rows := make([]Row, 0, len(fc.Features))
	for _, f := range fc.Features {
		key, ok := f.Properties[indexName].(string)
		if !ok {
			return nil, geoerr.New(geoerr.CorruptAttrsFile, "feature missing index property %q", indexName)
		}
		extra := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			if k == indexName {
				continue
			}
			extra[k] = v
		}
		rows = append(rows, Row{
			Key:      key,
			Geometry: geom.New(f.Geometry, crsEPSG),
			Extra:    extra,
		})
	}
	// Load bypasses Insert's duplicate/conflict checks (the file is assumed
	// self-consistent) but still extends the column set.
	for _, r := range rows {
		t.rows[r.Key] = r
		t.order = append(t.order, r.Key)
		for col := range r.Extra {
			t.columns[col] = true
		}
	}
	return t, nil
}

// Rows returns defensive copies of every row, in insertion order.
func (t *Table) Rows() []Row {
	out := make([]Row, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rows[k].clone())
	}
	return out
}
