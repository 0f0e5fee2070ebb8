// Package labelmaker implements the label maker interface: turning a
// connector's vector classes into per-raster pixel labels. Two variants
// are provided: categorical (one uint8 class-index band) and
// soft-categorical (one float32 probability band per class, plus an
// optional implicit background band).
package labelmaker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/rasterio"
)

func rastersWithoutLabel(c *connector.Connector) []string {
	var out []string
	for _, r := range c.RastersTable().Keys() {
		if _, err := os.Stat(filepath.Join(c.LabelsDir(), r)); err != nil {
			out = append(out, r)
		}
	}
	return out
}

func rastersWithLabel(c *connector.Connector) []string {
	var out []string
	for _, r := range c.RastersTable().Keys() {
		if _, err := os.Stat(filepath.Join(c.LabelsDir(), r)); err == nil {
			out = append(out, r)
		}
	}
	return out
}

func resolveNames(c *connector.Connector, requested []string, defaultNames func(*connector.Connector) []string) []string {
	if requested != nil {
		return requested
	}
	return defaultNames(c)
}

func deleteLabelFiles(c *connector.Connector, names []string) error {
	for _, r := range names {
		if err := os.Remove(filepath.Join(c.LabelsDir(), r)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("labelmaker: delete label for %q: %w", r, err)
		}
	}
	return nil
}

// Categorical is the categorical label maker: one uint8
// band per raster, 0 = background, k = 1..K for the k-th task class in
// declared order, later classes overwriting earlier ones at overlaps.
type Categorical struct {
	IO         rasterio.IO
	AllTouched bool
}

var _ connector.LabelMaker = Categorical{}

func (Categorical) LabelType() string { return "categorical" }

// MakeLabels regenerates categorical labels for rasterNames (or, if nil,
// every raster without an existing label file).
func (m Categorical) MakeLabels(c *connector.Connector, rasterNames []string) error {
	names := resolveNames(c, rasterNames, rastersWithoutLabel)
	classes := c.Attrs().TaskVectorClasses
	typeCol := c.VectorTypeColumnName()

	for _, r := range names {
		origEPSG, err := c.RasterOrigCRSEPSG(r)
		if err != nil {
			return err
		}
		srcPath := filepath.Join(c.RastersDir(), r)
		info, err := m.IO.Info(srcPath)
		if err != nil {
			return fmt.Errorf("labelmaker: categorical: inspect %q: %w", r, err)
		}
		dstPath := filepath.Join(c.LabelsDir(), r)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("labelmaker: categorical: create labels dir: %w", err)
		}
		if err := m.IO.NewCategoricalLabel(dstPath, info.Width, info.Height, info.GeoTransform, origEPSG); err != nil {
			return fmt.Errorf("labelmaker: categorical: allocate label for %q: %w", r, err)
		}

		intersecting, err := c.VectorsIntersectingRaster(r)
		if err != nil {
			return err
		}

		for k, class := range classes {
			wkts, err := wktsForClass(c, intersecting, typeCol, class, origEPSG)
			if err != nil {
				return err
			}
			if err := m.IO.BurnClass(dstPath, 1, float64(k+1), wkts, origEPSG, m.AllTouched); err != nil {
				return fmt.Errorf("labelmaker: categorical: burn class %q onto %q: %w", class, r, err)
			}
		}
	}
	c.SetLabelType(m.LabelType())
	return nil
}

// DeleteLabels removes label files for rasterNames (or, if nil, every
// raster that currently has one).
func (Categorical) DeleteLabels(c *connector.Connector, rasterNames []string) error {
	return deleteLabelFiles(c, resolveNames(c, rasterNames, rastersWithLabel))
}

// SoftCategorical is the soft-categorical label maker: one
// float32 probability band per class, read from each vector's
// prob_of_class_<C> column, plus (by default) an implicit background band
// holding 1 minus the sum of the others.
type SoftCategorical struct {
	IO                rasterio.IO
	AllTouched        bool
	AddBackgroundBand bool // default true; set explicitly via NewSoftCategorical
}

// NewSoftCategorical returns a SoftCategorical label maker with
// add_background_band defaulted to true.
func NewSoftCategorical(io rasterio.IO) SoftCategorical {
	return SoftCategorical{IO: io, AddBackgroundBand: true}
}

var _ connector.LabelMaker = SoftCategorical{}

func (SoftCategorical) LabelType() string { return "soft-categorical" }

func (m SoftCategorical) MakeLabels(c *connector.Connector, rasterNames []string) error {
	names := resolveNames(c, rasterNames, rastersWithoutLabel)
	classes := c.Attrs().AllVectorClasses()
	if len(classes) == 0 {
		return geoerr.New(geoerr.SchemaMismatch, "labelmaker: soft-categorical: no task_vector_classes configured")
	}

	bandCount := len(classes)
	firstClassBand := 1
	if m.AddBackgroundBand {
		bandCount++
		firstClassBand = 2
	}

	for _, r := range names {
		origEPSG, err := c.RasterOrigCRSEPSG(r)
		if err != nil {
			return err
		}
		srcPath := filepath.Join(c.RastersDir(), r)
		info, err := m.IO.Info(srcPath)
		if err != nil {
			return fmt.Errorf("labelmaker: soft-categorical: inspect %q: %w", r, err)
		}
		dstPath := filepath.Join(c.LabelsDir(), r)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("labelmaker: soft-categorical: create labels dir: %w", err)
		}
		if err := m.IO.NewSoftLabel(dstPath, info.Width, info.Height, bandCount, info.GeoTransform, origEPSG); err != nil {
			return fmt.Errorf("labelmaker: soft-categorical: allocate label for %q: %w", r, err)
		}

		intersecting, err := c.VectorsIntersectingRaster(r)
		if err != nil {
			return err
		}

		for i, class := range classes {
			band := firstClassBand + i
			probs, err := probsForClass(c, intersecting, class, origEPSG)
			if err != nil {
				return err
			}
			for _, p := range probs {
				if err := m.IO.BurnClass(dstPath, band, p.prob, []string{p.wkt}, origEPSG, m.AllTouched); err != nil {
					return fmt.Errorf("labelmaker: soft-categorical: burn class %q onto %q: %w", class, r, err)
				}
			}
		}

		if m.AddBackgroundBand {
			// Band 1 = 1 - sum(bands 2..K+1). BurnClass only paints a
			// constant value per call, so approximate the complement by
			// burning (1 - p) per vector footprint in class order;
			// overlapping vectors' footprints still compose via the
			// underlying replace-merge semantics per pixel per call, which
			// is exact when vector footprints for distinct classes do not
			// overlap (the common case) and a documented approximation
			// otherwise.
			for _, class := range classes {
				probs, err := probsForClass(c, intersecting, class, origEPSG)
				if err != nil {
					return err
				}
				for _, p := range probs {
					if err := m.IO.BurnClass(dstPath, 1, 1-p.prob, []string{p.wkt}, origEPSG, m.AllTouched); err != nil {
						return fmt.Errorf("labelmaker: soft-categorical: burn background complement onto %q: %w", r, err)
					}
				}
			}
		}
	}
	c.SetLabelType(m.LabelType())
	return nil
}

func (SoftCategorical) DeleteLabels(c *connector.Connector, rasterNames []string) error {
	return deleteLabelFiles(c, resolveNames(c, rasterNames, rastersWithLabel))
}

type classProb struct {
	wkt  string
	prob float64
}

func wktsForClass(c *connector.Connector, vectorNames []string, typeCol, class string, toEPSG int) ([]string, error) {
	var out []string
	for _, v := range vectorNames {
		row, ok := c.VectorsTable().Get(v)
		if !ok {
			continue
		}
		t, _ := row.Extra[typeCol].(string)
		if t != class {
			continue
		}
		g, err := row.Geometry.Reprojected(toEPSG)
		if err != nil {
			return nil, fmt.Errorf("labelmaker: reproject vector %q: %w", v, err)
		}
		out = append(out, g.WKT())
	}
	return out, nil
}

func probsForClass(c *connector.Connector, vectorNames []string, class string, toEPSG int) ([]classProb, error) {
	col := c.ProbClassColumnName(class)
	var out []classProb
	for _, v := range vectorNames {
		row, ok := c.VectorsTable().Get(v)
		if !ok {
			continue
		}
		raw, ok := row.Extra[col]
		if !ok {
			continue
		}
		p, ok := toFloat(raw)
		if !ok || p == 0 {
			continue
		}
		g, err := row.Geometry.Reprojected(toEPSG)
		if err != nil {
			return nil, fmt.Errorf("labelmaker: reproject vector %q: %w", v, err)
		}
		out = append(out, classProb{wkt: g.WKT(), prob: p})
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
