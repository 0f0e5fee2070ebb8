// Package converter implements the class combine/remove converter: it
// copies rasters and a filtered/relabeled vector set from a source
// connector into a target connector, merging classes according to a
// caller-supplied grouping and, when requested, dropping rasters that no
// longer intersect any kept vector. The step order follows a
// class-combine procedure against connector/table directly rather than
// a bespoke DataFrame pass.
package converter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/table"
)

// ClassGroup is one item of the classes configuration: either a single
// class kept as-is (one member) or a group of classes merged under
// NewName.
type ClassGroup struct {
	Members []string
	NewName string // empty: derive by joining Members with Config.ClassSeparator
}

// Config configures one ClassCombine run.
type Config struct {
	Classes            []ClassGroup
	ClassSeparator     string // default "+"
	NewBackgroundClass string // empty: no background class on the target
	RemoveRasters      bool
	LabelMaker         connector.LabelMaker // optional
}

func (cfg Config) separator() string {
	if cfg.ClassSeparator == "" {
		return "+"
	}
	return cfg.ClassSeparator
}

func groupName(g ClassGroup, sep string) string {
	if g.NewName != "" {
		return g.NewName
	}
	return strings.Join(g.Members, sep)
}

const (
	mostLikelyClassColumn = "most_likely_class"
	origTypeColumn        = "orig_type"
)

// ClassCombine runs the class-combine/remove procedure: source is read
// only, target is grown in place and saved on success.
func ClassCombine(source, target *connector.Connector, cfg Config) error {
	sep := cfg.separator()

	var classesToKeep []string
	newNameOf := map[string]string{}
	seenMember := map[string]bool{}
	newClassNames := make([]string, 0, len(cfg.Classes))
	seenNewName := map[string]bool{}
	for _, g := range cfg.Classes {
		name := groupName(g, sep)
		if !seenNewName[name] {
			seenNewName[name] = true
			newClassNames = append(newClassNames, name)
		}
		for _, m := range g.Members {
			if seenMember[m] {
				return geoerr.New(geoerr.DuplicateInput, "classCombine: class %q listed twice", m)
			}
			seenMember[m] = true
			classesToKeep = append(classesToKeep, m)
			newNameOf[m] = name
		}
	}

	available := map[string]bool{}
	for _, c := range source.Attrs().AllVectorClasses() {
		available[c] = true
	}
	for _, c := range classesToKeep {
		if !available[c] {
			return geoerr.New(geoerr.SchemaMismatch, "classCombine: class %q not in source.all_vector_classes", c)
		}
	}

	var newBackground *string
	if cfg.NewBackgroundClass != "" {
		if !seenNewName[cfg.NewBackgroundClass] {
			return geoerr.New(geoerr.SchemaMismatch, "classCombine: new_background_class %q not among new_class_names", cfg.NewBackgroundClass)
		}
		bg := cfg.NewBackgroundClass
		newBackground = &bg
		filtered := newClassNames[:0]
		for _, n := range newClassNames {
			if n != bg {
				filtered = append(filtered, n)
			}
		}
		newClassNames = filtered
	}

	if err := target.SetTaskVectorClasses(newClassNames, newBackground); err != nil {
		return fmt.Errorf("classCombine: %w", err)
	}

	labelType := source.Attrs().LabelType

	var rows []table.Row
	if labelType == "soft-categorical" {
		rows = transformSoftCategorical(source, classesToKeep, newNameOf)
	} else {
		rows = transformCategorical(source, classesToKeep, newNameOf)
	}

	existingVectors := map[string]bool{}
	for _, v := range target.VectorsTable().Keys() {
		existingVectors[v] = true
	}
	var newVectors []table.Row
	for _, r := range rows {
		if !existingVectors[r.Key] {
			newVectors = append(newVectors, r)
		}
	}
	if len(newVectors) > 0 {
		if err := target.AddToVectors(newVectors, nil); err != nil {
			return fmt.Errorf("classCombine: add vectors: %w", err)
		}
	}

	keptVectors := map[string]bool{}
	for _, r := range rows {
		keptVectors[r.Key] = true
	}

	preexistingRasters := map[string]bool{}
	for _, r := range target.RastersTable().Keys() {
		preexistingRasters[r] = true
	}

	var rasterNames []string
	if cfg.RemoveRasters {
		union := map[string]bool{}
		for v := range keptVectors {
			rs, err := source.RastersIntersectingVector(v)
			if err != nil && !geoerr.Of(err, geoerr.UnknownVertex) {
				return fmt.Errorf("classCombine: %w", err)
			}
			for _, r := range rs {
				union[r] = true
			}
		}
		for r := range union {
			rasterNames = append(rasterNames, r)
		}
	} else {
		rasterNames = append(rasterNames, source.RastersTable().Keys()...)
	}
	sort.Strings(rasterNames)

	var rasterRows []table.Row
	var newRasterNames []string
	for _, r := range rasterNames {
		row, ok := source.RastersTable().Get(r)
		if !ok {
			continue
		}
		if err := copyRasterFiles(source, target, r); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("classCombine: copy raster %q: %w", r, err)
		}
		rasterRows = append(rasterRows, row)
		if !preexistingRasters[r] {
			newRasterNames = append(newRasterNames, r)
		}
	}
	if len(rasterRows) > 0 {
		if err := target.AddToRasters(rasterRows, nil); err != nil {
			return fmt.Errorf("classCombine: add rasters: %w", err)
		}
	}

	if cfg.LabelMaker != nil {
		affected := map[string]bool{}
		for _, nv := range newVectors {
			rs, err := target.RastersIntersectingVector(nv.Key)
			if err != nil && !geoerr.Of(err, geoerr.UnknownVertex) {
				return fmt.Errorf("classCombine: %w", err)
			}
			for _, r := range rs {
				if preexistingRasters[r] {
					affected[r] = true
				}
			}
		}
		if len(affected) > 0 {
			names := make([]string, 0, len(affected))
			for r := range affected {
				names = append(names, r)
			}
			sort.Strings(names)
			if err := cfg.LabelMaker.DeleteLabels(target, names); err != nil {
				return fmt.Errorf("classCombine: %w", err)
			}
			if err := cfg.LabelMaker.MakeLabels(target, names); err != nil {
				return fmt.Errorf("classCombine: %w", err)
			}
		}
		if len(newRasterNames) > 0 {
			if err := cfg.LabelMaker.MakeLabels(target, newRasterNames); err != nil {
				return fmt.Errorf("classCombine: %w", err)
			}
		}
	}

	target.SetLabelType(labelType)
	return target.Save()
}

// transformCategorical keeps rows whose type is in classesToKeep,
// rewriting type to the new group name and stashing the original under
// orig_type.
func transformCategorical(source *connector.Connector, classesToKeep []string, newNameOf map[string]string) []table.Row {
	keep := map[string]bool{}
	for _, c := range classesToKeep {
		keep[c] = true
	}
	typeCol := source.VectorTypeColumnName()

	var rows []table.Row
	for _, key := range source.VectorsTable().Keys() {
		row, ok := source.VectorsTable().Get(key)
		if !ok {
			continue
		}
		orig, _ := row.Extra[typeCol].(string)
		if !keep[orig] {
			continue
		}
		extra := cloneExtra(row.Extra)
		extra[origTypeColumn] = orig
		extra[typeCol] = newNameOf[orig]
		rows = append(rows, table.Row{Key: row.Key, Geometry: row.Geometry, Extra: extra})
	}
	return rows
}

// transformSoftCategorical drops non-kept probability columns, drops
// rows whose kept-probability sum is zero, renormalizes the remainder to
// sum to 1, sums member columns into their new group column, and
// recomputes most_likely_class.
func transformSoftCategorical(source *connector.Connector, classesToKeep []string, newNameOf map[string]string) []table.Row {
	prefix := source.ProbClassPrefix()

	var rows []table.Row
	for _, key := range source.VectorsTable().Keys() {
		row, ok := source.VectorsTable().Get(key)
		if !ok {
			continue
		}

		kept := make(map[string]float64, len(classesToKeep))
		total := 0.0
		for _, c := range classesToKeep {
			p, _ := toFloat(row.Extra[source.ProbClassColumnName(c)])
			kept[c] = p
			total += p
		}
		if total == 0 {
			continue
		}

		extra := cloneExtra(row.Extra)
		for k := range extra {
			if strings.HasPrefix(k, prefix) {
				delete(extra, k)
			}
		}

		groupSums := map[string]float64{}
		for c, p := range kept {
			groupSums[newNameOf[c]] += p / total
		}
		for group, sum := range groupSums {
			extra[source.ProbClassColumnName(group)] = sum
		}
		extra[mostLikelyClassColumn] = argmaxTies(groupSums)

		rows = append(rows, table.Row{Key: row.Key, Geometry: row.Geometry, Extra: extra})
	}
	return rows
}

// argmaxTies returns the name(s) with the highest value in sums, joined
// by a comma when tied.
func argmaxTies(sums map[string]float64) string {
	names := make([]string, 0, len(sums))
	for n := range sums {
		names = append(names, n)
	}
	sort.Strings(names)

	const eps = 1e-9
	best := -1.0
	var winners []string
	for _, n := range names {
		v := sums[n]
		switch {
		case v > best+eps:
			best = v
			winners = []string{n}
		case v > best-eps:
			winners = append(winners, n)
		}
	}
	return strings.Join(winners, ",")
}

func cloneExtra(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// copyRasterFiles copies name byte-for-byte across every parallel raster
// data directory present in source, mirroring into target. Returns an os.IsNotExist error if the file is absent from
// every source directory ("still present on disk" guards removal).
func copyRasterFiles(source, target *connector.Connector, name string) error {
	srcDirs := source.RasterDataDirs()
	dstDirs := target.RasterDataDirs()
	copied := false
	for k := range srcDirs {
		srcPath := filepath.Join(srcDirs[k], name)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := os.MkdirAll(dstDirs[k], 0o755); err != nil {
			return err
		}
		if err := copyFile(srcPath, filepath.Join(dstDirs[k], name)); err != nil {
			return err
		}
		copied = true
	}
	if !copied {
		return os.ErrNotExist
	}
	return nil
}

func copyFile(srcPath, dstPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
