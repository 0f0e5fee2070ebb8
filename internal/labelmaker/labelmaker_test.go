package labelmaker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/table"
	"github.com/paulmach/orb"
)

func poly(x, y float64) geom.Geometry {
	return geom.New(orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}, 4326)
}

func TestLabelTypeStrings(t *testing.T) {
	if Categorical{}.LabelType() != "categorical" {
		t.Errorf("expected categorical")
	}
	if (SoftCategorical{}).LabelType() != "soft-categorical" {
		t.Errorf("expected soft-categorical")
	}
}

func TestNewSoftCategoricalDefaultsBackgroundBandOn(t *testing.T) {
	m := NewSoftCategorical(nil)
	if !m.AddBackgroundBand {
		t.Errorf("expected AddBackgroundBand to default true")
	}
}

func TestRastersWithoutAndWithLabel(t *testing.T) {
	c, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	extra := c.NewRasterExtra(4326)
	if err := c.AppendRasterRows([]table.Row{
		{Key: "a.tif", Geometry: poly(0, 0), Extra: extra},
		{Key: "b.tif", Geometry: poly(1, 1), Extra: extra},
	}); err != nil {
		t.Fatalf("AppendRasterRows: %v", err)
	}
	if err := os.MkdirAll(c.LabelsDir(), 0o755); err != nil {
		t.Fatalf("mkdir labels: %v", err)
	}
	if err := os.WriteFile(filepath.Join(c.LabelsDir(), "a.tif"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write label: %v", err)
	}

	without := rastersWithoutLabel(c)
	if len(without) != 1 || without[0] != "b.tif" {
		t.Errorf("expected only b.tif without a label, got %v", without)
	}
	with := rastersWithLabel(c)
	if len(with) != 1 || with[0] != "a.tif" {
		t.Errorf("expected only a.tif with a label, got %v", with)
	}
}

func TestResolveNamesPrefersExplicitRequest(t *testing.T) {
	c, _ := connector.FromScratch(t.TempDir(), 4326)
	got := resolveNames(c, []string{"x.tif"}, rastersWithoutLabel)
	if len(got) != 1 || got[0] != "x.tif" {
		t.Errorf("expected explicit request honored, got %v", got)
	}
}

func TestDeleteLabelFilesIgnoresMissing(t *testing.T) {
	c, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := os.MkdirAll(c.LabelsDir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := deleteLabelFiles(c, []string{"nonexistent.tif"}); err != nil {
		t.Errorf("expected deleting a missing label file to be a no-op, got %v", err)
	}
}

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(0.5), 0.5, true},
		{float32(0.25), 0.25, true},
		{int(3), 3, true},
		{"nope", 0, false},
	}
	for _, tc := range cases {
		got, ok := toFloat(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("toFloat(%v) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSoftToCategoricalArgmaxAndTieBreak(t *testing.T) {
	src, err := connector.FromScratch(t.TempDir(), 4326, connector.WithTaskVectorClasses([]string{"water", "forest"}, nil))
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	src.SetLabelType("soft-categorical")
	if err := src.AddToVectors([]table.Row{
		{Key: "v1", Geometry: poly(0, 0), Extra: map[string]any{
			src.ProbClassColumnName("water"):  0.8,
			src.ProbClassColumnName("forest"): 0.2,
		}},
		{Key: "v2", Geometry: poly(1, 1), Extra: map[string]any{
			src.ProbClassColumnName("water"):  0.5,
			src.ProbClassColumnName("forest"): 0.5,
		}},
	}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	dst, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch dst: %v", err)
	}

	if err := SoftToCategorical(src, dst, nil); err != nil {
		t.Fatalf("SoftToCategorical: %v", err)
	}

	v1, ok := dst.VectorsTable().Get("v1")
	if !ok {
		t.Fatalf("expected v1 to be present in dst")
	}
	if v1.Extra[dst.VectorTypeColumnName()] != "water" {
		t.Errorf("expected v1 type=water, got %v", v1.Extra[dst.VectorTypeColumnName()])
	}

	v2, ok := dst.VectorsTable().Get("v2")
	if !ok {
		t.Fatalf("expected v2 to be present in dst")
	}
	if v2.Extra[dst.VectorTypeColumnName()] != "water" {
		t.Errorf("expected v2 tie broken toward the first class (water), got %v", v2.Extra[dst.VectorTypeColumnName()])
	}
}

func TestSoftToCategoricalRejectsWrongSourceLabelType(t *testing.T) {
	src, _ := connector.FromScratch(t.TempDir(), 4326)
	dst, _ := connector.FromScratch(t.TempDir(), 4326)
	err := SoftToCategorical(src, dst, nil)
	if err == nil {
		t.Fatalf("expected an error when source label_type is not soft-categorical")
	}
}
