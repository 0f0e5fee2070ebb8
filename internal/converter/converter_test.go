package converter

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

func TestGroupName(t *testing.T) {
	g := ClassGroup{Members: []string{"water", "river"}}
	if got := groupName(g, "+"); got != "water+river" {
		t.Errorf("expected joined members, got %q", got)
	}
	g2 := ClassGroup{Members: []string{"water", "river"}, NewName: "wet"}
	if got := groupName(g2, "+"); got != "wet" {
		t.Errorf("expected explicit NewName honored, got %q", got)
	}
}

func TestConfigSeparatorDefault(t *testing.T) {
	if (Config{}).separator() != "+" {
		t.Errorf("expected default separator +")
	}
	if (Config{ClassSeparator: "_"}).separator() != "_" {
		t.Errorf("expected explicit separator honored")
	}
}

func TestArgmaxTiesSingleWinner(t *testing.T) {
	got := argmaxTies(map[string]float64{"a": 0.2, "b": 0.8})
	if got != "b" {
		t.Errorf("expected b, got %q", got)
	}
}

func TestArgmaxTiesJoinsTiedWinners(t *testing.T) {
	got := argmaxTies(map[string]float64{"a": 0.5, "b": 0.5, "c": 0.1})
	if got != "a,b" {
		t.Errorf("expected tied classes joined in sorted order, got %q", got)
	}
}

func TestToFloat(t *testing.T) {
	if v, ok := toFloat(float32(0.5)); !ok || v != 0.5 {
		t.Errorf("expected float32 converted, got %v %v", v, ok)
	}
	if _, ok := toFloat("nope"); ok {
		t.Errorf("expected non-numeric to fail")
	}
}

func TestCloneExtraIsIndependent(t *testing.T) {
	orig := map[string]any{"a": 1}
	clone := cloneExtra(orig)
	clone["a"] = 2
	if orig["a"] != 1 {
		t.Errorf("expected cloneExtra not to alias the original map")
	}
}

func TestTransformCategoricalRelabelsAndStashesOrig(t *testing.T) {
	source, err := connector.FromScratch(t.TempDir(), 4326, connector.WithTaskVectorClasses([]string{"water", "river", "forest"}, nil))
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	if err := source.AddToVectors([]table.Row{
		{Key: "v1", Geometry: poly(0, 0), Extra: map[string]any{source.VectorTypeColumnName(): "water"}},
		{Key: "v2", Geometry: poly(1, 1), Extra: map[string]any{source.VectorTypeColumnName(): "river"}},
		{Key: "v3", Geometry: poly(2, 2), Extra: map[string]any{source.VectorTypeColumnName(): "forest"}},
	}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	newNameOf := map[string]string{"water": "wet", "river": "wet"}
	rows := transformCategorical(source, []string{"water", "river"}, newNameOf)
	if len(rows) != 2 {
		t.Fatalf("expected only water/river kept, got %d rows", len(rows))
	}
	for _, r := range rows {
		if r.Extra[source.VectorTypeColumnName()] != "wet" {
			t.Errorf("expected type relabeled to wet, got %v", r.Extra[source.VectorTypeColumnName()])
		}
		if _, ok := r.Extra[origTypeColumn]; !ok {
			t.Errorf("expected orig_type stashed on %q", r.Key)
		}
	}
}

func TestTransformSoftCategoricalRenormalizesAndDropsZeroSum(t *testing.T) {
	source, err := connector.FromScratch(t.TempDir(), 4326, connector.WithTaskVectorClasses([]string{"water", "river", "forest"}, nil))
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	if err := source.AddToVectors([]table.Row{
		{Key: "v1", Geometry: poly(0, 0), Extra: map[string]any{
			source.ProbClassColumnName("water"):  0.4,
			source.ProbClassColumnName("river"):  0.4,
			source.ProbClassColumnName("forest"): 0.2,
		}},
		{Key: "v2", Geometry: poly(1, 1), Extra: map[string]any{
			source.ProbClassColumnName("water"):  0.0,
			source.ProbClassColumnName("river"):  0.0,
			source.ProbClassColumnName("forest"): 1.0,
		}},
	}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	newNameOf := map[string]string{"water": "wet", "river": "wet"}
	rows := transformSoftCategorical(source, []string{"water", "river"}, newNameOf)
	if len(rows) != 1 {
		t.Fatalf("expected v2 dropped (zero kept-probability sum), got %d rows", len(rows))
	}
	got := rows[0].Extra[source.ProbClassColumnName("wet")]
	gotF, _ := toFloat(got)
	if gotF < 0.999 || gotF > 1.001 {
		t.Errorf("expected renormalized wet probability ~1.0, got %v", got)
	}
	if rows[0].Extra[mostLikelyClassColumn] != "wet" {
		t.Errorf("expected most_likely_class recomputed to wet, got %v", rows[0].Extra[mostLikelyClassColumn])
	}
	if _, ok := rows[0].Extra[source.ProbClassColumnName("forest")]; ok {
		t.Errorf("expected dropped forest probability column removed")
	}
}

func TestCopyRasterFilesCopiesAcrossParallelDirs(t *testing.T) {
	source, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}
	target, err := connector.FromScratch(t.TempDir(), 4326)
	if err != nil {
		t.Fatalf("FromScratch: %v", err)
	}

	if err := os.MkdirAll(source.RastersDir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(source.RastersDir(), "a.tif"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := copyRasterFiles(source, target, "a.tif"); err != nil {
		t.Fatalf("copyRasterFiles: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(target.RastersDir(), "a.tif"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("expected copied content preserved, got %q", got)
	}
}

func TestCopyRasterFilesReturnsNotExistWhenAbsentEverywhere(t *testing.T) {
	source, _ := connector.FromScratch(t.TempDir(), 4326)
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := copyRasterFiles(source, target, "missing.tif"); !os.IsNotExist(err) {
		t.Fatalf("expected os.IsNotExist, got %v", err)
	}
}
