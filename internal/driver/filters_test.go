package driver

import (
	"math/rand"
	"testing"

	"github.com/MeKo-Tech/geoconnector/internal/connector"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/MeKo-Tech/geoconnector/internal/table"
	"github.com/paulmach/orb"
)

func poly(x, y float64) geom.Geometry {
	return geom.New(orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}, 4326)
}

func TestRastersNotPreviouslyCutOnly(t *testing.T) {
	f := RastersNotPreviouslyCutOnly()
	cut := map[string]bool{"a": true}
	if f("a", nil, nil, cut) {
		t.Errorf("expected already-cut raster rejected")
	}
	if !f("b", nil, nil, cut) {
		t.Errorf("expected un-cut raster accepted")
	}
}

func TestAlwaysTrueRaster(t *testing.T) {
	f := AlwaysTrueRaster()
	if !f("anything", nil, nil, nil) {
		t.Errorf("expected AlwaysTrueRaster to accept everything")
	}
}

func TestRasterRowCondition(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	extra := target.NewRasterExtra(4326)
	if err := target.AppendRasterRows([]table.Row{{Key: "a", Geometry: poly(0, 0), Extra: extra}}); err != nil {
		t.Fatalf("AppendRasterRows: %v", err)
	}

	f := RasterRowCondition(func(r table.Row) bool { return r.Key == "a" }, false)
	if !f("a", target, nil, nil) {
		t.Errorf("expected match on target table")
	}
	if f("missing", target, nil, nil) {
		t.Errorf("expected no match for an absent row")
	}
}

func TestIsVectorMissingRasters(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := target.AddToVectors([]table.Row{{Key: "v1", Geometry: poly(0, 0)}}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	f := IsVectorMissingRasters(3)
	if !f("v1", target, nil, nil) {
		t.Errorf("expected a fresh vector (raster_count 0) to be missing rasters")
	}

	if err := target.VectorsTable().SetExtra("v1", target.Attrs().RasterCountColName(), 3); err != nil {
		t.Fatalf("SetExtra: %v", err)
	}
	if f("v1", target, nil, nil) {
		t.Errorf("expected a vector at targetCount to no longer be missing rasters")
	}
}

func TestOnlyThisVector(t *testing.T) {
	f := OnlyThisVector("v1")
	if !f("v1", nil, nil, nil) {
		t.Errorf("expected v1 accepted")
	}
	if f("v2", nil, nil, nil) {
		t.Errorf("expected v2 rejected")
	}
}

func TestVectorRowCondition(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := target.AddToVectors([]table.Row{{Key: "v1", Geometry: poly(0, 0), Extra: map[string]any{"type": "water"}}}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	f := VectorRowCondition(func(r table.Row) bool { return r.Extra["type"] == "water" }, false)
	if !f("v1", target, nil, nil) {
		t.Errorf("expected water vector to match")
	}
}

func TestRandomRasterSelectorRespectsTargetCount(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := target.AddToVectors([]table.Row{{Key: "v1", Geometry: poly(0, 0)}}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	sel := RandomRasterSelector(2)
	rng := rand.New(rand.NewSource(1))
	candidates := []string{"r1", "r2", "r3", "r4"}

	chosen := sel("v1", candidates, target, nil, nil, rng)
	if len(chosen) != 2 {
		t.Fatalf("expected 2 chosen, got %v", chosen)
	}
}

func TestRandomRasterSelectorAccountsForAlreadyCut(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := target.AddToVectors([]table.Row{{Key: "v1", Geometry: poly(0, 0)}}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}
	if err := target.VectorsTable().SetExtra("v1", target.Attrs().RasterCountColName(), 1); err != nil {
		t.Fatalf("SetExtra: %v", err)
	}

	sel := RandomRasterSelector(2)
	rng := rand.New(rand.NewSource(1))
	cutState := map[string][]string{"v1": {"already_cut_one"}}
	candidates := []string{"r1", "r2", "r3"}

	chosen := sel("v1", candidates, target, nil, cutState, rng)
	if len(chosen) != 0 {
		t.Fatalf("expected no further rasters needed (1 target + 1 cut already satisfies targetCount 2), got %v", chosen)
	}
}

func TestRandomRasterSelectorReturnsAllWhenFewerThanNeeded(t *testing.T) {
	target, _ := connector.FromScratch(t.TempDir(), 4326)
	if err := target.AddToVectors([]table.Row{{Key: "v1", Geometry: poly(0, 0)}}, nil); err != nil {
		t.Fatalf("AddToVectors: %v", err)
	}

	sel := RandomRasterSelector(5)
	rng := rand.New(rand.NewSource(1))
	candidates := []string{"r1", "r2"}

	chosen := sel("v1", candidates, target, nil, nil, rng)
	if len(chosen) != 2 {
		t.Fatalf("expected both candidates returned, got %v", chosen)
	}
}
