package connector

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
)

func TestSetTaskVectorClassesRejectsOverlap(t *testing.T) {
	a := newAttrs(4326)
	bg := "water"
	err := a.SetTaskVectorClasses([]string{"water", "forest"}, &bg)
	if !geoerr.Of(err, geoerr.SchemaMismatch) {
		t.Fatalf("expected SchemaMismatch when background overlaps task classes, got %v", err)
	}
}

func TestSetTaskVectorClassesAccepted(t *testing.T) {
	a := newAttrs(4326)
	bg := "background"
	if err := a.SetTaskVectorClasses([]string{"water", "forest"}, &bg); err != nil {
		t.Fatalf("SetTaskVectorClasses: %v", err)
	}
	all := a.AllVectorClasses()
	if len(all) != 3 {
		t.Fatalf("expected 3 classes (2 task + background), got %v", all)
	}
}

func TestDefaultColumnNames(t *testing.T) {
	a := newAttrs(4326)
	if a.RasterCountColName() != "raster_count" {
		t.Errorf("expected default raster_count column name, got %q", a.RasterCountColName())
	}
	if a.GeometryColName() != "geometry" {
		t.Errorf("expected default geometry column name, got %q", a.GeometryColName())
	}

	a.RasterCountCol = "num_rasters"
	if a.RasterCountColName() != "num_rasters" {
		t.Errorf("expected overridden raster_count column name, got %q", a.RasterCountColName())
	}
}

func TestAttrsSaveLoadRoundTrip(t *testing.T) {
	a := newAttrs(32632)
	bg := "background"
	if err := a.SetTaskVectorClasses([]string{"water"}, &bg); err != nil {
		t.Fatalf("SetTaskVectorClasses: %v", err)
	}
	a.LabelType = "categorical"
	a.Extra["notes"] = "trial run"

	path := filepath.Join(t.TempDir(), "attrs.json")
	if err := saveAttrs(path, a); err != nil {
		t.Fatalf("saveAttrs: %v", err)
	}

	loaded, err := loadAttrs(path)
	if err != nil {
		t.Fatalf("loadAttrs: %v", err)
	}
	if loaded.CRSEPSGCode != 32632 {
		t.Errorf("expected CRSEPSGCode to round-trip, got %d", loaded.CRSEPSGCode)
	}
	if loaded.LabelType != "categorical" {
		t.Errorf("expected LabelType to round-trip, got %q", loaded.LabelType)
	}
	if loaded.BackgroundClass == nil || *loaded.BackgroundClass != "background" {
		t.Errorf("expected BackgroundClass to round-trip, got %v", loaded.BackgroundClass)
	}
	if loaded.Extra["notes"] != "trial run" {
		t.Errorf("expected Extra passthrough to round-trip, got %v", loaded.Extra["notes"])
	}
}

func TestLoadAttrsMissingFile(t *testing.T) {
	_, err := loadAttrs(filepath.Join(t.TempDir(), "nope.json"))
	if !geoerr.Of(err, geoerr.MissingAttrsFile) {
		t.Fatalf("expected MissingAttrsFile, got %v", err)
	}
}
