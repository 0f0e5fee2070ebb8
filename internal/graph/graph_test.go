package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
	"github.com/stretchr/testify/require"
)

func TestAddVertexIdempotent(t *testing.T) {
	g := New(nil)
	if err := g.AddVertex("tile_0_0", ColorRaster); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if err := g.AddVertex("tile_0_0", ColorRaster); err != nil {
		t.Fatalf("re-adding an existing vertex should be a no-op, got: %v", err)
	}
	if !g.HasVertex("tile_0_0", ColorRaster) {
		t.Errorf("expected vertex to be present")
	}
}

func TestAddVertexInvalidColor(t *testing.T) {
	g := New(nil)
	err := g.AddVertex("x", Color("bogus"))
	if !geoerr.Of(err, geoerr.UnknownVertex) {
		t.Fatalf("expected UnknownVertex, got %v", err)
	}
}

func TestAddEdgeCreatesBothVertices(t *testing.T) {
	g := New(nil)
	if err := g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if !g.HasVertex("lake_1", ColorVector) || !g.HasVertex("tile_0_0", ColorRaster) {
		t.Errorf("expected both endpoints created")
	}
	data, ok := g.EdgeData("lake_1", ColorVector, "tile_0_0")
	if !ok || data != geom.RelationContains {
		t.Errorf("expected mirrored edge data, got %v, %v", data, ok)
	}
	data, ok = g.EdgeData("tile_0_0", ColorRaster, "lake_1")
	if !ok || data != geom.RelationContains {
		t.Errorf("expected reverse edge data, got %v, %v", data, ok)
	}
}

func TestAddEdgeExistsWithoutForce(t *testing.T) {
	g := New(nil)
	if err := g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	err := g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationIntersects, false)
	if !geoerr.Of(err, geoerr.EdgeExists) {
		t.Fatalf("expected EdgeExists, got %v", err)
	}

	if err := g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationIntersects, true); err != nil {
		t.Fatalf("force overwrite should succeed: %v", err)
	}
	data, _ := g.EdgeData("lake_1", ColorVector, "tile_0_0")
	if data != geom.RelationIntersects {
		t.Errorf("expected overwritten data, got %v", data)
	}
}

func TestDeleteVertexRefusesWithEdges(t *testing.T) {
	g := New(nil)
	_ = g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false)

	err := g.DeleteVertex("lake_1", ColorVector, false)
	if !geoerr.Of(err, geoerr.VertexHasEdges) {
		t.Fatalf("expected VertexHasEdges, got %v", err)
	}

	if err := g.DeleteVertex("lake_1", ColorVector, true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if g.HasVertex("lake_1", ColorVector) {
		t.Errorf("expected vertex removed")
	}
	nbrs, err := g.Neighbors("tile_0_0", ColorRaster, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(nbrs) != 0 {
		t.Errorf("expected dangling edge cleaned up on the other side, got %v", nbrs)
	}
}

func TestDeleteEdgeIsNoOpWhenMissing(t *testing.T) {
	g := New(nil)
	if err := g.AddVertex("lake_1", ColorVector); err != nil {
		t.Fatalf("AddVertex: %v", err)
	}
	if err := g.DeleteEdge("lake_1", ColorVector, "tile_0_0"); err != nil {
		t.Errorf("expected deleting a missing edge to be a no-op, got %v", err)
	}
}

func TestNeighborsFilteredByRelation(t *testing.T) {
	g := New(nil)
	_ = g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false)
	_ = g.AddEdge("lake_1", ColorVector, "tile_0_1", geom.RelationIntersects, false)

	all, err := g.Neighbors("lake_1", ColorVector, nil)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 neighbors, got %v", all)
	}

	rel := geom.RelationContains
	onlyContains, err := g.Neighbors("lake_1", ColorVector, &rel)
	if err != nil {
		t.Fatalf("Neighbors filtered: %v", err)
	}
	if len(onlyContains) != 1 || onlyContains[0] != "tile_0_0" {
		t.Errorf("expected only tile_0_0, got %v", onlyContains)
	}
}

func TestNeighborsUnknownVertex(t *testing.T) {
	g := New(nil)
	_, err := g.Neighbors("missing", ColorVector, nil)
	if !geoerr.Of(err, geoerr.UnknownVertex) {
		t.Fatalf("expected UnknownVertex, got %v", err)
	}
}

func TestMergeDisjointGraphs(t *testing.T) {
	a := New(nil)
	_ = a.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false)

	b := New(nil)
	_ = b.AddEdge("forest_2", ColorVector, "tile_1_1", geom.RelationIntersects, false)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !a.HasVertex("forest_2", ColorVector) || !a.HasVertex("tile_1_1", ColorRaster) {
		t.Errorf("expected merged vertices present")
	}
	if !a.HasVertex("lake_1", ColorVector) {
		t.Errorf("expected original vertices untouched")
	}
}

func TestMergeConflictingVertex(t *testing.T) {
	a := New(nil)
	_ = a.AddVertex("lake_1", ColorVector)

	b := New(nil)
	_ = b.AddVertex("lake_1", ColorVector)

	err := a.Merge(b)
	if !geoerr.Of(err, geoerr.KeyConflict) {
		t.Fatalf("expected KeyConflict, got %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	g := New(nil)
	require.NoError(t, g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false))
	require.NoError(t, g.AddEdge("lake_1", ColorVector, "tile_0_1", geom.RelationIntersects, false))

	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	require.NoError(t, g.Save(path))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	require.True(t, loaded.HasVertex("lake_1", ColorVector), "expected lake_1 to survive round trip")
	require.True(t, loaded.HasVertex("tile_0_0", ColorRaster), "expected tile_0_0 to survive round trip")

	data, ok := loaded.EdgeData("lake_1", ColorVector, "tile_0_0")
	require.True(t, ok)
	require.Equal(t, geom.RelationContains, data)
	require.NoError(t, loaded.ReallyUndirected(), "expected round-tripped graph to be really undirected")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), nil)
	require.True(t, geoerr.Of(err, geoerr.CorruptAttrsFile), "expected CorruptAttrsFile, got %v", err)
	require.ErrorIs(t, err, os.ErrNotExist, "expected the underlying os.ErrNotExist to still be visible via errors.Is")
}

func TestReallyUndirectedDetectsMissingMirror(t *testing.T) {
	g := New(nil)
	_ = g.AddEdge("lake_1", ColorVector, "tile_0_0", geom.RelationContains, false)
	delete(g.adj[ColorRaster]["tile_0_0"], "lake_1")

	if err := g.ReallyUndirected(); err == nil {
		t.Errorf("expected ReallyUndirected to catch a broken mirror edge")
	}
}
