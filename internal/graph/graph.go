// Package graph implements the incremental bipartite spatial index: a
// two-colored multigraph between vector-feature vertices and raster
// vertices, with edges labeled "contains" or "intersects". The adjacency
// representation (color -> vertex -> opposite-vertex -> edge label) is a
// dict-of-dicts-of-dicts layout on disk, guarded in memory with a plain
// sync.RWMutex around a map of maps, adapted from one color to two.
package graph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/MeKo-Tech/geoconnector/internal/geoerr"
	"github.com/MeKo-Tech/geoconnector/internal/geom"
)

// Color distinguishes the two vertex sets of the bipartite graph. The names
// match the JSON keys of the on-disk graph format.
type Color string

const (
	ColorVector Color = "vector_features"
	ColorRaster Color = "raster_imgs"
)

func (c Color) opposite() Color {
	if c == ColorVector {
		return ColorRaster
	}
	return ColorVector
}

func (c Color) valid() bool {
	return c == ColorVector || c == ColorRaster
}

// Graph is the bipartite spatial index. The zero value is not usable; use
// New.
type Graph struct {
	mu  sync.RWMutex
	adj map[Color]map[string]map[string]geom.Relation
	log *slog.Logger
}

// New returns an empty bipartite graph.
func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		adj: map[Color]map[string]map[string]geom.Relation{
			ColorVector: {},
			ColorRaster: {},
		},
		log: logger,
	}
}

// AddVertex inserts a vertex of the given color. Idempotent: re-adding an
// existing vertex is a no-op logged at debug level.
func (g *Graph) AddVertex(name string, color Color) error {
	if !color.valid() {
		return geoerr.New(geoerr.UnknownVertex, "invalid color %q", color)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.adj[color][name]; ok {
		g.log.Debug("graph: vertex already present", "name", name, "color", color)
		return nil
	}
	g.adj[color][name] = map[string]geom.Relation{}
	return nil
}

// HasVertex reports whether a vertex of the given color exists.
func (g *Graph) HasVertex(name string, color Color) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adj[color][name]
	return ok
}

// AddEdge inserts (or, with force, overwrites) the undirected edge between u
// (of color colorU) and v (of the opposite color), creating either endpoint
// vertex if missing. Without force, it fails with EdgeExists if the edge is
// already present (possibly with different data).
func (g *Graph) AddEdge(u string, colorU Color, v string, data geom.Relation, force bool) error {
	if !colorU.valid() {
		return geoerr.New(geoerr.UnknownVertex, "invalid color %q", colorU)
	}
	colorV := colorU.opposite()

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.adj[colorU][u]; !ok {
		g.adj[colorU][u] = map[string]geom.Relation{}
	}
	if _, ok := g.adj[colorV][v]; !ok {
		g.adj[colorV][v] = map[string]geom.Relation{}
	}

	if _, exists := g.adj[colorU][u][v]; exists && !force {
		return geoerr.New(geoerr.EdgeExists, "edge (%s,%s) already present", u, v)
	}

	g.adj[colorU][u][v] = data
	g.adj[colorV][v][u] = data
	return nil
}

// DeleteVertex removes name (of the given color) and every edge incident to
// it. If forceWithEdges is false and the vertex has at least one edge, it
// fails with VertexHasEdges and leaves the graph unchanged.
func (g *Graph) DeleteVertex(name string, color Color, forceWithEdges bool) error {
	if !color.valid() {
		return geoerr.New(geoerr.UnknownVertex, "invalid color %q", color)
	}
	colorOther := color.opposite()

	g.mu.Lock()
	defer g.mu.Unlock()

	nbrs, ok := g.adj[color][name]
	if !ok {
		return geoerr.New(geoerr.UnknownVertex, "vertex %q (%s) not found", name, color)
	}
	if !forceWithEdges && len(nbrs) > 0 {
		return geoerr.New(geoerr.VertexHasEdges, "vertex %q (%s) has %d edge(s)", name, color, len(nbrs))
	}
	for other := range nbrs {
		delete(g.adj[colorOther][other], name)
	}
	delete(g.adj[color], name)
	return nil
}

// DeleteEdge removes the undirected edge between u and v, if present. A
// missing edge is a no-op, not an error.
func (g *Graph) DeleteEdge(u string, colorU Color, v string) error {
	if !colorU.valid() {
		return geoerr.New(geoerr.UnknownVertex, "invalid color %q", colorU)
	}
	colorV := colorU.opposite()

	g.mu.Lock()
	defer g.mu.Unlock()

	if nbrs, ok := g.adj[colorU][u]; ok {
		delete(nbrs, v)
	}
	if nbrs, ok := g.adj[colorV][v]; ok {
		delete(nbrs, u)
	}
	return nil
}

// Neighbors returns the opposite-color vertices adjacent to v, optionally
// restricted to edges carrying the given label. A nil filter returns all
// neighbors regardless of label.
func (g *Graph) Neighbors(v string, colorV Color, filter *geom.Relation) ([]string, error) {
	if !colorV.valid() {
		return nil, geoerr.New(geoerr.UnknownVertex, "invalid color %q", colorV)
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	nbrs, ok := g.adj[colorV][v]
	if !ok {
		return nil, geoerr.New(geoerr.UnknownVertex, "vertex %q (%s) not found", v, colorV)
	}
	out := make([]string, 0, len(nbrs))
	for other, data := range nbrs {
		if filter == nil || data == *filter {
			out = append(out, other)
		}
	}
	sort.Strings(out)
	return out, nil
}

// EdgeData returns the edge label between u and v, if an edge exists.
func (g *Graph) EdgeData(u string, colorU Color, v string) (geom.Relation, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nbrs, ok := g.adj[colorU][u]
	if !ok {
		return geom.RelationNone, false
	}
	data, ok := nbrs[v]
	return data, ok
}

// Vertices returns the sorted vertex names of the given color.
func (g *Graph) Vertices(color Color) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.adj[color]))
	for name := range g.adj[color] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge unions other into g in place, failing if any vertex name is shared
// between the two graphs (the disjoint-dataset precondition of
// connector.Merge).
func (g *Graph) Merge(other *Graph) error {
	other.mu.RLock()
	defer other.mu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, color := range []Color{ColorVector, ColorRaster} {
		for name := range other.adj[color] {
			if _, exists := g.adj[color][name]; exists {
				return geoerr.New(geoerr.KeyConflict, "vertex %q (%s) present in both graphs", name, color)
			}
		}
	}
	for _, color := range []Color{ColorVector, ColorRaster} {
		for name, nbrs := range other.adj[color] {
			cp := make(map[string]geom.Relation, len(nbrs))
			for k, v := range nbrs {
				cp[k] = v
			}
			g.adj[color][name] = cp
		}
	}
	return nil
}

// onDiskFormat is the JSON shape persisted at connector/graph.json.
type onDiskFormat map[Color]map[string]map[string]geom.Relation

// Save writes the graph to path as indented JSON.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	data, err := json.MarshalIndent(onDiskFormat(g.adj), "", "  ")
	g.mu.RUnlock()
	if err != nil {
		return geoerr.Wrap(geoerr.NotSerializable, err, "marshal graph")
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads a graph previously written by Save.
func Load(path string, logger *slog.Logger) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "read graph file %s", path)
	}
	var disk onDiskFormat
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, geoerr.Wrap(geoerr.CorruptAttrsFile, err, "parse graph file %s", path)
	}
	g := New(logger)
	if disk[ColorVector] != nil {
		g.adj[ColorVector] = disk[ColorVector]
	}
	if disk[ColorRaster] != nil {
		g.adj[ColorRaster] = disk[ColorRaster]
	}
	for _, color := range []Color{ColorVector, ColorRaster} {
		for v := range g.adj[color] {
			if g.adj[color][v] == nil {
				g.adj[color][v] = map[string]geom.Relation{}
			}
		}
	}
	return g, nil
}

// ReallyUndirected is a self-check exposed as a first-class exported
// operation: it verifies that for every forward edge (u->v) there is a
// mirror edge (v->u) carrying identical data, catching corruption
// introduced by a hand-edited or partially-written graph.json.
func (g *Graph) ReallyUndirected() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, color := range []Color{ColorVector, ColorRaster} {
		other := color.opposite()
		for u, nbrs := range g.adj[color] {
			for v, data := range nbrs {
				mirrorNbrs, ok := g.adj[other][v]
				if !ok {
					return fmt.Errorf("graph: vertex %q (%s) referenced from %q but missing", v, other, u)
				}
				mirrorData, ok := mirrorNbrs[u]
				if !ok {
					return fmt.Errorf("graph: edge (%s,%s) has no mirror (%s,%s)", u, v, v, u)
				}
				if mirrorData != data {
					return fmt.Errorf("graph: edge (%s,%s)=%s disagrees with mirror (%s,%s)=%s", u, v, data, v, u, mirrorData)
				}
			}
		}
	}
	return nil
}
