package connector

import "sort"

// unionFind is a minimal disjoint-set structure used to compute connected
// components via path-compressed find/union.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[string]string{}}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// ClusterRasters partitions the rasters table into spatially disjoint
// groups for cross-validation splitting: two rasters land in the same
// cluster iff they are connected by a chain of rasters in which each
// consecutive pair shares an edge (contains or intersects) to a common
// vector. Clusters smaller than minClusterSize are merged into the largest
// cluster rather than left as small leftover groups.
func (c *Connector) ClusterRasters(minClusterSize int) ([][]string, error) {
	uf := newUnionFind()
	for _, r := range c.rasters.Keys() {
		uf.find(r)
	}

	for _, v := range c.vectors.Keys() {
		rasters, err := c.RastersIntersectingVector(v)
		if err != nil {
			return nil, err
		}
		for i := 1; i < len(rasters); i++ {
			uf.union(rasters[0], rasters[i])
		}
	}

	groups := map[string][]string{}
	for _, r := range c.rasters.Keys() {
		root := uf.find(r)
		groups[root] = append(groups[root], r)
	}

	clusters := make([][]string, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g)
		clusters = append(clusters, g)
	}
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i]) != len(clusters[j]) {
			return len(clusters[i]) > len(clusters[j])
		}
		return clusters[i][0] < clusters[j][0]
	})

	if minClusterSize > 1 && len(clusters) > 1 {
		merged := clusters[:1]
		for _, g := range clusters[1:] {
			if len(g) < minClusterSize {
				merged[0] = append(merged[0], g...)
			} else {
				merged = append(merged, g)
			}
		}
		clusters = merged
	}
	return clusters, nil
}
