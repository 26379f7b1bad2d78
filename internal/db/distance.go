package db

import (
	"math"
	"sort"
)

// Distance computes the distance between two vectors of equal length under metric.
// COSINE and IP are returned as 1-similarity, L2 as Euclidean distance.
func Distance(metric DistanceMetric, a, b []float32) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		d := x - y
		sq += d * d
	}
	switch metric {
	case DistanceL2:
		return math.Sqrt(sq)
	case DistanceIP:
		return 1 - dot
	default:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}

// Similarity maps a distance to a score where higher means closer.
func Similarity(metric DistanceMetric, distance float64) float64 {
	if metric == DistanceL2 {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

// Candidate is a record considered by in-process exact search.
type Candidate struct {
	ID     string
	Seq    uint64
	Vector []float32
	Fields map[string]string
}

// RankExact scores candidates against the query vector and keeps the k closest.
// Ties on distance are broken by insertion sequence.
func RankExact(metric DistanceMetric, query []float32, k int, candidates []Candidate, returnFields []string) []SearchEntry {
	type scored struct {
		c    *Candidate
		dist float64
	}
	all := make([]scored, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if len(c.Vector) != len(query) {
			continue
		}
		all = append(all, scored{c: c, dist: Distance(metric, query, c.Vector)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].c.Seq < all[j].c.Seq
	})
	if k >= 0 && len(all) > k {
		all = all[:k]
	}

	entries := make([]SearchEntry, len(all))
	for i, s := range all {
		entries[i] = SearchEntry{
			ID:       s.c.ID,
			Distance: s.dist,
			Fields:   projectFields(s.c.Fields, returnFields),
		}
	}
	return entries
}

func projectFields(fields map[string]string, keep []string) map[string]string {
	out := make(map[string]string, len(fields))
	if len(keep) == 0 {
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	for _, k := range keep {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}
