package filestore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/ragchat/internal/db"
)

// SearchKNN scans every hash covered by the index and returns the k nearest,
// closest first. Hashes whose vector has a different dimension are not indexed.
func (s *Store) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.indexes[q.IndexName]
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	vf := def.VectorField()
	if vf == nil {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("index %s has no vector field", def.Name)}
	}
	if len(q.Vector) != vf.VectorDim {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf(
			"query vector has %d dimensions, index expects %d", len(q.Vector), vf.VectorDim)}
	}
	distance := distanceFunc(vf.VectorDistance)

	var entries []db.SearchEntry
	for key, fields := range s.hashes {
		if !hasAnyPrefix(key, def.Prefixes) {
			continue
		}
		raw, ok := fields[vf.Name]
		if !ok {
			continue
		}
		vec := db.DecodeVector(raw)
		if len(vec) != vf.VectorDim {
			continue
		}
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  distance(q.Vector, vec),
			Fields: project(fields, q.ReturnFields, vf.Name),
		})
	}

	total := len(entries)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score < entries[j].Score
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > q.K {
		entries = entries[:q.K]
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

// project copies the requested fields, or all but the vector when none are requested.
func project(fields map[string]string, want []string, vectorField string) map[string]string {
	out := make(map[string]string, len(fields))
	if len(want) == 0 {
		for k, v := range fields {
			if k != vectorField {
				out[k] = v
			}
		}
		return out
	}
	for _, k := range want {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func distanceFunc(m db.DistanceMetric) func(a, b []float32) float64 {
	if m == db.DistanceL2 {
		return l2Distance
	}
	return cosineDistance
}

// cosineDistance is 1 - cos(a, b). A zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
