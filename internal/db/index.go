package db

import (
	"errors"
	"strconv"
)

// DistanceMetric used by vector similarity queries.
type DistanceMetric string

const (
	// DistanceCosine is cosine distance (1 - cosine similarity).
	DistanceCosine DistanceMetric = "COSINE"
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
)

// VectorAlgorithm selects the indexing algorithm for vector fields.
type VectorAlgorithm string

const (
	// VectorHNSW uses the HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses brute-force search.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates supported index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldText is a text field.
	IndexFieldText
	// IndexFieldVector is a vector field.
	IndexFieldVector
)

// IndexField describes a single field in an index schema.
type IndexField struct {
	Name  string
	Alias string // AS alias in FT.CREATE SCHEMA
	Type  IndexFieldType

	VectorAlgo        VectorAlgorithm
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // HNSW max edges per node
	VectorEFConstruct int // HNSW build-time candidate list size
}

// IndexDefinition is a complete index definition over hash documents
// whose keys start with one of Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// VectorField returns the first vector field, or nil.
func (idx *IndexDefinition) VectorField() *IndexField {
	for i := range idx.Fields {
		if idx.Fields[i].Type == IndexFieldVector {
			return &idx.Fields[i]
		}
	}
	return nil
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if seen[key] {
			return errors.New("duplicate field name: " + key)
		}
		seen[key] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	}

	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
