package db

import (
	"strconv"
	"strings"
)

// IndexBuilder is a fluent builder for index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Numeric adds a NUMERIC field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldNumeric})
	return b
}

// Tag adds a TAG field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldTag})
	return b
}

// Text adds a TEXT field.
func (b *IndexBuilder) Text(name string) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{Name: name, Type: IndexFieldText})
	return b
}

// VectorHNSW adds an HNSW vector field stored under name and queried as alias.
func (b *IndexBuilder) VectorHNSW(name, alias string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, IndexField{
		Name:              name,
		Alias:             alias,
		Type:              IndexFieldVector,
		VectorAlgo:        VectorHNSW,
		VectorDim:         dim,
		VectorDistance:    distance,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// String returns a debug representation resembling the FT.CREATE command.
func (idx *IndexDefinition) String() string {
	parts := []string{"FT.CREATE", idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		parts = append(parts, "PREFIX")
		parts = append(parts, idx.Prefixes...)
	}
	parts = append(parts, "SCHEMA")
	for i := range idx.Fields {
		f := &idx.Fields[i]
		parts = append(parts, f.Name)
		if f.Alias != "" {
			parts = append(parts, "AS", f.Alias)
		}
		switch f.Type {
		case IndexFieldTag:
			parts = append(parts, "TAG")
		case IndexFieldNumeric:
			parts = append(parts, "NUMERIC")
		case IndexFieldText:
			parts = append(parts, "TEXT")
		case IndexFieldVector:
			parts = append(parts, "VECTOR", string(f.VectorAlgo), "DIM", strconv.Itoa(f.VectorDim))
		}
	}
	return strings.Join(parts, " ")
}
