package db

import (
	"errors"
	"fmt"
	"strconv"
)

// StorageType is the key type an FT index covers.
type StorageType string

const (
	// StorageHash indexes Redis hashes. Points live here.
	StorageHash StorageType = "HASH"
	// StorageJSON indexes RedisJSON documents. Image documents live here.
	StorageJSON StorageType = "JSON"
)

// DistanceCosine is the only metric the engine searches with.
const DistanceCosine = "COSINE"

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	IndexFieldNumeric IndexFieldType = iota
	IndexFieldTag
	IndexFieldText
	IndexFieldVector
)

func (t IndexFieldType) keyword() string {
	switch t {
	case IndexFieldNumeric:
		return "NUMERIC"
	case IndexFieldTag:
		return "TAG"
	case IndexFieldText:
		return "TEXT"
	case IndexFieldVector:
		return "VECTOR"
	default:
		return ""
	}
}

// IndexField is one SCHEMA entry. Name is a hash field or a JSON path.
type IndexField struct {
	Name     string
	Alias    string
	Type     IndexFieldType
	Sortable bool

	// TagSeparator splits multi-valued hash tags. JSON arrays need none.
	TagSeparator string

	// HNSW parameters; vectors are always FLOAT32 with cosine distance.
	VectorDim         int
	VectorM           int
	VectorEFConstruct int
}

// key is the name queries refer to.
func (f *IndexField) key() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func (f *IndexField) args() []string {
	out := []string{f.Name}
	if f.Alias != "" {
		out = append(out, "AS", f.Alias)
	}
	out = append(out, f.Type.keyword())

	switch f.Type {
	case IndexFieldTag:
		if f.TagSeparator != "" {
			out = append(out, "SEPARATOR", f.TagSeparator)
		}
	case IndexFieldVector:
		attrs := []string{
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(f.VectorDim),
			"DISTANCE_METRIC", DistanceCosine,
		}
		if f.VectorM > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.VectorM))
		}
		if f.VectorEFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.VectorEFConstruct))
		}
		out = append(out, "HNSW", strconv.Itoa(len(attrs)))
		out = append(out, attrs...)
	}

	if f.Sortable {
		out = append(out, "SORTABLE")
	}
	return out
}

// IndexDefinition is a complete FT.CREATE request.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

// Validate checks that the definition would be accepted by FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if f.Type.keyword() == "" {
			return fmt.Errorf("field %s: unknown type %d", f.Name, f.Type)
		}
		if seen[f.key()] {
			return fmt.Errorf("duplicate field name: %s", f.key())
		}
		seen[f.key()] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return fmt.Errorf("vector field %s requires positive DIM", f.Name)
		}
	}
	return nil
}

// Args renders the FT.CREATE arguments after the command name.
func (idx *IndexDefinition) Args() []string {
	storage := idx.StorageType
	if storage == "" {
		storage = StorageHash
	}
	out := []string{idx.Name, "ON", string(storage)}
	if len(idx.Prefixes) > 0 {
		out = append(out, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		out = append(out, idx.Prefixes...)
	}
	out = append(out, "SCHEMA")
	for i := range idx.Fields {
		out = append(out, idx.Fields[i].args()...)
	}
	return out
}

// IsValidIdentifier reports whether s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == ':' || r == '-':
		default:
			return false
		}
	}
	return true
}
