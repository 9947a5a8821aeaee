package db

import "strings"

// IndexBuilder assembles an IndexDefinition fluently. Errors surface at Build.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a HASH index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, StorageType: StorageHash}}
}

// OnJSON switches the index to RedisJSON keys.
func (b *IndexBuilder) OnJSON() *IndexBuilder {
	b.def.StorageType = StorageJSON
	return b
}

// OnHash switches the index to hash keys.
func (b *IndexBuilder) OnHash() *IndexBuilder {
	b.def.StorageType = StorageHash
	return b
}

// Prefix restricts the index to keys with the given prefixes.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Tag adds a TAG hash field.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag})
}

// TagList adds a multi-valued TAG hash field joined by separator.
func (b *IndexBuilder) TagList(name, separator string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldTag, TagSeparator: separator})
}

// Numeric adds a NUMERIC hash field.
func (b *IndexBuilder) Numeric(name string) *IndexBuilder {
	return b.add(IndexField{Name: name, Type: IndexFieldNumeric})
}

// TagAs indexes a JSON path as TAG under alias.
func (b *IndexBuilder) TagAs(path, alias string) *IndexBuilder {
	return b.add(IndexField{Name: path, Alias: alias, Type: IndexFieldTag})
}

// TextAs indexes a JSON path as TEXT under alias.
func (b *IndexBuilder) TextAs(path, alias string) *IndexBuilder {
	return b.add(IndexField{Name: path, Alias: alias, Type: IndexFieldText})
}

// NumericAs indexes a JSON path as NUMERIC under alias.
func (b *IndexBuilder) NumericAs(path, alias string) *IndexBuilder {
	return b.add(IndexField{Name: path, Alias: alias, Type: IndexFieldNumeric})
}

// Sortable marks the most recently added field SORTABLE. No-op on an empty schema.
func (b *IndexBuilder) Sortable() *IndexBuilder {
	if n := len(b.def.Fields); n > 0 {
		b.def.Fields[n-1].Sortable = true
	}
	return b
}

// VectorHNSW adds a FLOAT32 cosine vector field.
func (b *IndexBuilder) VectorHNSW(name string, dim, m, efConstruct int) *IndexBuilder {
	return b.add(IndexField{
		Name:              name,
		Type:              IndexFieldVector,
		VectorDim:         dim,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
}

// Build validates and returns the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild is Build for static schemas.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// String renders the definition as the FT.CREATE command for logs.
func (idx *IndexDefinition) String() string {
	return "FT.CREATE " + strings.Join(idx.Args(), " ")
}
