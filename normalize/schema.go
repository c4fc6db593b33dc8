// Package normalize maps raw Sirene establishments to flat export rows.
package normalize

import "fmt"

// Schema is an ordered list of export columns.
type Schema struct {
	name    string
	columns []string
	index   map[string]int
}

func NewSchema(name string, columns ...string) *Schema {
	s := Schema{
		name:    name,
		columns: columns,
		index:   make(map[string]int, len(columns)),
	}

	for i, c := range columns {
		if _, ok := s.index[c]; ok {
			panic(fmt.Sprintf("normalize: duplicate column %q in schema %s", c, name))
		}

		s.index[c] = i
	}

	return &s
}

func (s *Schema) Name() string {
	return s.name
}

// Columns returns the header, in export order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)

	return out
}

// NewRow returns a row with every column set to the empty string.
func (s *Schema) NewRow() *Row {
	return &Row{schema: s, values: make([]string, len(s.columns))}
}

// Row holds one value per schema column.
type Row struct {
	schema *Schema
	values []string
}

func (r *Row) Schema() *Schema {
	return r.schema
}

// Set assigns a column. Unknown columns are a programming error and panic.
func (r *Row) Set(column, value string) {
	i, ok := r.schema.index[column]
	if !ok {
		panic(fmt.Sprintf("normalize: unknown column %q in schema %s", column, r.schema.name))
	}

	r.values[i] = value
}

func (r *Row) Get(column string) string {
	i, ok := r.schema.index[column]
	if !ok {
		return ""
	}

	return r.values[i]
}

// Values returns the values in column order.
func (r *Row) Values() []string {
	return r.values
}

// Map returns the row keyed by column name.
func (r *Row) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for i, c := range r.schema.columns {
		m[c] = r.values[i]
	}

	return m
}
