// Package ml holds the columnar frame and the fit/transform stages used to
// build the fraud classifier: Concatenate, OneHotEncode, DropColumns,
// BoostedTreeClassifier and FeatureContribution.
package ml

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrColumnNotFound is returned when a stage references a missing column.
	ErrColumnNotFound = errors.New("column not found")
	// ErrColumnKind is returned when a column has the wrong kind for a stage.
	ErrColumnKind = errors.New("unexpected column kind")
	// ErrEmptyFrame is returned when a stage cannot be fitted on zero rows.
	ErrEmptyFrame = errors.New("frame has no rows")
)

// Kind is the element type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindString
	KindBool
	KindVector
)

var kindNames = map[Kind]string{
	KindFloat:  "float",
	KindString: "string",
	KindBool:   "bool",
	KindVector: "vector",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown column kind %d", int(k))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown column kind %q", string(b))
}

// Column is one named, typed column. Exactly one of the value slices is set,
// matching Kind. Columns are never written to once they belong to a Frame.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
	Bools   []bool
	Vectors [][]float64
	Slots   []string // vector slot names, len == vector size
}

// FloatColumn builds a float column.
func FloatColumn(name string, values []float64) *Column {
	return &Column{Name: name, Kind: KindFloat, Floats: values}
}

// StringColumn builds a string column.
func StringColumn(name string, values []string) *Column {
	return &Column{Name: name, Kind: KindString, Strings: values}
}

// BoolColumn builds a bool column.
func BoolColumn(name string, values []bool) *Column {
	return &Column{Name: name, Kind: KindBool, Bools: values}
}

// VectorColumn builds a fixed-size vector column with the given slot names.
func VectorColumn(name string, slots []string, values [][]float64) *Column {
	return &Column{Name: name, Kind: KindVector, Vectors: values, Slots: slots}
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindFloat:
		return len(c.Floats)
	case KindString:
		return len(c.Strings)
	case KindBool:
		return len(c.Bools)
	case KindVector:
		return len(c.Vectors)
	}
	return 0
}

// Format renders a single cell for console output.
func (c *Column) Format(row int) string {
	switch c.Kind {
	case KindFloat:
		return fmt.Sprintf("%g", c.Floats[row])
	case KindString:
		return c.Strings[row]
	case KindBool:
		return fmt.Sprintf("%t", c.Bools[row])
	case KindVector:
		parts := make([]string, len(c.Vectors[row]))
		for i, v := range c.Vectors[row] {
			parts[i] = fmt.Sprintf("%g", v)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	return ""
}

func (c *Column) field() Field {
	f := Field{Name: c.Name, Kind: c.Kind}
	if c.Kind == KindVector {
		f.Size = len(c.Slots)
		f.Slots = append([]string(nil), c.Slots...)
	}
	return f
}

// Field describes one column of a Schema.
type Field struct {
	Name  string   `json:"name"`
	Kind  Kind     `json:"kind"`
	Size  int      `json:"size,omitempty"`
	Slots []string `json:"slots,omitempty"`
}

// Schema is the ordered list of fields of a frame.
type Schema []Field

// Names returns the field names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Frame is an immutable columnar table. Every operation returns a new Frame.
type Frame struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// NewFrame builds a frame from equally sized, uniquely named columns.
func NewFrame(columns ...*Column) (*Frame, error) {
	f := &Frame{
		columns: make([]*Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
		rows:    -1,
	}
	for _, c := range columns {
		if err := f.add(c); err != nil {
			return nil, err
		}
	}
	if f.rows < 0 {
		f.rows = 0
	}
	return f, nil
}

func (f *Frame) add(c *Column) error {
	if _, dup := f.index[c.Name]; dup {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if f.rows >= 0 && c.Len() != f.rows {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, c.Len(), f.rows)
	}
	if c.Kind == KindVector {
		for i, v := range c.Vectors {
			if len(v) != len(c.Slots) {
				return fmt.Errorf("column %q row %d: vector size %d, want %d", c.Name, i, len(v), len(c.Slots))
			}
		}
	}
	f.rows = c.Len()
	f.index[c.Name] = len(f.columns)
	f.columns = append(f.columns, c)
	return nil
}

// Rows returns the number of rows.
func (f *Frame) Rows() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		names[i] = c.Name
	}
	return names
}

// Schema returns the frame's schema.
func (f *Frame) Schema() Schema {
	s := make(Schema, len(f.columns))
	for i, c := range f.columns {
		s[i] = c.field()
	}
	return s
}

// Has reports whether the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return f.columns[i], nil
}

// ColumnOf returns the named column and checks its kind.
func (f *Frame) ColumnOf(name string, kind Kind) (*Column, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, fmt.Errorf("%w: %q is %s, want %s", ErrColumnKind, name, c.Kind, kind)
	}
	return c, nil
}

// With returns a new frame with the given columns added. A column whose name
// already exists replaces the old one in place.
func (f *Frame) With(columns ...*Column) (*Frame, error) {
	out := make([]*Column, len(f.columns))
	copy(out, f.columns)
	for _, c := range columns {
		if i, ok := f.index[c.Name]; ok {
			out[i] = c
			continue
		}
		out = append(out, c)
	}
	nf, err := NewFrame(out...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		nf.rows = f.rows
	}
	return nf, nil
}

// Without returns a new frame without the named columns. Unknown names are
// ignored.
func (f *Frame) Without(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	nf := &Frame{index: make(map[string]int), rows: f.rows}
	for _, c := range f.columns {
		if drop[c.Name] {
			continue
		}
		nf.index[c.Name] = len(nf.columns)
		nf.columns = append(nf.columns, c)
	}
	return nf
}

// Head returns a frame with at most n leading rows.
func (f *Frame) Head(n int) *Frame {
	if n >= f.rows {
		return f
	}
	if n < 0 {
		n = 0
	}
	nf := &Frame{index: make(map[string]int, len(f.columns)), rows: n}
	for _, c := range f.columns {
		h := &Column{Name: c.Name, Kind: c.Kind, Slots: c.Slots}
		switch c.Kind {
		case KindFloat:
			h.Floats = c.Floats[:n:n]
		case KindString:
			h.Strings = c.Strings[:n:n]
		case KindBool:
			h.Bools = c.Bools[:n:n]
		case KindVector:
			h.Vectors = c.Vectors[:n:n]
		}
		nf.index[c.Name] = len(nf.columns)
		nf.columns = append(nf.columns, h)
	}
	return nf
}
